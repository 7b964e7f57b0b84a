package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Settings struct {
	Port               string
	Env                string
	CorsAllowedOrigins string
	SkipMigrations     bool

	Database DatabaseSettings
	Redis    RedisSettings
	PubSub   PubSubSettings
	Upstream UpstreamSettings
}

type DatabaseSettings struct {
	User     string
	Password string
	Host     string
	Port     string
	Name     string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// ConnectAttempts bounds the connect loop; 0 retries until success.
	ConnectAttempts int
}

// Configured reports whether enough is set to attempt a connection.
func (d DatabaseSettings) Configured() bool {
	return d.Host != "" && d.Name != ""
}

type RedisSettings struct {
	Address string
}

type PubSubSettings struct {
	ProjectID       string
	CredentialsJSON string
	EventsTopic     string
}

type UpstreamSettings struct {
	BaseURL       string
	ListTimeout   time.Duration
	ReportTimeout time.Duration
	DetectTimeout time.Duration
}

func init() {
	// Load env from .env
	godotenv.Load()
}

// Load reads Settings from the environment.
func Load() Settings {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	return Settings{
		Port:               port,
		Env:                strings.TrimSpace(os.Getenv("GO_ENV")),
		CorsAllowedOrigins: strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS")),
		SkipMigrations:     strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true"),
		Database: DatabaseSettings{
			User:            os.Getenv("DB_USER"),
			Password:        os.Getenv("DB_PASSWORD"),
			Host:            strings.TrimSpace(os.Getenv("DB_HOST")),
			Port:            strings.TrimSpace(os.Getenv("DB_PORT")),
			Name:            strings.TrimSpace(os.Getenv("DB_NAME")),
			MaxOpenConns:    intFromEnv("DB_MAX_OPEN_CONNS", 50),
			MaxIdleConns:    intFromEnv("DB_MAX_IDLE_CONNS", 25),
			ConnMaxLifetime: time.Duration(intFromEnv("DB_CONN_MAX_LIFETIME_SECONDS", 300)) * time.Second,
			ConnMaxIdleTime: time.Duration(intFromEnv("DB_CONN_MAX_IDLE_TIME_SECONDS", 60)) * time.Second,
			ConnectAttempts: intFromEnv("DB_CONNECT_ATTEMPTS", 10),
		},
		Redis: RedisSettings{
			Address: strings.TrimSpace(os.Getenv("REDIS_ADDRESS")),
		},
		PubSub: PubSubSettings{
			ProjectID:       getPubSubProjectID(),
			CredentialsJSON: os.Getenv("PUBSUB_CREDENTIALS_JSON"),
			EventsTopic:     strings.TrimSpace(os.Getenv("ANOMALY_EVENTS_TOPIC")),
		},
		Upstream: UpstreamSettings{
			BaseURL:       strings.TrimRight(strings.TrimSpace(os.Getenv("UPSTREAM_BASE_URL")), "/"),
			ListTimeout:   msFromEnv("UPSTREAM_LIST_TIMEOUT_MS", 5000),
			ReportTimeout: msFromEnv("UPSTREAM_REPORT_TIMEOUT_MS", 5000),
			DetectTimeout: msFromEnv("UPSTREAM_DETECT_TIMEOUT_MS", 10000),
		},
	}
}

func (s Settings) IsProduction() bool {
	return strings.EqualFold(s.Env, "production")
}

func intFromEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func msFromEnv(key string, def int) time.Duration {
	ms := intFromEnv(key, def)
	if ms <= 0 {
		ms = def
	}
	return time.Duration(ms) * time.Millisecond
}

func getPubSubProjectID() string {
	// Prefer explicit override.
	if v := os.Getenv("PUBSUB_PROJECT_ID"); v != "" {
		return v
	}
	// Cloud Run/Cloud Functions often set this.
	if v := os.Getenv("GOOGLE_CLOUD_PROJECT"); v != "" {
		return v
	}
	return os.Getenv("GCP_PROJECT")
}
