package config

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

var ErrDatabaseNotConfigured = errors.New("database not configured")

// OpenDatabase connects with backoff and returns the handle owned by the caller.
func OpenDatabase(ctx context.Context, cfg DatabaseSettings) (*gorm.DB, error) {
	if !cfg.Configured() {
		return nil, ErrDatabaseNotConfigured
	}

	var attempt int
	for {
		attempt++
		db, err := gorm.Open(mysql.Open(dsn(cfg)), initConfig())
		if err == nil {
			tunePool(db, cfg)
			if pluginErr := db.Use(otelgorm.NewPlugin()); pluginErr != nil {
				log.Printf("db connected but failed to install otelgorm plugin: %v", pluginErr)
			}
			log.Printf("connected to database (attempt=%d)", attempt)
			return db, nil
		}

		if cfg.ConnectAttempts > 0 && attempt >= cfg.ConnectAttempts {
			return nil, fmt.Errorf("connect database after %d attempts: %w", attempt, err)
		}
		sleep := backoff(attempt)
		log.Printf("failed to connect database (attempt=%d): %v; retrying in %s", attempt, err, sleep)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(sleep):
		}
	}
}

// CloseDatabase releases the pool behind db.
func CloseDatabase(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func dsn(cfg DatabaseSettings) string {
	network := "tcp"
	address := fmt.Sprintf("%s:%s", cfg.Host, cfg.Port)

	// Cloud Run + Cloud SQL: when DB_HOST is "/cloudsql/<CONNECTION_NAME>",
	// connect using a Unix domain socket provided by Cloud SQL Auth Proxy.
	if strings.HasPrefix(cfg.Host, "/cloudsql/") {
		network = "unix"
		address = cfg.Host
	}

	return fmt.Sprintf("%s:%s@%s(%s)/%s?parseTime=true&loc=UTC",
		cfg.User,
		cfg.Password,
		network,
		address,
		cfg.Name,
	)
}

func tunePool(db *gorm.DB, cfg DatabaseSettings) {
	sqlDB, err := db.DB()
	if err != nil || sqlDB == nil {
		return
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns >= 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
}

func backoff(attempt int) time.Duration {
	sleep := time.Second * time.Duration(1<<min(attempt, 5))
	if sleep > 30*time.Second {
		sleep = 30 * time.Second
	}
	return sleep
}

func initConfig() *gorm.Config {
	return &gorm.Config{
		Logger:         initLog(),
		NamingStrategy: schema.NamingStrategy{SingularTable: false},
		TranslateError: true,
	}
}

// Connection Log Configuration
func initLog() logger.Interface {
	return logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			Colorful:      false,
			LogLevel:      logger.Error,
			SlowThreshold: time.Second,
			// point lookups miss routinely
			IgnoreRecordNotFoundError: true,
		},
	)
}
