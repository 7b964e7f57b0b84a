package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/anomaly_backend/anomalysync"
	"github.com/mmdatafocus/anomaly_backend/config"
	"github.com/mmdatafocus/anomaly_backend/metrics"
	"github.com/mmdatafocus/anomaly_backend/middlewares"
	"github.com/mmdatafocus/anomaly_backend/models"
	"github.com/mmdatafocus/anomaly_backend/upstream"
	"github.com/mmdatafocus/anomaly_backend/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

func main() {
	settings := config.Load()
	logger := config.GetLogger()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	metrics.Register(prometheus.DefaultRegisterer)

	db, err := config.OpenDatabase(sigCtx, settings.Database)
	if err != nil {
		// no further tier: reads that need the store answer 503
		config.LogError(logger, "main", "main", "OpenDatabase", nil, err)
	}
	defer func() {
		if err := config.CloseDatabase(db); err != nil {
			config.LogError(logger, "main", "main", "CloseDatabase", nil, err)
		}
	}()
	if settings.SkipMigrations {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	} else if db != nil {
		if err := models.MigrateTable(db); err != nil {
			logger.WithFields(logrus.Fields{"field": "migrations"}).Fatal(err)
		}
	}

	opts := []anomalysync.Option{}
	if settings.Redis.Address != "" {
		rdb, locker, err := config.ConnectRedis(sigCtx, settings.Redis.Address, 5)
		if err != nil {
			config.LogError(logger, "main", "main", "ConnectRedis", settings.Redis.Address, err)
		} else {
			defer rdb.Close()
			opts = append(opts,
				anomalysync.WithSyncStatus(anomalysync.NewSyncStatusRecorder(rdb, logger)),
				anomalysync.WithDetectLock(anomalysync.NewRedisLocker(locker), settings.Upstream.DetectTimeout+5*time.Second),
			)
		}
	}
	if settings.PubSub.EventsTopic != "" {
		if publisher, closeFn, err := newEventPublisher(sigCtx, settings.PubSub); err != nil {
			config.LogError(logger, "main", "main", "newEventPublisher", settings.PubSub.EventsTopic, err)
		} else {
			defer closeFn()
			opts = append(opts, anomalysync.WithEvents(publisher))
		}
	}

	store := models.NewAnomalyStore(db)
	client := upstream.NewClient(settings.Upstream, logger)
	svc := anomalysync.NewService(store, client, logger, opts...)

	r := gin.New()
	r.Use(middlewares.RequestContextMiddleware())
	r.Use(cors.New(corsConfig(settings)))
	r.Use(middlewares.RequestLoggerMiddleware(logger))
	r.Use(gin.Recovery())
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/readyz", func(c *gin.Context) {
		if err := store.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store unavailable"})
			return
		}
		c.Status(http.StatusNoContent)
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	anomalysync.RegisterRoutes(r, svc)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})

	srv := &http.Server{
		Addr:    ":" + settings.Port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()
	logger.WithFields(logrus.Fields{"port": settings.Port, "upstream": settings.Upstream.BaseURL}).Info("anomaly service listening")

	select {
	case <-sigCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	case err := <-serverErrCh:
		if err != nil && err != http.ErrServerClosed {
			logger.WithFields(logrus.Fields{"field": "server"}).Error(err)
		}
	}
}

func newEventPublisher(ctx context.Context, cfg config.PubSubSettings) (*anomalysync.PubSubPublisher, func(), error) {
	client, err := config.NewPubSubClient(ctx, cfg, 5)
	if err != nil {
		return nil, nil, err
	}
	topic := client.Topic(cfg.EventsTopic)
	if config.CreateEventsTopic() {
		topic, err = config.CreateTopicIfNotExists(ctx, client, cfg.EventsTopic)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
	}
	closeFn := func() {
		topic.Stop()
		_ = client.Close()
	}
	return anomalysync.NewPubSubPublisher(topic), closeFn, nil
}

func corsConfig(settings config.Settings) cors.Config {
	corsConfig := cors.DefaultConfig()
	if settings.IsProduction() {
		corsConfig.AllowOrigins = utils.SplitAndTrim(settings.CorsAllowedOrigins)
		if len(corsConfig.AllowOrigins) == 0 {
			corsConfig.AllowOriginFunc = func(string) bool { return false }
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "OPTIONS")
	corsConfig.AddAllowHeaders("Origin", "Content-Type", "Authorization", middlewares.CorrelationIdHeader)
	corsConfig.AddExposeHeaders("Content-Length", anomalysync.SourceHeader)
	corsConfig.AllowCredentials = true
	return corsConfig
}
