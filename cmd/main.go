package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"

	"safety-service/internal/api"
	"safety-service/internal/config"
	"safety-service/internal/db"
	"safety-service/internal/engine"
	"safety-service/internal/kafka"
	"safety-service/internal/logging"
	"safety-service/internal/metrics"
	"safety-service/internal/notification"
	"safety-service/internal/ratelimit"
	"safety-service/internal/seed"
	"safety-service/internal/vault"
)

func main() {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Logging.Dir, cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Close()

	sealer, err := vault.New(cfg.Security.EncryptionKey)
	if err != nil {
		log.Fatalf("Failed to init encryption: %v", err)
	}
	for _, w := range cfg.Warnings() {
		logger.Warn(w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to database
	dbConn, err := db.New(ctx, cfg.DB.DSN, sealer)
	if err != nil {
		logger.Errorf("Failed to connect to database: %v", err)
		log.Fatalf("Database connection failed: %v", err)
	}
	defer dbConn.Close()

	if cfg.DB.AutoMigrate {
		if err := dbConn.Migrate(ctx); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		logger.Infof("Database schema is up to date")
	}
	if n, err := seed.FromFile(ctx, dbConn, cfg.Seed.ZonesFile, logger); err != nil {
		log.Fatalf("Failed to seed risk zones: %v", err)
	} else if n > 0 {
		logger.Infof("Seeded %d risk zones from %s", n, cfg.Seed.ZonesFile)
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	// Initialize notification service
	svc := notification.New(dbConn, logger, cfg, m)
	var producer *kafka.Producer
	if cfg.Kafka.Broker != "" {
		producer = kafka.NewProducer([]string{cfg.Kafka.Broker}, cfg.Kafka.AlertTopic)
		svc.SetPublisher(producer)
		logger.Infof("Publishing alerts to topic: %s", cfg.Kafka.AlertTopic)
	}
	var wg sync.WaitGroup
	svc.Start(&wg)

	locationLimiter := ratelimit.New(cfg.RateLimit.LocationMax, cfg.RateLimit.LocationWindow)
	panicLimiter := ratelimit.New(cfg.RateLimit.PanicMax, cfg.RateLimit.PanicWindow)
	eng := engine.New(dbConn, svc, logger, engine.Config{
		LocationLimiter: locationLimiter,
		PanicLimiter:    panicLimiter,
		Metrics:         m,
	})

	// Initialize Kafka consumer
	var consumer *kafka.Consumer
	if cfg.Kafka.Broker != "" {
		consumer = kafka.NewConsumer([]string{cfg.Kafka.Broker}, cfg.Kafka.LocationTopic, cfg.Kafka.GroupID, eng, logger)
		consumer.Start(ctx, &wg)
	} else {
		logger.Infof("KAFKA_BROKER not set, location stream disabled")
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Scheduler.LimiterPrune, func() {
		n := locationLimiter.Prune() + panicLimiter.Prune()
		logger.Debugf("Pruned %d idle rate limit keys", n)
	}); err != nil {
		log.Fatalf("Invalid LIMITER_PRUNE_SPEC: %v", err)
	}
	if _, err := scheduler.AddFunc(cfg.Scheduler.ScoreRefresh, func() {
		n, err := eng.RefreshScores(ctx)
		if err != nil {
			logger.Errorf("Safety score refresh failed: %v", err)
			return
		}
		logger.Infof("Refreshed safety scores for %d tourists", n)
	}); err != nil {
		log.Fatalf("Invalid SCORE_REFRESH_SPEC: %v", err)
	}
	scheduler.Start()

	// Start API server
	throttleStore, err := api.NewThrottleStore(cfg)
	if err != nil {
		log.Fatalf("Failed to init throttle store: %v", err)
	}
	throttle, err := api.ThrottleMiddleware(cfg.API.RateLimit, throttleStore, logger)
	if err != nil {
		log.Fatalf("Invalid HTTP_RATE_LIMIT: %v", err)
	}
	gin.SetMode(gin.ReleaseMode)
	handler := api.NewHandler(dbConn, eng, svc.Hub(), logger)
	router := api.NewRouter(handler, logger, cfg, throttle)
	server := &http.Server{
		Addr:              cfg.API.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Infof("Starting API server on %s", cfg.API.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("API server failed: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Infof("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("API server shutdown failed: %v", err)
	}
	<-scheduler.Stop().Done()
	svc.Stop()
	wg.Wait()
	if consumer != nil {
		if err := consumer.Close(); err != nil {
			logger.Errorf("Kafka consumer close failed: %v", err)
		}
	}
	if producer != nil {
		if err := producer.Close(); err != nil {
			logger.Errorf("Kafka producer close failed: %v", err)
		}
	}
}
