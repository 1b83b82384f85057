package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/posturepulse/dashboard/internal/archive"
	"github.com/posturepulse/dashboard/internal/auth"
	"github.com/posturepulse/dashboard/internal/config"
	"github.com/posturepulse/dashboard/internal/feed"
	"github.com/posturepulse/dashboard/internal/feedback"
	"github.com/posturepulse/dashboard/internal/handler"
	"github.com/posturepulse/dashboard/internal/ingest"
	"github.com/posturepulse/dashboard/internal/middleware"
	"github.com/posturepulse/dashboard/internal/repository"
	"github.com/posturepulse/dashboard/internal/services"
	"github.com/posturepulse/dashboard/internal/textgen"
)

func main() {
	cfg := config.LoadConfig()

	logger := initLogger(cfg.Logging)
	defer logger.Sync()

	logger.Info("Starting posture dashboard service",
		zap.String("port", cfg.Server.Port),
		zap.String("store", cfg.Store.Driver),
		zap.String("timezone", cfg.Posture.Location.String()),
		zap.String("environment", os.Getenv("GO_ENV")),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	repo, err := repository.Open(ctx, cfg.Store)
	if err != nil {
		logger.Fatal("Failed to open sample store", zap.String("driver", cfg.Store.Driver), zap.Error(err))
	}
	defer repo.Close()

	redisClient, err := newRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
	}
	defer redisClient.Close()

	archiveStore, err := archive.Open(ctx, cfg.Archive)
	if err != nil {
		logger.Fatal("Failed to create archive store", zap.Error(err))
	}
	defer archiveStore.Close()

	generator, err := newGenerator(cfg.TextGen, logger)
	if err != nil {
		logger.Fatal("Failed to create text generation client", zap.Error(err))
	}

	publisher := feed.NewPublisher(redisClient, cfg.Redis.ChannelPrefix)
	postureService := services.NewPostureService(repo, publisher, cfg.Posture, registry, logger)

	snapshots := feed.NewSnapshots()
	watcher := feed.NewWatcher(redisClient, cfg.Redis.ChannelPrefix, postureService, snapshots, registry, logger)

	coordinator := feedback.NewCoordinator(feedback.Options{
		Loader:            postureService,
		Generator:         generator,
		Cache:             feedback.NewCache(redisClient, "posture:feedback", cfg.Feedback.CacheTTL),
		Archive:           archiveStore,
		RequestsPerSecond: cfg.Feedback.RequestsPerSecond,
		Burst:             cfg.Feedback.Burst,
		Location:          cfg.Posture.Location,
		Registerer:        registry,
		Logger:            logger,
	})

	var subscriber *ingest.Subscriber
	if cfg.MQTT.BrokerURL != "" {
		subscriber, err = ingest.NewSubscriber(cfg.MQTT.BrokerURL, cfg.MQTT.TopicPrefix, cfg.MQTT.ClientID, postureService, registry, logger)
		if err != nil {
			logger.Fatal("Failed to create MQTT subscriber", zap.Error(err))
		}
	}

	jwtManager := auth.NewJWTManager(&cfg.JWT)
	authMiddleware := auth.NewAuthMiddleware(jwtManager, logger)
	metricsMiddleware := middleware.NewMetricsMiddleware(registry)
	loggingMiddleware := middleware.NewLoggingMiddleware(logger)
	corsMiddleware := middleware.NewCORSMiddleware(cfg.CORS.AllowedOrigins, logger)

	router := mux.NewRouter()

	// CORS must come first to handle preflight requests
	router.Use(corsMiddleware.EnableCORS)
	router.Use(loggingMiddleware.LogRequest)
	router.Use(metricsMiddleware.CollectMetrics)

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"healthy"}`)
	}).Methods(http.MethodGet)

	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	apiV1 := router.PathPrefix("/api/v1").Subrouter()
	apiV1.Use(authMiddleware.Authenticate)

	handler.NewPostureHandler(postureService, snapshots, coordinator, logger).RegisterRoutes(apiV1)

	// preflight requests need a matching route for the router middleware to run
	router.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Live feed stopped", zap.Error(err))
		}
	}()

	if subscriber != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := subscriber.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("MQTT ingest stopped", zap.Error(err))
			}
		}()
	}

	go func() {
		logger.Info("Server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	wg.Wait()

	logger.Info("Server exited properly")
}

// newGenerator falls back to textgen.Unavailable without an endpoint so the
// dashboard keeps serving while feedback requests fail.
func newGenerator(cfg config.TextGenConfig, logger *zap.Logger) (feedback.Generator, error) {
	if cfg.Endpoint == "" {
		logger.Warn("No text generation endpoint configured, feedback is disabled")
		return textgen.Unavailable{}, nil
	}
	client, err := textgen.NewClient(cfg.Endpoint, cfg.APIKey, cfg.Model, cfg.Timeout, logger)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func newRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// initLogger initializes the logger based on configuration
func initLogger(cfg config.LoggingConfig) *zap.Logger {
	var zapConfig zap.Config

	level := zap.InfoLevel
	if err := level.Set(cfg.Level); err != nil {
		fmt.Printf("Unknown log level %q, using info\n", cfg.Level)
	}

	if cfg.Format == "console" {
		zapConfig = zap.NewDevelopmentConfig()
		zapConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		zapConfig = zap.NewProductionConfig()
	}

	zapConfig.Level = zap.NewAtomicLevelAt(level)

	logger, err := zapConfig.Build()
	if err != nil {
		fmt.Printf("Failed to create logger: %v. Using default logger.\n", err)
		return zap.NewExample()
	}

	return logger
}
