package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/acbikash13/NepalPermit/config"
	"github.com/acbikash13/NepalPermit/handler"
	"github.com/acbikash13/NepalPermit/middleware"
	"github.com/acbikash13/NepalPermit/pkg/logger"
	"github.com/acbikash13/NepalPermit/service"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

func main() {
	configPath := flag.String("config", envOr("PERMIT_CONFIG", "config.yaml"), "path to the YAML config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "path", *configPath, "error", err)
		os.Exit(1)
	}

	logger.Init(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	slog.Info("configuration loaded successfully", "path", *configPath)

	ctx := context.Background()

	db, err := service.OpenDatabase(ctx, &cfg.Database)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := service.RunMigrations(ctx, db); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	objects, err := service.NewObjectStore(ctx, &cfg.Storage)
	if err != nil {
		slog.Error("failed to initialize object storage", "driver", cfg.Storage.Driver, "error", err)
		os.Exit(1)
	}
	for _, bucket := range []string{cfg.Storage.PhotoBucket, cfg.Storage.IDBucket, cfg.Storage.PermitBucket} {
		if err := objects.EnsureBucket(ctx, bucket); err != nil {
			slog.Error("failed to ensure bucket", "bucket", bucket, "error", err)
			os.Exit(1)
		}
	}

	// Services
	permitStore := service.NewPermitStore(db)
	renderer := service.NewCertificateRenderer()
	sessions := service.NewSessionManager(cfg)
	submissions := service.NewSubmissionService(objects, permitStore, renderer, &cfg.Storage)
	permits := service.NewPermitService(permitStore, objects, renderer, cfg.Storage.PermitBucket, cfg.ServeStoredPDF())

	permitHandler := handler.NewPermitHandler(submissions, permits, cfg.Storage.MaxPhotoBytes+cfg.Storage.MaxDocumentBytes)

	var idempotency gin.HandlerFunc
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
		defer rdb.Close()

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			slog.Error("failed to connect to redis", "addr", cfg.Redis.Addr, "error", err)
			os.Exit(1)
		}
		idempotency = middleware.Idempotency(rdb, time.Duration(cfg.Redis.IdempotencyTTLSeconds)*time.Second, permitHandler.MaxBodyBytes())
		slog.Info("idempotency keys enabled", "addr", cfg.Redis.Addr)
	}

	window := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second

	gin.SetMode(gin.ReleaseMode)
	router := handler.NewRouter(handler.RouterConfig{
		Permits:        permitHandler,
		Admin:          handler.NewAdminHandler(sessions, permits, &cfg.Server),
		Sessions:       sessions,
		CookieSecure:   cfg.Server.CookieSecure,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		SubmitLimiter:  middleware.NewRateLimiter(cfg.RateLimit.Requests, window),
		LoginLimiter:   middleware.NewRateLimiter(cfg.RateLimit.Requests, window),
		Idempotency:    idempotency,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		return
	}

	slog.Info("server exited gracefully")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
