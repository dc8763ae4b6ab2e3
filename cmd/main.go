package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"provision-service/internal/handler"
	"provision-service/internal/middleware"
	"provision-service/internal/orchestrator"
	"provision-service/internal/provision"
	"provision-service/internal/registry"
	"provision-service/internal/seeder"
	"provision-service/pkg/config"
	"provision-service/pkg/database"
	"provision-service/pkg/logger"
	"provision-service/prometheus"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	// Load configuration from .env file and environment variables
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger with config
	logger.InitLogger(cfg)
	log := logger.GetLogger()
	log.Info("Starting provisioning service...", zap.String("environment", cfg.Server.Env))

	if cfg.Server.APIKey == "" {
		log.Warn("API_KEY is not set, mutating endpoints are unauthenticated")
	}

	// Initialize control-plane database (includes migrations)
	if err := database.InitDB(cfg, log); err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	log.Info("Database connection established and migrations completed")

	// Select compute backend
	var compute provision.Compute
	switch cfg.Compute.Backend {
	case "kubernetes":
		compute = provision.NewKubernetesProvisioner(cfg, log)
	default:
		compute = provision.NewLocalDockerProvisioner(cfg, log)
	}
	log.Info("Compute backend selected", zap.String("backend", cfg.Compute.Backend))

	store := registry.NewStore(database.GetDB())
	databases := provision.NewDatabaseProvisioner(database.GetDB(), cfg, log)

	// Background admin seeding workers
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool := seeder.NewPool(cfg, compute, log)
	pool.Start(ctx)
	log.Info("Seeder pool started", zap.Int("workers", cfg.Seeder.Workers))

	orch := orchestrator.New(cfg, log, store, databases, compute, pool)
	handler.Init(orch)

	// Initialize Prometheus metrics
	prometheus.InitMetrics(cfg)
	log.Info("Prometheus metrics initialized")

	// Initialize Echo framework
	e := echo.New()

	// Apply global middleware - order matters
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: cfg.Server.CORSOrigins,
	}))
	e.Use(middleware.RequestIDMiddleware)
	e.Use(logger.Middleware(log))
	e.Use(prometheus.MetricsMiddleware())

	// Public routes - no authentication required
	e.GET("/", handler.Hello)
	e.GET("/health", handler.HealthCheck)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Lifecycle routes require the shared API key
	apiKey := middleware.APIKeyMiddleware(cfg)
	e.POST("/create-store", handler.CreateStore, apiKey)
	e.POST("/delete-store", handler.DeleteStore, apiKey)
	e.POST("/suspend-store", handler.SuspendStore, apiKey)
	e.POST("/resume-store", handler.ResumeStore, apiKey)
	e.POST("/seed-admin", handler.SeedAdmin, apiKey)
	e.GET("/stores-status", handler.StoresStatus, apiKey)
	e.GET("/store-logs/:name", handler.StoreLogs, apiKey)

	// Start server in the background so signals can drive shutdown
	go func() {
		port := cfg.Server.Port
		log.Info("Starting server", zap.String("port", port))
		if err := e.Start(":" + port); err != nil {
			log.Info("Server stopped", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error", zap.Error(err))
	}

	// Abort in-flight seeding jobs and wait for workers to exit
	cancel()
	pool.Stop()
	log.Info("Provisioning service stopped")
}
