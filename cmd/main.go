package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	_ "github.com/zynpay/zynpay_service/docs"
	"github.com/zynpay/zynpay_service/internal/api/routes"
	"github.com/zynpay/zynpay_service/internal/infrastructure/config"
	"github.com/zynpay/zynpay_service/internal/infrastructure/database"
	"github.com/zynpay/zynpay_service/internal/infrastructure/di"
	"github.com/zynpay/zynpay_service/internal/workers/reconciliation_worker"
	"github.com/zynpay/zynpay_service/pkg/graceful"
	"github.com/zynpay/zynpay_service/pkg/logger"
	"github.com/zynpay/zynpay_service/pkg/metrics"
	"github.com/zynpay/zynpay_service/pkg/tracing"
)

// @title ZynPay Service API
// @version 1.0
// @description Payroll and peer-to-peer payments over an on-chain escrow contract
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.email support@zynpay.io

// @license.name Apache 2.0
// @license.url http://www.apache.org/licenses/LICENSE-2.0.html

// @host localhost:8080
// @BasePath /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Initialize logger
	log := logger.New(cfg.LogLevel, cfg.Environment)

	// Initialize OpenTelemetry tracing
	tracingConfig := tracing.Config{
		Enabled:      cfg.Tracing.Enabled,
		CollectorURL: cfg.Tracing.CollectorURL,
		Environment:  cfg.Environment,
		SampleRate:   cfg.Tracing.SampleRate,
		Insecure:     cfg.Tracing.Insecure,
	}
	tracingShutdown, err := tracing.InitTracer(context.Background(), tracingConfig, log.Zap())
	if err != nil {
		log.Fatal("Failed to initialize tracing", "error", err)
	}

	db := openDatabase(cfg, log)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Build dependency injection container
	startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	container, err := di.NewContainer(startCtx, cfg, db, log)
	cancel()
	if err != nil {
		log.Fatal("Failed to create DI container", "error", err)
	}

	router := routes.SetupRoutes(container)

	server := &http.Server{
		Addr:           fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:        router,
		ReadTimeout:    time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1MB
	}
	shutdown := graceful.NewShutdownManager(server, log)

	if cfg.Reconciliation.Enabled {
		workerConfig := reconciliation_worker.DefaultConfig()
		workerConfig.Schedule = cfg.Reconciliation.Schedule
		worker, err := reconciliation_worker.NewWorker(container.Coordinator, workerConfig, log.Zap())
		if err != nil {
			log.Fatal("Failed to create reconciliation worker", "error", err)
		}
		if err := worker.Start(); err != nil {
			log.Fatal("Failed to start reconciliation worker", "error", err)
		}
		shutdown.Register(graceful.ShutdownFunc(func(timeout time.Duration) error {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			return worker.Shutdown(ctx)
		}))
	} else {
		log.Info("Reconciliation worker disabled in configuration")
	}

	// the container closes after the server drains so in-flight sends keep their watchers
	shutdown.RegisterCloser(container)
	if db != nil {
		shutdown.RegisterCloser(db)
		go collectDBStats(db)
	}
	shutdown.RegisterCloser(closerFunc(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return tracingShutdown(ctx)
	}))

	go func() {
		log.Info("Starting server",
			"port", cfg.Server.Port,
			"environment", cfg.Environment,
			"networks", len(container.Registry.Networks()),
			"persistent_stores", db != nil,
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", "error", err)
		}
	}()

	shutdown.WaitForShutdown()
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// openDatabase connects and migrates. Outside production a missing database
// falls back to in-memory stores.
func openDatabase(cfg *config.Config, log *logger.Logger) *sqlx.DB {
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		if cfg.Environment == "production" {
			log.Fatal("Failed to connect to database", "error", err)
		}
		log.Warn("Database unavailable, payment actions and reconciliation markers will not survive a restart", "error", err)
		return nil
	}

	if err := database.RunMigrations(cfg.Database.URL, "./migrations"); err != nil {
		log.Fatal("Failed to run migrations", "error", err)
	}
	return db
}

func collectDBStats(db *sqlx.DB) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		stats := db.Stats()
		metrics.DatabaseConnectionsGauge.WithLabelValues("open").Set(float64(stats.OpenConnections))
		metrics.DatabaseConnectionsGauge.WithLabelValues("idle").Set(float64(stats.Idle))
		metrics.DatabaseConnectionsGauge.WithLabelValues("in_use").Set(float64(stats.InUse))
	}
}
