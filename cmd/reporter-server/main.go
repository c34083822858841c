// Package main provides the report generation server entry point.
// It hosts the job submission/status API and the worker that aggregates
// test-management data into report artifacts.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/golang/glog"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/zhafran-bvt/testrail-reporter-sub000/pkg/cache"
	"github.com/zhafran-bvt/testrail-reporter-sub000/pkg/config"
	"github.com/zhafran-bvt/testrail-reporter-sub000/pkg/jobs"
	"github.com/zhafran-bvt/testrail-reporter-sub000/pkg/report"
	"github.com/zhafran-bvt/testrail-reporter-sub000/pkg/testrail"
)

func main() {
	var (
		listenAddr   string
		configPath   string
		databaseType string
		databaseDSN  string
		outputDir    string
	)

	flag.StringVar(&listenAddr, "listen", "", "Address to listen on (overrides config)")
	flag.StringVar(&configPath, "config", "/config/reporter.yaml", "Path to reporter config")
	flag.StringVar(&databaseType, "db-type", "", "History database type (sqlite, postgres or mysql)")
	flag.StringVar(&databaseDSN, "db-dsn", "", "History database connection string")
	flag.StringVar(&outputDir, "output-dir", "", "Directory for rendered report files (overrides config)")
	flag.Parse()

	// Initialize glog for backwards compatibility
	_ = flag.Set("logtostderr", "true")

	// Set up structured logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load config; flags win over file and environment.
	cfg, err := config.Load(configPath)
	if err != nil {
		glog.Fatalf("Failed to load config: %v", err)
	}
	if listenAddr != "" {
		cfg.Listen = listenAddr
	}
	if databaseType != "" {
		cfg.Database.Type = databaseType
	}
	if databaseDSN != "" {
		cfg.Database.DSN = databaseDSN
	}
	if outputDir != "" {
		cfg.OutputDir = outputDir
	}
	if err := cfg.Validate(); err != nil {
		glog.Fatalf("Invalid config: %v", err)
	}

	logger.Info("starting reporter server",
		"listen", cfg.Listen,
		"upstream", cfg.TestRail.BaseURL,
		"outputDir", cfg.OutputDir,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Setup history database
	gormDB, err := setupDatabase(cfg.Database.Type, cfg.Database.DSN)
	if err != nil {
		glog.Fatalf("Failed to connect to database: %v", err)
	}

	// Wire the pipeline: cache -> upstream client -> renderer -> pipeline.
	store := cache.FromConfig(cfg.CacheConfig())
	client := testrail.NewClient(cfg.ClientConfig(), store, logger)
	renderer := &report.HTMLRenderer{OutputDir: cfg.OutputDir}
	pipeline := report.NewPipeline(client, renderer, logger)

	history := report.NewHistoryStore(gormDB, logger)
	if err := history.AutoMigrate(); err != nil {
		glog.Fatalf("Failed to migrate report history schema: %v", err)
	}

	jobCfg := cfg.JobConfig()
	queue := jobs.NewQueue(jobCfg)
	worker := jobs.NewWorker(queue, pipeline, history, jobCfg, logger)

	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		worker.Run(ctx)
	}()
	go history.RetentionLoop(ctx, cfg.RetentionAge())

	router := mountRoutes(queue, pipeline, jobCfg, history, logger)

	logger.Info("reporter server ready",
		"listen", cfg.Listen,
		"workers", jobCfg.Workers,
		"queueDepth", jobCfg.MaxQueueDepth,
	)

	// Create HTTP server with graceful shutdown
	httpServer := &http.Server{
		Addr:    cfg.Listen,
		Handler: router,
	}

	// Start HTTP server in goroutine
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			glog.Fatalf("HTTP server error: %v", err)
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()

	logger.Info("shutting down...")

	// Graceful shutdown with timeout; the worker drains its in-flight job.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	select {
	case <-workerDone:
	case <-shutdownCtx.Done():
		logger.Error("worker did not drain before deadline")
	}

	logger.Info("reporter server stopped")
}

func mountRoutes(queue *jobs.Queue, pipeline *report.Pipeline, jobCfg *jobs.JobConfig, history *report.HistoryStore, logger *slog.Logger) chi.Router {
	router := chi.NewRouter()

	// Add common middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.Route("/api/reports/v1", func(r chi.Router) {
		r.Get("/history", report.HistoryHandler(history))
		r.Mount("/", jobs.Router(queue, pipeline, jobCfg, logger))
	})

	// Liveness probe for the healthcheck binary.
	router.Get("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return router
}

func setupDatabase(dbType, dsn string) (*gorm.DB, error) {
	switch dbType {
	case "sqlite", "":
		if dsn == "" {
			dsn = "reporter.db"
		}
		return gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	case "postgres":
		if dsn == "" {
			return nil, fmt.Errorf("database DSN is required for postgres (use -db-dsn or DATABASE_DSN)")
		}
		return gorm.Open(postgres.Open(dsn), &gorm.Config{})
	case "mysql":
		if dsn == "" {
			return nil, fmt.Errorf("database DSN is required for mysql (use -db-dsn or DATABASE_DSN)")
		}
		return gorm.Open(mysql.Open(dsn), &gorm.Config{})
	default:
		return nil, fmt.Errorf("unsupported database type %q", dbType)
	}
}
