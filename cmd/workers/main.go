package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	v1 "stampdesk/stamp-studio/stamp-studio-backend/api/v1"
	"stampdesk/stamp-studio/stamp-studio-backend/internal/config"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the JSON config file")
	once := flag.Bool("once", false, "run a single cleanup and exit")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := v1.NewLogger(cfg.Logging.Level)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Connect to database
	db, err := sqlx.Connect("postgres", cfg.Database.GetDatabaseURL())
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: db.DB}), &gorm.Config{})
	if err != nil {
		logger.Fatal("Failed to open gorm session", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Create context that cancels on interrupt
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	services, err := v1.BuildServices(ctx, cfg, db, gdb, logger)
	if err != nil {
		logger.Fatal("Failed to build services", zap.Error(err))
	}

	worker := NewCleanupWorker(services.Documents, services.Envelopes, logger, CleanupWorkerConfig{
		Schedule:  cfg.Workers.CleanupSchedule,
		Retention: cfg.Workers.Retention.Std(),
		BatchSize: cfg.Workers.BatchSize,
	})

	if *once {
		result, err := worker.RunOnce(ctx)
		if err != nil {
			logger.Fatal("Cleanup failed", zap.Error(err))
		}
		logger.Info("Cleanup finished", zap.Int("documents", result.Documents), zap.Int("envelopes", result.Envelopes))
		return
	}

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received")
		cancel()
	}()

	if err := worker.Start(ctx); err != nil {
		logger.Error("Worker error", zap.Error(err))
	}

	logger.Info("Cleanup worker stopped")
}
