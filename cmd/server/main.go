package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"shortform-studio/internal/app"
	"shortform-studio/internal/cleanup"
	"shortform-studio/internal/config"
	"shortform-studio/internal/logging"
	"shortform-studio/internal/server"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config.yaml")
	flag.Parse()

	// Load .env (local dev only)
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()
	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize", zap.Error(err))
	}
	defer a.Close()

	sweeper := cleanup.NewScheduler(cfg.Paths.WorkDir,
		time.Duration(cfg.Cleanup.IntervalMinutes)*time.Minute,
		time.Duration(cfg.Cleanup.MaxAgeHours)*time.Hour,
		logger)
	sweeper.Start()
	defer sweeper.Stop()

	srv := server.New(a.Pipeline, a.Ledger, cfg.Server, a.FilesDir, logger)

	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		logger.Info("shutting down gracefully")
		if err := srv.Shutdown(); err != nil {
			logger.Warn("shutdown", zap.Error(err))
		}
	}()

	if err := srv.Listen(); err != nil {
		logger.Error("server failed", zap.Error(err))
	}
}
