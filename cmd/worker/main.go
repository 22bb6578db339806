package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/unclebandit/mailflow/internal/app"
	"github.com/unclebandit/mailflow/internal/config"
	"github.com/unclebandit/mailflow/internal/logger"
)

func main() {
	envErr := godotenv.Load()

	cfg := config.Load()
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(2)
	}

	log := logger.Must(cfg.LogMode)
	defer func() { _ = log.Sync() }()
	if envErr != nil {
		log.Info("⚠️ No .env file found, relying on OS environment variables")
	}
	if cfg.Bus == "memory" {
		log.Warn("BUS=memory only reaches consumers in the same process; run cmd/server instead")
	}

	ctx := context.Background()
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("startup failed", zap.Error(err))
	}

	if err := a.StartBackground(ctx); err != nil {
		log.Fatal("failed to start consumers", zap.Error(err))
	}

	log.Info("Worker running, waiting for messages...", zap.Int("pool_size", a.Pool.Size()))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	received := <-sig
	log.Info("shutting down", zap.String("signal", received.String()))

	// retry passes, then consumers, then in-flight pipeline calls
	a.StopBackground()

	if err := a.Close(); err != nil {
		log.Error("close failed", zap.Error(err))
	}
	log.Info("worker stopped")
}
