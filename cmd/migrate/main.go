package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/unclebandit/mailflow/internal/config"
	"github.com/unclebandit/mailflow/internal/db"
	"github.com/unclebandit/mailflow/internal/logger"
)

func main() {
	_ = godotenv.Load()

	command := "up"
	var args []string
	if len(os.Args) > 1 {
		command, args = os.Args[1], os.Args[2:]
	}
	switch command {
	case "up", "down", "status", "redo", "version", "up-to", "down-to":
	default:
		fmt.Fprintf(os.Stderr, "usage: migrate [up|down|status|redo|version|up-to N|down-to N]\n")
		os.Exit(2)
	}

	cfg := config.Load()
	if cfg.DatabaseURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(2)
	}
	log := logger.Must(cfg.LogMode)
	defer func() { _ = log.Sync() }()

	ctx := context.Background()
	conn, err := db.Open(ctx, cfg.DatabaseURL, db.Options{MaxOpenConns: 1})
	if err != nil {
		log.Fatal("database unavailable", zap.Error(err))
	}
	defer conn.Close()

	if err := db.Migrate(ctx, conn, log.Named("migrate"), command, args...); err != nil {
		log.Fatal("migration failed", zap.Error(err))
	}
	log.Info("✅ migrations complete", zap.String("command", command))
}
