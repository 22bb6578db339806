//cmd/seeder/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/unclebandit/mailflow/internal/app"
	"github.com/unclebandit/mailflow/internal/config"
	"github.com/unclebandit/mailflow/internal/db"
	appErrors "github.com/unclebandit/mailflow/internal/errors"
	"github.com/unclebandit/mailflow/internal/logger"
	"github.com/unclebandit/mailflow/internal/repository"
)

func main() {
	_ = godotenv.Load()

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

	repo := &repository.CampaignRepository{DB: conn}
	seeded := 0
	for _, c := range app.DemoCampaigns() {
		err := repo.Create(ctx, c)
		switch {
		case errors.Is(err, appErrors.ErrAlreadyExists):
			log.Info("campaign already present", zap.Int64("campaign_id", c.ID))
		case err != nil:
			log.Fatal("failed to seed campaign", zap.Int64("campaign_id", c.ID), zap.Error(err))
		default:
			seeded++
			log.Info("Seeded campaign", zap.Int64("campaign_id", c.ID), zap.String("trigger_tag", c.TriggerTag))
		}
	}
	log.Info("Database seeding completed successfully!", zap.Int("seeded", seeded))
}
