package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate runs a goose command ("up", "down", "status", ...) against the embedded migrations.
func Migrate(ctx context.Context, conn *sql.DB, log *zap.Logger, command string, args ...string) error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(gooseLogger{log.Sugar()})
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := goose.RunContext(ctx, command, conn, "migrations", args...); err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}
	return nil
}

type gooseLogger struct {
	log *zap.SugaredLogger
}

func (g gooseLogger) Printf(format string, args ...any) { g.log.Infof(format, args...) }

// Fatalf logs only; goose returns the error to the caller anyway.
func (g gooseLogger) Fatalf(format string, args ...any) { g.log.Errorf(format, args...) }
