// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/unclebandit/mailflow/internal/app"
	"github.com/unclebandit/mailflow/internal/config"
	"github.com/unclebandit/mailflow/internal/controller"
	"github.com/unclebandit/mailflow/internal/handler"
	"github.com/unclebandit/mailflow/internal/logger"
)

func main() {
	// Load .env
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

	ctx := context.Background()
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("startup failed", zap.Error(err))
	}

	// with the in-memory bus there is no separate worker process
	if cfg.Bus == "memory" {
		if err := a.StartBackground(ctx); err != nil {
			log.Fatal("failed to start consumers", zap.Error(err))
		}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		pingCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.Ping(pingCtx); err != nil {
			http.Error(w, "unhealthy: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	})
	if cfg.MetricsEnabled {
		r.Handle(cfg.MetricsPath, promhttp.Handler())
	}

	trackingHandler := &handler.TrackingHandler{Tracking: a.Tracking, Log: log.Named("http")}
	trackingHandler.Routes(r)

	emailController := &controller.EmailController{
		Queries:  a.Queries,
		Delivery: a.Delivery,
		Retry:    a.Retry,
		Log:      log.Named("http"),
	}
	emailController.Routes(r)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		log.Info("🚀 Server running", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server error", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	received := <-sig
	log.Info("shutting down", zap.String("signal", received.String()))

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.HTTPShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown error", zap.Error(err))
	}

	a.StopBackground()
	if err := a.Close(); err != nil {
		log.Error("close failed", zap.Error(err))
	}
	log.Info("server stopped")
}
