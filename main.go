package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/stevemurr/recipe-kv-server/config"
	"github.com/stevemurr/recipe-kv-server/handler"
	"github.com/stevemurr/recipe-kv-server/recipe"
	"github.com/stevemurr/recipe-kv-server/store"
)

func newLogger(cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := store.New(ctx, cfg.StoreBackend, cfg.DataDir, cfg.RedisURL)
	if err != nil {
		logger.Error("creating store", "backend", cfg.StoreBackend, "error", err)
		os.Exit(1)
	}
	defer s.Close()

	newID := recipe.TimestampID
	if cfg.IDStrategy == "uuid" {
		newID = recipe.UUIDID
	}
	recipes := recipe.NewStore(s, recipe.Options{
		StrictUpdate:   cfg.StrictUpdate,
		TouchOnUpdate:  cfg.TouchOnUpdate,
		SerializeIndex: cfg.SerializeIndex,
		NewID:          newID,
		Logger:         logger,
	})

	h := chi.Chain(
		middleware.RequestID,
		middleware.RealIP,
		handler.LogRequests(logger),
		middleware.Recoverer,
	).Handler(handler.New(recipes, logger, cfg.MaxBodyBytes))

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler.CORS(h, cfg.AllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutting down", "error", err)
		}
	}()

	logger.Info("recipe server starting", "addr", srv.Addr, "store", cfg.StoreBackend, "data", cfg.DataDir)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	<-shutdownDone
}
