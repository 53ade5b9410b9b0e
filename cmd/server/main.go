package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/ychsieh/realprice/internal/config"
	"github.com/ychsieh/realprice/internal/dataset"
	"github.com/ychsieh/realprice/internal/logging"
	"github.com/ychsieh/realprice/internal/web"
)

func main() {
	// Load .env if present; real environment variables win elsewhere.
	if err := godotenv.Load(); err == nil {
		slog.Info("loaded .env file")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	store, err := dataset.NewStore(cfg.Dataset.Root, cfg.Upload.MaxArchiveSize)
	if err != nil {
		slog.Error("failed to open dataset store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	if cfg.Dataset.Watch {
		if err := store.Watch(); err != nil {
			// Watching is an optimization; the cache still refreshes on
			// every ingest.
			slog.Warn("dataset watch unavailable", "error", err)
		}
	}

	if m, err := store.Manifest(); err != nil {
		slog.Warn("manifest unreadable at startup", "error", err)
	} else {
		slog.Info("dataset loaded",
			"root", cfg.Dataset.Root,
			"cities", len(m.Cities),
			"period", m.Period,
		)
	}

	server := web.NewServer(store, cfg)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	slog.Info("server starting", "addr", cfg.Server.Addr())
	if err := server.Start(); err != nil && err != http.ErrServerClosed {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
