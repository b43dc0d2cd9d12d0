package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/JonMunkholm/staffimport/internal/app"
	"github.com/JonMunkholm/staffimport/internal/config"
	"github.com/JonMunkholm/staffimport/internal/logging"
	"github.com/JonMunkholm/staffimport/internal/web"
)

func main() {
	// Variables already in the environment win over .env files.
	if n, err := config.LoadEnv(".env", ".env.local"); err != nil {
		slog.Error("failed to load .env file", "error", err)
		os.Exit(1)
	} else if n > 0 {
		slog.Info("loaded .env files", "count", n)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("configuration loaded", "config", cfg.String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	jobCtx, cancelJobs := context.WithCancel(context.Background())
	defer cancelJobs()
	a.StartBackground(jobCtx)

	server := web.NewServer(a.Service, cfg,
		web.WithReadyCheck(a.Ready),
		web.WithRateLimitStore(a.RateStore),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			a.Close()
			os.Exit(1)
		}
		return
	case <-ctx.Done():
	}

	slog.Info("shutting down...")
	cancelJobs()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}

	// Runs outlive their requests only until the shutdown timeout.
	if status := a.Service.LimiterStatus(); status.Active > 0 {
		slog.Info("waiting for import runs to complete", "active", status.Active)
		if err := a.Service.WaitForRuns(shutdownCtx); err != nil {
			slog.Warn("import runs did not complete in time", "error", err)
		} else {
			slog.Info("all import runs completed")
		}
	}
	slog.Info("server stopped")
}
