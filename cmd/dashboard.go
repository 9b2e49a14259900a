package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/screenlens/screenlens/internal/app"
	"github.com/screenlens/screenlens/internal/config"
	"github.com/screenlens/screenlens/internal/dashboard"
)

// defaultDashboardAddr keeps the port the dashboard has always lived on.
const defaultDashboardAddr = "127.0.0.1:8501"

// runDashboard starts the read-only browser dashboard. It talks to the
// database directly and never needs a Gemini key.
func runDashboard() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	addr, err := parseAddr("dashboard", defaultDashboardAddr)
	if err != nil {
		return fmt.Errorf("parsing address: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := slog.Default()
	logger.Info("starting dashboard server", "version", Version)

	a, err := app.SetupStorage(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	dash, err := dashboard.NewServer(a.Store, logger)
	if err != nil {
		return fmt.Errorf("creating dashboard server: %w", err)
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           dash.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       idleTimeout,
	}

	logger.Info("dashboard ready", "addr", addr)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down dashboard server")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down server: %w", err)
		}
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("dashboard server: %w", err)
	}
}
