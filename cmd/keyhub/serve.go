package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	httphandler "github.com/ericfisherdev/keyhub/internal/adapter/driving/http"
	"github.com/ericfisherdev/keyhub/internal/application"
	"github.com/ericfisherdev/keyhub/internal/config"
)

func runServe(ctx context.Context, cfg *config.Config) error {
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"sweep_interval", cfg.SweepInterval,
		"public_url", cfg.PublicURL,
		"notify", cfg.NotifyURL != "",
	)

	// 1. Open the ledger and connect to the Outline server.
	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()
	slog.Info("outline server connected")

	// 2. Start the expiry sweeper. It stops with sweepCtx, before the
	// database closes.
	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	sweeper := application.NewSweeper(a.keys, cfg.SweepInterval)
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		sweeper.Start(sweepCtx)
	}()

	// 3. Start the status endpoint.
	handler := httphandler.NewRouter(httphandler.NewHandler(a.keys, slog.Default()), slog.Default())
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
	}()

	slog.Info("keyhub started", "listen_addr", cfg.ListenAddr, "sweep_interval", cfg.SweepInterval)

	// 4. Wait for a shutdown signal or a listener failure.
	var runErr error
	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case err := <-srvErr:
		runErr = fmt.Errorf("http server: %w", err)
		slog.Error("http server error, shutting down", "error", err)
	}

	// 5. Graceful shutdown with a 10s drain.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}
	stopSweep()
	<-sweepDone

	slog.Info("shutdown complete")
	return runErr
}

func runSweep(ctx context.Context, cfg *config.Config, stdout io.Writer) error {
	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	deleted, err := application.NewSweeper(a.keys, cfg.SweepInterval).RunOnce(ctx)
	if err != nil {
		return fmt.Errorf("sweeping expired keys: %w", err)
	}
	return printJSON(stdout, map[string]int{"deleted": deleted})
}
