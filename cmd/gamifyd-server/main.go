package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx := context.Background()
	app, err := BuildApp(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize app: %v\n", err)
		os.Exit(1)
	}

	cfg := app.Config
	log := app.Logger

	log.Info("starting gamifyd server",
		"environment", cfg.Environment,
		"address", cfg.Server.Address,
		"storage_adapter", cfg.Storage.Adapter,
		"leaderboard", cfg.Leaderboard.Enabled)

	go func() {
		log.Info("server listening", "address", cfg.Server.Address)
		if err := app.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	if app.MetricsServer != nil {
		go func() {
			srv := (*http.Server)(app.MetricsServer)
			log.Info("metrics listening", "address", srv.Addr, "path", cfg.Metrics.Path)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("failed to start metrics server", "error", err)
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server", "timeout", cfg.Server.ShutdownTimeout)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := app.Server.Shutdown(shutdownCtx); err != nil {
		log.Error("error during server shutdown", "error", err)
		os.Exit(1)
	}
	if app.MetricsServer != nil {
		_ = (*http.Server)(app.MetricsServer).Shutdown(shutdownCtx)
	}
	app.Service.Close()

	log.Info("server stopped")
}
