package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/ride-pooling/internal/app"
	"github.com/example/ride-pooling/internal/config"
	httpapi "github.com/example/ride-pooling/internal/http"
	"github.com/example/ride-pooling/internal/logging"
)

func main() {
	cfg, err := config.Load()
	logger := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		logger.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "err", err)
		os.Exit(1)
	}
	defer a.Close()

	deps := httpapi.Deps{Store: a.Store, Matcher: a.Matcher, Committer: a.Committer, Pooling: a.Scheduler, WS: a.WS}
	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      httpapi.NewServer(deps, logger),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	if cfg.PoolingEnabled {
		a.Scheduler.Start(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("ride-pooling listening", "addr", cfg.HTTPAddr, "route_provider", cfg.RouteProvider, "pooling", cfg.PoolingEnabled)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "err", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "err", err)
	}
	logger.Info("server stopped")
}
