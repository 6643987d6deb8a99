package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/ride-pooling/internal/app"
	"github.com/example/ride-pooling/internal/config"
	"github.com/example/ride-pooling/internal/experiment"
	"github.com/example/ride-pooling/internal/logging"
)

func main() {
	var scenario, date string
	flag.StringVar(&scenario, "scenario", "full-run", "scenario name stored with every evaluation log")
	flag.StringVar(&date, "date", "", "target date to evaluate (YYYY-MM-DD)")
	flag.Parse()

	cfg, err := config.Load()
	logger := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		logger.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	if date == "" {
		logger.Error("-date is required")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "err", err)
		os.Exit(1)
	}
	defer a.Close()

	r := &experiment.Runner{
		Source:      a.Store,
		Matcher:     a.Matcher,
		Sink:        a.Store,
		PoolingWait: cfg.Match.Deadline,
		Logger:      logger.With("component", "experiment"),
	}
	sum, err := r.Run(ctx, scenario, date)
	if err != nil {
		logger.Error("evaluation failed", "err", err)
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(sum)
}
