// Package app wires the configured adapters around the matching engine.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/example/ride-pooling/internal/config"
	"github.com/example/ride-pooling/internal/dispatch"
	"github.com/example/ride-pooling/internal/events"
	"github.com/example/ride-pooling/internal/experiment"
	"github.com/example/ride-pooling/internal/matcher"
	"github.com/example/ride-pooling/internal/pairing"
	"github.com/example/ride-pooling/internal/route"
	"github.com/example/ride-pooling/internal/scheduler"
	"github.com/example/ride-pooling/internal/storage"
)

type Store interface {
	storage.Repository
	experiment.Sink
}

type App struct {
	Config    config.Config
	Store     Store
	Oracle    route.Oracle
	Matcher   *matcher.Service
	Publisher events.Publisher
	WS        *dispatch.WSRegistry
	Committer *pairing.Committer
	Scheduler *scheduler.Scheduler

	db     *sql.DB
	redis  *redis.Client
	logger *slog.Logger
}

func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	a := &App{Config: cfg, logger: logger}
	if err := a.build(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.Config

	if cfg.RedisAddr != "" {
		a.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
	}

	if cfg.PGDSN != "" {
		db, err := storage.OpenPostgres(ctx, cfg.PGDSN)
		if err != nil {
			return err
		}
		a.db = db
		if cfg.RunMigrations {
			if err := storage.Migrate(db, a.logger.With("component", "migrate")); err != nil {
				return err
			}
		}
		a.Store = storage.NewPostgresStore(db)
	} else {
		a.logger.Warn("PG_DSN not set, using in-memory store")
		a.Store = storage.NewMemoryStore()
	}

	oracle, err := a.newOracle()
	if err != nil {
		return err
	}
	a.Oracle = oracle
	a.Matcher = matcher.NewService(a.Store, oracle, cfg.Match, a.logger)

	a.Publisher, err = a.newPublisher()
	if err != nil {
		return err
	}

	a.WS = dispatch.NewWSRegistry(a.logger)
	notifiers := dispatch.Fanout{a.WS}
	if cfg.NotifyWebhookURL != "" {
		notifiers = append(notifiers, dispatch.NewWebhook(cfg.NotifyWebhookURL, cfg.NotifyWebhookToken, cfg.NotifyTimeout))
	}
	a.Committer = &pairing.Committer{
		Store:     a.Store,
		Publisher: a.Publisher,
		Notifier:  notifiers,
		Logger:    a.logger.With("component", "committer"),
	}

	var locker scheduler.Locker = &scheduler.LocalLocker{}
	if a.redis != nil {
		locker = scheduler.NewRedisLocker(a.redis, cfg.RedisPrefix+":pooling-pass", cfg.PoolingLockTTL)
	}
	a.Scheduler = scheduler.New(a.Store, a.Matcher, a.Committer, locker, scheduler.Options{
		Interval:   cfg.PoolingInterval,
		MaxPerPass: cfg.PoolingMaxPerPass,
		Expire:     cfg.PoolingExpire,
		ExpireLead: cfg.PoolingExpireLead,
		Rematch:    cfg.PoolingRematch,
		Location:   cfg.Match.Location,
	}, a.logger)
	return nil
}

func (a *App) newOracle() (route.Oracle, error) {
	cfg := a.Config
	var base route.Oracle
	switch cfg.RouteProvider {
	case config.RouteGoogle:
		g, err := route.NewGoogleOracle(cfg.GoogleMapsAPIKey)
		if err != nil {
			return nil, err
		}
		base = g
	case config.RouteStraight:
		// local and deterministic, caching buys nothing
		return route.StraightLine{SpeedMps: cfg.StraightSpeedMps}, nil
	default:
		c := route.NewOSRMClient(cfg.OSRMEndpoint, cfg.RouteTimeout)
		c.Profile = cfg.OSRMProfile
		base = c
	}
	if cfg.RouteCacheTTL <= 0 {
		return base, nil
	}
	var cache route.Cache = route.NewMemoryCache(cfg.RouteCacheTTL)
	if a.redis != nil {
		cache = route.NewRedisCache(a.redis, cfg.RedisPrefix, cfg.RouteCacheTTL, a.logger)
	}
	return &route.Cached{Next: base, Cache: cache}, nil
}

func (a *App) newPublisher() (events.Publisher, error) {
	cfg := a.Config
	var pubs events.Fanout
	if len(cfg.KafkaBrokers) > 0 {
		pubs = append(pubs, events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic))
	}
	if cfg.AMQPURL != "" {
		p, err := events.DialAMQP(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			_ = pubs.Close()
			return nil, err
		}
		pubs = append(pubs, p)
	}
	switch len(pubs) {
	case 0:
		return events.Nop{}, nil
	case 1:
		return pubs[0], nil
	}
	return pubs, nil
}

// Close releases every connection opened by Build.
func (a *App) Close() error {
	var errs []error
	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}
	if a.Publisher != nil {
		errs = append(errs, a.Publisher.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}
