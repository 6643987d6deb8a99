package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/example/ride-pooling/internal/matcher"
)

const (
	RouteOSRM     = "osrm"
	RouteGoogle   = "google"
	RouteStraight = "straightline"
)

// Config captures all tunable parameters shared by the binaries.
// Values are loaded from environment variables with defaults that run locally
// without Postgres, Redis or a broker.
type Config struct {
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string

	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string

	AMQPURL      string
	AMQPExchange string

	PGDSN         string
	RunMigrations bool

	RouteProvider    string
	OSRMEndpoint     string
	OSRMProfile      string
	RouteTimeout     time.Duration
	GoogleMapsAPIKey string
	RouteCacheTTL    time.Duration
	StraightSpeedMps float64

	Match    matcher.Params
	Timezone string

	PoolingEnabled    bool
	PoolingInterval   time.Duration
	PoolingMaxPerPass int
	PoolingExpire     bool
	PoolingExpireLead time.Duration
	PoolingRematch    bool
	PoolingLockTTL    time.Duration

	NotifyWebhookURL   string
	NotifyWebhookToken string
	NotifyTimeout      time.Duration

	ConsumerMaxRetries int
	ConsumerBackoff    time.Duration
	MetricsAddr        string

	LogLevel  string
	LogFormat string
}

func defaultConfig() Config {
	return Config{
		HTTPAddr:           ":8080",
		ReadTimeout:        5 * time.Second,
		WriteTimeout:       10 * time.Second,
		IdleTimeout:        120 * time.Second,
		ShutdownTimeout:    15 * time.Second,
		RedisPrefix:        "ride-pooling",
		KafkaTopic:         "trip-matches",
		KafkaGroupID:       "match-notifier",
		AMQPExchange:       "trip.matches",
		RouteProvider:      RouteOSRM,
		OSRMEndpoint:       "https://router.project-osrm.org",
		OSRMProfile:        "driving",
		RouteTimeout:       2 * time.Second,
		RouteCacheTTL:      10 * time.Minute,
		StraightSpeedMps:   8,
		Match:              matcher.DefaultParams(),
		Timezone:           "Local",
		PoolingEnabled:     true,
		PoolingInterval:    5 * time.Minute,
		PoolingMaxPerPass:  500,
		PoolingExpire:      true,
		PoolingRematch:     true,
		NotifyTimeout:      3 * time.Second,
		ConsumerMaxRetries: 5,
		ConsumerBackoff:    200 * time.Millisecond,
		MetricsAddr:        ":2112",
		LogLevel:           "info",
		LogFormat:          "json",
	}
}

func Load() (Config, error) {
	cfg := defaultConfig()
	var errs []error

	setStringFromEnv(&cfg.HTTPAddr, "HTTP_ADDR")
	setDurationFromEnv(&cfg.ReadTimeout, "HTTP_READ_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.WriteTimeout, "HTTP_WRITE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.IdleTimeout, "HTTP_IDLE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setIntFromEnv(&cfg.RedisDB, "REDIS_DB", &errs)
	setStringFromEnv(&cfg.RedisPrefix, "REDIS_PREFIX")

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")
	setStringFromEnv(&cfg.KafkaGroupID, "KAFKA_GROUP_ID")

	cfg.AMQPURL = strings.TrimSpace(os.Getenv("AMQP_URL"))
	setStringFromEnv(&cfg.AMQPExchange, "AMQP_EXCHANGE")

	cfg.PGDSN = os.Getenv("PG_DSN")
	setBoolFromEnv(&cfg.RunMigrations, "MIGRATE", &errs)

	if v := strings.TrimSpace(os.Getenv("ROUTE_PROVIDER")); v != "" {
		cfg.RouteProvider = strings.ToLower(v)
	}
	setStringFromEnv(&cfg.OSRMEndpoint, "OSRM_ENDPOINT")
	setStringFromEnv(&cfg.OSRMProfile, "OSRM_PROFILE")
	setDurationFromEnv(&cfg.RouteTimeout, "ROUTE_TIMEOUT", &errs)
	cfg.GoogleMapsAPIKey = strings.TrimSpace(os.Getenv("GOOGLE_MAPS_API_KEY"))
	setDurationFromEnv(&cfg.RouteCacheTTL, "ROUTE_CACHE_TTL", &errs)
	setFloatFromEnv(&cfg.StraightSpeedMps, "STRAIGHT_SPEED_MPS", &errs)

	setFloatFromEnv(&cfg.Match.SpecialLossMinutes, "MATCH_SPECIAL_LOSS_MIN", &errs)
	setFloatFromEnv(&cfg.Match.MaxLossMinutes, "MATCH_MAX_LOSS_MIN", &errs)
	setFloatFromEnv(&cfg.Match.MaxDetourRatio, "MATCH_MAX_DETOUR_RATIO", &errs)
	setFloatFromEnv(&cfg.Match.TimeWeight, "MATCH_TIME_WEIGHT", &errs)
	setFloatFromEnv(&cfg.Match.RouteWeight, "MATCH_ROUTE_WEIGHT", &errs)
	setFloatFromEnv(&cfg.Match.ImmediateFloor, "MATCH_IMMEDIATE_FLOOR", &errs)
	setFloatFromEnv(&cfg.Match.SRankThreshold, "MATCH_S_THRESHOLD", &errs)
	setFloatFromEnv(&cfg.Match.BRankThreshold, "MATCH_B_THRESHOLD", &errs)
	setDurationFromEnv(&cfg.Match.Deadline, "MATCH_DEADLINE", &errs)
	setStringFromEnv(&cfg.Timezone, "MATCH_TIMEZONE")
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		errs = append(errs, fmt.Errorf("invalid MATCH_TIMEZONE: %w", err))
	} else {
		cfg.Match.Location = loc
	}

	setBoolFromEnv(&cfg.PoolingEnabled, "POOLING_ENABLED", &errs)
	setDurationFromEnv(&cfg.PoolingInterval, "POOLING_INTERVAL", &errs)
	setIntFromEnv(&cfg.PoolingMaxPerPass, "POOLING_MAX_PER_PASS", &errs)
	setBoolFromEnv(&cfg.PoolingExpire, "POOLING_EXPIRE", &errs)
	setDurationFromEnv(&cfg.PoolingExpireLead, "POOLING_EXPIRE_LEAD", &errs)
	setBoolFromEnv(&cfg.PoolingRematch, "POOLING_REMATCH", &errs)
	setDurationFromEnv(&cfg.PoolingLockTTL, "POOLING_LOCK_TTL", &errs)
	if cfg.PoolingLockTTL == 0 {
		cfg.PoolingLockTTL = cfg.PoolingInterval
	}

	cfg.NotifyWebhookURL = strings.TrimSpace(os.Getenv("NOTIFY_WEBHOOK_URL"))
	cfg.NotifyWebhookToken = os.Getenv("NOTIFY_WEBHOOK_TOKEN")
	setDurationFromEnv(&cfg.NotifyTimeout, "NOTIFY_TIMEOUT", &errs)

	setIntFromEnv(&cfg.ConsumerMaxRetries, "CONSUMER_MAX_RETRIES", &errs)
	setDurationFromEnv(&cfg.ConsumerBackoff, "CONSUMER_BACKOFF", &errs)
	setStringFromEnv(&cfg.MetricsAddr, "METRICS_ADDR")

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.LogFormat = strings.ToLower(v)
	}

	switch cfg.RouteProvider {
	case RouteOSRM, RouteStraight:
	case RouteGoogle:
		if cfg.GoogleMapsAPIKey == "" {
			errs = append(errs, errors.New("GOOGLE_MAPS_API_KEY is required for ROUTE_PROVIDER=google"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown ROUTE_PROVIDER %q", cfg.RouteProvider))
	}
	if cfg.PoolingInterval <= 0 {
		errs = append(errs, errors.New("POOLING_INTERVAL must be > 0"))
	}
	if cfg.PoolingMaxPerPass < 0 {
		errs = append(errs, errors.New("POOLING_MAX_PER_PASS must be >= 0"))
	}
	if cfg.ConsumerMaxRetries < 1 {
		errs = append(errs, errors.New("CONSUMER_MAX_RETRIES must be >= 1"))
	}
	if err := cfg.Match.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("match parameters: %w", err))
	}

	return cfg, errors.Join(errs...)
}

func setDurationFromEnv(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setFloatFromEnv(target *float64, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = f
	}
}

func setIntFromEnv(target *int, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = i
	}
}

func setBoolFromEnv(target *bool, key string, errs *[]error) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = b
	}
}

func setStringFromEnv(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
