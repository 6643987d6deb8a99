package config

import (
	"strings"
	"testing"
	"time"
	_ "time/tzdata"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("defaults must load: %v", err)
	}
	if cfg.PoolingInterval != 5*time.Minute || cfg.PoolingLockTTL != cfg.PoolingInterval || !cfg.PoolingRematch {
		t.Fatalf("unexpected pooling defaults: %v / %v", cfg.PoolingInterval, cfg.PoolingLockTTL)
	}
	if cfg.Match.ImmediateFloor != 0.4 || cfg.Match.SRankThreshold != 0.8 || cfg.Match.BRankThreshold != 0.5 {
		t.Fatalf("unexpected thresholds: %+v", cfg.Match)
	}
	if cfg.RouteProvider != RouteOSRM || cfg.KafkaTopic != "trip-matches" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("MATCH_S_THRESHOLD", "0.85")
	t.Setenv("MATCH_DEADLINE", "45m")
	t.Setenv("MATCH_TIMEZONE", "Asia/Tokyo")
	t.Setenv("POOLING_EXPIRE", "false")
	t.Setenv("POOLING_REMATCH", "false")
	t.Setenv("POOLING_INTERVAL", "1m")
	t.Setenv("ROUTE_PROVIDER", "StraightLine")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Fatalf("brokers not split: %v", cfg.KafkaBrokers)
	}
	if cfg.Match.SRankThreshold != 0.85 || cfg.Match.Deadline != 45*time.Minute {
		t.Fatalf("match overrides not applied: %+v", cfg.Match)
	}
	if cfg.Match.Location.String() != "Asia/Tokyo" {
		t.Fatalf("timezone not applied: %v", cfg.Match.Location)
	}
	if cfg.PoolingExpire || cfg.PoolingRematch || cfg.PoolingLockTTL != time.Minute {
		t.Fatalf("pooling overrides not applied: %+v", cfg)
	}
	if cfg.RouteProvider != RouteStraight {
		t.Fatalf("provider not normalized: %q", cfg.RouteProvider)
	}
}

func TestLoadJoinsErrors(t *testing.T) {
	t.Setenv("HTTP_READ_TIMEOUT", "soon")
	t.Setenv("ROUTE_PROVIDER", "google")
	t.Setenv("MATCH_B_THRESHOLD", "0.9")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"HTTP_READ_TIMEOUT", "GOOGLE_MAPS_API_KEY", "B threshold"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("missing %q in %v", want, err)
		}
	}
}
