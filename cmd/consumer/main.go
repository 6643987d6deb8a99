package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"

	"github.com/example/ride-pooling/internal/config"
	"github.com/example/ride-pooling/internal/dispatch"
	"github.com/example/ride-pooling/internal/events"
	"github.com/example/ride-pooling/internal/logging"
	"github.com/example/ride-pooling/internal/models"
)

var (
	msgsConsumed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_messages_consumed_total",
		Help: "Total match event messages consumed",
	})
	msgsInvalid = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_messages_invalid_total",
		Help: "Total invalid messages received",
	})
	notifyDelivered = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_notifications_delivered_total",
		Help: "Total notifications delivered",
	})
	notifyErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_notification_errors_total",
		Help: "Total notifications that failed after all retries",
	})
)

func init() {
	prometheus.MustRegister(msgsConsumed, msgsInvalid, notifyDelivered, notifyErrors)
}

func main() {
	cfg, err := config.Load()
	logger := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		logger.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	if cfg.NotifyWebhookURL == "" {
		logger.Error("NOTIFY_WEBHOOK_URL is required")
		os.Exit(1)
	}
	brokers := cfg.KafkaBrokers
	if len(brokers) == 0 {
		brokers = []string{"localhost:9092"}
	}
	notifier := dispatch.NewWebhook(cfg.NotifyWebhookURL, cfg.NotifyWebhookToken, cfg.NotifyTimeout)

	go serveHealth(cfg.MetricsAddr, brokers[0], logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := kafka.NewReader(kafka.ReaderConfig{Brokers: brokers, Topic: cfg.KafkaTopic, GroupID: cfg.KafkaGroupID, MinBytes: 1, MaxBytes: 10e6})
	defer func() { _ = r.Close() }()

	logger.Info("consumer listening", "topic", cfg.KafkaTopic, "brokers", brokers, "group", cfg.KafkaGroupID)

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("shutting down consumer")
				return
			}
			logger.Warn("kafka read error", "err", err, "backoff", backoff.String())
			if !wait(ctx, backoff) {
				logger.Info("shutting down consumer")
				return
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		backoff = time.Second
		msgsConsumed.Inc()

		ev, err := events.DecodeMatch(m.Value)
		if err != nil {
			msgsInvalid.Inc()
			logger.Warn("invalid message", "err", err, "offset", m.Offset)
			continue
		}
		for _, user := range []string{ev.SearcherUserID, ev.PartnerUserID} {
			if err := notifyWithRetry(ctx, notifier, user, ev, cfg.ConsumerMaxRetries, cfg.ConsumerBackoff); err != nil {
				notifyErrors.Inc()
				logger.Error("notification failed", "event_id", ev.EventID, "user", user, "err", err)
				continue
			}
			notifyDelivered.Inc()
		}
	}
}

func serveHealth(addr, broker string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		// readiness: broker reachable
		d := net.Dialer{Timeout: time.Second}
		conn, err := d.DialContext(r.Context(), "tcp", broker)
		if err != nil {
			http.Error(w, "kafka not ready", 503)
			return
		}
		_ = conn.Close()
		w.WriteHeader(200)
		w.Write([]byte("ready"))
	})
	logger.Info("metrics/health listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Warn("metrics server stopped", "err", err)
	}
}

// notifyWithRetry delivers ev to userID, doubling delay between attempts.
func notifyWithRetry(ctx context.Context, n dispatch.Notifier, userID string, ev models.MatchEvent, attempts int, delay time.Duration) error {
	var errs []error
	for i := 0; i < attempts; i++ {
		err := n.Notify(ctx, userID, ev)
		if err == nil {
			return nil
		}
		errs = append(errs, err)
		if i == attempts-1 {
			break
		}
		if !wait(ctx, delay) {
			return errors.Join(append(errs, ctx.Err())...)
		}
		delay *= 2
	}
	return fmt.Errorf("after %d attempts: %w", attempts, errors.Join(errs...))
}

// wait sleeps for d and reports false if ctx ends first.
func wait(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
