package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/example/ride-pooling/internal/models"
	"github.com/example/ride-pooling/internal/observability"
)

// Publisher announces committed matches to downstream consumers.
type Publisher interface {
	PublishMatch(ctx context.Context, ev models.MatchEvent) error
	Close() error
}

type Nop struct{}

func (Nop) PublishMatch(context.Context, models.MatchEvent) error { return nil }
func (Nop) Close() error                                          { return nil }

// DecodeMatch parses a MatchEvent payload as written by the publishers.
func DecodeMatch(b []byte) (models.MatchEvent, error) {
	var ev models.MatchEvent
	if err := json.Unmarshal(b, &ev); err != nil {
		return models.MatchEvent{}, fmt.Errorf("decode match event: %w", err)
	}
	if ev.SearcherUserID == "" || ev.PartnerUserID == "" {
		return models.MatchEvent{}, errors.New("decode match event: missing user ids")
	}
	return ev, nil
}

func record(backend string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	observability.EventsPublished.WithLabelValues(backend, result).Inc()
}

// Fanout publishes to every backend and joins their errors.
type Fanout []Publisher

func (f Fanout) PublishMatch(ctx context.Context, ev models.MatchEvent) error {
	var errs []error
	for _, p := range f {
		if err := p.PublishMatch(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f Fanout) Close() error {
	var errs []error
	for _, p := range f {
		errs = append(errs, p.Close())
	}
	return errors.Join(errs...)
}
