package pairing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/example/ride-pooling/internal/dispatch"
	"github.com/example/ride-pooling/internal/events"
	"github.com/example/ride-pooling/internal/matcher"
	"github.com/example/ride-pooling/internal/models"
	"github.com/example/ride-pooling/internal/observability"
	"github.com/example/ride-pooling/internal/storage"
)

type Claimer interface {
	ClaimPair(ctx context.Context, searcherID, partnerID string) error
}

// Committer persists a matched decision and announces it.
type Committer struct {
	Store     Claimer
	Publisher events.Publisher
	Notifier  dispatch.Notifier
	Now       func() time.Time
	Logger    *slog.Logger
}

// Commit claims both requests. A storage.ErrConflict result means the partner was taken
// and the searcher was left untouched. Publish and notify failures are logged only.
func (c *Committer) Commit(ctx context.Context, searcher matcher.Searcher, d matcher.Decision) (models.MatchEvent, error) {
	if d.Outcome != matcher.OutcomeMatched || d.Partner == nil {
		return models.MatchEvent{}, fmt.Errorf("commit %s decision: %w", d.Outcome, matcher.ErrInvalidRequest)
	}
	partner := d.Partner
	if err := c.Store.ClaimPair(ctx, searcher.ID, partner.ID); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			observability.ClaimConflicts.WithLabelValues("repository").Inc()
		}
		return models.MatchEvent{}, fmt.Errorf("claim %s+%s: %w", searcher.ID, partner.ID, err)
	}
	observability.MatchesCommitted.WithLabelValues(string(d.Mode)).Inc()

	ev := models.MatchEvent{
		EventID:        uuid.NewString(),
		SearcherID:     searcher.ID,
		SearcherUserID: searcher.UserID,
		PartnerID:      partner.ID,
		PartnerUserID:  partner.UserID,
		Mode:           string(d.Mode),
		Rule:           string(d.Rule),
		TargetDate:     searcher.Request.TargetDate,
		DepartureTime:  searcher.Request.DepartureTime,
		MatchedAt:      c.now().UTC(),
	}
	if d.Score != nil {
		ev.Score = d.Score.Total
	}
	log := c.log().With("event_id", ev.EventID, "searcher", ev.SearcherID, "partner", ev.PartnerID)
	log.Info("match committed", "mode", ev.Mode, "rule", ev.Rule, "score", ev.Score)

	if c.Publisher != nil {
		if err := c.Publisher.PublishMatch(ctx, ev); err != nil {
			log.Warn("publish match event failed", "err", err)
		}
	}
	if c.Notifier != nil {
		if err := dispatch.NotifyPair(ctx, c.Notifier, ev); err != nil {
			log.Warn("notify match failed", "err", err)
		}
	}
	return ev, nil
}

func (c *Committer) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Committer) log() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
