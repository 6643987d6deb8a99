package pairing

import (
	"context"
	"errors"
	"testing"

	"github.com/example/ride-pooling/internal/matcher"
	"github.com/example/ride-pooling/internal/models"
	"github.com/example/ride-pooling/internal/storage"
)

type fakePublisher struct {
	events []models.MatchEvent
	err    error
}

func (f *fakePublisher) PublishMatch(_ context.Context, ev models.MatchEvent) error {
	f.events = append(f.events, ev)
	return f.err
}
func (f *fakePublisher) Close() error { return nil }

type fakeNotifier struct{ users []string }

func (f *fakeNotifier) Notify(_ context.Context, userID string, _ models.MatchEvent) error {
	f.users = append(f.users, userID)
	return nil
}

func seed(t *testing.T, store *storage.MemoryStore, user string, status models.Status) models.CandidateRecord {
	t.Helper()
	rec := &models.CandidateRecord{UserID: user, Status: status, Request: models.TripRequest{TargetDate: "2026-01-20", DepartureTime: "09:00"}}
	if err := store.Save(context.Background(), rec); err != nil {
		t.Fatal(err)
	}
	return *rec
}

func matchedDecision(partner models.CandidateRecord) matcher.Decision {
	return matcher.Decision{
		Mode:    matcher.ModeBatch,
		Outcome: matcher.OutcomeMatched,
		Partner: &partner,
		Score:   &matcher.ScoreBreakdown{Total: 0.85},
		Rule:    matcher.RuleSRank,
	}
}

func TestCommitClaimsPublishesAndNotifies(t *testing.T) {
	store := storage.NewMemoryStore()
	s := seed(t, store, "u1", models.StatusPooling)
	p := seed(t, store, "u2", models.StatusActive)
	pub := &fakePublisher{err: errors.New("broker down")}
	notif := &fakeNotifier{}
	c := &Committer{Store: store, Publisher: pub, Notifier: notif}

	ev, err := c.Commit(context.Background(), matcher.SearcherFromRecord(s), matchedDecision(p))
	if err != nil {
		t.Fatalf("publish failure must not fail the commit: %v", err)
	}
	if ev.EventID == "" || ev.Score != 0.85 || ev.Rule != "s_rank" || ev.PartnerUserID != "u2" {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if len(pub.events) != 1 {
		t.Fatalf("expected one publish, got %d", len(pub.events))
	}
	if len(notif.users) != 2 {
		t.Fatalf("expected both users notified, got %v", notif.users)
	}
	got, _ := store.Get(context.Background(), s.ID)
	if got.Status != models.StatusMatched || got.PartnerID != p.ID {
		t.Fatalf("searcher not committed: %+v", got)
	}
}

func TestCommitConflictLeavesSearcherOpen(t *testing.T) {
	store := storage.NewMemoryStore()
	s := seed(t, store, "u1", models.StatusPooling)
	p := seed(t, store, "u2", models.StatusMatched)
	pub := &fakePublisher{}
	c := &Committer{Store: store, Publisher: pub}

	_, err := c.Commit(context.Background(), matcher.SearcherFromRecord(s), matchedDecision(p))
	if !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if len(pub.events) != 0 {
		t.Fatal("nothing may be published on conflict")
	}
	got, _ := store.Get(context.Background(), s.ID)
	if got.Status != models.StatusPooling {
		t.Fatalf("searcher must stay pooling, got %s", got.Status)
	}
}

func TestCommitRejectsNonMatched(t *testing.T) {
	c := &Committer{Store: storage.NewMemoryStore()}
	_, err := c.Commit(context.Background(), matcher.Searcher{ID: "x"}, matcher.Decision{Outcome: matcher.OutcomePooling})
	if !errors.Is(err, matcher.ErrInvalidRequest) {
		t.Fatalf("expected invalid request, got %v", err)
	}
}
