package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/ride-pooling/internal/models"
)

func record(user, date string, status models.Status) *models.CandidateRecord {
	return &models.CandidateRecord{
		UserID: user,
		Status: status,
		Request: models.TripRequest{
			TargetDate:    date,
			DepartureTime: "09:00",
		},
	}
}

func TestMemoryCandidatesFiltersAndOrders(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	base := time.Date(2026, 1, 20, 8, 0, 0, 0, time.UTC)
	tick := 0
	m.now = func() time.Time { tick++; return base.Add(time.Duration(tick) * time.Second) }

	first := record("u1", "2026-01-20", models.StatusActive)
	second := record("u2", "2026-01-20", models.StatusPooling)
	other := record("u3", "2026-01-21", models.StatusActive)
	self := record("me", "2026-01-20", models.StatusActive)
	done := record("u4", "2026-01-20", models.StatusMatched)
	for _, r := range []*models.CandidateRecord{first, second, other, self, done} {
		if err := m.Save(ctx, r); err != nil {
			t.Fatal(err)
		}
		if r.ID == "" {
			t.Fatal("expected generated id")
		}
	}

	got, err := m.Candidates(ctx, CandidateQuery{
		Statuses:      []models.Status{models.StatusActive, models.StatusPooling},
		TargetDate:    "2026-01-20",
		ExcludeUserID: "me",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != first.ID || got[1].ID != second.ID {
		t.Fatalf("unexpected candidates: %+v", got)
	}

	limited, _ := m.Candidates(ctx, CandidateQuery{Statuses: []models.Status{models.StatusActive}, Limit: 1})
	if len(limited) != 1 || limited[0].ID != first.ID {
		t.Fatalf("limit not applied: %+v", limited)
	}
}

func TestMemoryClaimPair(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	a := record("ua", "2026-01-20", models.StatusPooling)
	b := record("ub", "2026-01-20", models.StatusActive)
	c := record("uc", "2026-01-20", models.StatusPooling)
	for _, r := range []*models.CandidateRecord{a, b, c} {
		_ = m.Save(ctx, r)
	}

	if err := m.ClaimPair(ctx, a.ID, b.ID); err != nil {
		t.Fatalf("claim: %v", err)
	}
	gotA, _ := m.Get(ctx, a.ID)
	gotB, _ := m.Get(ctx, b.ID)
	if gotA.Status != models.StatusMatched || gotA.PartnerID != b.ID || gotA.PartnerUserID != "ub" {
		t.Fatalf("searcher not linked: %+v", gotA)
	}
	if gotB.Status != models.StatusMatched || gotB.PartnerID != a.ID {
		t.Fatalf("partner not linked: %+v", gotB)
	}

	if err := m.ClaimPair(ctx, c.ID, b.ID); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict on claimed partner, got %v", err)
	}
	gotC, _ := m.Get(ctx, c.ID)
	if gotC.Status != models.StatusPooling {
		t.Fatalf("losing searcher must stay pooling, got %s", gotC.Status)
	}
	if err := m.ClaimPair(ctx, c.ID, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := m.ClaimPair(ctx, c.ID, c.ID); !errors.Is(err, ErrConflict) {
		t.Fatalf("self claim must conflict, got %v", err)
	}
}

func TestMemoryTransition(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	r := record("u1", "2026-01-20", models.StatusActive)
	_ = m.Save(ctx, r)

	if err := m.Transition(ctx, r.ID, []models.Status{models.StatusActive}, models.StatusPooling); err != nil {
		t.Fatal(err)
	}
	if err := m.Transition(ctx, r.ID, []models.Status{models.StatusActive}, models.StatusFailed); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if err := m.Transition(ctx, "nope", []models.Status{models.StatusActive}, models.StatusFailed); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMemoryEvaluations(t *testing.T) {
	m := NewMemoryStore()
	_ = m.SaveEvaluation(context.Background(), models.EvaluationLog{Scenario: "a"})
	_ = m.SaveEvaluation(context.Background(), models.EvaluationLog{Scenario: "b"})
	if got := m.Evaluations("a"); len(got) != 1 || got[0].CreatedAt.IsZero() {
		t.Fatalf("unexpected logs: %+v", got)
	}
	if got := m.Evaluations(""); len(got) != 2 {
		t.Fatalf("expected all logs, got %d", len(got))
	}
}
