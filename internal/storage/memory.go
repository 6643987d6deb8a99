package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/ride-pooling/internal/models"
)

type memRecord struct {
	rec models.CandidateRecord
	seq int
}

type MemoryStore struct {
	mu    sync.RWMutex
	rows  map[string]*memRecord
	seq   int
	evals []models.EvaluationLog
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]*memRecord), now: time.Now}
}

func (m *MemoryStore) Save(_ context.Context, rec *models.CandidateRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Status == "" {
		rec.Status = models.StatusActive
	}
	now := m.now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	m.seq++
	m.rows[rec.ID] = &memRecord{rec: *rec, seq: m.seq}
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (models.CandidateRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rows[id]
	if !ok {
		return models.CandidateRecord{}, ErrNotFound
	}
	return r.rec, nil
}

func (m *MemoryStore) Candidates(_ context.Context, q CandidateQuery) ([]models.CandidateRecord, error) {
	m.mu.RLock()
	matched := make([]*memRecord, 0, len(m.rows))
	for _, r := range m.rows {
		if !statusIn(r.rec.Status, q.Statuses) {
			continue
		}
		if q.TargetDate != "" && r.rec.Request.TargetDate != q.TargetDate {
			continue
		}
		if q.ExcludeUserID != "" && r.rec.UserID == q.ExcludeUserID {
			continue
		}
		matched = append(matched, r)
	}
	m.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.rec.CreatedAt.Equal(b.rec.CreatedAt) {
			return a.rec.CreatedAt.Before(b.rec.CreatedAt)
		}
		return a.seq < b.seq
	})
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	out := make([]models.CandidateRecord, len(matched))
	for i, r := range matched {
		out[i] = r.rec
	}
	return out, nil
}

func (m *MemoryStore) Transition(_ context.Context, id string, from []models.Status, to models.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return ErrNotFound
	}
	if !statusIn(r.rec.Status, from) {
		return ErrConflict
	}
	r.rec.Status = to
	r.rec.UpdatedAt = m.now().UTC()
	return nil
}

func (m *MemoryStore) ClaimPair(_ context.Context, searcherID, partnerID string) error {
	if searcherID == partnerID {
		return ErrConflict
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.rows[searcherID]
	if !ok {
		return ErrNotFound
	}
	b, ok := m.rows[partnerID]
	if !ok {
		return ErrNotFound
	}
	if !a.rec.Status.IsOpen() || !b.rec.Status.IsOpen() {
		return ErrConflict
	}
	now := m.now().UTC()
	a.rec.Status, a.rec.PartnerID, a.rec.PartnerUserID, a.rec.UpdatedAt = models.StatusMatched, b.rec.ID, b.rec.UserID, now
	b.rec.Status, b.rec.PartnerID, b.rec.PartnerUserID, b.rec.UpdatedAt = models.StatusMatched, a.rec.ID, a.rec.UserID, now
	return nil
}

func (m *MemoryStore) SaveEvaluation(_ context.Context, log models.EvaluationLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if log.CreatedAt.IsZero() {
		log.CreatedAt = m.now().UTC()
	}
	m.evals = append(m.evals, log)
	return nil
}

// Evaluations returns the logs saved for scenario, or all of them when scenario is empty.
func (m *MemoryStore) Evaluations(scenario string) []models.EvaluationLog {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.EvaluationLog
	for _, e := range m.evals {
		if scenario == "" || e.Scenario == scenario {
			out = append(out, e)
		}
	}
	return out
}
