package storage

import (
	"context"
	"errors"

	"github.com/example/ride-pooling/internal/models"
)

var (
	ErrNotFound = errors.New("trip request not found")
	// ErrConflict means a conditional update lost: the row is no longer in an expected status.
	ErrConflict = errors.New("trip request status changed concurrently")
)

// CandidateQuery selects open requests. Empty TargetDate and ExcludeUserID match everything,
// Limit <= 0 means unbounded.
type CandidateQuery struct {
	Statuses      []models.Status
	TargetDate    string
	ExcludeUserID string
	Limit         int
}

// Repository persists trip requests. Results are ordered by creation time, then id.
type Repository interface {
	Candidates(ctx context.Context, q CandidateQuery) ([]models.CandidateRecord, error)
	Get(ctx context.Context, id string) (models.CandidateRecord, error)
	// Save inserts rec, assigning an id and timestamps when missing.
	Save(ctx context.Context, rec *models.CandidateRecord) error
	// Transition moves id to status to, only while its current status is one of from.
	Transition(ctx context.Context, id string, from []models.Status, to models.Status) error
	// ClaimPair marks both requests matched to each other, only while both are still open.
	ClaimPair(ctx context.Context, searcherID, partnerID string) error
}

func statusIn(s models.Status, set []models.Status) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}
