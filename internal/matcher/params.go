package matcher

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/example/ride-pooling/internal/models"
)

// Params holds every tunable of the matching pipeline. Both modes share the scorer;
// they differ only in pool statuses and acceptance thresholds.
type Params struct {
	SpecialLossMinutes float64 // absolute loss accepted regardless of ratio
	MaxLossMinutes     float64
	MaxDetourRatio     float64
	RouteScoreFloor    float64

	TimeWeight  float64
	RouteWeight float64

	// ImmediateFloor must be strictly exceeded by an immediate winner.
	ImmediateFloor float64
	SRankThreshold float64
	BRankThreshold float64
	// Deadline is how close to departure a B-rank match is accepted.
	Deadline time.Duration

	ImmediateStatuses []models.Status
	BatchStatuses     []models.Status

	Location *time.Location
}

// DefaultParams returns the production defaults.
func DefaultParams() Params {
	return Params{
		SpecialLossMinutes: 5,
		MaxLossMinutes:     10,
		MaxDetourRatio:     1.6,
		RouteScoreFloor:    0.1,
		TimeWeight:         0.7,
		RouteWeight:        0.3,
		ImmediateFloor:     0.4,
		SRankThreshold:     0.8,
		BRankThreshold:     0.5,
		Deadline:           60 * time.Minute,
		ImmediateStatuses:  []models.Status{models.StatusActive},
		BatchStatuses:      []models.Status{models.StatusActive, models.StatusPooling},
		Location:           time.Local,
	}
}

func (p Params) Validate() error {
	var errs []error
	if p.MaxDetourRatio <= 1 {
		errs = append(errs, fmt.Errorf("max detour ratio must be > 1, got %v", p.MaxDetourRatio))
	}
	if p.SpecialLossMinutes < 0 || p.MaxLossMinutes < 0 {
		errs = append(errs, errors.New("loss limits must be >= 0"))
	}
	if p.RouteScoreFloor < 0 || p.RouteScoreFloor > 1 {
		errs = append(errs, fmt.Errorf("route score floor must be in [0,1], got %v", p.RouteScoreFloor))
	}
	if p.TimeWeight < 0 || p.RouteWeight < 0 || math.Abs(p.TimeWeight+p.RouteWeight-1) > 1e-9 {
		errs = append(errs, fmt.Errorf("weights must be >= 0 and sum to 1, got %v + %v", p.TimeWeight, p.RouteWeight))
	}
	for name, v := range map[string]float64{"immediate floor": p.ImmediateFloor, "S threshold": p.SRankThreshold, "B threshold": p.BRankThreshold} {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("%s must be in [0,1], got %v", name, v))
		}
	}
	if p.BRankThreshold > p.SRankThreshold {
		errs = append(errs, errors.New("B threshold must not exceed S threshold"))
	}
	if p.Deadline < 0 {
		errs = append(errs, errors.New("deadline must be >= 0"))
	}
	if len(p.ImmediateStatuses) == 0 || len(p.BatchStatuses) == 0 {
		errs = append(errs, errors.New("candidate statuses must not be empty"))
	}
	return errors.Join(errs...)
}

func (p Params) location() *time.Location {
	if p.Location == nil {
		return time.Local
	}
	return p.Location
}
