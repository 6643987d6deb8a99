package matcher

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/ride-pooling/internal/models"
	"github.com/example/ride-pooling/internal/route"
)

var ErrDegenerateRoute = errors.New("solo route has zero duration")

// Detour is the cost of carrying the searcher along the candidate's trip.
type Detour struct {
	Solo            models.RouteResult
	Shared          models.RouteResult
	TimeLossMinutes float64
	Ratio           float64
	Efficient       bool
}

// Evaluator inserts the searcher between the candidate's pickup and drop-off.
// Only that one ordering is tried.
type Evaluator struct {
	Oracle route.Oracle
	Params Params
}

func (e Evaluator) Evaluate(ctx context.Context, searcher, candidate models.TripRequest) (Detour, error) {
	solo, err := e.Oracle.Route(ctx, []models.Coord{candidate.Departure.Coord, candidate.Destination.Coord})
	if err != nil {
		return Detour{}, fmt.Errorf("solo route: %w", err)
	}
	if solo.DurationSeconds <= 0 {
		return Detour{}, ErrDegenerateRoute
	}
	shared, err := e.Oracle.Route(ctx, []models.Coord{
		candidate.Departure.Coord,
		searcher.Departure.Coord,
		searcher.Destination.Coord,
		candidate.Destination.Coord,
	})
	if err != nil {
		return Detour{}, fmt.Errorf("shared route: %w", err)
	}

	d := Detour{
		Solo:            solo,
		Shared:          shared,
		TimeLossMinutes: (shared.DurationSeconds - solo.DurationSeconds) / 60,
		Ratio:           shared.DurationSeconds / solo.DurationSeconds,
	}
	d.Efficient = e.Classify(d.TimeLossMinutes, d.Ratio)
	return d, nil
}

// Classify: a small absolute loss passes on its own, otherwise both loss and ratio must hold.
func (e Evaluator) Classify(lossMinutes, ratio float64) bool {
	if lossMinutes <= e.Params.SpecialLossMinutes {
		return true
	}
	return lossMinutes <= e.Params.MaxLossMinutes && ratio <= e.Params.MaxDetourRatio
}
