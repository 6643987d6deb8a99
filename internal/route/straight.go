package route

import (
	"context"

	"github.com/example/ride-pooling/internal/geo"
	"github.com/example/ride-pooling/internal/models"
)

// StraightLine is an offline estimator: great-circle length over a constant speed.
// It never fails for valid input, which makes it suitable for simulations.
type StraightLine struct {
	SpeedMps float64
}

func (s StraightLine) Route(_ context.Context, waypoints []models.Coord) (models.RouteResult, error) {
	if len(waypoints) < 2 {
		return models.RouteResult{}, ErrTooFewWaypoints
	}
	speed := s.SpeedMps
	if speed <= 0 {
		speed = 8.0 // ~28.8 km/h default city speed
	}
	d := geo.PathLength(waypoints)
	path := make([]models.Coord, len(waypoints))
	copy(path, waypoints)
	return models.RouteResult{DurationSeconds: d / speed, DistanceMeters: d, Path: path}, nil
}
