// Package route wraps travel-time/distance services behind a single Oracle interface.
package route

import (
	"context"
	"errors"

	"github.com/example/ride-pooling/internal/models"
)

var (
	ErrTooFewWaypoints = errors.New("route needs at least two waypoints")
	ErrNoRoute         = errors.New("no route found")
)

// Oracle returns total duration and distance for an ordered list of waypoints.
// Implementations must be safe for concurrent use and should fail fast.
type Oracle interface {
	Route(ctx context.Context, waypoints []models.Coord) (models.RouteResult, error)
}

// OracleFunc adapts a function to the Oracle interface.
type OracleFunc func(ctx context.Context, waypoints []models.Coord) (models.RouteResult, error)

func (f OracleFunc) Route(ctx context.Context, waypoints []models.Coord) (models.RouteResult, error) {
	return f(ctx, waypoints)
}
