package route

import (
	"context"

	"github.com/example/ride-pooling/internal/models"
	"github.com/example/ride-pooling/internal/observability"
)

// Cached decorates an Oracle with a Cache. Failures are never cached.
type Cached struct {
	Next  Oracle
	Cache Cache
}

func (c *Cached) Route(ctx context.Context, waypoints []models.Coord) (models.RouteResult, error) {
	if len(waypoints) < 2 {
		return models.RouteResult{}, ErrTooFewWaypoints
	}
	key := Key(waypoints)
	if v, ok := c.Cache.Get(ctx, key); ok {
		observability.RouteCacheTotal.WithLabelValues("hit").Inc()
		return v, nil
	}
	observability.RouteCacheTotal.WithLabelValues("miss").Inc()
	v, err := c.Next.Route(ctx, waypoints)
	if err != nil {
		return models.RouteResult{}, err
	}
	c.Cache.Set(ctx, key, v)
	return v, nil
}
