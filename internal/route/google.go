package route

import (
	"context"
	"fmt"
	"time"

	"googlemaps.github.io/maps"

	"github.com/example/ride-pooling/internal/models"
	"github.com/example/ride-pooling/internal/observability"
)

type directionsAPI interface {
	Directions(ctx context.Context, r *maps.DirectionsRequest) ([]maps.Route, []maps.GeocodedWaypoint, error)
}

// GoogleOracle answers route queries with the Google Directions API.
// Intermediate points are passed as fixed-order waypoints; optimization is never requested.
type GoogleOracle struct {
	client directionsAPI
}

func NewGoogleOracle(apiKey string) (*GoogleOracle, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &GoogleOracle{client: client}, nil
}

func (g *GoogleOracle) Route(ctx context.Context, waypoints []models.Coord) (res models.RouteResult, err error) {
	if len(waypoints) < 2 {
		return models.RouteResult{}, ErrTooFewWaypoints
	}
	start := time.Now()
	defer func() {
		observability.OracleLatency.WithLabelValues("google").Observe(time.Since(start).Seconds())
		observability.OracleRequestsTotal.WithLabelValues("google", resultLabel(err)).Inc()
	}()

	r := &maps.DirectionsRequest{
		Origin:      latLng(waypoints[0]),
		Destination: latLng(waypoints[len(waypoints)-1]),
		Mode:        maps.TravelModeDriving,
	}
	for _, w := range waypoints[1 : len(waypoints)-1] {
		r.Waypoints = append(r.Waypoints, latLng(w))
	}

	routes, _, err := g.client.Directions(ctx, r)
	if err != nil {
		return models.RouteResult{}, fmt.Errorf("maps api error: %w", err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return models.RouteResult{}, ErrNoRoute
	}
	return summarize(routes[0]), nil
}

// summarize adds up every leg; the overview polyline becomes the path when it decodes.
func summarize(r maps.Route) models.RouteResult {
	var res models.RouteResult
	for _, leg := range r.Legs {
		if leg == nil {
			continue
		}
		res.DurationSeconds += leg.Duration.Seconds()
		res.DistanceMeters += float64(leg.Distance.Meters)
	}
	if pts, err := r.OverviewPolyline.Decode(); err == nil {
		res.Path = make([]models.Coord, len(pts))
		for i, p := range pts {
			res.Path[i] = models.Coord{Lat: p.Lat, Lon: p.Lng}
		}
	}
	return res
}

func latLng(c models.Coord) string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lon)
}
