package route

import (
	"context"
	"errors"
	"testing"
	"time"

	"googlemaps.github.io/maps"

	"github.com/example/ride-pooling/internal/models"
)

type fakeDirections struct {
	req    *maps.DirectionsRequest
	routes []maps.Route
	err    error
}

func (f *fakeDirections) Directions(_ context.Context, r *maps.DirectionsRequest) ([]maps.Route, []maps.GeocodedWaypoint, error) {
	f.req = r
	return f.routes, nil, f.err
}

func TestGoogleOracleSumsLegs(t *testing.T) {
	leg1 := &maps.Leg{Duration: 5 * time.Minute}
	leg1.Distance.Meters = 1200
	leg2 := &maps.Leg{Duration: 6 * time.Minute}
	leg2.Distance.Meters = 1300
	f := &fakeDirections{routes: []maps.Route{{Legs: []*maps.Leg{leg1, leg2}}}}
	g := &GoogleOracle{client: f}

	res, err := g.Route(context.Background(), []models.Coord{
		{Lat: 35.0, Lon: 139.0}, {Lat: 35.05, Lon: 139.05}, {Lat: 35.1, Lon: 139.1},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.DurationSeconds != 660 || res.DistanceMeters != 2500 {
		t.Fatalf("unexpected totals %+v", res)
	}
	if f.req.Origin != "35.000000,139.000000" || f.req.Destination != "35.100000,139.100000" {
		t.Fatalf("unexpected endpoints %q -> %q", f.req.Origin, f.req.Destination)
	}
	if len(f.req.Waypoints) != 1 || f.req.Optimize {
		t.Fatalf("expected one fixed-order waypoint, got %+v", f.req.Waypoints)
	}
}

func TestGoogleOracleNoRoute(t *testing.T) {
	g := &GoogleOracle{client: &fakeDirections{}}
	_, err := g.Route(context.Background(), []models.Coord{{Lat: 1, Lon: 1}, {Lat: 2, Lon: 2}})
	if !errors.Is(err, ErrNoRoute) {
		t.Fatalf("expected ErrNoRoute, got %v", err)
	}
}
