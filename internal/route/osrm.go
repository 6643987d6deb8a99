package route

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/example/ride-pooling/internal/models"
	"github.com/example/ride-pooling/internal/observability"
)

const DefaultOSRMEndpoint = "https://router.project-osrm.org"

// OSRMClient performs route lookups against an OSRM HTTP server.
type OSRMClient struct {
	Endpoint string
	Profile  string
	// WithGeometry requests the full path (overview=full&geometries=geojson).
	WithGeometry bool
	Client       *http.Client
}

func NewOSRMClient(endpoint string, timeout time.Duration) *OSRMClient {
	if endpoint == "" {
		endpoint = DefaultOSRMEndpoint
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &OSRMClient{
		Endpoint:     strings.TrimRight(endpoint, "/"),
		Profile:      "driving",
		WithGeometry: true,
		Client:       &http.Client{Timeout: timeout},
	}
}

type osrmResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Duration float64 `json:"duration"`
		Distance float64 `json:"distance"`
		Geometry *struct {
			Coordinates [][]float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"routes"`
}

// Route queries /route/v1/{profile}/{lon,lat;...}. OSRM expects longitude first.
func (o *OSRMClient) Route(ctx context.Context, waypoints []models.Coord) (res models.RouteResult, err error) {
	if len(waypoints) < 2 {
		return models.RouteResult{}, ErrTooFewWaypoints
	}
	start := time.Now()
	defer func() {
		observability.OracleLatency.WithLabelValues("osrm").Observe(time.Since(start).Seconds())
		observability.OracleRequestsTotal.WithLabelValues("osrm", resultLabel(err)).Inc()
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.url(waypoints), nil)
	if err != nil {
		return models.RouteResult{}, err
	}
	resp, err := o.Client.Do(req)
	if err != nil {
		return models.RouteResult{}, fmt.Errorf("osrm request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return models.RouteResult{}, fmt.Errorf("osrm unexpected status code: %d", resp.StatusCode)
	}

	var out osrmResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return models.RouteResult{}, fmt.Errorf("osrm decode: %w", err)
	}
	if out.Code != "Ok" || len(out.Routes) == 0 {
		return models.RouteResult{}, fmt.Errorf("%w: osrm code %q", ErrNoRoute, out.Code)
	}
	r := out.Routes[0]
	res = models.RouteResult{DurationSeconds: r.Duration, DistanceMeters: r.Distance}
	if r.Geometry != nil {
		res.Path = make([]models.Coord, 0, len(r.Geometry.Coordinates))
		for _, c := range r.Geometry.Coordinates {
			if len(c) < 2 {
				continue
			}
			res.Path = append(res.Path, models.Coord{Lat: c[1], Lon: c[0]})
		}
	}
	return res, nil
}

func (o *OSRMClient) url(waypoints []models.Coord) string {
	locs := make([]string, len(waypoints))
	for i, w := range waypoints {
		locs[i] = fmt.Sprintf("%.6f,%.6f", w.Lon, w.Lat)
	}
	profile := o.Profile
	if profile == "" {
		profile = "driving"
	}
	query := "overview=false"
	if o.WithGeometry {
		query = "overview=full&geometries=geojson"
	}
	return fmt.Sprintf("%s/route/v1/%s/%s?%s", o.Endpoint, profile, strings.Join(locs, ";"), query)
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
