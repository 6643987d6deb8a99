package matcher

import "math"

// ScoreBreakdown is an audit artifact; it is never persisted.
type ScoreBreakdown struct {
	TimeScore  float64 `json:"time_score"`
	RouteScore float64 `json:"route_score"`
	Total      float64 `json:"total"`
}

type Scorer struct {
	Params Params
}

func (s Scorer) Score(delta, tau int, ratio float64) ScoreBreakdown {
	b := ScoreBreakdown{
		TimeScore:  s.timeScore(delta, tau),
		RouteScore: s.routeScore(ratio),
	}
	b.Total = b.TimeScore*s.Params.TimeWeight + b.RouteScore*s.Params.RouteWeight
	return b
}

func (s Scorer) timeScore(delta, tau int) float64 {
	// tau == 0 only lets delta == 0 through the filter
	if tau == 0 {
		return 1
	}
	return math.Max(0, 1-float64(delta)/float64(tau))
}

func (s Scorer) routeScore(ratio float64) float64 {
	if ratio <= 1 {
		return 1
	}
	limit := s.Params.MaxDetourRatio
	return math.Max(s.Params.RouteScoreFloor, (limit-ratio)/(limit-1))
}
