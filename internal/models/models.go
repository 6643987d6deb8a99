package models

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

type Coord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Place is a named point picked by the requester.
type Place struct {
	Name string `json:"name"`
	Coord
}

// Status of a stored trip request. Transitions are applied by callers, never by the engine.
type Status string

const (
	StatusActive    Status = "active"
	StatusPooling   Status = "pooling"
	StatusMatched   Status = "matched"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// IsOpen reports whether a request in this status can still be matched.
func (s Status) IsOpen() bool { return s == StatusActive || s == StatusPooling }

const (
	DateLayout  = "2006-01-02"
	clockLayout = "15:04"
)

// TripRequest is one user's wish to travel once.
type TripRequest struct {
	Departure        Place  `json:"departure"`
	Destination      Place  `json:"destination"`
	TargetDate       string `json:"target_date"`    // YYYY-MM-DD
	DepartureTime    string `json:"departure_time"` // HH:MM
	ToleranceMinutes int    `json:"tolerance_minutes"`
}

var (
	ErrInvalidClock = errors.New("departure time must be HH:MM")
	ErrInvalidDate  = errors.New("target date must be YYYY-MM-DD")
)

func (r TripRequest) Validate() error {
	var errs []error
	if _, err := r.ClockMinutes(); err != nil {
		errs = append(errs, err)
	}
	if _, err := time.Parse(DateLayout, r.TargetDate); err != nil {
		errs = append(errs, ErrInvalidDate)
	}
	if r.ToleranceMinutes < 0 {
		errs = append(errs, fmt.Errorf("tolerance must be >= 0, got %d", r.ToleranceMinutes))
	}
	if !validCoord(r.Departure.Coord) || !validCoord(r.Destination.Coord) {
		errs = append(errs, errors.New("coordinates out of range"))
	}
	return errors.Join(errs...)
}

// ClockMinutes converts DepartureTime to minutes after midnight.
func (r TripRequest) ClockMinutes() (int, error) {
	return ParseClock(r.DepartureTime)
}

// DepartureAt resolves TargetDate and DepartureTime to an instant in loc.
func (r TripRequest) DepartureAt(loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	if _, err := ParseClock(r.DepartureTime); err != nil {
		return time.Time{}, err
	}
	t, err := time.ParseInLocation(DateLayout+" "+clockLayout, r.TargetDate+" "+strings.TrimSpace(r.DepartureTime), loc)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return t, nil
}

// ParseClock parses "HH:MM" into minutes after midnight.
func ParseClock(s string) (int, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, ErrInvalidClock
	}
	hh, err := strconv.Atoi(h)
	if err != nil || hh < 0 || hh > 23 {
		return 0, ErrInvalidClock
	}
	mm, err := strconv.Atoi(m)
	if err != nil || mm < 0 || mm > 59 || len(m) != 2 {
		return 0, ErrInvalidClock
	}
	return hh*60 + mm, nil
}

func validCoord(c Coord) bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

// CandidateRecord is a persisted TripRequest plus its owner's public identity.
type CandidateRecord struct {
	ID            string      `json:"id"`
	UserID        string      `json:"user_id"`
	Nickname      string      `json:"nickname,omitempty"`
	Username      string      `json:"username,omitempty"`
	IconURL       string      `json:"icon_url,omitempty"`
	Status        Status      `json:"status"`
	PartnerID     string      `json:"partner_id,omitempty"`
	PartnerUserID string      `json:"partner_user_id,omitempty"`
	Request       TripRequest `json:"request"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// RouteResult is what a routing oracle returns for an ordered list of waypoints.
type RouteResult struct {
	DurationSeconds float64 `json:"duration_seconds"`
	DistanceMeters  float64 `json:"distance_meters"`
	Path            []Coord `json:"path,omitempty"`
}

// MatchEvent is emitted once both sides of a match have been committed.
type MatchEvent struct {
	EventID        string    `json:"event_id"`
	SearcherID     string    `json:"searcher_id"`
	SearcherUserID string    `json:"searcher_user_id"`
	PartnerID      string    `json:"partner_id"`
	PartnerUserID  string    `json:"partner_user_id"`
	Score          float64   `json:"score"`
	Mode           string    `json:"mode"`
	Rule           string    `json:"rule,omitempty"`
	TargetDate     string    `json:"target_date"`
	DepartureTime  string    `json:"departure_time"`
	MatchedAt      time.Time `json:"matched_at"`
}

// EvaluationLog compares the immediate and batch outcome for one searcher.
type EvaluationLog struct {
	Scenario       string `json:"scenario"`
	SearcherUserID string `json:"searcher_user_id"`
	SearcherID     string `json:"searcher_id"`
	TargetDate     string `json:"target_date"`

	ImmediateStatus    string  `json:"immediate_status"`
	ImmediateScore     float64 `json:"immediate_score"`
	ImmediateCalcMs    float64 `json:"immediate_calc_ms"`
	ImmediateDetourMin float64 `json:"immediate_detour_min"`
	ImmediateWaitMin   float64 `json:"immediate_wait_min"`
	// TimeDiffMin is the gap between the two departure times, 0 without a partner.
	ImmediateTimeDiffMin float64 `json:"immediate_time_diff_min"`
	ImmediatePartnerID   string  `json:"immediate_partner_id,omitempty"`

	BatchStatus      string  `json:"batch_status"`
	BatchScore       float64 `json:"batch_score"`
	BatchCalcMs      float64 `json:"batch_calc_ms"`
	BatchDetourMin   float64 `json:"batch_detour_min"`
	BatchWaitMin     float64 `json:"batch_wait_min"`
	BatchTimeDiffMin float64 `json:"batch_time_diff_min"`
	BatchPartnerID   string  `json:"batch_partner_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
