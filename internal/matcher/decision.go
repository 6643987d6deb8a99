package matcher

import (
	"encoding/json"
	"fmt"

	"github.com/example/ride-pooling/internal/models"
)

type Mode string

const (
	ModeImmediate Mode = "immediate"
	ModeBatch     Mode = "batch"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeImmediate, ModeBatch:
		return Mode(s), nil
	case "":
		return ModeImmediate, nil
	}
	return "", fmt.Errorf("%w: unknown mode %q", ErrInvalidRequest, s)
}

type Outcome string

const (
	OutcomeMatched Outcome = "matched"
	OutcomePooling Outcome = "pooling"
	OutcomeFailed  Outcome = "failed"
)

// FailureKind classifies a failed decision.
type FailureKind string

const (
	FailureNoCandidates   FailureKind = "no_candidates"
	FailureNoMatch        FailureKind = "no_match"
	FailureRepository     FailureKind = "repository"
	FailureInvalidRequest FailureKind = "invalid_request"
)

// Rule names the batch acceptance rule that produced a match.
type Rule string

const (
	RuleBestScore          Rule = "best_score"
	RuleSRank              Rule = "s_rank"
	RuleDeadlineCompromise Rule = "deadline_compromise"
)

const (
	msgNoCandidates = "no one waiting"
	msgNoMatch      = "no one meets the criteria"
)

// Decision is the result of one matcher invocation.
type Decision struct {
	Mode        Mode
	Outcome     Outcome
	Partner     *models.CandidateRecord
	Score       *ScoreBreakdown
	SharedRoute *models.RouteResult
	SoloRoute   *models.RouteResult
	Rule        Rule
	Failure     FailureKind
	Message     string
	// Evaluated counts candidates that reached the scorer.
	Evaluated int
	Err       error
}

func matched(mode Mode, ev evaluation, rule Rule, evaluated int) Decision {
	partner := ev.candidate
	score := ev.score
	shared, solo := ev.detour.Shared, ev.detour.Solo
	return Decision{
		Mode:        mode,
		Outcome:     OutcomeMatched,
		Partner:     &partner,
		Score:       &score,
		SharedRoute: &shared,
		SoloRoute:   &solo,
		Rule:        rule,
		Message:     fmt.Sprintf("matched with %s (score %.2f)", displayName(partner), score.Total),
		Evaluated:   evaluated,
	}
}

func pooling(mode Mode, best *ScoreBreakdown, evaluated int) Decision {
	d := Decision{Mode: mode, Outcome: OutcomePooling, Score: best, Evaluated: evaluated, Message: "waiting for a better partner"}
	if best != nil {
		d.Message = fmt.Sprintf("waiting for a better partner (best score %.2f)", best.Total)
	}
	return d
}

func failed(mode Mode, kind FailureKind, msg string, err error) Decision {
	return Decision{Mode: mode, Outcome: OutcomeFailed, Failure: kind, Message: msg, Err: err}
}

// Retryable reports whether running the same request again may succeed without any other change.
func (d Decision) Retryable() bool {
	return d.Outcome == OutcomeFailed && d.Failure == FailureRepository
}

// DetourMinutes is the extra time the partner spends on the shared route.
func (d Decision) DetourMinutes() float64 {
	if d.SharedRoute == nil || d.SoloRoute == nil {
		return 0
	}
	return (d.SharedRoute.DurationSeconds - d.SoloRoute.DurationSeconds) / 60
}

func (d Decision) MarshalJSON() ([]byte, error) {
	type wire struct {
		Mode        Mode                    `json:"mode"`
		Status      Outcome                 `json:"status"`
		Partner     *models.CandidateRecord `json:"partner,omitempty"`
		Score       *ScoreBreakdown         `json:"score,omitempty"`
		SharedRoute *models.RouteResult     `json:"shared_route,omitempty"`
		SoloRoute   *models.RouteResult     `json:"solo_route,omitempty"`
		Rule        Rule                    `json:"rule,omitempty"`
		Failure     FailureKind             `json:"failure_kind,omitempty"`
		Retryable   bool                    `json:"retryable"`
		Message     string                  `json:"message"`
		Evaluated   int                     `json:"evaluated"`
	}
	return json.Marshal(wire{
		Mode:        d.Mode,
		Status:      d.Outcome,
		Partner:     d.Partner,
		Score:       d.Score,
		SharedRoute: d.SharedRoute,
		SoloRoute:   d.SoloRoute,
		Rule:        d.Rule,
		Failure:     d.Failure,
		Retryable:   d.Retryable(),
		Message:     d.Message,
		Evaluated:   d.Evaluated,
	})
}

func displayName(c models.CandidateRecord) string {
	switch {
	case c.Nickname != "":
		return c.Nickname
	case c.Username != "":
		return c.Username
	}
	return c.UserID
}
