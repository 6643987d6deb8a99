package matcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/ride-pooling/internal/models"
	"github.com/example/ride-pooling/internal/observability"
	"github.com/example/ride-pooling/internal/route"
	"github.com/example/ride-pooling/internal/storage"
)

var ErrInvalidRequest = errors.New("invalid request")

// CandidateSource is the read side of the repository used by the matcher.
type CandidateSource interface {
	Candidates(ctx context.Context, q storage.CandidateQuery) ([]models.CandidateRecord, error)
}

// Searcher is the request being matched.
type Searcher struct {
	ID      string
	UserID  string
	Request models.TripRequest
}

func SearcherFromRecord(rec models.CandidateRecord) Searcher {
	return Searcher{ID: rec.ID, UserID: rec.UserID, Request: rec.Request}
}

// Service runs the matching pipeline. It holds no state between calls.
type Service struct {
	Candidates CandidateSource
	Oracle     route.Oracle
	Params     Params
	Now        func() time.Time
	Logger     *slog.Logger
}

func NewService(candidates CandidateSource, oracle route.Oracle, params Params, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		Candidates: candidates,
		Oracle:     oracle,
		Params:     params,
		Now:        time.Now,
		Logger:     logger.With("component", "matcher"),
	}
}

type evaluation struct {
	candidate models.CandidateRecord
	score     ScoreBreakdown
	detour    Detour
}

// Immediate returns the best efficient candidate if it clears the immediate floor.
func (s *Service) Immediate(ctx context.Context, sr Searcher) Decision {
	start := time.Now()
	d := s.immediate(ctx, sr)
	s.observe(d, start)
	return d
}

func (s *Service) immediate(ctx context.Context, sr Searcher) Decision {
	best, evaluated, terminal := s.rank(ctx, ModeImmediate, sr, s.Params.ImmediateStatuses)
	if terminal != nil {
		return *terminal
	}
	if best == nil || best.score.Total <= s.Params.ImmediateFloor {
		d := failed(ModeImmediate, FailureNoMatch, msgNoMatch, nil)
		d.Evaluated = evaluated
		return d
	}
	return matched(ModeImmediate, *best, RuleBestScore, evaluated)
}

// Batch accepts an S-rank partner at any time and a B-rank partner close to departure.
// Anything else keeps the searcher pooling.
func (s *Service) Batch(ctx context.Context, sr Searcher) Decision {
	start := time.Now()
	d := s.batch(ctx, sr)
	s.observe(d, start)
	return d
}

func (s *Service) batch(ctx context.Context, sr Searcher) Decision {
	best, evaluated, terminal := s.rank(ctx, ModeBatch, sr, s.Params.BatchStatuses)
	if terminal != nil {
		return *terminal
	}
	if best == nil {
		d := failed(ModeBatch, FailureNoMatch, msgNoMatch, nil)
		d.Evaluated = evaluated
		return d
	}
	if best.score.Total >= s.Params.SRankThreshold {
		return matched(ModeBatch, *best, RuleSRank, evaluated)
	}
	if best.score.Total >= s.Params.BRankThreshold {
		// Request was validated in rank, so the departure parses.
		dep, _ := sr.Request.DepartureAt(s.Params.location())
		if dep.Sub(s.now()) <= s.Params.Deadline {
			return matched(ModeBatch, *best, RuleDeadlineCompromise, evaluated)
		}
	}
	score := best.score
	return pooling(ModeBatch, &score, evaluated)
}

// rank walks the pool in repository order and returns the best efficient candidate.
// A non-nil Decision ends the invocation early.
func (s *Service) rank(ctx context.Context, mode Mode, sr Searcher, statuses []models.Status) (*evaluation, int, *Decision) {
	if err := sr.Request.Validate(); err != nil {
		d := failed(mode, FailureInvalidRequest, "invalid request: "+err.Error(), fmt.Errorf("%w: %w", ErrInvalidRequest, err))
		return nil, 0, &d
	}
	searcherMin, _ := sr.Request.ClockMinutes()

	pool, err := s.Candidates.Candidates(ctx, storage.CandidateQuery{
		Statuses:      statuses,
		TargetDate:    sr.Request.TargetDate,
		ExcludeUserID: sr.UserID,
	})
	if err != nil {
		s.log().Error("candidate lookup failed", "mode", mode, "searcher", sr.ID, "err", err)
		d := failed(mode, FailureRepository, "candidate lookup failed", err)
		return nil, 0, &d
	}
	if len(pool) == 0 {
		d := failed(mode, FailureNoCandidates, msgNoCandidates, nil)
		return nil, 0, &d
	}

	evaluator := Evaluator{Oracle: s.Oracle, Params: s.Params}
	scorer := Scorer{Params: s.Params}
	var best *evaluation
	evaluated := 0
	for _, c := range pool {
		if c.UserID == sr.UserID || (sr.ID != "" && c.ID == sr.ID) {
			observability.CandidatesEvaluated.WithLabelValues("self").Inc()
			continue
		}
		candMin, err := c.Request.ClockMinutes()
		if err != nil {
			observability.CandidatesEvaluated.WithLabelValues("invalid").Inc()
			s.log().Warn("skipping candidate with invalid departure time", "candidate", c.ID, "time", c.Request.DepartureTime)
			continue
		}
		delta, tau, ok := TimeCompatible(searcherMin, sr.Request.ToleranceMinutes, candMin, c.Request.ToleranceMinutes)
		if !ok {
			observability.CandidatesEvaluated.WithLabelValues("time_window").Inc()
			continue
		}
		detour, err := evaluator.Evaluate(ctx, sr.Request, c.Request)
		if err != nil {
			observability.CandidatesEvaluated.WithLabelValues("oracle_error").Inc()
			s.log().Warn("route lookup failed, skipping candidate", "candidate", c.ID, "err", err)
			continue
		}
		if !detour.Efficient {
			observability.CandidatesEvaluated.WithLabelValues("inefficient").Inc()
			s.log().Debug("candidate detour too costly", "candidate", c.ID, "loss_min", detour.TimeLossMinutes, "ratio", detour.Ratio)
			continue
		}
		observability.CandidatesEvaluated.WithLabelValues("scored").Inc()
		evaluated++
		score := scorer.Score(delta, tau, detour.Ratio)
		s.log().Debug("candidate scored",
			"mode", mode, "candidate", c.ID, "delta_min", delta, "tau_min", tau,
			"loss_min", detour.TimeLossMinutes, "ratio", detour.Ratio,
			"time_score", score.TimeScore, "route_score", score.RouteScore, "total", score.Total)
		if best == nil || score.Total > best.score.Total {
			best = &evaluation{candidate: c, score: score, detour: detour}
		}
	}
	return best, evaluated, nil
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) observe(d Decision, start time.Time) {
	outcome := string(d.Outcome)
	if d.Outcome == OutcomeFailed {
		outcome = string(d.Failure)
	}
	observability.DecisionsTotal.WithLabelValues(string(d.Mode), outcome).Inc()
	observability.MatchLatency.WithLabelValues(string(d.Mode)).Observe(time.Since(start).Seconds())
}

func (s *Service) log() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
