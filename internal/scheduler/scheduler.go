package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/example/ride-pooling/internal/matcher"
	"github.com/example/ride-pooling/internal/models"
	"github.com/example/ride-pooling/internal/observability"
	"github.com/example/ride-pooling/internal/storage"
)

const DefaultInterval = 5 * time.Minute

type Repository interface {
	Candidates(ctx context.Context, q storage.CandidateQuery) ([]models.CandidateRecord, error)
	Transition(ctx context.Context, id string, from []models.Status, to models.Status) error
}

// Matcher runs the batch matcher for pooling requests and the immediate matcher for active ones.
type Matcher interface {
	Immediate(ctx context.Context, sr matcher.Searcher) matcher.Decision
	Batch(ctx context.Context, sr matcher.Searcher) matcher.Decision
}

type Committer interface {
	Commit(ctx context.Context, sr matcher.Searcher, d matcher.Decision) (models.MatchEvent, error)
}

type Options struct {
	Interval time.Duration
	// MaxPerPass bounds how many requests each phase of a pass evaluates; 0 means all.
	MaxPerPass int
	Expire     bool
	ExpireLead time.Duration
	// Rematch re-runs the immediate matcher for requests still active after the pooling phase.
	Rematch  bool
	Location *time.Location
}

// PassReport summarizes one pooling pass.
type PassReport struct {
	Evaluated     int  `json:"evaluated"`
	Matched       int  `json:"matched"`
	Pooling       int  `json:"pooling"`
	Failed        int  `json:"failed"`
	Conflicts     int  `json:"conflicts"`
	Expired       int  `json:"expired"`
	Errors        int  `json:"errors"`
	SkippedByLock bool `json:"skipped_by_lock"`

	ActiveEvaluated int `json:"active_evaluated"`
	ActiveMatched   int `json:"active_matched"`
	ActiveUnmatched int `json:"active_unmatched"`
	ActiveConflicts int `json:"active_conflicts"`
}

// Scheduler re-evaluates open requests on a fixed interval.
type Scheduler struct {
	Repo      Repository
	Matcher   Matcher
	Committer Committer
	Locker    Locker
	Options   Options
	Now       func() time.Time
	Logger    *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(repo Repository, m Matcher, c Committer, locker Locker, opts Options, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if locker == nil {
		locker = &LocalLocker{}
	}
	return &Scheduler{
		Repo:      repo,
		Matcher:   m,
		Committer: c,
		Locker:    locker,
		Options:   opts,
		Now:       time.Now,
		Logger:    logger.With("component", "scheduler"),
	}
}

// Start runs the scheduler in the background until Stop or ctx is done. Calling it twice is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel, s.done = cancel, done
	go func() {
		defer close(done)
		_ = s.Run(ctx)
	}()
}

// Stop cancels the background loop and waits for an in-flight pass to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Run blocks, stepping once per interval.
func (s *Scheduler) Run(ctx context.Context) error {
	interval := s.Options.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	s.log().Info("pooling scheduler started", "interval", interval.String())
	for {
		select {
		case <-ctx.Done():
			s.log().Info("pooling scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Step(ctx); err != nil && ctx.Err() == nil {
				s.log().Error("pooling pass failed", "err", err)
			}
		}
	}
}

// Step runs exactly one pass.
func (s *Scheduler) Step(ctx context.Context) (PassReport, error) {
	var rep PassReport
	if s.Locker != nil {
		release, ok, err := s.Locker.TryLock(ctx)
		if err != nil {
			observability.PoolingPasses.WithLabelValues("lock_error").Inc()
			return rep, fmt.Errorf("acquire pass lock: %w", err)
		}
		if !ok {
			observability.PoolingPasses.WithLabelValues("skipped").Inc()
			rep.SkippedByLock = true
			return rep, nil
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				s.log().Warn("release pass lock failed", "err", err)
			}
		}()
	}

	start := time.Now()
	defer func() { observability.PoolingPassDuration.Observe(time.Since(start).Seconds()) }()

	if s.Options.Expire {
		n, err := s.expire(ctx)
		rep.Expired = n
		if err != nil {
			rep.Errors++
			s.log().Error("expiring requests failed", "err", err)
		}
	}

	pool, err := s.Repo.Candidates(ctx, storage.CandidateQuery{
		Statuses: []models.Status{models.StatusPooling},
		Limit:    s.Options.MaxPerPass,
	})
	if err != nil {
		observability.PoolingPasses.WithLabelValues("error").Inc()
		return rep, fmt.Errorf("list pooling requests: %w", err)
	}

	claimed := make(map[string]struct{}, len(pool))
	for _, rec := range pool {
		if ctx.Err() != nil {
			break
		}
		if _, ok := claimed[rec.ID]; ok {
			continue
		}
		rep.Evaluated++
		sr := matcher.SearcherFromRecord(rec)
		d := s.Matcher.Batch(ctx, sr)
		switch d.Outcome {
		case matcher.OutcomeMatched:
			switch err := s.commit(ctx, sr, d, claimed); {
			case err == nil:
				rep.Matched++
			case errors.Is(err, storage.ErrConflict):
				rep.Conflicts++
			default:
				rep.Errors++
			}
		case matcher.OutcomePooling:
			rep.Pooling++
		default:
			if d.Retryable() {
				rep.Errors++
			} else {
				rep.Failed++
			}
		}
	}

	if s.Options.Rematch && ctx.Err() == nil {
		if err := s.rematch(ctx, claimed, &rep); err != nil {
			rep.Errors++
			s.log().Error("listing active requests failed", "err", err)
		}
	}

	observability.PoolingPasses.WithLabelValues("ok").Inc()
	s.log().Info("pooling pass done",
		"evaluated", rep.Evaluated, "matched", rep.Matched, "pooling", rep.Pooling,
		"failed", rep.Failed, "conflicts", rep.Conflicts, "expired", rep.Expired, "errors", rep.Errors,
		"active_evaluated", rep.ActiveEvaluated, "active_matched", rep.ActiveMatched)
	return rep, nil
}

// rematch runs the immediate matcher for requests still active, sharing the pass's claimed set.
// Here the request is the inserted rider, the reverse of how later searchers saw it as a candidate.
func (s *Scheduler) rematch(ctx context.Context, claimed map[string]struct{}, rep *PassReport) error {
	active, err := s.Repo.Candidates(ctx, storage.CandidateQuery{
		Statuses: []models.Status{models.StatusActive},
		Limit:    s.Options.MaxPerPass,
	})
	if err != nil {
		return err
	}
	for _, rec := range active {
		if ctx.Err() != nil {
			return nil
		}
		if _, ok := claimed[rec.ID]; ok {
			continue
		}
		rep.ActiveEvaluated++
		sr := matcher.SearcherFromRecord(rec)
		d := s.Matcher.Immediate(ctx, sr)
		if d.Outcome != matcher.OutcomeMatched {
			if d.Retryable() {
				rep.Errors++
			} else {
				rep.ActiveUnmatched++
			}
			continue
		}
		switch err := s.commit(ctx, sr, d, claimed); {
		case err == nil:
			rep.ActiveMatched++
		case errors.Is(err, storage.ErrConflict):
			rep.ActiveConflicts++
		default:
			rep.Errors++
		}
	}
	return nil
}

// commit claims the pair unless the partner was already taken in this pass.
func (s *Scheduler) commit(ctx context.Context, sr matcher.Searcher, d matcher.Decision, claimed map[string]struct{}) error {
	if _, taken := claimed[d.Partner.ID]; taken {
		observability.ClaimConflicts.WithLabelValues("pass").Inc()
		return storage.ErrConflict
	}
	if _, err := s.Committer.Commit(ctx, sr, d); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			s.log().Info("partner claimed elsewhere, staying open", "searcher", sr.ID, "partner", d.Partner.ID)
		} else {
			s.log().Error("commit failed", "searcher", sr.ID, "err", err)
		}
		return err
	}
	claimed[sr.ID] = struct{}{}
	claimed[d.Partner.ID] = struct{}{}
	return nil
}

// expire fails open requests whose departure is before now+ExpireLead.
func (s *Scheduler) expire(ctx context.Context) (int, error) {
	open := []models.Status{models.StatusActive, models.StatusPooling}
	recs, err := s.Repo.Candidates(ctx, storage.CandidateQuery{Statuses: open})
	if err != nil {
		return 0, err
	}
	loc := s.Options.Location
	if loc == nil {
		loc = time.Local
	}
	cutoff := s.now().Add(s.Options.ExpireLead)
	n := 0
	var errs []error
	for _, rec := range recs {
		dep, err := rec.Request.DepartureAt(loc)
		if err != nil {
			s.log().Warn("cannot resolve departure, not expiring", "request", rec.ID, "err", err)
			continue
		}
		if !dep.Before(cutoff) {
			continue
		}
		err = s.Repo.Transition(ctx, rec.ID, open, models.StatusFailed)
		switch {
		case err == nil:
			n++
			observability.RequestsExpired.Inc()
		case errors.Is(err, storage.ErrConflict), errors.Is(err, storage.ErrNotFound):
		default:
			errs = append(errs, err)
		}
	}
	return n, errors.Join(errs...)
}

func (s *Scheduler) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Scheduler) log() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
