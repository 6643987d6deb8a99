package experiment

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/example/ride-pooling/internal/matcher"
	"github.com/example/ride-pooling/internal/models"
	"github.com/example/ride-pooling/internal/storage"
)

type Source interface {
	Candidates(ctx context.Context, q storage.CandidateQuery) ([]models.CandidateRecord, error)
}

type Matcher interface {
	Immediate(ctx context.Context, sr matcher.Searcher) matcher.Decision
	Batch(ctx context.Context, sr matcher.Searcher) matcher.Decision
}

// Sink stores one comparison row per searcher.
type Sink interface {
	SaveEvaluation(ctx context.Context, log models.EvaluationLog) error
}

var allStatuses = []models.Status{
	models.StatusActive, models.StatusPooling, models.StatusMatched, models.StatusFailed, models.StatusCancelled,
}

// Summary aggregates a run.
type Summary struct {
	Scenario        string  `json:"scenario"`
	TargetDate      string  `json:"target_date"`
	Searchers       int     `json:"searchers"`
	ImmediateMatch  int     `json:"immediate_matched"`
	BatchMatch      int     `json:"batch_matched"`
	BatchPooling    int     `json:"batch_pooling"`
	AvgImmediateMs  float64 `json:"avg_immediate_ms"`
	AvgBatchMs      float64 `json:"avg_batch_ms"`
	AvgImmediateDet float64 `json:"avg_immediate_detour_min"`
	AvgBatchDet     float64 `json:"avg_batch_detour_min"`
}

// Runner lets every request of a date act as searcher once per mode. Nothing is committed.
type Runner struct {
	Source  Source
	Matcher Matcher
	Sink    Sink
	// PoolingWait is the wait charged to a searcher left pooling.
	PoolingWait time.Duration
	Logger      *slog.Logger
}

func (r *Runner) Run(ctx context.Context, scenario, targetDate string) (Summary, error) {
	sum := Summary{Scenario: scenario, TargetDate: targetDate}
	searchers, err := r.Source.Candidates(ctx, storage.CandidateQuery{Statuses: allStatuses, TargetDate: targetDate})
	if err != nil {
		return sum, fmt.Errorf("load searchers: %w", err)
	}
	log := r.log().With("scenario", scenario, "target_date", targetDate)
	log.Info("evaluation started", "searchers", len(searchers))

	var immMs, batchMs, immDet, batchDet float64
	for _, rec := range searchers {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		sr := matcher.SearcherFromRecord(rec)

		start := time.Now()
		imm := r.Matcher.Immediate(ctx, sr)
		immElapsed := msSince(start)

		start = time.Now()
		batch := r.Matcher.Batch(ctx, sr)
		batchElapsed := msSince(start)

		entry := models.EvaluationLog{
			Scenario:        scenario,
			SearcherUserID:  rec.UserID,
			SearcherID:      rec.ID,
			TargetDate:      rec.Request.TargetDate,
			ImmediateStatus: string(imm.Outcome),
			ImmediateCalcMs: immElapsed,
			BatchStatus:     string(batch.Outcome),
			BatchCalcMs:     batchElapsed,
		}
		entry.ImmediateScore, entry.ImmediateDetourMin, entry.ImmediatePartnerID = summarize(imm)
		entry.BatchScore, entry.BatchDetourMin, entry.BatchPartnerID = summarize(batch)
		entry.ImmediateTimeDiffMin = timeDiff(rec.Request, imm)
		entry.BatchTimeDiffMin = timeDiff(rec.Request, batch)
		if batch.Outcome == matcher.OutcomePooling {
			entry.BatchWaitMin = r.PoolingWait.Minutes()
		}

		if err := r.Sink.SaveEvaluation(ctx, entry); err != nil {
			return sum, fmt.Errorf("save evaluation for %s: %w", rec.ID, err)
		}

		sum.Searchers++
		immMs += immElapsed
		batchMs += batchElapsed
		if imm.Outcome == matcher.OutcomeMatched {
			sum.ImmediateMatch++
			immDet += entry.ImmediateDetourMin
		}
		switch batch.Outcome {
		case matcher.OutcomeMatched:
			sum.BatchMatch++
			batchDet += entry.BatchDetourMin
		case matcher.OutcomePooling:
			sum.BatchPooling++
		}
		log.Debug("searcher evaluated", "searcher", rec.ID, "immediate", imm.Outcome, "batch", batch.Outcome)
	}

	if sum.Searchers > 0 {
		sum.AvgImmediateMs = immMs / float64(sum.Searchers)
		sum.AvgBatchMs = batchMs / float64(sum.Searchers)
	}
	if sum.ImmediateMatch > 0 {
		sum.AvgImmediateDet = immDet / float64(sum.ImmediateMatch)
	}
	if sum.BatchMatch > 0 {
		sum.AvgBatchDet = batchDet / float64(sum.BatchMatch)
	}
	log.Info("evaluation finished",
		"searchers", sum.Searchers, "immediate_matched", sum.ImmediateMatch,
		"batch_matched", sum.BatchMatch, "batch_pooling", sum.BatchPooling)
	return sum, nil
}

func summarize(d matcher.Decision) (score, detourMin float64, partnerUserID string) {
	if d.Score != nil {
		score = d.Score.Total
	}
	if d.Partner != nil {
		partnerUserID = d.Partner.UserID
	}
	return score, d.DetourMinutes(), partnerUserID
}

// timeDiff is the departure-time gap to the matched partner in minutes.
func timeDiff(req models.TripRequest, d matcher.Decision) float64 {
	if d.Outcome != matcher.OutcomeMatched || d.Partner == nil {
		return 0
	}
	a, err := req.ClockMinutes()
	if err != nil {
		return 0
	}
	b, err := d.Partner.Request.ClockMinutes()
	if err != nil {
		return 0
	}
	return math.Abs(float64(a - b))
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000
}

func (r *Runner) log() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}
