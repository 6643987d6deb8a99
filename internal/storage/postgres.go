package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/example/ride-pooling/internal/models"
)

const requestColumns = `id, user_id, nickname, username, icon_url, status, partner_id, partner_user_id,
	dep_name, dep_lat, dep_lon, dest_name, dest_lat, dest_lon,
	target_date, departure_time, tolerance_minutes, created_at, updated_at`

type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

// OpenPostgres opens and pings a lib/pq connection pool.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

func (p *PostgresStore) Save(ctx context.Context, rec *models.CandidateRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Status == "" {
		rec.Status = models.StatusActive
	}
	now := p.now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	r := rec.Request
	_, err := p.db.ExecContext(ctx, `INSERT INTO trip_requests(`+requestColumns+`)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		rec.ID, rec.UserID, rec.Nickname, rec.Username, rec.IconURL, string(rec.Status),
		nullString(rec.PartnerID), nullString(rec.PartnerUserID),
		r.Departure.Name, r.Departure.Lat, r.Departure.Lon,
		r.Destination.Name, r.Destination.Lat, r.Destination.Lon,
		r.TargetDate, r.DepartureTime, r.ToleranceMinutes, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert trip request: %w", err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (models.CandidateRecord, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM trip_requests WHERE id = $1`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.CandidateRecord{}, ErrNotFound
	}
	if err != nil {
		return models.CandidateRecord{}, fmt.Errorf("get trip request: %w", err)
	}
	return rec, nil
}

func (p *PostgresStore) Candidates(ctx context.Context, q CandidateQuery) ([]models.CandidateRecord, error) {
	query := `SELECT ` + requestColumns + ` FROM trip_requests
		WHERE status = ANY($1) AND ($2 = '' OR target_date = $2) AND ($3 = '' OR user_id <> $3)
		ORDER BY created_at, id`
	args := []any{pq.Array(statusStrings(q.Statuses)), q.TargetDate, q.ExcludeUserID}
	if q.Limit > 0 {
		query += ` LIMIT $4`
		args = append(args, q.Limit)
	}
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query candidates: %w", err)
	}
	defer rows.Close()
	var out []models.CandidateRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (p *PostgresStore) Transition(ctx context.Context, id string, from []models.Status, to models.Status) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE trip_requests SET status = $2, updated_at = $3 WHERE id = $1 AND status = ANY($4)`,
		id, string(to), p.now().UTC(), pq.Array(statusStrings(from)))
	if err != nil {
		return fmt.Errorf("transition %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	if _, err := p.Get(ctx, id); err != nil {
		return err
	}
	return ErrConflict
}

// ClaimPair locks both rows, re-checks they are open and links them in one transaction.
func (p *PostgresStore) ClaimPair(ctx context.Context, searcherID, partnerID string) (err error) {
	if searcherID == partnerID {
		return ErrConflict
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin claim: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	rows, err := tx.QueryContext(ctx,
		`SELECT id, user_id, status FROM trip_requests WHERE id IN ($1, $2) ORDER BY id FOR UPDATE`, searcherID, partnerID)
	if err != nil {
		return fmt.Errorf("lock pair: %w", lockError(err))
	}
	type locked struct {
		userID string
		status models.Status
	}
	got := make(map[string]locked, 2)
	for rows.Next() {
		var id, userID, status string
		if err = rows.Scan(&id, &userID, &status); err != nil {
			rows.Close()
			return fmt.Errorf("scan locked row: %w", err)
		}
		got[id] = locked{userID: userID, status: models.Status(status)}
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return err
	}
	a, okA := got[searcherID]
	b, okB := got[partnerID]
	if !okA || !okB {
		return ErrNotFound
	}
	if !a.status.IsOpen() || !b.status.IsOpen() {
		return ErrConflict
	}

	now := p.now().UTC()
	const link = `UPDATE trip_requests SET status = 'matched', partner_id = $2, partner_user_id = $3, updated_at = $4 WHERE id = $1`
	if _, err = tx.ExecContext(ctx, link, searcherID, partnerID, b.userID, now); err != nil {
		return fmt.Errorf("link searcher: %w", lockError(err))
	}
	if _, err = tx.ExecContext(ctx, link, partnerID, searcherID, a.userID, now); err != nil {
		return fmt.Errorf("link partner: %w", lockError(err))
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit claim: %w", lockError(err))
	}
	return nil
}

// lockError reports a deadlock or serialization abort as a lost claim.
func lockError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40P01", "40001":
			return fmt.Errorf("%w: %s", ErrConflict, pqErr.Message)
		}
	}
	return err
}

func (p *PostgresStore) SaveEvaluation(ctx context.Context, e models.EvaluationLog) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = p.now().UTC()
	}
	_, err := p.db.ExecContext(ctx, `INSERT INTO evaluation_logs(
		scenario, searcher_user_id, searcher_id, target_date,
		immediate_status, immediate_score, immediate_calc_ms, immediate_detour_min, immediate_wait_min, immediate_time_diff_min, immediate_partner_id,
		batch_status, batch_score, batch_calc_ms, batch_detour_min, batch_wait_min, batch_time_diff_min, batch_partner_id, created_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		e.Scenario, e.SearcherUserID, e.SearcherID, e.TargetDate,
		e.ImmediateStatus, e.ImmediateScore, e.ImmediateCalcMs, e.ImmediateDetourMin, e.ImmediateWaitMin, e.ImmediateTimeDiffMin, nullString(e.ImmediatePartnerID),
		e.BatchStatus, e.BatchScore, e.BatchCalcMs, e.BatchDetourMin, e.BatchWaitMin, e.BatchTimeDiffMin, nullString(e.BatchPartnerID), e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert evaluation log: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (models.CandidateRecord, error) {
	var (
		rec                      models.CandidateRecord
		status                   string
		partnerID, partnerUserID sql.NullString
	)
	r := &rec.Request
	err := s.Scan(&rec.ID, &rec.UserID, &rec.Nickname, &rec.Username, &rec.IconURL, &status, &partnerID, &partnerUserID,
		&r.Departure.Name, &r.Departure.Lat, &r.Departure.Lon,
		&r.Destination.Name, &r.Destination.Lat, &r.Destination.Lon,
		&r.TargetDate, &r.DepartureTime, &r.ToleranceMinutes, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return models.CandidateRecord{}, err
	}
	rec.Status = models.Status(status)
	rec.PartnerID = partnerID.String
	rec.PartnerUserID = partnerUserID.String
	return rec, nil
}

func statusStrings(in []models.Status) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
