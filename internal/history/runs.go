package history

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/insightdelivered/bank-statement-agent/internal/models"
)

// timeLayout has fixed-width fractions so stored times sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrRunNotFound is returned by Get for unknown run IDs.
var ErrRunNotFound = errors.New("run not found")

// Save stores a finished run and its attempts.
func (d *DB) Save(ctx context.Context, r *models.LoopResult) error {
	var artPath, artSum sql.NullString
	if r.Artifact != nil {
		artPath = sql.NullString{String: r.Artifact.Path, Valid: true}
		artSum = sql.NullString{String: r.Artifact.SHA256, Valid: true}
	}

	return d.tx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO runs (
				id, target, status, attempts_used, max_attempts,
				artifact_path, artifact_sha256, last_failure, error,
				started_at, duration_ms
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.RunID, r.Target, string(r.Status), r.AttemptsUsed, r.MaxAttempts,
			artPath, artSum, nullable(r.LastFailure), nullable(r.Error),
			r.StartedAt.UTC().Format(timeLayout), r.Duration.Milliseconds(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert run: %w", err)
		}

		for _, a := range r.Attempts {
			var srcSum sql.NullString
			if a.Source != "" {
				sum := sha256.Sum256([]byte(a.Source))
				srcSum = sql.NullString{String: hex.EncodeToString(sum[:]), Valid: true}
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO attempts (run_id, number, outcome, detail, source_sha256, started_at, duration_ms)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				r.RunID, a.Number, string(a.Outcome), nullable(a.Detail), srcSum,
				a.StartedAt.UTC().Format(timeLayout), a.Duration.Milliseconds(),
			)
			if err != nil {
				return fmt.Errorf("failed to insert attempt %d: %w", a.Number, err)
			}
		}
		return nil
	})
}

// Get loads one run with its attempts.
func (d *DB) Get(ctx context.Context, runID string) (*models.LoopResult, error) {
	row := d.db.QueryRowContext(ctx, selectRuns+" WHERE id = ?", runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, err
	}
	if err := d.loadAttempts(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// List returns the most recent runs first, optionally for one target.
// limit <= 0 means no limit.
func (d *DB) List(ctx context.Context, target string, limit int) ([]*models.LoopResult, error) {
	query := selectRuns
	var args []any
	if target != "" {
		query += " WHERE target = ?"
		args = append(args, target)
	}
	query += " ORDER BY started_at DESC, id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := make([]*models.LoopResult, 0)
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	for _, r := range runs {
		if err := d.loadAttempts(ctx, r); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

const selectRuns = `
	SELECT id, target, status, attempts_used, max_attempts,
		artifact_path, artifact_sha256, last_failure, error,
		started_at, duration_ms
	FROM runs`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*models.LoopResult, error) {
	var (
		r                     models.LoopResult
		status, startedAt     string
		artPath, artSum       sql.NullString
		lastFailure, errorMsg sql.NullString
		durationMs            int64
	)
	if err := s.Scan(&r.RunID, &r.Target, &status, &r.AttemptsUsed, &r.MaxAttempts,
		&artPath, &artSum, &lastFailure, &errorMsg, &startedAt, &durationMs); err != nil {
		return nil, err
	}

	r.Status = models.Status(status)
	r.LastFailure = lastFailure.String
	r.Error = errorMsg.String
	r.Duration = time.Duration(durationMs) * time.Millisecond
	r.StartedAt, _ = time.Parse(timeLayout, startedAt)
	if artPath.Valid {
		r.Artifact = &models.Artifact{Target: r.Target, Path: artPath.String, SHA256: artSum.String}
	}
	r.Attempts = []models.Attempt{}
	return &r, nil
}

func (d *DB) loadAttempts(ctx context.Context, r *models.LoopResult) error {
	rows, err := d.db.QueryContext(ctx, `
		SELECT number, outcome, detail, started_at, duration_ms
		FROM attempts WHERE run_id = ? ORDER BY number`, r.RunID)
	if err != nil {
		return fmt.Errorf("failed to query attempts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			a          models.Attempt
			outcome    string
			detail     sql.NullString
			startedAt  string
			durationMs int64
		)
		if err := rows.Scan(&a.Number, &outcome, &detail, &startedAt, &durationMs); err != nil {
			return err
		}
		a.Outcome = models.Outcome(outcome)
		a.Detail = detail.String
		a.StartedAt, _ = time.Parse(timeLayout, startedAt)
		a.Duration = time.Duration(durationMs) * time.Millisecond
		r.Attempts = append(r.Attempts, a)
	}
	return rows.Err()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
