package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insightdelivered/bank-statement-agent/internal/models"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenInMemory(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleRun(id, target string, status models.Status, started time.Time) *models.LoopResult {
	r := &models.LoopResult{
		RunID:        id,
		Target:       target,
		Status:       status,
		AttemptsUsed: 2,
		MaxAttempts:  3,
		StartedAt:    started,
		Duration:     1500 * time.Millisecond,
		Attempts: []models.Attempt{
			{Number: 1, Source: "package main // 1", Outcome: models.OutcomeValidationMismatch, Detail: `missing columns: "amount"`, StartedAt: started, Duration: time.Second},
			{Number: 2, Source: "package main // 2", Outcome: models.OutcomeSuccess, StartedAt: started.Add(time.Second), Duration: 500 * time.Millisecond},
		},
	}
	if status == models.StatusSuccess {
		r.Artifact = &models.Artifact{Target: target, Path: "custom_parsers/" + target + "_parser.go", SHA256: "abc123"}
	} else {
		r.LastFailure = "row count differs"
	}
	return r
}

func TestSaveAndGet(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	started := time.Date(2024, 8, 1, 10, 0, 0, 0, time.UTC)

	run := sampleRun("01J000000000000000000000A1", "icici", models.StatusSuccess, started)
	require.NoError(t, db.Save(ctx, run))

	got, err := db.Get(ctx, run.RunID)
	require.NoError(t, err)

	assert.Equal(t, run.RunID, got.RunID)
	assert.Equal(t, models.StatusSuccess, got.Status)
	assert.Equal(t, 2, got.AttemptsUsed)
	assert.Equal(t, 3, got.MaxAttempts)
	assert.True(t, started.Equal(got.StartedAt))
	assert.Equal(t, 1500*time.Millisecond, got.Duration)
	require.NotNil(t, got.Artifact)
	assert.Equal(t, "abc123", got.Artifact.SHA256)

	require.Len(t, got.Attempts, 2)
	assert.Equal(t, models.OutcomeValidationMismatch, got.Attempts[0].Outcome)
	assert.Equal(t, `missing columns: "amount"`, got.Attempts[0].Detail)
	assert.Empty(t, got.Attempts[0].Source, "sources are not journaled")
}

func TestGetMissing(t *testing.T) {
	db := setupTestDB(t)
	_, err := db.Get(context.Background(), "nope")
	require.ErrorIs(t, err, ErrRunNotFound)
}

func TestSaveDuplicateFails(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	run := sampleRun("dup", "icici", models.StatusSuccess, time.Now())

	require.NoError(t, db.Save(ctx, run))
	require.Error(t, db.Save(ctx, run))

	runs, err := db.List(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
	assert.Len(t, runs[0].Attempts, 2, "failed save rolled back")
}

func TestList(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	base := time.Date(2024, 8, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, db.Save(ctx, sampleRun("r1", "icici", models.StatusExhausted, base)))
	require.NoError(t, db.Save(ctx, sampleRun("r2", "hdfc", models.StatusSuccess, base.Add(time.Minute))))
	require.NoError(t, db.Save(ctx, sampleRun("r3", "icici", models.StatusSuccess, base.Add(2*time.Minute))))

	all, err := db.List(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"r3", "r2", "r1"}, []string{all[0].RunID, all[1].RunID, all[2].RunID})

	icici, err := db.List(ctx, "icici", 0)
	require.NoError(t, err)
	require.Len(t, icici, 2)
	assert.Equal(t, "row count differs", icici[1].LastFailure)
	assert.Nil(t, icici[1].Artifact)

	latest, err := db.List(ctx, "", 1)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, "r3", latest[0].RunID)

	none, err := db.List(ctx, "sbi", 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestOpenFileDatabase(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "history.db")

	db, err := Open(ctx, path, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, db.Save(ctx, sampleRun("r1", "icici", models.StatusSuccess, time.Now())))
	require.NoError(t, db.Close())

	// Reopening must not re-run migrations.
	db, err = Open(ctx, path, zerolog.Nop())
	require.NoError(t, err)
	defer db.Close()

	runs, err := db.List(ctx, "icici", 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}
