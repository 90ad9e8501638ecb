// Package agent runs the bounded generate, execute, validate and repair
// loop that produces a parser for one target.
package agent

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/insightdelivered/bank-statement-agent/internal/executor"
	"github.com/insightdelivered/bank-statement-agent/internal/generator"
	"github.com/insightdelivered/bank-statement-agent/internal/models"
	"github.com/insightdelivered/bank-statement-agent/internal/target"
	"github.com/insightdelivered/bank-statement-agent/internal/validator"
)

// DefaultMaxAttempts is the attempt budget when none is configured.
const DefaultMaxAttempts = 3

var (
	// ErrInputMissing means the target has no sample statement to test against.
	ErrInputMissing = errors.New("sample statement missing")
	// ErrArtifactWrite means generated source could not be persisted.
	ErrArtifactWrite = errors.New("artifact write failed")
)

// ReferenceLoader supplies the expected table for a target.
type ReferenceLoader interface {
	Load(target string) (*models.Table, error)
}

// ArtifactStore persists the latest parser per target and guards runs.
type ArtifactStore interface {
	Write(target, source string) (models.Artifact, error)
	Lock(target string, ttl time.Duration) (func() error, error)
}

// Validator compares a parser's output with the reference.
type Validator interface {
	Validate(result, reference *models.Table) validator.Report
}

// Observer is told about attempt boundaries. Calls happen on the Run
// goroutine.
type Observer interface {
	AttemptStarted(target string, n int)
	AttemptFinished(target string, attempt models.Attempt)
}

// Recorder stores finished runs.
type Recorder interface {
	Save(ctx context.Context, result *models.LoopResult) error
}

// Loop wires the collaborators of a run. It holds no per-run state, so one
// Loop may run different targets concurrently.
type Loop struct {
	References ReferenceLoader
	Generator  generator.Generator
	Store      ArtifactStore
	Executor   executor.Executor
	Validator  Validator

	// SamplePath resolves the statement every attempt is executed against.
	SamplePath func(target string) string
	// Fs is used to check that the sample exists.
	Fs afero.Fs

	MaxAttempts int
	LockTTL     time.Duration

	Observer Observer
	Recorder Recorder
	Logger   zerolog.Logger

	now func() time.Time
}

// Run produces a parser for target. It never returns an error: every
// outcome, including fatal ones, is described by the result.
func (l *Loop) Run(ctx context.Context, name string) *models.LoopResult {
	now := l.now
	if now == nil {
		now = time.Now
	}
	maxAttempts := l.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	res := &models.LoopResult{
		RunID:       ulid.Make().String(),
		Target:      name,
		MaxAttempts: maxAttempts,
		Attempts:    []models.Attempt{},
		StartedAt:   now().UTC(),
	}
	log := l.Logger.With().Str("run_id", res.RunID).Str("target", name).Logger()

	var state models.LoopState
	finish := func(status models.Status, err error) *models.LoopResult {
		if !state.Finish(status) {
			log.Error().Str("status", string(status)).Msg("run finished twice; keeping first status")
			return res
		}
		res.Status = state.Status
		res.AttemptsUsed = len(res.Attempts)
		res.LastFailure = state.LastFailure
		res.Duration = now().Sub(res.StartedAt)
		if err != nil {
			res.Error = err.Error()
		}

		ev := log.Info()
		if status == models.StatusFatal {
			ev = log.Error().Err(err)
		}
		ev.Str("status", string(status)).
			Int("attempts", res.AttemptsUsed).
			Dur("duration", res.Duration).
			Msg("run finished")

		if l.Recorder != nil {
			if err := l.Recorder.Save(context.WithoutCancel(ctx), res); err != nil {
				log.Warn().Err(err).Msg("failed to record run")
			}
		}
		return res
	}

	id, err := target.Normalize(name)
	if err != nil {
		return finish(models.StatusFatal, err)
	}
	res.Target = id

	release, err := l.Store.Lock(id, l.LockTTL)
	if err != nil {
		return finish(models.StatusFatal, err)
	}
	defer func() {
		if err := release(); err != nil {
			log.Warn().Err(err).Msg("failed to release target lock")
		}
	}()

	if rs, ok := l.Generator.(generator.RunScoped); ok {
		rs.BeginRun(id)
	}

	ref, err := l.References.Load(id)
	if err != nil {
		return finish(models.StatusFatal, err)
	}
	sample := l.SamplePath(id)
	if err := l.checkSample(sample); err != nil {
		return finish(models.StatusFatal, err)
	}

	log.Info().Int("max_attempts", maxAttempts).Int("reference_rows", len(ref.Rows)).Msg("run started")

	for n := 1; n <= maxAttempts; n++ {
		state.Attempt = n
		if err := ctx.Err(); err != nil {
			return finish(models.StatusFatal, err)
		}
		if l.Observer != nil {
			l.Observer.AttemptStarted(id, n)
		}

		a, art, fatal := l.attempt(ctx, id, n, state.LastFailure, ref, sample, now)
		res.Attempts = append(res.Attempts, a)
		if art != nil {
			res.Artifact = art
		}
		if l.Observer != nil {
			l.Observer.AttemptFinished(id, a)
		}
		log.Info().
			Int("attempt", a.Number).
			Str("outcome", string(a.Outcome)).
			Dur("duration", a.Duration).
			Msg("attempt finished")

		if fatal != nil {
			return finish(models.StatusFatal, fatal)
		}
		if a.Outcome == models.OutcomeSuccess {
			state.LastFailure = ""
			return finish(models.StatusSuccess, nil)
		}
		state.LastFailure = a.Detail
	}

	return finish(models.StatusExhausted, nil)
}

// attempt runs one generate, persist, execute, validate cycle. Failures
// that the next attempt may repair come back in the Attempt; a non-nil
// error ends the run.
func (l *Loop) attempt(ctx context.Context, id string, n int, prior string, ref *models.Table, sample string, now func() time.Time) (models.Attempt, *models.Artifact, error) {
	a := models.Attempt{Number: n, StartedAt: now().UTC()}
	done := func(o models.Outcome, detail string) {
		a.Outcome, a.Detail, a.Duration = o, detail, now().Sub(a.StartedAt)
	}

	src, err := l.Generator.Generate(ctx, id, prior)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			done(models.OutcomeAborted, ctxErr.Error())
			return a, nil, ctxErr
		}
		if generator.IsPermanent(err) {
			done(models.OutcomeAborted, err.Error())
			return a, nil, err
		}
		done(models.OutcomeGenerationError, err.Error())
		return a, nil, nil
	}
	a.Source = src

	// A backend that ignores cancellation must not replace the artifact.
	if ctxErr := ctx.Err(); ctxErr != nil {
		done(models.OutcomeAborted, ctxErr.Error())
		return a, nil, ctxErr
	}

	art, err := l.Store.Write(id, src)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrArtifactWrite, err)
		done(models.OutcomeAborted, err.Error())
		return a, nil, err
	}

	result, err := l.Executor.Execute(ctx, art, sample)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			done(models.OutcomeAborted, ctxErr.Error())
			return a, &art, ctxErr
		}
		done(models.OutcomeExecutionError, err.Error())
		return a, &art, nil
	}

	report := l.Validator.Validate(result, ref)
	if report.Pass {
		done(models.OutcomeSuccess, "")
	} else {
		done(models.OutcomeValidationMismatch, report.Diff)
	}
	return a, &art, nil
}

func (l *Loop) checkSample(path string) error {
	fsys := l.Fs
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	info, err := fsys.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrInputMissing, path)
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInputMissing, path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrInputMissing, path)
	}
	return nil
}
