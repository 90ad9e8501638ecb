package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/insightdelivered/bank-statement-agent/internal/models"
	"github.com/insightdelivered/bank-statement-agent/internal/stmt"
)

type parseFunc = func(string) ([]string, [][]string, error)

// Interpreter evaluates parser source in-process with yaegi. Each call uses
// a fresh interpreter, so nothing carries over between attempts.
type Interpreter struct {
	Timeout time.Duration
	Logger  zerolog.Logger
}

// Execute implements Executor using the artifact's in-memory source.
func (in *Interpreter) Execute(ctx context.Context, artifact models.Artifact, inputPath string) (*models.Table, error) {
	return in.Run(ctx, artifact.Source, inputPath)
}

// Run evaluates src and calls its Parse function on inputPath.
func (in *Interpreter) Run(ctx context.Context, src, inputPath string) (*models.Table, error) {
	if in.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, in.Timeout)
		defer cancel()
	}

	if err := CheckImports(src); err != nil {
		return nil, execError(err, "parser rejected: %v", err)
	}

	parse, err := load(ctx, src)
	if err != nil {
		return nil, err
	}

	type result struct {
		columns []string
		rows    [][]string
		err     error
	}
	done := make(chan result, 1)

	start := time.Now()
	go func() {
		var r result
		defer func() {
			if p := recover(); p != nil {
				r = result{err: fmt.Errorf("panic: %v", p)}
			}
			done <- r
		}()
		r.columns, r.rows, r.err = parse(inputPath)
	}()

	select {
	case r := <-done:
		in.Logger.Debug().Dur("elapsed", time.Since(start)).Err(r.err).Msg("parser finished")
		if r.err != nil {
			return nil, execError(r.err, "parser failed: %v", r.err)
		}
		return checkResult(r.columns, r.rows)
	case <-ctx.Done():
		// The interpreted goroutine cannot be stopped; Subprocess exists
		// for callers that need it killed.
		return nil, timeoutError(ctx.Err())
	}
}

func load(ctx context.Context, src string) (fn parseFunc, err error) {
	defer func() {
		if p := recover(); p != nil {
			fn, err = nil, execError(nil, "parser failed to compile: panic: %v", p)
		}
	}()

	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("load stdlib symbols: %w", err)
	}
	if err := i.Use(stmt.Symbols); err != nil {
		return nil, fmt.Errorf("load helper symbols: %w", err)
	}

	if _, err := i.EvalWithContext(ctx, src); err != nil {
		if ctx.Err() != nil {
			return nil, timeoutError(ctx.Err())
		}
		return nil, execError(err, "parser failed to compile: %v", err)
	}

	v, err := i.Eval("main.Parse")
	if err != nil {
		return nil, execError(err, "parser does not define Parse: %v", err)
	}
	parse, ok := v.Interface().(parseFunc)
	if !ok {
		return nil, execError(nil, "Parse has signature %s, want func(path string) (columns []string, rows [][]string, err error)", v.Type())
	}
	return parse, nil
}

func timeoutError(err error) *ExecutionError {
	if errors.Is(err, context.DeadlineExceeded) {
		return &ExecutionError{Detail: "parser timed out", TimedOut: true, Err: err}
	}
	return &ExecutionError{Detail: "parser run cancelled", Err: err}
}
