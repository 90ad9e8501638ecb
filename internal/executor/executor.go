// Package executor runs generated parser source against a statement and
// returns the table it produces.
//
// Generated code is untrusted. The Interpreter evaluates it with yaegi
// behind an import allow-list; Subprocess additionally moves evaluation
// into a child process with a hard timeout and an output cap, so a parser
// that hangs or crashes cannot take the orchestrator with it.
package executor

import (
	"context"
	"fmt"

	"github.com/insightdelivered/bank-statement-agent/internal/models"
)

// Executor runs an artifact against inputPath.
type Executor interface {
	Execute(ctx context.Context, artifact models.Artifact, inputPath string) (*models.Table, error)
}

// ExecutionError carries the failure text of a parser run verbatim. It is
// fed back to the generator on the next attempt.
type ExecutionError struct {
	Detail   string
	TimedOut bool
	Err      error
}

func (e *ExecutionError) Error() string {
	return e.Detail
}

func (e *ExecutionError) Unwrap() error { return e.Err }

func execError(err error, format string, args ...any) *ExecutionError {
	return &ExecutionError{Detail: fmt.Sprintf(format, args...), Err: err}
}

// Envelope is what the child process writes to stdout.
type Envelope struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
	Error   string     `json:"error,omitempty"`
}

// checkResult turns parser output into a table, rejecting malformed shapes.
func checkResult(columns []string, rows [][]string) (*models.Table, error) {
	if rows == nil {
		rows = [][]string{}
	}
	t := &models.Table{Columns: columns, Rows: rows}
	if err := t.Validate(); err != nil {
		return nil, execError(err, "parser returned a malformed table: %v", err)
	}
	return t, nil
}
