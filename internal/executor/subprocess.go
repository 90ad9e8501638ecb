package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/insightdelivered/bank-statement-agent/internal/models"
)

const maxStderr = 16 << 10

// Subprocess runs each parser in a child process: Command with Args, then
// the artifact path and the input path. The child is expected to be this
// binary's exec-parser command, which calls RunChild.
type Subprocess struct {
	Command        string
	Args           []string
	Env            []string
	Timeout        time.Duration
	MaxOutputBytes int64
	Logger         zerolog.Logger
}

// NewSubprocess re-executes the running binary.
func NewSubprocess(timeout time.Duration, maxOutput int64, logger zerolog.Logger) (*Subprocess, error) {
	self, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locate executable: %w", err)
	}
	return &Subprocess{
		Command:        self,
		Args:           []string{"exec-parser"},
		Timeout:        timeout,
		MaxOutputBytes: maxOutput,
		Logger:         logger,
	}, nil
}

// Execute implements Executor. The artifact is read from disk by the child.
func (s *Subprocess) Execute(ctx context.Context, artifact models.Artifact, inputPath string) (*models.Table, error) {
	runCtx := ctx
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	args := append(append([]string{}, s.Args...), artifact.Path, inputPath)
	cmd := exec.CommandContext(runCtx, s.Command, args...)
	if len(s.Env) > 0 {
		cmd.Env = append(os.Environ(), s.Env...)
	}

	stdout := &capWriter{max: s.MaxOutputBytes}
	stderr := &capWriter{max: maxStderr}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	err := cmd.Run()
	s.Logger.Debug().
		Str("artifact", artifact.Path).
		Dur("elapsed", time.Since(start)).
		Int("stdout_bytes", stdout.buf.Len()).
		Err(err).
		Msg("parser child exited")

	if runCtx.Err() != nil {
		if ctx.Err() == nil && s.Timeout > 0 {
			return nil, &ExecutionError{
				Detail:   fmt.Sprintf("parser timed out after %s", s.Timeout),
				TimedOut: true,
				Err:      runCtx.Err(),
			}
		}
		return nil, timeoutError(runCtx.Err())
	}
	if stdout.overflow {
		return nil, execError(nil, "parser output exceeded %d bytes", s.MaxOutputBytes)
	}

	var env Envelope
	if decErr := json.Unmarshal(stdout.buf.Bytes(), &env); decErr != nil {
		detail := strings.TrimSpace(stderr.buf.String())
		if err == nil {
			err = decErr
		}
		if detail == "" {
			detail = err.Error()
		}
		return nil, execError(err, "parser process failed: %s", detail)
	}
	if env.Error != "" {
		return nil, execError(errors.New(env.Error), "%s", env.Error)
	}
	if err != nil {
		return nil, execError(err, "parser process failed: %v", err)
	}
	return checkResult(env.Columns, env.Rows)
}

// capWriter keeps the first max bytes and records whether more arrived.
// It never fails a write, so the child is not blocked on a full pipe.
type capWriter struct {
	buf      bytes.Buffer
	max      int64
	overflow bool
}

func (w *capWriter) Write(p []byte) (int, error) {
	if w.max <= 0 {
		w.buf.Write(p)
		return len(p), nil
	}
	room := w.max - int64(w.buf.Len())
	if int64(len(p)) > room {
		w.overflow = true
		if room > 0 {
			w.buf.Write(p[:room])
		}
		return len(p), nil
	}
	w.buf.Write(p)
	return len(p), nil
}
