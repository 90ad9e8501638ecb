package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/insightdelivered/bank-statement-agent/internal/stmt"
)

// RunChild is the body of the exec-parser command. It interprets the
// artifact at artifactPath against inputPath and writes an Envelope to out.
// Parser failures go in the envelope; the returned error is reserved for
// failures of the child itself.
func RunChild(ctx context.Context, artifactPath, inputPath string, out io.Writer, logger zerolog.Logger) error {
	src, err := os.ReadFile(artifactPath)
	if err != nil {
		return fmt.Errorf("read artifact: %w", err)
	}

	stmt.Extractor.Logger = logger

	in := &Interpreter{Logger: logger}
	var env Envelope
	t, err := in.Run(ctx, string(src), inputPath)
	if err != nil {
		env.Error = err.Error()
	} else {
		env.Columns, env.Rows = t.Columns, t.Rows
	}
	return json.NewEncoder(out).Encode(env)
}

// RunChildStdout runs RunChild with the real stdout reserved for the
// envelope; anything the parser prints goes to stderr instead.
func RunChildStdout(ctx context.Context, artifactPath, inputPath string, logger zerolog.Logger) error {
	out := os.Stdout
	os.Stdout = os.Stderr
	defer func() { os.Stdout = out }()
	return RunChild(ctx, artifactPath, inputPath, out, logger)
}
