package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/insightdelivered/bank-statement-agent/internal/config"
)

// Claude shells out to a local claude CLI in print mode.
type Claude struct {
	Bin     string
	Model   string
	Timeout time.Duration
}

type claudeResponse struct {
	Type    string `json:"type"`
	IsError bool   `json:"is_error"`
	Result  string `json:"result"`
}

// NewClaude returns a CLI backend. Authentication is the CLI's concern.
func NewClaude(cfg config.GeneratorConfig) *Claude {
	bin := cfg.ClaudeBin
	if bin == "" {
		bin = "claude"
	}
	return &Claude{Bin: bin, Model: cfg.Model, Timeout: cfg.Timeout}
}

// Complete runs `claude -p --output-format json` with the combined prompt.
func (c *Claude) Complete(ctx context.Context, system, user string) (string, error) {
	if _, err := exec.LookPath(c.Bin); err != nil {
		return "", permanent("claude CLI not found", err)
	}

	args := []string{"-p", "--output-format", "json", "--append-system-prompt", system}
	if c.Model != "" {
		args = append(args, "--model", c.Model)
	}
	args = append(args, user)

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	out, err := exec.CommandContext(ctx, c.Bin, args...).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			err = fmt.Errorf("%w: %s", err, exitErr.Stderr)
		}
		return "", transient("claude execution failed", err)
	}

	var resp claudeResponse
	if err := json.Unmarshal(out, &resp); err != nil {
		// Older CLIs print plain text.
		return string(out), nil
	}
	if resp.IsError {
		return "", transient("claude returned error", errors.New(resp.Result))
	}
	return resp.Result, nil
}
