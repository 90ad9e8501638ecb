// Package generator turns a target and the previous attempt's failure into
// candidate parser source by prompting a language model.
package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/insightdelivered/bank-statement-agent/internal/config"
)

// Generator produces parser source for a target. priorFailure is empty on
// the first attempt and otherwise the verbatim failure of the last one.
type Generator interface {
	Generate(ctx context.Context, target, priorFailure string) (string, error)
}

// Completer is a chat-style model backend.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// TargetCompleter is a Completer whose answers depend on the target.
type TargetCompleter interface {
	CompleteTarget(ctx context.Context, target, system, user string) (string, error)
}

// RunScoped is implemented by generators that keep per-run state. The
// agent loop calls BeginRun once per run, before the first attempt.
type RunScoped interface {
	BeginRun(target string)
}

// Adapter implements Generator on top of a Completer.
type Adapter struct {
	Completer Completer
	Prompts   *PromptBuilder
	Logger    zerolog.Logger
}

// BeginRun forwards to the backend when it keeps per-run state.
func (a *Adapter) BeginRun(target string) {
	if rs, ok := a.Completer.(RunScoped); ok {
		rs.BeginRun(target)
	}
}

// Generate builds the prompt, calls the model and extracts parser source.
// Every failure is a *GenerationError.
func (a *Adapter) Generate(ctx context.Context, target, priorFailure string) (string, error) {
	system, user, err := a.Prompts.Build(ctx, target, priorFailure)
	if err != nil {
		return "", &GenerationError{Target: target, Reason: "prompt", Permanent: true, Err: err}
	}

	a.Logger.Debug().
		Str("target", target).
		Int("prompt_chars", len(user)).
		Bool("repair", priorFailure != "").
		Msg("requesting parser source")

	var resp string
	if tc, ok := a.Completer.(TargetCompleter); ok {
		resp, err = tc.CompleteTarget(ctx, target, system, user)
	} else {
		resp, err = a.Completer.Complete(ctx, system, user)
	}
	if err != nil {
		var ge *GenerationError
		if errors.As(err, &ge) {
			ge.Target = target
			return "", ge
		}
		return "", &GenerationError{Target: target, Reason: "model request", Err: err}
	}

	code, err := ExtractCode(resp)
	if err != nil {
		return "", &GenerationError{Target: target, Reason: "unusable content", Err: err}
	}
	return code, nil
}

// New builds the generator for the configured provider.
func New(cfg config.GeneratorConfig, prompts *PromptBuilder, logger zerolog.Logger) (Generator, error) {
	var (
		c   Completer
		err error
	)
	switch strings.ToLower(cfg.Provider) {
	case "groq":
		c, err = NewGroq(cfg)
	case "gemini":
		c, err = NewGemini(context.Background(), cfg)
	case "claude":
		c = NewClaude(cfg)
	case "replay":
		c, err = NewReplay(cfg.ReplayDir)
	default:
		err = fmt.Errorf("unknown generator provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return &Adapter{Completer: c, Prompts: prompts, Logger: logger}, nil
}
