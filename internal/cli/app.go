package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/insightdelivered/bank-statement-agent/internal/agent"
	"github.com/insightdelivered/bank-statement-agent/internal/artifact"
	"github.com/insightdelivered/bank-statement-agent/internal/config"
	"github.com/insightdelivered/bank-statement-agent/internal/executor"
	"github.com/insightdelivered/bank-statement-agent/internal/extractor"
	"github.com/insightdelivered/bank-statement-agent/internal/generator"
	"github.com/insightdelivered/bank-statement-agent/internal/history"
	"github.com/insightdelivered/bank-statement-agent/internal/layout"
	"github.com/insightdelivered/bank-statement-agent/internal/logging"
	"github.com/insightdelivered/bank-statement-agent/internal/models"
	"github.com/insightdelivered/bank-statement-agent/internal/reference"
	"github.com/insightdelivered/bank-statement-agent/internal/stmt"
	"github.com/insightdelivered/bank-statement-agent/internal/target"
	"github.com/insightdelivered/bank-statement-agent/internal/validator"
)

// app holds the components built from the loaded configuration.
type app struct {
	cfg        *config.Config
	fs         afero.Fs
	layout     layout.Layout
	references *reference.Loader
	extractor  *extractor.Extractor
	store      *artifact.Store
	executor   executor.Executor
	history    *history.DB
	logger     zerolog.Logger

	// generator is built on first use so commands that never generate
	// do not need provider credentials.
	mu        sync.Mutex
	generator generator.Generator
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	fsys := afero.NewOsFs()

	l := layout.New(cfg.DataDir, cfg.ParsersDir)
	l.Samples = map[string]string{}
	for name, t := range cfg.Targets {
		if t.Sample != "" {
			l.Samples[name] = t.Sample
		}
	}

	ext := extractor.New(logging.Component("extractor"))
	stmt.Extractor = ext

	a := &app{
		cfg:        cfg,
		fs:         fsys,
		layout:     l,
		references: reference.NewLoader(fsys, l),
		extractor:  ext,
		store:      artifact.NewStore(fsys, l),
		logger:     logging.Component("agent"),
	}

	switch strings.ToLower(cfg.Executor.Mode) {
	case "inprocess":
		a.executor = &executor.Interpreter{Timeout: cfg.Executor.Timeout, Logger: logging.Component("executor")}
	default:
		sub, err := executor.NewSubprocess(cfg.Executor.Timeout, cfg.Executor.MaxOutputBytes, logging.Component("executor"))
		if err != nil {
			return nil, err
		}
		a.executor = sub
	}

	if cfg.History.Enabled {
		db, err := history.Open(ctx, cfg.History.Path, logging.Component("history"))
		if err != nil {
			return nil, err
		}
		a.history = db
	}
	return a, nil
}

func (a *app) Close() error {
	if a.history != nil {
		return a.history.Close()
	}
	return nil
}

func (a *app) prompts() *generator.PromptBuilder {
	templates := map[string]string{}
	for name, t := range a.cfg.Targets {
		if t.Template != "" {
			templates[name] = t.Template
		}
	}
	return &generator.PromptBuilder{
		References:    a.references,
		Extractor:     a.extractor,
		SamplePath:    a.layout.SamplePath,
		Templates:     templates,
		Fs:            a.fs,
		SampleChars:   a.cfg.Generator.SampleChars,
		ReferenceRows: a.cfg.Generator.ReferenceRows,
	}
}

// loop returns an agent loop; maxAttempts of zero uses the configured budget.
func (a *app) loop(maxAttempts int, obs agent.Observer) (*agent.Loop, error) {
	a.mu.Lock()
	if a.generator == nil {
		gen, err := generator.New(a.cfg.Generator, a.prompts(), logging.Component("generator"))
		if err != nil {
			a.mu.Unlock()
			return nil, fmt.Errorf("generator: %w", err)
		}
		a.generator = gen
	}
	gen := a.generator
	a.mu.Unlock()
	if maxAttempts <= 0 {
		maxAttempts = a.cfg.MaxAttempts
	}

	l := &agent.Loop{
		References:  a.references,
		Generator:   gen,
		Store:       a.store,
		Executor:    a.executor,
		Validator:   validator.Validator{},
		SamplePath:  a.layout.SamplePath,
		Fs:          a.fs,
		MaxAttempts: maxAttempts,
		LockTTL:     a.cfg.LockTTL,
		Observer:    obs,
		Logger:      a.logger,
	}
	if a.history != nil {
		l.Recorder = a.history
	}
	return l, nil
}

// registry knows every configured target plus every data directory that
// holds an expected CSV.
func (a *app) registry() (*target.Registry, error) {
	keywords := map[string][]string{}
	for name, t := range a.cfg.Targets {
		keywords[name] = t.Keywords
	}

	entries, err := afero.ReadDir(a.fs, a.cfg.DataDir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read data dir: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		id, err := target.Normalize(e.Name())
		if err != nil {
			continue
		}
		if _, ok := keywords[id]; ok {
			continue
		}
		if exists, _ := afero.Exists(a.fs, a.layout.ReferencePath(id)); exists {
			keywords[id] = nil
		}
	}
	return target.NewRegistry(keywords), nil
}

// detect picks the target for a statement by its extracted text.
func (a *app) detect(ctx context.Context, path string) (string, error) {
	reg, err := a.registry()
	if err != nil {
		return "", err
	}
	pages, err := a.extractor.Pages(ctx, path)
	if err != nil {
		return "", err
	}
	return reg.Detect(pages)
}

// acceptanceWarning is non-empty when the latest recorded run for id did
// not accept its parser.
func (a *app) acceptanceWarning(ctx context.Context, id string) string {
	if a.history == nil {
		return ""
	}
	runs, err := a.history.List(ctx, id, 1)
	if err != nil {
		a.logger.Debug().Err(err).Str("target", id).Msg("could not read run history")
		return ""
	}
	if len(runs) == 0 {
		return ""
	}
	return models.UnacceptedWarning(runs[0])
}

func csvPath(input string) string {
	return strings.TrimSuffix(input, filepath.Ext(input)) + ".csv"
}
