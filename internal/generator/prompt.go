package generator

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"strings"
	"sync"
	"text/template"

	"github.com/spf13/afero"

	"github.com/insightdelivered/bank-statement-agent/internal/models"
	"github.com/insightdelivered/bank-statement-agent/internal/stmt"
	"github.com/insightdelivered/bank-statement-agent/internal/table"
)

//go:embed templates/parser.tmpl
var defaultTemplate string

// Contract is the fixed shape every generated parser must have.
const Contract = `package main

import "bankagent/stmt"

// Parse reads the statement at path and returns the transaction table.
func Parse(path string) (columns []string, rows [][]string, err error)

Only these imports are allowed: bankagent/stmt, strings, strconv, regexp,
fmt, errors, math, sort, time, unicode, unicode/utf8, bytes.
Every row must have one cell per column. Return an error instead of
panicking when the statement cannot be parsed.`

const systemPrompt = `You are an expert Go developer who writes robust bank statement parsers.
You answer with a single complete Go source file and nothing else.`

// ReferenceLoader supplies the expected table for a target.
type ReferenceLoader interface {
	Load(target string) (*models.Table, error)
}

// TextExtractor supplies the sample statement text.
type TextExtractor interface {
	Text(ctx context.Context, path string) (string, error)
}

// PromptData is what prompt templates are executed against.
type PromptData struct {
	Target             string
	Columns            []string
	ReferenceCSV       string
	ReferenceRowCount  int
	ReferenceTruncated bool
	SampleText         string
	HelperAPI          string
	Contract           string
	PriorFailure       string
}

// PromptBuilder renders the generation prompt for a target.
type PromptBuilder struct {
	References ReferenceLoader
	Extractor  TextExtractor
	// SamplePath resolves the sample statement for a target.
	SamplePath func(target string) string
	// Templates maps targets to template files that replace the default.
	Templates map[string]string
	Fs        afero.Fs

	SampleChars   int
	ReferenceRows int

	mu      sync.Mutex
	samples map[string]string
}

// Build returns the system and user prompts. Errors are permanent: the
// same inputs will not render on a later attempt either.
func (b *PromptBuilder) Build(ctx context.Context, target, priorFailure string) (string, string, error) {
	tmpl, err := b.template(target)
	if err != nil {
		return "", "", err
	}

	ref, err := b.References.Load(target)
	if err != nil {
		return "", "", err
	}

	rows := b.ReferenceRows
	if rows <= 0 {
		rows = 5
	}
	var csv bytes.Buffer
	if err := table.Write(&csv, ref.Head(rows)); err != nil {
		return "", "", err
	}

	data := PromptData{
		Target:             target,
		Columns:            ref.Columns,
		ReferenceCSV:       strings.TrimRight(csv.String(), "\n"),
		ReferenceRowCount:  len(ref.Rows),
		ReferenceTruncated: len(ref.Rows) > rows,
		SampleText:         b.sampleText(ctx, target),
		HelperAPI:          stmt.API,
		Contract:           Contract,
		PriorFailure:       priorFailure,
	}

	var out bytes.Buffer
	if err := tmpl.Execute(&out, data); err != nil {
		return "", "", fmt.Errorf("render prompt template: %w", err)
	}
	return systemPrompt, out.String(), nil
}

func (b *PromptBuilder) template(target string) (*template.Template, error) {
	text := defaultTemplate
	name := "default"
	if path := b.Templates[target]; path != "" {
		fs := b.Fs
		if fs == nil {
			fs = afero.NewOsFs()
		}
		data, err := afero.ReadFile(fs, path)
		if err != nil {
			return nil, fmt.Errorf("read prompt template: %w", err)
		}
		text, name = string(data), path
	}
	tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse prompt template %s: %w", name, err)
	}
	return tmpl, nil
}

// sampleText extracts the sample once per target. Extraction problems are
// reported inside the prompt; the model can still work from the reference.
func (b *PromptBuilder) sampleText(ctx context.Context, target string) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if s, ok := b.samples[target]; ok {
		return s
	}
	if b.Extractor == nil || b.SamplePath == nil {
		return "(sample text unavailable)"
	}

	text, err := b.Extractor.Text(ctx, b.SamplePath(target))
	if err != nil {
		// Not cached, a cancelled context may have caused it.
		return fmt.Sprintf("(sample text unavailable: %v)", err)
	}

	limit := b.SampleChars
	if limit > 0 && len(text) > limit {
		text = text[:limit] + "\n[truncated]"
	}
	if b.samples == nil {
		b.samples = make(map[string]string)
	}
	b.samples[target] = text
	return text
}
