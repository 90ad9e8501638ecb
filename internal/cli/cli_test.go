package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/insightdelivered/bank-statement-agent/internal/models"
)

const sampleStatement = `ICICI Bank Statement of account
Date        Description        Amount
01-08-2024  Opening deposit    100.00
02-08-2024  Coffee             -4.50
03-08-2024  Salary             2500.00
`

const referenceCSV = "date,amount\n01-08-2024,100.00\n02-08-2024,-4.50\n03-08-2024,2500.00\n"

const dateOnlyParser = `package main

import "bankagent/stmt"

func Parse(path string) ([]string, [][]string, error) {
	pages, err := stmt.Pages(path)
	if err != nil {
		return nil, nil, err
	}
	var rows [][]string
	for _, line := range stmt.Lines(pages) {
		if stmt.StartsWithDate(line) {
			rows = append(rows, []string{stmt.ExtractDate(line)})
		}
	}
	return []string{"date"}, rows, nil
}
`

const fullParser = "```go\n" + `package main

import "bankagent/stmt"

func Parse(path string) ([]string, [][]string, error) {
	pages, err := stmt.Pages(path)
	if err != nil {
		return nil, nil, err
	}
	var rows [][]string
	for _, line := range stmt.Lines(pages) {
		if !stmt.StartsWithDate(line) {
			continue
		}
		cols := stmt.SplitColumns(line)
		rows = append(rows, []string{cols[0], cols[len(cols)-1]})
	}
	return []string{"date", "amount"}, rows, nil
}
` + "```\n"

type workspace struct {
	dir    string
	config string
	sample string
	replay string
}

// newWorkspace lays out one target with a sample, a reference and a
// scripted generator that fixes the parser on its second response.
func newWorkspace(t *testing.T, responses ...string) *workspace {
	t.Helper()
	dir := t.TempDir()
	w := &workspace{
		dir:    dir,
		config: filepath.Join(dir, "bank-agent.yaml"),
		sample: filepath.Join(dir, "data", "icici", "icici_sample.txt"),
		replay: filepath.Join(dir, "replay"),
	}

	require.NoError(t, os.MkdirAll(filepath.Dir(w.sample), 0o755))
	require.NoError(t, os.MkdirAll(w.replay, 0o755))
	require.NoError(t, os.WriteFile(w.sample, []byte(sampleStatement), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data", "icici", "result.csv"), []byte(referenceCSV), 0o644))
	for i, r := range responses {
		name := filepath.Join(w.replay, "attempt-"+string(rune('1'+i))+".txt")
		require.NoError(t, os.WriteFile(name, []byte(r), 0o644))
	}

	cfg := map[string]any{
		"data_dir":    filepath.Join(dir, "data"),
		"parsers_dir": filepath.Join(dir, "custom_parsers"),
		"generator": map[string]any{
			"provider":   "replay",
			"replay_dir": w.replay,
		},
		"executor": map[string]any{"mode": "inprocess", "timeout": "10s"},
		"history":  map[string]any{"enabled": true, "path": filepath.Join(dir, "history.db")},
		"logging":  map[string]any{"level": "error"},
		"targets": map[string]any{
			"icici": map[string]any{"keywords": []string{"ICICI Bank"}, "sample": w.sample},
			"sbi":   map[string]any{"keywords": []string{"State Bank of India"}},
		},
	}
	data, err := yaml.Marshal(cfg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(w.config, data, 0o644))
	return w
}

// runCLI executes the root command with fresh flag state.
func runCLI(t *testing.T, w *workspace, args ...string) (string, error) {
	t.Helper()
	cfgFile, outputFormat, noColor, verbose, logLevel, logFormat = "", "text", false, false, "", ""
	runMaxAttempts, runParallel, runQuiet = 0, 1, false
	convertTarget, convertOut = "", ""
	extractPage = 0
	historyLimit, historyRun = 20, ""

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(append([]string{"--config", w.config, "--no-color"}, args...))
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRunRepairsParser(t *testing.T) {
	w := newWorkspace(t, dateOnlyParser, fullParser)

	out, err := runCLI(t, w, "run", "ICICI", "-o", "json")
	require.NoError(t, err)

	var res models.LoopResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, models.StatusSuccess, res.Status)
	assert.Equal(t, "icici", res.Target)
	assert.Equal(t, 2, res.AttemptsUsed)
	require.Len(t, res.Attempts, 2)
	assert.Equal(t, models.OutcomeValidationMismatch, res.Attempts[0].Outcome)
	assert.Contains(t, res.Attempts[0].Detail, `missing columns: "amount"`)
	assert.Equal(t, models.OutcomeSuccess, res.Attempts[1].Outcome)

	src, err := os.ReadFile(filepath.Join(w.dir, "custom_parsers", "icici_parser.go"))
	require.NoError(t, err)
	assert.Contains(t, string(src), "stmt.SplitColumns")
	assert.NotContains(t, string(src), "```")
}

func TestRunExhaustedExitsNonZero(t *testing.T) {
	w := newWorkspace(t, dateOnlyParser, dateOnlyParser)

	out, err := runCLI(t, w, "run", "icici", "--max-attempts", "2")
	require.Error(t, err)

	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 1, exitErr.Code)
	assert.True(t, exitErr.Printed)

	assert.Contains(t, out, "icici: exhausted after 2 of 2 attempts")
	assert.Contains(t, out, "last failure:")
	assert.Contains(t, out, `missing columns: "amount"`)
}

func TestRunMissingReferenceIsFatal(t *testing.T) {
	w := newWorkspace(t, fullParser)

	out, err := runCLI(t, w, "run", "sbi", "-o", "yaml")
	require.Error(t, err)

	var res models.LoopResult
	require.NoError(t, yaml.Unmarshal([]byte(out), &res))
	assert.Equal(t, models.StatusFatal, res.Status)
	assert.Equal(t, 0, res.AttemptsUsed)
	assert.Contains(t, res.Error, "reference")
}

func TestHistoryListsRuns(t *testing.T) {
	w := newWorkspace(t, fullParser)
	_, err := runCLI(t, w, "run", "icici")
	require.NoError(t, err)

	out, err := runCLI(t, w, "history", "icici", "-o", "json")
	require.NoError(t, err)

	var runs []models.LoopResult
	require.NoError(t, json.Unmarshal([]byte(out), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, models.StatusSuccess, runs[0].Status)

	out, err = runCLI(t, w, "history", "--run", runs[0].RunID)
	require.NoError(t, err)
	assert.Contains(t, out, "icici: success after 1 of 3 attempts")
}

func TestConvertWithGeneratedParser(t *testing.T) {
	w := newWorkspace(t, fullParser)
	_, err := runCLI(t, w, "run", "icici")
	require.NoError(t, err)

	out, err := runCLI(t, w, "convert", "--out", "-", w.sample)
	require.NoError(t, err)
	assert.Equal(t, referenceCSV, out)

	_, err = runCLI(t, w, "convert", "--target", "icici", w.sample)
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(w.dir, "data", "icici", "icici_sample.csv"))
	require.NoError(t, err)
	assert.Equal(t, referenceCSV, string(data))
}

func TestConvertWarnsAfterExhaustedRun(t *testing.T) {
	w := newWorkspace(t, dateOnlyParser)
	_, err := runCLI(t, w, "run", "icici", "--max-attempts", "1")
	require.Error(t, err)

	out, err := runCLI(t, w, "convert", "--target", "icici", "-o", "json", w.sample)
	require.NoError(t, err)

	var done []struct {
		Target  string `json:"target"`
		Warning string `json:"warning"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &done))
	require.Len(t, done, 1)
	assert.Equal(t, "icici", done[0].Target)
	assert.Contains(t, done[0].Warning, "ended exhausted")
	assert.Contains(t, done[0].Warning, "never accepted")
}

func TestConvertWithoutParser(t *testing.T) {
	w := newWorkspace(t)

	_, err := runCLI(t, w, "convert", "--target", "icici", w.sample)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no parser for icici")
}

func TestDetectAndExtract(t *testing.T) {
	w := newWorkspace(t)

	out, err := runCLI(t, w, "detect", w.sample)
	require.NoError(t, err)
	assert.Equal(t, "icici\n", out)

	out, err = runCLI(t, w, "extract", "--page", "1", w.sample)
	require.NoError(t, err)
	assert.Contains(t, out, "--- page 1 ---")
	assert.Contains(t, out, "02-08-2024  Coffee")

	_, err = runCLI(t, w, "extract", "--page", "3", w.sample)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestUnknownOutputFormat(t *testing.T) {
	w := newWorkspace(t)

	_, err := runCLI(t, w, "version", "-o", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown output format")
}
