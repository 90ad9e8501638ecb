package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"github.com/insightdelivered/bank-statement-agent/internal/models"
)

// Formatter renders command output as text, JSON or YAML.
type Formatter struct {
	out    io.Writer
	format string
	styles styles
}

// newFormatter builds a formatter using the current CLI flags.
func newFormatter(out io.Writer) *Formatter {
	return &Formatter{out: out, format: outputFormat, styles: newStyles(colorEnabled())}
}

// Write renders value; human is used for text output.
func (f *Formatter) Write(value any, human func(io.Writer, styles) error) error {
	switch f.format {
	case "json":
		data, err := json.MarshalIndent(value, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		_, err = fmt.Fprintln(f.out, string(data))
		return err
	case "yaml":
		enc := yaml.NewEncoder(f.out)
		enc.SetIndent(2)
		if err := enc.Encode(value); err != nil {
			return fmt.Errorf("failed to marshal YAML: %w", err)
		}
		return enc.Close()
	default:
		if human == nil {
			_, err := fmt.Fprintln(f.out, value)
			return err
		}
		return human(f.out, f.styles)
	}
}

func colorEnabled() bool {
	if noColor || outputFormat != "text" {
		return false
	}
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	return true
}

type styles struct {
	ok   lipgloss.Style
	warn lipgloss.Style
	fail lipgloss.Style
	dim  lipgloss.Style
	bold lipgloss.Style
}

func newStyles(color bool) styles {
	if !color {
		plain := lipgloss.NewStyle()
		return styles{ok: plain, warn: plain, fail: plain, dim: plain, bold: plain}
	}
	return styles{
		ok:   lipgloss.NewStyle().Foreground(lipgloss.Color("#8BC34A")).Bold(true),
		warn: lipgloss.NewStyle().Foreground(lipgloss.Color("#FFC107")).Bold(true),
		fail: lipgloss.NewStyle().Foreground(lipgloss.Color("#e53935")).Bold(true),
		dim:  lipgloss.NewStyle().Faint(true),
		bold: lipgloss.NewStyle().Bold(true),
	}
}

func (s styles) status(st models.Status) string {
	switch st {
	case models.StatusSuccess:
		return s.ok.Render(string(st))
	case models.StatusExhausted:
		return s.warn.Render(string(st))
	default:
		return s.fail.Render(string(st))
	}
}

func (s styles) outcome(o models.Outcome) string {
	switch o {
	case models.OutcomeSuccess:
		return s.ok.Render(string(o))
	case models.OutcomeAborted:
		return s.fail.Render(string(o))
	default:
		return s.warn.Render(string(o))
	}
}

func renderResult(w io.Writer, s styles, res *models.LoopResult) error {
	fmt.Fprintf(w, "%s: %s after %d of %d attempts %s\n",
		s.bold.Render(res.Target), s.status(res.Status), res.AttemptsUsed, res.MaxAttempts,
		s.dim.Render("("+res.Duration.Round(time.Millisecond).String()+")"))
	if res.Artifact != nil {
		fmt.Fprintf(w, "  parser: %s\n", res.Artifact.Path)
	}
	for _, a := range res.Attempts {
		line := fmt.Sprintf("  #%d %s", a.Number, s.outcome(a.Outcome))
		if a.Detail != "" && a.Outcome != models.OutcomeValidationMismatch {
			line += "  " + firstLine(a.Detail)
		}
		fmt.Fprintln(w, line)
	}
	if res.Status == models.StatusExhausted && res.LastFailure != "" {
		fmt.Fprintln(w, "  last failure:")
		fmt.Fprintln(w, indent(res.LastFailure, "    "))
	}
	if res.Error != "" {
		fmt.Fprintf(w, "  error: %s\n", res.Error)
	}
	return nil
}

func renderRunList(w io.Writer, s styles, runs []*models.LoopResult) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "no runs recorded")
		return err
	}
	for _, r := range runs {
		fmt.Fprintf(w, "%s  %-12s %s  %d/%d  %s\n",
			s.dim.Render(r.StartedAt.Local().Format("2006-01-02 15:04:05")),
			r.Target, s.status(r.Status), r.AttemptsUsed, r.MaxAttempts, r.RunID)
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}

// progress reports attempt boundaries on stderr while runs are in flight.
type progress struct {
	mu     sync.Mutex
	out    io.Writer
	styles styles
	max    map[string]int
}

func newProgress(out io.Writer, maxAttempts int, targets []string) *progress {
	p := &progress{out: out, styles: newStyles(colorEnabled()), max: map[string]int{}}
	for _, t := range targets {
		p.max[strings.ToLower(strings.TrimSpace(t))] = maxAttempts
	}
	return p
}

func (p *progress) AttemptStarted(target string, n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "%s attempt %d/%d ...\n", p.styles.bold.Render(target), n, p.max[target])
}

func (p *progress) AttemptFinished(target string, a models.Attempt) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "%s attempt %d %s %s\n", p.styles.bold.Render(target), a.Number,
		p.styles.outcome(a.Outcome), p.styles.dim.Render(a.Duration.Round(time.Millisecond).String()))
}
