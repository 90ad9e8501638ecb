// Package extractor turns a statement file into per-page plain text.
//
// PDFs go through ledongthuc/pdf first, trying several layout strategies,
// then poppler's pdftotext, then OCR when no text layer is readable. Plain-text inputs (.txt) are returned as a single page, which
// keeps fixtures and tests free of binary PDFs.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog"
)

// ErrUnreadable is returned when no strategy yields readable text.
var ErrUnreadable = errors.New("no readable text could be extracted")

// Extractor extracts page text from statements.
type Extractor struct {
	// Pdftotext is the poppler binary used as a fallback; empty disables it.
	Pdftotext string
	Pdfinfo   string
	// Pdftoppm and Tesseract drive the OCR fallback; empty disables it.
	Pdftoppm  string
	Tesseract string
	Logger    zerolog.Logger
}

// New returns an extractor with the poppler and OCR fallbacks enabled.
func New(logger zerolog.Logger) *Extractor {
	return &Extractor{
		Pdftotext: "pdftotext",
		Pdfinfo:   "pdfinfo",
		Pdftoppm:  "pdftoppm",
		Tesseract: "tesseract",
		Logger:    logger,
	}
}

// Pages returns the text of each page of the statement at path.
func (e *Extractor) Pages(ctx context.Context, path string) ([]string, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	if strings.EqualFold(filepath.Ext(path), ".txt") {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return splitFormFeeds(string(data)), nil
	}

	pages, libErr := fromLibrary(path)
	if libErr == nil && Readable(pages) {
		return pages, nil
	}
	e.Logger.Debug().Err(libErr).Str("path", path).Msg("pdf library output unreadable, trying pdftotext")

	if e.Pdftotext != "" {
		popplerPages, err := e.fromPdftotext(ctx, path)
		if err == nil && Readable(popplerPages) {
			return popplerPages, nil
		}
		e.Logger.Debug().Err(err).Str("path", path).Msg("pdftotext fallback failed")
	}

	if e.Tesseract != "" {
		ocrPages, err := e.fromOCR(ctx, path)
		if err == nil && textLen(ocrPages) > 0 {
			e.Logger.Info().Str("path", path).Int("pages", len(ocrPages)).Msg("statement text recovered with OCR")
			return ocrPages, nil
		}
		e.Logger.Debug().Err(err).Str("path", path).Msg("OCR fallback failed")
	}

	if libErr != nil {
		return nil, fmt.Errorf("%w from %s: %v", ErrUnreadable, path, libErr)
	}
	return nil, fmt.Errorf("%w from %s: the file may be scanned or use undecodable fonts", ErrUnreadable, path)
}

// Text returns all pages joined by blank lines.
func (e *Extractor) Text(ctx context.Context, path string) (string, error) {
	pages, err := e.Pages(ctx, path)
	if err != nil {
		return "", err
	}
	return strings.Join(pages, "\n\n"), nil
}

func splitFormFeeds(s string) []string {
	parts := strings.Split(s, "\f")
	pages := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			pages = append(pages, strings.TrimRight(p, "\n"))
		}
	}
	if len(pages) == 0 {
		return []string{""}
	}
	return pages
}

// statementWords appear in nearly every bank statement. Text with none of
// them is almost always decoding garbage.
var statementWords = []string{
	"bank", "account", "balance", "date", "payment", "statement",
	"total", "amount", "credit", "debit", "transaction", "withdrawal",
	"deposit", "narration", "transfer", "opening", "closing", "page",
	"period", "ifsc", "sort code",
}

// Readable reports whether pages look like real statement text: more than
// 50 characters, over 60% plain ASCII, and at least one statement word.
func Readable(pages []string) bool {
	if textLen(pages) <= 50 {
		return false
	}
	if asciiRatio(pages) <= 0.6 {
		return false
	}
	combined := strings.ToLower(strings.Join(pages, " "))
	for _, w := range statementWords {
		if strings.Contains(combined, w) {
			return true
		}
	}
	return false
}

// asciiRatio uses a strict ASCII test; unicode.IsLetter accepts the
// accented runes identity-encoded fonts decode into.
func asciiRatio(pages []string) float64 {
	total, ok := 0, 0
	for _, page := range pages {
		for _, r := range page {
			total++
			if r < unicode.MaxASCII && (unicode.IsPrint(r) || unicode.IsSpace(r)) {
				ok++
				continue
			}
			switch r {
			case '£', '€', '₹':
				ok++
			}
		}
	}
	if total == 0 {
		return 0
	}
	return float64(ok) / float64(total)
}

func textLen(pages []string) int {
	n := 0
	for _, p := range pages {
		n += len(strings.TrimSpace(p))
	}
	return n
}

func (e *Extractor) fromPdftotext(ctx context.Context, path string) ([]string, error) {
	bin, err := exec.LookPath(e.Pdftotext)
	if err != nil {
		return nil, fmt.Errorf("pdftotext not available: %w", err)
	}

	numPages := 1
	if e.Pdfinfo != "" {
		if out, err := exec.CommandContext(ctx, e.Pdfinfo, path).Output(); err == nil {
			numPages = pageCount(string(out))
		}
	}

	var pages []string
	for i := 1; i <= numPages; i++ {
		p := strconv.Itoa(i)
		out, err := exec.CommandContext(ctx, bin, "-layout", "-f", p, "-l", p, path, "-").Output()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		if text := strings.TrimSpace(string(out)); text != "" {
			pages = append(pages, text)
		}
	}
	if len(pages) > 0 {
		return pages, nil
	}

	out, err := exec.CommandContext(ctx, bin, "-layout", path, "-").Output()
	if err != nil {
		return nil, fmt.Errorf("pdftotext failed: %w", err)
	}
	text := strings.TrimSpace(string(out))
	if text == "" {
		return nil, fmt.Errorf("pdftotext produced no output")
	}
	return splitFormFeeds(text), nil
}

func pageCount(pdfinfo string) int {
	for _, line := range strings.Split(pdfinfo, "\n") {
		if !strings.HasPrefix(line, "Pages:") {
			continue
		}
		if n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "Pages:"))); err == nil && n > 0 {
			return n
		}
	}
	return 1
}

// fromLibrary tries the row, content and plain-text strategies in order
// and returns the first readable result.
func fromLibrary(path string) (pages []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf library panic: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	n := r.NumPage()
	if n == 0 {
		return nil, fmt.Errorf("PDF has no pages")
	}

	for _, strategy := range []func(*pdf.Reader, int) []string{byRow, byContent, byPlainText} {
		pages = strategy(r, n)
		if Readable(pages) {
			return pages, nil
		}
	}

	if whole := wholeDocument(r); Readable([]string{whole}) {
		return []string{whole}, nil
	}
	return pages, nil
}

func byRow(r *pdf.Reader, n int) []string {
	var pages []string
	for i := 1; i <= n; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			continue
		}
		var lines []string
		for _, row := range rows {
			words := make([]string, 0, len(row.Content))
			for _, w := range row.Content {
				words = append(words, w.S)
			}
			if line := strings.TrimSpace(strings.Join(words, " ")); line != "" {
				lines = append(lines, line)
			}
		}
		pages = append(pages, strings.Join(lines, "\n"))
	}
	return pages
}

// byContent rebuilds rows from raw text objects: pieces are bucketed by
// rounded Y (top of page first) and ordered by X. A horizontal gap wider
// than columnGap becomes a double space so columns stay separable.
func byContent(r *pdf.Reader, n int) []string {
	const columnGap = 15

	type piece struct {
		x float64
		s string
	}

	var pages []string
	for i := 1; i <= n; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		content := page.Content()
		if len(content.Text) == 0 {
			continue
		}

		rows := make(map[int][]piece)
		for _, t := range content.Text {
			if strings.TrimSpace(t.S) == "" {
				continue
			}
			y := int(math.Round(t.Y))
			rows[y] = append(rows[y], piece{x: t.X, s: t.S})
		}

		ys := make([]int, 0, len(rows))
		for y := range rows {
			ys = append(ys, y)
		}
		sort.Sort(sort.Reverse(sort.IntSlice(ys)))

		var lines []string
		for _, y := range ys {
			items := rows[y]
			sort.Slice(items, func(a, b int) bool { return items[a].x < items[b].x })

			var sb strings.Builder
			for j, it := range items {
				if j > 0 && it.x-items[j-1].x > columnGap {
					sb.WriteString("  ")
				}
				sb.WriteString(it.s)
			}
			if line := strings.TrimSpace(sb.String()); line != "" {
				lines = append(lines, line)
			}
		}
		pages = append(pages, strings.Join(lines, "\n"))
	}
	return pages
}

func byPlainText(r *pdf.Reader, n int) []string {
	var pages []string
	for i := 1; i <= n; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		fonts := make(map[string]*pdf.Font)
		for _, name := range page.Fonts() {
			f := page.Font(name)
			fonts[name] = &f
		}
		text, err := page.GetPlainText(fonts)
		if err != nil {
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			pages = append(pages, text)
		}
	}
	return pages
}

func wholeDocument(r *pdf.Reader) string {
	rd, err := r.GetPlainText()
	if err != nil {
		return ""
	}
	data, err := io.ReadAll(rd)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
