// Package validator decides whether a parser's output matches the
// reference table and, when it does not, describes how in a form short
// enough to feed back into the next generation prompt.
package validator

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"

	"github.com/insightdelivered/bank-statement-agent/internal/models"
)

// Report is the outcome of one comparison.
type Report struct {
	Pass           bool     `json:"pass"`
	Diff           string   `json:"diff,omitempty"`
	MissingColumns []string `json:"missingColumns,omitempty"`
	ExtraColumns   []string `json:"extraColumns,omitempty"`
	ColumnOrder    bool     `json:"columnOrder,omitempty"`
	RowCountGot    int      `json:"rowCountGot"`
	RowCountWant   int      `json:"rowCountWant"`
	CellMismatches int      `json:"cellMismatches"`
}

// Validator compares tables. The zero value uses the defaults.
type Validator struct {
	// MaxExamples caps how many differing cells are spelled out.
	MaxExamples int
	// MaxDiffBytes caps the length of Report.Diff.
	MaxDiffBytes int
}

const (
	defaultMaxExamples  = 5
	defaultMaxDiffBytes = 2 << 10
)

// Validate compares with the default limits.
func Validate(result, reference *models.Table) Report {
	return Validator{}.Validate(result, reference)
}

// Validate reports whether result equals reference: the same column names
// in the same order, the same number of rows, and equal cells row by row.
func (v Validator) Validate(result, reference *models.Table) Report {
	if result == nil || reference == nil {
		which := "parser returned no table"
		if reference == nil {
			which = "reference table is missing"
		}
		return Report{Diff: which}
	}

	r := Report{RowCountGot: len(result.Rows), RowCountWant: len(reference.Rows)}
	var lines []string

	gotIdx := columnIndex(result.Columns)
	wantIdx := columnIndex(reference.Columns)
	for _, c := range reference.Columns {
		if _, ok := gotIdx[columnKey(c)]; !ok {
			r.MissingColumns = append(r.MissingColumns, strings.TrimSpace(c))
		}
	}
	for _, c := range result.Columns {
		if _, ok := wantIdx[columnKey(c)]; !ok {
			r.ExtraColumns = append(r.ExtraColumns, strings.TrimSpace(c))
		}
	}
	if len(r.MissingColumns) > 0 {
		lines = append(lines, "missing columns: "+quoteAll(r.MissingColumns))
	}
	if len(r.ExtraColumns) > 0 {
		lines = append(lines, "unexpected columns: "+quoteAll(r.ExtraColumns))
	}
	if len(result.Columns) != len(gotIdx) || len(reference.Columns) != len(wantIdx) {
		lines = append(lines, fmt.Sprintf("duplicate column names: got %s, want %s",
			quoteAll(result.Columns), quoteAll(reference.Columns)))
	}
	if len(r.MissingColumns) == 0 && len(r.ExtraColumns) == 0 && !sameOrder(result.Columns, reference.Columns) {
		r.ColumnOrder = true
		lines = append(lines, fmt.Sprintf("column order differs: got %s, want %s",
			quoteAll(result.Columns), quoteAll(reference.Columns)))
	}
	if r.RowCountGot != r.RowCountWant {
		lines = append(lines, fmt.Sprintf("row count differs: got %d, want %d", r.RowCountGot, r.RowCountWant))
	}

	// Cells are compared on the shared columns and rows even when the shape
	// is off, so the diff can still point at concrete values.
	maxExamples := v.MaxExamples
	if maxExamples <= 0 {
		maxExamples = defaultMaxExamples
	}
	rows := min(r.RowCountGot, r.RowCountWant)
	for i := 0; i < rows; i++ {
		for j, col := range reference.Columns {
			gj, ok := gotIdx[columnKey(col)]
			if !ok || gj >= len(result.Rows[i]) || j >= len(reference.Rows[i]) {
				continue
			}
			got, want := result.Rows[i][gj], reference.Rows[i][j]
			if CellsEqual(got, want) {
				continue
			}
			r.CellMismatches++
			if r.CellMismatches <= maxExamples {
				lines = append(lines, fmt.Sprintf("row %d, column %q: got %q, want %q",
					i+1, strings.TrimSpace(col), got, want))
			}
		}
	}
	if r.CellMismatches > maxExamples {
		lines = append(lines, fmt.Sprintf("... and %d more differing cells (%d total)",
			r.CellMismatches-maxExamples, r.CellMismatches))
	}

	r.Pass = len(lines) == 0
	if !r.Pass {
		limit := v.MaxDiffBytes
		if limit <= 0 {
			limit = defaultMaxDiffBytes
		}
		r.Diff = truncate(lines, limit)
	}
	return r
}

func columnKey(name string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFC.String(name)))
}

func columnIndex(cols []string) map[string]int {
	idx := make(map[string]int, len(cols))
	for i, c := range cols {
		if _, dup := idx[columnKey(c)]; !dup {
			idx[columnKey(c)] = i
		}
	}
	return idx
}

func sameOrder(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if columnKey(a[i]) != columnKey(b[i]) {
			return false
		}
	}
	return true
}

func quoteAll(s []string) string {
	q := make([]string, len(s))
	for i, v := range s {
		q[i] = fmt.Sprintf("%q", strings.TrimSpace(v))
	}
	return strings.Join(q, ", ")
}

// truncate joins lines, dropping whole lines once limit would be passed.
func truncate(lines []string, limit int) string {
	const marker = "[diff truncated]"
	if out := strings.Join(lines, "\n"); len(out) <= limit {
		return out
	}
	var b strings.Builder
	for _, l := range lines {
		if b.Len()+len(l)+len(marker)+2 > limit {
			break
		}
		b.WriteString(l)
		b.WriteByte('\n')
	}
	if b.Len() == 0 && limit > len(marker)+1 {
		b.WriteString(strings.ToValidUTF8(lines[0][:limit-len(marker)-1], ""))
		b.WriteByte('\n')
	}
	b.WriteString(marker)
	return b.String()
}

var (
	// 1234.50, -1,234.50, and Indian grouping 1,00,000. "1,00" is not a
	// number: it is a European decimal and must not equal 100.
	numeric = regexp.MustCompile(`^[+-]?(\d+|\d{1,3}(,\d{3})+|\d{1,2}(,\d{2})*,\d{3})(\.\d+)?$`)

	emptyTokens = map[string]bool{"": true, "nan": true, "none": true, "null": true}
)

// NormalizeCell trims, collapses internal whitespace, applies Unicode NFC
// and maps the usual spellings of "no value" to "".
func NormalizeCell(s string) string {
	s = strings.Join(strings.Fields(norm.NFC.String(s)), " ")
	if emptyTokens[strings.ToLower(s)] {
		return ""
	}
	return s
}

// CellsEqual compares two cells after normalization. Cells that are both
// numeric compare by decimal value, so "100" equals "100.00".
func CellsEqual(a, b string) bool {
	a, b = NormalizeCell(a), NormalizeCell(b)
	if a == b {
		return true
	}
	da, okA := parseDecimal(a)
	db, okB := parseDecimal(b)
	return okA && okB && da.Equal(db)
}

func parseDecimal(s string) (decimal.Decimal, bool) {
	if !numeric.MatchString(s) {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(s, ",", ""))
	return d, err == nil
}
