// Package stmt is the helper kit generated parsers import as
// "bankagent/stmt". Generated code cannot touch the filesystem directly;
// Pages is its only way to read the statement.
package stmt

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/insightdelivered/bank-statement-agent/internal/extractor"
)

// ImportPath is the path generated parsers use to import this package.
const ImportPath = "bankagent/stmt"

// Extractor is used by Pages. The executor swaps it to carry its logger.
var Extractor = extractor.New(zerolog.Nop())

var (
	// 15/01/2024, 1/1/24
	dateSlash = regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{2,4}\b`)
	// 01-08-2024, 01.08.2024
	dateNumeric = regexp.MustCompile(`\b\d{1,2}[-.]\d{1,2}[-.]\d{2,4}\b`)
	// 2024-08-01
	dateISO = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)
	// 15 Jan 2024
	dateText = regexp.MustCompile(`(?i)\b\d{1,2}\s+(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*\s+\d{2,4}\b`)
	// 15-Jan-2024
	dateDash = regexp.MustCompile(`(?i)\b\d{1,2}-(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*-\d{2,4}\b`)

	datePatterns = []*regexp.Regexp{dateSlash, dateISO, dateNumeric, dateText, dateDash}

	columnGap = regexp.MustCompile(`\s{2,}`)
)

// Pages returns the text of each page of the statement at path.
func Pages(path string) ([]string, error) {
	return Extractor.Pages(context.Background(), path)
}

// Lines splits pages into trimmed, non-empty lines in reading order.
func Lines(pages []string) []string {
	var out []string
	for _, p := range pages {
		for _, l := range strings.Split(p, "\n") {
			if l = strings.TrimSpace(l); l != "" {
				out = append(out, l)
			}
		}
	}
	return out
}

// SplitColumns splits a layout-preserved line on runs of two or more
// spaces, which is how extracted tables separate columns.
func SplitColumns(line string) []string {
	parts := columnGap.Split(strings.TrimSpace(line), -1)
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ParseAmount converts strings like "1,234.56", "-₹1,234.56", "(25.00)",
// "25.00 Dr" or "Rs. 10" to a float64. Blank and "-" parse as zero.
func ParseAmount(s string) (float64, error) {
	s = strings.TrimSpace(s)
	neg := false

	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = s[1 : len(s)-1]
	}
	upper := strings.ToUpper(s)
	switch {
	case strings.HasSuffix(upper, "DR"):
		neg = true
		s = s[:len(s)-2]
	case strings.HasSuffix(upper, "CR"):
		s = s[:len(s)-2]
	}

	s = strings.NewReplacer(
		"Rs.", "", "INR", "", "₹", "", "£", "", "$", "", "€", "",
		",", "", " ", "", "\u00a0", "",
	).Replace(s)

	if s == "" || s == "-" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	if neg {
		v = -v
	}
	return v, nil
}

// FormatAmount renders an amount with two decimals.
func FormatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// ExtractDate returns the date at the start of line (within its first
// three characters), or "".
func ExtractDate(line string) string {
	line = strings.TrimSpace(line)
	for _, re := range datePatterns {
		if loc := re.FindStringIndex(line); loc != nil && loc[0] < 3 {
			return line[loc[0]:loc[1]]
		}
	}
	return ""
}

// StartsWithDate reports whether line begins with a date.
func StartsWithDate(line string) bool {
	return ExtractDate(line) != ""
}
