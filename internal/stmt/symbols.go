package stmt

import (
	"reflect"

	"github.com/traefik/yaegi/interp"
)

// Symbols exposes the helper kit to the yaegi interpreter under ImportPath.
var Symbols = interp.Exports{
	ImportPath + "/stmt": {
		"Pages":          reflect.ValueOf(Pages),
		"Lines":          reflect.ValueOf(Lines),
		"SplitColumns":   reflect.ValueOf(SplitColumns),
		"ParseAmount":    reflect.ValueOf(ParseAmount),
		"FormatAmount":   reflect.ValueOf(FormatAmount),
		"ExtractDate":    reflect.ValueOf(ExtractDate),
		"StartsWithDate": reflect.ValueOf(StartsWithDate),
	},
}

// API is the helper kit's surface as shown to the code generator.
const API = `import "bankagent/stmt"

func Pages(path string) ([]string, error)     // text of each page of the statement
func Lines(pages []string) []string           // trimmed non-empty lines, in order
func SplitColumns(line string) []string       // split on runs of 2+ spaces
func ParseAmount(s string) (float64, error)   // "1,234.56", "(25.00)", "25.00 Dr", "₹10"
func FormatAmount(v float64) string           // two decimals
func ExtractDate(line string) string          // leading date or ""
func StartsWithDate(line string) bool`
