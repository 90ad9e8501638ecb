package executor

import (
	"fmt"
	"go/parser"
	"go/token"
	"sort"
	"strconv"
	"strings"

	"github.com/insightdelivered/bank-statement-agent/internal/stmt"
)

// allowedImports is everything generated parsers may import. Filesystem,
// process, network and reflection packages are deliberately absent; the
// statement is only reachable through the helper kit.
var allowedImports = map[string]bool{
	stmt.ImportPath: true,
	"bytes":         true,
	"errors":        true,
	"fmt":           true,
	"math":          true,
	"regexp":        true,
	"sort":          true,
	"strconv":       true,
	"strings":       true,
	"time":          true,
	"unicode":       true,
	"unicode/utf8":  true,
}

// CheckImports rejects source that imports anything outside the allow-list.
func CheckImports(src string) error {
	f, err := parser.ParseFile(token.NewFileSet(), "parser.go", src, parser.ImportsOnly)
	if err != nil {
		return fmt.Errorf("parse parser source: %w", err)
	}

	var forbidden []string
	for _, imp := range f.Imports {
		path, err := strconv.Unquote(imp.Path.Value)
		if err != nil {
			return fmt.Errorf("bad import %s", imp.Path.Value)
		}
		if !allowedImports[path] {
			forbidden = append(forbidden, path)
		}
	}
	if len(forbidden) > 0 {
		allowed := make([]string, 0, len(allowedImports))
		for p := range allowedImports {
			allowed = append(allowed, p)
		}
		sort.Strings(allowed)
		return fmt.Errorf("forbidden imports %s (allowed: %s)",
			strings.Join(forbidden, ", "), strings.Join(allowed, ", "))
	}
	return nil
}
