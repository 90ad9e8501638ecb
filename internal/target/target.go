// Package target names the institutions parsers are generated for and
// detects them from statement text.
package target

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var idPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// Normalize lower-cases and validates a target identifier. Identifiers end
// up in file names, so only [a-z0-9_-] is accepted.
func Normalize(id string) (string, error) {
	n := strings.ToLower(strings.TrimSpace(id))
	if !idPattern.MatchString(n) {
		return "", fmt.Errorf("invalid target %q: use letters, digits, '-' or '_' (max 64 chars)", id)
	}
	return n, nil
}

// Registry maps target identifiers to the keywords that identify them in
// extracted statement text.
type Registry struct {
	keywords map[string][]string
}

// NewRegistry builds a registry. Targets with no keywords still register
// and match their own identifier.
func NewRegistry(keywords map[string][]string) *Registry {
	r := &Registry{keywords: make(map[string][]string, len(keywords))}
	for id, kws := range keywords {
		n, err := Normalize(id)
		if err != nil {
			continue
		}
		r.keywords[n] = append([]string(nil), kws...)
	}
	return r
}

// Known reports whether the target is registered.
func (r *Registry) Known(id string) bool {
	_, ok := r.keywords[strings.ToLower(id)]
	return ok
}

// Targets returns the registered identifiers in sorted order.
func (r *Registry) Targets() []string {
	out := make([]string, 0, len(r.keywords))
	for id := range r.keywords {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Detect tries to identify the target from the statement's page text.
// The target with the most keyword hits wins; ties go to the
// alphabetically first identifier so detection is deterministic.
func (r *Registry) Detect(pages []string) (string, error) {
	combined := strings.ToLower(strings.Join(pages, "\n"))

	best, bestHits := "", 0
	for _, id := range r.Targets() {
		needles := r.keywords[id]
		if len(needles) == 0 {
			needles = []string{id}
		}
		hits := 0
		for _, needle := range needles {
			needle = strings.ToLower(strings.TrimSpace(needle))
			if needle != "" && strings.Contains(combined, needle) {
				hits++
			}
		}
		if hits > bestHits {
			best, bestHits = id, hits
		}
	}

	if best == "" {
		return "", fmt.Errorf("could not detect target from statement content; known targets: %s",
			strings.Join(r.Targets(), ", "))
	}
	return best, nil
}
