// Package reference loads the ground-truth table for a target.
package reference

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/afero"

	"github.com/insightdelivered/bank-statement-agent/internal/layout"
	"github.com/insightdelivered/bank-statement-agent/internal/models"
	"github.com/insightdelivered/bank-statement-agent/internal/table"
)

var (
	// ErrReferenceMissing means no reference table exists for the target.
	ErrReferenceMissing = errors.New("reference missing")
	// ErrReferenceInvalid means the reference file exists but is unusable.
	ErrReferenceInvalid = errors.New("reference invalid")
)

// Loader reads reference tables from the data directory.
type Loader struct {
	fs     afero.Fs
	layout layout.Layout
}

// NewLoader creates a loader over fs.
func NewLoader(fsys afero.Fs, l layout.Layout) *Loader {
	return &Loader{fs: fsys, layout: l}
}

// Load returns the reference table for target. Loading is pure: repeated
// calls return equal tables.
func (l *Loader) Load(target string) (*models.Table, error) {
	path := l.layout.ReferencePath(target)

	t, err := table.ReadFile(l.fs, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrReferenceMissing, path)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrReferenceInvalid, path, err)
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrReferenceInvalid, path, err)
	}
	return t, nil
}

// Path returns where the reference for target is expected.
func (l *Loader) Path(target string) string {
	return l.layout.ReferencePath(target)
}
