// Package artifact persists the generated parser for each target. Exactly
// one artifact exists per target; every write replaces it atomically.
package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/insightdelivered/bank-statement-agent/internal/layout"
	"github.com/insightdelivered/bank-statement-agent/internal/models"
)

// ErrNotFound means no parser has been generated for the target yet.
var ErrNotFound = errors.New("artifact not found")

// Store reads and writes target artifacts under the parsers directory.
type Store struct {
	fs     afero.Fs
	layout layout.Layout
	now    func() time.Time
}

// NewStore creates a store over fs.
func NewStore(fsys afero.Fs, l layout.Layout) *Store {
	return &Store{fs: fsys, layout: l, now: time.Now}
}

// Path is where the target's artifact lives.
func (s *Store) Path(target string) string {
	return s.layout.ArtifactPath(target)
}

// Write replaces the target's artifact with source.
func (s *Store) Write(target, source string) (models.Artifact, error) {
	path := s.Path(target)
	if err := writeFileAtomic(s.fs, path, []byte(source)); err != nil {
		return models.Artifact{}, err
	}
	return models.Artifact{
		Target:    target,
		Path:      path,
		Source:    source,
		SHA256:    digest(source),
		WrittenAt: s.now().UTC(),
	}, nil
}

// Read loads the target's current artifact.
func (s *Store) Read(target string) (models.Artifact, error) {
	path := s.Path(target)
	data, err := afero.ReadFile(s.fs, path)
	if errors.Is(err, fs.ErrNotExist) {
		return models.Artifact{}, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return models.Artifact{}, err
	}

	a := models.Artifact{Target: target, Path: path, Source: string(data), SHA256: digest(string(data))}
	if info, err := s.fs.Stat(path); err == nil {
		a.WrittenAt = info.ModTime().UTC()
	}
	return a, nil
}

// Exists reports whether the target has an artifact.
func (s *Store) Exists(target string) bool {
	ok, err := afero.Exists(s.fs, s.Path(target))
	return err == nil && ok
}

func digest(source string) string {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])
}

// writeFileAtomic writes through a temp file in the same directory and
// renames it over path, so readers see either the old or the new file.
func writeFileAtomic(fsys afero.Fs, path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := afero.TempFile(fsys, dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer fsys.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := fsys.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file to %s: %w", path, err)
	}
	return nil
}
