// Package layout is the target-keyed path convention shared by the
// reference loader, the artifact store and the agent loop.
package layout

import (
	"path/filepath"
)

// Layout resolves per-target file locations.
type Layout struct {
	DataDir    string
	ParsersDir string
	// Samples overrides the sample statement path per target.
	Samples map[string]string
}

// New returns a layout rooted at the given directories.
func New(dataDir, parsersDir string) Layout {
	return Layout{DataDir: dataDir, ParsersDir: parsersDir}
}

// TargetDir is the directory holding a target's ground truth and sample.
func (l Layout) TargetDir(target string) string {
	return filepath.Join(l.DataDir, target)
}

// ReferencePath is the expected-output CSV for a target.
func (l Layout) ReferencePath(target string) string {
	return filepath.Join(l.TargetDir(target), "result.csv")
}

// SamplePath is the statement every attempt is executed against.
func (l Layout) SamplePath(target string) string {
	if p, ok := l.Samples[target]; ok && p != "" {
		return p
	}
	return filepath.Join(l.TargetDir(target), target+"_sample.pdf")
}

// ArtifactPath is where the latest generated parser for a target lives.
func (l Layout) ArtifactPath(target string) string {
	return filepath.Join(l.ParsersDir, target+"_parser.go")
}

// LockPath is the per-target run lock file.
func (l Layout) LockPath(target string) string {
	return filepath.Join(l.ParsersDir, "."+target+".lock")
}
