package layout

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPaths(t *testing.T) {
	l := New("data", "custom_parsers")

	assert.Equal(t, filepath.Join("data", "icici", "result.csv"), l.ReferencePath("icici"))
	assert.Equal(t, filepath.Join("data", "icici", "icici_sample.pdf"), l.SamplePath("icici"))
	assert.Equal(t, filepath.Join("custom_parsers", "icici_parser.go"), l.ArtifactPath("icici"))
	assert.Equal(t, filepath.Join("custom_parsers", ".icici.lock"), l.LockPath("icici"))
}

func TestSampleOverride(t *testing.T) {
	l := New("data", "out")
	l.Samples = map[string]string{"sbi": "/tmp/sbi.pdf"}

	assert.Equal(t, "/tmp/sbi.pdf", l.SamplePath("sbi"))
	assert.Equal(t, filepath.Join("data", "hdfc", "hdfc_sample.pdf"), l.SamplePath("hdfc"))
}
