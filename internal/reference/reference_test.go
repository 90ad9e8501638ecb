package reference

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insightdelivered/bank-statement-agent/internal/layout"
)

func newLoader(t *testing.T, files map[string]string) *Loader {
	t.Helper()
	fs := afero.NewMemMapFs()
	for path, content := range files {
		require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
	}
	return NewLoader(fs, layout.New("data", "out"))
}

func TestLoad(t *testing.T) {
	l := newLoader(t, map[string]string{
		"data/icici/result.csv": "date,amount\n01-08-2024,10.00\n02-08-2024,-5.50\n03-08-2024,7\n",
	})

	tbl, err := l.Load("icici")
	require.NoError(t, err)
	assert.Equal(t, []string{"date", "amount"}, tbl.Columns)
	assert.Len(t, tbl.Rows, 3)

	again, err := l.Load("icici")
	require.NoError(t, err)
	assert.Equal(t, tbl, again)
}

func TestLoadMissing(t *testing.T) {
	l := newLoader(t, nil)
	_, err := l.Load("sbi")
	require.ErrorIs(t, err, ErrReferenceMissing)
	assert.Contains(t, err.Error(), "data/sbi/result.csv")
}

func TestLoadInvalid(t *testing.T) {
	tests := map[string]string{
		"empty":   "",
		"ragged":  "date,amount\n01-08-2024\n",
		"blank":   "date,\n1,2\n",
		"bad csv": "date,amount\n\"unterminated,1\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			l := newLoader(t, map[string]string{"data/x/result.csv": content})
			_, err := l.Load("x")
			require.ErrorIs(t, err, ErrReferenceInvalid)
		})
	}
}
