// Package table reads and writes models.Table values as CSV.
package table

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/insightdelivered/bank-statement-agent/internal/models"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Read parses CSV with a header row. A leading UTF-8 BOM is dropped.
// Row width is not enforced here; callers decide via Table.Validate.
func Read(in io.Reader) (*models.Table, error) {
	data, err := io.ReadAll(in)
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("CSV is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	t := &models.Table{Columns: header, Rows: [][]string{}}
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV row: %w", err)
		}
		t.Rows = append(t.Rows, rec)
	}
	return t, nil
}

// ReadFile reads a CSV table from fs.
func ReadFile(fs afero.Fs, path string) (*models.Table, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}

// Write writes the header row followed by every data row.
func Write(out io.Writer, t *models.Table) error {
	w := csv.NewWriter(out)

	if err := w.Write(t.Columns); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, row := range t.Rows {
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

// WriteFile writes the table to path on fs, creating parent directories.
func WriteFile(fs afero.Fs, path string, t *models.Table) error {
	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	f, err := fs.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file %q: %w", path, err)
	}
	if err := Write(f, t); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
