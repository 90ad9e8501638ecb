package extractor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

// fromOCR rasterises each page with pdftoppm and reads it back with
// tesseract. Scanned statements have no text layer, so this is the last
// resort after the library and pdftotext.
func (e *Extractor) fromOCR(ctx context.Context, path string) ([]string, error) {
	if e.Pdftoppm == "" || e.Tesseract == "" {
		return nil, fmt.Errorf("OCR disabled")
	}
	raster, err := exec.LookPath(e.Pdftoppm)
	if err != nil {
		return nil, fmt.Errorf("pdftoppm not available (install poppler-utils): %w", err)
	}
	ocr, err := exec.LookPath(e.Tesseract)
	if err != nil {
		return nil, fmt.Errorf("tesseract not available (install tesseract-ocr): %w", err)
	}

	dir, err := os.MkdirTemp("", "statement-ocr-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	// 300 DPI is the lowest resolution tesseract reads small print reliably at.
	out, err := exec.CommandContext(ctx, raster, "-r", "300", "-png", path, filepath.Join(dir, "page")).CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("pdftoppm failed: %w: %s", err, strings.TrimSpace(string(out)))
	}

	images, err := filepath.Glob(filepath.Join(dir, "page*.png"))
	if err != nil {
		return nil, err
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("pdftoppm produced no page images")
	}
	// pdftoppm zero-pads page numbers to a common width.
	sort.Strings(images)

	var pages []string
	for _, img := range images {
		base := strings.TrimSuffix(img, ".png")
		// --psm 4: a single column of variable-size text, which suits statements.
		out, err := exec.CommandContext(ctx, ocr, img, base, "-l", "eng", "--psm", "4").CombinedOutput()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			e.Logger.Warn().Err(err).Str("image", filepath.Base(img)).Str("output", strings.TrimSpace(string(out))).Msg("tesseract failed on page")
			continue
		}
		data, err := os.ReadFile(base + ".txt")
		if err != nil {
			continue
		}
		if text := strings.TrimSpace(string(data)); text != "" {
			pages = append(pages, text)
		}
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("tesseract read no text from %d page images", len(images))
	}
	return pages, nil
}
