package storage

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"bkam-rates/models"
	"bkam-rates/source"
)

// CSVWriter writes one BKAM_Data_<date>.csv file per date into a directory.
// Files are UTF-8 with a byte-order mark so spreadsheet tools pick the right
// encoding. An existing file for the same date is overwritten.
type CSVWriter struct {
	dir string
}

// NewCSVWriter creates a writer for dir. The directory is created on first save.
func NewCSVWriter(dir string) *CSVWriter {
	return &CSVWriter{dir: dir}
}

// Name implements TableSink
func (c *CSVWriter) Name() string {
	return "csv"
}

// Path returns the file the table for date is written to
func (c *CSVWriter) Path(date time.Time) string {
	return filepath.Join(c.dir, source.FileName(date))
}

// Save implements TableSink and returns the written path
func (c *CSVWriter) Save(_ context.Context, date time.Time, table *models.Table) (string, error) {
	if table == nil {
		return "", fmt.Errorf("csv: nil table")
	}

	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return "", fmt.Errorf("csv: create output dir: %w", err)
	}

	path := c.Path(date)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("csv: create file %q: %w", path, err)
	}

	// The UTF8BOM encoder emits the BOM before the first byte written.
	bom := transform.NewWriter(f, unicode.UTF8BOM.NewEncoder())
	w := csv.NewWriter(bom)

	if err := writeTable(w, table); err != nil {
		_ = f.Close()
		return "", err
	}
	if err := bom.Close(); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("csv: flush encoder: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("csv: close file: %w", err)
	}

	return path, nil
}

func writeTable(w *csv.Writer, table *models.Table) error {
	if err := w.Write(table.Columns); err != nil {
		return fmt.Errorf("csv: write header: %w", err)
	}
	for _, row := range table.Rows {
		if err := w.Write(row); err != nil {
			return fmt.Errorf("csv: write row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}
