package exporter

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"axiscli/pkg/contracts/domain"
)

// Format is an export file format
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat parses a user supplied format name
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatXLSX:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported export format %q (want csv or xlsx)", s)
	}
}

// Exporter writes key listings into a directory
type Exporter struct {
	dir string
	now func() time.Time
}

// New creates an exporter writing into dir
func New(dir string) *Exporter {
	return &Exporter{dir: dir, now: time.Now}
}

// Export writes records in format to a timestamped file and returns its path
func (e *Exporter) Export(ctx context.Context, format Format, records []domain.KeyRecord) (string, error) {
	now := e.now().UTC()
	name := fmt.Sprintf("keys-%s.%s", now.Format("20060102-150405"), format)
	path := filepath.Join(e.dir, name)
	return path, e.ExportTo(ctx, path, format, records)
}

// ExportTo writes records in format to path
func (e *Exporter) ExportTo(ctx context.Context, path string, format Format, records []domain.KeyRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	now := e.now().UTC()
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		rows = append(rows, recordRow(rec, now))
	}

	switch format {
	case FormatCSV:
		return WriteCSVFile(path, WriteOptions{Headers: Columns, Records: rows, BOMPrefix: true})
	case FormatXLSX:
		return WriteXLSXFile(path, Columns, rows)
	default:
		return fmt.Errorf("unsupported export format %q", format)
	}
}
