package exporter

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"axiscli/internal/infrastructure"
)

// utf8BOM helps Excel recognize UTF-8
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// WriteOptions configures CSV writing behavior
type WriteOptions struct {
	Headers   []string
	Records   [][]string
	BOMPrefix bool
}

// WriteCSV writes a CSV document to w
func WriteCSV(w io.Writer, options WriteOptions) error {
	if options.BOMPrefix {
		if _, err := w.Write(utf8BOM); err != nil {
			return fmt.Errorf("failed to write BOM: %w", err)
		}
	}

	writer := csv.NewWriter(w)
	if len(options.Headers) > 0 {
		if err := writer.Write(options.Headers); err != nil {
			return fmt.Errorf("failed to write headers: %w", err)
		}
	}
	for i, record := range options.Records {
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteCSVFile writes a CSV file at path, creating its directory
func WriteCSVFile(path string, options WriteOptions) error {
	infrastructure.GetLogger().Info("writing CSV file",
		slog.String("path", path),
		slog.Int("record_count", len(options.Records)))

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if err := WriteCSV(file, options); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
