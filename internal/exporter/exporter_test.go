package exporter

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"axiscli/pkg/contracts/domain"
)

var testNow = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

func sampleRecords() []domain.KeyRecord {
	hwid := "9f2c1e0d4b7a6c5e8f1a2b3c4d5e6f708192a3b4c5d6e7f8091a2b3c4d5e6f70"
	revokedAt := testNow.Add(-time.Hour)
	return []domain.KeyRecord{
		{Key: "ACTIVE-1", HWID: &hwid, Created: testNow.AddDate(0, 0, -1), Expires: testNow.AddDate(0, 0, 10)},
		{Key: "REVOKED-1", Created: testNow.AddDate(0, 0, -2), Expires: testNow.AddDate(0, 0, 5), Revoked: true, RevokedAt: &revokedAt},
		{Key: "EXPIRED-1", Created: testNow.AddDate(0, 0, -40), Expires: testNow.AddDate(0, 0, -10)},
	}
}

func newTestExporter(t *testing.T) *Exporter {
	t.Helper()
	e := New(t.TempDir())
	e.now = func() time.Time { return testNow }
	return e
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"csv", FormatCSV, false},
		{" XLSX ", FormatXLSX, false},
		{"pdf", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExportCSV(t *testing.T) {
	e := newTestExporter(t)

	path, err := e.Export(context.Background(), FormatCSV, sampleRecords())
	require.NoError(t, err)
	assert.Equal(t, "keys-20261018-120000.csv", filepath.Base(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(data, utf8BOM))

	rows, err := csv.NewReader(bytes.NewReader(data[len(utf8BOM):])).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, Columns, rows[0])

	assert.Equal(t, []string{"ACTIVE-1", "active", "2026-10-17 12:00:00Z", "2026-10-28 12:00:00Z", "10",
		"9f2c1e0d4b7a6c5e8f1a2b3c4d5e6f708192a3b4c5d6e7f8091a2b3c4d5e6f70", "", ""}, rows[1])
	assert.Equal(t, "revoked", rows[2][1])
	assert.Equal(t, "0", rows[2][4])
	assert.Equal(t, "2026-10-18 11:00:00Z", rows[2][6])
	assert.Equal(t, "expired", rows[3][1])
	assert.Equal(t, "0", rows[3][4])
}

func TestExportXLSX(t *testing.T) {
	e := newTestExporter(t)
	path := filepath.Join(t.TempDir(), "nested", "keys.xlsx")

	require.NoError(t, e.ExportTo(context.Background(), path, FormatXLSX, sampleRecords()))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, Columns, rows[0])
	assert.Equal(t, "ACTIVE-1", rows[1][0])
	assert.Equal(t, "revoked", rows[2][1])
}

func TestExportEmpty(t *testing.T) {
	e := newTestExporter(t)

	for _, format := range []Format{FormatCSV, FormatXLSX} {
		path, err := e.Export(context.Background(), format, nil)
		require.NoError(t, err, format)
		assert.FileExists(t, path)
	}
}

func TestExportHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestExporter(t).Export(ctx, FormatCSV, sampleRecords())
	assert.ErrorIs(t, err, context.Canceled)
}
