package exporter

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"
)

// SheetName is the worksheet holding the key listing
const SheetName = "Keys"

var columnWidths = []float64{24, 12, 24, 24, 10, 68, 24, 24}

// WriteXLSXFile writes headers and rows to a single-sheet workbook at path
func WriteXLSXFile(path string, headers []string, rows [][]string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	if err := f.SetSheetRow(SheetName, "A1", &headers); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := make([]interface{}, len(row))
		for j, v := range row {
			values[j] = v
		}
		if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i, err)
		}
	}

	lastCol, err := excelize.ColumnNumberToName(len(headers))
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(SheetName, "A1", lastCol+"1", headerStyle); err != nil {
		return fmt.Errorf("failed to style headers: %w", err)
	}
	for i, width := range columnWidths {
		if i >= len(headers) {
			break
		}
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(SheetName, col, col, width); err != nil {
			return fmt.Errorf("failed to size column %s: %w", col, err)
		}
	}
	if err := f.SetPanes(SheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("failed to freeze header row: %w", err)
	}
	if len(rows) > 0 {
		ref := fmt.Sprintf("A1:%s%d", lastCol, len(rows)+1)
		if err := f.AutoFilter(SheetName, ref, nil); err != nil {
			return fmt.Errorf("failed to add filter: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}
