// Package exporter writes key record listings for the issuer's own records,
// as CSV (UTF-8 with BOM so spreadsheet tools detect the encoding) or as an
// Excel workbook.
//
// Example usage:
//
//	exp := exporter.New(paths.ExportsDir)
//	path, err := exp.Export(ctx, exporter.FormatXLSX, records)
package exporter
