package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"axiscli/internal/exporter"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the key list to a spreadsheet",
	Example: `  # Export to the exports directory as Excel
  keyadmin export

  # Export to a given CSV file
  keyadmin export --format csv --output keys.csv`,
	Args: cobra.NoArgs,
	RunE: exportCmdRun,
}

type exportFlags struct {
	format string
	output string
}

var exportArgs = exportFlags{
	format: string(exporter.FormatXLSX),
}

func init() {
	exportCmd.Flags().StringVar(&exportArgs.format, "format", exportArgs.format,
		"Export format, one of: xlsx, csv.")
	exportCmd.Flags().StringVar(&exportArgs.output, "output", "",
		"Output file. Defaults to a timestamped file in the exports directory.")
	rootCmd.AddCommand(exportCmd)
}

func exportCmdRun(cmd *cobra.Command, args []string) error {
	format, err := exporter.ParseFormat(exportArgs.format)
	if err != nil {
		return err
	}

	rt, err := loadRuntime(false)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext()
	defer cancel()

	records, err := newKeyManager(rt).List(ctx)
	if err != nil {
		return err
	}

	path := exportArgs.output
	if path == "" {
		path, err = exporter.New(rt.Paths.ExportsDir).Export(ctx, format, records)
	} else {
		err = exporter.New(rt.Paths.ExportsDir).ExportTo(ctx, path, format, records)
	}
	if err != nil {
		return fmt.Errorf("failed to export keys: %w", err)
	}

	rootCmd.Println(fmt.Sprintf("✔ exported %d keys to %s", len(records), path))
	return nil
}
