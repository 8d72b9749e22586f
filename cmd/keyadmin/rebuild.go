package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"axiscli/internal/registry"
)

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Regenerate keys.json from the record files",
	Long: `Regenerate the aggregate keys.json from the record files. Run it after
editing record files by hand; corrupt record files are skipped and logged.`,
	Args: cobra.NoArgs,
	RunE: rebuildCmdRun,
}

func init() {
	rootCmd.AddCommand(rebuildCmd)
}

func rebuildCmdRun(cmd *cobra.Command, args []string) error {
	rt, err := loadRuntime(false)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext()
	defer cancel()

	document, err := newKeyManager(rt).Rebuild(ctx)
	if err != nil {
		return fmt.Errorf("failed to rebuild registry: %w", err)
	}
	reg, err := registry.Parse(document)
	if err != nil {
		return err
	}
	rootCmd.Println(fmt.Sprintf("✔ %s rebuilt with %d keys", rt.Paths.RegistryFile, len(reg)))
	return nil
}
