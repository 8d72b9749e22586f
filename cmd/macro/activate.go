package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var activateCmd = &cobra.Command{
	Use:   "activate [TOKEN]",
	Short: "Activate this device with a license token",
	Long: `Activate this device with a license token. An unbound key is bound to
this device on first use; a key bound to another device is refused.`,
	Args: cobra.ExactArgs(1),
	RunE: activateCmdRun,
}

func init() {
	rootCmd.AddCommand(activateCmd)
}

func activateCmdRun(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	_, client, err := loadClient(ctx, false)
	if err != nil {
		return err
	}

	result := client.License.Activate(ctx, args[0])
	if !result.Valid {
		return fmt.Errorf("activation failed: %s", result.Reason)
	}
	if !result.FreshRegistry {
		rootCmd.Println("⚠ registry unreachable, activated against the cached copy")
	}
	rootCmd.Println("✔ " + result.Reason)
	return nil
}
