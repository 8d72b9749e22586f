package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"axiscli/internal/keys"
)

var resetHWIDCmd = &cobra.Command{
	Use:   "reset-hwid [KEY]",
	Short: "Clear the device binding of a key",
	Long: `Clear the device binding of a key so that the next device to activate it
becomes its owner. Revoked keys cannot be reset.`,
	Args: cobra.ExactArgs(1),
	RunE: resetHWIDCmdRun,
}

func init() {
	rootCmd.AddCommand(resetHWIDCmd)
}

func resetHWIDCmdRun(cmd *cobra.Command, args []string) error {
	rt, err := loadRuntime(false)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext()
	defer cancel()

	key := keys.NormalizeKey(args[0])
	if err := newKeyManager(rt).ResetHWID(ctx, key); err != nil {
		return fmt.Errorf("failed to reset %s: %w", key, err)
	}
	rootCmd.Println(fmt.Sprintf("✔ %s is no longer bound to a device", key))
	return nil
}
