package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"axiscli/internal/keys"
)

var deleteCmd = &cobra.Command{
	Use:   "delete [KEY]",
	Short: "Delete the record of a key",
	Long: `Delete the record of a key. A deleted key disappears from the registry and
clients report it as unknown; prefer 'revoke' to keep an audit trail.`,
	Args: cobra.ExactArgs(1),
	RunE: deleteCmdRun,
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}

func deleteCmdRun(cmd *cobra.Command, args []string) error {
	rt, err := loadRuntime(false)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext()
	defer cancel()

	key := keys.NormalizeKey(args[0])
	if err := newKeyManager(rt).Delete(ctx, key); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	rootCmd.Println(fmt.Sprintf("✔ %s deleted", key))
	return nil
}
