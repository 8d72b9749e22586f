package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"axiscli/internal/keys"
)

var revokeCmd = &cobra.Command{
	Use:   "revoke [KEY]",
	Short: "Revoke a license key",
	Long: `Revoke a license key. Revocation is permanent: clients drop the key on
their next validation pass once the registry has been published.`,
	Args: cobra.ExactArgs(1),
	RunE: revokeCmdRun,
}

func init() {
	rootCmd.AddCommand(revokeCmd)
}

func revokeCmdRun(cmd *cobra.Command, args []string) error {
	rt, err := loadRuntime(false)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext()
	defer cancel()

	key := keys.NormalizeKey(args[0])
	alreadyRevoked, err := newKeyManager(rt).Revoke(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to revoke %s: %w", key, err)
	}
	if alreadyRevoked {
		rootCmd.Println(fmt.Sprintf("✔ %s was already revoked", key))
		return nil
	}
	rootCmd.Println(fmt.Sprintf("✔ %s revoked", key))
	return nil
}
