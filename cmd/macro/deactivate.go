package main

import (
	"github.com/spf13/cobra"
)

var deactivateCmd = &cobra.Command{
	Use:   "deactivate",
	Short: "Remove the local activation",
	Long: `Remove the local activation file. The key stays bound to this device;
ask the issuer to reset it before moving to another machine.`,
	Args: cobra.NoArgs,
	RunE: deactivateCmdRun,
}

func init() {
	rootCmd.AddCommand(deactivateCmd)
}

func deactivateCmdRun(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	_, client, err := loadClient(ctx, false)
	if err != nil {
		return err
	}
	if err := client.State.Delete(); err != nil {
		return err
	}
	rootCmd.Println("✔ activation removed")
	return nil
}
