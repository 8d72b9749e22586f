package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Print a new random key identifier",
	Long: `Print a random XXXX-XXXX-XXXX-XXXX identifier without creating a record.
Use it with 'keyadmin issue --key' when the identifier must be known in advance.`,
	Args: cobra.NoArgs,
	RunE: generateCmdRun,
}

func init() {
	rootCmd.AddCommand(generateCmd)
}

func generateCmdRun(cmd *cobra.Command, args []string) error {
	rt, err := loadRuntime(false)
	if err != nil {
		return err
	}
	id, err := newKeyManager(rt).GenerateIdentifier()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(rootCmd.OutOrStdout(), id)
	return err
}
