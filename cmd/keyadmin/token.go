package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"axiscli/internal/keys"
)

var tokenCmd = &cobra.Command{
	Use:   "token [KEY]",
	Short: "Print the activation token of a key",
	Args:  cobra.ExactArgs(1),
	RunE:  tokenCmdRun,
}

func init() {
	rootCmd.AddCommand(tokenCmd)
}

func tokenCmdRun(cmd *cobra.Command, args []string) error {
	rt, err := loadRuntime(false)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext()
	defer cancel()

	token, err := newKeyManager(rt).Token(ctx, keys.NormalizeKey(args[0]))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(rootCmd.OutOrStdout(), token)
	return err
}
