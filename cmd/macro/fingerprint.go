package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var fingerprintCmd = &cobra.Command{
	Use:   "fingerprint",
	Short: "Print the fingerprint of this device",
	Long: `Print the fingerprint this device presents during activation. Send it to
the issuer to receive a key bound to this device in advance.`,
	Args: cobra.NoArgs,
	RunE: fingerprintCmdRun,
}

type fingerprintFlags struct {
	factors bool
}

var fingerprintArgs fingerprintFlags

func init() {
	fingerprintCmd.Flags().BoolVar(&fingerprintArgs.factors, "factors", false,
		"Also list the masked hardware factors the fingerprint is derived from.")
	rootCmd.AddCommand(fingerprintCmd)
}

func fingerprintCmdRun(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	_, client, err := loadClient(ctx, false)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintln(rootCmd.OutOrStdout(), client.Device.Fingerprint()); err != nil {
		return err
	}
	if !fingerprintArgs.factors {
		return nil
	}

	factors := client.Device.MaskedFactors()
	names := make([]string, 0, len(factors))
	for name := range factors {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([][]string, 0, len(names))
	for _, name := range names {
		rows = append(rows, []string{name, factors[name]})
	}
	printTable(rootCmd.OutOrStdout(), []string{"factor", "value"}, rows)
	return nil
}
