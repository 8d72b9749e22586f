package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"axiscli/internal/keys"
)

var extendCmd = &cobra.Command{
	Use:   "extend [KEY]",
	Short: "Extend the expiry of a key",
	Long: `Extend the expiry of a key by a number of days, counted from its current
expiry or from now if it has already expired.`,
	Args: cobra.ExactArgs(1),
	RunE: extendCmdRun,
}

type extendFlags struct {
	days int
}

var extendArgs extendFlags

func init() {
	extendCmd.Flags().IntVar(&extendArgs.days, "days", 0,
		"Number of days to add.")
	rootCmd.AddCommand(extendCmd)
}

func extendCmdRun(cmd *cobra.Command, args []string) error {
	if extendArgs.days == 0 {
		return fmt.Errorf("--days flag is required")
	}

	rt, err := loadRuntime(false)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext()
	defer cancel()

	key := keys.NormalizeKey(args[0])
	rec, err := newKeyManager(rt).Extend(ctx, key, extendArgs.days)
	if err != nil {
		return fmt.Errorf("failed to extend %s: %w", key, err)
	}
	rootCmd.Println(fmt.Sprintf("✔ %s now valid until %s", rec.Key, rec.Expires.Format(dateLayout)))
	return nil
}
