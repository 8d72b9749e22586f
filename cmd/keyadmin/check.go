package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"axiscli/internal/keys"
	"axiscli/internal/license"
)

var checkCmd = &cobra.Command{
	Use:   "check [TOKEN]",
	Short: "Check a token against the key store",
	Long: `Run the client validation of a token against the local key store, as a
device with the given fingerprint would. Nothing is bound or written.`,
	Example: `  # Check a token as the device it names
  keyadmin check eyJLMS...

  # Check a token as a specific device
  keyadmin check eyJLMS... --hwid 9f2c1e0d...`,
	Args: cobra.ExactArgs(1),
	RunE: checkCmdRun,
}

type checkFlags struct {
	hwid string
}

var checkArgs checkFlags

func init() {
	checkCmd.Flags().StringVar(&checkArgs.hwid, "hwid", "",
		"Device fingerprint to check as. Defaults to the device named in the token.")
	rootCmd.AddCommand(checkCmd)
}

// dryRunAuthority validates against the store but never records a binding.
type dryRunAuthority struct {
	*keys.StoreAuthority
}

func (dryRunAuthority) Bind(ctx context.Context, key, hwid string) error {
	return ctx.Err()
}

type fixedFingerprint string

func (f fixedFingerprint) Fingerprint() string { return string(f) }

func checkCmdRun(cmd *cobra.Command, args []string) error {
	token := args[0]

	hwid := checkArgs.hwid
	if hwid == "" {
		claims, err := license.DecodeToken(token)
		if err != nil {
			return err
		}
		hwid = claims.HWID
	}
	if hwid == "" {
		hwid = "keyadmin-check"
	}

	rt, err := loadRuntime(false)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext()
	defer cancel()

	dir, err := os.MkdirTemp("", "keyadmin-check")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	validator := license.NewManager(
		dryRunAuthority{keys.NewStoreAuthority(newKeyManager(rt))},
		license.NewStateStore(filepath.Join(dir, "license.dat")),
		fixedFingerprint(hwid),
	)

	result := validator.Activate(ctx, token)
	if !result.Valid {
		return fmt.Errorf("token rejected: %s", result.Reason)
	}
	rootCmd.Println(fmt.Sprintf("✔ %s is valid until %s (%d days left)",
		result.Key, result.Expires.Format(dateLayout), result.DaysLeft))
	return nil
}
