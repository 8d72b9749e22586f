package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var issueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue a new license key",
	Example: `  # Issue a 30 day key with a generated identifier
  keyadmin issue --days 30

  # Issue a key pre-bound to a device
  keyadmin issue --key TEAM-01 --days 365 --hwid 9f2c1e0d...`,
	Args: cobra.NoArgs,
	RunE: issueCmdRun,
}

type issueFlags struct {
	key  string
	days int
	hwid string
}

var issueArgs issueFlags

func init() {
	issueCmd.Flags().StringVar(&issueArgs.key, "key", "",
		"The key identifier. A random identifier is generated when empty.")
	issueCmd.Flags().IntVar(&issueArgs.days, "days", 0,
		"Number of days the key stays valid.")
	issueCmd.Flags().StringVar(&issueArgs.hwid, "hwid", "",
		"Bind the key to this device fingerprint instead of its first activation.")
	rootCmd.AddCommand(issueCmd)
}

func issueCmdRun(cmd *cobra.Command, args []string) error {
	if issueArgs.days == 0 {
		return fmt.Errorf("--days flag is required")
	}

	rt, err := loadRuntime(false)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext()
	defer cancel()

	var hwid *string
	if h := strings.TrimSpace(issueArgs.hwid); h != "" {
		hwid = &h
	}

	m := newKeyManager(rt)
	rec, err := m.Issue(ctx, issueArgs.key, issueArgs.days, hwid)
	if err != nil {
		return fmt.Errorf("failed to issue key: %w", err)
	}
	token, err := m.Token(ctx, rec.Key)
	if err != nil {
		return err
	}

	rootCmd.Println(fmt.Sprintf("✔ issued %s, valid until %s", rec.Key, rec.Expires.Format(dateLayout)))
	_, err = fmt.Fprintln(rootCmd.OutOrStdout(), token)
	return err
}
