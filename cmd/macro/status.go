package main

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"axiscli/pkg/contracts/domain"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Validate the local activation against the registry",
	Example: `  # Print the license status
  macro status

  # Print the license status as JSON
  macro status -o json`,
	Args: cobra.NoArgs,
	RunE: statusCmdRun,
}

type statusFlags struct {
	output string
}

var statusArgs = statusFlags{
	output: "table",
}

func init() {
	statusCmd.Flags().StringVarP(&statusArgs.output, "output", "o", statusArgs.output,
		"Output format, one of: table, json.")
	rootCmd.AddCommand(statusCmd)
}

func statusCmdRun(cmd *cobra.Command, args []string) error {
	switch statusArgs.output {
	case "table", "json":
	default:
		return fmt.Errorf("unsupported output format %q, must be one of: table, json", statusArgs.output)
	}

	ctx, cancel := commandContext()
	defer cancel()

	_, client, err := loadClient(ctx, false)
	if err != nil {
		return err
	}

	result := client.License.IsCurrentlyValid(ctx).ToDomain()

	if statusArgs.output == "json" {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintln(rootCmd.OutOrStdout(), string(data)); err != nil {
			return err
		}
	} else {
		printTable(rootCmd.OutOrStdout(),
			[]string{"key", "status", "expires", "days left"},
			[][]string{statusRow(result)})
	}

	if !result.Valid {
		return fmt.Errorf("license is not valid: %s", result.Reason)
	}
	return nil
}

func statusRow(result domain.ValidationResult) []string {
	key := result.Key
	if key == "" {
		key = "-"
	}
	expires := "-"
	if result.Expires != nil {
		expires = result.Expires.UTC().Format("2006-01-02")
	}
	return []string{key, string(result.Status), expires, strconv.Itoa(result.DaysLeft)}
}
