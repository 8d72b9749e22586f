package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"axiscli/pkg/contracts/domain"
)

const (
	dateLayout      = "2006-01-02"
	hwidPrefixChars = 16
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List issued keys",
	Example: `  # List keys as a table
  keyadmin list

  # List keys as JSON
  keyadmin list -o json`,
	Args: cobra.NoArgs,
	RunE: listCmdRun,
}

type listFlags struct {
	output string
}

var listArgs = listFlags{
	output: "table",
}

func init() {
	listCmd.Flags().StringVarP(&listArgs.output, "output", "o", listArgs.output,
		"Output format, one of: table, json.")
	rootCmd.AddCommand(listCmd)
}

func listCmdRun(cmd *cobra.Command, args []string) error {
	switch listArgs.output {
	case "table", "json":
	default:
		return fmt.Errorf("unsupported output format %q, must be one of: table, json", listArgs.output)
	}

	rt, err := loadRuntime(false)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext()
	defer cancel()

	records, err := newKeyManager(rt).List(ctx)
	if err != nil {
		return err
	}

	if listArgs.output == "json" {
		data, err := json.MarshalIndent(records, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(rootCmd.OutOrStdout(), string(data))
		return err
	}

	if len(records) == 0 {
		rootCmd.Println("no keys issued")
		return nil
	}

	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		rows = append(rows, listRow(rec))
	}
	printTable(rootCmd.OutOrStdout(), []string{"key", "status", "expires", "hwid"}, rows)
	return nil
}

func listRow(rec domain.KeyRecord) []string {
	status := "ACTIVE"
	if rec.Revoked {
		status = "REVOKED"
	}
	return []string{
		rec.Key,
		status,
		"Exp: " + rec.Expires.UTC().Format(dateLayout),
		"HWID: " + hwidPrefix(rec.HWID),
	}
}

func hwidPrefix(hwid *string) string {
	if hwid == nil || *hwid == "" {
		return "None"
	}
	if len(*hwid) <= hwidPrefixChars {
		return *hwid
	}
	return (*hwid)[:hwidPrefixChars] + "..."
}
