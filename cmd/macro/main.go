package main

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"axiscli/internal/app"
	"axiscli/pkg/contracts"
)

var rootCmd = &cobra.Command{
	Use:               "macro",
	Version:           contracts.Version,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
	Short:             "Axis macro host",
	Long: `macro activates this device against an Axis license key and runs the
licensed macro session. The session stops as soon as the license is revoked,
expires or moves to another device.`,
}

type rootFlags struct {
	configFile string
	logLevel   string
	timeout    time.Duration
}

var rootArgs = rootFlags{
	timeout: 30 * time.Second,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootArgs.configFile, "config", "",
		"Path to the config file. Defaults to $AXIS_CONFIG or ./config.yaml.")
	rootCmd.PersistentFlags().StringVar(&rootArgs.logLevel, "log-level", "",
		"Override the configured log level (debug, info, warn, error).")
	rootCmd.PersistentFlags().DurationVar(&rootArgs.timeout, "timeout", rootArgs.timeout,
		"The length of time to wait before giving up on the current operation.")
	rootCmd.SetOut(os.Stdout)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		rootCmd.PrintErrf("✗ %v\n", err)
		os.Exit(1)
	}
}

func loadRuntime(telemetry bool) (*app.Runtime, error) {
	return app.Bootstrap(app.BootstrapOptions{
		ConfigFile: rootArgs.configFile,
		Service:    "macro",
		LogLevel:   rootArgs.logLevel,
		Telemetry:  telemetry,
	})
}

// loadClient bootstraps the runtime and the license stack.
func loadClient(ctx context.Context, telemetry bool) (*app.Runtime, *app.Client, error) {
	rt, err := loadRuntime(telemetry)
	if err != nil {
		return nil, nil, err
	}
	client, err := app.NewClient(ctx, rt)
	if err != nil {
		return nil, nil, err
	}
	return rt, client, nil
}

func commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), rootArgs.timeout)
}

func printTable(writer io.Writer, header []string, rows [][]string) {
	table := tablewriter.NewWriter(writer)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	table.SetNoWhiteSpace(true)
	table.AppendBulk(rows)
	table.Render()
}
