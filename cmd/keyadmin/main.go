package main

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"axiscli/internal/app"
	"axiscli/internal/keys"
	"axiscli/internal/keystore"
	"axiscli/pkg/contracts"
)

var rootCmd = &cobra.Command{
	Use:               "keyadmin",
	Version:           contracts.Version,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
	Short:             "Issue, revoke and publish Axis license keys",
	Long: `keyadmin manages the Axis license key store: one record file per key
plus the aggregate keys.json registry that clients fetch.`,
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

// loadRuntime bootstraps configuration and logging for a command.
func loadRuntime(telemetry bool) (*app.Runtime, error) {
	return app.Bootstrap(app.BootstrapOptions{
		ConfigFile: rootArgs.configFile,
		Service:    "keyadmin",
		LogLevel:   rootArgs.logLevel,
		Telemetry:  telemetry,
	})
}

// newKeyManager opens the key store at the configured location.
func newKeyManager(rt *app.Runtime) *keys.Manager {
	return keys.NewManager(keystore.Open(rt.Paths.KeysDir, rt.Paths.RegistryFile))
}

// commandContext returns a context bounded by --timeout.
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
