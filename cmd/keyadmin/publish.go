package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"axiscli/internal/app"
	"axiscli/internal/config"
	"axiscli/internal/registry"
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish keys.json to the registry channel",
	Long: `Rebuild keys.json and push it to the configured registry channel so that
clients see new, extended and revoked keys on their next validation pass.`,
	Example: `  # Publish to the configured channel
  keyadmin publish

  # Publish to a GitHub repository
  AXIS_REGISTRY_GITHUB_TOKEN=... keyadmin publish --channel github

  # Copy the registry to a shared folder
  keyadmin publish --channel file --file-path /mnt/share/keys.json`,
	Args: cobra.NoArgs,
	RunE: publishCmdRun,
}

type publishFlags struct {
	channel  string
	filePath string
}

var publishArgs publishFlags

func init() {
	publishCmd.Flags().StringVar(&publishArgs.channel, "channel", "",
		"Override the registry channel, one of: file, github, sheets.")
	publishCmd.Flags().StringVar(&publishArgs.filePath, "file-path", "",
		"Target path for the file channel.")
	rootCmd.AddCommand(publishCmd)
}

// publishTarget resolves the registry config for publishing from the
// configuration and the --channel and --file-path overrides.
func publishTarget(rt *app.Runtime, channel, filePath string) config.RegistryConfig {
	cfg := rt.Config.Registry
	if channel != "" {
		cfg.Channel = strings.ToLower(strings.TrimSpace(channel))
	}
	if filePath != "" {
		cfg.FilePath = filePath
	}
	return cfg
}

func publishCmdRun(cmd *cobra.Command, args []string) error {
	rt, err := loadRuntime(false)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext()
	defer cancel()

	target := publishTarget(rt, publishArgs.channel, publishArgs.filePath)
	channel, err := registry.Open(ctx, target)
	if err != nil {
		return err
	}

	publisher := app.NewPublisher(newKeyManager(rt), channel, target.Timeout, rt.Logger)
	if _, err := publisher.Publish(ctx, true); err != nil {
		return fmt.Errorf("failed to publish to %s channel: %w", target.Channel, err)
	}
	rootCmd.Println(fmt.Sprintf("✔ registry published to %s channel", target.Channel))
	return nil
}
