package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"axiscli/internal/app"
	"axiscli/internal/registry"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Publish keys.json on a cron schedule",
	Long: `Publish keys.json once and then on every trigger of a cron schedule.
Unchanged registries are not pushed again.`,
	Example: `  # Publish every 15 minutes
  keyadmin schedule --cron "*/15 * * * *"

  # Publish hourly to GitHub
  keyadmin schedule --cron @hourly --channel github`,
	Args: cobra.NoArgs,
	RunE: scheduleCmdRun,
}

type scheduleFlags struct {
	cron     string
	channel  string
	filePath string
}

var scheduleArgs scheduleFlags

func init() {
	scheduleCmd.Flags().StringVar(&scheduleArgs.cron, "cron", "",
		"Cron spec or descriptor. Defaults to registry.publish_schedule.")
	scheduleCmd.Flags().StringVar(&scheduleArgs.channel, "channel", "",
		"Override the registry channel, one of: file, github, sheets.")
	scheduleCmd.Flags().StringVar(&scheduleArgs.filePath, "file-path", "",
		"Target path for the file channel.")
	rootCmd.AddCommand(scheduleCmd)
}

func scheduleCmdRun(cmd *cobra.Command, args []string) error {
	rt, err := loadRuntime(false)
	if err != nil {
		return err
	}

	spec := scheduleArgs.cron
	if spec == "" {
		spec = rt.Config.Registry.PublishSchedule
	}
	schedule, err := app.ParseSchedule(spec)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	target := publishTarget(rt, scheduleArgs.channel, scheduleArgs.filePath)
	channel, err := registry.Open(ctx, target)
	if err != nil {
		return err
	}

	rootCmd.Println("► publishing to " + target.Channel + " channel on schedule " + spec)
	return app.NewPublisher(newKeyManager(rt), channel, target.Timeout, rt.Logger).Schedule(ctx, schedule)
}
