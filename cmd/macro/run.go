package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"axiscli/internal/app"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the licensed macro session",
	Long: `Run the licensed macro session on localhost. The license is revalidated
on license.revalidate_interval; the session ends when a pass fails.`,
	Args: cobra.NoArgs,
	RunE: runCmdRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runCmdRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, client, err := loadClient(ctx, true)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rt.Close(closeCtx); err != nil {
			rootCmd.PrintErrln("✗", err)
		}
	}()

	session, err := app.NewSession(rt, client)
	if err != nil {
		return err
	}

	rootCmd.Println("► session on http://" + rt.Config.Server.Addr())
	return session.Run(ctx)
}
