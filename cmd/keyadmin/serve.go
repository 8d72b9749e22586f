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

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve keys.json and the key management API over HTTP",
	Long: `Serve the registry at GET /keys.json for clients using the http channel,
accept first-use bindings at POST /api/v1/bindings, and expose the key
management API under /api/v1/keys when an admin token is configured.`,
	Args: cobra.NoArgs,
	RunE: serveCmdRun,
}

type serveFlags struct {
	watch bool
}

var serveArgs serveFlags

func init() {
	serveCmd.Flags().BoolVar(&serveArgs.watch, "watch", false,
		"Rebuild keys.json when record files are edited while serving.")
	rootCmd.AddCommand(serveCmd)
}

func serveCmdRun(cmd *cobra.Command, args []string) error {
	rt, err := loadRuntime(true)
	if err != nil {
		return err
	}
	defer closeRuntime(rt)

	srv, err := app.NewKeyServer(rt, newKeyManager(rt))
	if err != nil {
		return err
	}
	srv.WatchRecords = serveArgs.watch

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.Println("► serving registry on http://" + rt.Config.Server.Addr() + "/keys.json")
	return srv.Run(ctx)
}

func closeRuntime(rt *app.Runtime) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rt.Close(ctx); err != nil {
		rootCmd.PrintErrln("✗", err)
	}
}
