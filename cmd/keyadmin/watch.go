package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"axiscli/internal/keystore"
	"axiscli/internal/registry"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Rebuild keys.json whenever record files change",
	Args:  cobra.NoArgs,
	RunE:  watchCmdRun,
}

type watchFlags struct {
	settle time.Duration
}

var watchArgs = watchFlags{
	settle: keystore.DefaultSettle,
}

func init() {
	watchCmd.Flags().DurationVar(&watchArgs.settle, "settle", watchArgs.settle,
		"How long the records directory must stay quiet before rebuilding.")
	rootCmd.AddCommand(watchCmd)
}

func watchCmdRun(cmd *cobra.Command, args []string) error {
	rt, err := loadRuntime(false)
	if err != nil {
		return err
	}
	m := newKeyManager(rt)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := m.Rebuild(ctx); err != nil {
		return fmt.Errorf("failed to rebuild registry: %w", err)
	}

	rootCmd.Println("► watching " + m.Store().RecordsDir())
	return m.Store().Watch(ctx, watchArgs.settle, func(document []byte, err error) {
		if err != nil {
			rootCmd.PrintErrln("✗ rebuild failed:", err)
			return
		}
		reg, err := registry.Parse(document)
		if err != nil {
			rootCmd.PrintErrln("✗ rebuild produced an unreadable registry:", err)
			return
		}
		rootCmd.Println(fmt.Sprintf("✔ rebuilt with %d keys", len(reg)))
	})
}
