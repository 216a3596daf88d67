package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"watchbot/internal/app"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the notifier, health server and config watcher until signaled",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigCh)

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		a, err := app.New(cfgPath, app.Options{Version: Version})
		if err != nil {
			return err
		}
		if err := a.Start(ctx); err != nil {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer stopCancel()
			_ = a.Stop(stopCtx, app.StopFatalError)
			return err
		}

		reason := app.StopUnknown
		select {
		case sig := <-sigCh:
			reason = app.StopSIGINT
			if sig == syscall.SIGTERM {
				reason = app.StopSIGTERM
			}
		case <-a.Done():
			if a.Err() != nil {
				reason = app.StopFatalError
			}
		}
		cancel()

		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		stopErr := a.Stop(stopCtx, reason)
		if err := a.Err(); err != nil {
			return err
		}
		return stopErr
	},
}
