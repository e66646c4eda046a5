package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/openmined/cloudsync/internal/client"
	"github.com/openmined/cloudsync/internal/version"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newSyncCmd())
	rootCmd.AddCommand(newDaemonCmd())
}

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one sync pass against the active provider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			result, err := c.RunOnce(cmd.Context())
			if errors.Is(err, client.ErrNotSignedIn) {
				return fmt.Errorf("%w: run `cloudsync login`", err)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s uploads=%d downloads=%d conflicts=%d deletes=%d uninstalls=%d unchanged=%d\n",
				green("synced"), result.Uploads, result.Downloads, result.Conflicts,
				result.Deletes, result.Uninstalls, result.Unchanged)
			for _, failure := range result.Failures {
				fmt.Fprintf(out, "%s %s\n", red("failed"), failure)
			}
			return nil
		},
	}
}

func newDaemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Keep the workspace in sync until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd)
		},
	}
}

func runDaemon(cmd *cobra.Command) error {
	c, err := newClient(cmd, client.WithNotifier(client.LogNotifier{}))
	if err != nil {
		return err
	}
	defer c.Close()

	showCloudSyncHeader()
	slog.Info("cloudsync", "version", version.Version, "revision", version.Revision, "build", version.BuildDate)

	defer slog.Info("Bye!")
	if err := client.NewDaemon(c).Start(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("daemon start", "error", err)
		return err
	}
	return nil
}
