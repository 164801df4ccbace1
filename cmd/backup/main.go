package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "backup",
		Short: "Client for the little-endian TCP backup server",
		Long: `backup talks to a backup server over TCP.

Without a subcommand it runs the scripted session against the first two
names in backup.info: list, save both, list, restore the first, delete it,
then restore it again. Restored files are written as <prefix>.<ext>.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScript(cmd.Context(), opts)
		},
	}
	opts.register(rootCmd)

	rootCmd.AddCommand(
		listCmd(opts),
		saveCmd(opts),
		restoreCmd(opts),
		deleteCmd(opts),
		versionCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
