package main

import (
	"fmt"
	"runtime"

	"github.com/danmuck/dps_backup/src/protocol"
	"github.com/danmuck/dps_backup/src/session"
	"github.com/spf13/cobra"
)

func listCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the files the server holds for a fresh client id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSteps(cmd.Context(), opts, nil, []session.Step{{Op: protocol.OpList, File: session.NoFile}})
		},
	}
}

func saveCmd(opts *options) *cobra.Command {
	return fileCmd(opts, protocol.OpSave, "save <file>...", "Back up files read from --input-dir")
}

func restoreCmd(opts *options) *cobra.Command {
	return fileCmd(opts, protocol.OpRestore, "restore <file>...", "Restore files into --output-dir as <prefix>.<ext>")
}

func deleteCmd(opts *options) *cobra.Command {
	return fileCmd(opts, protocol.OpDelete, "delete <file>...", "Delete files from the server")
}

// fileCmd runs op once per argument within a single session.
func fileCmd(opts *options, op protocol.Opcode, use, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Long: short + `.

Every invocation picks a new random client id, so files saved by one
invocation are not visible to the next. Use the scripted run to exercise
save and restore together.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps := make([]session.Step, len(args))
			for i := range args {
				steps[i] = session.Step{Op: op, File: i}
			}
			return runSteps(cmd.Context(), opts, args, steps)
		},
	}
}

func versionCmd() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			if short {
				fmt.Println(version)
				return
			}
			fmt.Printf("  Version:    %s\n", version)
			fmt.Printf("  Commit:     %s\n", commit)
			fmt.Printf("  Protocol:   %d\n", session.DefaultVersion)
			fmt.Printf("  Go version: %s\n", runtime.Version())
		},
	}

	cmd.Flags().BoolVarP(&short, "short", "s", false, "Print only version number")

	return cmd
}
