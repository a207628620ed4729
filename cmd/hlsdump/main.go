// The hlsdump command records a live HLS stream to disk, one file per media
// segment, and can join the recorded segments back into a single file.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

const (
	version = "1.0.0"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "hlsdump [flags] <playlist-url> <folder>",
		Short: "Record a live HLS stream segment by segment",
		Long: `hlsdump polls a live HLS playlist and saves every media segment it
publishes to <folder>, exactly once, as {prefix}-{epoch}#{sequence}.ts.

Running hlsdump with two arguments is the same as "hlsdump record".`,
		Example: `  hlsdump https://example.com/live/index.m3u8 ./recording
  hlsdump record --listen :9090 --variant 0 https://example.com/master.m3u8 ./recording
  hlsdump join ./recording ./recording.ts`,
		Args:          cobra.ExactArgs(2),
		RunE:          runRecord,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("config", "", "YAML config file")
	root.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	root.PersistentFlags().String("log-format", "text", "Log format: text or json")
	addRecordFlags(root)

	record := &cobra.Command{
		Use:   "record [flags] <playlist-url> <folder>",
		Short: "Record a live HLS stream (default command)",
		Args:  cobra.ExactArgs(2),
		RunE:  runRecord,
	}
	addRecordFlags(record)

	root.AddCommand(record, newJoinCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version and exit",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "hlsdump v%s\n", version)
		},
	}
}

// newLogger builds the process logger. Debug records are kept only when verbose.
func newLogger(w io.Writer, verbose bool, format string) *slog.Logger {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: logLevel}

	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
