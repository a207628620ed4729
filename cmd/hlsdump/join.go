package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/agleyzer/hlsdump/internal/catalog"
)

func newJoinCmd() *cobra.Command {
	var (
		prefix string
		dbName string
	)

	cmd := &cobra.Command{
		Use:   "join [flags] <folder> <output>",
		Short: "Concatenate recorded segments into one file",
		Long: `join reads the segment catalog in <folder> and writes every catalogued
segment that is still on disk to <output>, in (epoch, sequence) order.
The output file is replaced atomically.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			folder, output := args[0], args[1]
			cmd.SilenceUsage = true

			verbose, _ := cmd.Flags().GetBool("verbose")
			format, _ := cmd.Flags().GetString("log-format")
			logger := newLogger(cmd.ErrOrStderr(), verbose, format)

			if dbName == "" {
				return errors.New("catalog name must not be empty")
			}
			dbPath := dbName
			if !filepath.IsAbs(dbPath) {
				dbPath = filepath.Join(folder, dbName)
			}
			if _, err := os.Stat(dbPath); err != nil {
				return fmt.Errorf("no segment catalog at %s: %w", dbPath, err)
			}

			cat, err := catalog.Open(dbPath)
			if err != nil {
				return fmt.Errorf("open catalog: %w", err)
			}
			defer cat.Close()

			res, err := cat.Join(cmd.Context(), prefix, output)
			if err != nil {
				return err
			}

			if res.Missing > 0 {
				logger.Warn("some catalogued segments are no longer on disk", "missing", res.Missing)
			}
			logger.Info("joined segments", "output", output, "segments", res.Segments, "bytes", res.Bytes)
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d segments, %d bytes\n", output, res.Segments, res.Bytes)
			return nil
		},
	}

	cmd.Flags().StringVar(&prefix, "prefix", "", "Segment name prefix to join (required if the folder holds several streams)")
	cmd.Flags().StringVar(&dbName, "catalog", catalog.DefaultName, "Segment catalog database, relative to the folder")
	return cmd
}
