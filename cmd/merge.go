// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/linesort/internal/extsort"
	"github.com/cardinalhq/linesort/internal/recordio"
)

func init() {
	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Merge the sorted runs left in a work directory into one output file",
		Long: `Merge every part-<n> run file in the work directory into the output.
Runs are kept on disk so a failed sort can be inspected and merged by hand.`,
		RunE: runMerge,
	}

	rootCmd.AddCommand(cmd)

	cmd.Flags().StringP("output", "o", "", "Path to output file")
	addWorkDirFlags(cmd.Flags())
}

func runMerge(c *cobra.Command, _ []string) error {
	ctx, doneFx, err := setupTelemetry("linesort-merge")
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	defer shutdownTelemetry(doneFx)

	cfg, err := loadConfig(c.Flags())
	if err != nil {
		return err
	}
	if cfg.Sorter.OutputPath == "" {
		return fmt.Errorf("output path is required")
	}
	codec, err := recordio.CodecByName(cfg.Sorter.RunFormat)
	if err != nil {
		return err
	}

	runs, err := extsort.ListRuns(cfg.Sorter.WorkDirectoryPath, codec)
	if err != nil {
		return err
	}
	slog.Info("Merging runs from work directory",
		slog.String("workDir", cfg.Sorter.WorkDirectoryPath),
		slog.Int("runs", len(runs)),
		slog.String("output", cfg.Sorter.OutputPath))

	merger := &extsort.Merger{
		Runs:       runs,
		OutputPath: cfg.Sorter.OutputPath,
		Codec:      codec,
	}
	records, err := merger.Merge(ctx)
	if err != nil {
		return fmt.Errorf("failed to merge runs: %w", err)
	}

	slog.Info("Merge complete", slog.Int("runs", len(runs)), slog.Int64("records", records))
	return nil
}
