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

	"github.com/cardinalhq/linesort/internal/linegen"
	"github.com/cardinalhq/linesort/internal/membudget"
)

func init() {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write a file of random lines for testing the sorter",
		RunE:  runGenerate,
	}

	rootCmd.AddCommand(cmd)

	cmd.Flags().Int("string-size", 0, "Characters per line")
	cmd.Flags().Int("batch-size", 0, "Lines written per batch")
	cmd.Flags().String("file-size", "", "Stop once the file reaches this size, e.g. 1G")
	cmd.Flags().StringP("output", "o", "", "Path to output file")
	cmd.Flags().Uint64("seed", 0, "Random seed, 0 for a random one")
}

func runGenerate(c *cobra.Command, _ []string) error {
	ctx, doneFx, err := setupTelemetry("linesort-generate")
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	defer shutdownTelemetry(doneFx)

	cfg, err := loadConfig(c.Flags())
	if err != nil {
		return err
	}
	g := &cfg.Generator
	overrideInt(c.Flags(), "string-size", &g.StringSize)
	overrideInt(c.Flags(), "batch-size", &g.BatchSize)
	overrideString(c.Flags(), "file-size", &g.FileSize)
	overrideString(c.Flags(), "output", &g.OutputPath)

	fileSize, err := membudget.Parse(g.FileSize)
	if err != nil {
		return fmt.Errorf("file size: %w", err)
	}
	seed, err := c.Flags().GetUint64("seed")
	if err != nil {
		return fmt.Errorf("failed to get seed flag: %w", err)
	}

	slog.Info("File generation has started",
		slog.String("output", g.OutputPath),
		slog.Int("stringSize", g.StringSize),
		slog.Int("batchSize", g.BatchSize),
		slog.String("fileSize", membudget.Format(fileSize)))

	stats, err := linegen.GenerateFile(ctx, g.OutputPath, linegen.Options{
		StringSize: g.StringSize,
		BatchSize:  g.BatchSize,
		FileSize:   fileSize,
		Seed:       seed,
	})
	if err != nil {
		return fmt.Errorf("failed to generate %s: %w", g.OutputPath, err)
	}

	slog.Info("File has been generated",
		slog.String("output", g.OutputPath),
		slog.Int64("lines", stats.Lines),
		slog.Int64("bytes", stats.Bytes))
	return nil
}
