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
	"github.com/spf13/pflag"

	"github.com/cardinalhq/linesort/config"
	"github.com/cardinalhq/linesort/internal/extsort"
	"github.com/cardinalhq/linesort/internal/membudget"
	"github.com/cardinalhq/linesort/internal/recordio"
)

func init() {
	cmd := &cobra.Command{
		Use:   "sort",
		Short: "Sort the lines of a file, spilling sorted runs to disk when it exceeds the memory limit",
		RunE:  runSort,
	}

	rootCmd.AddCommand(cmd)

	cmd.Flags().StringP("mem", "m", "", "Memory limit used for sorting, e.g. 500K, 100M, 2G")
	cmd.Flags().StringP("file", "f", "", "Path to input file")
	cmd.Flags().StringP("output", "o", "", "Path to output file")
	addWorkDirFlags(cmd.Flags())
	cmd.Flags().Int("parallelism", 0, "Number of runs sorted and written concurrently")
	cmd.Flags().String("max-record-bytes", "", "Reject lines longer than this size, 0 for no limit")
}

func addWorkDirFlags(fs *pflag.FlagSet) {
	fs.StringP("work-dir", "w", "", "Directory holding temporary run files")
	fs.String("run-format", "", "Run file format: text or cbor")
}

// loadConfig reads the config file and environment, then applies any flags
// the user set explicitly.
func loadConfig(fs *pflag.FlagSet) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	s := &cfg.Sorter
	overrideString(fs, "mem", &s.MemoryLimit)
	overrideString(fs, "file", &s.InputPath)
	overrideString(fs, "output", &s.OutputPath)
	overrideString(fs, "work-dir", &s.WorkDirectoryPath)
	overrideString(fs, "run-format", &s.RunFormat)
	overrideString(fs, "max-record-bytes", &s.MaxRecordBytes)
	overrideInt(fs, "parallelism", &s.Parallelism)
	return cfg, nil
}

func overrideString(fs *pflag.FlagSet, name string, dst *string) {
	if f := fs.Lookup(name); f != nil && f.Changed {
		*dst = f.Value.String()
	}
}

func overrideInt(fs *pflag.FlagSet, name string, dst *int) {
	if f := fs.Lookup(name); f != nil && f.Changed {
		if v, err := fs.GetInt(name); err == nil {
			*dst = v
		}
	}
}

// engineConfig converts the sorter section into an engine configuration.
func engineConfig(s config.SorterConfig) (extsort.Config, error) {
	limit, err := membudget.Parse(s.MemoryLimit)
	if err != nil {
		return extsort.Config{}, fmt.Errorf("memory limit: %w", err)
	}
	var maxRecord int64
	if s.MaxRecordBytes != "" {
		if maxRecord, err = membudget.Parse(s.MaxRecordBytes); err != nil {
			return extsort.Config{}, fmt.Errorf("max record bytes: %w", err)
		}
	}
	codec, err := recordio.CodecByName(s.RunFormat)
	if err != nil {
		return extsort.Config{}, err
	}
	return extsort.Config{
		InputPath:      s.InputPath,
		OutputPath:     s.OutputPath,
		WorkDir:        s.WorkDirectoryPath,
		MemoryLimit:    limit,
		Codec:          codec,
		Parallelism:    s.Parallelism,
		MaxRecordBytes: int(maxRecord),
	}, nil
}

func runSort(c *cobra.Command, _ []string) error {
	ctx, doneFx, err := setupTelemetry("linesort-sort")
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	defer shutdownTelemetry(doneFx)

	cfg, err := loadConfig(c.Flags())
	if err != nil {
		return err
	}
	ecfg, err := engineConfig(cfg.Sorter)
	if err != nil {
		return err
	}
	ecfg.Observer = extsort.NewLogObserver(slog.Default())

	engine, err := extsort.New(ecfg)
	if err != nil {
		return err
	}

	slog.Info("Starting sort",
		slog.String("input", ecfg.InputPath),
		slog.String("output", ecfg.OutputPath),
		slog.String("workDir", ecfg.WorkDir),
		slog.String("memoryLimit", membudget.Format(ecfg.MemoryLimit)),
		slog.String("runFormat", ecfg.Codec.Name()))

	result, err := engine.Sort(ctx)
	if err != nil {
		return fmt.Errorf("failed to sort %s: %w", ecfg.InputPath, err)
	}

	slog.Info("Sort complete",
		slog.String("mode", string(result.Mode)),
		slog.Int64("inputBytes", result.InputBytes),
		slog.Int64("records", result.Records),
		slog.Int("runs", result.Runs),
		slog.Duration("duration", result.Duration))
	return nil
}
