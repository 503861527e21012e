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
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/linesort/internal/verify"
)

func init() {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check that an output file is sorted and holds the same lines as its input",
		RunE:  runVerify,
	}

	rootCmd.AddCommand(cmd)

	cmd.Flags().StringP("file", "f", "", "Path to the original input, omit to only check ordering")
	cmd.Flags().StringP("output", "o", "", "Path to the sorted output")
	if err := cmd.MarkFlagRequired("output"); err != nil {
		panic(fmt.Errorf("failed to mark output flag as required: %w", err))
	}
}

func logReport(msg string, r verify.Report) {
	slog.Info(msg,
		slog.String("path", r.Path),
		slog.Int64("records", r.Records),
		slog.Int64("bytes", r.Bytes),
		slog.Bool("sorted", r.Sorted()),
		slog.Uint64("distinct", r.DistinctEstimate),
		slog.Float64("lengthP50", r.LengthP50),
		slog.Float64("lengthP99", r.LengthP99))
}

func runVerify(c *cobra.Command, _ []string) error {
	ctx, doneFx, err := setupTelemetry("linesort-verify")
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	defer shutdownTelemetry(doneFx)

	input, err := c.Flags().GetString("file")
	if err != nil {
		return fmt.Errorf("failed to get file flag: %w", err)
	}
	output, err := c.Flags().GetString("output")
	if err != nil {
		return fmt.Errorf("failed to get output flag: %w", err)
	}

	if input == "" {
		report, err := verify.File(ctx, output)
		if err != nil {
			return err
		}
		logReport("Output report", report)
		if !report.Sorted() {
			return fmt.Errorf("output is not sorted at line %d", report.FirstUnsortedLine)
		}
		return nil
	}

	cmp, err := verify.Compare(ctx, input, output)
	if err != nil {
		return err
	}
	logReport("Input report", cmp.Input)
	logReport("Output report", cmp.Output)
	if !cmp.OK() {
		return errors.New("verification failed: " + strings.Join(cmp.Problems, "; "))
	}
	slog.Info("Output verified")
	return nil
}
