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

// Package verify checks sorter output against its input without holding
// either file in memory.
package verify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/DataDog/sketches-go/ddsketch"
	"github.com/axiomhq/hyperloglog"
	"github.com/cespare/xxhash/v2"

	"github.com/cardinalhq/linesort/internal/recordio"
)

const cancelCheckInterval = 4096

// Report summarizes one file.
type Report struct {
	Path    string
	Records int64
	Bytes   int64

	// FirstUnsortedLine is the 1-based line number of the first line
	// smaller than its predecessor, or zero when the file is sorted.
	FirstUnsortedLine int64

	// Sum and Xor of the xxhash64 of every line. Together with Records
	// they identify the multiset of lines independent of order.
	Sum uint64
	Xor uint64

	DistinctEstimate uint64
	LengthP50        float64
	LengthP99        float64
}

func (r Report) Sorted() bool {
	return r.FirstUnsortedLine == 0
}

// SameLines reports whether both files very likely hold the same lines.
func (r Report) SameLines(other Report) bool {
	return r.Records == other.Records && r.Sum == other.Sum && r.Xor == other.Xor
}

// File streams path and builds its report.
func File(ctx context.Context, path string) (Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return Report{}, err
	}
	defer f.Close()

	lengths, err := ddsketch.NewDefaultDDSketch(0.01)
	if err != nil {
		return Report{}, err
	}
	distinct := hyperloglog.New16()

	report := Report{Path: path}
	reader := recordio.NewLineReader(f, 0)
	var prev string
	for {
		line, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return report, fmt.Errorf("read %s: %w", path, err)
		}
		report.Records++
		if report.Records%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return report, err
			}
		}

		if report.FirstUnsortedLine == 0 && report.Records > 1 && line < prev {
			report.FirstUnsortedLine = report.Records
		}
		prev = line

		h := xxhash.Sum64String(line)
		report.Sum += h
		report.Xor ^= h
		distinct.Insert([]byte(line))
		if err := lengths.Add(float64(len(line))); err != nil {
			return report, err
		}
	}
	report.Bytes = reader.Consumed()
	report.DistinctEstimate = distinct.Estimate()

	if !lengths.IsEmpty() {
		if report.LengthP50, err = lengths.GetValueAtQuantile(0.5); err != nil {
			return report, err
		}
		if report.LengthP99, err = lengths.GetValueAtQuantile(0.99); err != nil {
			return report, err
		}
	}
	return report, nil
}

// Comparison is the outcome of checking an output file against its input.
type Comparison struct {
	Input    Report
	Output   Report
	Problems []string
}

func (c Comparison) OK() bool {
	return len(c.Problems) == 0
}

// Compare checks that output is sorted and holds exactly the lines of input.
func Compare(ctx context.Context, input, output string) (Comparison, error) {
	var c Comparison
	var err error
	if c.Input, err = File(ctx, input); err != nil {
		return c, err
	}
	if c.Output, err = File(ctx, output); err != nil {
		return c, err
	}

	if !c.Output.Sorted() {
		c.Problems = append(c.Problems, fmt.Sprintf("output is not sorted at line %d", c.Output.FirstUnsortedLine))
	}
	if c.Input.Records != c.Output.Records {
		c.Problems = append(c.Problems, fmt.Sprintf("record count differs: input %d, output %d", c.Input.Records, c.Output.Records))
	} else if !c.Input.SameLines(c.Output) {
		c.Problems = append(c.Problems, "output lines differ from input lines")
	}
	return c, nil
}
