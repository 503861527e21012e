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

// Package linegen writes files of random fixed-width lines for exercising
// the sorter.
package linegen

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
)

// DefaultCharset is the alphabet lines are drawn from.
const DefaultCharset = "abcdefghijklmnopqrstuvwxyz0123456789"

type Options struct {
	StringSize int
	BatchSize  int
	FileSize   int64
	Charset    string

	// Seed makes output reproducible. Zero picks a random seed.
	Seed uint64
}

func (o Options) validate() error {
	var errs []error
	if o.StringSize <= 0 {
		errs = append(errs, errors.New("string size must be positive"))
	}
	if o.BatchSize <= 0 {
		errs = append(errs, errors.New("batch size must be positive"))
	}
	if o.FileSize < 0 {
		errs = append(errs, errors.New("file size cannot be negative"))
	}
	return errors.Join(errs...)
}

// Stats describes what was generated.
type Stats struct {
	Lines   int64
	Batches int64
	Bytes   int64
}

// Generate writes whole batches of BatchSize lines to w until at least
// FileSize bytes have been written, so the result may overshoot FileSize by
// up to one batch.
func Generate(ctx context.Context, w io.Writer, opts Options) (Stats, error) {
	if err := opts.validate(); err != nil {
		return Stats{}, err
	}
	charset := opts.Charset
	if charset == "" {
		charset = DefaultCharset
	}
	seed := opts.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	rng := rand.New(rand.NewPCG(seed, seed>>1|1))

	bw := bufio.NewWriter(w)
	line := make([]byte, opts.StringSize+1)
	line[opts.StringSize] = '\n'

	var stats Stats
	for stats.Bytes < opts.FileSize {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		for range opts.BatchSize {
			for i := range opts.StringSize {
				line[i] = charset[rng.IntN(len(charset))]
			}
			n, err := bw.Write(line)
			stats.Bytes += int64(n)
			if err != nil {
				return stats, err
			}
			stats.Lines++
		}
		stats.Batches++
	}
	return stats, bw.Flush()
}

// GenerateFile creates or truncates path and fills it with Generate.
func GenerateFile(ctx context.Context, path string, opts Options) (Stats, error) {
	f, err := os.Create(path)
	if err != nil {
		return Stats{}, fmt.Errorf("create output: %w", err)
	}
	stats, err := Generate(ctx, f, opts)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close output: %w", cerr)
	}
	return stats, err
}
