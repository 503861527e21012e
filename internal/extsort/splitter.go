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

package extsort

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/cardinalhq/linesort/internal/recordio"
)

// Splitter cuts an unsorted input into sorted runs written to a workspace.
//
// Batches are sized at line granularity: lines are added to a batch until
// its size (content plus one terminator byte per line) reaches BatchBytes.
// The line that crosses the limit is kept in the batch, so a run can be one
// line larger than BatchBytes.
type Splitter struct {
	InputPath  string
	WorkDir    string
	BatchBytes int64

	// Codec selects the run file format. Defaults to recordio.TextCodec.
	Codec recordio.Codec

	// Parallelism is the number of batches that may be sorted and written
	// at the same time. Values below 2 keep splitting fully sequential.
	// While every writer is busy the next batch is already read, so peak
	// memory is about (Parallelism+1) * BatchBytes.
	Parallelism int

	// MaxRecordBytes limits the length of a single line. Zero means no limit.
	MaxRecordBytes int

	Observer Observer
}

// Split reads the whole input and returns the runs it wrote, ordered by
// sequence number. Split returns only once every run file is closed. An
// empty input produces no runs. On failure, run files already written are
// left in the workspace.
func (s *Splitter) Split(ctx context.Context) ([]Run, error) {
	codec := s.Codec
	if codec == nil {
		codec = recordio.TextCodec{}
	}
	observer := s.Observer
	if observer == nil {
		observer = NopObserver{}
	}

	f, err := os.Open(s.InputPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open input: %w", ErrSplitIO, err)
	}
	defer f.Close()

	reader := recordio.NewLineReader(f, s.MaxRecordBytes)

	var (
		mu   sync.Mutex
		runs []Run
	)
	record := func(run Run) {
		mu.Lock()
		defer mu.Unlock()
		runs = append(runs, run)
		observer.RunWritten(run)
	}

	var g *errgroup.Group
	gctx := ctx
	if s.Parallelism > 1 {
		g, gctx = errgroup.WithContext(ctx)
		g.SetLimit(s.Parallelism)
	}

	var loopErr error
	for seq := 1; ; seq++ {
		if err := gctx.Err(); err != nil {
			loopErr = fmt.Errorf("split interrupted: %w", err)
			break
		}

		batch, size, err := s.readBatch(reader)
		if err != nil {
			loopErr = fmt.Errorf("%w: read input %s: %w", ErrSplitIO, s.InputPath, err)
			break
		}
		if len(batch) == 0 {
			break
		}
		recordsReadCounter.Add(ctx, int64(len(batch)))

		if g == nil {
			run, err := s.writeRun(gctx, codec, seq, batch, size)
			if err != nil {
				loopErr = err
				break
			}
			record(run)
			continue
		}

		g.Go(func() error {
			run, err := s.writeRun(gctx, codec, seq, batch, size)
			if err != nil {
				return err
			}
			record(run)
			return nil
		})
	}

	if g != nil {
		// A failed writer cancels gctx, so its error takes precedence over
		// the interruption seen by the read loop.
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}
	if loopErr != nil {
		return nil, loopErr
	}

	slices.SortFunc(runs, func(a, b Run) int { return a.Seq - b.Seq })
	return runs, nil
}

// readBatch returns the next batch of lines and its size. A batch always
// holds at least one line unless the input is exhausted.
func (s *Splitter) readBatch(reader *recordio.LineReader) ([]string, int64, error) {
	var batch []string
	var size int64
	for len(batch) == 0 || size < s.BatchBytes {
		line, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, 0, err
		}
		batch = append(batch, line)
		size += int64(len(line)) + 1
	}
	return batch, size, nil
}

// writeRun sorts batch in place and writes it as run seq.
func (s *Splitter) writeRun(ctx context.Context, codec recordio.Codec, seq int, batch []string, size int64) (Run, error) {
	slices.Sort(batch)

	path := filepath.Join(s.WorkDir, RunFileName(seq, codec))
	f, err := os.Create(path)
	if err != nil {
		return Run{}, fmt.Errorf("%w: create run: %w", ErrSplitIO, err)
	}

	w := codec.NewWriter(f)
	for _, line := range batch {
		if err := w.Write(line); err != nil {
			_ = f.Close()
			return Run{}, fmt.Errorf("%w: write run: %w", ErrSplitIO, err)
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return Run{}, fmt.Errorf("%w: flush run: %w", ErrSplitIO, err)
	}
	if err := f.Close(); err != nil {
		return Run{}, fmt.Errorf("%w: close run: %w", ErrSplitIO, err)
	}

	runsWrittenCounter.Add(ctx, 1)

	return Run{
		Seq:     seq,
		Path:    path,
		Records: int64(len(batch)),
		Bytes:   size,
	}, nil
}
