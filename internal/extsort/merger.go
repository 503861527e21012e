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
	"container/heap"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hashicorp/go-multierror"

	"github.com/cardinalhq/linesort/internal/recordio"
)

// cancelCheckInterval is how many records are emitted between context checks.
const cancelCheckInterval = 4096

// Merger combines sorted runs into one sorted output file using a k-way
// merge. At most one record per run is held in memory.
type Merger struct {
	Runs       []Run
	OutputPath string

	// Codec is the format the runs were written with. Defaults to
	// recordio.TextCodec. The output is always plain text.
	Codec recordio.Codec
}

// runCursor is a forward-only view of one run with its next record buffered.
type runCursor struct {
	run     Run
	file    *os.File
	reader  recordio.RecordReader
	current string
}

// advance loads the next record. It returns false once the run is exhausted,
// closing the file at that point.
func (c *runCursor) advance() (bool, error) {
	rec, err := c.reader.Next()
	if errors.Is(err, io.EOF) {
		if cerr := c.close(); cerr != nil {
			return false, fmt.Errorf("%w: %w", ErrMergeIO, cerr)
		}
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: read run %s: %w", ErrMergeIO, c.run.Path, err)
	}
	c.current = rec
	return true, nil
}

func (c *runCursor) close() error {
	if c.file == nil {
		return nil
	}
	err := c.file.Close()
	c.file = nil
	if err != nil {
		return fmt.Errorf("close run: %w", err)
	}
	return nil
}

// cursorHeap orders cursors by their buffered record.
type cursorHeap []*runCursor

func (h cursorHeap) Len() int           { return len(h) }
func (h cursorHeap) Less(i, j int) bool { return h[i].current < h[j].current }
func (h cursorHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *cursorHeap) Push(x any) {
	*h = append(*h, x.(*runCursor))
}

func (h *cursorHeap) Pop() any {
	old := *h
	n := len(old)
	c := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return c
}

// Merge writes the merged runs to OutputPath and returns the number of
// records written. With no runs the output is created empty. Every run file
// and the output file are closed before Merge returns, whatever the outcome.
func (m *Merger) Merge(ctx context.Context) (written int64, err error) {
	codec := m.Codec
	if codec == nil {
		codec = recordio.TextCodec{}
	}

	cursors := make([]*runCursor, 0, len(m.Runs))
	var out *os.File

	defer func() {
		var errs *multierror.Error
		for _, c := range cursors {
			if cerr := c.close(); cerr != nil {
				errs = multierror.Append(errs, cerr)
			}
		}
		if out != nil {
			if cerr := out.Close(); cerr != nil {
				errs = multierror.Append(errs, fmt.Errorf("close output: %w", cerr))
			}
		}
		if err == nil && errs.ErrorOrNil() != nil {
			err = fmt.Errorf("%w: %w", ErrMergeIO, errs.ErrorOrNil())
		}
	}()

	h := make(cursorHeap, 0, len(m.Runs))
	for _, run := range m.Runs {
		f, err := os.Open(run.Path)
		if err != nil {
			return 0, fmt.Errorf("%w: open run: %w", ErrMergeIO, err)
		}
		c := &runCursor{run: run, file: f, reader: codec.NewReader(f)}
		cursors = append(cursors, c)

		ok, err := c.advance()
		if err != nil {
			return 0, err
		}
		if ok {
			h = append(h, c)
		}
	}
	heap.Init(&h)

	out, err = os.Create(m.OutputPath)
	if err != nil {
		return 0, fmt.Errorf("%w: create output: %w", ErrMergeIO, err)
	}
	w := recordio.NewLineWriter(out)

	for h.Len() > 0 {
		if written%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return written, fmt.Errorf("merge interrupted: %w", err)
			}
		}

		top := h[0]
		if err := w.Write(top.current); err != nil {
			return written, fmt.Errorf("%w: write output: %w", ErrMergeIO, err)
		}
		written++

		ok, err := top.advance()
		if err != nil {
			return written, err
		}
		if ok {
			heap.Fix(&h, 0)
		} else {
			heap.Pop(&h)
		}
	}

	if err := w.Flush(); err != nil {
		return written, fmt.Errorf("%w: flush output: %w", ErrMergeIO, err)
	}
	recordsMergedCounter.Add(ctx, written)
	return written, nil
}
