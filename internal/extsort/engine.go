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

// Package extsort sorts line oriented text files that may not fit in
// memory. Small inputs are sorted in memory; larger ones are split into
// sorted runs inside a workspace directory and k-way merged into the output.
package extsort

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"

	"github.com/cardinalhq/linesort/internal/recordio"
	"github.com/cardinalhq/linesort/internal/workspace"
)

// Config describes one sort job. InputPath, OutputPath, WorkDir and
// MemoryLimit are required.
type Config struct {
	InputPath  string
	OutputPath string
	WorkDir    string

	// MemoryLimit decides between a direct in-memory sort (input smaller
	// than the limit) and an external sort, and caps the size of each run.
	MemoryLimit int64

	// Codec is the run file format. Defaults to recordio.TextCodec.
	Codec recordio.Codec

	// Parallelism bounds how many runs are sorted and written at once.
	// Defaults to 1.
	Parallelism int

	// MaxRecordBytes rejects lines longer than this. Zero allows any length.
	MaxRecordBytes int

	// Observer receives progress events. Defaults to NopObserver.
	Observer Observer
}

// Validate reports every missing or invalid field at once.
func (c Config) Validate() error {
	var errs []error
	if c.InputPath == "" {
		errs = append(errs, errors.New("input path is required"))
	}
	if c.OutputPath == "" {
		errs = append(errs, errors.New("output path is required"))
	}
	if c.WorkDir == "" {
		errs = append(errs, errors.New("work directory path is required"))
	}
	if c.MemoryLimit <= 0 {
		errs = append(errs, errors.New("memory limit must be positive"))
	}
	if c.Parallelism < 0 {
		errs = append(errs, errors.New("parallelism cannot be negative"))
	}
	if c.MaxRecordBytes < 0 {
		errs = append(errs, errors.New("max record bytes cannot be negative"))
	}
	errs = append(errs, c.checkOutsideWorkDir()...)
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// checkOutsideWorkDir rejects an input or output placed directly in the
// work directory, since preparing and purging the workspace removes every
// entry in it.
func (c Config) checkOutsideWorkDir() []error {
	if c.WorkDir == "" {
		return nil
	}
	work, err := filepath.Abs(c.WorkDir)
	if err != nil {
		return []error{fmt.Errorf("work directory path: %w", err)}
	}

	var errs []error
	for _, p := range []struct{ name, path string }{
		{"input path", c.InputPath},
		{"output path", c.OutputPath},
	} {
		if p.path == "" {
			continue
		}
		abs, err := filepath.Abs(p.path)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.name, err))
			continue
		}
		if abs == work || filepath.Dir(abs) == work {
			errs = append(errs, fmt.Errorf("%s %s is inside the work directory %s", p.name, p.path, c.WorkDir))
		}
	}
	return errs
}

// Mode is the strategy chosen for a job.
type Mode string

const (
	ModeDirect   Mode = "direct"
	ModeExternal Mode = "external"
)

// Result summarizes a completed sort.
type Result struct {
	Mode       Mode
	InputBytes int64
	Records    int64
	Runs       int
	Duration   time.Duration
}

// Engine runs a single sort job. It is not reusable.
type Engine struct {
	cfg      Config
	observer Observer

	state        State
	stateEntered time.Time
}

// New validates cfg and returns an engine ready to sort.
func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Codec == nil {
		cfg.Codec = recordio.TextCodec{}
	}
	if cfg.Parallelism == 0 {
		cfg.Parallelism = 1
	}
	observer := cfg.Observer
	if observer == nil {
		observer = NopObserver{}
	}
	return &Engine{
		cfg:      cfg,
		observer: observer,
		state:    StateIdle,
	}, nil
}

// State returns the current state of the job.
func (e *Engine) State() State {
	return e.state
}

// Sort runs the job. On success the output holds every input line in sorted
// order. On failure the output must be treated as invalid, and for an
// external sort the run files stay in the workspace.
func (e *Engine) Sort(ctx context.Context) (Result, error) {
	if e.state != StateIdle {
		return Result{}, fmt.Errorf("sort already ran, engine is %s", e.state)
	}
	start := time.Now()
	e.stateEntered = start
	e.transition(ctx, StateDeciding)

	info, err := os.Stat(e.cfg.InputPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return Result{}, e.fail(ctx, fmt.Errorf("%w: %s", ErrInputNotFound, e.cfg.InputPath))
	case err != nil:
		return Result{}, e.fail(ctx, fmt.Errorf("%w: stat input: %w", ErrSplitIO, err))
	case info.IsDir():
		return Result{}, e.fail(ctx, fmt.Errorf("%w: %s is a directory", ErrInputNotFound, e.cfg.InputPath))
	}

	result := Result{InputBytes: info.Size()}
	if info.Size() < e.cfg.MemoryLimit {
		result.Mode = ModeDirect
		e.transition(ctx, StateDirectSort)
		result.Records, err = e.sortInMemory(ctx)
	} else {
		result.Mode = ModeExternal
		result.Records, result.Runs, err = e.sortExternal(ctx, info.Size())
	}
	if err != nil {
		return Result{}, e.fail(ctx, err)
	}

	e.transition(ctx, StateDone)
	result.Duration = time.Since(start)
	return result, nil
}

func (e *Engine) sortInMemory(ctx context.Context) (int64, error) {
	in, err := os.Open(e.cfg.InputPath)
	if err != nil {
		return 0, fmt.Errorf("%w: open input: %w", ErrSplitIO, err)
	}
	defer in.Close()

	reader := recordio.NewLineReader(in, e.cfg.MaxRecordBytes)
	var lines []string
	for {
		line, err := reader.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return 0, fmt.Errorf("%w: read input %s: %w", ErrSplitIO, e.cfg.InputPath, err)
		}
		lines = append(lines, line)
	}
	recordsReadCounter.Add(ctx, int64(len(lines)))

	slices.Sort(lines)

	out, err := os.Create(e.cfg.OutputPath)
	if err != nil {
		return 0, fmt.Errorf("%w: create output: %w", ErrMergeIO, err)
	}
	w := recordio.NewLineWriter(out)
	for _, line := range lines {
		if err := w.Write(line); err != nil {
			_ = out.Close()
			return 0, fmt.Errorf("%w: write output: %w", ErrMergeIO, err)
		}
	}
	if err := w.Flush(); err != nil {
		_ = out.Close()
		return 0, fmt.Errorf("%w: flush output: %w", ErrMergeIO, err)
	}
	if err := out.Close(); err != nil {
		return 0, fmt.Errorf("%w: close output: %w", ErrMergeIO, err)
	}
	return int64(len(lines)), nil
}

func (e *Engine) sortExternal(ctx context.Context, inputSize int64) (int64, int, error) {
	e.transition(ctx, StateSplitting)

	report, err := workspace.Prepare(e.cfg.WorkDir)
	if err != nil {
		return 0, 0, err
	}
	e.observer.WorkspacePrepared(report)

	if usage, err := workspace.DiskUsage(e.cfg.WorkDir); err == nil && usage.FreeBytes < uint64(inputSize) {
		e.observer.LowDiskSpace(e.cfg.WorkDir, usage.FreeBytes, inputSize)
	}

	splitter := &Splitter{
		InputPath:      e.cfg.InputPath,
		WorkDir:        e.cfg.WorkDir,
		BatchBytes:     e.cfg.MemoryLimit,
		Codec:          e.cfg.Codec,
		Parallelism:    e.cfg.Parallelism,
		MaxRecordBytes: e.cfg.MaxRecordBytes,
		Observer:       e.observer,
	}
	runs, err := splitter.Split(ctx)
	if err != nil {
		return 0, 0, err
	}

	e.transition(ctx, StateMerging)
	merger := &Merger{
		Runs:       runs,
		OutputPath: e.cfg.OutputPath,
		Codec:      e.cfg.Codec,
	}
	records, err := merger.Merge(ctx)
	if err != nil {
		return 0, 0, err
	}
	e.observer.MergeCompleted(len(runs), records)

	e.transition(ctx, StateCleaningUp)
	if _, err := workspace.Purge(e.cfg.WorkDir); err != nil {
		return 0, 0, err
	}
	return records, len(runs), nil
}

func (e *Engine) transition(ctx context.Context, to State) {
	now := time.Now()
	from := e.state
	if from != StateIdle {
		phaseDuration.Record(ctx, now.Sub(e.stateEntered).Seconds(), otelmetric.WithAttributes(
			attribute.String("phase", from.String()),
		))
	}
	e.state = to
	e.stateEntered = now
	e.observer.StateChanged(from, to)
}

func (e *Engine) fail(ctx context.Context, err error) error {
	in := e.state
	e.transition(ctx, StateError)
	e.observer.SortFailed(in, err)
	return err
}
