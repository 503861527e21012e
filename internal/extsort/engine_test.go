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
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/linesort/internal/recordio"
	"github.com/cardinalhq/linesort/internal/workspace"
)

func newEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	e, err := New(cfg)
	require.NoError(t, err)
	return e
}

func TestEngine_DirectSortScenario(t *testing.T) {
	input, output, work := tempPaths(t)
	writeLines(t, input, []string{"banana", "apple", "cherry"})

	obs := &recordingObserver{}
	e := newEngine(t, Config{InputPath: input, OutputPath: output, WorkDir: work, MemoryLimit: 1024, Observer: obs})
	result, err := e.Sort(context.Background())
	require.NoError(t, err)

	assert.Equal(t, ModeDirect, result.Mode)
	assert.Equal(t, int64(3), result.Records)
	assert.Zero(t, result.Runs)
	assert.Equal(t, "apple\nbanana\ncherry\n", mustRead(t, output))
	assert.Equal(t, []State{StateDeciding, StateDirectSort, StateDone}, obs.states)
	assert.Equal(t, StateDone, e.State())

	_, err = os.Stat(work)
	assert.ErrorIs(t, err, os.ErrNotExist, "direct sort must not touch the workspace")
}

func TestEngine_ThresholdBoundary(t *testing.T) {
	tests := []struct {
		name       string
		size       int
		wantMode   Mode
		wantWorkIO bool
	}{
		{"one byte below the limit sorts in memory", 99, ModeDirect, false},
		{"exactly at the limit sorts externally", 100, ModeExternal, true},
		{"above the limit sorts externally", 101, ModeExternal, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input, output, work := tempPaths(t)
			// Lines of 9 characters plus terminator, topped up with a shorter line.
			var sb strings.Builder
			for sb.Len()+10 <= tt.size {
				sb.WriteString("qwertyuio\n")
			}
			if rest := tt.size - sb.Len(); rest > 0 {
				sb.WriteString(strings.Repeat("a", rest-1) + "\n")
			}
			require.Equal(t, tt.size, sb.Len())
			writeFile(t, input, sb.String())

			e := newEngine(t, Config{InputPath: input, OutputPath: output, WorkDir: work, MemoryLimit: 100})
			result, err := e.Sort(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.wantMode, result.Mode)
			assert.Equal(t, int64(tt.size), result.InputBytes)

			_, statErr := os.Stat(work)
			if tt.wantWorkIO {
				require.NoError(t, statErr)
				assert.Empty(t, dirEntries(t, work))
			} else {
				assert.ErrorIs(t, statErr, os.ErrNotExist)
			}

			got := readLines(t, output)
			assert.True(t, slices.IsSorted(got))
			assert.Equal(t, sortedCopy(readLinesFromString(sb.String())), got)
		})
	}
}

func TestEngine_EmptyInputDirect(t *testing.T) {
	input, output, work := tempPaths(t)
	writeFile(t, input, "")

	e := newEngine(t, Config{InputPath: input, OutputPath: output, WorkDir: work, MemoryLimit: 1})
	result, err := e.Sort(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ModeDirect, result.Mode)
	assert.Zero(t, result.Records)
	assert.Equal(t, "", mustRead(t, output))
}

func TestEngine_EmptyInputExternalPipeline(t *testing.T) {
	// An empty file is always smaller than a positive limit, so the
	// external path is driven through its parts directly.
	input, output, work := tempPaths(t)
	writeFile(t, input, "")
	require.NoError(t, os.Mkdir(work, 0o755))

	s := &Splitter{InputPath: input, WorkDir: work, BatchBytes: 1}
	runs, err := s.Split(context.Background())
	require.NoError(t, err)
	require.Empty(t, runs)

	m := &Merger{Runs: runs, OutputPath: output}
	n, err := m.Merge(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, "", mustRead(t, output))
}

func TestEngine_TenThousandLinesFourRuns(t *testing.T) {
	input, output, work := tempPaths(t)
	lines := randomLines(42, 10_000, 10)
	writeLines(t, input, lines)

	obs := &recordingObserver{}
	e := newEngine(t, Config{InputPath: input, OutputPath: output, WorkDir: work, MemoryLimit: 27_500, Observer: obs})
	result, err := e.Sort(context.Background())
	require.NoError(t, err)

	assert.Equal(t, ModeExternal, result.Mode)
	assert.Equal(t, 4, result.Runs)
	assert.Equal(t, int64(10_000), result.Records)
	assert.Equal(t, 4, obs.merged)

	var runTotal int64
	for _, run := range obs.runs {
		runTotal += run.Records
	}
	assert.Equal(t, int64(10_000), runTotal)

	assert.Equal(t, sortedCopy(lines), readLines(t, output))
	assert.Empty(t, dirEntries(t, work), "workspace must be purged after success")
	assert.Equal(t, []State{StateDeciding, StateSplitting, StateMerging, StateCleaningUp, StateDone}, obs.states)

	require.Len(t, obs.prepared, 1)
	assert.True(t, obs.prepared[0].Created)
}

func TestEngine_EmptiesStaleWorkspace(t *testing.T) {
	input, output, work := tempPaths(t)
	require.NoError(t, os.Mkdir(work, 0o755))
	writeFile(t, filepath.Join(work, "part-99.txt"), "zzz\n")
	writeLines(t, input, []string{"b", "a"})

	obs := &recordingObserver{}
	e := newEngine(t, Config{InputPath: input, OutputPath: output, WorkDir: work, MemoryLimit: 2, Observer: obs})
	_, err := e.Sort(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, readLines(t, output), "stale runs must not leak into the output")
	require.Len(t, obs.prepared, 1)
	assert.False(t, obs.prepared[0].Created)
	assert.Len(t, obs.prepared[0].Removed, 1)
}

func TestEngine_ResortIsIdempotent(t *testing.T) {
	for _, limit := range []int64{1 << 20, 512} {
		input, output, work := tempPaths(t)
		writeLines(t, input, sortedCopy(randomLines(5, 2000, 8)))

		e := newEngine(t, Config{InputPath: input, OutputPath: output, WorkDir: work, MemoryLimit: limit})
		_, err := e.Sort(context.Background())
		require.NoError(t, err)
		assert.Equal(t, mustRead(t, input), mustRead(t, output))
	}
}

func TestEngine_DuplicatesAndBlankLinesPreserved(t *testing.T) {
	lines := []string{"b", "", "a", "b", "", "c", "a"}
	for _, limit := range []int64{1 << 20, 3} {
		input, output, work := tempPaths(t)
		writeLines(t, input, lines)

		e := newEngine(t, Config{InputPath: input, OutputPath: output, WorkDir: work, MemoryLimit: limit})
		_, err := e.Sort(context.Background())
		require.NoError(t, err)
		assert.Equal(t, sortedCopy(lines), readLines(t, output))
	}
}

func TestEngine_UnterminatedLastLine(t *testing.T) {
	for _, limit := range []int64{1 << 20, 2} {
		input, output, work := tempPaths(t)
		writeFile(t, input, "b\nc\na")

		e := newEngine(t, Config{InputPath: input, OutputPath: output, WorkDir: work, MemoryLimit: limit})
		_, err := e.Sort(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "a\nb\nc\n", mustRead(t, output))
	}
}

func TestEngine_ByteOrder(t *testing.T) {
	input, output, work := tempPaths(t)
	writeLines(t, input, []string{"b", "B", "é", "a", "Z", "10", "9"})

	e := newEngine(t, Config{InputPath: input, OutputPath: output, WorkDir: work, MemoryLimit: 4})
	_, err := e.Sort(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"10", "9", "B", "Z", "a", "b", "é"}, readLines(t, output))
}

func TestEngine_CborAndParallel(t *testing.T) {
	lines := randomLines(99, 4000, 16)
	codec, err := recordio.NewCborCodec()
	require.NoError(t, err)

	for _, cfg := range []Config{
		{Codec: codec},
		{Parallelism: 4},
		{Codec: codec, Parallelism: 3},
	} {
		input, output, work := tempPaths(t)
		writeLines(t, input, lines)
		cfg.InputPath, cfg.OutputPath, cfg.WorkDir, cfg.MemoryLimit = input, output, work, 2048

		e := newEngine(t, cfg)
		result, err := e.Sort(context.Background())
		require.NoError(t, err)
		assert.Equal(t, ModeExternal, result.Mode)
		assert.Greater(t, result.Runs, 1)
		assert.Equal(t, sortedCopy(lines), readLines(t, output))
		assert.Empty(t, dirEntries(t, work))
	}
}

func TestEngine_MissingInputLeavesWorkspaceUntouched(t *testing.T) {
	_, output, work := tempPaths(t)
	require.NoError(t, os.Mkdir(work, 0o755))
	stale := filepath.Join(work, "part-1.txt")
	writeFile(t, stale, "keep\n")

	obs := &recordingObserver{}
	e := newEngine(t, Config{
		InputPath:   filepath.Join(t.TempDir(), "does-not-exist.txt"),
		OutputPath:  output,
		WorkDir:     work,
		MemoryLimit: 1,
		Observer:    obs,
	})
	_, err := e.Sort(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInputNotFound)

	assert.Equal(t, "keep\n", mustRead(t, stale))
	assert.Empty(t, obs.prepared)
	assert.Equal(t, []State{StateDeciding, StateError}, obs.states)
	assert.Equal(t, StateDeciding, obs.failedIn)
	assert.Equal(t, StateError, e.State())

	_, err = os.Stat(output)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestEngine_InputIsDirectory(t *testing.T) {
	_, output, work := tempPaths(t)
	e := newEngine(t, Config{InputPath: t.TempDir(), OutputPath: output, WorkDir: work, MemoryLimit: 1})
	_, err := e.Sort(context.Background())
	assert.ErrorIs(t, err, ErrInputNotFound)
}

func TestEngine_OutputErrorNamesPathOnce(t *testing.T) {
	input, _, work := tempPaths(t)
	writeLines(t, input, []string{"b", "a"})
	output := filepath.Join(t.TempDir(), "missing", "out.txt")

	e := newEngine(t, Config{InputPath: input, OutputPath: output, WorkDir: work, MemoryLimit: 1 << 20})
	_, err := e.Sort(context.Background())
	assert.ErrorIs(t, err, ErrMergeIO)
	assert.Equal(t, 1, strings.Count(err.Error(), output), "path appears once: %v", err)
}

func TestEngine_MergeFailureKeepsRuns(t *testing.T) {
	input, _, work := tempPaths(t)
	writeLines(t, input, []string{"d", "c", "b", "a"})
	output := filepath.Join(t.TempDir(), "no-such-dir", "out.txt")

	obs := &recordingObserver{}
	e := newEngine(t, Config{InputPath: input, OutputPath: output, WorkDir: work, MemoryLimit: 4, Observer: obs})
	_, err := e.Sort(context.Background())
	assert.ErrorIs(t, err, ErrMergeIO)
	assert.Equal(t, StateMerging, obs.failedIn)
	assert.ElementsMatch(t, []string{"part-1.txt", "part-2.txt"}, dirEntries(t, work))
}

func TestEngine_WorkspaceFailure(t *testing.T) {
	input, output, _ := tempPaths(t)
	writeLines(t, input, []string{"b", "a"})
	notADir := filepath.Join(t.TempDir(), "file")
	writeFile(t, notADir, "x")

	e := newEngine(t, Config{InputPath: input, OutputPath: output, WorkDir: notADir, MemoryLimit: 1})
	_, err := e.Sort(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, workspace.ErrWorkspace)
	assert.Contains(t, err.Error(), "not a directory")
}

func TestNew_RejectsPathsInsideWorkDir(t *testing.T) {
	dir := t.TempDir()
	work := filepath.Join(dir, "work")
	require.NoError(t, os.Mkdir(work, 0o755))

	tests := []struct {
		name   string
		input  string
		output string
		field  string
	}{
		{"output inside work directory", filepath.Join(dir, "in.txt"), filepath.Join(work, "sorted.txt"), "output path"},
		{"input inside work directory", filepath.Join(work, "in.txt"), filepath.Join(dir, "sorted.txt"), "input path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			writeLines(t, tt.input, []string{"d", "c", "b", "a"})

			_, err := New(Config{InputPath: tt.input, OutputPath: tt.output, WorkDir: work, MemoryLimit: 4})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.field)

			// Nothing ran, so the input is still in place.
			assert.Equal(t, "d\nc\nb\na\n", mustRead(t, tt.input))
		})
	}
}

func TestNew_RejectsRelativeOutputInsideWorkDir(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	_, err := New(Config{InputPath: "in.txt", OutputPath: "work/sorted.txt", WorkDir: "work", MemoryLimit: 4})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(Config{InputPath: "data/in.txt", OutputPath: "sorted.txt", WorkDir: "./", MemoryLimit: 4})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNew_AllowsNestedButSeparatePaths(t *testing.T) {
	dir := t.TempDir()
	work := filepath.Join(dir, "work")
	_, err := New(Config{
		InputPath:   filepath.Join(dir, "in.txt"),
		OutputPath:  filepath.Join(dir, "out", "sorted.txt"),
		WorkDir:     work,
		MemoryLimit: 4,
	})
	assert.NoError(t, err)
}

func TestEngine_CancelledKeepsWorkspace(t *testing.T) {
	input, output, work := tempPaths(t)
	writeLines(t, input, randomLines(8, 100, 4))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := newEngine(t, Config{InputPath: input, OutputPath: output, WorkDir: work, MemoryLimit: 10})
	_, err := e.Sort(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateError, e.State())

	info, statErr := os.Stat(work)
	require.NoError(t, statErr)
	assert.True(t, info.IsDir())
}

func TestEngine_NotReusable(t *testing.T) {
	input, output, work := tempPaths(t)
	writeLines(t, input, []string{"a"})

	e := newEngine(t, Config{InputPath: input, OutputPath: output, WorkDir: work, MemoryLimit: 100})
	_, err := e.Sort(context.Background())
	require.NoError(t, err)
	_, err = e.Sort(context.Background())
	assert.Error(t, err)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	for _, field := range []string{"input path", "output path", "work directory", "memory limit"} {
		assert.Contains(t, err.Error(), field)
	}

	_, err = New(Config{InputPath: "in", OutputPath: "out", WorkDir: "work", MemoryLimit: 1, Parallelism: -1})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(Config{InputPath: "in", OutputPath: "out", WorkDir: "work", MemoryLimit: 1})
	assert.NoError(t, err)
}

func mustRead(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func readLinesFromString(s string) []string {
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}
