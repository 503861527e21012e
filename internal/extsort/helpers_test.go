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
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/linesort/internal/workspace"
)

// recordingObserver keeps every event for later assertions.
type recordingObserver struct {
	mu        sync.Mutex
	states    []State
	prepared  []workspace.Report
	runs      []Run
	merged    int
	failedIn  State
	failedErr error
}

func (r *recordingObserver) StateChanged(_, to State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, to)
}

func (r *recordingObserver) WorkspacePrepared(report workspace.Report) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prepared = append(r.prepared, report)
}

func (r *recordingObserver) LowDiskSpace(string, uint64, int64) {}

func (r *recordingObserver) RunWritten(run Run) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, run)
}

func (r *recordingObserver) MergeCompleted(runs int, _ int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.merged = runs
}

func (r *recordingObserver) SortFailed(in State, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failedIn = in
	r.failedErr = err
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func writeLines(t *testing.T, path string, lines []string) {
	t.Helper()
	var sb strings.Builder
	for _, l := range lines {
		sb.WriteString(l)
		sb.WriteByte('\n')
	}
	writeFile(t, path, sb.String())
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	if len(data) == 0 {
		return nil
	}
	s := string(data)
	require.True(t, strings.HasSuffix(s, "\n"), "every line must be terminated")
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}

func dirEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

// randomLines returns n lowercase lines of exactly width characters.
func randomLines(seed uint64, n, width int) []string {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	lines := make([]string, n)
	buf := make([]byte, width)
	for i := range lines {
		for j := range buf {
			buf[j] = byte('a' + rng.IntN(26))
		}
		lines[i] = string(buf)
	}
	return lines
}

func sortedCopy(lines []string) []string {
	out := slices.Clone(lines)
	slices.Sort(out)
	return out
}

func tempPaths(t *testing.T) (input, output, work string) {
	t.Helper()
	dir := t.TempDir()
	return filepath.Join(dir, "input.txt"), filepath.Join(dir, "output.txt"), filepath.Join(dir, "work")
}
