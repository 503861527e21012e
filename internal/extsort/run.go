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
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/cardinalhq/linesort/internal/recordio"
)

const runFilePrefix = "part-"

// Run is a sorted sequence of records stored in a single workspace file.
type Run struct {
	// Seq is the 1-based sequence number assigned by the splitter.
	Seq int

	// Path is the filesystem path of the run file.
	Path string

	// Records is the number of records in the run. Runs found on disk
	// by ListRuns report -1 since the count is not known without reading.
	Records int64

	// Bytes is the record payload size, one terminator byte per record
	// included. For runs found by ListRuns it is the file size.
	Bytes int64
}

// RunFileName returns the name of run seq for the given codec, e.g. part-3.txt.
func RunFileName(seq int, codec recordio.Codec) string {
	return runFilePrefix + strconv.Itoa(seq) + "." + codec.Extension()
}

// ListRuns finds the run files in dir written with codec and returns them
// ordered by sequence number. Files that do not match the run name template
// are ignored.
func ListRuns(dir string, codec recordio.Codec) ([]Run, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: list runs: %w", ErrMergeIO, err)
	}

	suffix := "." + codec.Extension()
	var runs []Run
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		name := entry.Name()
		rest, ok := strings.CutPrefix(name, runFilePrefix)
		if !ok {
			continue
		}
		digits, ok := strings.CutSuffix(rest, suffix)
		if !ok {
			continue
		}
		seq, err := strconv.Atoi(digits)
		if err != nil || seq < 1 {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("%w: stat run: %w", ErrMergeIO, err)
		}
		runs = append(runs, Run{
			Seq:     seq,
			Path:    filepath.Join(dir, name),
			Records: -1,
			Bytes:   info.Size(),
		})
	}

	slices.SortFunc(runs, func(a, b Run) int { return a.Seq - b.Seq })
	return runs, nil
}
