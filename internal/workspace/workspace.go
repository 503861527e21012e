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

// Package workspace manages the scratch directory that holds sorted runs
// while an external sort is in progress.
//
// Emptying is shallow: only entries directly inside the directory are
// removed, one os.Remove each. A sub-directory that is not empty makes
// the operation fail rather than being removed recursively.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrWorkspace wraps every failure to create or empty a workspace.
var ErrWorkspace = errors.New("workspace error")

// Report describes what Prepare did to the directory.
type Report struct {
	Path    string
	Created bool
	Removed []string
}

// Prepare makes sure path exists and is empty. A missing directory is
// created along with its parents. An existing one has its direct entries
// removed while the directory itself is kept.
func Prepare(path string) (Report, error) {
	report := Report{Path: path}
	if path == "" {
		return report, fmt.Errorf("%w: empty path", ErrWorkspace)
	}

	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return report, fmt.Errorf("%w: create: %w", ErrWorkspace, err)
		}
		report.Created = true
		return report, nil
	}
	if err != nil {
		return report, fmt.Errorf("%w: stat: %w", ErrWorkspace, err)
	}
	if !info.IsDir() {
		return report, fmt.Errorf("%w: %s is not a directory", ErrWorkspace, path)
	}

	removed, err := empty(path)
	report.Removed = removed
	return report, err
}

// Purge removes every entry directly inside path and returns the removed
// paths. The directory itself is left in place.
func Purge(path string) ([]string, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty path", ErrWorkspace)
	}
	return empty(path)
}

func empty(path string) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("%w: list: %w", ErrWorkspace, err)
	}

	removed := make([]string, 0, len(entries))
	for _, entry := range entries {
		p := filepath.Join(path, entry.Name())
		if err := os.Remove(p); err != nil {
			return removed, fmt.Errorf("%w: remove: %w", ErrWorkspace, err)
		}
		removed = append(removed, p)
	}
	return removed, nil
}
