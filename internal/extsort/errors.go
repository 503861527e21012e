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

import "errors"

// Sentinel errors. Failures are wrapped so that both the sentinel and the
// underlying cause can be matched with errors.Is.
var (
	// ErrInvalidConfig is returned by New when a required field is missing.
	ErrInvalidConfig = errors.New("invalid sort configuration")

	// ErrInputNotFound is returned when the input path does not exist or
	// is not a regular file.
	ErrInputNotFound = errors.New("input not found")

	// ErrSplitIO covers read failures on the input and write failures on
	// run files.
	ErrSplitIO = errors.New("split i/o error")

	// ErrMergeIO covers read failures on run files and any failure to
	// create or write the output.
	ErrMergeIO = errors.New("merge i/o error")
)
