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

// Package membudget converts human readable size tokens such as "100M"
// into byte counts.
package membudget

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	KiB int64 = 1024
	MiB int64 = 1024 * KiB
	GiB int64 = 1024 * MiB
)

// ErrInvalidSizeFormat is returned when a size token cannot be parsed.
var ErrInvalidSizeFormat = errors.New("invalid size format")

// Parse returns the number of bytes described by s. The token is a run of
// decimal digits followed by an optional k, m or g suffix (either case).
// Without a suffix the number is taken as bytes.
func Parse(s string) (int64, error) {
	token := strings.TrimSpace(s)
	if token == "" {
		return 0, fmt.Errorf("%w: empty size", ErrInvalidSizeFormat)
	}

	multiplier := int64(1)
	digits := token
	switch token[len(token)-1] {
	case 'k', 'K':
		multiplier = KiB
		digits = token[:len(token)-1]
	case 'm', 'M':
		multiplier = MiB
		digits = token[:len(token)-1]
	case 'g', 'G':
		multiplier = GiB
		digits = token[:len(token)-1]
	}

	if digits == "" || strings.ContainsAny(digits[:1], "+-") {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSizeFormat, s)
	}

	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %w", ErrInvalidSizeFormat, s, err)
	}
	if n > math.MaxInt64/multiplier {
		return 0, fmt.Errorf("%w: %q overflows int64", ErrInvalidSizeFormat, s)
	}
	return n * multiplier, nil
}

// MustParse is like Parse but panics on error. Intended for constants.
func MustParse(s string) int64 {
	n, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return n
}

// Format renders n as the shortest token that Parse maps back to n.
func Format(n int64) string {
	switch {
	case n != 0 && n%GiB == 0:
		return strconv.FormatInt(n/GiB, 10) + "G"
	case n != 0 && n%MiB == 0:
		return strconv.FormatInt(n/MiB, 10) + "M"
	case n != 0 && n%KiB == 0:
		return strconv.FormatInt(n/KiB, 10) + "K"
	default:
		return strconv.FormatInt(n, 10)
	}
}
