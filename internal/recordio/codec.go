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

// Package recordio reads and writes line records, both for the sort input
// and output and for the run files kept in a workspace.
package recordio

import (
	"fmt"
	"io"
	"strings"
)

// RecordReader provides sequential access to records.
type RecordReader interface {
	// Next returns the next record. Returns io.EOF when no more records
	// are available.
	Next() (string, error)
}

// RecordWriter appends records to an underlying stream.
type RecordWriter interface {
	Write(record string) error

	// Flush pushes buffered records to the underlying writer. It must be
	// called before the underlying file is closed.
	Flush() error
}

// Codec decides how records are laid out inside a run file.
type Codec interface {
	// Name is the identifier used in configuration.
	Name() string

	// Extension is the run file suffix, without the dot.
	Extension() string

	NewWriter(w io.Writer) RecordWriter
	NewReader(r io.Reader) RecordReader
}

// TextCodec stores runs as plain newline separated text.
type TextCodec struct{}

var _ Codec = TextCodec{}

func (TextCodec) Name() string      { return "text" }
func (TextCodec) Extension() string { return "txt" }

func (TextCodec) NewWriter(w io.Writer) RecordWriter {
	return NewLineWriter(w)
}

func (TextCodec) NewReader(r io.Reader) RecordReader {
	return NewLineReader(r, 0)
}

// CodecByName returns the codec registered under name. An empty name
// selects the text codec.
func CodecByName(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "text", "txt":
		return TextCodec{}, nil
	case "cbor":
		return NewCborCodec()
	default:
		return nil, fmt.Errorf("unknown run format %q", name)
	}
}
