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

package recordio

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

const defaultBufferSize = 64 * 1024

// ErrRecordTooLarge is returned when a line is longer than the configured limit.
var ErrRecordTooLarge = errors.New("record too large")

// LineReader reads newline terminated records. The terminator is not
// part of the returned record. A final line without a terminator is still
// returned as a record.
type LineReader struct {
	r        *bufio.Reader
	maxBytes int
	buf      []byte
	consumed int64
}

var _ RecordReader = (*LineReader)(nil)

// NewLineReader wraps r. A maxBytes of zero or less means records may be
// of any length.
func NewLineReader(r io.Reader, maxBytes int) *LineReader {
	return &LineReader{
		r:        bufio.NewReaderSize(r, defaultBufferSize),
		maxBytes: maxBytes,
	}
}

// Next returns the next record, or io.EOF once the input is exhausted.
func (lr *LineReader) Next() (string, error) {
	lr.buf = lr.buf[:0]
	for {
		chunk, err := lr.r.ReadSlice('\n')
		lr.buf = append(lr.buf, chunk...)

		switch {
		case err == nil:
			lr.consumed += int64(len(lr.buf))
			record := lr.buf[:len(lr.buf)-1]
			if err := lr.checkSize(len(record)); err != nil {
				return "", err
			}
			return string(record), nil

		case errors.Is(err, bufio.ErrBufferFull):
			if err := lr.checkSize(len(lr.buf)); err != nil {
				return "", err
			}

		case errors.Is(err, io.EOF):
			if len(lr.buf) == 0 {
				return "", io.EOF
			}
			lr.consumed += int64(len(lr.buf))
			if err := lr.checkSize(len(lr.buf)); err != nil {
				return "", err
			}
			return string(lr.buf), nil

		default:
			return "", err
		}
	}
}

// Consumed returns how many input bytes have been returned as records,
// terminators included.
func (lr *LineReader) Consumed() int64 {
	return lr.consumed
}

func (lr *LineReader) checkSize(n int) error {
	if lr.maxBytes > 0 && n > lr.maxBytes {
		return fmt.Errorf("%w: more than %d bytes", ErrRecordTooLarge, lr.maxBytes)
	}
	return nil
}

// LineWriter writes records each followed by a single '\n'.
type LineWriter struct {
	w *bufio.Writer
}

var _ RecordWriter = (*LineWriter)(nil)

func NewLineWriter(w io.Writer) *LineWriter {
	return &LineWriter{w: bufio.NewWriterSize(w, defaultBufferSize)}
}

func (lw *LineWriter) Write(record string) error {
	if _, err := lw.w.WriteString(record); err != nil {
		return err
	}
	return lw.w.WriteByte('\n')
}

func (lw *LineWriter) Flush() error {
	return lw.w.Flush()
}
