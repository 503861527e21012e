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
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// CborCodec stores each record as a CBOR byte string. Records keep any
// byte content, including bytes that are not valid UTF-8.
type CborCodec struct {
	encMode cbor.EncMode
	decMode cbor.DecMode
}

var _ Codec = (*CborCodec)(nil)

// NewCborCodec creates a CBOR codec.
func NewCborCodec() (*CborCodec, error) {
	encMode, err := cbor.EncOptions{
		NilContainers: cbor.NilContainerAsEmpty,
	}.EncMode()
	if err != nil {
		return nil, fmt.Errorf("failed to create CBOR encoder: %w", err)
	}

	decMode, err := cbor.DecOptions{
		UTF8: cbor.UTF8DecodeInvalid,
	}.DecMode()
	if err != nil {
		return nil, fmt.Errorf("failed to create CBOR decoder: %w", err)
	}

	return &CborCodec{
		encMode: encMode,
		decMode: decMode,
	}, nil
}

func (c *CborCodec) Name() string      { return "cbor" }
func (c *CborCodec) Extension() string { return "cbor" }

func (c *CborCodec) NewWriter(w io.Writer) RecordWriter {
	bw := bufio.NewWriterSize(w, defaultBufferSize)
	return &cborRecordWriter{
		w:       bw,
		encoder: c.encMode.NewEncoder(bw),
	}
}

func (c *CborCodec) NewReader(r io.Reader) RecordReader {
	return &cborRecordReader{
		decoder: c.decMode.NewDecoder(bufio.NewReaderSize(r, defaultBufferSize)),
	}
}

type cborRecordWriter struct {
	w       *bufio.Writer
	encoder *cbor.Encoder
}

func (cw *cborRecordWriter) Write(record string) error {
	return cw.encoder.Encode([]byte(record))
}

func (cw *cborRecordWriter) Flush() error {
	return cw.w.Flush()
}

type cborRecordReader struct {
	decoder *cbor.Decoder
}

// Next decodes the next record. io.EOF is passed through from the decoder.
func (cr *cborRecordReader) Next() (string, error) {
	var raw []byte
	if err := cr.decoder.Decode(&raw); err != nil {
		return "", err
	}
	return string(raw), nil
}
