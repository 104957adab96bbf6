/*
Copyright (C) 2024-2026  Carl-Philip Hänsch

    This program is free software: you can redistribute it and/or modify
    it under the terms of the GNU General Public License as published by
    the Free Software Foundation, either version 3 of the License, or
    (at your option) any later version.

    This program is distributed in the hope that it will be useful,
    but WITHOUT ANY WARRANTY; without even the implied warranty of
    MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
    GNU General Public License for more details.

    You should have received a copy of the GNU General Public License
    along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/
package snapshot

import (
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"
)

// Compression names the whole-file framing wrapped around a dump's body
// (spec §4.7 format is the uncompressed default; --snapshot_compression
// wraps it the same way the teacher's log segments are plain bytes on
// disk regardless of what sits above them).
type Compression string

const (
	CompressionNone Compression = ""
	CompressionLZ4  Compression = "lz4"
	CompressionXZ   Compression = "xz"
)

// wrapWriter returns w wrapped in the requested codec. The returned
// io.WriteCloser's Close must be called to flush the codec's trailer before
// the underlying Backend.WriteTemp target is itself closed/committed.
func wrapWriter(w io.Writer, c Compression) (io.WriteCloser, error) {
	switch c {
	case CompressionNone:
		return nopWriteCloser{w}, nil
	case CompressionLZ4:
		return lz4.NewWriter(w), nil
	case CompressionXZ:
		xw, err := xz.NewWriter(w)
		if err != nil {
			return nil, fmt.Errorf("snapshot: xz writer: %w", err)
		}
		return xw, nil
	default:
		return nil, fmt.Errorf("snapshot: unknown compression %q", c)
	}
}

// wrapReader returns r wrapped in the requested codec's decompressor.
func wrapReader(r io.Reader, c Compression) (io.Reader, error) {
	switch c {
	case CompressionNone:
		return r, nil
	case CompressionLZ4:
		return lz4.NewReader(r), nil
	case CompressionXZ:
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("snapshot: xz reader: %w", err)
		}
		return xr, nil
	default:
		return nil, fmt.Errorf("snapshot: unknown compression %q", c)
	}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
