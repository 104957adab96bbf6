/*
Copyright (C) 2023  Carl-Philip Hänsch

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

// Package resp implements the streaming RESP parser and response builders of
// SPEC_FULL.md §4.6. The Reader owns a refillable buffer (8 KiB to start,
// growing to fit an oversized bulk string) and hands out arguments as
// obj.Obj values built directly on top of its buffer slices, so a short
// inline or bulk string never allocates beyond the Obj's own embedded array
// (obj.FromString copies into the inline payload in place; only strings
// above 14 bytes pay for a heap buffer, and that one is owned by the Obj,
// never aliasing the parser's buffer past the call that returned it).
//
// There is no RESP library anywhere in the example pack (the teacher talks
// MySQL wire protocol via github.com/launix-de/go-mysqlstack/driver, which
// owns its own framing internally), so this parser is hand-rolled the way
// the teacher hand-rolls scm/parser.go's packrat-backed scheme reader: a
// buffer, a cursor, and small look-ahead helpers, no bufio.Scanner (whose
// token-at-a-time model can't express "read exactly L more bytes").
package resp

import (
	"errors"
	"io"
	"strconv"

	"github.com/launix-de/nanoredis/obj"
)

// ErrProtocol is returned for any malformed RESP framing (spec §7 protocol
// error: the caller should attempt a -ERR reply, then close the connection).
var ErrProtocol = errors.New("resp: protocol error")

const initialBufSize = 8192

// Reader is a streaming RESP parser over a byte source.
type Reader struct {
	src  io.Reader
	buf  []byte
	r, w int
}

// NewReader wraps src with an 8 KiB refillable read buffer.
func NewReader(src io.Reader) *Reader {
	return &Reader{src: src, buf: make([]byte, initialBufSize)}
}

// fill reads more bytes from src, compacting already-consumed space first
// and growing the buffer if it is entirely full of unconsumed bytes (an
// in-flight bulk string larger than the current capacity).
func (r *Reader) fill() error {
	if r.r > 0 {
		n := copy(r.buf, r.buf[r.r:r.w])
		r.r, r.w = 0, n
	}
	if r.w == len(r.buf) {
		grown := make([]byte, len(r.buf)*2)
		copy(grown, r.buf[:r.w])
		r.buf = grown
	}
	n, err := r.src.Read(r.buf[r.w:])
	r.w += n
	if n > 0 {
		return nil
	}
	if err != nil {
		return err
	}
	return io.ErrNoProgress
}

// require blocks until at least n unconsumed bytes are buffered.
func (r *Reader) require(n int) error {
	for r.w-r.r < n {
		if err := r.fill(); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reader) peekByte() (byte, error) {
	if err := r.require(1); err != nil {
		return 0, err
	}
	return r.buf[r.r], nil
}

func indexCRLF(b []byte) int {
	for i := 0; i+1 < len(b); i++ {
		if b[i] == '\r' && b[i+1] == '\n' {
			return i
		}
	}
	return -1
}

// readLine returns the bytes up to (excluding) the next \r\n, consuming the
// line and its terminator. The returned slice aliases the internal buffer
// and is only valid until the next Reader call.
func (r *Reader) readLine() ([]byte, error) {
	for {
		if idx := indexCRLF(r.buf[r.r:r.w]); idx >= 0 {
			line := r.buf[r.r : r.r+idx]
			r.r += idx + 2
			return line, nil
		}
		if err := r.fill(); err != nil {
			return nil, err
		}
	}
}

// readInlineLine returns the bytes up to the next bare \r or \n, consuming
// through the terminator (and a following \n if the line ended on \r).
func (r *Reader) readInlineLine() ([]byte, error) {
	for {
		for i := r.r; i < r.w; i++ {
			if r.buf[i] == '\r' || r.buf[i] == '\n' {
				line := r.buf[r.r:i]
				end := i + 1
				if r.buf[i] == '\r' && end < r.w && r.buf[end] == '\n' {
					end++
				}
				r.r = end
				return line, nil
			}
		}
		if err := r.fill(); err != nil {
			return nil, err
		}
	}
}

func isSpace(b byte) bool { return b == ' ' || b == '\t' }

func splitInline(line []byte) [][]byte {
	var out [][]byte
	i := 0
	for i < len(line) {
		for i < len(line) && isSpace(line[i]) {
			i++
		}
		if i >= len(line) {
			break
		}
		start := i
		for i < len(line) && !isSpace(line[i]) {
			i++
		}
		out = append(out, line[start:i])
	}
	return out
}

// parseBulk consumes a "$L\r\n<L bytes>\r\n" value, the '$' already peeked
// but not yet consumed.
func (r *Reader) parseBulk() (obj.Obj, error) {
	r.r++ // consume '$'
	line, err := r.readLine()
	if err != nil {
		return obj.Obj{}, err
	}
	n, cerr := strconv.Atoi(string(line))
	if cerr != nil {
		return obj.Obj{}, ErrProtocol
	}
	if n == -1 {
		return obj.FromNull(), nil
	}
	if n < 0 {
		return obj.Obj{}, ErrProtocol
	}
	if err := r.require(n + 2); err != nil {
		return obj.Obj{}, err
	}
	payload := r.buf[r.r : r.r+n]
	o := obj.FromString(payload)
	r.r += n
	if r.buf[r.r] != '\r' || r.buf[r.r+1] != '\n' {
		return obj.Obj{}, ErrProtocol
	}
	r.r += 2
	return o, nil
}

// parseValue consumes one RESP value of any scalar type ('$', '+', '-',
// ':'). Used both for array elements and for parsing a single bare value
// (e.g. round-tripping a response built by MakeBulkString).
func (r *Reader) parseValue() (obj.Obj, error) {
	b, err := r.peekByte()
	if err != nil {
		return obj.Obj{}, err
	}
	switch b {
	case '$':
		return r.parseBulk()
	case '+', '-':
		r.r++
		line, err := r.readLine()
		if err != nil {
			return obj.Obj{}, err
		}
		return obj.FromString(line), nil
	case ':':
		r.r++
		line, err := r.readLine()
		if err != nil {
			return obj.Obj{}, err
		}
		n, cerr := strconv.ParseInt(string(line), 10, 64)
		if cerr != nil {
			return obj.Obj{}, ErrProtocol
		}
		return obj.FromInt(n), nil
	default:
		return obj.Obj{}, ErrProtocol
	}
}

// ParseCommand reads the next command from the stream. It returns an
// argument slice (empty for "*0" or a blank inline line), (nil, io.EOF) at a
// clean end of stream, or
// a non-nil error for malformed input (spec §4.6: 0/positive/negative
// return convention, adapted to Go's (slice, error) idiom).
func (r *Reader) ParseCommand() ([]obj.Obj, error) {
	b, err := r.peekByte()
	if err != nil {
		return nil, err
	}
	switch b {
	case '*':
		return r.parseArray()
	case '$', '+', '-', ':':
		v, err := r.parseValue()
		if err != nil {
			return nil, err
		}
		return []obj.Obj{v}, nil
	default:
		return r.parseInline()
	}
}

func (r *Reader) parseArray() ([]obj.Obj, error) {
	r.r++ // consume '*'
	line, err := r.readLine()
	if err != nil {
		return nil, err
	}
	n, cerr := strconv.Atoi(string(line))
	if cerr != nil {
		return nil, ErrProtocol
	}
	if n <= 0 {
		return []obj.Obj{}, nil
	}
	args := make([]obj.Obj, 0, n)
	for i := 0; i < n; i++ {
		v, err := r.parseValue()
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}
	return args, nil
}

func (r *Reader) parseInline() ([]obj.Obj, error) {
	line, err := r.readInlineLine()
	if err != nil {
		return nil, err
	}
	parts := splitInline(line)
	if len(parts) == 0 {
		return []obj.Obj{}, nil
	}
	args := make([]obj.Obj, len(parts))
	for i, p := range parts {
		args[i] = obj.FromString(p)
	}
	return args, nil
}
