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
package resp

import "strconv"

// OK is the canned "+OK\r\n" reply.
var OK = []byte("+OK\r\n")

// PONG is the canned "+PONG\r\n" reply.
var PONG = []byte("+PONG\r\n")

// NullBulk is the "$-1\r\n" null-bulk-string reply.
var NullBulk = []byte("$-1\r\n")

// EmptyArray is the "*0\r\n" reply.
var EmptyArray = []byte("*0\r\n")

// MakeSimpleString builds a "+<s>\r\n" reply.
func MakeSimpleString(s string) []byte {
	return append([]byte("+"+s), '\r', '\n')
}

// MakeError builds a "-<msg>\r\n" reply. Callers are responsible for
// prefixing a RESP error code (ERR, WRONGTYPE, ...).
func MakeError(msg string) []byte {
	return append([]byte("-"+msg), '\r', '\n')
}

// MakeInteger builds a ":<n>\r\n" reply.
func MakeInteger(n int64) []byte {
	return append(strconv.AppendInt([]byte(":"), n, 10), '\r', '\n')
}

// MakeBulkString builds a "$<len>\r\n<bytes>\r\n" reply.
func MakeBulkString(s []byte) []byte {
	out := append([]byte("$"), strconv.Itoa(len(s))...)
	out = append(out, '\r', '\n')
	out = append(out, s...)
	out = append(out, '\r', '\n')
	return out
}

// MakeArrayHeader builds a "*<n>\r\n" array-length header; callers append n
// encoded elements after it.
func MakeArrayHeader(n int) []byte {
	return append(strconv.AppendInt([]byte("*"), int64(n), 10), '\r', '\n')
}
