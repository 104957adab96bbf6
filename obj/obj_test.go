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
package obj

import (
	"strconv"
	"testing"
)

func TestFromIntRoundTrip(t *testing.T) {
	for _, i := range []int64{0, 1, -1, 42, 1<<63 - 1, -(1 << 62)} {
		o := FromInt(i)
		got, ok := o.AsInt()
		if !ok || got != i {
			t.Fatalf("FromInt(%d).AsInt() = %d, %v", i, got, ok)
		}
		if string(o.AsString()) != strconv.FormatInt(i, 10) {
			t.Fatalf("FromInt(%d) textual form mismatch: %s", i, o.AsString())
		}
	}
}

func TestFromStringRoundTrip(t *testing.T) {
	cases := [][]byte{
		nil,
		[]byte("a"),
		[]byte("exactly14char!"), // 14 bytes: inline boundary
		[]byte("fifteen chars!!"), // 15 bytes: small-string boundary
		make([]byte, 65535),
	}
	for _, s := range cases {
		o := FromString(s)
		if string(o.AsString()) != string(s) {
			t.Fatalf("FromString(%q) round-trip mismatch", s)
		}
	}
}

func TestEncodingThresholds(t *testing.T) {
	if enc := FromString(make([]byte, 14)).GetEncoding(); enc != EncInline {
		t.Fatalf("length 14 expected inline, got %v", enc)
	}
	if enc := FromString(make([]byte, 15)).GetEncoding(); enc != EncSmallString {
		t.Fatalf("length 15 expected small-string, got %v", enc)
	}
}

func TestSmallStringPrefixMatchesBytes(t *testing.T) {
	s := []byte("this is definitely out of line")
	o := FromString(s)
	if o.small.prefix != [4]byte{s[0], s[1], s[2], s[3]} {
		t.Fatalf("small-string prefix does not match underlying bytes")
	}
}

func TestEquality(t *testing.T) {
	if !FromInt(42).Equal(FromString([]byte("42"))) {
		t.Fatalf("FromInt(42) should equal FromString(\"42\") at the textual level")
	}
	if FromInt(42).Equal(FromString([]byte("0042"))) {
		t.Fatalf("FromInt(42) should not equal non-canonical decimal form")
	}
	if FromNull().Equal(FromInt(0)) {
		t.Fatalf("null must not equal any non-null value")
	}
	if !FromNull().Equal(FromNull()) {
		t.Fatalf("null must equal null")
	}
}

func TestTryAsInt(t *testing.T) {
	if n, ok := FromString([]byte("123")).TryAsInt(); !ok || n != 123 {
		t.Fatalf("TryAsInt(\"123\") = %d, %v", n, ok)
	}
	if _, ok := FromString([]byte("007")).TryAsInt(); ok {
		t.Fatalf("TryAsInt(\"007\") should fail: does not round-trip")
	}
	if _, ok := FromString([]byte("abc")).TryAsInt(); ok {
		t.Fatalf("TryAsInt(\"abc\") should fail")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	h := NewHash()
	h.Set([]byte("f"), []byte("v"))
	o := FromHash(h)
	clone := o.Clone()
	clone.Hash().Set([]byte("f"), []byte("v2"))
	got, _ := o.Hash().Get([]byte("f"))
	if string(got) != "v" {
		t.Fatalf("mutating clone affected original: %s", got)
	}
}

func TestListOperations(t *testing.T) {
	l := NewList()
	l.PushRight([]byte("a"))
	l.PushRight([]byte("b"))
	l.PushLeft([]byte("z"))
	if l.Len() != 3 {
		t.Fatalf("expected 3 items, got %d", l.Len())
	}
	v, ok := l.Index(0)
	if !ok || string(v) != "z" {
		t.Fatalf("Index(0) = %q, %v", v, ok)
	}
	v, ok = l.Index(-1)
	if !ok || string(v) != "b" {
		t.Fatalf("Index(-1) = %q, %v", v, ok)
	}
}

func TestSetOperations(t *testing.T) {
	s := NewSet()
	if !s.Add([]byte("x")) {
		t.Fatalf("first add should return true")
	}
	if s.Add([]byte("x")) {
		t.Fatalf("duplicate add should return false")
	}
	if !s.Contains([]byte("x")) {
		t.Fatalf("set should contain x")
	}
	if s.Len() != 1 {
		t.Fatalf("expected size 1, got %d", s.Len())
	}
}
