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

// Package obj implements the compact tagged value ("Obj") that every key and
// every string/int value in nanoredis is stored as.
//
// The C layout this is modeled after packs a type tag, an encoding flag and
// a 14-byte payload union into 16 bytes. Go has no safe way to overlap a
// live heap pointer with raw bytes (doing so via unsafe would hide the
// pointer from the garbage collector), so this implementation keeps the
// encoding *rules* and *equality semantics* of that layout (inline vs.
// small-string vs. integer vs. collection-reference, exactly as in
// SPEC_FULL.md §4.1) while using a small safe struct with one field per
// variant instead of a literal byte union. See DESIGN.md for the tradeoff.
package obj

import (
	"strconv"
)

// Type is the externally visible value type.
type Type uint8

const (
	TypeNull Type = iota
	TypeString
	TypeInt
	TypeHash
	TypeSet
	TypeList
)

func (t Type) String() string {
	switch t {
	case TypeNull:
		return "null"
	case TypeString:
		return "string"
	case TypeInt:
		return "int"
	case TypeHash:
		return "hash"
	case TypeSet:
		return "set"
	case TypeList:
		return "list"
	default:
		return "unknown"
	}
}

// Encoding is the internal representation chosen for a value.
type Encoding uint8

const (
	EncNull Encoding = iota
	EncInline
	EncSmallString
	EncInt
	EncHashTable
	EncSetTable
	EncListTable
)

func (e Encoding) String() string {
	switch e {
	case EncNull:
		return "null"
	case EncInline:
		return "inline"
	case EncSmallString:
		return "smallstr"
	case EncInt:
		return "int"
	case EncHashTable:
		return "hashtable"
	case EncSetTable:
		return "settable"
	case EncListTable:
		return "listtable"
	default:
		return "unknown"
	}
}

// maxInline is the largest string length kept in-place (spec §4.1).
const maxInline = 14

// maxSmallString is the largest string length representable at all
// (out-of-line small-string encoding, spec §4.1).
const maxSmallString = 65535

// smallString is the out-of-line payload for the small-string encoding; the
// first 4 bytes of buf are mirrored into prefix for a fast unequal-compare.
type smallString struct {
	buf    []byte
	prefix [4]byte
}

// Hash is the collection payload backing Obj values of TypeHash: a mapping
// from field bytes to value bytes (used by the HASH command family).
type Hash struct {
	m map[string][]byte
}

func NewHash() *Hash { return &Hash{m: make(map[string][]byte)} }

func (h *Hash) Get(field []byte) ([]byte, bool) {
	v, ok := h.m[string(field)]
	return v, ok
}
func (h *Hash) Set(field, value []byte) bool {
	_, existed := h.m[string(field)]
	h.m[string(field)] = append([]byte(nil), value...)
	return !existed
}
func (h *Hash) Del(field []byte) bool {
	_, ok := h.m[string(field)]
	delete(h.m, string(field))
	return ok
}
func (h *Hash) Len() int { return len(h.m) }
func (h *Hash) ForEach(f func(field, value []byte) bool) {
	for k, v := range h.m {
		if !f([]byte(k), v) {
			return
		}
	}
}
func (h *Hash) Clone() *Hash {
	n := NewHash()
	for k, v := range h.m {
		n.m[k] = append([]byte(nil), v...)
	}
	return n
}

// Set is the collection payload backing Obj values of TypeSet.
type Set struct {
	m map[string]struct{}
}

func NewSet() *Set { return &Set{m: make(map[string]struct{})} }

func (s *Set) Add(member []byte) bool {
	k := string(member)
	_, existed := s.m[k]
	s.m[k] = struct{}{}
	return !existed
}
func (s *Set) Remove(member []byte) bool {
	k := string(member)
	_, ok := s.m[k]
	delete(s.m, k)
	return ok
}
func (s *Set) Contains(member []byte) bool {
	_, ok := s.m[string(member)]
	return ok
}
func (s *Set) Len() int { return len(s.m) }
func (s *Set) Members() [][]byte {
	out := make([][]byte, 0, len(s.m))
	for k := range s.m {
		out = append(out, []byte(k))
	}
	return out
}
func (s *Set) Clone() *Set {
	n := NewSet()
	for k := range s.m {
		n.m[k] = struct{}{}
	}
	return n
}

// List is the collection payload backing Obj values of TypeList: an ordered
// sequence of byte-string elements.
type List struct {
	items [][]byte
}

func NewList() *List { return &List{} }

func (l *List) Len() int { return len(l.items) }
func (l *List) PushLeft(v []byte) {
	l.items = append([][]byte{append([]byte(nil), v...)}, l.items...)
}
func (l *List) PushRight(v []byte) {
	l.items = append(l.items, append([]byte(nil), v...))
}
func (l *List) PopLeft() ([]byte, bool) {
	if len(l.items) == 0 {
		return nil, false
	}
	v := l.items[0]
	l.items = l.items[1:]
	return v, true
}
func (l *List) PopRight() ([]byte, bool) {
	if len(l.items) == 0 {
		return nil, false
	}
	v := l.items[len(l.items)-1]
	l.items = l.items[:len(l.items)-1]
	return v, true
}
func (l *List) Index(i int) ([]byte, bool) {
	if i < 0 {
		i += len(l.items)
	}
	if i < 0 || i >= len(l.items) {
		return nil, false
	}
	return l.items[i], true
}
func (l *List) Set(i int, v []byte) bool {
	if i < 0 {
		i += len(l.items)
	}
	if i < 0 || i >= len(l.items) {
		return false
	}
	l.items[i] = append([]byte(nil), v...)
	return true
}
func (l *List) Range(start, stop int) [][]byte {
	n := len(l.items)
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || n == 0 {
		return nil
	}
	out := make([][]byte, stop-start+1)
	copy(out, l.items[start:stop+1])
	return out
}
func (l *List) All() [][]byte { return l.items }
func (l *List) Trim(start, stop int) {
	l.items = l.Range(start, stop)
}
func (l *List) RemoveAt(i int) {
	l.items = append(l.items[:i], l.items[i+1:]...)
}
func (l *List) InsertAt(i int, v []byte) {
	l.items = append(l.items, nil)
	copy(l.items[i+1:], l.items[i:])
	l.items[i] = append([]byte(nil), v...)
}
func (l *List) Clone() *List {
	n := NewList()
	n.items = make([][]byte, len(l.items))
	for i, v := range l.items {
		n.items[i] = append([]byte(nil), v...)
	}
	return n
}

// Obj is the tagged value every key and value is stored as.
type Obj struct {
	tag    Type
	enc    Encoding
	ilen   uint8
	inline [maxInline]byte
	small  *smallString
	i      int64
	hash   *Hash
	set    *Set
	list   *List
}

// FromNull returns the null value.
func FromNull() Obj { return Obj{tag: TypeNull, enc: EncNull} }

// FromString builds a string-typed Obj, choosing inline or small-string
// encoding per the length thresholds in spec §4.1. Panics if len(s) >
// 65535, mirroring the C original's fixed small-string length field.
func FromString(s []byte) Obj {
	if len(s) > maxSmallString {
		panic("obj: string too long for small-string encoding")
	}
	var o Obj
	o.tag = TypeString
	if len(s) <= maxInline {
		o.enc = EncInline
		o.ilen = uint8(len(s))
		copy(o.inline[:], s)
		return o
	}
	o.enc = EncSmallString
	ss := &smallString{buf: append([]byte(nil), s...)}
	copy(ss.prefix[:], s[:4])
	o.small = ss
	return o
}

// FromInt builds an integer-typed Obj.
func FromInt(i int64) Obj {
	return Obj{tag: TypeInt, enc: EncInt, i: i}
}

func FromHash(h *Hash) Obj { return Obj{tag: TypeHash, enc: EncHashTable, hash: h} }
func FromSet(s *Set) Obj   { return Obj{tag: TypeSet, enc: EncSetTable, set: s} }
func FromList(l *List) Obj { return Obj{tag: TypeList, enc: EncListTable, list: l} }

// GetType returns the value's external type.
func (o Obj) GetType() Type { return o.tag }

// GetEncoding returns the internal representation in use.
func (o Obj) GetEncoding() Encoding { return o.enc }

// IsNull reports whether o is the null value.
func (o Obj) IsNull() bool { return o.tag == TypeNull }

// AsString returns the canonical byte representation of a string or integer
// value. Panics for collection types (callers must type-switch on GetType
// first, matching the original's "WRONGTYPE" dispatch at the command layer).
func (o Obj) AsString() []byte {
	switch o.tag {
	case TypeNull:
		return nil
	case TypeInt:
		return strconv.AppendInt(nil, o.i, 10)
	case TypeString:
		if o.enc == EncInline {
			return append([]byte(nil), o.inline[:o.ilen]...)
		}
		return append([]byte(nil), o.small.buf...)
	default:
		panic("obj: AsString on collection type " + o.tag.String())
	}
}

// AsInt returns the integer value. ok is false if the encoding is not
// already integer-tagged (use TryAsInt to also parse string encodings).
func (o Obj) AsInt() (int64, bool) {
	if o.tag == TypeInt {
		return o.i, true
	}
	return 0, false
}

// TryAsInt parses the value's decimal textual form iff it round-trips
// losslessly back to the same bytes (spec §4.1's TryAsInt contract).
func (o Obj) TryAsInt() (int64, bool) {
	if o.tag == TypeInt {
		return o.i, true
	}
	if o.tag != TypeString {
		return 0, false
	}
	s := o.AsString()
	if len(s) == 0 {
		return 0, false
	}
	n, err := strconv.ParseInt(string(s), 10, 64)
	if err != nil {
		return 0, false
	}
	if string(strconv.AppendInt(nil, n, 10)) != string(s) {
		return 0, false // e.g. "007", "+1", "-0" do not round-trip
	}
	return n, true
}

// Size returns the value's externally-visible byte length: for strings, the
// string length; for integers, the length of the canonical decimal form;
// collections return their element count.
func (o Obj) Size() int {
	switch o.tag {
	case TypeNull:
		return 0
	case TypeInt:
		return len(strconv.AppendInt(nil, o.i, 10))
	case TypeString:
		if o.enc == EncInline {
			return int(o.ilen)
		}
		return len(o.small.buf)
	case TypeHash:
		return o.hash.Len()
	case TypeSet:
		return o.set.Len()
	case TypeList:
		return o.list.Len()
	default:
		return 0
	}
}

func (o Obj) Hash() *Hash { return o.hash }
func (o Obj) Set() *Set   { return o.set }
func (o Obj) List() *List { return o.list }

// Equal implements the cross-encoding equality rules of spec §4.1: null is
// only equal to null, two strings/ints compare on canonical textual form and
// small-strings SHOULD fast-reject on prefix+length before a full compare.
func (o Obj) Equal(other Obj) bool {
	if o.tag == TypeNull || other.tag == TypeNull {
		return o.tag == other.tag
	}
	if o.tag == TypeInt && other.tag == TypeInt {
		return o.i == other.i
	}
	if o.tag == TypeString && other.tag == TypeString {
		if o.enc == EncSmallString && other.enc == EncSmallString {
			if o.small.prefix != other.small.prefix || len(o.small.buf) != len(other.small.buf) {
				return false
			}
		}
		return string(o.AsString()) == string(other.AsString())
	}
	// int vs. string: equal iff the string is the integer's canonical decimal form
	if (o.tag == TypeInt && other.tag == TypeString) || (o.tag == TypeString && other.tag == TypeInt) {
		return string(o.AsString()) == string(other.AsString())
	}
	return false
}

// Clone deep-copies any owned payload; a null source clones to null.
func (o Obj) Clone() Obj {
	switch o.tag {
	case TypeString:
		if o.enc == EncSmallString {
			n := o
			ss := *o.small
			ss.buf = append([]byte(nil), o.small.buf...)
			n.small = &ss
			return n
		}
		return o
	case TypeHash:
		return FromHash(o.hash.Clone())
	case TypeSet:
		return FromSet(o.set.Clone())
	case TypeList:
		return FromList(o.list.Clone())
	default:
		return o
	}
}

// Builder supports constructing a string value in-place (e.g. a RESP bulk
// string read directly into the final buffer) and optionally converting a
// purely-decimal result to the integer encoding afterward.
type Builder struct {
	buf []byte
}

// NewBuilder allocates a writable buffer of the given length.
func NewBuilder(n int) *Builder {
	return &Builder{buf: make([]byte, n)}
}

// Bytes exposes the builder's buffer for filling.
func (b *Builder) Bytes() []byte { return b.buf }

// Finish produces the final string-encoded Obj. If internDecimal is true
// and the buffer is a canonical decimal integer, the integer encoding is
// used instead (spec §4.1: "only performed when explicitly requested").
func (b *Builder) Finish(internDecimal bool) Obj {
	if internDecimal {
		if n, err := strconv.ParseInt(string(b.buf), 10, 64); err == nil {
			if string(strconv.AppendInt(nil, n, 10)) == string(b.buf) {
				return FromInt(n)
			}
		}
	}
	return FromString(b.buf)
}
