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

// Package dash implements the extendible-hash table ("Dash") used both as
// the main key dictionary and the expiry index of a database shard
// (SPEC_FULL.md §4.2). It keeps a directory of 2^globalDepth entries, where
// many entries may alias the same segment, and grows by splitting a
// segment once its load crosses 80% of the configured maximum.
//
// The segment's own inner map stays a plain Go map: Dash needs O(1)
// amortized single-writer inserts on its hot path, and every Dash instance
// in this codebase is only ever touched by the single goroutine that owns
// its shard (SPEC_FULL.md §5), so there is nothing for a concurrent map to
// buy here — see DESIGN.md for why this is the one stdlib-only exception.
package dash

import (
	"bytes"
	"errors"
	"hash/fnv"

	"github.com/google/btree"

	"github.com/launix-de/nanoredis/obj"
)

var (
	errLocalDepthExceedsGlobal = errors.New("dash: local depth exceeds global depth")
	errSegmentIDMismatch       = errors.New("dash: segment id does not match chunk start")
	errAliasingBroken          = errors.New("dash: directory aliasing invariant broken")
)

// HashBytes is the 64-bit key hash shared by Dash's directory indexing and
// the connection router's shard-ownership computation (SPEC_FULL.md §4.5),
// so storage placement and request routing always agree.
func HashBytes(b []byte) uint64 {
	h := fnv.New64a()
	h.Write(b)
	return h.Sum64()
}

// HashKey hashes an Obj by its canonical textual bytes, so an
// integer-encoded key and the equivalent string-encoded key hash
// identically.
func HashKey(k obj.Obj) uint64 {
	return HashBytes(k.AsString())
}

const defaultMaxSegmentSize = 4096
const splitLoadFactor = 0.8

type entry[V any] struct {
	key   obj.Obj
	value V
	hash  uint64
}

type segment[V any] struct {
	localDepth uint8
	segmentID  uint64
	version    uint64
	data       map[string]entry[V]
}

func newSegment[V any](localDepth uint8, segmentID uint64, version uint64) *segment[V] {
	return &segment[V]{localDepth: localDepth, segmentID: segmentID, version: version, data: make(map[string]entry[V])}
}

// Table is an extendible-hash table from obj.Obj keys to values of type V.
type Table[V any] struct {
	globalDepth    uint8
	directory      []*segment[V]
	maxSegmentSize int
	size           int
	preModify      func(dirIdx uint64)
}

// New creates a table with a power-of-two initial directory size.
func New[V any](initialDirSize int) *Table[V] {
	if initialDirSize < 1 {
		initialDirSize = 1
	}
	depth := uint8(0)
	for (1 << depth) < initialDirSize {
		depth++
	}
	t := &Table[V]{globalDepth: depth, maxSegmentSize: defaultMaxSegmentSize}
	dirSize := 1 << depth
	t.directory = make([]*segment[V], dirSize)
	// A single segment at construction must have localDepth 0: it spans the
	// whole directory (chunk size 2^depth), so its segmentID (the chunk's
	// leading index) is 0, matching CheckInvariants for any initial depth.
	seg := newSegment[V](0, 0, 0)
	for i := range t.directory {
		t.directory[i] = seg
	}
	return t
}

func (t *Table[V]) segIndex(hash uint64) uint64 {
	if t.globalDepth == 0 {
		return 0
	}
	return hash >> (64 - t.globalDepth)
}

// SetMaxSegmentSize overrides the split threshold's segment-size basis
// (test and tuning hook; production defaults to defaultMaxSegmentSize).
func (t *Table[V]) SetMaxSegmentSize(n int) { t.maxSegmentSize = n }

// DirSize returns 2^globalDepth.
func (t *Table[V]) DirSize() uint64 { return uint64(len(t.directory)) }

// GlobalDepth returns the current global depth.
func (t *Table[V]) GlobalDepth() uint8 { return t.globalDepth }

// LocalDepth returns the local depth of the segment referenced at dirIdx.
func (t *Table[V]) LocalDepth(dirIdx uint64) uint8 { return t.directory[dirIdx].localDepth }

// SegmentID returns the segment id (leading directory index) for dirIdx.
func (t *Table[V]) SegmentID(dirIdx uint64) uint64 { return t.directory[dirIdx].segmentID }

// Size returns the total number of live entries.
func (t *Table[V]) Size() int { return t.size }

// GetSegVersion returns the version of the segment referenced at dirIdx.
func (t *Table[V]) GetSegVersion(dirIdx uint64) uint64 { return t.directory[dirIdx].version }

// SetSegVersion sets the version of the segment referenced at dirIdx.
func (t *Table[V]) SetSegVersion(dirIdx uint64, v uint64) { t.directory[dirIdx].version = v }

// SetPreModifyCallback installs a hook invoked with the target directory
// index strictly before any mutation of that segment's inner map.
func (t *Table[V]) SetPreModifyCallback(f func(dirIdx uint64)) { t.preModify = f }

// ClearPreModifyCallback removes the pre-modify hook.
func (t *Table[V]) ClearPreModifyCallback() { t.preModify = nil }

func (t *Table[V]) fireHook(dirIdx uint64) {
	if t.preModify != nil {
		t.preModify(dirIdx)
	}
}

// Insert inserts or assigns k -> v, splitting segments as needed.
func (t *Table[V]) Insert(k obj.Obj, v V) {
	keyBytes := k.AsString()
	h := HashBytes(keyBytes)
	keyStr := string(keyBytes)
	for {
		dirIdx := t.segIndex(h)
		t.fireHook(dirIdx)
		seg := t.directory[dirIdx]
		if _, existed := seg.data[keyStr]; !existed {
			t.size++
		}
		seg.data[keyStr] = entry[V]{key: k, value: v, hash: h}
		if float64(len(seg.data)) >= splitLoadFactor*float64(t.maxSegmentSize) {
			t.split(dirIdx)
			continue
		}
		return
	}
}

// Find looks up k.
func (t *Table[V]) Find(k obj.Obj) (V, bool) {
	var zero V
	keyStr := string(k.AsString())
	h := HashBytes([]byte(keyStr))
	seg := t.directory[t.segIndex(h)]
	e, ok := seg.data[keyStr]
	if !ok {
		return zero, false
	}
	return e.value, true
}

// Erase removes k, returning whether it was present.
func (t *Table[V]) Erase(k obj.Obj) bool {
	keyStr := string(k.AsString())
	h := HashBytes([]byte(keyStr))
	dirIdx := t.segIndex(h)
	t.fireHook(dirIdx)
	seg := t.directory[dirIdx]
	if _, ok := seg.data[keyStr]; !ok {
		return false
	}
	delete(seg.data, keyStr)
	t.size--
	return true
}

// Clear empties all segments but keeps the directory.
func (t *Table[V]) Clear() {
	visited := make(map[*segment[V]]bool)
	for _, seg := range t.directory {
		if visited[seg] {
			continue
		}
		visited[seg] = true
		for k := range seg.data {
			delete(seg.data, k)
		}
	}
	t.size = 0
}

// ForEach visits every live (k, v) pair exactly once, in directory order.
func (t *Table[V]) ForEach(f func(k obj.Obj, v V) bool) {
	dirSize := t.DirSize()
	for i := uint64(0); i < dirSize; i = t.NextUniqueSegment(i) {
		cont := true
		t.ForEachInSegment(i, func(k obj.Obj, v V) bool {
			if !f(k, v) {
				cont = false
				return false
			}
			return true
		})
		if !cont {
			return
		}
	}
}

// keyItem orders obj.Obj keys by their canonical textual bytes for
// SortedKeys's google/btree index.
type keyItem struct{ k obj.Obj }

func (a keyItem) Less(than btree.Item) bool {
	return bytes.Compare(a.k.AsString(), than.(keyItem).k.AsString()) < 0
}

// SortedKeys returns every live key in the table in ascending
// byte-lexicographic order, built via a google/btree index over a single
// ForEach pass. KEYS and a top-level SCAN need this stable order so a
// cursor (an offset into this sequence) resumes correctly across calls
// even though each segment's backing Go map iterates in random order
// (SPEC_FULL.md §4.2/§4.8's SCAN-family wiring).
func (t *Table[V]) SortedKeys() []obj.Obj {
	bt := btree.New(32)
	t.ForEach(func(k obj.Obj, v V) bool {
		bt.ReplaceOrInsert(keyItem{k: k})
		return true
	})
	out := make([]obj.Obj, 0, bt.Len())
	bt.Ascend(func(i btree.Item) bool {
		out = append(out, i.(keyItem).k)
		return true
	})
	return out
}

// ForEachInSegment visits every entry of the segment referenced at dirIdx.
func (t *Table[V]) ForEachInSegment(dirIdx uint64, f func(k obj.Obj, v V) bool) {
	seg := t.directory[dirIdx]
	for _, e := range seg.data {
		if !f(e.key, e.value) {
			return
		}
	}
}

// NextUniqueSegment returns the next directory index referencing a
// different segment than the one at dirIdx (spec §4.2 iteration rule).
func (t *Table[V]) NextUniqueSegment(dirIdx uint64) uint64 {
	localDepth := t.directory[dirIdx].localDepth
	step := uint64(1) << (t.globalDepth - localDepth)
	return dirIdx + step
}

// split grows the segment referenced at dirIdx, doubling the directory
// first if the segment's local depth has already caught up with the
// global depth (spec §4.2 split algorithm).
func (t *Table[V]) split(dirIdx uint64) {
	seg := t.directory[dirIdx]
	if seg.localDepth == t.globalDepth {
		if t.globalDepth >= 64 {
			panic("dash: directory depth exceeds 64, fatal invariant violation")
		}
		oldSize := len(t.directory)
		newDir := make([]*segment[V], oldSize*2)
		// A segment aliased across 2^(G-L) old slots must have its segmentID
		// doubled exactly once, not once per aliasing slot: visit each
		// distinct segment only at its first (lowest) old index, which is
		// exactly its old segmentID, so the doubled value lands on the new
		// chunk's lowest index too.
		visited := make(map[*segment[V]]bool, oldSize)
		for p := 0; p < oldSize; p++ {
			s := t.directory[p]
			if !visited[s] {
				visited[s] = true
				s.segmentID *= 2
			}
			newDir[2*p] = s
			newDir[2*p+1] = s
		}
		t.directory = newDir
		t.globalDepth++
		// dirIdx referred to the old (pre-doubling) directory; both of its
		// images in the new directory still reference seg, so either works.
		dirIdx = dirIdx * 2
	}

	g := t.globalDepth
	l := seg.localDepth
	chunkSize := uint64(1) << (g - l)
	start := dirIdx &^ (chunkSize - 1)
	mid := start + chunkSize/2
	end := start + chunkSize

	newSeg := newSegment[V](l+1, mid, seg.version)
	seg.localDepth = l + 1
	seg.segmentID = start

	for keyStr, e := range seg.data {
		segIdx := e.hash >> (64 - g)
		if segIdx >= mid && segIdx < end {
			newSeg.data[keyStr] = e
			delete(seg.data, keyStr)
		}
	}

	for i := mid; i < end; i++ {
		t.directory[i] = newSeg
	}
}

// CheckInvariants verifies the directory-aliasing invariant of spec §3/§4.2:
// for every directory index i, the chunk of 2^(G-L) consecutive entries
// starting at i's chunk boundary all reference the same segment object,
// whose segment_id equals that start index. Intended for tests and debug
// builds, not the request hot path.
func (t *Table[V]) CheckInvariants() error {
	g := t.globalDepth
	for i := uint64(0); i < t.DirSize(); {
		seg := t.directory[i]
		if seg.localDepth > g {
			return errLocalDepthExceedsGlobal
		}
		chunk := uint64(1) << (g - seg.localDepth)
		start := i &^ (chunk - 1)
		if start != seg.segmentID {
			return errSegmentIDMismatch
		}
		for j := start; j < start+chunk; j++ {
			if t.directory[j] != seg {
				return errAliasingBroken
			}
		}
		i = start + chunk
	}
	return nil
}
