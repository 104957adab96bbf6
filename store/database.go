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

// Package store implements the per-shard Database: sixteen independent
// slots, each holding a main table and an expiry table over the dash
// extendible-hash table (SPEC_FULL.md §4.3). A Database is only ever
// touched by the single goroutine that owns its shard (SPEC_FULL.md §5);
// it does no internal locking.
package store

import (
	"errors"
	"math/rand"

	"github.com/launix-de/nanoredis/dash"
	"github.com/launix-de/nanoredis/obj"
)

// NumSlots is the number of per-database namespaces within a shard.
const NumSlots = 16

// NoExpire is the TTL sentinel reported for a key with no expiry.
const NoExpire int64 = -1

// NoKey is the TTL sentinel reported for an absent key.
const NoKey int64 = -2

var ErrBadSlot = errors.New("store: db index out of range")

type slot struct {
	main   *dash.Table[obj.Obj]
	expire *dash.Table[int64]
}

func newSlot() *slot {
	return &slot{
		main:   dash.New[obj.Obj](16),
		expire: dash.New[int64](16),
	}
}

// Database holds NumSlots independent key spaces for one shard.
type Database struct {
	slots     [NumSlots]*slot
	currentDB int
	nowMs     func() int64
}

// NewDatabase creates a Database with all slots ready and slot 0 selected.
// nowMs supplies wall-clock milliseconds; tests may inject a fake clock.
func NewDatabase(nowMs func() int64) *Database {
	d := &Database{nowMs: nowMs}
	for i := range d.slots {
		d.slots[i] = newSlot()
	}
	return d
}

// Select switches the active slot. Fails if i is outside [0, NumSlots).
func (d *Database) Select(i int) error {
	if i < 0 || i >= NumSlots {
		return ErrBadSlot
	}
	d.currentDB = i
	return nil
}

// CurrentDB returns the selected slot index.
func (d *Database) CurrentDB() int { return d.currentDB }

func (d *Database) cur() *slot { return d.slots[d.currentDB] }

// Set inserts into the main table and clears any matching expiry.
func (d *Database) Set(k, v obj.Obj) {
	s := d.cur()
	s.main.Insert(k, v)
	s.expire.Erase(k)
}

// Get performs lazy expiration: an elapsed key is evicted and reported
// absent, matching spec §4.3.
func (d *Database) Get(k obj.Obj) (obj.Obj, bool) {
	s := d.cur()
	if exp, ok := s.expire.Find(k); ok {
		if exp <= d.nowMs() {
			s.main.Erase(k)
			s.expire.Erase(k)
			return obj.Obj{}, false
		}
	}
	return s.main.Find(k)
}

// Exists reports presence without copying the value, honoring lazy expiry.
func (d *Database) Exists(k obj.Obj) bool {
	_, ok := d.Get(k)
	return ok
}

// Del removes a key from the main and expiry tables.
func (d *Database) Del(k obj.Obj) bool {
	s := d.cur()
	s.expire.Erase(k)
	return s.main.Erase(k)
}

// Expire sets expiry = now + ttlMs, iff the main table contains k.
func (d *Database) Expire(k obj.Obj, ttlMs int64) bool {
	s := d.cur()
	if _, ok := s.main.Find(k); !ok {
		return false
	}
	s.expire.Insert(k, d.nowMs()+ttlMs)
	return true
}

// ExpireAt sets an absolute wall-clock expiry in ms, iff k exists.
func (d *Database) ExpireAt(k obj.Obj, atMs int64) bool {
	s := d.cur()
	if _, ok := s.main.Find(k); !ok {
		return false
	}
	s.expire.Insert(k, atMs)
	return true
}

// Persist removes any expiry entry for k. Returns whether one was removed.
func (d *Database) Persist(k obj.Obj) bool {
	return d.cur().expire.Erase(k)
}

// TTL reports remaining milliseconds, NoExpire, or NoKey.
func (d *Database) TTL(k obj.Obj) int64 {
	s := d.cur()
	if _, ok := s.main.Find(k); !ok {
		return NoKey
	}
	exp, ok := s.expire.Find(k)
	if !ok {
		return NoExpire
	}
	remaining := exp - d.nowMs()
	if remaining < 0 {
		return NoKey
	}
	return remaining
}

// KeyCount returns the number of live keys in the current slot (DBSIZE).
func (d *Database) KeyCount() int { return d.cur().main.Size() }

// Flush empties the current slot (FLUSHDB).
func (d *Database) Flush() {
	s := d.cur()
	s.main.Clear()
	s.expire.Clear()
}

// ForEach visits every live key/value of the current slot, applying lazy
// expiration as it goes.
func (d *Database) ForEach(f func(k, v obj.Obj) bool) {
	s := d.cur()
	var expired []obj.Obj
	now := d.nowMs()
	s.main.ForEach(func(k, v obj.Obj) bool {
		if exp, ok := s.expire.Find(k); ok && exp <= now {
			expired = append(expired, k)
			return true
		}
		return f(k, v)
	})
	for _, k := range expired {
		s.main.Erase(k)
		s.expire.Erase(k)
	}
}

// RandomKey returns a uniformly-ish sampled live key, or false if empty.
// It samples the expiry-free main table via a single random directory walk
// rather than materializing every key (cheap even for large slots).
func (d *Database) RandomKey() (obj.Obj, bool) {
	s := d.cur()
	if s.main.Size() == 0 {
		return obj.Obj{}, false
	}
	dirSize := s.main.DirSize()
	start := uint64(rand.Int63()) % dirSize
	for i := uint64(0); i < dirSize; i++ {
		idx := (start + i) % dirSize
		var found obj.Obj
		var ok bool
		s.main.ForEachInSegment(idx, func(k, v obj.Obj) bool {
			if d.keyLiveLocked(k) {
				found, ok = k, true
				return false
			}
			return true
		})
		if ok {
			return found, true
		}
	}
	return obj.Obj{}, false
}

func (d *Database) keyLiveLocked(k obj.Obj) bool {
	s := d.cur()
	if exp, ok := s.expire.Find(k); ok && exp <= d.nowMs() {
		return false
	}
	return true
}

// ActiveExpireCycle samples at most budget keys from the current slot's
// expiry table and evicts elapsed ones, returning the eviction count.
// Idempotent, safe to call from an idle tick (spec §4.3).
func (d *Database) ActiveExpireCycle(budget int) int {
	s := d.cur()
	now := d.nowMs()
	var toEvict []obj.Obj
	sampled := 0
	s.expire.ForEach(func(k obj.Obj, exp int64) bool {
		if sampled >= budget {
			return false
		}
		sampled++
		if exp <= now {
			toEvict = append(toEvict, k)
		}
		return true
	})
	for _, k := range toEvict {
		s.main.Erase(k)
		s.expire.Erase(k)
	}
	return len(toEvict)
}

// ForEachSlot applies f to every slot index in turn, restoring the
// previously-selected slot afterward. Used by the snapshot engine, which
// must walk all 16 namespaces.
func (d *Database) ForEachSlot(f func(i int)) {
	prev := d.currentDB
	for i := 0; i < NumSlots; i++ {
		d.currentDB = i
		f(i)
	}
	d.currentDB = prev
}

// MainTable exposes the current slot's main dash table (read-only use by
// the snapshot engine's SliceSnapshot).
func (d *Database) MainTable() *dash.Table[obj.Obj] { return d.cur().main }

// ExpireTable exposes the current slot's expiry dash table.
func (d *Database) ExpireTable() *dash.Table[int64] { return d.cur().expire }

// NowMs exposes the Database's injected wall-clock source, so the snapshot
// engine can fence "already expired" entries out of a point-in-time dump
// using the same clock as lazy expiration.
func (d *Database) NowMs() int64 { return d.nowMs() }

// LoadEntry installs one key/value pair loaded from a snapshot section into
// slot dbIdx, arming an absolute expiry if expireAtMs is non-negative. Used
// only by snapshot.Load's replay; ordinary request handling goes through Set
// and Expire instead.
func (d *Database) LoadEntry(dbIdx int, key, value obj.Obj, expireAtMs int64) error {
	if dbIdx < 0 || dbIdx >= NumSlots {
		return ErrBadSlot
	}
	s := d.slots[dbIdx]
	s.main.Insert(key, value)
	if expireAtMs >= 0 {
		s.expire.Insert(key, expireAtMs)
	}
	return nil
}
