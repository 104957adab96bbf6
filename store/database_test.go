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
package store

import (
	"testing"

	"github.com/launix-de/nanoredis/obj"
)

type fakeClock struct{ ms int64 }

func (c *fakeClock) now() int64    { return c.ms }
func (c *fakeClock) advance(d int64) { c.ms += d }

func TestSetThenGet(t *testing.T) {
	clk := &fakeClock{ms: 1000}
	d := NewDatabase(clk.now)
	d.Set(obj.FromString([]byte("k")), obj.FromString([]byte("v")))
	v, ok := d.Get(obj.FromString([]byte("k")))
	if !ok || string(v.AsString()) != "v" {
		t.Fatalf("Get(k) = %q, %v", v.AsString(), ok)
	}
}

func TestExpireEvictsAfterElapsed(t *testing.T) {
	clk := &fakeClock{ms: 1000}
	d := NewDatabase(clk.now)
	k := obj.FromString([]byte("k"))
	d.Set(k, obj.FromString([]byte("v")))
	if !d.Expire(k, 50) {
		t.Fatalf("Expire on existing key should succeed")
	}
	before := d.KeyCount()
	if before != 1 {
		t.Fatalf("expected 1 key before expiry, got %d", before)
	}
	clk.advance(51)
	if _, ok := d.Get(k); ok {
		t.Fatalf("key should be absent after expiry elapses")
	}
	if d.KeyCount() != 0 {
		t.Fatalf("KeyCount should drop to 0 after lazy eviction, got %d", d.KeyCount())
	}
}

func TestExpireOnMissingKeyFails(t *testing.T) {
	clk := &fakeClock{ms: 0}
	d := NewDatabase(clk.now)
	if d.Expire(obj.FromString([]byte("nope")), 10) {
		t.Fatalf("Expire on absent key should fail")
	}
}

func TestPersistRemovesExpiry(t *testing.T) {
	clk := &fakeClock{ms: 0}
	d := NewDatabase(clk.now)
	k := obj.FromString([]byte("k"))
	d.Set(k, obj.FromInt(1))
	d.Expire(k, 10)
	if !d.Persist(k) {
		t.Fatalf("Persist should report removal")
	}
	if d.TTL(k) != NoExpire {
		t.Fatalf("TTL after Persist should be NoExpire, got %d", d.TTL(k))
	}
	clk.advance(1000)
	if _, ok := d.Get(k); !ok {
		t.Fatalf("key should survive past its old expiry after Persist")
	}
}

func TestTTLSentinels(t *testing.T) {
	clk := &fakeClock{ms: 0}
	d := NewDatabase(clk.now)
	if d.TTL(obj.FromString([]byte("nope"))) != NoKey {
		t.Fatalf("TTL of absent key should be NoKey")
	}
	k := obj.FromString([]byte("k"))
	d.Set(k, obj.FromInt(1))
	if d.TTL(k) != NoExpire {
		t.Fatalf("TTL of key without expiry should be NoExpire")
	}
	d.Expire(k, 100)
	if ttl := d.TTL(k); ttl <= 0 || ttl > 100 {
		t.Fatalf("TTL should be in (0,100], got %d", ttl)
	}
}

func TestSelectBoundary(t *testing.T) {
	clk := &fakeClock{ms: 0}
	d := NewDatabase(clk.now)
	if err := d.Select(0); err != nil {
		t.Fatalf("Select(0) should succeed: %v", err)
	}
	if err := d.Select(NumSlots - 1); err != nil {
		t.Fatalf("Select(%d) should succeed: %v", NumSlots-1, err)
	}
	if err := d.Select(NumSlots); err == nil {
		t.Fatalf("Select(%d) should fail", NumSlots)
	}
	if err := d.Select(-1); err == nil {
		t.Fatalf("Select(-1) should fail")
	}
}

func TestSlotsAreIndependent(t *testing.T) {
	clk := &fakeClock{ms: 0}
	d := NewDatabase(clk.now)
	k := obj.FromString([]byte("k"))
	d.Select(0)
	d.Set(k, obj.FromInt(1))
	d.Select(1)
	if _, ok := d.Get(k); ok {
		t.Fatalf("key set in slot 0 must not be visible in slot 1")
	}
	d.Set(k, obj.FromInt(2))
	d.Select(0)
	v, _ := d.Get(k)
	got, _ := v.AsInt()
	if got != 1 {
		t.Fatalf("slot 0 value corrupted by slot 1 write: %d", got)
	}
}

func TestDelRemovesKeyAndExpiry(t *testing.T) {
	clk := &fakeClock{ms: 0}
	d := NewDatabase(clk.now)
	k := obj.FromString([]byte("k"))
	d.Set(k, obj.FromInt(1))
	d.Expire(k, 10)
	if !d.Del(k) {
		t.Fatalf("Del should report removal")
	}
	if d.Del(k) {
		t.Fatalf("second Del should report false")
	}
	if d.TTL(k) != NoKey {
		t.Fatalf("TTL after Del should be NoKey")
	}
}

func TestFlushEmptiesOnlyCurrentSlot(t *testing.T) {
	clk := &fakeClock{ms: 0}
	d := NewDatabase(clk.now)
	k := obj.FromString([]byte("k"))
	d.Select(0)
	d.Set(k, obj.FromInt(1))
	d.Select(1)
	d.Set(k, obj.FromInt(2))
	d.Select(0)
	d.Flush()
	if d.KeyCount() != 0 {
		t.Fatalf("slot 0 should be empty after Flush")
	}
	d.Select(1)
	if d.KeyCount() != 1 {
		t.Fatalf("slot 1 must survive Flush of slot 0")
	}
}

func TestActiveExpireCycleEvictsElapsedKeys(t *testing.T) {
	clk := &fakeClock{ms: 1000}
	d := NewDatabase(clk.now)
	for i := 0; i < 20; i++ {
		k := obj.FromInt(int64(i))
		d.Set(k, obj.FromInt(int64(i)))
		d.Expire(k, 10)
	}
	clk.advance(20)
	evicted := d.ActiveExpireCycle(1000)
	if evicted != 20 {
		t.Fatalf("expected 20 evictions, got %d", evicted)
	}
	if d.KeyCount() != 0 {
		t.Fatalf("expected 0 keys after active expire, got %d", d.KeyCount())
	}
}

func TestActiveExpireCycleRespectsBudget(t *testing.T) {
	clk := &fakeClock{ms: 1000}
	d := NewDatabase(clk.now)
	for i := 0; i < 50; i++ {
		k := obj.FromInt(int64(i))
		d.Set(k, obj.FromInt(int64(i)))
		d.Expire(k, 10)
	}
	clk.advance(20)
	evicted := d.ActiveExpireCycle(5)
	if evicted > 5 || d.KeyCount() < 45 {
		t.Fatalf("budgeted cycle should not evict more than it sampled, evicted %d", evicted)
	}
	if d.KeyCount() > 49 {
		t.Fatalf("budgeted cycle should evict at least one elapsed key")
	}
}

func TestForEachAppliesLazyExpiration(t *testing.T) {
	clk := &fakeClock{ms: 1000}
	d := NewDatabase(clk.now)
	live := obj.FromString([]byte("live"))
	dead := obj.FromString([]byte("dead"))
	d.Set(live, obj.FromInt(1))
	d.Set(dead, obj.FromInt(2))
	d.Expire(dead, 5)
	clk.advance(10)
	seen := map[string]bool{}
	d.ForEach(func(k, v obj.Obj) bool {
		seen[string(k.AsString())] = true
		return true
	})
	if seen["dead"] {
		t.Fatalf("ForEach must not yield expired keys")
	}
	if !seen["live"] {
		t.Fatalf("ForEach must yield live keys")
	}
	if d.KeyCount() != 1 {
		t.Fatalf("expired key should have been evicted by ForEach, KeyCount=%d", d.KeyCount())
	}
}

func TestRandomKeyOnEmptyDatabase(t *testing.T) {
	clk := &fakeClock{ms: 0}
	d := NewDatabase(clk.now)
	if _, ok := d.RandomKey(); ok {
		t.Fatalf("RandomKey on empty db should report false")
	}
}

func TestRandomKeyReturnsLiveKey(t *testing.T) {
	clk := &fakeClock{ms: 0}
	d := NewDatabase(clk.now)
	d.Set(obj.FromString([]byte("only")), obj.FromInt(1))
	k, ok := d.RandomKey()
	if !ok || string(k.AsString()) != "only" {
		t.Fatalf("RandomKey = %q, %v", k.AsString(), ok)
	}
}
