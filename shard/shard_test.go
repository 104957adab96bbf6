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
package shard

import (
	"testing"
	"time"

	"github.com/launix-de/nanoredis/obj"
	"github.com/launix-de/nanoredis/store"
)

func TestTaskQueuePushPopOrder(t *testing.T) {
	q := NewTaskQueue(4)
	var order []int
	for i := 0; i < 4; i++ {
		i := i
		if err := q.Push(func() { order = append(order, i) }); err != nil {
			t.Fatalf("push %d failed: %v", i, err)
		}
	}
	q.DrainAll()
	for i, v := range order {
		if v != i {
			t.Fatalf("out of order at %d: %v", i, order)
		}
	}
}

func TestTaskQueueRejectsWhenFull(t *testing.T) {
	q := NewTaskQueue(2) // rounds up to 2
	if err := q.Push(func() {}); err != nil {
		t.Fatalf("push 1 should succeed: %v", err)
	}
	if err := q.Push(func() {}); err != nil {
		t.Fatalf("push 2 should succeed: %v", err)
	}
	if err := q.Push(func() {}); err != ErrQueueFull {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
}

func TestTaskQueueCapacityRoundsToPowerOfTwo(t *testing.T) {
	q := NewTaskQueue(5)
	if q.Cap() != 8 {
		t.Fatalf("expected capacity 8, got %d", q.Cap())
	}
}

func TestShardPostExecutesOnOwnGoroutine(t *testing.T) {
	sh := New(0, func() int64 { return 0 }, 16)
	go sh.Run(0, 0)
	defer sh.Stop()

	done := make(chan bool, 1)
	err := sh.Post(func() {
		cur := CurrentShard()
		done <- (cur == sh)
	})
	if err != nil {
		t.Fatalf("post failed: %v", err)
	}
	select {
	case ok := <-done:
		if !ok {
			t.Fatalf("CurrentShard() did not resolve to the owning shard")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("task never ran")
	}
}

func TestAwaitSetThenGetAcrossCall(t *testing.T) {
	sh := New(0, func() int64 { return 0 }, 16)
	go sh.Run(0, 0)
	defer sh.Stop()

	k := obj.FromString([]byte("k"))
	err := sh.Post(func() {
		sh.Database().Set(k, obj.FromInt(42))
	})
	if err != nil {
		t.Fatalf("post failed: %v", err)
	}

	val, err := Await(sh, func(db *store.Database) obj.Obj {
		v, _ := db.Get(k)
		return v
	})
	if err != nil {
		t.Fatalf("await failed: %v", err)
	}
	n, ok := val.AsInt()
	if !ok || n != 42 {
		t.Fatalf("expected 42, got %v ok=%v", n, ok)
	}
}

func TestPanicInTaskDoesNotKillShardLoop(t *testing.T) {
	sh := New(0, func() int64 { return 0 }, 16)
	panics := make(chan int, 1)
	sh.SetPanicHandler(func(shardID int, r any) { panics <- shardID })
	go sh.Run(0, 0)
	defer sh.Stop()

	_ = sh.Post(func() { panic("boom") })
	select {
	case id := <-panics:
		if id != 0 {
			t.Fatalf("unexpected shard id %d", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("panic handler never fired")
	}

	done := make(chan bool, 1)
	_ = sh.Post(func() { done <- true })
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("shard loop did not survive the panic")
	}
}

func TestRegistryOwnerIsDeterministic(t *testing.T) {
	r := NewRegistry(4, func() int64 { return 0 }, 16, 0, 0)
	defer r.StopAll()
	h := uint64(12345)
	a := r.Owner(h)
	b := r.Owner(h)
	if a != b {
		t.Fatalf("Owner should be deterministic for the same hash")
	}
}
