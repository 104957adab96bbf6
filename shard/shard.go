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

// Package shard implements the share-nothing shard runtime of SPEC_FULL.md
// §4.4/§5: one goroutine owns one store.Database and drains its own bounded
// task queue; cross-shard work is never done by reaching into another
// shard's Database directly, only by posting a Task to its queue (fire and
// forget) or calling Await (post-and-block, for request/response command
// handling that must touch more than one shard).
package shard

import (
	"fmt"
	"runtime/debug"
	"time"

	"github.com/jtolds/gls"

	"github.com/launix-de/nanoredis/store"
)

// DefaultQueueCapacity matches the original's default per-shard inbox size.
const DefaultQueueCapacity = 1024

// glsMgr tags goroutine-local storage the same way scm/session.go's request
// context threading would, letting CurrentShard() answer correctly from
// deep inside a command handler without explicit parameter threading.
var glsMgr = gls.NewContextManager()

const glsShardKey = "nanoredis_current_shard"

// Shard owns one Database and the single goroutine that mutates it.
type Shard struct {
	ID       int
	db       *store.Database
	queue    *TaskQueue
	stopCh   chan struct{}
	stopped  chan struct{}
	nowMs    func() int64
	onPanic  func(shardID int, r any)
}

// New creates a shard with a fresh Database and bounded task queue. nowMs
// supplies the clock the Database uses for TTL bookkeeping.
func New(id int, nowMs func() int64, queueCapacity int) *Shard {
	if queueCapacity <= 0 {
		queueCapacity = DefaultQueueCapacity
	}
	return &Shard{
		ID:      id,
		db:      store.NewDatabase(nowMs),
		queue:   NewTaskQueue(queueCapacity),
		stopCh:  make(chan struct{}),
		stopped: make(chan struct{}),
		nowMs:   nowMs,
	}
}

// SetPanicHandler installs a hook invoked (from the shard goroutine) when a
// queued task panics, after the panic has already been recovered and the
// loop kept alive. Mirrors scm/scheduler.go's runTask recovery.
func (s *Shard) SetPanicHandler(f func(shardID int, r any)) { s.onPanic = f }

// Database returns the shard's Database. Only safe to call from the
// shard's own goroutine (i.e. from inside a Task it is running).
func (s *Shard) Database() *store.Database { return s.db }

// Queue exposes the shard's task queue for producers on other goroutines.
func (s *Shard) Queue() *TaskQueue { return s.queue }

// Run is the shard's main loop: block on the wake channel or a periodic
// active-expire tick, draining all queued tasks each time either fires.
// Returns when Stop is called and the queue has been drained one last
// time. Intended to be launched as `go sh.Run()`.
func (s *Shard) Run(activeExpireInterval time.Duration, activeExpireBudget int) {
	defer close(s.stopped)
	glsMgr.SetValues(gls.Values{glsShardKey: s}, func() {
		var ticker *time.Ticker
		var tickC <-chan time.Time
		if activeExpireInterval > 0 {
			ticker = time.NewTicker(activeExpireInterval)
			defer ticker.Stop()
			tickC = ticker.C
		}
		for {
			s.runProtected(func() { s.queue.DrainAll() })
			select {
			case <-s.stopCh:
				s.runProtected(func() { s.queue.DrainAll() })
				return
			case <-s.queue.WakeChan():
			case <-tickC:
				s.runProtected(func() {
					s.db.ForEachSlot(func(int) {
						s.db.ActiveExpireCycle(activeExpireBudget)
					})
				})
			}
		}
	})
}

func (s *Shard) runProtected(f func()) {
	defer func() {
		if r := recover(); r != nil {
			debug.PrintStack()
			if s.onPanic != nil {
				s.onPanic(s.ID, r)
			}
		}
	}()
	f()
}

// Stop signals the shard loop to drain remaining work and exit, and blocks
// until it has.
func (s *Shard) Stop() {
	close(s.stopCh)
	<-s.stopped
}

// Post enqueues fn for asynchronous execution on the shard's own goroutine.
func (s *Shard) Post(fn Task) error { return s.queue.Push(fn) }

// Await posts fn to the shard's queue and blocks the caller until it has
// run, returning its result. This is the only sanctioned way for one
// shard's handler to read or mutate another shard's Database (spec §4.4
// "Await"); the caller must not itself be running on the target shard's
// own goroutine, or it will deadlock against its own queue.
func Await[T any](s *Shard, fn func(*store.Database) T) (T, error) {
	type result struct {
		v T
	}
	done := make(chan result, 1)
	err := s.Post(func() {
		done <- result{v: fn(s.db)}
	})
	if err != nil {
		var zero T
		return zero, err
	}
	r := <-done
	return r.v, nil
}

// RunOn executes fn against s's Database, running it directly when the
// caller is already on s's own goroutine (matching the router's "owning ==
// current shard: execute locally" rule, spec §4.5) and posting-and-blocking
// via Await otherwise. Using Await from a handler already running on s
// would deadlock against s's own queue, so callers that may run on any
// shard (SAVE/BGSAVE, cross-shard commands) should always go through RunOn
// rather than calling Await directly.
func RunOn[T any](s *Shard, fn func(*store.Database) T) (T, error) {
	if CurrentShard() == s {
		return fn(s.db), nil
	}
	return Await(s, fn)
}

// CurrentShard returns the Shard owning the calling goroutine, or nil if
// called from a goroutine that isn't a shard's own loop (e.g. a connection
// acceptor goroutine before it has dispatched into a shard).
func CurrentShard() *Shard {
	v, ok := glsMgr.GetValue(glsShardKey)
	if !ok {
		return nil
	}
	sh, _ := v.(*Shard)
	return sh
}

// Registry owns a fixed set of shards and resolves key ownership by the
// same FNV-1a hash dash uses for its directory placement (spec §4.5), so
// key placement and request routing always agree.
type Registry struct {
	shards []*Shard
}

// NewRegistry creates and starts n shards, each with its own goroutine.
func NewRegistry(n int, nowMs func() int64, queueCapacity int, activeExpireInterval time.Duration, activeExpireBudget int) *Registry {
	r := &Registry{shards: make([]*Shard, n)}
	for i := 0; i < n; i++ {
		sh := New(i, nowMs, queueCapacity)
		sh.SetPanicHandler(func(shardID int, rec any) {
			fmt.Printf("shard %d: task panic: %v\n", shardID, rec)
		})
		r.shards[i] = sh
		go sh.Run(activeExpireInterval, activeExpireBudget)
	}
	return r
}

// NumShards returns the shard count.
func (r *Registry) NumShards() int { return len(r.shards) }

// Shard returns the shard at index i.
func (r *Registry) Shard(i int) *Shard { return r.shards[i] }

// Owner returns the shard that owns keyHash, using the same placement
// function as dash.HashBytes.
func (r *Registry) Owner(keyHash uint64) *Shard {
	return r.shards[keyHash%uint64(len(r.shards))]
}

// StopAll stops every shard, waiting for each to drain.
func (r *Registry) StopAll() {
	for _, sh := range r.shards {
		sh.Stop()
	}
}
