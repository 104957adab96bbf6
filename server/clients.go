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
package server

import (
	"sync"
	"sync/atomic"

	nonlockingreadmap "github.com/launix-de/NonLockingReadMap"

	"github.com/launix-de/nanoredis/command"
)

// clientEntry is one live connection's mutable state, registered once at
// accept time and removed once at disconnect: exactly the
// write-rarely/read-on-every-CLIENT-LIST shape SPEC_FULL.md's wiring table
// calls out for github.com/launix-de/NonLockingReadMap, the same structure
// command/registry.go already uses for the (also write-rarely) command
// table.
type clientEntry struct {
	id            uint64
	addr          string
	connectedAtMs int64

	mu             sync.Mutex
	name           string
	db             int
	lastCmd        string
	lastActivityMs int64

	killed atomic.Bool
}

func (c *clientEntry) GetKey() uint64    { return c.id }
func (c *clientEntry) ComputeSize() uint { return 128 }

func (c *clientEntry) snapshot(nowMs int64) command.ClientSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return command.ClientSnapshot{
		ID:      c.id,
		Name:    c.name,
		Addr:    c.addr,
		DB:      c.db,
		LastCmd: c.lastCmd,
		AgeMs:   nowMs - c.connectedAtMs,
		IdleMs:  nowMs - c.lastActivityMs,
	}
}

// ClientRegistry tracks every currently-connected client across the whole
// process (connections aren't shard-local the way keys are: a client can
// issue commands that route to any shard from one request to the next).
type ClientRegistry struct {
	m          nonlockingreadmap.NonLockingReadMap[clientEntry, uint64]
	nowMs      func() int64
	pauseUntil atomic.Int64
}

// NewClientRegistry creates an empty registry using nowMs for age/idle math.
func NewClientRegistry(nowMs func() int64) *ClientRegistry {
	return &ClientRegistry{m: nonlockingreadmap.New[clientEntry, uint64](), nowMs: nowMs}
}

// Register creates and stores a new entry for a just-accepted connection.
func (r *ClientRegistry) Register(id uint64, addr string) *clientEntry {
	now := r.nowMs()
	e := &clientEntry{id: id, addr: addr, connectedAtMs: now, lastActivityMs: now}
	r.m.Set(e)
	return e
}

// Unregister removes a connection's entry once it has closed.
func (r *ClientRegistry) Unregister(id uint64) { r.m.Remove(id) }

// Touch records that id just issued cmd, for CLIENT LIST's "cmd"/"idle" columns.
func (r *ClientRegistry) Touch(e *clientEntry, cmd string, db int) {
	e.mu.Lock()
	e.lastCmd = cmd
	e.db = db
	e.lastActivityMs = r.nowMs()
	e.mu.Unlock()
}

// SetName implements CLIENT SETNAME's server-side bookkeeping (the
// connection's own local ConnName pointer is updated by the command handler
// directly; this keeps CLIENT LIST in sync for other connections).
func (r *ClientRegistry) SetName(id uint64, name string) {
	e := r.m.Get(id)
	if e == nil {
		return
	}
	e.mu.Lock()
	e.name = name
	e.mu.Unlock()
}

// List returns a point-in-time snapshot of every connected client, ordered
// by ascending id (NonLockingReadMap.GetAll's natural sort key order).
func (r *ClientRegistry) List() []command.ClientSnapshot {
	all := r.m.GetAll()
	now := r.nowMs()
	out := make([]command.ClientSnapshot, 0, len(all))
	for _, e := range all {
		out = append(out, e.snapshot(now))
	}
	return out
}

// Kill marks id's connection to be closed at its next opportunity (checked
// in the router's per-request loop, spec §4.8's advisory kill/pause model:
// there is no way to interrupt a blocking socket read from here without an
// OS-level deadline, and the router sets none, so the connection notices
// on its next command).
func (r *ClientRegistry) Kill(id uint64) bool {
	e := r.m.Get(id)
	if e == nil {
		return false
	}
	e.killed.Store(true)
	return true
}

// Killed reports whether id has been marked for termination.
func (r *ClientRegistry) Killed(id uint64) bool {
	e := r.m.Get(id)
	return e != nil && e.killed.Load()
}

// PauseUntil arms CLIENT PAUSE: every router loop checks PausedNow before
// dispatching its next request and blocks (by sleeping in short slices)
// until the deadline passes.
func (r *ClientRegistry) PauseUntil(ms int64) { r.pauseUntil.Store(ms) }

// PausedNow reports whether the pause deadline is still in the future.
func (r *ClientRegistry) PausedNow() bool { return r.nowMs() < r.pauseUntil.Load() }
