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
package command

import (
	"github.com/launix-de/nanoredis/shard"
	"github.com/launix-de/nanoredis/store"
)

// ClientSnapshot is the read-only view of one connection exposed to
// CLIENT LIST/CLIENT INFO (spec §4.8).
type ClientSnapshot struct {
	ID       uint64
	Name     string
	Addr     string
	DB       int
	LastCmd  string
	AgeMs    int64
	IdleMs   int64
}

// ServerOps is everything a command handler can ask of the server beyond its
// own Database: cross-cutting state that lives in the server package (the
// client registry, the snapshot.Controller, CONFIG storage). Routing it
// through an interface keeps command free of an import on server (which
// itself must import command to dispatch), and free of an import on
// snapshot (whose Controller already depends on shard, not command).
type ServerOps interface {
	Save() error
	BGSave() error
	LastSaveMs() int64
	SaveInProgress() bool

	ConfigGet(pattern string) [][2]string
	ConfigSet(name, value string) error

	Info() string
	DebugJSONTable() string

	ClientList() []ClientSnapshot
	ClientKill(id uint64) bool
	SetClientName(id uint64, name string)
	PauseUntil(ms int64)

	Now() int64
	NumShards() int
	RequestShutdown(save bool)
}

// Context is the per-request handle passed to every Handler: the
// currently-selected Database (already the right shard's, resolved by the
// router before dispatch per spec §4.5), identifying info about the
// connection issuing the command, and the ServerOps facade for whole-server
// operations.
type Context struct {
	DB       *store.Database
	Shard    *shard.Shard
	Registry *shard.Registry
	Server   ServerOps

	ClientID uint64
	Addr     string

	// DBIndex is a pointer into the connection's own state so SELECT can
	// change which database subsequent commands on this connection see.
	DBIndex *int
	// ConnName is a pointer into the connection's state for CLIENT SETNAME
	// /CLIENT GETNAME.
	ConnName *string
	// CloseAfterReply is set by QUIT to tell the router to close the
	// connection once this reply has been flushed.
	CloseAfterReply *bool
}
