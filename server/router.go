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
	"bufio"
	"io"
	"net"
	"strings"
	"time"

	"github.com/launix-de/nanoredis/command"
	"github.com/launix-de/nanoredis/dash"
	"github.com/launix-de/nanoredis/obj"
	"github.com/launix-de/nanoredis/resp"
	"github.com/launix-de/nanoredis/shard"
	"github.com/launix-de/nanoredis/store"
)

// conn is one accepted connection's router-owned state: the pieces
// command.Context needs a stable pointer into across the connection's
// whole lifetime (spec §4.5's "the router, not the Database, is what
// remembers which DB a connection selected").
type conn struct {
	id      uint64
	addr    string
	dbIndex int
	name    string
	closed  bool
}

// serve drives one accepted TCP connection until it closes: parse a
// command, route it to its owning shard, write the reply, repeat. Mirrors
// the teacher's one-goroutine-per-connection shape (scm/mysql.go's
// driver.NewListener callback model), hand-rolled here because nothing in
// the example pack frames a line/bulk-oriented protocol the way RESP does.
func (s *Server) serve(nc net.Conn) {
	defer nc.Close()

	id := nextClientID()
	addr := nc.RemoteAddr().String()
	c := &conn{id: id, addr: addr, dbIndex: 0}
	entry := s.Clients.Register(id, addr)
	defer s.Clients.Unregister(id)

	if s.Config.TCPNoDelay {
		if tc, ok := nc.(*net.TCPConn); ok {
			tc.SetNoDelay(true)
		}
	}

	s.Log.Infof("client %d connected from %s", id, addr)
	r := resp.NewReader(nc)
	w := bufio.NewWriter(nc)

	for {
		args, err := r.ParseCommand()
		if err != nil {
			if err != io.EOF {
				w.Write(resp.MakeError("ERR Protocol error: " + err.Error()))
				w.Flush()
			}
			break
		}
		if len(args) == 0 {
			continue
		}

		for s.Clients.PausedNow() {
			time.Sleep(10 * time.Millisecond)
		}
		if s.Clients.Killed(id) {
			break
		}

		reply := s.dispatch(c, entry, args)
		if _, err := w.Write(reply); err != nil {
			break
		}
		if err := w.Flush(); err != nil {
			break
		}
		if c.closed {
			break
		}
	}
	s.Log.Infof("client %d disconnected", id)
}

// dispatch resolves the owning shard for args and runs the command on it,
// exactly the router described in spec §4.5: the shard owning args[1] (by
// dash's own hash function, so routing and storage placement always
// agree), or any shard for a NoKey command, or shard 0 unconditionally
// when --num_shards=1.
func (s *Server) dispatch(c *conn, entry *clientEntry, args []obj.Obj) []byte {
	name := strings.ToUpper(string(args[0].AsString()))

	if name == "QUIT" {
		c.closed = true
		return resp.OK
	}

	cmd, ok := s.Commands.Lookup(name)
	sh := s.routeShard(cmd, ok, args)
	s.Clients.Touch(entry, name, c.dbIndex)

	result, err := shard.RunOn(sh, func(db *store.Database) []byte {
		db.Select(c.dbIndex)
		ctx := &command.Context{
			DB:              db,
			Shard:           sh,
			Registry:        s.Shards,
			Server:          s,
			ClientID:        c.id,
			Addr:            c.addr,
			DBIndex:         &c.dbIndex,
			ConnName:        &c.name,
			CloseAfterReply: &c.closed,
		}
		return s.Commands.Execute(ctx, args)
	})
	if err != nil {
		return resp.MakeError("ERR " + err.Error())
	}
	return result
}

// routeShard implements the key-hash/NoKey/single-shard routing rule.
func (s *Server) routeShard(cmd *command.Command, known bool, args []obj.Obj) *shard.Shard {
	if s.Shards.NumShards() == 1 {
		return s.Shards.Shard(0)
	}
	if !known || cmd.Flags&command.NoKey != 0 || len(args) < 2 {
		if cur := shard.CurrentShard(); cur != nil {
			return cur
		}
		return s.Shards.Shard(0)
	}
	return s.Shards.Owner(dash.HashKey(args[1]))
}
