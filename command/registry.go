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

// Package command implements the RESP command registry and the individual
// command handlers of SPEC_FULL.md §4.8/§6. A Registry is built once at
// process start and read on every request afterward, the same
// write-rarely/read-constantly shape as the teacher's scm/declare.go
// Declaration table, so it is backed by the same
// github.com/launix-de/NonLockingReadMap the teacher uses there: the map's
// O(log N) lock-free Get beats a sync.RWMutex map for a table nobody
// mutates past startup.
package command

import (
	"fmt"
	"strings"

	nonlockingreadmap "github.com/launix-de/NonLockingReadMap"

	"github.com/launix-de/nanoredis/obj"
	"github.com/launix-de/nanoredis/resp"
)

// Flags classifies a command for the router and for INFO/COMMAND
// introspection (spec §4.8).
type Flags uint8

const (
	ReadOnly Flags = 1 << iota
	Write
	Admin
	NoKey // command does not address a key at all (PING, INFO, CONFIG, ...)
)

// Handler implements one command's behavior. It may panic with a
// WrongTypeError (or any other error) instead of returning one; Execute
// recovers and formats the reply, mirroring the teacher's panic/recover
// error boundary (scm/mysql.go's ComQuery).
type Handler func(ctx *Context, args []obj.Obj) []byte

// Command is one registered command.
type Command struct {
	Name string
	// Arity follows the Redis convention: a positive number is the exact
	// argument count including the command name itself; a negative number
	// means "at least |Arity|" (a variadic command).
	Arity int
	Flags Flags
	Desc  string
	Fn    Handler
}

// GetKey satisfies NonLockingReadMap.KeyGetter.
func (c *Command) GetKey() string { return c.Name }

// ComputeSize satisfies NonLockingReadMap.Sizable; commands are static
// metadata, so a rough constant is enough (the map never asks this during
// request handling, only for optional size-accounting callers).
func (c *Command) ComputeSize() uint { return uint(len(c.Name)) + 96 }

func (c *Command) checkArity(argc int) bool {
	if c.Arity >= 0 {
		return argc == c.Arity
	}
	return argc >= -c.Arity
}

// Registry is the process-wide name -> Command table.
type Registry struct {
	m nonlockingreadmap.NonLockingReadMap[Command, string]
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{m: nonlockingreadmap.New[Command, string]()}
}

// defaultRegistry collects every command family's init()-time registration,
// mirroring the teacher's single global `declarations` map in
// scm/declare.go. DefaultRegistry returns it for wiring into the server.
var defaultRegistry = NewRegistry()

// DefaultRegistry returns the registry populated by every command family's
// init() function.
func DefaultRegistry() *Registry { return defaultRegistry }

// Register adds cmd to the default registry. Command family files call this
// from their own init(), the same self-registration pattern as the
// teacher's scm.Declare.
func Register(cmd Command) { defaultRegistry.Register(&cmd) }

// Register adds or replaces cmd under its upper-cased name.
func (r *Registry) Register(cmd *Command) {
	cmd.Name = strings.ToUpper(cmd.Name)
	r.m.Set(cmd)
}

// Lookup finds a command case-insensitively.
func (r *Registry) Lookup(name string) (*Command, bool) {
	c := r.m.Get(strings.ToUpper(name))
	return c, c != nil
}

// All returns every registered command, for COMMAND/COMMAND COUNT/help text.
func (r *Registry) All() []*Command { return r.m.GetAll() }

// Execute dispatches a parsed command line to its handler and returns a
// fully-encoded RESP reply. A malformed command name, wrong arity, or a
// handler panic are all converted to a "-ERR"/"-WRONGTYPE" reply here, never
// propagated to the caller, matching spec §7's "a command error never tears
// down the connection" rule.
func (r *Registry) Execute(ctx *Context, args []obj.Obj) []byte {
	if len(args) == 0 {
		return resp.MakeError("ERR empty command")
	}
	name := string(args[0].AsString())
	cmd, ok := r.Lookup(name)
	if !ok {
		return resp.MakeError(fmt.Sprintf("ERR unknown command '%s'", name))
	}
	if !cmd.checkArity(len(args)) {
		return resp.MakeError(fmt.Sprintf("ERR wrong number of arguments for '%s' command", strings.ToLower(cmd.Name)))
	}
	return r.invoke(cmd, ctx, args)
}

func (r *Registry) invoke(cmd *Command, ctx *Context, args []obj.Obj) (reply []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			if wte, ok := rec.(WrongTypeError); ok {
				reply = resp.MakeError("WRONGTYPE " + wte.Error())
				return
			}
			if ne, ok := rec.(NotIntegerError); ok {
				reply = resp.MakeError("ERR " + ne.Error())
				return
			}
			if ue, ok := rec.(UserError); ok {
				reply = resp.MakeError("ERR " + ue.Error())
				return
			}
			if err, ok := rec.(error); ok {
				reply = resp.MakeError(fmt.Sprintf("ERR %v", err))
				return
			}
			reply = resp.MakeError(fmt.Sprintf("ERR %v", rec))
		}
	}()
	return cmd.Fn(ctx, args)
}

// WrongTypeError is panicked by handlers that find a key holding a value of
// the wrong type for the requested operation (spec §6's WRONGTYPE error).
type WrongTypeError struct{}

func (WrongTypeError) Error() string {
	return "Operation against a key holding the wrong kind of value"
}

// NotIntegerError is panicked when a value expected to parse as an integer
// does not (e.g. INCR on a non-numeric string).
type NotIntegerError struct{}

func (NotIntegerError) Error() string {
	return "value is not an integer or out of range"
}

// UserError carries a handler-specific message for malformed arguments
// (e.g. SETEX with a non-positive TTL, SET with an unknown option).
type UserError string

func (e UserError) Error() string { return string(e) }

// wrongType panics with WrongTypeError; handlers call this instead of
// constructing the error inline.
func wrongType() { panic(WrongTypeError{}) }

// userErrorf panics with a formatted UserError.
func userErrorf(format string, args ...any) {
	panic(UserError(fmt.Sprintf(format, args...)))
}
