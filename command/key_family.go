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
	"path/filepath"
	"strconv"

	"github.com/launix-de/nanoredis/obj"
	"github.com/launix-de/nanoredis/resp"
	"github.com/launix-de/nanoredis/shard"
	"github.com/launix-de/nanoredis/store"
)

func init() {
	Register(Command{"DEL", -2, Write, "delete one or more keys", cmdDel})
	Register(Command{"UNLINK", -2, Write, "delete one or more keys (alias of DEL)", cmdDel})
	Register(Command{"EXISTS", -2, ReadOnly, "count how many of the given keys exist", cmdExists})
	Register(Command{"EXPIRE", 3, Write, "set a key's time to live in seconds", cmdExpire})
	Register(Command{"PEXPIRE", 3, Write, "set a key's time to live in milliseconds", cmdPExpire})
	Register(Command{"EXPIREAT", 3, Write, "set the expiration for a key as a UNIX timestamp", cmdExpireAt})
	Register(Command{"PEXPIREAT", 3, Write, "set the expiration for a key as a UNIX timestamp in ms", cmdPExpireAt})
	Register(Command{"TTL", 2, ReadOnly, "get the time to live for a key in seconds", cmdTTL})
	Register(Command{"PTTL", 2, ReadOnly, "get the time to live for a key in milliseconds", cmdPTTL})
	Register(Command{"PERSIST", 2, Write, "remove the expiration from a key", cmdPersist})
	Register(Command{"TYPE", 2, ReadOnly, "determine the type stored at a key", cmdType})
	Register(Command{"KEYS", 2, ReadOnly, "find all keys matching a glob-style pattern", cmdKeys})
	Register(Command{"RANDOMKEY", 1, ReadOnly, "return a random key from the currently selected database", cmdRandomKey})
	Register(Command{"RENAME", 3, Write, "rename a key", cmdRename})
	Register(Command{"RENAMENX", 3, Write, "rename a key, only if the new name does not exist", cmdRenameNX})
	Register(Command{"DBSIZE", 1, ReadOnly, "return the number of keys in the selected database", cmdDBSize})
	Register(Command{"FLUSHDB", -1, Write, "remove all keys from the selected database", cmdFlushDB})
	Register(Command{"FLUSHALL", -1, Write, "remove all keys from all databases on every shard", cmdFlushAll})
	Register(Command{"SELECT", 2, NoKey, "change the selected database", cmdSelect})
	Register(Command{"SCAN", -2, NoKey | ReadOnly, "incrementally iterate the key space", cmdScan})
}

func cmdDel(ctx *Context, args []obj.Obj) []byte {
	var n int64
	for i := 1; i < len(args); i++ {
		if ctx.DB.Del(args[i]) {
			n++
		}
	}
	return resp.MakeInteger(n)
}

func cmdExists(ctx *Context, args []obj.Obj) []byte {
	var n int64
	for i := 1; i < len(args); i++ {
		if ctx.DB.Exists(args[i]) {
			n++
		}
	}
	return resp.MakeInteger(n)
}

func cmdExpire(ctx *Context, args []obj.Obj) []byte {
	return replyBool(ctx.DB.Expire(args[1], argInt(args, 2)*1000))
}
func cmdPExpire(ctx *Context, args []obj.Obj) []byte {
	return replyBool(ctx.DB.Expire(args[1], argInt(args, 2)))
}
func cmdExpireAt(ctx *Context, args []obj.Obj) []byte {
	return replyBool(ctx.DB.ExpireAt(args[1], argInt(args, 2)*1000))
}
func cmdPExpireAt(ctx *Context, args []obj.Obj) []byte {
	return replyBool(ctx.DB.ExpireAt(args[1], argInt(args, 2)))
}

func cmdTTL(ctx *Context, args []obj.Obj) []byte {
	ms := ctx.DB.TTL(args[1])
	switch ms {
	case store.NoKey:
		return resp.MakeInteger(-2)
	case store.NoExpire:
		return resp.MakeInteger(-1)
	default:
		return resp.MakeInteger((ms + 999) / 1000)
	}
}

func cmdPTTL(ctx *Context, args []obj.Obj) []byte {
	ms := ctx.DB.TTL(args[1])
	switch ms {
	case store.NoKey:
		return resp.MakeInteger(-2)
	case store.NoExpire:
		return resp.MakeInteger(-1)
	default:
		return resp.MakeInteger(ms)
	}
}

func cmdPersist(ctx *Context, args []obj.Obj) []byte {
	return replyBool(ctx.DB.Persist(args[1]))
}

func cmdType(ctx *Context, args []obj.Obj) []byte {
	v, ok := ctx.DB.Get(args[1])
	if !ok {
		return resp.MakeSimpleString("none")
	}
	switch v.GetType() {
	case obj.TypeString, obj.TypeInt:
		return resp.MakeSimpleString("string")
	case obj.TypeHash:
		return resp.MakeSimpleString("hash")
	case obj.TypeSet:
		return resp.MakeSimpleString("set")
	case obj.TypeList:
		return resp.MakeSimpleString("list")
	default:
		return resp.MakeSimpleString("none")
	}
}

func cmdKeys(ctx *Context, args []obj.Obj) []byte {
	pattern := string(args[1].AsString())
	var matched [][]byte
	for _, k := range ctx.DB.MainTable().SortedKeys() {
		if ok, _ := filepath.Match(pattern, string(k.AsString())); ok {
			matched = append(matched, k.AsString())
		}
	}
	return replyArrayOfBulk(matched)
}

// cmdScan incrementally walks the whole keyspace across every shard, one
// shard's dash.Table.SortedKeys() page at a time. The cursor is
// "<shardIdx>:<offset>" (see decodeScanCursor/encodeScanCursor):
// once a shard's keys are exhausted the cursor advances to the next shard
// at offset 0, and "0" signals the walk is complete. Because keys are
// sharded (spec §4.4/§4.5), a single shard's SortedKeys pass never sees
// another shard's keys, so SCAN must explicitly visit every shard rather
// than relying on the router to have picked the "right" one.
func cmdScan(ctx *Context, args []obj.Obj) []byte {
	shardIdx, offset := decodeScanCursor(string(argStr(args, 1)))
	pattern := ""
	count := 0
	for i := 2; i < len(args); i++ {
		switch argUpper(args, i) {
		case "MATCH":
			if i+1 < len(args) {
				pattern = string(argStr(args, i+1))
				i++
			}
		case "COUNT":
			if i+1 < len(args) {
				count = int(argInt(args, i+1))
				i++
			}
		}
	}
	dbIndex := *ctx.DBIndex
	numShards := ctx.Registry.NumShards()
	for shardIdx < numShards {
		sh := ctx.Registry.Shard(shardIdx)
		sorted, _ := shard.RunOn(sh, func(db *store.Database) []obj.Obj {
			prev := db.CurrentDB()
			db.Select(dbIndex)
			keys := db.MainTable().SortedKeys()
			db.Select(prev)
			return keys
		})
		start, end, next := scanCursorPage(len(sorted), strconv.Itoa(offset), count)
		var matched [][]byte
		for _, k := range sorted[start:end] {
			b := k.AsString()
			if pattern != "" {
				if ok, _ := globMatch(pattern, string(b)); !ok {
					continue
				}
			}
			matched = append(matched, b)
		}
		if next != "0" {
			return scanReply(encodeScanCursor(shardIdx, next), matched)
		}
		shardIdx++
		offset = 0
		if len(matched) > 0 || shardIdx >= numShards {
			cursor := "0"
			if shardIdx < numShards {
				cursor = encodeScanCursor(shardIdx, "0")
			}
			return scanReply(cursor, matched)
		}
	}
	return scanReply("0", nil)
}

func scanReply(cursor string, matched [][]byte) []byte {
	reply := resp.MakeArrayHeader(2)
	reply = append(reply, resp.MakeBulkString([]byte(cursor))...)
	reply = append(reply, replyArrayOfBulk(matched)...)
	return reply
}

func cmdRandomKey(ctx *Context, args []obj.Obj) []byte {
	k, ok := ctx.DB.RandomKey()
	if !ok {
		return resp.NullBulk
	}
	return resp.MakeBulkString(k.AsString())
}

func cmdRename(ctx *Context, args []obj.Obj) []byte {
	v, ok := ctx.DB.Get(args[1])
	if !ok {
		userErrorf("no such key")
	}
	ttl := ctx.DB.TTL(args[1])
	ctx.DB.Del(args[1])
	ctx.DB.Set(args[2], v)
	if ttl >= 0 {
		ctx.DB.Expire(args[2], ttl)
	}
	return resp.OK
}

func cmdRenameNX(ctx *Context, args []obj.Obj) []byte {
	if ctx.DB.Exists(args[2]) {
		return resp.MakeInteger(0)
	}
	v, ok := ctx.DB.Get(args[1])
	if !ok {
		userErrorf("no such key")
	}
	ttl := ctx.DB.TTL(args[1])
	ctx.DB.Del(args[1])
	ctx.DB.Set(args[2], v)
	if ttl >= 0 {
		ctx.DB.Expire(args[2], ttl)
	}
	return resp.MakeInteger(1)
}

func cmdDBSize(ctx *Context, args []obj.Obj) []byte {
	return resp.MakeInteger(int64(ctx.DB.KeyCount()))
}

func cmdFlushDB(ctx *Context, args []obj.Obj) []byte {
	ctx.DB.Flush()
	return resp.OK
}

// cmdFlushAll clears every database slot on every shard of the registry, not
// just the caller's own shard, fanning out via shard.RunOn (spec §6
// FLUSHALL "clears the whole keyspace, all shards, all DBs").
func cmdFlushAll(ctx *Context, args []obj.Obj) []byte {
	for i := 0; i < ctx.Registry.NumShards(); i++ {
		sh := ctx.Registry.Shard(i)
		shard.RunOn(sh, func(db *store.Database) any {
			db.ForEachSlot(func(int) { db.Flush() })
			return nil
		})
	}
	return resp.OK
}

func cmdSelect(ctx *Context, args []obj.Obj) []byte {
	n := int(argInt(args, 1))
	if err := ctx.DB.Select(n); err != nil {
		userErrorf("DB index is out of range")
	}
	*ctx.DBIndex = n
	return resp.OK
}
