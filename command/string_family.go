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
	"github.com/launix-de/nanoredis/obj"
	"github.com/launix-de/nanoredis/resp"
)

func init() {
	Register(Command{"GET", 2, ReadOnly, "get the string value of a key", cmdGet})
	Register(Command{"SET", -3, Write, "set the string value of a key, with options", cmdSet})
	Register(Command{"SETNX", 3, Write, "set a key only if it does not exist", cmdSetNX})
	Register(Command{"SETEX", 4, Write, "set a key with a relative TTL in seconds", cmdSetEX})
	Register(Command{"PSETEX", 4, Write, "set a key with a relative TTL in milliseconds", cmdPSetEX})
	Register(Command{"GETSET", 3, Write, "set a key, returning its previous value", cmdGetSet})
	Register(Command{"GETDEL", 2, Write, "get a key's value and delete it", cmdGetDel})
	Register(Command{"GETEX", -2, Write, "get a key's value, optionally changing its TTL", cmdGetEx})
	Register(Command{"APPEND", 3, Write, "append to the string value of a key", cmdAppend})
	Register(Command{"STRLEN", 2, ReadOnly, "get the length of the string value of a key", cmdStrlen})
	Register(Command{"INCR", 2, Write, "increment the integer value of a key by one", cmdIncr})
	Register(Command{"DECR", 2, Write, "decrement the integer value of a key by one", cmdDecr})
	Register(Command{"INCRBY", 3, Write, "increment the integer value of a key by the given amount", cmdIncrBy})
	Register(Command{"DECRBY", 3, Write, "decrement the integer value of a key by the given amount", cmdDecrBy})
	Register(Command{"INCRBYFLOAT", 3, Write, "increment the float value of a key by the given amount", cmdIncrByFloat})
	Register(Command{"MSET", -3, Write, "set multiple keys to multiple values", cmdMSet})
	Register(Command{"MGET", -2, ReadOnly, "get the values of all the given keys", cmdMGet})
	Register(Command{"MSETNX", -3, Write, "set multiple keys, only if none exist", cmdMSetNX})
	Register(Command{"COPY", -3, Write, "copy the value of a key to another key", cmdCopy})
	Register(Command{"GETRANGE", 4, ReadOnly, "get a substring of the string stored at a key", cmdGetRange})
	Register(Command{"SETRANGE", 4, Write, "overwrite part of a string at key starting at the given offset", cmdSetRange})
}

func cmdGet(ctx *Context, args []obj.Obj) []byte {
	v, ok := ctx.DB.Get(args[1])
	if ok {
		requireString(v)
	}
	return replyBulk(v, ok)
}

func cmdSet(ctx *Context, args []obj.Obj) []byte {
	key, val := args[1], args[2]
	var nx, xx, keepttl, getOld bool
	var ttlMs int64 = -1
	haveTTL := false

	for i := 3; i < len(args); i++ {
		switch argUpper(args, i) {
		case "NX":
			nx = true
		case "XX":
			xx = true
		case "KEEPTTL":
			keepttl = true
		case "GET":
			getOld = true
		case "EX":
			i++
			if i >= len(args) {
				userErrorf("syntax error")
			}
			ttlMs = argInt(args, i) * 1000
			haveTTL = true
		case "PX":
			i++
			if i >= len(args) {
				userErrorf("syntax error")
			}
			ttlMs = argInt(args, i)
			haveTTL = true
		case "EXAT":
			i++
			if i >= len(args) {
				userErrorf("syntax error")
			}
			ttlMs = argInt(args, i)*1000 - ctx.Server.Now()
			haveTTL = true
		case "PXAT":
			i++
			if i >= len(args) {
				userErrorf("syntax error")
			}
			ttlMs = argInt(args, i) - ctx.Server.Now()
			haveTTL = true
		default:
			userErrorf("syntax error")
		}
	}

	old, existed := ctx.DB.Get(key)
	if existed {
		requireString(old)
	}
	if nx && existed {
		if getOld {
			return replyBulk(old, true)
		}
		return resp.NullBulk
	}
	if xx && !existed {
		if getOld {
			return resp.NullBulk
		}
		return resp.NullBulk
	}

	priorTTL := ctx.DB.TTL(key)
	ctx.DB.Set(key, val)
	if haveTTL {
		ctx.DB.Expire(key, ttlMs)
	} else if keepttl && existed && priorTTL >= 0 {
		ctx.DB.Expire(key, priorTTL)
	}

	if getOld {
		return replyBulk(old, existed)
	}
	return resp.OK
}

func cmdSetNX(ctx *Context, args []obj.Obj) []byte {
	if ctx.DB.Exists(args[1]) {
		return resp.MakeInteger(0)
	}
	ctx.DB.Set(args[1], args[2])
	return resp.MakeInteger(1)
}

func cmdSetEX(ctx *Context, args []obj.Obj) []byte {
	secs := argInt(args, 2)
	if secs <= 0 {
		userErrorf("invalid expire time in 'setex' command")
	}
	ctx.DB.Set(args[1], args[3])
	ctx.DB.Expire(args[1], secs*1000)
	return resp.OK
}

func cmdPSetEX(ctx *Context, args []obj.Obj) []byte {
	ms := argInt(args, 2)
	if ms <= 0 {
		userErrorf("invalid expire time in 'psetex' command")
	}
	ctx.DB.Set(args[1], args[3])
	ctx.DB.Expire(args[1], ms)
	return resp.OK
}

func cmdGetSet(ctx *Context, args []obj.Obj) []byte {
	old, existed := ctx.DB.Get(args[1])
	if existed {
		requireString(old)
	}
	ctx.DB.Set(args[1], args[2])
	return replyBulk(old, existed)
}

func cmdGetDel(ctx *Context, args []obj.Obj) []byte {
	v, ok := ctx.DB.Get(args[1])
	if ok {
		requireString(v)
		ctx.DB.Del(args[1])
	}
	return replyBulk(v, ok)
}

func cmdGetEx(ctx *Context, args []obj.Obj) []byte {
	v, ok := ctx.DB.Get(args[1])
	if !ok {
		return resp.NullBulk
	}
	requireString(v)
	for i := 2; i < len(args); i++ {
		switch argUpper(args, i) {
		case "PERSIST":
			ctx.DB.Persist(args[1])
		case "EX":
			i++
			ctx.DB.Expire(args[1], argInt(args, i)*1000)
		case "PX":
			i++
			ctx.DB.Expire(args[1], argInt(args, i))
		case "EXAT":
			i++
			ctx.DB.ExpireAt(args[1], argInt(args, i)*1000)
		case "PXAT":
			i++
			ctx.DB.ExpireAt(args[1], argInt(args, i))
		default:
			userErrorf("syntax error")
		}
	}
	return replyBulk(v, true)
}

func cmdAppend(ctx *Context, args []obj.Obj) []byte {
	v, ok := ctx.DB.Get(args[1])
	if ok {
		requireString(v)
	}
	suffix := args[2].AsString()
	var merged []byte
	if ok {
		merged = append(append([]byte(nil), v.AsString()...), suffix...)
	} else {
		merged = append([]byte(nil), suffix...)
	}
	nv := obj.FromString(merged)
	ctx.DB.Set(args[1], nv)
	return resp.MakeInteger(int64(len(merged)))
}

func cmdStrlen(ctx *Context, args []obj.Obj) []byte {
	v, ok := ctx.DB.Get(args[1])
	if !ok {
		return resp.MakeInteger(0)
	}
	requireString(v)
	return resp.MakeInteger(int64(len(v.AsString())))
}

func incrByHelper(ctx *Context, key obj.Obj, delta int64) int64 {
	v, ok := ctx.DB.Get(key)
	var cur int64
	if ok {
		requireString(v)
		n, valid := v.TryAsInt()
		if !valid {
			panic(NotIntegerError{})
		}
		cur = n
	}
	next := cur + delta
	ctx.DB.Set(key, obj.FromInt(next))
	return next
}

func cmdIncr(ctx *Context, args []obj.Obj) []byte {
	return resp.MakeInteger(incrByHelper(ctx, args[1], 1))
}
func cmdDecr(ctx *Context, args []obj.Obj) []byte {
	return resp.MakeInteger(incrByHelper(ctx, args[1], -1))
}
func cmdIncrBy(ctx *Context, args []obj.Obj) []byte {
	return resp.MakeInteger(incrByHelper(ctx, args[1], argInt(args, 2)))
}
func cmdDecrBy(ctx *Context, args []obj.Obj) []byte {
	return resp.MakeInteger(incrByHelper(ctx, args[1], -argInt(args, 2)))
}

func cmdIncrByFloat(ctx *Context, args []obj.Obj) []byte {
	v, ok := ctx.DB.Get(args[1])
	var cur float64
	if ok {
		requireString(v)
		f, err := parseFloatBytes(v.AsString())
		if err != nil {
			panic(UserError("value is not a valid float"))
		}
		cur = f
	}
	next := cur + parseFloatArg(args, 2)
	nv := obj.FromString(formatFloat(next))
	ctx.DB.Set(args[1], nv)
	return resp.MakeBulkString(formatFloat(next))
}

func cmdMSet(ctx *Context, args []obj.Obj) []byte {
	if (len(args)-1)%2 != 0 {
		userErrorf("wrong number of arguments for 'mset' command")
	}
	for i := 1; i < len(args); i += 2 {
		ctx.DB.Set(args[i], args[i+1])
	}
	return resp.OK
}

func cmdMGet(ctx *Context, args []obj.Obj) []byte {
	out := resp.MakeArrayHeader(len(args) - 1)
	for i := 1; i < len(args); i++ {
		v, ok := ctx.DB.Get(args[i])
		if !ok || (v.GetType() != obj.TypeString && v.GetType() != obj.TypeInt) {
			out = append(out, resp.NullBulk...)
			continue
		}
		out = append(out, resp.MakeBulkString(v.AsString())...)
	}
	return out
}

func cmdMSetNX(ctx *Context, args []obj.Obj) []byte {
	if (len(args)-1)%2 != 0 {
		userErrorf("wrong number of arguments for 'msetnx' command")
	}
	for i := 1; i < len(args); i += 2 {
		if ctx.DB.Exists(args[i]) {
			return resp.MakeInteger(0)
		}
	}
	for i := 1; i < len(args); i += 2 {
		ctx.DB.Set(args[i], args[i+1])
	}
	return resp.MakeInteger(1)
}

func cmdCopy(ctx *Context, args []obj.Obj) []byte {
	replace := false
	for i := 3; i < len(args); i++ {
		if argUpper(args, i) == "REPLACE" {
			replace = true
		}
	}
	src, ok := ctx.DB.Get(args[1])
	if !ok {
		return resp.MakeInteger(0)
	}
	if !replace && ctx.DB.Exists(args[2]) {
		return resp.MakeInteger(0)
	}
	ctx.DB.Set(args[2], src.Clone())
	return resp.MakeInteger(1)
}

func cmdGetRange(ctx *Context, args []obj.Obj) []byte {
	v, ok := ctx.DB.Get(args[1])
	if !ok {
		return resp.MakeBulkString(nil)
	}
	requireString(v)
	s := v.AsString()
	start, stop := int(argInt(args, 2)), int(argInt(args, 3))
	n := len(s)
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || n == 0 {
		return resp.MakeBulkString(nil)
	}
	return resp.MakeBulkString(s[start : stop+1])
}

func cmdSetRange(ctx *Context, args []obj.Obj) []byte {
	offset := int(argInt(args, 2))
	if offset < 0 {
		userErrorf("offset is out of range")
	}
	patch := argStr(args, 3)
	v, ok := ctx.DB.Get(args[1])
	var cur []byte
	if ok {
		requireString(v)
		cur = v.AsString()
	}
	total := offset + len(patch)
	if total < len(cur) {
		total = len(cur)
	}
	out := make([]byte, total)
	copy(out, cur)
	copy(out[offset:], patch)
	ctx.DB.Set(args[1], obj.FromString(out))
	return resp.MakeInteger(int64(len(out)))
}
