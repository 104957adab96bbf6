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
	"math/rand"
	"strconv"

	"github.com/launix-de/nanoredis/obj"
	"github.com/launix-de/nanoredis/resp"
)

func init() {
	Register(Command{"HSET", -4, Write, "set one or more fields in a hash", cmdHSet})
	Register(Command{"HSETNX", 4, Write, "set a hash field, only if it does not already exist", cmdHSetNX})
	Register(Command{"HGET", 3, ReadOnly, "get the value of a hash field", cmdHGet})
	Register(Command{"HDEL", -3, Write, "delete one or more hash fields", cmdHDel})
	Register(Command{"HLEN", 2, ReadOnly, "get the number of fields in a hash", cmdHLen})
	Register(Command{"HEXISTS", 3, ReadOnly, "determine if a hash field exists", cmdHExists})
	Register(Command{"HGETALL", 2, ReadOnly, "get all fields and values in a hash", cmdHGetAll})
	Register(Command{"HKEYS", 2, ReadOnly, "get all field names in a hash", cmdHKeys})
	Register(Command{"HVALS", 2, ReadOnly, "get all values in a hash", cmdHVals})
	Register(Command{"HMSET", -4, Write, "set multiple hash fields (legacy alias of HSET)", cmdHMSet})
	Register(Command{"HMGET", -3, ReadOnly, "get the values of multiple hash fields", cmdHMGet})
	Register(Command{"HINCRBY", 4, Write, "increment the integer value of a hash field", cmdHIncrBy})
	Register(Command{"HINCRBYFLOAT", 4, Write, "increment the float value of a hash field", cmdHIncrByFloat})
	Register(Command{"HRANDFIELD", -2, ReadOnly, "get one or more random fields from a hash", cmdHRandField})
	Register(Command{"HSTRLEN", 3, ReadOnly, "get the length of the value of a hash field", cmdHStrlen})
	Register(Command{"HSCAN", -3, ReadOnly, "incrementally iterate hash fields and values", cmdHScan})
}

func cmdHStrlen(ctx *Context, args []obj.Obj) []byte {
	h, ok := hashOf(ctx, args[1])
	if !ok {
		return resp.MakeInteger(0)
	}
	v, exists := h.Get(argStr(args, 2))
	if !exists {
		return resp.MakeInteger(0)
	}
	return resp.MakeInteger(int64(len(v)))
}

// cmdHScan pages through a hash's fields in a stable, btree-sorted order
// (see command/helpers.go's scanItem/sortScanItems): the cursor is the
// offset into that sorted sequence, so two HSCAN calls against an
// unmodified hash always resume correctly even though obj.Hash iterates its
// backing Go map in random order.
func cmdHScan(ctx *Context, args []obj.Obj) []byte {
	cursor := string(argStr(args, 2))
	h, ok := hashOf(ctx, args[1])
	if !ok {
		reply := resp.MakeArrayHeader(2)
		reply = append(reply, resp.MakeBulkString([]byte("0"))...)
		reply = append(reply, resp.EmptyArray...)
		return reply
	}
	pattern := ""
	count := 0
	for i := 3; i < len(args); i++ {
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
	var items []scanItem
	h.ForEach(func(field, value []byte) bool {
		if pattern != "" {
			if ok, _ := globMatch(pattern, string(field)); !ok {
				return true
			}
		}
		items = append(items, scanItem{key: field, payload: [][]byte{field, value}})
		return true
	})
	sorted := sortScanItems(items)
	start, end, next := scanCursorPage(len(sorted), cursor, count)
	reply := resp.MakeArrayHeader(2)
	reply = append(reply, resp.MakeBulkString([]byte(next))...)
	var out [][]byte
	for _, pair := range sorted[start:end] {
		out = append(out, pair[0], pair[1])
	}
	reply = append(reply, replyArrayOfBulk(out)...)
	return reply
}

// hashOf fetches the hash at key, reporting false when the key is absent; it
// never creates one (hashOfOrCreate below stores a fresh empty hash via
// ctx.DB.Set for mutating handlers).
func hashOf(ctx *Context, key obj.Obj) (*obj.Hash, bool) {
	v, ok := ctx.DB.Get(key)
	if !ok {
		return nil, false
	}
	requireType(v, obj.TypeHash)
	return v.Hash(), true
}

func hashOfOrCreate(ctx *Context, key obj.Obj) *obj.Hash {
	h, ok := hashOf(ctx, key)
	if ok {
		return h
	}
	h = obj.NewHash()
	ctx.DB.Set(key, obj.FromHash(h))
	return h
}

func cmdHSet(ctx *Context, args []obj.Obj) []byte {
	if (len(args)-2)%2 != 0 {
		userErrorf("wrong number of arguments for 'hset' command")
	}
	h := hashOfOrCreate(ctx, args[1])
	var added int64
	for i := 2; i < len(args); i += 2 {
		if h.Set(argStr(args, i), argStr(args, i+1)) {
			added++
		}
	}
	return resp.MakeInteger(added)
}

func cmdHMSet(ctx *Context, args []obj.Obj) []byte {
	if (len(args)-2)%2 != 0 {
		userErrorf("wrong number of arguments for 'hmset' command")
	}
	h := hashOfOrCreate(ctx, args[1])
	for i := 2; i < len(args); i += 2 {
		h.Set(argStr(args, i), argStr(args, i+1))
	}
	return resp.OK
}

func cmdHSetNX(ctx *Context, args []obj.Obj) []byte {
	h := hashOfOrCreate(ctx, args[1])
	if _, exists := h.Get(argStr(args, 2)); exists {
		return resp.MakeInteger(0)
	}
	h.Set(argStr(args, 2), argStr(args, 3))
	return resp.MakeInteger(1)
}

func cmdHGet(ctx *Context, args []obj.Obj) []byte {
	h, ok := hashOf(ctx, args[1])
	if !ok {
		return resp.NullBulk
	}
	v, exists := h.Get(argStr(args, 2))
	if !exists {
		return resp.NullBulk
	}
	return resp.MakeBulkString(v)
}

func cmdHDel(ctx *Context, args []obj.Obj) []byte {
	h, ok := hashOf(ctx, args[1])
	if !ok {
		return resp.MakeInteger(0)
	}
	var n int64
	for i := 2; i < len(args); i++ {
		if h.Del(argStr(args, i)) {
			n++
		}
	}
	if h.Len() == 0 {
		ctx.DB.Del(args[1])
	}
	return resp.MakeInteger(n)
}

func cmdHLen(ctx *Context, args []obj.Obj) []byte {
	h, ok := hashOf(ctx, args[1])
	if !ok {
		return resp.MakeInteger(0)
	}
	return resp.MakeInteger(int64(h.Len()))
}

func cmdHExists(ctx *Context, args []obj.Obj) []byte {
	h, ok := hashOf(ctx, args[1])
	if !ok {
		return resp.MakeInteger(0)
	}
	_, exists := h.Get(argStr(args, 2))
	return replyBool(exists)
}

func cmdHGetAll(ctx *Context, args []obj.Obj) []byte {
	h, ok := hashOf(ctx, args[1])
	if !ok {
		return resp.EmptyArray
	}
	out := resp.MakeArrayHeader(h.Len() * 2)
	h.ForEach(func(field, value []byte) bool {
		out = append(out, resp.MakeBulkString(field)...)
		out = append(out, resp.MakeBulkString(value)...)
		return true
	})
	return out
}

func cmdHKeys(ctx *Context, args []obj.Obj) []byte {
	h, ok := hashOf(ctx, args[1])
	if !ok {
		return resp.EmptyArray
	}
	var fields [][]byte
	h.ForEach(func(field, value []byte) bool {
		fields = append(fields, field)
		return true
	})
	return replyArrayOfBulk(fields)
}

func cmdHVals(ctx *Context, args []obj.Obj) []byte {
	h, ok := hashOf(ctx, args[1])
	if !ok {
		return resp.EmptyArray
	}
	var vals [][]byte
	h.ForEach(func(field, value []byte) bool {
		vals = append(vals, value)
		return true
	})
	return replyArrayOfBulk(vals)
}

func cmdHMGet(ctx *Context, args []obj.Obj) []byte {
	h, ok := hashOf(ctx, args[1])
	out := resp.MakeArrayHeader(len(args) - 2)
	for i := 2; i < len(args); i++ {
		if !ok {
			out = append(out, resp.NullBulk...)
			continue
		}
		v, exists := h.Get(argStr(args, i))
		if !exists {
			out = append(out, resp.NullBulk...)
			continue
		}
		out = append(out, resp.MakeBulkString(v)...)
	}
	return out
}

func cmdHIncrBy(ctx *Context, args []obj.Obj) []byte {
	h := hashOfOrCreate(ctx, args[1])
	delta := argInt(args, 3)
	var cur int64
	if v, exists := h.Get(argStr(args, 2)); exists {
		n, err := strconv.ParseInt(string(v), 10, 64)
		if err != nil {
			panic(NotIntegerError{})
		}
		cur = n
	}
	next := cur + delta
	h.Set(argStr(args, 2), []byte(strconv.FormatInt(next, 10)))
	return resp.MakeInteger(next)
}

func cmdHIncrByFloat(ctx *Context, args []obj.Obj) []byte {
	h := hashOfOrCreate(ctx, args[1])
	delta := parseFloatArg(args, 3)
	var cur float64
	if v, exists := h.Get(argStr(args, 2)); exists {
		f, err := parseFloatBytes(v)
		if err != nil {
			panic(UserError("hash value is not a float"))
		}
		cur = f
	}
	next := cur + delta
	encoded := formatFloat(next)
	h.Set(argStr(args, 2), encoded)
	return resp.MakeBulkString(encoded)
}

func cmdHRandField(ctx *Context, args []obj.Obj) []byte {
	h, ok := hashOf(ctx, args[1])
	if !ok {
		if len(args) > 2 {
			return resp.EmptyArray
		}
		return resp.NullBulk
	}
	var fields [][]byte
	h.ForEach(func(field, value []byte) bool {
		fields = append(fields, field)
		return true
	})
	if len(args) == 2 {
		if len(fields) == 0 {
			return resp.NullBulk
		}
		return resp.MakeBulkString(fields[rand.Intn(len(fields))])
	}

	count := int(argInt(args, 2))
	withValues := len(args) > 3 && argUpper(args, 3) == "WITHVALUES"
	var picked [][]byte
	if count >= 0 {
		rand.Shuffle(len(fields), func(i, j int) { fields[i], fields[j] = fields[j], fields[i] })
		if count > len(fields) {
			count = len(fields)
		}
		picked = fields[:count]
	} else {
		n := -count
		picked = make([][]byte, n)
		for i := range picked {
			if len(fields) == 0 {
				picked[i] = nil
				continue
			}
			picked[i] = fields[rand.Intn(len(fields))]
		}
	}
	if !withValues {
		return replyArrayOfBulk(picked)
	}
	out := resp.MakeArrayHeader(len(picked) * 2)
	for _, f := range picked {
		v, _ := h.Get(f)
		out = append(out, resp.MakeBulkString(f)...)
		out = append(out, resp.MakeBulkString(v)...)
	}
	return out
}
