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
	Register(Command{"LPUSH", -3, Write, "prepend one or more elements to a list", cmdLPush})
	Register(Command{"RPUSH", -3, Write, "append one or more elements to a list", cmdRPush})
	Register(Command{"LPUSHX", -3, Write, "prepend an element to a list, only if the list exists", cmdLPushX})
	Register(Command{"RPUSHX", -3, Write, "append an element to a list, only if the list exists", cmdRPushX})
	Register(Command{"LPOP", -2, Write, "remove and return the first element(s) of a list", cmdLPop})
	Register(Command{"RPOP", -2, Write, "remove and return the last element(s) of a list", cmdRPop})
	Register(Command{"LLEN", 2, ReadOnly, "get the length of a list", cmdLLen})
	Register(Command{"LRANGE", 4, ReadOnly, "get a range of elements from a list", cmdLRange})
	Register(Command{"LINDEX", 3, ReadOnly, "get an element from a list by its index", cmdLIndex})
	Register(Command{"LSET", 4, Write, "set the value of an element in a list by its index", cmdLSet})
	Register(Command{"LREM", 4, Write, "remove elements from a list", cmdLRem})
	Register(Command{"LTRIM", 4, Write, "trim a list to the specified range", cmdLTrim})
	Register(Command{"LINSERT", 5, Write, "insert an element before or after another element in a list", cmdLInsert})
	Register(Command{"RPOPLPUSH", 3, Write, "remove the last element of a list and push it to the head of another", cmdRPopLPush})
}

func listOf(ctx *Context, key obj.Obj) (*obj.List, bool) {
	v, ok := ctx.DB.Get(key)
	if !ok {
		return nil, false
	}
	requireType(v, obj.TypeList)
	return v.List(), true
}

func listOfOrCreate(ctx *Context, key obj.Obj) *obj.List {
	l, ok := listOf(ctx, key)
	if ok {
		return l
	}
	l = obj.NewList()
	ctx.DB.Set(key, obj.FromList(l))
	return l
}

func cmdLPush(ctx *Context, args []obj.Obj) []byte {
	l := listOfOrCreate(ctx, args[1])
	for i := 2; i < len(args); i++ {
		l.PushLeft(argStr(args, i))
	}
	return resp.MakeInteger(int64(l.Len()))
}

func cmdRPush(ctx *Context, args []obj.Obj) []byte {
	l := listOfOrCreate(ctx, args[1])
	for i := 2; i < len(args); i++ {
		l.PushRight(argStr(args, i))
	}
	return resp.MakeInteger(int64(l.Len()))
}

func cmdLPushX(ctx *Context, args []obj.Obj) []byte {
	l, ok := listOf(ctx, args[1])
	if !ok {
		return resp.MakeInteger(0)
	}
	for i := 2; i < len(args); i++ {
		l.PushLeft(argStr(args, i))
	}
	return resp.MakeInteger(int64(l.Len()))
}

func cmdRPushX(ctx *Context, args []obj.Obj) []byte {
	l, ok := listOf(ctx, args[1])
	if !ok {
		return resp.MakeInteger(0)
	}
	for i := 2; i < len(args); i++ {
		l.PushRight(argStr(args, i))
	}
	return resp.MakeInteger(int64(l.Len()))
}

func popCount(args []obj.Obj) int {
	if len(args) > 2 {
		return int(argInt(args, 2))
	}
	return 1
}

func cmdLPop(ctx *Context, args []obj.Obj) []byte {
	l, ok := listOf(ctx, args[1])
	if !ok {
		if len(args) > 2 {
			return resp.NullBulk
		}
		return resp.NullBulk
	}
	n := popCount(args)
	var popped [][]byte
	for i := 0; i < n; i++ {
		v, ok := l.PopLeft()
		if !ok {
			break
		}
		popped = append(popped, v)
	}
	if l.Len() == 0 {
		ctx.DB.Del(args[1])
	}
	if len(args) == 2 {
		if len(popped) == 0 {
			return resp.NullBulk
		}
		return resp.MakeBulkString(popped[0])
	}
	return replyArrayOfBulk(popped)
}

func cmdRPop(ctx *Context, args []obj.Obj) []byte {
	l, ok := listOf(ctx, args[1])
	if !ok {
		return resp.NullBulk
	}
	n := popCount(args)
	var popped [][]byte
	for i := 0; i < n; i++ {
		v, ok := l.PopRight()
		if !ok {
			break
		}
		popped = append(popped, v)
	}
	if l.Len() == 0 {
		ctx.DB.Del(args[1])
	}
	if len(args) == 2 {
		if len(popped) == 0 {
			return resp.NullBulk
		}
		return resp.MakeBulkString(popped[0])
	}
	return replyArrayOfBulk(popped)
}

func cmdLLen(ctx *Context, args []obj.Obj) []byte {
	l, ok := listOf(ctx, args[1])
	if !ok {
		return resp.MakeInteger(0)
	}
	return resp.MakeInteger(int64(l.Len()))
}

func cmdLRange(ctx *Context, args []obj.Obj) []byte {
	l, ok := listOf(ctx, args[1])
	if !ok {
		return resp.EmptyArray
	}
	start := int(argInt(args, 2))
	stop := int(argInt(args, 3))
	return replyArrayOfBulk(l.Range(start, stop))
}

func cmdLIndex(ctx *Context, args []obj.Obj) []byte {
	l, ok := listOf(ctx, args[1])
	if !ok {
		return resp.NullBulk
	}
	v, ok := l.Index(int(argInt(args, 2)))
	if !ok {
		return resp.NullBulk
	}
	return resp.MakeBulkString(v)
}

func cmdLSet(ctx *Context, args []obj.Obj) []byte {
	l, ok := listOf(ctx, args[1])
	if !ok {
		userErrorf("no such key")
	}
	if !l.Set(int(argInt(args, 2)), argStr(args, 3)) {
		userErrorf("index out of range")
	}
	return resp.OK
}

func cmdLRem(ctx *Context, args []obj.Obj) []byte {
	l, ok := listOf(ctx, args[1])
	if !ok {
		return resp.MakeInteger(0)
	}
	count := int(argInt(args, 2))
	target := argStr(args, 3)
	all := l.All()
	var kept [][]byte
	var removed int64
	matchEqual := func(v []byte) bool { return string(v) == string(target) }

	switch {
	case count == 0:
		for _, v := range all {
			if matchEqual(v) {
				removed++
				continue
			}
			kept = append(kept, v)
		}
	case count > 0:
		for _, v := range all {
			if removed < int64(count) && matchEqual(v) {
				removed++
				continue
			}
			kept = append(kept, v)
		}
	default:
		n := -count
		for i := len(all) - 1; i >= 0; i-- {
			v := all[i]
			if removed < int64(n) && matchEqual(v) {
				removed++
				continue
			}
			kept = append([][]byte{v}, kept...)
		}
	}

	fresh := obj.NewList()
	for _, v := range kept {
		fresh.PushRight(v)
	}
	if fresh.Len() == 0 {
		ctx.DB.Del(args[1])
	} else {
		ctx.DB.Set(args[1], obj.FromList(fresh))
	}
	return resp.MakeInteger(removed)
}

func cmdLTrim(ctx *Context, args []obj.Obj) []byte {
	l, ok := listOf(ctx, args[1])
	if !ok {
		return resp.OK
	}
	l.Trim(int(argInt(args, 2)), int(argInt(args, 3)))
	if l.Len() == 0 {
		ctx.DB.Del(args[1])
	}
	return resp.OK
}

func cmdLInsert(ctx *Context, args []obj.Obj) []byte {
	l, ok := listOf(ctx, args[1])
	if !ok {
		return resp.MakeInteger(0)
	}
	before := argUpper(args, 2) == "BEFORE"
	if !before && argUpper(args, 2) != "AFTER" {
		userErrorf("syntax error")
	}
	pivot := string(argStr(args, 3))
	all := l.All()
	idx := -1
	for i, v := range all {
		if string(v) == pivot {
			idx = i
			break
		}
	}
	if idx == -1 {
		return resp.MakeInteger(-1)
	}
	at := idx
	if !before {
		at = idx + 1
	}
	l.InsertAt(at, argStr(args, 4))
	return resp.MakeInteger(int64(l.Len()))
}

func cmdRPopLPush(ctx *Context, args []obj.Obj) []byte {
	src, ok := listOf(ctx, args[1])
	if !ok {
		return resp.NullBulk
	}
	v, ok := src.PopRight()
	if !ok {
		return resp.NullBulk
	}
	if src.Len() == 0 {
		ctx.DB.Del(args[1])
	}
	dst := listOfOrCreate(ctx, args[2])
	dst.PushLeft(v)
	return resp.MakeBulkString(v)
}
