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

	"github.com/launix-de/nanoredis/obj"
	"github.com/launix-de/nanoredis/resp"
)

func init() {
	Register(Command{"SADD", -3, Write, "add one or more members to a set", cmdSAdd})
	Register(Command{"SREM", -3, Write, "remove one or more members from a set", cmdSRem})
	Register(Command{"SCARD", 2, ReadOnly, "get the number of members in a set", cmdSCard})
	Register(Command{"SISMEMBER", 3, ReadOnly, "determine if a member belongs to a set", cmdSIsMember})
	Register(Command{"SMISMEMBER", -3, ReadOnly, "determine membership of multiple members at once", cmdSMIsMember})
	Register(Command{"SMEMBERS", 2, ReadOnly, "get all the members in a set", cmdSMembers})
	Register(Command{"SPOP", -2, Write, "remove and return one or more random members from a set", cmdSPop})
	Register(Command{"SRANDMEMBER", -2, ReadOnly, "get one or more random members from a set", cmdSRandMember})
	Register(Command{"SMOVE", 4, Write, "move a member from one set to another", cmdSMove})
	Register(Command{"SDIFF", -2, ReadOnly, "subtract multiple sets", cmdSDiff})
	Register(Command{"SDIFFSTORE", -3, Write, "subtract multiple sets and store the result in a key", cmdSDiffStore})
	Register(Command{"SINTER", -2, ReadOnly, "intersect multiple sets", cmdSInter})
	Register(Command{"SINTERSTORE", -3, Write, "intersect multiple sets and store the result in a key", cmdSInterStore})
	Register(Command{"SUNION", -2, ReadOnly, "add multiple sets", cmdSUnion})
	Register(Command{"SUNIONSTORE", -3, Write, "add multiple sets and store the result in a key", cmdSUnionStore})
	Register(Command{"SSCAN", -3, ReadOnly, "incrementally iterate set members", cmdSScan})
}

// cmdSScan pages through a set's members in btree-sorted order; see
// cmdHScan's doc comment for the cursor model shared across the SCAN
// family.
func cmdSScan(ctx *Context, args []obj.Obj) []byte {
	cursor := string(argStr(args, 2))
	s, ok := setOf(ctx, args[1])
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
	for _, m := range s.Members() {
		if pattern != "" {
			if ok, _ := globMatch(pattern, string(m)); !ok {
				continue
			}
		}
		items = append(items, scanItem{key: m, payload: [][]byte{m}})
	}
	sorted := sortScanItems(items)
	start, end, next := scanCursorPage(len(sorted), cursor, count)
	reply := resp.MakeArrayHeader(2)
	reply = append(reply, resp.MakeBulkString([]byte(next))...)
	var out [][]byte
	for _, pair := range sorted[start:end] {
		out = append(out, pair[0])
	}
	reply = append(reply, replyArrayOfBulk(out)...)
	return reply
}

func setOf(ctx *Context, key obj.Obj) (*obj.Set, bool) {
	v, ok := ctx.DB.Get(key)
	if !ok {
		return nil, false
	}
	requireType(v, obj.TypeSet)
	return v.Set(), true
}

func setOfOrCreate(ctx *Context, key obj.Obj) *obj.Set {
	s, ok := setOf(ctx, key)
	if ok {
		return s
	}
	s = obj.NewSet()
	ctx.DB.Set(key, obj.FromSet(s))
	return s
}

func cmdSAdd(ctx *Context, args []obj.Obj) []byte {
	s := setOfOrCreate(ctx, args[1])
	var n int64
	for i := 2; i < len(args); i++ {
		if s.Add(argStr(args, i)) {
			n++
		}
	}
	return resp.MakeInteger(n)
}

func cmdSRem(ctx *Context, args []obj.Obj) []byte {
	s, ok := setOf(ctx, args[1])
	if !ok {
		return resp.MakeInteger(0)
	}
	var n int64
	for i := 2; i < len(args); i++ {
		if s.Remove(argStr(args, i)) {
			n++
		}
	}
	if s.Len() == 0 {
		ctx.DB.Del(args[1])
	}
	return resp.MakeInteger(n)
}

func cmdSCard(ctx *Context, args []obj.Obj) []byte {
	s, ok := setOf(ctx, args[1])
	if !ok {
		return resp.MakeInteger(0)
	}
	return resp.MakeInteger(int64(s.Len()))
}

func cmdSIsMember(ctx *Context, args []obj.Obj) []byte {
	s, ok := setOf(ctx, args[1])
	if !ok {
		return resp.MakeInteger(0)
	}
	return replyBool(s.Contains(argStr(args, 2)))
}

func cmdSMIsMember(ctx *Context, args []obj.Obj) []byte {
	s, ok := setOf(ctx, args[1])
	out := resp.MakeArrayHeader(len(args) - 2)
	for i := 2; i < len(args); i++ {
		present := ok && s.Contains(argStr(args, i))
		out = append(out, replyBool(present)...)
	}
	return out
}

func cmdSMembers(ctx *Context, args []obj.Obj) []byte {
	s, ok := setOf(ctx, args[1])
	if !ok {
		return resp.EmptyArray
	}
	return replyArrayOfBulk(s.Members())
}

func cmdSPop(ctx *Context, args []obj.Obj) []byte {
	s, ok := setOf(ctx, args[1])
	if !ok {
		if len(args) > 2 {
			return resp.EmptyArray
		}
		return resp.NullBulk
	}
	members := s.Members()
	if len(args) == 2 {
		if len(members) == 0 {
			return resp.NullBulk
		}
		m := members[rand.Intn(len(members))]
		s.Remove(m)
		if s.Len() == 0 {
			ctx.DB.Del(args[1])
		}
		return resp.MakeBulkString(m)
	}
	count := int(argInt(args, 2))
	if count > len(members) {
		count = len(members)
	}
	rand.Shuffle(len(members), func(i, j int) { members[i], members[j] = members[j], members[i] })
	picked := members[:count]
	for _, m := range picked {
		s.Remove(m)
	}
	if s.Len() == 0 {
		ctx.DB.Del(args[1])
	}
	return replyArrayOfBulk(picked)
}

func cmdSRandMember(ctx *Context, args []obj.Obj) []byte {
	s, ok := setOf(ctx, args[1])
	if !ok {
		if len(args) > 2 {
			return resp.EmptyArray
		}
		return resp.NullBulk
	}
	members := s.Members()
	if len(args) == 2 {
		if len(members) == 0 {
			return resp.NullBulk
		}
		return resp.MakeBulkString(members[rand.Intn(len(members))])
	}
	count := int(argInt(args, 2))
	if count >= 0 {
		rand.Shuffle(len(members), func(i, j int) { members[i], members[j] = members[j], members[i] })
		if count > len(members) {
			count = len(members)
		}
		return replyArrayOfBulk(members[:count])
	}
	n := -count
	picked := make([][]byte, n)
	for i := range picked {
		if len(members) == 0 {
			continue
		}
		picked[i] = members[rand.Intn(len(members))]
	}
	return replyArrayOfBulk(picked)
}

func cmdSMove(ctx *Context, args []obj.Obj) []byte {
	src, ok := setOf(ctx, args[1])
	if !ok || !src.Contains(argStr(args, 3)) {
		return resp.MakeInteger(0)
	}
	dst := setOfOrCreate(ctx, args[2])
	src.Remove(argStr(args, 3))
	dst.Add(argStr(args, 3))
	if src.Len() == 0 {
		ctx.DB.Del(args[1])
	}
	return resp.MakeInteger(1)
}

func collectSets(ctx *Context, args []obj.Obj, from int) []*obj.Set {
	sets := make([]*obj.Set, 0, len(args)-from)
	for i := from; i < len(args); i++ {
		s, ok := setOf(ctx, args[i])
		if !ok {
			s = obj.NewSet()
		}
		sets = append(sets, s)
	}
	return sets
}

func setDiff(sets []*obj.Set) *obj.Set {
	out := obj.NewSet()
	if len(sets) == 0 {
		return out
	}
	for _, m := range sets[0].Members() {
		out.Add(m)
	}
	for _, s := range sets[1:] {
		for _, m := range s.Members() {
			out.Remove(m)
		}
	}
	return out
}

func setInter(sets []*obj.Set) *obj.Set {
	out := obj.NewSet()
	if len(sets) == 0 {
		return out
	}
	for _, m := range sets[0].Members() {
		inAll := true
		for _, s := range sets[1:] {
			if !s.Contains(m) {
				inAll = false
				break
			}
		}
		if inAll {
			out.Add(m)
		}
	}
	return out
}

func setUnion(sets []*obj.Set) *obj.Set {
	out := obj.NewSet()
	for _, s := range sets {
		for _, m := range s.Members() {
			out.Add(m)
		}
	}
	return out
}

func cmdSDiff(ctx *Context, args []obj.Obj) []byte {
	return replyArrayOfBulk(setDiff(collectSets(ctx, args, 1)).Members())
}
func cmdSInter(ctx *Context, args []obj.Obj) []byte {
	return replyArrayOfBulk(setInter(collectSets(ctx, args, 1)).Members())
}
func cmdSUnion(ctx *Context, args []obj.Obj) []byte {
	return replyArrayOfBulk(setUnion(collectSets(ctx, args, 1)).Members())
}

func cmdSDiffStore(ctx *Context, args []obj.Obj) []byte {
	result := setDiff(collectSets(ctx, args, 2))
	if result.Len() == 0 {
		ctx.DB.Del(args[1])
	} else {
		ctx.DB.Set(args[1], obj.FromSet(result))
	}
	return resp.MakeInteger(int64(result.Len()))
}
func cmdSInterStore(ctx *Context, args []obj.Obj) []byte {
	result := setInter(collectSets(ctx, args, 2))
	if result.Len() == 0 {
		ctx.DB.Del(args[1])
	} else {
		ctx.DB.Set(args[1], obj.FromSet(result))
	}
	return resp.MakeInteger(int64(result.Len()))
}
func cmdSUnionStore(ctx *Context, args []obj.Obj) []byte {
	result := setUnion(collectSets(ctx, args, 2))
	if result.Len() == 0 {
		ctx.DB.Del(args[1])
	} else {
		ctx.DB.Set(args[1], obj.FromSet(result))
	}
	return resp.MakeInteger(int64(result.Len()))
}
