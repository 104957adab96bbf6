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
	"bytes"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/btree"

	"github.com/launix-de/nanoredis/obj"
	"github.com/launix-de/nanoredis/resp"
)

// globMatch wraps path/filepath.Match for the glob-style patterns KEYS,
// HSCAN and SSCAN accept (spec §6's KEYS pattern syntax reused for SCAN
// family MATCH options).
func globMatch(pattern, s string) (bool, error) { return filepath.Match(pattern, s) }

// argInt parses args[i] as an integer, panicking NotIntegerError on failure.
func argInt(args []obj.Obj, i int) int64 {
	n, ok := args[i].TryAsInt()
	if !ok {
		panic(NotIntegerError{})
	}
	return n
}

// argStr returns the canonical byte string of args[i].
func argStr(args []obj.Obj, i int) []byte { return args[i].AsString() }

// argUpper returns the upper-cased string of args[i], for option keywords.
func argUpper(args []obj.Obj, i int) string {
	return strings.ToUpper(string(args[i].AsString()))
}

// replyBulk encodes ok ? value : nil as a bulk reply.
func replyBulk(v obj.Obj, ok bool) []byte {
	if !ok {
		return resp.NullBulk
	}
	return resp.MakeBulkString(v.AsString())
}

// replyBool encodes a boolean as RESP2 integer 0/1 (spec §4.6: no RESP3
// boolean type, booleans are always :0/:1).
func replyBool(b bool) []byte {
	if b {
		return resp.MakeInteger(1)
	}
	return resp.MakeInteger(0)
}

// requireString panics WrongTypeError unless v is null or a string/int
// value (the two scalar types SET/GET and friends accept).
func requireString(v obj.Obj) {
	switch v.GetType() {
	case obj.TypeNull, obj.TypeString, obj.TypeInt:
		return
	default:
		wrongType()
	}
}

// requireType panics WrongTypeError unless v is null or of type t.
func requireType(v obj.Obj, t obj.Type) {
	if v.GetType() != obj.TypeNull && v.GetType() != t {
		wrongType()
	}
}

func formatFloat(f float64) []byte {
	return []byte(strconv.FormatFloat(f, 'f', -1, 64))
}

func parseFloatArg(args []obj.Obj, i int) float64 {
	f, err := strconv.ParseFloat(string(args[i].AsString()), 64)
	if err != nil {
		panic(UserError("value is not a valid float"))
	}
	return f
}

func parseFloatBytes(b []byte) (float64, error) {
	return strconv.ParseFloat(string(b), 64)
}

func replyArrayOfBulk(items [][]byte) []byte {
	out := resp.MakeArrayHeader(len(items))
	for _, it := range items {
		out = append(out, resp.MakeBulkString(it)...)
	}
	return out
}

// scanItem pairs a SCAN-family sort key with its opaque payload (for HSCAN,
// payload is the field/value pair; for SSCAN, the member itself), giving
// google/btree something to order by so repeated SCANs over the same data
// return a stable, cursor-addressable sequence despite obj.Hash/obj.Set
// being backed by plain unordered Go maps internally (spec §4.8's
// SCAN-family wiring table).
type scanItem struct {
	key     []byte
	payload [][]byte
}

func (a scanItem) Less(than btree.Item) bool { return bytes.Compare(a.key, than.(scanItem).key) < 0 }

// sortScanItems orders items by key using a google/btree index, returning
// each item's payload in ascending key order.
func sortScanItems(items []scanItem) [][][]byte {
	bt := btree.New(32)
	for _, it := range items {
		bt.ReplaceOrInsert(it)
	}
	out := make([][][]byte, 0, bt.Len())
	bt.Ascend(func(i btree.Item) bool {
		out = append(out, i.(scanItem).payload)
		return true
	})
	return out
}

// decodeScanCursor parses a top-level SCAN cursor of the form
// "<shardIdx>:<offset>", defaulting to (0, 0) for "0" or anything malformed
// (SCAN's own tolerant-cursor convention, generalized across shards since a
// single dash.Table.SortedKeys pass only covers one shard's keyspace).
func decodeScanCursor(cursor string) (shardIdx, offset int) {
	if cursor == "" || cursor == "0" {
		return 0, 0
	}
	parts := strings.SplitN(cursor, ":", 2)
	if len(parts) != 2 {
		return 0, 0
	}
	s, err1 := strconv.Atoi(parts[0])
	o, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || s < 0 || o < 0 {
		return 0, 0
	}
	return s, o
}

// encodeScanCursor builds the cursor string SCAN hands back to resume at
// shardIdx/offset next time.
func encodeScanCursor(shardIdx int, offset string) string {
	return strconv.Itoa(shardIdx) + ":" + offset
}

// scanCursorPage slices a pre-sorted item list starting at the numeric
// cursor, returning the [start,end) window and the cursor to resume from
// ("0" once exhausted). A malformed or out-of-range cursor restarts from 0
// rather than erroring, matching Redis's own tolerant SCAN cursor handling.
func scanCursorPage(total int, cursor string, count int) (start, end int, next string) {
	if count <= 0 {
		count = 10
	}
	offset, err := strconv.Atoi(cursor)
	if err != nil || offset < 0 || offset > total {
		offset = 0
	}
	end = offset + count
	if end >= total {
		return offset, total, "0"
	}
	return offset, end, strconv.Itoa(end)
}

func replyArrayOfObj(items []obj.Obj) []byte {
	out := resp.MakeArrayHeader(len(items))
	for _, it := range items {
		out = append(out, resp.MakeBulkString(it.AsString())...)
	}
	return out
}
