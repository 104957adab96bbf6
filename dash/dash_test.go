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
package dash

import (
	"fmt"
	"testing"

	"github.com/launix-de/nanoredis/obj"
)

func keyN(i int) obj.Obj { return obj.FromString([]byte(fmt.Sprintf("key-%d", i))) }

func TestInsertFindManyKeys(t *testing.T) {
	tbl := New[int](8)
	tbl.SetMaxSegmentSize(32)
	const n = 5000
	for i := 0; i < n; i++ {
		tbl.Insert(keyN(i), i)
	}
	if tbl.Size() != n {
		t.Fatalf("expected size %d, got %d", n, tbl.Size())
	}
	for i := 0; i < n; i++ {
		v, ok := tbl.Find(keyN(i))
		if !ok || v != i {
			t.Fatalf("Find(key-%d) = %d, %v", i, v, ok)
		}
	}
	if err := tbl.CheckInvariants(); err != nil {
		t.Fatalf("invariant violated: %v", err)
	}
}

func TestEraseAndEmptyDirectoryStays(t *testing.T) {
	tbl := New[int](4)
	tbl.SetMaxSegmentSize(16)
	for i := 0; i < 200; i++ {
		tbl.Insert(keyN(i), i)
	}
	dirSizeBefore := tbl.DirSize()
	for i := 0; i < 200; i++ {
		if !tbl.Erase(keyN(i)) {
			t.Fatalf("erase of key-%d should succeed", i)
		}
	}
	if tbl.Size() != 0 {
		t.Fatalf("expected empty table, got size %d", tbl.Size())
	}
	if tbl.DirSize() != dirSizeBefore {
		t.Fatalf("directory should not shrink on erase: before=%d after=%d", dirSizeBefore, tbl.DirSize())
	}
	if tbl.Erase(keyN(0)) {
		t.Fatalf("erasing an absent key should return false")
	}
}

func TestForEachVisitsEveryLiveEntryOnce(t *testing.T) {
	tbl := New[int](4)
	tbl.SetMaxSegmentSize(24)
	const n = 3000
	for i := 0; i < n; i++ {
		tbl.Insert(keyN(i), i)
	}
	seen := make(map[string]bool)
	count := 0
	tbl.ForEach(func(k obj.Obj, v int) bool {
		count++
		s := string(k.AsString())
		if seen[s] {
			t.Fatalf("key %s visited twice", s)
		}
		seen[s] = true
		return true
	})
	if count != tbl.Size() {
		t.Fatalf("ForEach visited %d, expected %d", count, tbl.Size())
	}
}

func TestDepthInvariantsAfterSplits(t *testing.T) {
	tbl := New[int](2)
	tbl.SetMaxSegmentSize(8)
	for i := 0; i < 2000; i++ {
		tbl.Insert(keyN(i), i)
		if tbl.GlobalDepth() > 64 {
			t.Fatalf("global depth exceeded 64")
		}
	}
	if err := tbl.CheckInvariants(); err != nil {
		t.Fatalf("invariant violated: %v", err)
	}
}

func TestPreModifyHookFiresBeforeMutation(t *testing.T) {
	tbl := New[int](4)
	tbl.SetMaxSegmentSize(1 << 20) // avoid splits complicating the count
	var fired int
	var lastVersionAtFire uint64
	tbl.SetSegVersion(0, 0)
	tbl.SetPreModifyCallback(func(dirIdx uint64) {
		fired++
		lastVersionAtFire = tbl.GetSegVersion(dirIdx)
		tbl.SetSegVersion(dirIdx, lastVersionAtFire+1) // simulate a flush-then-bump
	})
	for i := 0; i < 10; i++ {
		tbl.Insert(keyN(i), i)
	}
	if fired != 10 {
		t.Fatalf("expected hook to fire once per insert, fired %d times", fired)
	}
	tbl.ClearPreModifyCallback()
	tbl.Insert(keyN(100), 100)
	if fired != 10 {
		t.Fatalf("hook should not fire after being cleared")
	}
	_ = lastVersionAtFire
}

func TestClearEmptiesButKeepsDirectory(t *testing.T) {
	tbl := New[int](4)
	tbl.SetMaxSegmentSize(16)
	for i := 0; i < 500; i++ {
		tbl.Insert(keyN(i), i)
	}
	dirSize := tbl.DirSize()
	tbl.Clear()
	if tbl.Size() != 0 {
		t.Fatalf("expected 0 after Clear, got %d", tbl.Size())
	}
	if tbl.DirSize() != dirSize {
		t.Fatalf("Clear must not shrink the directory")
	}
	tbl.Insert(keyN(0), 1)
	if v, ok := tbl.Find(keyN(0)); !ok || v != 1 {
		t.Fatalf("table must be usable after Clear")
	}
}

func TestNextUniqueSegmentCoversWholeDirectory(t *testing.T) {
	tbl := New[int](4)
	tbl.SetMaxSegmentSize(8)
	for i := 0; i < 1000; i++ {
		tbl.Insert(keyN(i), i)
	}
	count := 0
	for i := uint64(0); i < tbl.DirSize(); i = tbl.NextUniqueSegment(i) {
		count++
		if count > int(tbl.DirSize()) {
			t.Fatalf("NextUniqueSegment looped forever")
		}
	}
}
