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
package snapshot

import (
	"github.com/launix-de/nanoredis/dash"
	"github.com/launix-de/nanoredis/obj"
	"github.com/launix-de/nanoredis/store"
)

// SliceSnapshot serializes one shard's Database as a consistent
// point-in-time dump (spec §4.7 "SliceSnapshot"). For each non-empty db
// slot (empty ones are skipped), it installs a pre-modify hook on the main table that flushes a
// segment before its first in-snapshot mutation, then walks every unique
// segment in directory order and writes any segment whose version is still
// below snapshotVersion. Each logical key is written at most once: a
// segment the walk has already advanced is skipped even if the hook also
// fires for it later, and a segment the hook flushes early is simply
// already-advanced by the time the walk reaches it.
func SliceSnapshot(db *store.Database, ser *Serializer, snapshotVersion uint64) error {
	var outerErr error
	db.ForEachSlot(func(dbIdx int) {
		if outerErr != nil {
			return
		}
		main := db.MainTable()
		if main.Size() == 0 {
			return
		}
		expire := db.ExpireTable()
		now := db.NowMs()

		main.SetPreModifyCallback(func(dirIdx uint64) {
			if outerErr != nil {
				return
			}
			outerErr = flushSegment(main, expire, ser, dbIdx, dirIdx, snapshotVersion, now)
		})

		for idx := uint64(0); idx < main.DirSize() && outerErr == nil; idx = main.NextUniqueSegment(idx) {
			if main.GetSegVersion(idx) < snapshotVersion {
				outerErr = flushSegment(main, expire, ser, dbIdx, idx, snapshotVersion, now)
			}
		}

		main.ClearPreModifyCallback()
	})
	return outerErr
}

// flushSegment writes every live entry of the segment referenced at dirIdx
// and advances its version to snapshotVersion. It is a no-op if the segment
// has already been advanced (by an earlier hook firing or an earlier walk
// visit), which is what makes repeated calls for the same segment safe.
func flushSegment(main *dash.Table[obj.Obj], expire *dash.Table[int64], ser *Serializer, dbIdx int, dirIdx uint64, snapshotVersion uint64, now int64) error {
	if main.GetSegVersion(dirIdx) >= snapshotVersion {
		return nil
	}
	var werr error
	main.ForEachInSegment(dirIdx, func(k, v obj.Obj) bool {
		if exp, ok := expire.Find(k); ok {
			if exp <= now {
				return true // expired: lazily dead, not part of the snapshot
			}
			if err := ser.Put(dbIdx, k, v, exp); err != nil {
				werr = err
				return false
			}
			return true
		}
		if err := ser.Put(dbIdx, k, v, -1); err != nil {
			werr = err
			return false
		}
		return true
	})
	main.SetSegVersion(dirIdx, snapshotVersion)
	return werr
}
