/*
Copyright (C) 2024-2026  Carl-Philip Hänsch

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

// Backend is the pluggable SAVE/BGSAVE destination (spec §4.7 "Background
// save"/§9's ".tmp + atomic rename" mandate, generalized past plain files
// the same way the teacher generalizes PersistenceEngine across
// storage/persistence-files.go, storage/persistence-s3.go and
// storage/persistence-ceph.go).
package snapshot

import "io"

// Backend is a destination a whole dump can be written to and read back
// from. WriteTemp opens a fresh staging target; Commit makes the
// just-closed staging target visible as the current dump atomically (a
// rename for local files, a copy-then-delete of an object-store key where
// there is no rename); Abort discards the staging target on failure.
type Backend interface {
	WriteTemp() (io.WriteCloser, error)
	Commit() error
	Abort() error
	OpenCurrent() (io.ReadCloser, error)
}
