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
package snapshot

import (
	"io"
	"os"
)

// FileBackend writes the dump at Path, staging through Path+".tmp" and
// os.Rename on success, the same pattern as the teacher's
// storage/persistence-files.go FileStorage.WriteSchema backup-then-replace.
type FileBackend struct {
	Path string
}

func (f *FileBackend) tmpPath() string { return f.Path + ".tmp" }

func (f *FileBackend) WriteTemp() (io.WriteCloser, error) {
	return os.Create(f.tmpPath())
}

func (f *FileBackend) Commit() error {
	return os.Rename(f.tmpPath(), f.Path)
}

func (f *FileBackend) Abort() error {
	return os.Remove(f.tmpPath())
}

func (f *FileBackend) OpenCurrent() (io.ReadCloser, error) {
	return os.Open(f.Path)
}
