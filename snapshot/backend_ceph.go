//go:build ceph

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
	"bytes"
	"io"
	"sync"

	"github.com/ceph/go-ceph/rados"
)

// CephBackend stores the dump as a librados object, mirroring the
// teacher's storage/persistence-ceph.go CephStorage: connect lazily, write
// the whole object in one WriteFull, and "commit" by reading the temp
// object back and WriteFull-ing it under the final name (rados has no
// server-side copy, unlike S3) before removing the temp object.
type CephBackend struct {
	UserName    string
	ClusterName string
	ConfFile    string
	Pool        string
	Key         string // final object name, e.g. "dump.nrdb"

	mu    sync.Mutex
	conn  *rados.Conn
	ioctx *rados.IOContext
}

func (b *CephBackend) tmpKey() string { return b.Key + ".tmp" }

func (b *CephBackend) ensureOpen() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ioctx != nil {
		return nil
	}
	conn, err := rados.NewConnWithClusterAndUser(b.ClusterName, b.UserName)
	if err != nil {
		return err
	}
	if b.ConfFile != "" {
		if err := conn.ReadConfigFile(b.ConfFile); err != nil {
			return err
		}
	} else {
		_ = conn.ReadDefaultConfigFile()
	}
	if err := conn.Connect(); err != nil {
		return err
	}
	ioctx, err := conn.OpenIOContext(b.Pool)
	if err != nil {
		conn.Shutdown()
		return err
	}
	b.conn, b.ioctx = conn, ioctx
	return nil
}

type cephWriteCloser struct {
	b      *CephBackend
	key    string
	buf    bytes.Buffer
	closed bool
}

func (w *cephWriteCloser) Write(p []byte) (int, error) {
	if w.closed {
		return 0, io.ErrClosedPipe
	}
	return w.buf.Write(p)
}

func (w *cephWriteCloser) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.b.ioctx.WriteFull(w.key, w.buf.Bytes())
}

func (b *CephBackend) WriteTemp() (io.WriteCloser, error) {
	if err := b.ensureOpen(); err != nil {
		return nil, err
	}
	return &cephWriteCloser{b: b, key: b.tmpKey()}, nil
}

func (b *CephBackend) Commit() error {
	if err := b.ensureOpen(); err != nil {
		return err
	}
	stat, err := b.ioctx.Stat(b.tmpKey())
	if err != nil {
		return err
	}
	data := make([]byte, stat.Size)
	if _, err := b.ioctx.Read(b.tmpKey(), data, 0); err != nil {
		return err
	}
	if err := b.ioctx.WriteFull(b.Key, data); err != nil {
		return err
	}
	return b.ioctx.Delete(b.tmpKey())
}

func (b *CephBackend) Abort() error {
	if err := b.ensureOpen(); err != nil {
		return err
	}
	return b.ioctx.Delete(b.tmpKey())
}

func (b *CephBackend) OpenCurrent() (io.ReadCloser, error) {
	if err := b.ensureOpen(); err != nil {
		return nil, err
	}
	stat, err := b.ioctx.Stat(b.Key)
	if err != nil {
		return nil, err
	}
	data := make([]byte, stat.Size)
	if _, err := b.ioctx.Read(b.Key, data, 0); err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}
