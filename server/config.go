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
package server

import (
	"flag"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/docker/go-units"
	"github.com/fsnotify/fsnotify"
)

// Config is the server's CLI-derived, CONFIG GET/SET-mutable runtime
// configuration, the same single-struct-behind-a-by-name-dispatch shape as
// the teacher's storage.SettingsT/ChangeSettings (storage/settings.go).
type Config struct {
	mu sync.RWMutex

	Port                 int
	NumShards            int
	TCPNoDelay           bool
	UseIOUringTCPServer  bool
	PhotonHandlerStackKB int
	SavePath             string
	SnapshotCompression  string
	SaveBackend          string
	MaxMemoryBytes       int64
	AdminWSPort          int
}

// RegisterFlags binds Config's fields to the process's flag.FlagSet and
// returns the raw --maxmemory string pointer; call ParseMaxMemory(*raw)
// after fs.Parse to finish populating MaxMemoryBytes. No flag-parsing
// library appears anywhere in the example pack, so the stdlib flag package
// is the only thing to reach for here (spec §6's CLI surface).
func (c *Config) RegisterFlags(fs *flag.FlagSet) *string {
	fs.IntVar(&c.Port, "port", 9527, "TCP port to listen on")
	fs.IntVar(&c.NumShards, "num_shards", 8, "number of shards (1 selects single-shard mode)")
	fs.BoolVar(&c.TCPNoDelay, "tcp_nodelay", true, "disable Nagle's algorithm on client sockets")
	fs.BoolVar(&c.UseIOUringTCPServer, "use_iouring_tcp_server", true, "prefer an io_uring accept loop, falling back gracefully if unavailable")
	fs.IntVar(&c.PhotonHandlerStackKB, "photon_handler_stack_kb", 256, "per-connection handler stack size in KiB")
	fs.StringVar(&c.SavePath, "save_path", "dump.nrdb", "snapshot file path (the object key for --save_backend=s3 or ceph)")
	fs.StringVar(&c.SnapshotCompression, "snapshot_compression", "", "snapshot body compression: \"\", \"lz4\" or \"xz\"")
	fs.StringVar(&c.SaveBackend, "save_backend", "file", "snapshot backend: \"file\", \"s3\" or \"ceph\"")
	fs.IntVar(&c.AdminWSPort, "admin_ws_port", 0, "optional read-only admin websocket monitoring port; 0 disables it")
	return fs.String("maxmemory", "0", "soft memory budget, human-readable (e.g. 256mb); 0 disables the limit")
}

// ParseMaxMemory converts the --maxmemory flag's human-readable size (parsed
// by github.com/docker/go-units, the same library the teacher could have
// used for storage.SettingsT.ShardSize) into bytes.
func (c *Config) ParseMaxMemory(raw string) error {
	if raw == "" || raw == "0" {
		c.MaxMemoryBytes = 0
		return nil
	}
	n, err := units.RAMInBytes(raw)
	if err != nil {
		return fmt.Errorf("invalid --maxmemory %q: %w", raw, err)
	}
	c.MaxMemoryBytes = n
	return nil
}

// Get implements the CONFIG GET <pattern> side of the teacher's by-name
// dispatch, glob-matching against every known parameter name.
func (c *Config) Get(pattern string) [][2]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	all := [][2]string{
		{"port", strconv.Itoa(c.Port)},
		{"num_shards", strconv.Itoa(c.NumShards)},
		{"tcp_nodelay", strconv.FormatBool(c.TCPNoDelay)},
		{"use_iouring_tcp_server", strconv.FormatBool(c.UseIOUringTCPServer)},
		{"photon_handler_stack_kb", strconv.Itoa(c.PhotonHandlerStackKB)},
		{"save_path", c.SavePath},
		{"snapshot_compression", c.SnapshotCompression},
		{"save_backend", c.SaveBackend},
		{"maxmemory", strconv.FormatInt(c.MaxMemoryBytes, 10)},
		{"admin_ws_port", strconv.Itoa(c.AdminWSPort)},
	}
	if pattern == "*" || pattern == "" {
		return all
	}
	var out [][2]string
	for _, kv := range all {
		if matchGlob(pattern, kv[0]) {
			out = append(out, kv)
		}
	}
	return out
}

// Set implements CONFIG SET <name> <value>. Only the parameters that are
// meaningful to change at runtime (post-startup) are mutable; changing
// port/num_shards after the listener and shard registry exist has no
// effect and is rejected, matching Redis's own read-only parameter class.
func (c *Config) Set(name, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch strings.ToLower(name) {
	case "maxmemory":
		n, err := units.RAMInBytes(value)
		if err != nil {
			return fmt.Errorf("invalid maxmemory %q: %w", value, err)
		}
		c.MaxMemoryBytes = n
	case "snapshot_compression":
		if value != "" && value != "lz4" && value != "xz" {
			return fmt.Errorf("unknown snapshot_compression %q", value)
		}
		c.SnapshotCompression = value
	case "save_path":
		c.SavePath = value
	default:
		return fmt.Errorf("unsupported or read-only parameter %q", name)
	}
	return nil
}

// matchGlob is a tiny '*'/'?' matcher (CONFIG GET patterns are simple glob
// strings, the same class KEYS/SCAN accept; path/filepath.Match rejects
// bare names containing characters like ':' on some platforms, so CONFIG
// uses its own minimal matcher instead of depending on OS path semantics).
func matchGlob(pattern, s string) bool {
	if pattern == "*" {
		return true
	}
	if pattern == "" {
		return s == ""
	}
	if pattern[0] == '*' {
		for i := 0; i <= len(s); i++ {
			if matchGlob(pattern[1:], s[i:]) {
				return true
			}
		}
		return false
	}
	return s != "" && (pattern[0] == '?' || pattern[0] == s[0]) && matchGlob(pattern[1:], s[1:])
}

// WatchSaveDir watches the directory containing path for externally-created
// or leftover ".tmp" snapshot files (spec's "SAVE backend", supplemented):
// a previous process's crash can leave a "<path>.tmp" behind, and an
// external tool might drop a fresh snapshot into the same directory. onEvent
// is invoked with the changed file's name. Uses fsnotify, exactly as listed
// in SPEC_FULL.md's dependency wiring table.
func WatchSaveDir(dir string, onEvent func(name string)) (*fsnotify.Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}
	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if onEvent != nil {
					onEvent(ev.Name)
				}
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return w, nil
}
