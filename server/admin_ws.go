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
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/launix-de/nanoredis/shard"
	"github.com/launix-de/nanoredis/store"
)

// adminUpgrader accepts connections from any origin: this feed is read-only
// monitoring, gated entirely behind whether --admin_ws_port is non-zero, the
// same "opt in by binding a port at all" posture the teacher's
// storage/dashboard.go implies for its push dashboard.
var adminUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// adminSnapshot is one JSON frame pushed to every connected admin socket.
type adminSnapshot struct {
	TimeMs          int64                `json:"time_ms"`
	ConnectedClients []clientSnapshotView `json:"connected_clients"`
	NumShards       int                  `json:"num_shards"`
	TotalKeys       int                  `json:"total_keys"`
	BGSaveRunning   bool                 `json:"bgsave_running"`
	LastSaveMs      int64                `json:"last_save_ms"`
}

type clientSnapshotView struct {
	ID      uint64 `json:"id"`
	Addr    string `json:"addr"`
	Name    string `json:"name"`
	DB      int    `json:"db"`
	LastCmd string `json:"last_cmd"`
	AgeMs   int64  `json:"age_ms"`
	IdleMs  int64  `json:"idle_ms"`
}

// ServeAdminWS upgrades r to a websocket and pushes an adminSnapshot every
// interval until the client disconnects. Registered at "/ws" on the admin
// HTTP mux started by ListenAndServeAdmin.
func (s *Server) ServeAdminWS(w http.ResponseWriter, r *http.Request) {
	conn, err := adminUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for range ticker.C {
		frame := s.snapshotForAdmin()
		if err := conn.WriteJSON(frame); err != nil {
			return
		}
	}
}

func (s *Server) snapshotForAdmin() adminSnapshot {
	clients := s.Clients.List()
	view := make([]clientSnapshotView, len(clients))
	for i, c := range clients {
		view[i] = clientSnapshotView{
			ID: c.ID, Addr: c.Addr, Name: c.Name, DB: c.DB,
			LastCmd: c.LastCmd, AgeMs: c.AgeMs, IdleMs: c.IdleMs,
		}
	}
	keys := 0
	for i := 0; i < s.Shards.NumShards(); i++ {
		n, _ := shard.RunOn(s.Shards.Shard(i), func(db *store.Database) int {
			total := 0
			db.ForEachSlot(func(int) { total += db.KeyCount() })
			return total
		})
		keys += n
	}
	return adminSnapshot{
		TimeMs:           s.nowMs(),
		ConnectedClients: view,
		NumShards:        s.Shards.NumShards(),
		TotalKeys:        keys,
		BGSaveRunning:    s.Snapshot.InProgress(),
		LastSaveMs:       s.Snapshot.LastSaveMs(),
	}
}

// ListenAndServeAdmin starts the optional read-only monitoring HTTP server
// on port. main.go calls this only when --admin_ws_port is non-zero, so a
// zero flag value leaves the feed off.
func (s *Server) ListenAndServeAdmin(port int) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.ServeAdminWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	s.Log.Infof("admin websocket monitoring listening on port %d", port)
	return http.ListenAndServe(addrForPort(port), mux)
}

func addrForPort(port int) string {
	return ":" + itoa(port)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
