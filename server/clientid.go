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
	"encoding/binary"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// clientIDCounter hands out the monotonic per-process client ids CLIENT
// ID/CLIENT LIST/CLIENT KILL address a connection by (spec §4.8), the same
// atomic-counter shape as storage/fast_uuid.go's uuidCounter.
var clientIDCounter uint64

// nextClientID returns the next connection id, starting at 1 so 0 can mean
// "no client" in places that need a sentinel.
func nextClientID() uint64 {
	return atomic.AddUint64(&clientIDCounter, 1)
}

// uuidCounter seeds newRunID below; seeding from the wall clock at startup
// matches fast_uuid.go's avoidance of crypto/rand stalls on low-entropy
// boot environments.
var uuidCounter = uint64(time.Now().UnixNano())

// newRunID returns a UUIDv4-shaped (but not cryptographically random)
// identifier for one BGSAVE job, the same construction as
// storage/fast_uuid.go's newUUID, reused here to tag background-save log
// lines so concurrent BGSAVE runs are distinguishable in the logs.
func newRunID() uuid.UUID {
	ctr := atomic.AddUint64(&uuidCounter, 1)
	now := uint64(time.Now().UnixNano())
	var b [16]byte
	binary.LittleEndian.PutUint64(b[0:8], ctr)
	binary.LittleEndian.PutUint64(b[8:16], ctr^now^(now<<17))
	b[6] = (b[6] & 0x0f) | 0x40
	b[8] = (b[8] & 0x3f) | 0x80
	return uuid.UUID(b)
}
