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

// Package snapshot implements the versioned, copy-on-write-by-segment
// on-disk format of SPEC_FULL.md §4.7: a per-shard self-describing section
// (magic header, opcode-prefixed records, CRC-32 footer) produced by
// walking a dash table's segments in directory order, flushing each one at
// most once per snapshot version via the same pre-modify hook that guards
// Dash's own consistency (dash.Table.SetPreModifyCallback).
package snapshot

import "errors"

// Magic is the fixed 8-byte header magic.
const Magic = "NRDB0001"

// headerSize is len(magic) + shard_id(4) + num_shards(4) + timestamp_ms(8) + num_dbs(2).
const headerSize = 8 + 4 + 4 + 8 + 2

// Opcodes, per spec §4.7.
const (
	opDBSelect byte = 0xF0
	opDBSize   byte = 0xF1
	opExpireMs byte = 0xFD
	opEOF      byte = 0xFF

	objString byte = 0x00
	objInt    byte = 0x01
	objHash   byte = 0x02
	objSet    byte = 0x03
	objList   byte = 0x04
	objZSet   byte = 0x05 // reserved, never produced
)

var (
	// ErrProtocol is returned for malformed framing while loading.
	ErrProtocol = errors.New("snapshot: malformed record")
	// ErrBadMagic is returned when the file does not start with Magic.
	ErrBadMagic = errors.New("snapshot: bad magic")
	// ErrShardMismatch is returned when a section's shard_id does not match
	// the shard attempting to load it.
	ErrShardMismatch = errors.New("snapshot: shard id mismatch")
	// ErrCRCMismatch is returned when the trailing CRC-32 does not match.
	ErrCRCMismatch = errors.New("snapshot: crc mismatch")
	// ErrUnsupportedType is returned for the reserved ZSET opcode (spec §9
	// open question: "loader returns an unsupported-type error").
	ErrUnsupportedType = errors.New("snapshot: zset type is reserved and unsupported")
)

// Header is the fixed-size section header written once per shard section.
type Header struct {
	ShardID     uint32
	NumShards   uint32
	TimestampMs uint64
	NumDBs      uint16
}

// appendVarint encodes x as base-128 little-endian with a continuation bit
// (spec §4.7 varlen).
func appendVarint(buf []byte, x uint64) []byte {
	for {
		b := byte(x & 0x7f)
		x >>= 7
		if x != 0 {
			buf = append(buf, b|0x80)
		} else {
			buf = append(buf, b)
			return buf
		}
	}
}
