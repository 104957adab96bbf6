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
	"encoding/binary"
	"hash"
	"hash/crc32"
	"io"

	"github.com/launix-de/nanoredis/obj"
)

// Serializer writes one self-describing shard section: header, then
// DB_SELECT / EXPIRE_MS / object records, then EOF + CRC-32 footer. Only
// the most recently selected dbid is remembered, matching spec §4.7
// ("Only the last written dbid is remembered").
type Serializer struct {
	w      io.Writer
	crc    hash.Hash32
	lastDB int
	haveDB bool
}

// NewSerializer writes the section header immediately and returns a
// Serializer ready for Put calls.
func NewSerializer(w io.Writer, shardID, numShards uint32, numDBs uint16, timestampMs uint64) (*Serializer, error) {
	s := &Serializer{w: w, crc: crc32.NewIEEE(), lastDB: -1}
	header := make([]byte, 0, headerSize)
	header = append(header, Magic...)
	header = binary.LittleEndian.AppendUint32(header, shardID)
	header = binary.LittleEndian.AppendUint32(header, numShards)
	header = binary.LittleEndian.AppendUint64(header, timestampMs)
	header = binary.LittleEndian.AppendUint16(header, numDBs)
	if err := s.write(header); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Serializer) write(b []byte) error {
	if _, err := s.w.Write(b); err != nil {
		return err
	}
	s.crc.Write(b)
	return nil
}

func (s *Serializer) selectDB(db int) error {
	if s.haveDB && s.lastDB == db {
		return nil
	}
	buf := []byte{opDBSelect}
	buf = appendVarint(buf, uint64(db))
	if err := s.write(buf); err != nil {
		return err
	}
	s.lastDB, s.haveDB = db, true
	return nil
}

// PutDBSize emits the informational 0xF1 DB_SIZE record for db.
func (s *Serializer) PutDBSize(db int, size int) error {
	if err := s.selectDB(db); err != nil {
		return err
	}
	buf := []byte{opDBSize}
	buf = appendVarint(buf, uint64(size))
	return s.write(buf)
}

// Put serializes one key/value entry of db. expireAtMs is the absolute
// wall-clock expiry in ms, or a negative value for "no expiry".
func (s *Serializer) Put(db int, key, value obj.Obj, expireAtMs int64) error {
	if err := s.selectDB(db); err != nil {
		return err
	}
	if expireAtMs >= 0 {
		buf := []byte{opExpireMs}
		buf = appendVarint(buf, uint64(expireAtMs))
		if err := s.write(buf); err != nil {
			return err
		}
	}
	keyBytes := key.AsString()
	head := appendVarint([]byte{objOpcode(value)}, uint64(len(keyBytes)))
	head = append(head, keyBytes...)
	if err := s.write(head); err != nil {
		return err
	}
	return s.writePayload(value)
}

func objOpcode(v obj.Obj) byte {
	switch v.GetType() {
	case obj.TypeString:
		return objString
	case obj.TypeInt:
		return objInt
	case obj.TypeHash:
		return objHash
	case obj.TypeSet:
		return objSet
	case obj.TypeList:
		return objList
	default:
		panic("snapshot: unsupported value type for serialization")
	}
}

func (s *Serializer) writePayload(v obj.Obj) error {
	switch v.GetType() {
	case obj.TypeString:
		b := v.AsString()
		buf := appendVarint(nil, uint64(len(b)))
		buf = append(buf, b...)
		return s.write(buf)
	case obj.TypeInt:
		n, _ := v.AsInt()
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, uint64(n))
		return s.write(buf)
	case obj.TypeHash:
		h := v.Hash()
		buf := appendVarint(nil, uint64(h.Len()))
		if err := s.write(buf); err != nil {
			return err
		}
		var werr error
		h.ForEach(func(field, value []byte) bool {
			b := appendVarint(nil, uint64(len(field)))
			b = append(b, field...)
			b = appendVarint(b, uint64(len(value)))
			b = append(b, value...)
			if err := s.write(b); err != nil {
				werr = err
				return false
			}
			return true
		})
		return werr
	case obj.TypeSet:
		set := v.Set()
		buf := appendVarint(nil, uint64(set.Len()))
		if err := s.write(buf); err != nil {
			return err
		}
		var werr error
		for _, m := range set.Members() {
			b := appendVarint(nil, uint64(len(m)))
			b = append(b, m...)
			if err := s.write(b); err != nil {
				werr = err
				break
			}
		}
		return werr
	case obj.TypeList:
		l := v.List()
		items := l.All()
		buf := appendVarint(nil, uint64(len(items)))
		if err := s.write(buf); err != nil {
			return err
		}
		for _, item := range items {
			b := appendVarint(nil, uint64(len(item)))
			b = append(b, item...)
			if err := s.write(b); err != nil {
				return err
			}
		}
		return nil
	default:
		panic("snapshot: unsupported value type for serialization")
	}
}

// Finish writes the EOF opcode and CRC-32 footer, returning the CRC value.
func (s *Serializer) Finish() (uint32, error) {
	if err := s.write([]byte{opEOF}); err != nil {
		return 0, err
	}
	sum := s.crc.Sum32()
	footer := make([]byte, 4)
	binary.LittleEndian.PutUint32(footer, sum)
	if _, err := s.w.Write(footer); err != nil {
		return 0, err
	}
	return sum, nil
}
