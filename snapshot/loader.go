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

// crcReader feeds every byte it reads (except the trailing CRC field
// itself) into a running CRC-32 checksum, so Load can verify the footer
// without buffering the whole section in memory.
type crcReader struct {
	r   io.Reader
	crc hash.Hash32
}

func (c *crcReader) readN(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(c.r, buf); err != nil {
		return nil, err
	}
	c.crc.Write(buf)
	return buf, nil
}

func (c *crcReader) readRaw(n int) ([]byte, error) {
	buf := make([]byte, n)
	_, err := io.ReadFull(c.r, buf)
	return buf, err
}

func (c *crcReader) readByte() (byte, error) {
	b, err := c.readN(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (c *crcReader) readVarint() (uint64, error) {
	var x uint64
	var shift uint
	for {
		b, err := c.readByte()
		if err != nil {
			return 0, err
		}
		x |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return x, nil
		}
		shift += 7
		if shift >= 64 {
			return 0, ErrProtocol
		}
	}
}

// Entry is one loaded key/value pair with its optional absolute expiry.
type Entry struct {
	DB         int
	Key        obj.Obj
	Value      obj.Obj
	ExpireAtMs int64 // negative if no expiry
}

// Load reads one shard section from r, validating the magic and, unless
// expectShardID is negative, the section's shard_id. onEntry is invoked for
// every object record in file order. Load validates the CRC-32 footer
// before returning.
func Load(r io.Reader, expectShardID int64, onEntry func(Entry) error) (Header, error) {
	cr := &crcReader{r: r, crc: crc32.NewIEEE()}
	raw, err := cr.readN(headerSize)
	if err != nil {
		return Header{}, err
	}
	if string(raw[:8]) != Magic {
		return Header{}, ErrBadMagic
	}
	hdr := Header{
		ShardID:     binary.LittleEndian.Uint32(raw[8:12]),
		NumShards:   binary.LittleEndian.Uint32(raw[12:16]),
		TimestampMs: binary.LittleEndian.Uint64(raw[16:24]),
		NumDBs:      binary.LittleEndian.Uint16(raw[24:26]),
	}
	if expectShardID >= 0 && uint32(expectShardID) != hdr.ShardID {
		return hdr, ErrShardMismatch
	}

	curDB := 0
	pendingExpire := int64(-1)
	for {
		opcode, err := cr.readByte()
		if err != nil {
			return hdr, err
		}
		switch opcode {
		case opDBSelect:
			v, err := cr.readVarint()
			if err != nil {
				return hdr, err
			}
			curDB = int(v)
		case opDBSize:
			if _, err := cr.readVarint(); err != nil {
				return hdr, err
			}
		case opExpireMs:
			v, err := cr.readVarint()
			if err != nil {
				return hdr, err
			}
			pendingExpire = int64(v)
		case objString, objInt, objHash, objSet, objList, objZSet:
			entry, err := readObject(cr, opcode, curDB, pendingExpire)
			if err != nil {
				return hdr, err
			}
			pendingExpire = -1
			if onEntry != nil {
				if err := onEntry(entry); err != nil {
					return hdr, err
				}
			}
		case opEOF:
			want := cr.crc.Sum32()
			footer, err := cr.readRaw(4)
			if err != nil {
				return hdr, err
			}
			if binary.LittleEndian.Uint32(footer) != want {
				return hdr, ErrCRCMismatch
			}
			return hdr, nil
		default:
			return hdr, ErrProtocol
		}
	}
}

func readObject(cr *crcReader, opcode byte, db int, expireAtMs int64) (Entry, error) {
	keylen, err := cr.readVarint()
	if err != nil {
		return Entry{}, err
	}
	keyBytes, err := cr.readN(int(keylen))
	if err != nil {
		return Entry{}, err
	}
	key := obj.FromString(keyBytes)

	if opcode == objZSet {
		return Entry{}, ErrUnsupportedType
	}

	value, err := readPayload(cr, opcode)
	if err != nil {
		return Entry{}, err
	}
	return Entry{DB: db, Key: key, Value: value, ExpireAtMs: expireAtMs}, nil
}

func readPayload(cr *crcReader, opcode byte) (obj.Obj, error) {
	switch opcode {
	case objString:
		n, err := cr.readVarint()
		if err != nil {
			return obj.Obj{}, err
		}
		b, err := cr.readN(int(n))
		if err != nil {
			return obj.Obj{}, err
		}
		return obj.FromString(b), nil
	case objInt:
		b, err := cr.readN(8)
		if err != nil {
			return obj.Obj{}, err
		}
		return obj.FromInt(int64(binary.LittleEndian.Uint64(b))), nil
	case objHash:
		count, err := cr.readVarint()
		if err != nil {
			return obj.Obj{}, err
		}
		h := obj.NewHash()
		for i := uint64(0); i < count; i++ {
			fl, err := cr.readVarint()
			if err != nil {
				return obj.Obj{}, err
			}
			field, err := cr.readN(int(fl))
			if err != nil {
				return obj.Obj{}, err
			}
			vl, err := cr.readVarint()
			if err != nil {
				return obj.Obj{}, err
			}
			val, err := cr.readN(int(vl))
			if err != nil {
				return obj.Obj{}, err
			}
			h.Set(field, val)
		}
		return obj.FromHash(h), nil
	case objSet:
		count, err := cr.readVarint()
		if err != nil {
			return obj.Obj{}, err
		}
		set := obj.NewSet()
		for i := uint64(0); i < count; i++ {
			l, err := cr.readVarint()
			if err != nil {
				return obj.Obj{}, err
			}
			b, err := cr.readN(int(l))
			if err != nil {
				return obj.Obj{}, err
			}
			set.Add(b)
		}
		return obj.FromSet(set), nil
	case objList:
		count, err := cr.readVarint()
		if err != nil {
			return obj.Obj{}, err
		}
		list := obj.NewList()
		for i := uint64(0); i < count; i++ {
			l, err := cr.readVarint()
			if err != nil {
				return obj.Obj{}, err
			}
			b, err := cr.readN(int(l))
			if err != nil {
				return obj.Obj{}, err
			}
			list.PushRight(b)
		}
		return obj.FromList(list), nil
	default:
		return obj.Obj{}, ErrProtocol
	}
}
