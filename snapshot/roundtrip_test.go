package snapshot

import (
	"bytes"
	"testing"

	"github.com/launix-de/nanoredis/obj"
)

func TestSerializerLoaderRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	ser, err := NewSerializer(&buf, 0, 1, 16, 1000)
	if err != nil {
		t.Fatalf("NewSerializer: %v", err)
	}
	if err := ser.Put(0, obj.FromString([]byte("foo")), obj.FromString([]byte("bar")), -1); err != nil {
		t.Fatalf("Put string: %v", err)
	}
	if err := ser.Put(0, obj.FromString([]byte("counter")), obj.FromInt(42), 5000); err != nil {
		t.Fatalf("Put int: %v", err)
	}
	h := obj.NewHash()
	h.Set([]byte("f1"), []byte("v1"))
	if err := ser.Put(1, obj.FromString([]byte("myhash")), obj.FromHash(h), -1); err != nil {
		t.Fatalf("Put hash: %v", err)
	}
	s := obj.NewSet()
	s.Add([]byte("m1"))
	s.Add([]byte("m2"))
	if err := ser.Put(1, obj.FromString([]byte("myset")), obj.FromSet(s), -1); err != nil {
		t.Fatalf("Put set: %v", err)
	}
	l := obj.NewList()
	l.PushRight([]byte("a"))
	l.PushRight([]byte("b"))
	if err := ser.Put(1, obj.FromString([]byte("mylist")), obj.FromList(l), -1); err != nil {
		t.Fatalf("Put list: %v", err)
	}
	if _, err := ser.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	var entries []Entry
	hdr, err := Load(&buf, 0, func(e Entry) error {
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if hdr.NumDBs != 16 || hdr.NumShards != 1 {
		t.Fatalf("unexpected header: %+v", hdr)
	}
	if len(entries) != 5 {
		t.Fatalf("got %d entries, want 5", len(entries))
	}
	if string(entries[0].Key.AsString()) != "foo" || string(entries[0].Value.AsString()) != "bar" {
		t.Fatalf("entry 0 mismatch: %+v", entries[0])
	}
	if entries[1].ExpireAtMs != 5000 {
		t.Fatalf("entry 1 expiry mismatch: %+v", entries[1])
	}
	if n, ok := entries[1].Value.AsInt(); !ok || n != 42 {
		t.Fatalf("entry 1 value mismatch: %+v", entries[1])
	}
	if entries[2].DB != 1 || entries[2].Value.GetType() != obj.TypeHash {
		t.Fatalf("entry 2 (hash) mismatch: %+v", entries[2])
	}
	if entries[3].Value.GetType() != obj.TypeSet || entries[3].Value.Size() != 2 {
		t.Fatalf("entry 3 (set) mismatch: %+v", entries[3])
	}
	if entries[4].Value.GetType() != obj.TypeList || entries[4].Value.Size() != 2 {
		t.Fatalf("entry 4 (list) mismatch: %+v", entries[4])
	}
}

func TestLoaderRejectsBadMagic(t *testing.T) {
	bad := bytes.Repeat([]byte{0}, headerSize)
	_, err := Load(bytes.NewReader(bad), -1, nil)
	if err != ErrBadMagic {
		t.Fatalf("expected ErrBadMagic, got %v", err)
	}
}

func TestLoaderDetectsCRCCorruption(t *testing.T) {
	var buf bytes.Buffer
	ser, _ := NewSerializer(&buf, 0, 1, 16, 1)
	ser.Put(0, obj.FromString([]byte("k")), obj.FromString([]byte("v")), -1)
	ser.Finish()

	corrupted := buf.Bytes()
	corrupted[len(corrupted)-1] ^= 0xFF // flip a bit in the CRC footer
	_, err := Load(bytes.NewReader(corrupted), 0, func(Entry) error { return nil })
	if err != ErrCRCMismatch {
		t.Fatalf("expected ErrCRCMismatch, got %v", err)
	}
}

func TestLoaderShardMismatch(t *testing.T) {
	var buf bytes.Buffer
	ser, _ := NewSerializer(&buf, 3, 8, 16, 1)
	ser.Finish()
	_, err := Load(&buf, 0, nil)
	if err != ErrShardMismatch {
		t.Fatalf("expected ErrShardMismatch, got %v", err)
	}
}
