package resp

import (
	"bytes"
	"io"
	"testing"
)

func TestParseInlinePing(t *testing.T) {
	r := NewReader(bytes.NewBufferString("PING\r\n"))
	args, err := r.ParseCommand()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(args) != 1 || string(args[0].AsString()) != "PING" {
		t.Fatalf("got %v", args)
	}
}

func TestParseArrayCommand(t *testing.T) {
	r := NewReader(bytes.NewBufferString("*3\r\n$3\r\nSET\r\n$3\r\nfoo\r\n$3\r\nbar\r\n"))
	args, err := r.ParseCommand()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"SET", "foo", "bar"}
	if len(args) != len(want) {
		t.Fatalf("got %d args, want %d", len(args), len(want))
	}
	for i, w := range want {
		if string(args[i].AsString()) != w {
			t.Fatalf("arg %d = %q, want %q", i, args[i].AsString(), w)
		}
	}
}

func TestBulkStringNullArgument(t *testing.T) {
	r := NewReader(bytes.NewBufferString("*1\r\n$-1\r\n"))
	args, err := r.ParseCommand()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(args) != 1 || !args[0].IsNull() {
		t.Fatalf("expected single null argument, got %v", args)
	}
}

func TestRoundTripBulkString(t *testing.T) {
	wire := MakeBulkString([]byte("abc"))
	r := NewReader(bytes.NewReader(wire))
	args, err := r.ParseCommand()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(args) != 1 || string(args[0].AsString()) != "abc" {
		t.Fatalf("got %v", args)
	}
}

func TestParseCommandEOF(t *testing.T) {
	r := NewReader(bytes.NewBuffer(nil))
	_, err := r.ParseCommand()
	if err != io.EOF {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestMalformedBulkLength(t *testing.T) {
	r := NewReader(bytes.NewBufferString("*1\r\n$abc\r\n"))
	_, err := r.ParseCommand()
	if err != ErrProtocol {
		t.Fatalf("expected ErrProtocol, got %v", err)
	}
}

func TestParseOversizedBulkGrowsBuffer(t *testing.T) {
	payload := bytes.Repeat([]byte("x"), initialBufSize*2)
	wire := append([]byte{}, MakeArrayHeader(1)...)
	wire = append(wire, MakeBulkString(payload)...)
	r := NewReader(bytes.NewReader(wire))
	args, err := r.ParseCommand()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(args) != 1 || !bytes.Equal(args[0].AsString(), payload) {
		t.Fatalf("oversized bulk string round-trip failed")
	}
}

func TestStreamingMultipleCommands(t *testing.T) {
	r := NewReader(bytes.NewBufferString("*1\r\n$4\r\nPING\r\n*1\r\n$4\r\nPING\r\n"))
	for i := 0; i < 2; i++ {
		args, err := r.ParseCommand()
		if err != nil {
			t.Fatalf("command %d: %v", i, err)
		}
		if len(args) != 1 || string(args[0].AsString()) != "PING" {
			t.Fatalf("command %d: got %v", i, args)
		}
	}
	if _, err := r.ParseCommand(); err != io.EOF {
		t.Fatalf("expected EOF after two commands, got %v", err)
	}
}
