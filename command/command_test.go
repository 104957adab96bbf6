package command

import (
	"strings"
	"testing"

	"github.com/launix-de/nanoredis/obj"
	"github.com/launix-de/nanoredis/store"
)

type fakeServer struct{ now int64 }

func (f *fakeServer) Save() error                       { return nil }
func (f *fakeServer) BGSave() error                      { return nil }
func (f *fakeServer) LastSaveMs() int64                  { return 0 }
func (f *fakeServer) SaveInProgress() bool               { return false }
func (f *fakeServer) ConfigGet(pattern string) [][2]string { return nil }
func (f *fakeServer) ConfigSet(name, value string) error { return nil }
func (f *fakeServer) Info() string                       { return "nanoredis_version:test" }
func (f *fakeServer) DebugJSONTable() string              { return "{}" }
func (f *fakeServer) ClientList() []ClientSnapshot       { return nil }
func (f *fakeServer) ClientKill(id uint64) bool          { return false }
func (f *fakeServer) SetClientName(id uint64, name string) {}
func (f *fakeServer) PauseUntil(ms int64)                {}
func (f *fakeServer) Now() int64                         { return f.now }
func (f *fakeServer) NumShards() int                     { return 1 }
func (f *fakeServer) RequestShutdown(save bool)          {}

func newTestContext(t *testing.T) (*Context, *store.Database) {
	t.Helper()
	db := store.NewDatabase(func() int64 { return 1000 })
	dbIndex := 0
	name := ""
	closeAfter := false
	ctx := &Context{
		DB:              db,
		Server:          &fakeServer{now: 1000},
		DBIndex:         &dbIndex,
		ConnName:        &name,
		CloseAfterReply: &closeAfter,
	}
	return ctx, db
}

func bulk(s string) obj.Obj { return obj.FromString([]byte(s)) }

func asString(t *testing.T, reply []byte) string {
	t.Helper()
	s := string(reply)
	if !strings.HasPrefix(s, "$") {
		t.Fatalf("expected bulk string reply, got %q", s)
	}
	parts := strings.SplitN(s[1:], "\r\n", 2)
	n := parts[0]
	if n == "-1" {
		return ""
	}
	return parts[1][:len(parts[1])-2]
}

func TestSetGetRoundTrip(t *testing.T) {
	ctx, _ := newTestContext(t)
	r := DefaultRegistry()

	reply := r.Execute(ctx, []obj.Obj{bulk("SET"), bulk("k"), bulk("v")})
	if string(reply) != "+OK\r\n" {
		t.Fatalf("SET reply = %q", reply)
	}
	reply = r.Execute(ctx, []obj.Obj{bulk("GET"), bulk("k")})
	if got := asString(t, reply); got != "v" {
		t.Fatalf("GET = %q, want v", got)
	}
}

func TestSetNXRejectsExisting(t *testing.T) {
	ctx, _ := newTestContext(t)
	r := DefaultRegistry()
	r.Execute(ctx, []obj.Obj{bulk("SET"), bulk("k"), bulk("v")})
	reply := r.Execute(ctx, []obj.Obj{bulk("SET"), bulk("k"), bulk("v2"), bulk("NX")})
	if string(reply) != "$-1\r\n" {
		t.Fatalf("expected null reply for NX on existing key, got %q", reply)
	}
}

func TestWrongTypeError(t *testing.T) {
	ctx, _ := newTestContext(t)
	r := DefaultRegistry()
	r.Execute(ctx, []obj.Obj{bulk("LPUSH"), bulk("l"), bulk("a")})
	reply := r.Execute(ctx, []obj.Obj{bulk("GET"), bulk("l")})
	if !strings.HasPrefix(string(reply), "-WRONGTYPE") {
		t.Fatalf("expected WRONGTYPE error, got %q", reply)
	}
}

func TestArityError(t *testing.T) {
	ctx, _ := newTestContext(t)
	r := DefaultRegistry()
	reply := r.Execute(ctx, []obj.Obj{bulk("GET")})
	if !strings.HasPrefix(string(reply), "-ERR wrong number of arguments") {
		t.Fatalf("expected arity error, got %q", reply)
	}
}

func TestUnknownCommand(t *testing.T) {
	ctx, _ := newTestContext(t)
	r := DefaultRegistry()
	reply := r.Execute(ctx, []obj.Obj{bulk("NOTACOMMAND")})
	if !strings.HasPrefix(string(reply), "-ERR unknown command") {
		t.Fatalf("expected unknown command error, got %q", reply)
	}
}

func TestIncrDecr(t *testing.T) {
	ctx, _ := newTestContext(t)
	r := DefaultRegistry()
	r.Execute(ctx, []obj.Obj{bulk("SET"), bulk("n"), bulk("10")})
	reply := r.Execute(ctx, []obj.Obj{bulk("INCRBY"), bulk("n"), bulk("5")})
	if string(reply) != ":15\r\n" {
		t.Fatalf("INCRBY reply = %q", reply)
	}
	reply = r.Execute(ctx, []obj.Obj{bulk("DECR"), bulk("n")})
	if string(reply) != ":14\r\n" {
		t.Fatalf("DECR reply = %q", reply)
	}
}

func TestHashRoundTrip(t *testing.T) {
	ctx, _ := newTestContext(t)
	r := DefaultRegistry()
	reply := r.Execute(ctx, []obj.Obj{bulk("HSET"), bulk("h"), bulk("f1"), bulk("v1"), bulk("f2"), bulk("v2")})
	if string(reply) != ":2\r\n" {
		t.Fatalf("HSET reply = %q", reply)
	}
	reply = r.Execute(ctx, []obj.Obj{bulk("HGET"), bulk("h"), bulk("f1")})
	if got := asString(t, reply); got != "v1" {
		t.Fatalf("HGET = %q, want v1", got)
	}
	reply = r.Execute(ctx, []obj.Obj{bulk("HLEN"), bulk("h")})
	if string(reply) != ":2\r\n" {
		t.Fatalf("HLEN reply = %q", reply)
	}
}

func TestSetFamilyBasics(t *testing.T) {
	ctx, _ := newTestContext(t)
	r := DefaultRegistry()
	r.Execute(ctx, []obj.Obj{bulk("SADD"), bulk("s"), bulk("a"), bulk("b")})
	reply := r.Execute(ctx, []obj.Obj{bulk("SCARD"), bulk("s")})
	if string(reply) != ":2\r\n" {
		t.Fatalf("SCARD reply = %q", reply)
	}
	reply = r.Execute(ctx, []obj.Obj{bulk("SISMEMBER"), bulk("s"), bulk("a")})
	if string(reply) != ":1\r\n" {
		t.Fatalf("SISMEMBER reply = %q", reply)
	}
}

func TestListFamilyBasics(t *testing.T) {
	ctx, _ := newTestContext(t)
	r := DefaultRegistry()
	r.Execute(ctx, []obj.Obj{bulk("RPUSH"), bulk("l"), bulk("a"), bulk("b"), bulk("c")})
	reply := r.Execute(ctx, []obj.Obj{bulk("LLEN"), bulk("l")})
	if string(reply) != ":3\r\n" {
		t.Fatalf("LLEN reply = %q", reply)
	}
	reply = r.Execute(ctx, []obj.Obj{bulk("LPOP"), bulk("l")})
	if got := asString(t, reply); got != "a" {
		t.Fatalf("LPOP = %q, want a", got)
	}
}

func TestExpireTTL(t *testing.T) {
	ctx, _ := newTestContext(t)
	r := DefaultRegistry()
	r.Execute(ctx, []obj.Obj{bulk("SET"), bulk("k"), bulk("v")})
	r.Execute(ctx, []obj.Obj{bulk("EXPIRE"), bulk("k"), bulk("100")})
	reply := r.Execute(ctx, []obj.Obj{bulk("TTL"), bulk("k")})
	if string(reply) != ":100\r\n" {
		t.Fatalf("TTL reply = %q", reply)
	}
}

func TestPing(t *testing.T) {
	ctx, _ := newTestContext(t)
	r := DefaultRegistry()
	reply := r.Execute(ctx, []obj.Obj{bulk("PING")})
	if string(reply) != "+PONG\r\n" {
		t.Fatalf("PING reply = %q", reply)
	}
}
