package rstore

import (
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/dCtx/lib/ctxstore"
	"github.com/ValentinKolb/dCtx/lib/ctxstore/codec"
	ctxtesting "github.com/ValentinKolb/dCtx/lib/ctxstore/testing"
	"github.com/alicebob/miniredis/v2"
)

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// configFor returns a config pointing at the given miniredis instance
func configFor(t *testing.T, mr *miniredis.Miniredis, prefix string) ctxstore.Config {
	t.Helper()
	port, err := strconv.Atoi(mr.Port())
	if err != nil {
		t.Fatalf("invalid miniredis port %q: %v", mr.Port(), err)
	}
	return ctxstore.Config{
		Host:          mr.Host(),
		Port:          port,
		Prefix:        prefix,
		TimeoutSecond: 5,
	}
}

// freePort returns a local port nobody listens on
func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("could not reserve port: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	_ = l.Close()
	return port
}

// stallingRelay forwards connections to a target. While stalled, commands are
// swallowed so the client never sees a reply.
type stallingRelay struct {
	ln      net.Listener
	target  string
	stalled atomic.Bool
}

// newStallingRelay starts a relay in front of target, it is closed when the test ends
func newStallingRelay(t *testing.T, target string) *stallingRelay {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("could not listen: %v", err)
	}
	r := &stallingRelay{ln: ln, target: target}
	t.Cleanup(func() { _ = ln.Close() })
	go r.serve()
	return r
}

func (r *stallingRelay) serve() {
	for {
		client, err := r.ln.Accept()
		if err != nil {
			return
		}
		go r.handle(client)
	}
}

func (r *stallingRelay) handle(client net.Conn) {
	server, err := net.Dial("tcp", r.target)
	if err != nil {
		_ = client.Close()
		return
	}
	go func() {
		_, _ = io.Copy(client, server)
		_ = client.Close()
	}()

	buf := make([]byte, 4096)
	for {
		n, err := client.Read(buf)
		if err != nil {
			_ = server.Close()
			return
		}
		if r.stalled.Load() {
			continue
		}
		if _, err := server.Write(buf[:n]); err != nil {
			_ = client.Close()
			return
		}
	}
}

// config returns a config pointing at the relay
func (r *stallingRelay) config(timeoutSecond int) ctxstore.Config {
	addr := r.ln.Addr().(*net.TCPAddr)
	return ctxstore.Config{
		Host:          addr.IP.String(),
		Port:          addr.Port,
		TimeoutSecond: timeoutSecond,
	}
}

// --------------------------------------------------------------------------
// Conformance
// --------------------------------------------------------------------------

func Test(t *testing.T) {
	for _, c := range []codec.IValueCodec{codec.NewJSONCodec(), codec.NewSonicCodec()} {
		mr := miniredis.RunT(t)
		ctxtesting.RunContextStoreTests(t, "RedisStore/"+c.Name(), func(t *testing.T, prefix string) ctxstore.IContextStore {
			return NewRedisStore(configFor(t, mr, prefix), c)
		})
	}

	mr := miniredis.RunT(t)
	ctxtesting.RunContextStoreTests(t, "RedisStore/AwaitUnset", func(t *testing.T, prefix string) ctxstore.IContextStore {
		config := configFor(t, mr, prefix)
		config.AwaitUnset = true
		return NewRedisStore(config, nil)
	})
}

// --------------------------------------------------------------------------
// Redis specific tests
// --------------------------------------------------------------------------

func TestStoredRepresentation(t *testing.T) {
	mr := miniredis.RunT(t)
	store := NewRedisStore(configFor(t, mr, "myapp"), nil)
	ctx := context.Background()
	if err := store.Open(ctx); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer store.Close(ctx)

	if err := store.SetMany(ctx, "conv-1", []string{"greeting", "state"}, []any{"hi", map[string]any{"step": 2}}); err != nil {
		t.Fatalf("SetMany failed: %v", err)
	}

	tests := []struct {
		field string
		want  string
	}{
		{"greeting", `"hi"`},
		{"state", `{"step":2}`},
	}
	for _, tt := range tests {
		if got := mr.HGet("myapp:conv-1", tt.field); got != tt.want {
			t.Errorf("HGet(%s) = %s, want %s", tt.field, got, tt.want)
		}
	}
	if mr.Exists("conv-1") {
		t.Errorf("Unprefixed hash must not exist")
	}
}

func TestDatabaseSelection(t *testing.T) {
	mr := miniredis.RunT(t)
	config := configFor(t, mr, "")
	config.DB = 3
	store := NewRedisStore(config, nil)
	ctx := context.Background()
	if err := store.Open(ctx); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer store.Close(ctx)

	if err := store.Set(ctx, "scope", "k", "v"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if got := mr.DB(3).HGet("scope", "k"); got != `"v"` {
		t.Errorf("Expected value in db 3, got %q", got)
	}
	if mr.DB(0).Exists("scope") {
		t.Errorf("Value must not be written to db 0")
	}
}

func TestAuthentication(t *testing.T) {
	mr := miniredis.RunT(t)
	mr.RequireUserAuth("alice", "secret")
	ctx := context.Background()

	tests := []struct {
		name     string
		username string
		password string
		wantErr  bool
	}{
		{"valid credentials", "alice", "secret", false},
		{"wrong password", "alice", "wrong", true},
		{"no credentials", "", "", true},
		{"password without username is ignored", "", "secret", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := configFor(t, mr, "")
			config.Username = tt.username
			config.Password = tt.password
			store := NewRedisStore(config, nil)

			err := store.Open(ctx)
			if tt.wantErr {
				if !errors.Is(err, ctxstore.ErrConnection) {
					t.Fatalf("Expected ErrConnection, got %v", err)
				}
				if store.State() != StateDisconnected {
					t.Errorf("Failed Open must leave the store disconnected, state %s", store.State())
				}
				if _, err := store.Get(ctx, "s", "k"); !errors.Is(err, ctxstore.ErrStore) {
					t.Errorf("Expected ErrStore after failed Open, got %v", err)
				}
				if err := store.Close(ctx); err != nil {
					t.Errorf("Close after failed Open returned %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Open failed: %v", err)
			}
			if err := store.Set(ctx, "s", "k", 1); err != nil {
				t.Errorf("Set failed: %v", err)
			}
			if err := store.Close(ctx); err != nil {
				t.Errorf("Close failed: %v", err)
			}
		})
	}
}

func TestConnectionRefused(t *testing.T) {
	store := NewRedisStore(ctxstore.Config{Host: "127.0.0.1", Port: freePort(t), TimeoutSecond: 2}, nil)
	ctx := context.Background()

	err := store.Open(ctx)
	if !errors.Is(err, ctxstore.ErrConnection) {
		t.Fatalf("Expected ErrConnection, got %v", err)
	}
	if store.State() != StateDisconnected {
		t.Errorf("Expected state disconnected, got %s", store.State())
	}
	if err := store.Close(ctx); err != nil {
		t.Errorf("Close after failed Open returned %v", err)
	}
}

func TestStateTransitions(t *testing.T) {
	mr := miniredis.RunT(t)
	store := NewRedisStore(configFor(t, mr, ""), nil)
	ctx := context.Background()

	if store.State() != StateDisconnected {
		t.Fatalf("New store must be disconnected, got %s", store.State())
	}
	if err := store.Open(ctx); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if store.State() != StateReady {
		t.Errorf("Expected ready, got %s", store.State())
	}
	if err := store.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if store.State() != StateDisconnected {
		t.Errorf("Expected disconnected, got %s", store.State())
	}
}

func TestMalformedStoredValue(t *testing.T) {
	mr := miniredis.RunT(t)
	store := NewRedisStore(configFor(t, mr, "app"), nil)
	ctx := context.Background()
	if err := store.Open(ctx); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer store.Close(ctx)

	mr.HSet("app:scope", "broken", "{not json")
	mr.HSet("app:scope", "fine", `"ok"`)

	_, err := store.Get(ctx, "scope", "broken")
	if !errors.Is(err, ctxstore.ErrSerialization) || !errors.Is(err, ctxstore.ErrStore) {
		t.Errorf("Expected serialization error, got %v", err)
	}
	if _, err := store.GetMany(ctx, "scope", []string{"fine", "broken"}); !errors.Is(err, ctxstore.ErrSerialization) {
		t.Errorf("Expected serialization error for GetMany, got %v", err)
	}
	if v, err := store.Get(ctx, "scope", "fine"); err != nil || v != "ok" {
		t.Errorf("Expected ok, got %#v (%v)", v, err)
	}
}

func TestWrongType(t *testing.T) {
	mr := miniredis.RunT(t)
	store := NewRedisStore(configFor(t, mr, ""), nil)
	ctx := context.Background()
	if err := store.Open(ctx); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer store.Close(ctx)

	// a plain string key cannot be used as a scope
	if err := mr.Set("plain", "value"); err != nil {
		t.Fatalf("miniredis Set failed: %v", err)
	}
	if _, err := store.Get(ctx, "plain", "k"); !errors.Is(err, ctxstore.ErrStore) {
		t.Errorf("Expected ErrStore, got %v", err)
	}
	if err := store.Set(ctx, "plain", "k", 1); !errors.Is(err, ctxstore.ErrStore) {
		t.Errorf("Expected ErrStore, got %v", err)
	}
	if _, err := store.Keys(ctx, "plain"); !errors.Is(err, ctxstore.ErrStore) {
		t.Errorf("Expected ErrStore, got %v", err)
	}
}

func TestTimeout(t *testing.T) {
	mr := miniredis.RunT(t)
	store := NewRedisStore(configFor(t, mr, ""), nil)
	if err := store.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer store.Close(context.Background())

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	if _, err := store.Get(ctx, "scope", "k"); !errors.Is(err, ctxstore.ErrTimeout) {
		t.Errorf("Expected ErrTimeout, got %v", err)
	}
	if err := store.Set(ctx, "scope", "k", "v"); !errors.Is(err, ctxstore.ErrTimeout) {
		t.Errorf("Expected ErrTimeout, got %v", err)
	}
}

func TestTimeoutWhileWaitingForReply(t *testing.T) {
	mr := miniredis.RunT(t)
	relay := newStallingRelay(t, mr.Addr())
	store := NewRedisStore(relay.config(1), nil)
	ctx := context.Background()

	if err := store.Open(ctx); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer store.Close(ctx)
	if err := store.Set(ctx, "scope", "k", "v"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	relay.stalled.Store(true)

	start := time.Now()
	_, err := store.Get(ctx, "scope", "k")
	elapsed := time.Since(start)

	if !errors.Is(err, ctxstore.ErrTimeout) {
		t.Errorf("Expected ErrTimeout, got %v", err)
	}
	// the configured timeout applies, not the client's default read timeout (3s)
	if elapsed < 900*time.Millisecond || elapsed > 2500*time.Millisecond {
		t.Errorf("Expected the call to end after about 1s, took %s", elapsed)
	}
}

func TestOpenTimeoutIsConnectionError(t *testing.T) {
	mr := miniredis.RunT(t)
	relay := newStallingRelay(t, mr.Addr())
	relay.stalled.Store(true)

	tests := []struct {
		name string
		ctx  func() (context.Context, context.CancelFunc)
	}{
		{"configured timeout", func() (context.Context, context.CancelFunc) {
			return context.WithCancel(context.Background())
		}},
		{"expired deadline", func() (context.Context, context.CancelFunc) {
			return context.WithTimeout(context.Background(), -time.Second)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewRedisStore(relay.config(1), nil)
			ctx, cancel := tt.ctx()
			defer cancel()

			start := time.Now()
			err := store.Open(ctx)
			if !errors.Is(err, ctxstore.ErrConnection) {
				t.Errorf("Expected ErrConnection, got %v", err)
			}
			if !errors.Is(err, ctxstore.ErrTimeout) {
				t.Errorf("Expected the error to also report the timeout, got %v", err)
			}
			if elapsed := time.Since(start); elapsed > 2500*time.Millisecond {
				t.Errorf("Open took %s", elapsed)
			}
			if state := store.State(); state != StateDisconnected {
				t.Errorf("Expected state %s after failed Open, got %s", StateDisconnected, state)
			}
		})
	}
}

func TestConcurrentOpenFailsFast(t *testing.T) {
	mr := miniredis.RunT(t)
	relay := newStallingRelay(t, mr.Addr())
	relay.stalled.Store(true)

	store := NewRedisStore(relay.config(2), nil)
	ctx := context.Background()

	firstDone := make(chan error, 1)
	go func() { firstDone <- store.Open(ctx) }()

	deadline := time.Now().Add(time.Second)
	for store.State() != StateConnecting {
		if time.Now().After(deadline) {
			t.Fatalf("first Open never reached %s", StateConnecting)
		}
		time.Sleep(time.Millisecond)
	}

	start := time.Now()
	if err := store.Open(ctx); !errors.Is(err, ctxstore.ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument for Open while connecting, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Second Open waited for the first one (%s)", elapsed)
	}

	if err := <-firstDone; !errors.Is(err, ctxstore.ErrConnection) {
		t.Errorf("Expected the first Open to fail with ErrConnection, got %v", err)
	}
}

func TestCloseWaitsForPendingOperations(t *testing.T) {
	mr := miniredis.RunT(t)
	store := NewRedisStore(configFor(t, mr, ""), nil)
	ctx := context.Background()
	if err := store.Open(ctx); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	for _, scope := range []string{"a", "b", "c"} {
		if err := store.Set(ctx, scope, "k", "v"); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}
	if err := store.Set(ctx, "a", "k", ctxstore.Undefined); err != nil {
		t.Fatalf("Unset failed: %v", err)
	}
	store.Delete("b")

	if err := store.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// all fire-and-forget operations completed before the connection was closed
	if mr.Exists("a") || mr.Exists("b") {
		t.Errorf("Pending operations were dropped by Close")
	}
	if !mr.Exists("c") {
		t.Errorf("Unrelated scope was removed")
	}
}

func TestUnsetBeforeOpen(t *testing.T) {
	store := NewRedisStore(ctxstore.Config{Host: "127.0.0.1", Port: 6379}, nil)
	ctx := context.Background()

	if err := store.Set(ctx, "s", "k", ctxstore.Undefined); !errors.Is(err, ctxstore.ErrStore) {
		t.Errorf("Expected ErrStore for fire-and-forget unset before Open, got %v", err)
	}
	if err := store.UnsetMany(ctx, "s", []string{"k"}); !errors.Is(err, ctxstore.ErrStore) {
		t.Errorf("Expected ErrStore for UnsetMany before Open, got %v", err)
	}
}
