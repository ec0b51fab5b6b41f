package testing

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/dCtx/lib/ctxstore"
	"github.com/google/uuid"
)

// StoreFactory creates a new, unopened store using the given prefix.
// All stores created by one factory must share the same backing data.
type StoreFactory func(t *testing.T, prefix string) ctxstore.IContextStore

// RunContextStoreTests runs a comprehensive test suite for an IContextStore implementation.
func RunContextStoreTests(t *testing.T, name string, factory StoreFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Set&Get", func(t *testing.T) {
			testSetGet(t, openStore(t, factory, "app"))
		})

		t.Run("SingleKeyConvention", func(t *testing.T) {
			testSingleKeyConvention(t, openStore(t, factory, "app"))
		})

		t.Run("MultiKeyConvention", func(t *testing.T) {
			testMultiKeyConvention(t, openStore(t, factory, "app"))
		})

		t.Run("AbsentKey", func(t *testing.T) {
			testAbsentKey(t, openStore(t, factory, "app"))
		})

		t.Run("Unset", func(t *testing.T) {
			testUnset(t, openStore(t, factory, "app"))
		})

		t.Run("DeleteScope", func(t *testing.T) {
			testDeleteScope(t, openStore(t, factory, "app"))
		})

		t.Run("Keys", func(t *testing.T) {
			testKeys(t, openStore(t, factory, "app"))
		})

		t.Run("PrefixIsolation", func(t *testing.T) {
			testPrefixIsolation(t, openStore(t, factory, "app"), openStore(t, factory, "other"), openStore(t, factory, ""))
		})

		t.Run("InvalidArguments", func(t *testing.T) {
			testInvalidArguments(t, openStore(t, factory, "app"))
		})

		t.Run("Serialization", func(t *testing.T) {
			testSerialization(t, openStore(t, factory, "app"))
		})

		t.Run("CallbackEquivalence", func(t *testing.T) {
			testCallbackEquivalence(t, openStore(t, factory, "app"))
		})

		t.Run("Clean", func(t *testing.T) {
			testClean(t, openStore(t, factory, "app"))
		})

		t.Run("Lifecycle", func(t *testing.T) {
			testLifecycle(t, factory)
		})

		t.Run("Concurrency", func(t *testing.T) {
			testConcurrency(t, openStore(t, factory, "app"))
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// openStore creates and opens a store, it is closed when the test ends
func openStore(t *testing.T, factory StoreFactory, prefix string) ctxstore.IContextStore {
	t.Helper()
	store := factory(t, prefix)
	if err := store.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(context.Background()); err != nil {
			t.Errorf("Close failed: %v", err)
		}
	})
	return store
}

// newScope returns a scope name not used by any other test
func newScope() string {
	return "scope-" + uuid.NewString()
}

// eventually polls cond until it returns true or the timeout expires.
// Used for fire-and-forget operations.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func mustSet(t *testing.T, store ctxstore.IContextStore, scope, key string, value any) {
	t.Helper()
	if err := store.Set(context.Background(), scope, key, value); err != nil {
		t.Fatalf("Set(%q, %q) failed: %v", scope, key, err)
	}
}

func mustGet(t *testing.T, store ctxstore.IContextStore, scope, key string) any {
	t.Helper()
	value, err := store.Get(context.Background(), scope, key)
	if err != nil {
		t.Fatalf("Get(%q, %q) failed: %v", scope, key, err)
	}
	return value
}

func mustKeys(t *testing.T, store ctxstore.IContextStore, scope string) []string {
	t.Helper()
	keys, err := store.Keys(context.Background(), scope)
	if err != nil {
		t.Fatalf("Keys(%q) failed: %v", scope, err)
	}
	sort.Strings(keys)
	return keys
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testSetGet(t *testing.T, store ctxstore.IContextStore) {
	scope := newScope()

	tests := []struct {
		name  string
		value any
	}{
		{"string", "hello"},
		{"empty string", ""},
		{"number", 42.5},
		{"negative number", -7.0},
		{"bool", true},
		{"null", nil},
		{"array", []any{"a", 1.0, false, nil}},
		{"object", map[string]any{"name": "alice", "age": 30.0}},
		{"nested", map[string]any{
			"history": []any{map[string]any{"role": "user", "text": "hi"}},
			"meta":    map[string]any{"turns": 1.0, "tags": []any{}},
		}},
		{"unicode", "grüße, 世界"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mustSet(t, store, scope, tt.name, tt.value)
			got := mustGet(t, store, scope, tt.name)
			if !reflect.DeepEqual(got, tt.value) {
				t.Errorf("Get() = %#v, want %#v", got, tt.value)
			}
		})
	}

	// overwrite
	mustSet(t, store, scope, "string", "updated")
	if got := mustGet(t, store, scope, "string"); got != "updated" {
		t.Errorf("Expected updated value, got %#v", got)
	}
}

func testSingleKeyConvention(t *testing.T, store ctxstore.IContextStore) {
	scope := newScope()
	mustSet(t, store, scope, "k", "v")

	got := mustGet(t, store, scope, "k")
	if _, isSlice := got.([]any); isSlice {
		t.Fatalf("Single key Get returned a slice: %#v", got)
	}
	if got != "v" {
		t.Errorf("Expected %q, got %#v", "v", got)
	}

	// a one element key list still yields a list
	values, err := store.GetMany(context.Background(), scope, []string{"k"})
	if err != nil {
		t.Fatalf("GetMany failed: %v", err)
	}
	if !reflect.DeepEqual(values, []any{"v"}) {
		t.Errorf("Expected [v], got %#v", values)
	}
}

func testMultiKeyConvention(t *testing.T, store ctxstore.IContextStore) {
	ctx := context.Background()
	scope := newScope()

	if err := store.SetMany(ctx, scope, []string{"a", "b"}, []any{1, 2}); err != nil {
		t.Fatalf("SetMany failed: %v", err)
	}

	values, err := store.GetMany(ctx, scope, []string{"a", "b"})
	if err != nil {
		t.Fatalf("GetMany failed: %v", err)
	}
	if !reflect.DeepEqual(values, []any{1.0, 2.0}) {
		t.Errorf("Expected [1 2], got %#v", values)
	}

	// order follows the requested keys
	values, err = store.GetMany(ctx, scope, []string{"b", "missing", "a"})
	if err != nil {
		t.Fatalf("GetMany failed: %v", err)
	}
	if !reflect.DeepEqual(values, []any{2.0, nil, 1.0}) {
		t.Errorf("Expected [2 <nil> 1], got %#v", values)
	}

	// no keys
	values, err = store.GetMany(ctx, scope, []string{})
	if err != nil {
		t.Fatalf("GetMany without keys failed: %v", err)
	}
	if len(values) != 0 {
		t.Errorf("Expected no values, got %#v", values)
	}
}

func testAbsentKey(t *testing.T, store ctxstore.IContextStore) {
	scope := newScope()

	// unknown scope
	if got := mustGet(t, store, scope, "missing"); got != nil {
		t.Errorf("Expected nil for missing key in unknown scope, got %#v", got)
	}

	// known scope, unknown key
	mustSet(t, store, scope, "present", "x")
	if got := mustGet(t, store, scope, "missing"); got != nil {
		t.Errorf("Expected nil for missing key, got %#v", got)
	}
}

func testUnset(t *testing.T, store ctxstore.IContextStore) {
	ctx := context.Background()
	scope := newScope()

	mustSet(t, store, scope, "k", "v")
	mustSet(t, store, scope, "keep", "v")
	mustSet(t, store, scope, "k", ctxstore.Undefined)

	eventually(t, "key k to be removed", func() bool {
		return mustGet(t, store, scope, "k") == nil
	})
	if got := mustGet(t, store, scope, "keep"); got != "v" {
		t.Errorf("Unset removed the wrong key, keep = %#v", got)
	}

	// storing nil is not the same as removing
	mustSet(t, store, scope, "null", nil)
	if keys := mustKeys(t, store, scope); !reflect.DeepEqual(keys, []string{"keep", "null"}) {
		t.Errorf("Expected keys [keep null], got %v", keys)
	}

	// UnsetMany removes all given keys
	if err := store.UnsetMany(ctx, scope, []string{"keep", "null", "never-set"}); err != nil {
		t.Fatalf("UnsetMany failed: %v", err)
	}
	eventually(t, "scope to be empty", func() bool {
		return len(mustKeys(t, store, scope)) == 0
	})
}

func testDeleteScope(t *testing.T, store ctxstore.IContextStore) {
	scope := newScope()
	other := newScope()

	mustSet(t, store, scope, "k", "v")
	mustSet(t, store, scope, "k2", "v2")
	mustSet(t, store, other, "k", "v")

	store.Delete(scope)

	eventually(t, "scope to be deleted", func() bool {
		return mustGet(t, store, scope, "k") == nil
	})
	if keys := mustKeys(t, store, scope); len(keys) != 0 {
		t.Errorf("Expected no keys after Delete, got %v", keys)
	}
	if got := mustGet(t, store, other, "k"); got != "v" {
		t.Errorf("Delete affected another scope, got %#v", got)
	}

	// deleting an unknown scope is harmless
	store.Delete(newScope())
}

func testKeys(t *testing.T, store ctxstore.IContextStore) {
	ctx := context.Background()
	scope := newScope()

	if keys := mustKeys(t, store, scope); keys == nil || len(keys) != 0 {
		t.Errorf("Expected empty (non nil) keys for unknown scope, got %#v", keys)
	}

	mustSet(t, store, scope, "testKey3", "value3")
	mustSet(t, store, scope, "testKey1", "value1")
	if err := store.SetMany(ctx, scope, []string{"testKey2", "testKey1"}, []any{"value2", "again"}); err != nil {
		t.Fatalf("SetMany failed: %v", err)
	}

	want := []string{"testKey1", "testKey2", "testKey3"}
	if keys := mustKeys(t, store, scope); !reflect.DeepEqual(keys, want) {
		t.Errorf("Expected keys %v, got %v", want, keys)
	}
}

func testPrefixIsolation(t *testing.T, app, other, none ctxstore.IContextStore) {
	if got := app.PrefixedScope("a"); got != "app:a" {
		t.Errorf("PrefixedScope = %q, want %q", got, "app:a")
	}
	if got := none.PrefixedScope("a"); got != "a" {
		t.Errorf("PrefixedScope without prefix = %q, want %q", got, "a")
	}

	scope := newScope()
	mustSet(t, app, scope, "k", "from app")

	if got := mustGet(t, other, scope, "k"); got != nil {
		t.Errorf("Value leaked across prefixes: %#v", got)
	}
	if got := mustGet(t, none, scope, "k"); got != nil {
		t.Errorf("Value leaked to unprefixed store: %#v", got)
	}

	mustSet(t, other, scope, "k", "from other")
	if got := mustGet(t, app, scope, "k"); got != "from app" {
		t.Errorf("Write with other prefix collided, got %#v", got)
	}

	// the unprefixed store sees the prefixed hash under its full name
	if got := mustGet(t, none, app.PrefixedScope(scope), "k"); got != "from app" {
		t.Errorf("Expected prefixed hash to be visible by its full name, got %#v", got)
	}

	other.Delete(scope)
	eventually(t, "other scope to be deleted", func() bool {
		return mustGet(t, other, scope, "k") == nil
	})
	if got := mustGet(t, app, scope, "k"); got != "from app" {
		t.Errorf("Delete crossed prefixes, got %#v", got)
	}
}

func testInvalidArguments(t *testing.T, store ctxstore.IContextStore) {
	ctx := context.Background()
	scope := newScope()

	tests := []struct {
		name   string
		keys   []string
		values []any
	}{
		{"more keys", []string{"a", "b"}, []any{1}},
		{"more values", []string{"a"}, []any{1, 2}},
		{"undefined element", []string{"a", "b"}, []any{1, ctxstore.Undefined}},
		{"nil values", []string{"a"}, nil},
	}

	// a rejected write must not touch existing keys
	mustSet(t, store, scope, "a", "kept")

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.SetMany(ctx, scope, tt.keys, tt.values)
			if !errors.Is(err, ctxstore.ErrInvalidArgument) {
				t.Fatalf("Expected ErrInvalidArgument, got %v", err)
			}
		})
	}

	if keys := mustKeys(t, store, scope); !reflect.DeepEqual(keys, []string{"a"}) {
		t.Errorf("Rejected writes must not change the scope, got keys %v", keys)
	}
	if got := mustGet(t, store, scope, "a"); got != "kept" {
		t.Errorf("Rejected writes must not change values, got %#v", got)
	}

	// nothing to write is not an error
	if err := store.SetMany(ctx, scope, nil, nil); err != nil {
		t.Errorf("SetMany without keys failed: %v", err)
	}
}

func testSerialization(t *testing.T, store ctxstore.IContextStore) {
	scope := newScope()

	tests := []struct {
		name  string
		value any
	}{
		{"function", func() {}},
		{"channel", make(chan int)},
		{"complex", complex(1, 2)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.Set(context.Background(), scope, "k", tt.value)
			if !errors.Is(err, ctxstore.ErrSerialization) {
				t.Fatalf("Expected ErrSerialization, got %v", err)
			}
			if !errors.Is(err, ctxstore.ErrStore) {
				t.Errorf("Serialization errors must also be store errors, got %v", err)
			}
		})
	}

	// structs are stored by their json representation
	type turn struct {
		Role string `json:"role"`
		Text string `json:"text"`
	}
	mustSet(t, store, scope, "turn", turn{Role: "user", Text: "hi"})
	want := map[string]any{"role": "user", "text": "hi"}
	if got := mustGet(t, store, scope, "turn"); !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %#v, got %#v", want, got)
	}
}

func testCallbackEquivalence(t *testing.T, store ctxstore.IContextStore) {
	ctx := context.Background()
	scope := newScope()
	cbStore := ctxstore.WithCallbacks(store)

	// set via callback, read via both
	setDone := make(chan error, 1)
	cbStore.SetMany(ctx, scope, []string{"a", "b"}, []any{"x", map[string]any{"n": 1.0}}, func(err error) {
		setDone <- err
	})
	if err := <-setDone; err != nil {
		t.Fatalf("SetMany (callback) failed: %v", err)
	}

	type result struct {
		err   error
		value any
	}

	getDone := make(chan result, 1)
	cbStore.Get(ctx, scope, "a", func(err error, value any) {
		getDone <- result{err, value}
	})
	cbRes := <-getDone
	value, err := store.Get(ctx, scope, "a")
	if cbRes.err != nil || err != nil || !reflect.DeepEqual(cbRes.value, value) {
		t.Errorf("Get differs: callback=(%v, %#v) blocking=(%v, %#v)", cbRes.err, cbRes.value, err, value)
	}

	manyDone := make(chan []any, 1)
	cbStore.GetMany(ctx, scope, []string{"a", "b", "c"}, func(err error, values []any) {
		if err != nil {
			t.Errorf("GetMany (callback) failed: %v", err)
		}
		manyDone <- values
	})
	cbValues := <-manyDone
	values, err := store.GetMany(ctx, scope, []string{"a", "b", "c"})
	if err != nil || !reflect.DeepEqual(cbValues, values) {
		t.Errorf("GetMany differs: callback=%#v blocking=%#v (%v)", cbValues, values, err)
	}

	keysDone := make(chan []string, 1)
	cbStore.Keys(ctx, scope, func(err error, keys []string) {
		if err != nil {
			t.Errorf("Keys (callback) failed: %v", err)
		}
		sort.Strings(keys)
		keysDone <- keys
	})
	if cbKeys := <-keysDone; !reflect.DeepEqual(cbKeys, mustKeys(t, store, scope)) {
		t.Errorf("Keys differs: callback=%v", cbKeys)
	}

	// errors are delivered identically
	errDone := make(chan error, 1)
	cbStore.SetMany(ctx, scope, []string{"a"}, []any{1, 2}, func(err error) {
		errDone <- err
	})
	cbErr := <-errDone
	blockingErr := store.SetMany(ctx, scope, []string{"a"}, []any{1, 2})
	if cbErr == nil || blockingErr == nil || cbErr.Error() != blockingErr.Error() {
		t.Errorf("Errors differ: callback=%v blocking=%v", cbErr, blockingErr)
	}
	if !errors.Is(cbErr, ctxstore.ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument via callback, got %v", cbErr)
	}

	// a nil handler is allowed
	cbStore.Set(ctx, scope, "c", "fire", nil)
	eventually(t, "set with nil handler", func() bool {
		return mustGet(t, store, scope, "c") == "fire"
	})

	unsetDone := make(chan error, 1)
	cbStore.UnsetMany(ctx, scope, []string{"c"}, func(err error) { unsetDone <- err })
	if err := <-unsetDone; err != nil {
		t.Errorf("UnsetMany (callback) failed: %v", err)
	}
	eventually(t, "unset via callback", func() bool {
		return mustGet(t, store, scope, "c") == nil
	})

	cleanDone := make(chan error, 1)
	cbStore.Clean(ctx, []string{"node-1"}, func(err error) { cleanDone <- err })
	if err := <-cleanDone; err != nil {
		t.Errorf("Clean (callback) failed: %v", err)
	}
}

func testClean(t *testing.T, store ctxstore.IContextStore) {
	ctx := context.Background()
	scope := newScope()
	mustSet(t, store, scope, "k", "v")

	for _, nodes := range [][]string{nil, {}, {"node-1", "node-2"}} {
		if err := store.Clean(ctx, nodes); err != nil {
			t.Errorf("Clean(%v) failed: %v", nodes, err)
		}
	}

	if got := mustGet(t, store, scope, "k"); got != "v" {
		t.Errorf("Clean changed state, got %#v", got)
	}
	if keys := mustKeys(t, store, scope); !reflect.DeepEqual(keys, []string{"k"}) {
		t.Errorf("Clean changed keys, got %v", keys)
	}
}

func testLifecycle(t *testing.T, factory StoreFactory) {
	ctx := context.Background()
	scope := newScope()
	store := factory(t, "app")

	// close on a never opened store
	if err := store.Close(ctx); err != nil {
		t.Fatalf("Close on unopened store failed: %v", err)
	}

	// operations before open fail
	if _, err := store.Get(ctx, scope, "k"); !errors.Is(err, ctxstore.ErrStore) {
		t.Errorf("Get before Open: expected ErrStore, got %v", err)
	}
	if err := store.Set(ctx, scope, "k", "v"); !errors.Is(err, ctxstore.ErrStore) {
		t.Errorf("Set before Open: expected ErrStore, got %v", err)
	}
	if _, err := store.Keys(ctx, scope); !errors.Is(err, ctxstore.ErrStore) {
		t.Errorf("Keys before Open: expected ErrStore, got %v", err)
	}
	store.Delete(scope) // must not panic
	if err := store.Clean(ctx, nil); err != nil {
		t.Errorf("Clean must always succeed, got %v", err)
	}

	// open, second open fails
	if err := store.Open(ctx); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := store.Open(ctx); !errors.Is(err, ctxstore.ErrInvalidArgument) {
		t.Errorf("Second Open: expected ErrInvalidArgument, got %v", err)
	}
	mustSet(t, store, scope, "k", "v")

	// operations after close fail
	if err := store.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := store.Get(ctx, scope, "k"); !errors.Is(err, ctxstore.ErrStore) {
		t.Errorf("Get after Close: expected ErrStore, got %v", err)
	}
	if err := store.Close(ctx); err != nil {
		t.Errorf("Second Close failed: %v", err)
	}

	// reopen, data survived
	if err := store.Open(ctx); err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer store.Close(ctx)
	if got := mustGet(t, store, scope, "k"); got != "v" {
		t.Errorf("Expected value to survive reopen, got %#v", got)
	}

	// a different instance sees the same data
	restarted := openStore(t, factory, "app")
	if got := mustGet(t, restarted, scope, "k"); got != "v" {
		t.Errorf("Expected value to be visible to a new instance, got %#v", got)
	}
}

func testConcurrency(t *testing.T, store ctxstore.IContextStore) {
	ctx := context.Background()
	scope := newScope()

	const workers = 8
	const perWorker = 25

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				key := fmt.Sprintf("w%d-k%d", w, i)
				if err := store.Set(ctx, scope, key, float64(i)); err != nil {
					t.Errorf("Set(%s) failed: %v", key, err)
					return
				}
				if _, err := store.Get(ctx, scope, key); err != nil {
					t.Errorf("Get(%s) failed: %v", key, err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	if keys := mustKeys(t, store, scope); len(keys) != workers*perWorker {
		t.Errorf("Expected %d keys, got %d", workers*perWorker, len(keys))
	}
	if got := mustGet(t, store, scope, "w3-k7"); got != 7.0 {
		t.Errorf("Expected 7, got %#v", got)
	}
}
