package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sort"
	"strings"
	"testing"

	"github.com/ValentinKolb/dCtx/lib/ctxstore"
	"github.com/ValentinKolb/dCtx/lib/ctxstore/mstore"
)

// newTestServer returns a test server backed by an open memory store
func newTestServer(t *testing.T) (*httptest.Server, ctxstore.IContextStore) {
	t.Helper()
	store := mstore.NewMemoryStore(mstore.NewBackend(), ctxstore.Config{Prefix: "api"}, nil)
	if err := store.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	srv := httptest.NewServer(NewServer(store, true))
	t.Cleanup(func() {
		srv.Close()
		_ = store.Close(context.Background())
	})
	return srv, store
}

// do sends a request and returns status code and body
func do(t *testing.T, method, url, body string) (int, string) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, r)
	if err != nil {
		t.Fatalf("could not create request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, url, err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("could not read body: %v", err)
	}
	return resp.StatusCode, strings.TrimSpace(string(b))
}

func TestSetGetKeys(t *testing.T) {
	srv, _ := newTestServer(t)

	status, _ := do(t, http.MethodPut, srv.URL+"/scopes/s1/values", `{"a":1,"b":{"x":[true]},"c":"v"}`)
	if status != http.StatusNoContent {
		t.Fatalf("PUT status = %d", status)
	}

	tests := []struct {
		name  string
		query string
		want  string
	}{
		{"single key is bare", "?key=c", `"v"`},
		{"several keys are an array", "?key=a&key=missing&key=b", `[1,null,{"x":[true]}]`},
		{"missing key is null", "?key=missing", `null`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := do(t, http.MethodGet, srv.URL+"/scopes/s1/values"+tt.query, "")
			if status != http.StatusOK {
				t.Fatalf("GET status = %d (%s)", status, body)
			}
			if body != tt.want {
				t.Errorf("GET body = %s, want %s", body, tt.want)
			}
		})
	}

	status, body := do(t, http.MethodGet, srv.URL+"/scopes/s1/keys", "")
	if status != http.StatusOK {
		t.Fatalf("GET keys status = %d", status)
	}
	var keys []string
	if err := json.Unmarshal([]byte(body), &keys); err != nil {
		t.Fatalf("invalid keys body %s: %v", body, err)
	}
	sort.Strings(keys)
	if !reflect.DeepEqual(keys, []string{"a", "b", "c"}) {
		t.Errorf("keys = %v", keys)
	}
}

func TestUnsetAndDelete(t *testing.T) {
	srv, store := newTestServer(t)
	ctx := context.Background()

	if err := store.SetMany(ctx, "s", []string{"a", "b"}, []any{1, 2}); err != nil {
		t.Fatalf("SetMany failed: %v", err)
	}

	if status, _ := do(t, http.MethodDelete, srv.URL+"/scopes/s/values/a", ""); status != http.StatusNoContent {
		t.Errorf("DELETE value status = %d", status)
	}
	if v, _ := store.Get(ctx, "s", "a"); v != nil {
		t.Errorf("Expected a to be removed, got %#v", v)
	}

	if status, _ := do(t, http.MethodDelete, srv.URL+"/scopes/s", ""); status != http.StatusAccepted {
		t.Errorf("DELETE scope status = %d", status)
	}
	if keys, _ := store.Keys(ctx, "s"); len(keys) != 0 {
		t.Errorf("Expected scope to be removed, got keys %v", keys)
	}
}

func TestErrors(t *testing.T) {
	srv, store := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{"no key", http.MethodGet, "/scopes/s/values", "", http.StatusBadRequest, "InvalidArgument"},
		{"body not an object", http.MethodPut, "/scopes/s/values", `[1,2]`, http.StatusBadRequest, "InvalidArgument"},
		{"broken body", http.MethodPut, "/scopes/s/values", `{`, http.StatusBadRequest, "InvalidArgument"},
		{"clean body not an array", http.MethodPost, "/clean", `{"a":1}`, http.StatusBadRequest, "InvalidArgument"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := do(t, tt.method, srv.URL+tt.path, tt.body)
			if status != tt.status {
				t.Fatalf("status = %d, want %d (%s)", status, tt.status, body)
			}
			var resp errorResponse
			if err := json.Unmarshal([]byte(body), &resp); err != nil {
				t.Fatalf("invalid error body %s: %v", body, err)
			}
			if resp.Code != tt.code || resp.Error == "" {
				t.Errorf("error response = %+v, want code %s", resp, tt.code)
			}
		})
	}

	// a closed store reports store errors
	if err := store.Close(context.Background()); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if status, body := do(t, http.MethodGet, srv.URL+"/scopes/s/keys", ""); status != http.StatusBadGateway {
		t.Errorf("status = %d, want %d (%s)", status, http.StatusBadGateway, body)
	}
}

func TestCleanAndMetrics(t *testing.T) {
	srv, _ := newTestServer(t)

	if status, body := do(t, http.MethodPost, srv.URL+"/clean", `["node-1"]`); status != http.StatusNoContent {
		t.Errorf("clean status = %d (%s)", status, body)
	}
	if status, body := do(t, http.MethodPost, srv.URL+"/clean", ""); status != http.StatusNoContent {
		t.Errorf("clean without body status = %d (%s)", status, body)
	}

	status, body := do(t, http.MethodGet, srv.URL+"/metrics", "")
	if status != http.StatusOK {
		t.Fatalf("metrics status = %d", status)
	}
	if !strings.Contains(body, `dctx_store_ops_total{op="clean"}`) {
		t.Errorf("metrics do not contain the clean counter:\n%s", body)
	}
}
