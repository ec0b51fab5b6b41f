package ctxstore

import (
	"context"
	"fmt"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// IContextStore is the scoped key-value contract a host application persists its
// per-scope state through. A scope maps to one remote hash, every key of a scope is a
// field of that hash and every value is stored as its JSON encoding.
//
// Data operations issued before Open or after Close fail with an ErrStore error.
type IContextStore interface {
	// Open establishes the connection to the backing store. It returns once the
	// connection is ready (connected and database selected). Calling Open on a store
	// that is already open fails with ErrInvalidArgument.
	Open(ctx context.Context) (err error)
	// Close terminates the connection. Closing a store that was never opened is a no-op.
	// After Close returns (with or without an error) the store has no usable connection.
	Close(ctx context.Context) (err error)
	// Get returns the decoded value stored under key in scope, or nil if there is none.
	Get(ctx context.Context, scope, key string) (value any, err error)
	// GetMany reads all keys in one round trip. The result is aligned with keys,
	// missing keys decode to nil.
	GetMany(ctx context.Context, scope string, keys []string) (values []any, err error)
	// Set stores value under key in scope. If value is Undefined the key is removed
	// instead (see Config.AwaitUnset for the completion semantics of that branch).
	Set(ctx context.Context, scope, key string, value any) (err error)
	// SetMany writes keys[i] = values[i] for all i in one batched write. Length
	// mismatches (including a nil values slice) fail with ErrInvalidArgument.
	SetMany(ctx context.Context, scope string, keys []string, values []any) (err error)
	// UnsetMany removes keys from scope, with the same completion semantics as Set
	// with Undefined.
	UnsetMany(ctx context.Context, scope string, keys []string) (err error)
	// Keys returns the keys present in scope in no particular order.
	// An unknown scope yields an empty slice.
	Keys(ctx context.Context, scope string) (keys []string, err error)
	// Delete removes the whole scope. It is fire-and-forget: no completion or failure
	// is reported to the caller.
	Delete(scope string)
	// Clean is the hook for removing scopes orphaned by nodes that are no longer in
	// activeNodes. It currently has no effect and always succeeds.
	Clean(ctx context.Context, activeNodes []string) (err error)
	// PrefixedScope returns the name of the remote hash backing scope.
	PrefixedScope(scope string) string
}

// --------------------------------------------------------------------------
// Undefined value
// --------------------------------------------------------------------------

type undefined struct{}

func (undefined) String() string { return "undefined" }

// Undefined marks the absence of a value. Passing it to Set deletes the key, which is
// different from storing nil (encoded as JSON null).
var Undefined any = undefined{}

// IsUndefined reports whether v is the Undefined sentinel.
func IsUndefined(v any) bool {
	_, ok := v.(undefined)
	return ok
}

// --------------------------------------------------------------------------
// Scope naming
// --------------------------------------------------------------------------

// PrefixedScope derives the remote hash name for scope: "prefix:scope" if prefix is
// set, the scope itself otherwise.
func PrefixedScope(prefix, scope string) string {
	if prefix == "" {
		return scope
	}
	return prefix + ":" + scope
}

// --------------------------------------------------------------------------
// Argument validation (shared by the implementations)
// --------------------------------------------------------------------------

// ValidatePairs checks the arguments of a SetMany call that writes values.
func ValidatePairs(keys []string, values []any) error {
	if len(keys) != len(values) {
		return NewError(RetCInvalidArgument, fmt.Sprintf("got %d keys but %d values", len(keys), len(values)))
	}
	for i, v := range values {
		if IsUndefined(v) {
			return NewError(RetCInvalidArgument, fmt.Sprintf("value for key %q is undefined, use UnsetMany to remove keys", keys[i]))
		}
	}
	return nil
}
