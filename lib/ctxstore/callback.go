package ctxstore

import (
	"context"
)

// CallbackStore exposes the operations of an IContextStore in completion-handler style.
// Every method returns immediately, runs the operation on its own goroutine and then
// invokes the error-first handler with exactly what the blocking call returned.
// A nil handler discards the result.
type CallbackStore struct {
	store IContextStore
}

// WithCallbacks wraps store in a CallbackStore.
func WithCallbacks(store IContextStore) *CallbackStore {
	return &CallbackStore{store: store}
}

// Store returns the wrapped store.
func (c *CallbackStore) Store() IContextStore {
	return c.store
}

// invoke runs op asynchronously and hands its result to cb.
func invoke[T any](ctx context.Context, op func(ctx context.Context) (T, error), cb func(error, T)) {
	go func() {
		res, err := op(ctx)
		if cb != nil {
			cb(err, res)
		}
	}()
}

// noResult adapts an error-only operation to invoke.
func noResult(op func(ctx context.Context) error) func(ctx context.Context) (struct{}, error) {
	return func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	}
}

// errOnly adapts an error-only handler to invoke.
func errOnly(cb func(error)) func(error, struct{}) {
	if cb == nil {
		return nil
	}
	return func(err error, _ struct{}) { cb(err) }
}

// --------------------------------------------------------------------------
// Callback Methods (docu see IContextStore)
// --------------------------------------------------------------------------

func (c *CallbackStore) Open(ctx context.Context, cb func(err error)) {
	invoke(ctx, noResult(c.store.Open), errOnly(cb))
}

func (c *CallbackStore) Close(ctx context.Context, cb func(err error)) {
	invoke(ctx, noResult(c.store.Close), errOnly(cb))
}

func (c *CallbackStore) Get(ctx context.Context, scope, key string, cb func(err error, value any)) {
	invoke(ctx, func(ctx context.Context) (any, error) {
		return c.store.Get(ctx, scope, key)
	}, cb)
}

func (c *CallbackStore) GetMany(ctx context.Context, scope string, keys []string, cb func(err error, values []any)) {
	invoke(ctx, func(ctx context.Context) ([]any, error) {
		return c.store.GetMany(ctx, scope, keys)
	}, cb)
}

func (c *CallbackStore) Set(ctx context.Context, scope, key string, value any, cb func(err error)) {
	invoke(ctx, noResult(func(ctx context.Context) error {
		return c.store.Set(ctx, scope, key, value)
	}), errOnly(cb))
}

func (c *CallbackStore) SetMany(ctx context.Context, scope string, keys []string, values []any, cb func(err error)) {
	invoke(ctx, noResult(func(ctx context.Context) error {
		return c.store.SetMany(ctx, scope, keys, values)
	}), errOnly(cb))
}

func (c *CallbackStore) UnsetMany(ctx context.Context, scope string, keys []string, cb func(err error)) {
	invoke(ctx, noResult(func(ctx context.Context) error {
		return c.store.UnsetMany(ctx, scope, keys)
	}), errOnly(cb))
}

func (c *CallbackStore) Keys(ctx context.Context, scope string, cb func(err error, keys []string)) {
	invoke(ctx, func(ctx context.Context) ([]string, error) {
		return c.store.Keys(ctx, scope)
	}, cb)
}

// Delete has no completion signal, it only forwards to IContextStore.Delete.
func (c *CallbackStore) Delete(scope string) {
	c.store.Delete(scope)
}

func (c *CallbackStore) Clean(ctx context.Context, activeNodes []string, cb func(err error)) {
	invoke(ctx, noResult(func(ctx context.Context) error {
		return c.store.Clean(ctx, activeNodes)
	}), errOnly(cb))
}
