package mstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ValentinKolb/dCtx/lib/common"
	"github.com/ValentinKolb/dCtx/lib/ctxstore"
	"github.com/ValentinKolb/dCtx/lib/ctxstore/codec"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger(common.LoggerStore)

type storeImpl struct {
	backend *Backend
	config  ctxstore.Config
	codec   codec.IValueCodec

	mu   sync.RWMutex
	open bool
}

// NewMemoryStore creates a new context store on top of backend. Only the Prefix field of
// config is used, all operations complete synchronously. If valueCodec is nil the json
// codec is used.
func NewMemoryStore(backend *Backend, config ctxstore.Config, valueCodec codec.IValueCodec) ctxstore.IContextStore {
	if valueCodec == nil {
		valueCodec = codec.NewJSONCodec()
	}
	return &storeImpl{
		backend: backend,
		config:  config,
		codec:   valueCodec,
	}
}

// ready returns an error if the store is not open or ctx is already done.
func (s *storeImpl) ready(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.open {
		return ctxstore.NewError(ctxstore.RetCStoreError, "store is not open")
	}
	if err := ctx.Err(); err != nil {
		return ctxstore.WrapError(ctxstore.RetCStoreError, err, "operation aborted")
	}
	return nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see ctxstore/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Open(_ context.Context) (err error) {
	defer ctxstore.ObserveOp(ctxstore.OpOpen, time.Now(), &err)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.open {
		return ctxstore.NewError(ctxstore.RetCInvalidArgument, "store is already open, close it before opening it again")
	}
	if s.backend == nil {
		return ctxstore.NewError(ctxstore.RetCConnectionError, "no backend configured")
	}
	s.open = true
	Logger.Debugf("memory store opened (prefix %q)", s.config.Prefix)
	return nil
}

func (s *storeImpl) Close(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = false
	return nil
}

func (s *storeImpl) Get(ctx context.Context, scope, key string) (any, error) {
	values, err := s.GetMany(ctx, scope, []string{key})
	if err != nil {
		return nil, err
	}
	return values[0], nil
}

func (s *storeImpl) GetMany(ctx context.Context, scope string, keys []string) (values []any, err error) {
	defer ctxstore.ObserveOp(ctxstore.OpGet, time.Now(), &err)

	if err = s.ready(ctx); err != nil {
		return nil, err
	}

	prefixed := s.PrefixedScope(scope)
	raw, found := s.backend.HMGet(prefixed, keys)

	values = make([]any, len(keys))
	for i := range raw {
		if !found[i] {
			continue
		}
		if values[i], err = s.codec.Decode(raw[i]); err != nil {
			return nil, ctxstore.WrapError(ctxstore.RetCSerializationError, err, fmt.Sprintf("could not decode key %q in scope %q", keys[i], prefixed))
		}
	}
	return values, nil
}

func (s *storeImpl) Set(ctx context.Context, scope, key string, value any) error {
	if ctxstore.IsUndefined(value) {
		return s.UnsetMany(ctx, scope, []string{key})
	}
	return s.SetMany(ctx, scope, []string{key}, []any{value})
}

func (s *storeImpl) SetMany(ctx context.Context, scope string, keys []string, values []any) (err error) {
	defer ctxstore.ObserveOp(ctxstore.OpSet, time.Now(), &err)

	if err = s.ready(ctx); err != nil {
		return err
	}

	prefixed := s.PrefixedScope(scope)
	if err = ctxstore.ValidatePairs(keys, values); err != nil {
		return err
	}

	encoded := make([]string, len(values))
	for i, v := range values {
		if encoded[i], err = s.codec.Encode(v); err != nil {
			return ctxstore.WrapError(ctxstore.RetCSerializationError, err, fmt.Sprintf("could not encode key %q for scope %q", keys[i], prefixed))
		}
	}
	s.backend.HSet(prefixed, keys, encoded)
	return nil
}

// UnsetMany applies the removal synchronously, so awaiting it is implied.
func (s *storeImpl) UnsetMany(ctx context.Context, scope string, keys []string) (err error) {
	defer ctxstore.ObserveOp(ctxstore.OpUnset, time.Now(), &err)

	if err = s.ready(ctx); err != nil {
		return err
	}
	s.backend.HDel(s.PrefixedScope(scope), keys)
	return nil
}

func (s *storeImpl) Keys(ctx context.Context, scope string) (keys []string, err error) {
	defer ctxstore.ObserveOp(ctxstore.OpKeys, time.Now(), &err)

	if err = s.ready(ctx); err != nil {
		return nil, err
	}
	return s.backend.HKeys(s.PrefixedScope(scope)), nil
}

func (s *storeImpl) Delete(scope string) {
	var err error
	defer ctxstore.ObserveOp(ctxstore.OpDelete, time.Now(), &err)

	if err = s.ready(context.Background()); err != nil {
		Logger.Errorf("could not delete scope %q: %v", s.PrefixedScope(scope), err)
		return
	}
	s.backend.Del(s.PrefixedScope(scope))
}

func (s *storeImpl) Clean(_ context.Context, _ []string) (err error) {
	defer ctxstore.ObserveOp(ctxstore.OpClean, time.Now(), &err)
	return nil
}

func (s *storeImpl) PrefixedScope(scope string) string {
	return ctxstore.PrefixedScope(s.config.Prefix, scope)
}
