package rstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ValentinKolb/dCtx/lib/common"
	"github.com/ValentinKolb/dCtx/lib/ctxstore"
	"github.com/ValentinKolb/dCtx/lib/ctxstore/codec"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/redis/go-redis/v9"
)

var Logger = logger.GetLogger(common.LoggerStore)

// connection is the single link to the remote store owned by a Store.
// pending tracks the fire-and-forget operations issued on it, Close waits for them.
type connection struct {
	client  *redis.Client
	pending sync.WaitGroup
}

// Store is a context store backed by the hashes of a Redis database.
type Store struct {
	config ctxstore.Config
	codec  codec.IValueCodec

	lifecycle sync.Mutex   // serializes Open and Close
	mu        sync.RWMutex // guards conn and state
	conn      *connection
	state     ConnState
}

// NewRedisStore creates a new store for the given configuration. It does not connect,
// call Open before using the store. If valueCodec is nil the json codec is used.
func NewRedisStore(config ctxstore.Config, valueCodec codec.IValueCodec) *Store {
	if valueCodec == nil {
		valueCodec = codec.NewJSONCodec()
	}
	return &Store{
		config: config,
		codec:  valueCodec,
		state:  StateDisconnected,
	}
}

// State returns the current connection state.
func (s *Store) State() ConnState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Config returns the configuration of the store.
func (s *Store) Config() ctxstore.Config {
	return s.config
}

// --------------------------------------------------------------------------
// Connection lifecycle
// --------------------------------------------------------------------------

func (s *Store) Open(ctx context.Context) (err error) {
	defer ctxstore.ObserveOp(ctxstore.OpOpen, time.Now(), &err)

	// claim the connecting state first, so a concurrent Open fails without waiting
	s.mu.Lock()
	if s.state != StateDisconnected {
		state := s.state
		s.mu.Unlock()
		return ctxstore.NewError(ctxstore.RetCInvalidArgument, fmt.Sprintf("store is already %s, close it before opening it again", state))
	}
	s.state = StateConnecting
	s.mu.Unlock()

	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	client, err := s.connect(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state = StateDisconnected
		return err
	}
	s.conn = &connection{client: client}
	s.state = StateReady
	Logger.Infof("connected to %s:%d (db %d)", s.config.Host, s.config.Port, s.config.DB)
	return nil
}

// connect creates the client and waits until the connection is usable.
// go-redis authenticates and selects the database while initializing the connection,
// so a successful ping means the connection is ready.
func (s *Store) connect(ctx context.Context) (*redis.Client, error) {
	opts, err := redis.ParseURL(s.config.URL("redis"))
	if err != nil {
		return nil, ctxstore.WrapError(ctxstore.RetCConnectionError, err, "invalid connection url")
	}
	opts.DB = s.config.DB
	opts.PoolSize = 1
	opts.MaxRetries = -1
	// socket deadlines follow the context, so TimeoutSecond bounds every command
	opts.ContextTimeoutEnabled = true
	opts.OnConnect = func(ctx context.Context, cn *redis.Conn) error {
		Logger.Debugf("connection to %s established (db %d)", opts.Addr, opts.DB)
		return nil
	}

	client := redis.NewClient(opts)

	ctx, cancel := s.config.WithTimeout(ctx)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		if closeErr := client.Close(); closeErr != nil {
			Logger.Debugf("could not release failed client: %v", closeErr)
		}
		Logger.Errorf("could not connect to %s: %v", opts.Addr, err)
		return nil, ctxstore.WrapError(ctxstore.RetCConnectionError, err, fmt.Sprintf("could not connect to %s", opts.Addr))
	}
	return client, nil
}

func (s *Store) Close(ctx context.Context) (err error) {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	// without a connection the store is disconnected or an Open is about to run
	s.mu.Lock()
	conn := s.conn
	if conn == nil {
		s.mu.Unlock()
		return nil
	}
	s.conn = nil
	s.state = StateClosing
	s.mu.Unlock()

	defer ctxstore.ObserveOp(ctxstore.OpClose, time.Now(), &err)
	defer func() {
		s.mu.Lock()
		s.state = StateDisconnected
		s.mu.Unlock()
	}()

	// give fire-and-forget operations the chance to finish
	done := make(chan struct{})
	go func() {
		conn.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		Logger.Warningf("closing with pending operations: %v", ctx.Err())
	}

	if err := conn.client.Close(); err != nil {
		return ctxstore.WrapError(ctxstore.RetCDisconnectionError, err, "could not close connection")
	}
	Logger.Infof("disconnected from %s:%d", s.config.Host, s.config.Port)
	return nil
}

// acquire returns the current connection or an error if the store is not open.
func (s *Store) acquire() (*connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateReady || s.conn == nil {
		return nil, ctxstore.NewError(ctxstore.RetCStoreError, fmt.Sprintf("store is not open (state %s)", s.state))
	}
	return s.conn, nil
}

// detach runs fn on its own goroutine without reporting the result to the caller.
// Failures are logged and counted. Only the not-open error is returned synchronously.
func (s *Store) detach(op string, fn func(ctx context.Context, client *redis.Client) error) error {
	s.mu.RLock()
	if s.state != StateReady || s.conn == nil {
		state := s.state
		s.mu.RUnlock()
		err := error(ctxstore.NewError(ctxstore.RetCStoreError, fmt.Sprintf("store is not open (state %s)", state)))
		ctxstore.ObserveOp(op, time.Now(), &err)
		return err
	}
	conn := s.conn
	conn.pending.Add(1)
	s.mu.RUnlock()

	go func() {
		defer conn.pending.Done()

		var err error
		defer ctxstore.ObserveOp(op, time.Now(), &err)

		ctx, cancel := s.config.WithTimeout(context.Background())
		defer cancel()

		if err = fn(ctx, conn.client); err != nil {
			Logger.Warningf("%s failed: %v", op, err)
		}
	}()
	return nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see ctxstore/interface.go)
// --------------------------------------------------------------------------

func (s *Store) Get(ctx context.Context, scope, key string) (any, error) {
	values, err := s.GetMany(ctx, scope, []string{key})
	if err != nil {
		return nil, err
	}
	return values[0], nil
}

func (s *Store) GetMany(ctx context.Context, scope string, keys []string) (values []any, err error) {
	defer ctxstore.ObserveOp(ctxstore.OpGet, time.Now(), &err)

	conn, err := s.acquire()
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return []any{}, nil
	}

	ctx, cancel := s.config.WithTimeout(ctx)
	defer cancel()

	prefixed := s.PrefixedScope(scope)
	raw, err := conn.client.HMGet(ctx, prefixed, keys...).Result()
	if err != nil {
		return nil, ctxstore.WrapError(ctxstore.RetCStoreError, err, fmt.Sprintf("could not read scope %q", prefixed))
	}

	values = make([]any, len(raw))
	for i, r := range raw {
		// missing fields are reported as nil
		if r == nil {
			continue
		}
		str, ok := r.(string)
		if !ok {
			return nil, ctxstore.NewError(ctxstore.RetCSerializationError, fmt.Sprintf("unexpected reply type %T for key %q in scope %q", r, keys[i], prefixed))
		}
		if values[i], err = s.codec.Decode(str); err != nil {
			return nil, ctxstore.WrapError(ctxstore.RetCSerializationError, err, fmt.Sprintf("could not decode key %q in scope %q", keys[i], prefixed))
		}
	}
	return values, nil
}

func (s *Store) Set(ctx context.Context, scope, key string, value any) error {
	if ctxstore.IsUndefined(value) {
		return s.unset(ctx, scope, []string{key})
	}
	return s.SetMany(ctx, scope, []string{key}, []any{value})
}

func (s *Store) SetMany(ctx context.Context, scope string, keys []string, values []any) (err error) {
	defer ctxstore.ObserveOp(ctxstore.OpSet, time.Now(), &err)

	conn, err := s.acquire()
	if err != nil {
		return err
	}
	if err = ctxstore.ValidatePairs(keys, values); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}

	prefixed := s.PrefixedScope(scope)
	fields := make([]any, 0, 2*len(keys))
	for i, key := range keys {
		raw, err := s.codec.Encode(values[i])
		if err != nil {
			return ctxstore.WrapError(ctxstore.RetCSerializationError, err, fmt.Sprintf("could not encode key %q for scope %q", key, prefixed))
		}
		fields = append(fields, key, raw)
	}

	ctx, cancel := s.config.WithTimeout(ctx)
	defer cancel()

	if err = conn.client.HSet(ctx, prefixed, fields...).Err(); err != nil {
		return ctxstore.WrapError(ctxstore.RetCStoreError, err, fmt.Sprintf("could not write scope %q", prefixed))
	}
	return nil
}

func (s *Store) UnsetMany(ctx context.Context, scope string, keys []string) error {
	return s.unset(ctx, scope, keys)
}

// unset removes keys from scope. Unless AwaitUnset is configured the removal is
// fire-and-forget and this returns before the remote store acknowledged it.
func (s *Store) unset(ctx context.Context, scope string, keys []string) (err error) {
	prefixed := s.PrefixedScope(scope)
	del := func(ctx context.Context, client *redis.Client) error {
		if len(keys) == 0 {
			return nil
		}
		if err := client.HDel(ctx, prefixed, keys...).Err(); err != nil {
			return ctxstore.WrapError(ctxstore.RetCStoreError, err, fmt.Sprintf("could not remove keys from scope %q", prefixed))
		}
		return nil
	}

	if !s.config.AwaitUnset {
		return s.detach(ctxstore.OpUnset, del)
	}

	defer ctxstore.ObserveOp(ctxstore.OpUnset, time.Now(), &err)

	conn, err := s.acquire()
	if err != nil {
		return err
	}

	ctx, cancel := s.config.WithTimeout(ctx)
	defer cancel()

	return del(ctx, conn.client)
}

func (s *Store) Keys(ctx context.Context, scope string) (keys []string, err error) {
	defer ctxstore.ObserveOp(ctxstore.OpKeys, time.Now(), &err)

	conn, err := s.acquire()
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.config.WithTimeout(ctx)
	defer cancel()

	prefixed := s.PrefixedScope(scope)
	keys, err = conn.client.HKeys(ctx, prefixed).Result()
	if err != nil {
		return nil, ctxstore.WrapError(ctxstore.RetCStoreError, err, fmt.Sprintf("could not list keys of scope %q", prefixed))
	}
	if keys == nil {
		keys = []string{}
	}
	return keys, nil
}

func (s *Store) Delete(scope string) {
	prefixed := s.PrefixedScope(scope)
	err := s.detach(ctxstore.OpDelete, func(ctx context.Context, client *redis.Client) error {
		return client.Del(ctx, prefixed).Err()
	})
	if err != nil {
		Logger.Errorf("could not delete scope %q: %v", prefixed, err)
	}
}

func (s *Store) Clean(_ context.Context, activeNodes []string) (err error) {
	defer ctxstore.ObserveOp(ctxstore.OpClean, time.Now(), &err)
	Logger.Debugf("clean called with %d active nodes, nothing to do", len(activeNodes))
	return nil
}

func (s *Store) PrefixedScope(scope string) string {
	return ctxstore.PrefixedScope(s.config.Prefix, scope)
}
