// Package redisstatestore provides a Redis-backed spec.StateStore. Session
// state is stored as one JSON value per conversation under a configurable key
// prefix, with an optional idle TTL refreshed on every save.
package redisstatestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/flexigpt/botdialogs-go/spec"
)

const (
	defaultPrefix      = "bot:state:"
	defaultDialTimeout = 2 * time.Second
)

// Store persists session state in Redis. Use New with an existing client or
// Dial to create one.
type Store struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// New wraps an existing Redis client. The caller keeps ownership of the
// client's lifecycle.
func New(rdb redis.UniversalClient) *Store {
	return &Store{rdb: rdb, prefix: defaultPrefix}
}

// Dial connects to addr, verifies the connection with a ping, and returns a
// store that owns the client. Close releases it.
func Dial(ctx context.Context, addr string) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})

	pingCtx, cancel := context.WithTimeout(ctx, defaultDialTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis state store: ping %q: %w", addr, err)
	}
	return New(rdb), nil
}

// SetKeyPrefix replaces the key prefix. Existing entries under the old prefix
// become unreachable.
func (st *Store) SetKeyPrefix(prefix string) {
	st.prefix = prefix
}

// SetTTL sets the idle TTL applied on every save; 0 keeps entries forever.
func (st *Store) SetTTL(ttl time.Duration) {
	if ttl < 0 {
		ttl = 0
	}
	st.ttl = ttl
}

func (st *Store) Get(ctx context.Context, key spec.StateKey) (spec.SessionState, bool, error) {
	if err := ctx.Err(); err != nil {
		return spec.SessionState{}, false, err
	}

	b, err := st.rdb.Get(ctx, st.redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return spec.SessionState{}, false, nil
	}
	if err != nil {
		return spec.SessionState{}, false, fmt.Errorf("redis state store: get %q: %w", key, err)
	}

	var state spec.SessionState
	if err := json.Unmarshal(b, &state); err != nil {
		return spec.SessionState{}, false, fmt.Errorf("redis state store: decode %q: %w", key, err)
	}
	return state, true, nil
}

func (st *Store) Save(ctx context.Context, key spec.StateKey, state spec.SessionState) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("redis state store: encode %q: %w", key, err)
	}
	if err := st.rdb.Set(ctx, st.redisKey(key), b, st.ttl).Err(); err != nil {
		return fmt.Errorf("redis state store: set %q: %w", key, err)
	}
	return nil
}

func (st *Store) Delete(ctx context.Context, key spec.StateKey) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := st.rdb.Del(ctx, st.redisKey(key)).Err(); err != nil {
		return fmt.Errorf("redis state store: delete %q: %w", key, err)
	}
	return nil
}

// Close closes the underlying client. Only call it when the store owns the
// client, i.e. it came from Dial.
func (st *Store) Close() error {
	return st.rdb.Close()
}

func (st *Store) redisKey(key spec.StateKey) string {
	return st.prefix + key.String()
}
