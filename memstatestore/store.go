// Package memstatestore provides an in-memory spec.StateStore with TTL and
// max-entries LRU eviction. It is the default store for tests and
// single-process hosts; production hosts use a durable store.
//
// Get and Save deep-copy state through JSON so every turn works on a fresh
// deserialized copy, never an aliased in-memory value.
package memstatestore

import (
	"container/list"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/flexigpt/botdialogs-go/spec"
)

const (
	defaultTTL = 24 * time.Hour
	defaultMax = 4096
)

type item struct {
	key      string
	state    spec.SessionState
	lastUsed time.Time
}

// Store is an in-memory state store. The zero value is not usable; call New.
type Store struct {
	mu sync.Mutex

	ttl        time.Duration
	maxEntries int

	lru *list.List               // front=MRU
	m   map[string]*list.Element // key -> element(Value=*item)
}

func New() *Store {
	return &Store{
		ttl:        defaultTTL,
		maxEntries: defaultMax,
		lru:        list.New(),
		m:          map[string]*list.Element{},
	}
}

// SetTTL replaces the idle TTL; 0 disables expiry.
func (st *Store) SetTTL(ttl time.Duration) {
	if ttl < 0 {
		ttl = 0
	}
	st.mu.Lock()
	st.ttl = ttl
	st.evictExpiredLocked(time.Now())
	st.mu.Unlock()
}

// SetMaxEntries replaces the retained-conversation bound; 0 disables it.
func (st *Store) SetMaxEntries(n int) {
	if n < 0 {
		n = 0
	}
	st.mu.Lock()
	st.maxEntries = n
	st.evictOverLimitLocked()
	st.mu.Unlock()
}

func (st *Store) Get(ctx context.Context, key spec.StateKey) (spec.SessionState, bool, error) {
	if err := ctx.Err(); err != nil {
		return spec.SessionState{}, false, err
	}

	now := time.Now()
	st.mu.Lock()
	defer st.mu.Unlock()

	st.evictExpiredLocked(now)

	e := st.m[key.String()]
	if e == nil {
		return spec.SessionState{}, false, nil
	}
	it, _ := e.Value.(*item)
	if it == nil {
		st.deleteElemLocked(e)
		return spec.SessionState{}, false, nil
	}

	it.lastUsed = now
	st.lru.MoveToFront(e)

	out, err := cloneState(it.state)
	if err != nil {
		return spec.SessionState{}, false, err
	}
	return out, true, nil
}

func (st *Store) Save(ctx context.Context, key spec.StateKey, state spec.SessionState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	stored, err := cloneState(state)
	if err != nil {
		return err
	}

	now := time.Now()
	st.mu.Lock()
	defer st.mu.Unlock()

	st.evictExpiredLocked(now)

	ks := key.String()
	if e := st.m[ks]; e != nil {
		it, _ := e.Value.(*item)
		it.state = stored
		it.lastUsed = now
		st.lru.MoveToFront(e)
		return nil
	}

	e := st.lru.PushFront(&item{key: ks, state: stored, lastUsed: now})
	st.m[ks] = e
	st.evictOverLimitLocked()
	return nil
}

func (st *Store) Delete(ctx context.Context, key spec.StateKey) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if e := st.m[key.String()]; e != nil {
		st.deleteElemLocked(e)
	}
	return nil
}

// Len returns the number of retained conversations.
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.lru.Len()
}

func (st *Store) evictExpiredLocked(now time.Time) {
	if st.ttl <= 0 {
		return
	}
	for e := st.lru.Back(); e != nil; {
		prev := e.Prev()
		it, ok := e.Value.(*item)
		if !ok || it == nil {
			st.deleteElemLocked(e)
			e = prev
			continue
		}
		if now.Sub(it.lastUsed) <= st.ttl {
			break
		}
		st.deleteElemLocked(e)
		e = prev
	}
}

func (st *Store) evictOverLimitLocked() {
	if st.maxEntries <= 0 {
		return
	}
	for st.lru.Len() > st.maxEntries {
		e := st.lru.Back()
		if e == nil {
			return
		}
		st.deleteElemLocked(e)
	}
}

func (st *Store) deleteElemLocked(e *list.Element) {
	if it, _ := e.Value.(*item); it != nil {
		delete(st.m, it.key)
	}
	st.lru.Remove(e)
}

// cloneState round-trips through JSON, which is exactly the persistence
// contract durable stores honor.
func cloneState(in spec.SessionState) (spec.SessionState, error) {
	b, err := json.Marshal(in)
	if err != nil {
		return spec.SessionState{}, fmt.Errorf("clone session state: %w", err)
	}
	var out spec.SessionState
	if err := json.Unmarshal(b, &out); err != nil {
		return spec.SessionState{}, fmt.Errorf("clone session state: %w", err)
	}
	return out, nil
}
