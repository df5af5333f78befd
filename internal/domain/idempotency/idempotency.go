// Package idempotency maps client supplied idempotency keys to receipt IDs so
// that a retried process request returns the ID issued the first time.
//
// A key moves through two states. Claim puts it in flight; Commit records the
// ID once the receipt is stored, Release forgets it when storing failed.
// Claims on an in-flight key wait for that outcome, so a replay only ever
// sees IDs that were stored.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru"
)

// ErrInvalidSize is returned for a negative capacity.
var ErrInvalidSize = errors.New("idempotency: invalid size")

type pending struct {
	id        string
	done      chan struct{}
	committed bool
}

// Tracker records which receipt ID was issued for a key. Committed keys are
// bounded: when full, the least recently used key is forgotten. A zero
// capacity disables tracking and every claim is fresh.
type Tracker struct {
	mu       sync.Mutex
	cache    *lru.Cache // committed key -> id; nil when disabled
	inflight map[string]*pending
	maxSize  int
}

// New creates a Tracker.
func New(opts ...Option) (*Tracker, error) {
	t := &Tracker{maxSize: 10_000, inflight: make(map[string]*pending)}
	for _, opt := range opts {
		opt(t)
	}
	if t.maxSize < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, t.maxSize)
	}
	if t.maxSize == 0 {
		return t, nil
	}
	c, err := lru.New(t.maxSize)
	if err != nil {
		return nil, fmt.Errorf("idempotency: create cache: %w", err)
	}
	t.cache = c
	return t, nil
}

// Enabled reports whether keys are tracked at all.
func (t *Tracker) Enabled() bool { return t.cache != nil }

// Claim returns the ID committed for key with replayed set. Otherwise it puts
// key in flight bound to id and returns id; the caller must then Commit or
// Release it. While another claim on key is in flight, Claim waits for it.
// An empty key or a disabled tracker returns id without tracking anything.
func (t *Tracker) Claim(ctx context.Context, key, id string) (string, bool, error) {
	if t.cache == nil || key == "" {
		return id, false, nil
	}
	for {
		t.mu.Lock()
		if v, ok := t.cache.Get(key); ok {
			t.mu.Unlock()
			return v.(string), true, nil
		}
		p, busy := t.inflight[key]
		if !busy {
			t.inflight[key] = &pending{id: id, done: make(chan struct{})}
			t.mu.Unlock()
			return id, false, nil
		}
		t.mu.Unlock()

		select {
		case <-ctx.Done():
			return "", false, fmt.Errorf("idempotency: waiting for key: %w", ctx.Err())
		case <-p.done:
		}
		if p.committed {
			return p.id, true, nil
		}
	}
}

// Commit records id as the result for key. It is a no-op unless key is in
// flight with id.
func (t *Tracker) Commit(_ context.Context, key, id string) {
	t.settle(key, id, true)
}

// Release forgets an in-flight claim whose receipt could not be stored.
// Waiting claims retry as if the key were new.
func (t *Tracker) Release(_ context.Context, key, id string) {
	t.settle(key, id, false)
}

func (t *Tracker) settle(key, id string, committed bool) {
	if t.cache == nil || key == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.inflight[key]
	if !ok || p.id != id {
		return
	}
	delete(t.inflight, key)
	if committed {
		t.cache.Add(key, id)
	}
	p.committed = committed
	close(p.done)
}

// Size returns the number of committed keys.
func (t *Tracker) Size() int {
	if t.cache == nil {
		return 0
	}
	return t.cache.Len()
}
