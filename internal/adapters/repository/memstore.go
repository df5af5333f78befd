package repository

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/okian/receipt-points/internal/domain/model"
	"github.com/okian/receipt-points/pkg/metrics"
)

// MemoryStore is a Store backed by sharded maps. Each shard has its own
// RWMutex so lookups on different IDs rarely contend.
type MemoryStore struct {
	shards []*shard
	count  atomic.Int64
	closed atomic.Bool
}

type shard struct {
	mu    sync.RWMutex
	items map[string]model.StoredReceipt
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore(opts ...Option) *MemoryStore {
	cfg := defaultSettings()
	for _, opt := range opts {
		opt(&cfg)
	}
	s := &MemoryStore{shards: make([]*shard, cfg.shardCount)}
	for i := range s.shards {
		s.shards[i] = &shard{items: make(map[string]model.StoredReceipt)}
	}
	return s
}

func (s *MemoryStore) shardFor(id string) *shard {
	return s.shards[xxhash.Sum64String(id)%uint64(len(s.shards))]
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, rec model.StoredReceipt) error {
	if s.closed.Load() {
		return ErrClosed
	}
	start := time.Now()
	defer func() {
		metrics.RecordStoreLatency("save", float64(time.Since(start).Microseconds())/1000)
	}()

	sh := s.shardFor(rec.ID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if _, ok := sh.items[rec.ID]; ok {
		return fmt.Errorf("%w: %s", ErrExists, rec.ID)
	}
	sh.items[rec.ID] = copyReceipt(rec)
	metrics.UpdateReceiptsStored(int(s.count.Add(1)))
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, id string) (model.StoredReceipt, error) {
	if s.closed.Load() {
		return model.StoredReceipt{}, ErrClosed
	}
	start := time.Now()
	defer func() {
		metrics.RecordStoreLatency("get", float64(time.Since(start).Microseconds())/1000)
	}()

	sh := s.shardFor(id)
	sh.mu.RLock()
	rec, ok := sh.items[id]
	sh.mu.RUnlock()
	if !ok {
		return model.StoredReceipt{}, ErrNotFound
	}
	return copyReceipt(rec), nil
}

// Count implements Store.
func (s *MemoryStore) Count(_ context.Context) int {
	return int(s.count.Load())
}

// Close implements Store. Later calls fail with ErrClosed.
func (s *MemoryStore) Close() error {
	s.closed.Store(true)
	return nil
}
