package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/okian/receipt-points/internal/domain/model"
	"github.com/okian/receipt-points/pkg/metrics"
	"github.com/tidwall/buntdb"
)

const receiptKeyPrefix = "receipt:"

// BuntStore is a Store backed by BuntDB. Receipts are kept as JSON under
// "receipt:<id>".
type BuntStore struct {
	db *buntdb.DB
}

// NewBuntStore opens the database at the configured path (in memory by default).
func NewBuntStore(opts ...Option) (*BuntStore, error) {
	cfg := defaultSettings()
	for _, opt := range opts {
		opt(&cfg)
	}
	db, err := buntdb.Open(cfg.path)
	if err != nil {
		return nil, fmt.Errorf("open buntdb %s: %w", cfg.path, err)
	}
	return &BuntStore{db: db}, nil
}

// Save implements Store. The existence check and the write share one
// transaction.
func (s *BuntStore) Save(_ context.Context, rec model.StoredReceipt) error {
	start := time.Now()
	defer func() {
		metrics.RecordStoreLatency("save", float64(time.Since(start).Microseconds())/1000)
	}()

	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode receipt %s: %w", rec.ID, err)
	}

	var n int
	err = s.db.Update(func(tx *buntdb.Tx) error {
		key := receiptKeyPrefix + rec.ID
		if _, err := tx.Get(key); err == nil {
			return fmt.Errorf("%w: %s", ErrExists, rec.ID)
		} else if !errors.Is(err, buntdb.ErrNotFound) {
			return err
		}
		if _, _, err := tx.Set(key, string(raw), nil); err != nil {
			return err
		}
		var lenErr error
		n, lenErr = tx.Len()
		return lenErr
	})
	if err != nil {
		return mapBuntErr(err)
	}
	metrics.UpdateReceiptsStored(n)
	return nil
}

// Get implements Store.
func (s *BuntStore) Get(_ context.Context, id string) (model.StoredReceipt, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreLatency("get", float64(time.Since(start).Microseconds())/1000)
	}()

	var raw string
	err := s.db.View(func(tx *buntdb.Tx) error {
		var err error
		raw, err = tx.Get(receiptKeyPrefix + id)
		return err
	})
	if err != nil {
		return model.StoredReceipt{}, mapBuntErr(err)
	}

	var rec model.StoredReceipt
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return model.StoredReceipt{}, fmt.Errorf("decode receipt %s: %w", id, err)
	}
	return rec, nil
}

// Count implements Store. It returns 0 if the database is closed.
func (s *BuntStore) Count(_ context.Context) int {
	var n int
	_ = s.db.View(func(tx *buntdb.Tx) error {
		var err error
		n, err = tx.Len()
		return err
	})
	return n
}

// Close implements Store.
func (s *BuntStore) Close() error {
	return mapBuntErr(s.db.Close())
}

func mapBuntErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, buntdb.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, buntdb.ErrDatabaseClosed):
		return ErrClosed
	default:
		return err
	}
}
