// Package repository stores processed receipts.
package repository

import (
	"context"
	"fmt"

	"github.com/okian/receipt-points/internal/domain/model"
)

// Store holds processed receipts keyed by ID. Entries are write-once.
type Store interface {
	// Save inserts rec. It returns ErrExists if rec.ID is already taken.
	Save(ctx context.Context, rec model.StoredReceipt) error

	// Get returns the receipt stored under id, or ErrNotFound.
	Get(ctx context.Context, id string) (model.StoredReceipt, error)

	// Count returns the number of stored receipts.
	Count(ctx context.Context) int

	// Close releases the backend.
	Close() error
}

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendBuntDB = "buntdb"
)

// Open builds the Store named by backend.
func Open(backend string, opts ...Option) (Store, error) {
	switch backend {
	case BackendMemory, "":
		return NewMemoryStore(opts...), nil
	case BackendBuntDB:
		return NewBuntStore(opts...)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}

// copyReceipt detaches the item slice so callers cannot mutate stored state.
func copyReceipt(rec model.StoredReceipt) model.StoredReceipt {
	if rec.Items != nil {
		items := make([]model.Item, len(rec.Items))
		copy(items, rec.Items)
		rec.Items = items
	}
	return rec
}
