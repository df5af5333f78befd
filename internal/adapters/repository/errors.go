package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound       = errors.New("receipt not found")
	ErrExists         = errors.New("receipt id already stored")
	ErrUnknownBackend = errors.New("unknown store backend")
	ErrClosed         = errors.New("store closed")
)
