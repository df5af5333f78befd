package service

import "errors"

// Sentinel kinds returned by the service. Callers match them with errors.Is.
var (
	ErrValidation  = errors.New("invalid receipt")
	ErrNotFound    = errors.New("receipt not found")
	ErrNotSaveable = errors.New("special receipt, not save-able")
	ErrNotStarted  = errors.New("service not started")
	ErrIDExhausted = errors.New("could not allocate a unique receipt id")
)
