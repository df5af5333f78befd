package idempotency

// Option configures a Tracker.
type Option func(*Tracker)

// WithMaxSize sets how many keys are remembered. Zero disables tracking.
func WithMaxSize(maxSize int) Option {
	return func(t *Tracker) {
		t.maxSize = maxSize
	}
}
