// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	repository "github.com/okian/receipt-points/internal/adapters/repository"
	"github.com/okian/receipt-points/internal/domain/idempotency"
	"github.com/okian/receipt-points/internal/domain/model"
	"github.com/okian/receipt-points/internal/domain/points"
	"github.com/okian/receipt-points/pkg/logger"
	"github.com/okian/receipt-points/pkg/metrics"
)

// DefaultSentinelRetailer is the retailer name whose receipts are refused
// without being stored. It exists for client test suites.
const DefaultSentinelRetailer = "dont-save-me"

// maxIDAttempts bounds retries when a generated id is already taken.
const maxIDAttempts = 3

// Service validates, scores and stores receipts.
type Service struct {
	mu sync.RWMutex

	// Core components
	store   repository.Store
	tracker *idempotency.Tracker
	calc    points.Calculator
	newID   func() (string, error)
	now     func() time.Time

	// Configuration
	storeBackend    string
	shardCount      int
	storePath       string
	idempotencySize int
	sentinel        string
	ownsStore       bool

	// State
	started bool

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStore injects a store. The caller keeps ownership and closes it.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithStoreBackend selects the store opened by Start when none is injected.
func WithStoreBackend(backend string) Option {
	return func(s *Service) {
		if backend != "" {
			s.storeBackend = backend
		}
	}
}

// WithShardCount sets the shard count of the memory store.
func WithShardCount(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.shardCount = n
		}
	}
}

// WithStorePath sets the buntdb file. ":memory:" keeps it in memory.
func WithStorePath(path string) Option {
	return func(s *Service) {
		if path != "" {
			s.storePath = path
		}
	}
}

// WithIdempotencyCacheSize sets how many idempotency keys are remembered.
// Zero disables idempotency keys.
func WithIdempotencyCacheSize(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.idempotencySize = n
		}
	}
}

// WithSentinelRetailer sets the retailer name that is refused with
// ErrNotSaveable. An empty name disables the check.
func WithSentinelRetailer(name string) Option {
	return func(s *Service) {
		s.sentinel = name
	}
}

// WithIDGenerator replaces the receipt id generator.
func WithIDGenerator(gen func() (string, error)) Option {
	return func(s *Service) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// WithCalculator replaces the points engine.
func WithCalculator(c points.Calculator) Option {
	return func(s *Service) {
		if c != nil {
			s.calc = c
		}
	}
}

// WithClock replaces the clock used for ProcessedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		calc:            points.New(),
		newID:           newUUIDv7,
		now:             time.Now,
		storeBackend:    repository.BackendMemory,
		shardCount:      16,
		idempotencySize: 10_000,
		sentinel:        DefaultSentinelRetailer,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newUUIDv7() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Start opens the store and the idempotency tracker.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}

	s.logger.Info(ctx, "starting receipt service...")

	if s.store == nil {
		store, err := repository.Open(s.storeBackend,
			repository.WithShardCount(s.shardCount),
			repository.WithPath(s.storePath),
		)
		if err != nil {
			return fmt.Errorf("service: open store: %w", err)
		}
		s.store = store
		s.ownsStore = true
	}

	tracker, err := idempotency.New(idempotency.WithMaxSize(s.idempotencySize))
	if err != nil {
		if s.ownsStore {
			_ = s.store.Close()
			s.store = nil
			s.ownsStore = false
		}
		return fmt.Errorf("service: idempotency tracker: %w", err)
	}
	s.tracker = tracker

	s.started = true
	s.logger.Info(ctx, "receipt service started",
		logger.String("backend", s.storeBackend),
		logger.Int("shards", s.shardCount),
		logger.Int("idempotencyCacheSize", s.idempotencySize),
		logger.Bool("sentinelEnabled", s.sentinel != ""),
	)
	return nil
}

// Stop closes the store if the service opened it.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx := context.Background()
	s.logger.Info(ctx, "stopping receipt service...")

	if s.ownsStore && s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Warn(ctx, "closing store failed", logger.Error(err))
		}
		s.store = nil
		s.ownsStore = false
	}

	s.started = false
	s.logger.Info(ctx, "receipt service stopped")
}

func (s *Service) components() (repository.Store, *idempotency.Tracker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, nil, ErrNotStarted
	}
	return s.store, s.tracker, nil
}

// Process validates and scores r, stores it under a new id and returns the id.
func (s *Service) Process(ctx context.Context, r model.Receipt) (string, error) {
	id, _, err := s.ProcessIdempotent(ctx, "", r)
	return id, err
}

// ProcessIdempotent is Process keyed by a client supplied idempotency key.
// If a receipt was already stored under key, its id is returned with replayed
// set and nothing is stored. A request racing one that is still saving under
// the same key waits for it. An empty key behaves like Process.
func (s *Service) ProcessIdempotent(ctx context.Context, key string, r model.Receipt) (string, bool, error) {
	const op = "service.process"

	store, tracker, err := s.components()
	if err != nil {
		return "", false, fmt.Errorf("%s: %w", op, err)
	}

	if err := r.Validate(); err != nil {
		metrics.RecordReceiptRejected("validation")
		return "", false, fmt.Errorf("%s: %w: %w", op, ErrValidation, err)
	}
	if s.sentinel != "" && r.Retailer == s.sentinel {
		metrics.RecordReceiptRejected("not_saveable")
		return "", false, fmt.Errorf("%s: %w", op, ErrNotSaveable)
	}

	res, err := s.calc.Explain(r)
	if err != nil {
		if errors.Is(err, points.ErrMalformedAmount) {
			metrics.RecordReceiptRejected("malformed_amount")
			return "", false, fmt.Errorf("%s: %w: %w", op, ErrValidation, err)
		}
		return "", false, fmt.Errorf("%s: score: %w", op, err)
	}

	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id, err := s.newID()
		if err != nil {
			return "", false, fmt.Errorf("%s: generate id: %w", op, err)
		}

		bound, replayed, err := tracker.Claim(ctx, key, id)
		if err != nil {
			return "", false, fmt.Errorf("%s: %w", op, err)
		}
		if replayed {
			metrics.RecordIdempotentReplay()
			s.logger.Debug(ctx, "idempotent replay",
				logger.String("key", key),
				logger.String("id", bound),
			)
			return bound, true, nil
		}

		rec := model.StoredReceipt{
			ID:          id,
			Receipt:     r,
			Points:      res.Points,
			ProcessedAt: s.now().UTC(),
		}
		err = store.Save(ctx, rec)
		if err == nil {
			tracker.Commit(ctx, key, id)
			s.recordScored(res)
			s.logger.Debug(ctx, "receipt stored",
				logger.String("id", id),
				logger.Int("points", res.Points),
			)
			return id, false, nil
		}

		tracker.Release(ctx, key, id)
		if !errors.Is(err, repository.ErrExists) {
			return "", false, fmt.Errorf("%s: save: %w", op, err)
		}
		s.logger.Warn(ctx, "receipt id collision, retrying",
			logger.String("id", id),
			logger.Int("attempt", attempt+1),
		)
	}
	return "", false, fmt.Errorf("%s: %w", op, ErrIDExhausted)
}

func (s *Service) recordScored(res points.Result) {
	metrics.RecordReceiptProcessed()
	metrics.RecordPointsAwarded(res.Points)
	for rule, v := range res.Breakdown {
		if p, ok := v.(int); ok {
			metrics.RecordRulePoints(rule, p)
		}
	}
}

// GetReceipt returns the stored record for id.
func (s *Service) GetReceipt(ctx context.Context, id string) (model.StoredReceipt, error) {
	const op = "service.get_receipt"

	store, _, err := s.components()
	if err != nil {
		return model.StoredReceipt{}, fmt.Errorf("%s: %w", op, err)
	}
	rec, err := store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			metrics.RecordLookup("miss")
			return model.StoredReceipt{}, fmt.Errorf("%s: %w: %s", op, ErrNotFound, id)
		}
		return model.StoredReceipt{}, fmt.Errorf("%s: %w", op, err)
	}
	metrics.RecordLookup("hit")
	return rec, nil
}

// GetPoints returns the points awarded to the receipt stored under id.
func (s *Service) GetPoints(ctx context.Context, id string) (int, error) {
	rec, err := s.GetReceipt(ctx, id)
	if err != nil {
		return 0, err
	}
	return rec.Points, nil
}

// Explain rescores the stored receipt and returns the per-rule breakdown.
// The total is the stored one.
func (s *Service) Explain(ctx context.Context, id string) (points.Result, error) {
	rec, err := s.GetReceipt(ctx, id)
	if err != nil {
		return points.Result{}, err
	}
	res, err := s.calc.Explain(rec.Receipt)
	if err != nil {
		return points.Result{}, fmt.Errorf("service.explain: %w", err)
	}
	res.Points = rec.Points
	return res, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":              s.started,
		"storeBackend":         s.storeBackend,
		"idempotencyCacheSize": s.idempotencySize,
		"sentinelRetailer":     s.sentinel,
	}

	if s.started {
		count := s.store.Count(context.Background())
		stats["receiptsStored"] = count
		stats["idempotencyKeys"] = s.tracker.Size()
		metrics.UpdateReceiptsStored(count)
	}

	return stats
}
