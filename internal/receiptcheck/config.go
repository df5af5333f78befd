// Package receiptcheck drives a running receipt service with generated
// receipts and verifies the points it reports.
package receiptcheck

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/okian/receipt-points/internal/domain/model"
)

// ErrVerification is returned by Run when the service disagreed with the
// local engine or broke an idempotency guarantee.
var ErrVerification = errors.New("verification failed")

// ErrInvalidConfig is returned by Run for settings it cannot run with.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds configuration for a check run.
type Config struct {
	BaseURL      string        // Base URL of the service
	APIPrefix    string        // Prefix of the receipt routes
	NumReceipts  int           // Receipts to submit, fixtures included
	Workers      int           // Concurrent workers
	Timeout      time.Duration // HTTP request timeout
	ReplaySample int           // Submissions re-sent with their idempotency key
	OutputFile   string        // Output file for submissions
	LogFile      string        // Log file for test output
	Verbose      bool          // Enable verbose logging
}

// Validate reports the first unusable setting.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.BaseURL) == "":
		return fmt.Errorf("%w: base url must not be empty", ErrInvalidConfig)
	case c.NumReceipts < 0:
		return fmt.Errorf("%w: receipts must not be negative, got %d", ErrInvalidConfig, c.NumReceipts)
	case c.ReplaySample < 0:
		return fmt.Errorf("%w: replay must not be negative, got %d", ErrInvalidConfig, c.ReplaySample)
	case c.Workers < 1:
		return fmt.Errorf("%w: workers must be positive, got %d", ErrInvalidConfig, c.Workers)
	case c.Timeout <= 0:
		return fmt.Errorf("%w: timeout must be positive, got %s", ErrInvalidConfig, c.Timeout)
	}
	return nil
}

// Submission is one receipt sent to the service and what came back.
type Submission struct {
	Name     string        `json:"name,omitempty"`
	Key      string        `json:"idempotencyKey"`
	Receipt  model.Receipt `json:"receipt"`
	Expected int           `json:"expectedPoints"`
	ID       string        `json:"id,omitempty"`
	Points   *int          `json:"points,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// Stats holds run statistics.
type Stats struct {
	ReceiptsGenerated int
	ReceiptsSubmitted int
	ReceiptsAccepted  int
	ReceiptsFailed    int
	PointsVerified    int
	PointsMismatched  int
	ReplaysSent       int
	ReplaysMismatched int
	StartTime         time.Time
	EndTime           time.Time
	Duration          time.Duration
}

type processResponse struct {
	ID string `json:"id"`
}

type pointsResponse struct {
	Points int `json:"points"`
}

type errorResponse struct {
	Error string `json:"error"`
}
