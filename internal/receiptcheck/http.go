package receiptcheck

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/receipt-points/internal/adapters/http/api"
	"github.com/okian/receipt-points/pkg/logger"
)

// HTTPClient wraps http.Client with timeout.
type HTTPClient struct {
	client *http.Client
}

func newHTTPClient(timeout time.Duration) *HTTPClient {
	return &HTTPClient{client: &http.Client{Timeout: timeout}}
}

// Get performs a GET request.
func (c *HTTPClient) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.client.Do(req)
}

// Post performs a POST request with a JSON body and the given headers.
func (c *HTTPClient) Post(ctx context.Context, url string, body any, headers map[string]string) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return c.client.Do(req)
}

// decodeResponse reads and closes the body. Non-200 responses become
// errors carrying the service's error message.
func decodeResponse(resp *http.Response, v any) error {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var e errorResponse
		_ = json.Unmarshal(body, &e)
		return fmt.Errorf("status %d: %s", resp.StatusCode, e.Error)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

func (c *Config) routeURL(path string) string {
	return c.BaseURL + c.APIPrefix + path
}

// forEach runs fn for every index in [0, n) on config.Workers goroutines.
func forEach(ctx context.Context, workers, n int, fn func(i int)) {
	if workers < 1 {
		workers = 1
	}
	indices := make(chan int, workers*2)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indices {
				if ctx.Err() != nil {
					continue
				}
				fn(i)
			}
		}()
	}
	for i := 0; i < n; i++ {
		select {
		case <-ctx.Done():
		case indices <- i:
			continue
		}
		break
	}
	close(indices)
	wg.Wait()
}

// submitReceipts posts every submission with its idempotency key and
// records the issued id.
func submitReceipts(ctx context.Context, config *Config, subs []Submission, stats *Stats) {
	logger.Get().Info(ctx, "submitting receipts",
		logger.Int("count", len(subs)),
		logger.Int("workers", config.Workers))

	client := newHTTPClient(config.Timeout)
	url := config.routeURL("/receipts/process")

	var submitted, accepted, failed atomic.Int64
	forEach(ctx, config.Workers, len(subs), func(i int) {
		s := &subs[i]
		submitted.Add(1)

		resp, err := client.Post(ctx, url, s.Receipt, map[string]string{api.IdempotencyKeyHeader: s.Key})
		if err == nil {
			var out processResponse
			if err = decodeResponse(resp, &out); err == nil {
				s.ID = out.ID
				accepted.Add(1)
				return
			}
		}
		s.Error = err.Error()
		failed.Add(1)
		logger.Get().Debug(ctx, "submission failed", logger.Int("index", i), logger.Error(err))
	})

	stats.ReceiptsSubmitted = int(submitted.Load())
	stats.ReceiptsAccepted = int(accepted.Load())
	stats.ReceiptsFailed = int(failed.Load())

	logger.Get().Info(ctx, "receipt submission completed",
		logger.Int("accepted", stats.ReceiptsAccepted),
		logger.Int("failed", stats.ReceiptsFailed))
}
