package receiptcheck

import (
	"context"
	"net/http"
	"sync/atomic"

	"github.com/okian/receipt-points/internal/adapters/http/api"
	"github.com/okian/receipt-points/pkg/logger"
)

// verifyPoints fetches the score of every accepted submission and compares it
// with the locally computed one.
func verifyPoints(ctx context.Context, config *Config, subs []Submission, stats *Stats) {
	logger.Get().Info(ctx, "verifying points")

	client := newHTTPClient(config.Timeout)
	var verified, mismatched atomic.Int64

	forEach(ctx, config.Workers, len(subs), func(i int) {
		s := &subs[i]
		if s.ID == "" {
			return
		}
		resp, err := client.Get(ctx, config.routeURL("/receipts/"+s.ID+"/points"))
		if err == nil {
			var out pointsResponse
			if err = decodeResponse(resp, &out); err == nil {
				p := out.Points
				s.Points = &p
				if p == s.Expected {
					verified.Add(1)
					return
				}
				logger.Get().Warn(ctx, "points mismatch",
					logger.String("id", s.ID),
					logger.String("name", s.Name),
					logger.Int("expected", s.Expected),
					logger.Int("got", p))
				mismatched.Add(1)
				return
			}
		}
		s.Error = err.Error()
		mismatched.Add(1)
		logger.Get().Warn(ctx, "points lookup failed", logger.String("id", s.ID), logger.Error(err))
	})

	stats.PointsVerified = int(verified.Load())
	stats.PointsMismatched = int(mismatched.Load())
}

// verifyReplays re-sends the first ReplaySample accepted submissions with
// their original key. Each must come back with the same id and the replay
// header set.
func verifyReplays(ctx context.Context, config *Config, subs []Submission, stats *Stats) {
	if config.ReplaySample <= 0 {
		return
	}
	sample := make([]*Submission, 0, config.ReplaySample)
	for i := range subs {
		if len(sample) == config.ReplaySample {
			break
		}
		if subs[i].ID != "" {
			sample = append(sample, &subs[i])
		}
	}
	if len(sample) == 0 {
		return
	}
	logger.Get().Info(ctx, "replaying idempotency keys", logger.Int("count", len(sample)))

	client := newHTTPClient(config.Timeout)
	url := config.routeURL("/receipts/process")
	var sent, mismatched atomic.Int64

	forEach(ctx, config.Workers, len(sample), func(i int) {
		s := sample[i]
		sent.Add(1)
		resp, err := client.Post(ctx, url, s.Receipt, map[string]string{api.IdempotencyKeyHeader: s.Key})
		if err != nil {
			mismatched.Add(1)
			logger.Get().Warn(ctx, "replay failed", logger.String("key", s.Key), logger.Error(err))
			return
		}
		replayed := resp.Header.Get(api.ReplayedHeader) == "true"
		status := resp.StatusCode
		var out processResponse
		if err := decodeResponse(resp, &out); err != nil || status != http.StatusOK || out.ID != s.ID || !replayed {
			mismatched.Add(1)
			logger.Get().Warn(ctx, "replay returned a different receipt",
				logger.String("key", s.Key),
				logger.String("want", s.ID),
				logger.String("got", out.ID),
				logger.Bool("replayed", replayed))
		}
	})

	stats.ReplaysSent = int(sent.Load())
	stats.ReplaysMismatched = int(mismatched.Load())
}
