package receiptcheck

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/okian/receipt-points/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0o750
	outputPermission    = 0o600
)

const percentageMultiplier = 100

// Run executes a complete check: health, generate, submit, verify points,
// replay keys, save submissions.
func Run(ctx context.Context, config *Config) (*Stats, error) {
	stats := &Stats{StartTime: time.Now()}
	if err := config.Validate(); err != nil {
		return stats, err
	}

	logger.Get().Info(ctx, "starting receipt check",
		logger.String("baseURL", config.BaseURL),
		logger.String("prefix", config.APIPrefix),
		logger.Int("receipts", config.NumReceipts),
		logger.Int("workers", config.Workers),
		logger.Duration("timeout", config.Timeout),
		logger.Int("replaySample", config.ReplaySample))

	if err := checkServiceHealth(ctx, config); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	subs, err := generateSubmissions(ctx, config, stats)
	if err != nil {
		return stats, fmt.Errorf("receipt generation failed: %w", err)
	}

	submitReceipts(ctx, config, subs, stats)
	verifyPoints(ctx, config, subs, stats)
	verifyReplays(ctx, config, subs, stats)

	if err := saveSubmissionsToFile(ctx, config, subs); err != nil {
		logger.Get().Warn(ctx, "failed to save submissions to file", logger.Error(err))
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, stats)

	if stats.ReceiptsFailed > 0 || stats.PointsMismatched > 0 || stats.ReplaysMismatched > 0 {
		return stats, fmt.Errorf("%w: %d failed submissions, %d point mismatches, %d replay mismatches",
			ErrVerification, stats.ReceiptsFailed, stats.PointsMismatched, stats.ReplaysMismatched)
	}
	if err := ctx.Err(); err != nil {
		return stats, fmt.Errorf("check interrupted: %w", err)
	}

	logger.Get().Info(ctx, "check completed successfully")
	return stats, nil
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, config *Config) error {
	logger.Get().Info(ctx, "checking service health")

	resp, err := newHTTPClient(config.Timeout).Get(ctx, config.BaseURL+"/healthz")
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Get().Error(ctx, "failed to close response body", logger.Error(err))
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected health status: %d", resp.StatusCode)
	}

	logger.Get().Info(ctx, "service is healthy")
	return nil
}

// saveSubmissionsToFile writes the submissions as a JSON array.
func saveSubmissionsToFile(ctx context.Context, config *Config, subs []Submission) error {
	if len(subs) == 0 {
		return fmt.Errorf("no submissions to save")
	}

	filename := config.OutputFile
	if filename == "" {
		filename = "receipt_check_" + time.Now().Format("20060102_150405") + ".json"
	}

	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(subs, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal submissions: %w", err)
	}
	if err := os.WriteFile(filename, append(data, '\n'), outputPermission); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	logger.Get().Info(ctx, "submissions saved to file", logger.String("filename", filename))
	return nil
}

func displayFinalStats(ctx context.Context, stats *Stats) {
	var successRate, receiptsPerSecond float64

	if stats.ReceiptsSubmitted > 0 {
		successRate = float64(stats.ReceiptsAccepted) / float64(stats.ReceiptsSubmitted) * percentageMultiplier
	}
	if stats.Duration > 0 {
		receiptsPerSecond = float64(stats.ReceiptsSubmitted) / stats.Duration.Seconds()
	}

	logger.Get().Info(ctx, "final statistics",
		logger.Int("receiptsGenerated", stats.ReceiptsGenerated),
		logger.Int("receiptsSubmitted", stats.ReceiptsSubmitted),
		logger.Int("receiptsAccepted", stats.ReceiptsAccepted),
		logger.Int("receiptsFailed", stats.ReceiptsFailed),
		logger.Int("pointsVerified", stats.PointsVerified),
		logger.Int("pointsMismatched", stats.PointsMismatched),
		logger.Int("replaysSent", stats.ReplaysSent),
		logger.Int("replaysMismatched", stats.ReplaysMismatched),
		logger.Duration("duration", stats.Duration),
		logger.Float64("successRate", successRate),
		logger.Float64("receiptsPerSecond", receiptsPerSecond))
}
