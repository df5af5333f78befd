package receiptcheck

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/okian/receipt-points/pkg/logger"
)

const logFilePermission = 0o600

// SetupLogging sends log records to stdout and to logFile. If logFile is
// empty, a timestamped filename is generated. The returned closer releases
// the file.
func SetupLogging(logFile string, verbose bool) (io.Closer, error) {
	if logFile == "" {
		logFile = "receipt_check_" + time.Now().Format("20060102_150405") + ".log"
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}

	if err := logger.Init(logger.WithOutput(io.MultiWriter(os.Stdout, file))); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	if verbose {
		_ = logger.SetLevelString("debug")
	}
	return file, nil
}

// ShowHelp prints usage information for the receipt check tool.
func ShowHelp() {
	_, _ = os.Stdout.WriteString(`Receipt Check Tool
==================

Submits generated receipts to a running receipt points service, then checks
every reported score against the local rules engine and replays a sample of
idempotency keys.

Usage:
  go run ./cmd/receipt-check [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:8080")
  -prefix string
        Prefix of the receipt routes (default "/api/v1")
  -receipts int
        Number of receipts to submit, known fixtures included (default 1000)
  -workers int
        Number of concurrent workers (default CPU cores * 2)
  -timeout duration
        HTTP request timeout (default 10s)
  -replay int
        Number of submissions re-sent with the same idempotency key (default 50)
  -output string
        Output file for submissions (default: receipt_check_TIMESTAMP.json)
  -log string
        Log file for test output (default: receipt_check_TIMESTAMP.log)
  -verbose
        Enable verbose logging
  -help
        Show this help message

Examples:
  # Check with default settings
  go run ./cmd/receipt-check

  # Heavier run against another port
  go run ./cmd/receipt-check -receipts 20000 -workers 32 -url http://localhost:9090
`)
}
