package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/receipt-points/internal/receiptcheck"
)

// Default configuration constants.
const (
	defaultNumReceipts  = 1000
	defaultReplaySample = 50
	defaultWorkers      = 2 // multiplier for runtime.NumCPU()
	defaultTimeout      = 10 * time.Second
	defaultCheckTimeout = 10 * time.Minute
)

func main() {
	var (
		baseURL    = flag.String("url", "http://localhost:8080", "Base URL of the service")
		prefix     = flag.String("prefix", "/api/v1", "Prefix of the receipt routes")
		numRecs    = flag.Int("receipts", defaultNumReceipts, "Number of receipts to submit, fixtures included")
		workers    = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent workers")
		timeout    = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		replay     = flag.Int("replay", defaultReplaySample, "Number of submissions re-sent with the same idempotency key")
		outputFile = flag.String("output", "", "Output file for submissions (default: receipt_check_TIMESTAMP.json)")
		logFile    = flag.String("log", "", "Log file for check output (default: receipt_check_TIMESTAMP.log)")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging")
		help       = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		receiptcheck.ShowHelp()
		return
	}

	closer, err := receiptcheck.SetupLogging(*logFile, *verbose)
	if err != nil {
		_, _ = os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = closer.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, defaultCheckTimeout)
	defer cancel()

	config := &receiptcheck.Config{
		BaseURL:      *baseURL,
		APIPrefix:    *prefix,
		NumReceipts:  *numRecs,
		Workers:      *workers,
		Timeout:      *timeout,
		ReplaySample: *replay,
		OutputFile:   *outputFile,
		LogFile:      *logFile,
		Verbose:      *verbose,
	}

	if _, err := receiptcheck.Run(ctx, config); err != nil {
		_, _ = os.Stderr.WriteString("Check failed: " + err.Error() + "\n")
		code := 1
		if errors.Is(err, receiptcheck.ErrVerification) {
			code = 2
		}
		_ = closer.Close()
		cancel()
		stop()
		os.Exit(code)
	}
}
