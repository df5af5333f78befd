// Package config defines service configuration and its defaults.
package config

// Store backends understood by the service.
const (
	BackendMemory = "memory"
	BackendBuntDB = "buntdb"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects text or json log output.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// APIPrefix is the path prefix of the receipts API.
	APIPrefix string `koanf:"api_prefix"`

	// StoreBackend picks the receipt store: memory or buntdb.
	StoreBackend string `koanf:"store_backend"`

	// StorePath is the buntdb file; ":memory:" keeps the data in memory.
	StorePath string `koanf:"store_path"`

	// ShardCount configures the number of shards of the memory store.
	ShardCount int `koanf:"shard_count"`

	// IdempotencyCacheSize bounds the Idempotency-Key cache. Zero disables it.
	IdempotencyCacheSize int `koanf:"idempotency_cache_size"`

	// SentinelRetailer is a retailer name that is refused with a 500 and never
	// stored. Empty disables the hook.
	SentinelRetailer string `koanf:"sentinel_retailer"`

	// MaxBodyBytes caps the size of request bodies.
	MaxBodyBytes int64 `koanf:"max_body_bytes"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:             "info",
		LogFormat:            "text",
		Addr:                 ":8080",
		APIPrefix:            "/api/v1",
		StoreBackend:         BackendMemory,
		StorePath:            ":memory:",
		ShardCount:           16,
		IdempotencyCacheSize: 10_000,
		SentinelRetailer:     "dont-save-me",
		MaxBodyBytes:         1 << 20,
	}
}
