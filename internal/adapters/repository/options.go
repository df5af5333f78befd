package repository

// Option configures a store.
type Option func(*settings)

type settings struct {
	shardCount int
	path       string
}

func defaultSettings() settings {
	return settings{shardCount: 16, path: ":memory:"}
}

// WithShardCount sets the number of lock shards of the memory store.
func WithShardCount(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.shardCount = n
		}
	}
}

// WithPath sets the BuntDB file. The default keeps the database in memory.
func WithPath(path string) Option {
	return func(s *settings) {
		if path != "" {
			s.path = path
		}
	}
}
