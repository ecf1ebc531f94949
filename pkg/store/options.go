package store

import (
	"runtime"

	"golang.org/x/time/rate"
)

type options struct {
	logger          *Logger
	cacheBytes      int64
	shardSize       int
	bulkChunkSize   int
	bulkWorkers     int
	vacuumBatchSize int
	vacuumLimiter   *rate.Limiter
	seqBandwidth    uint64
}

func defaultOptions() options {
	return options{
		logger:          NoopLogger(),
		cacheBytes:      64 << 20,
		shardSize:       16384,
		bulkChunkSize:   10000,
		bulkWorkers:     runtime.GOMAXPROCS(0),
		vacuumBatchSize: 1000,
		seqBandwidth:    1000,
	}
}

// Option configures a Store.
type Option func(*options)

// WithLogger sets the store logger. A nil logger disables logging.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l == nil {
			l = NoopLogger()
		}
		o.logger = l
	}
}

// WithDictionaryCache bounds the id -> term decode cache in bytes.
func WithDictionaryCache(bytes int64) Option {
	return func(o *options) {
		if bytes > 0 {
			o.cacheBytes = bytes
		}
	}
}

// WithDictionaryShardSize bounds the number of cached term -> id entries
// per dictionary shard (64 shards).
func WithDictionaryShardSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.shardSize = n
		}
	}
}

// WithBulkChunkSize sets how many quads BulkLoad encodes and flushes at a
// time.
func WithBulkChunkSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.bulkChunkSize = n
		}
	}
}

// WithBulkWorkers sets the number of term encoding workers used by
// BulkLoad.
func WithBulkWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.bulkWorkers = n
		}
	}
}

// WithVacuumRate limits Vacuum to termsPerSecond reclaimed terms per
// second. Zero means unlimited.
func WithVacuumRate(termsPerSecond float64) Option {
	return func(o *options) {
		if termsPerSecond <= 0 {
			o.vacuumLimiter = nil
			return
		}
		o.vacuumLimiter = rate.NewLimiter(rate.Limit(termsPerSecond), int(max(termsPerSecond, 1)))
	}
}

// WithVacuumBatchSize sets how many dictionary entries one vacuum
// transaction deletes.
func WithVacuumBatchSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.vacuumBatchSize = n
		}
	}
}

// WithSequenceBandwidth sets how many term ids are leased from the
// persistent sequence at a time.
func WithSequenceBandwidth(n uint64) Option {
	return func(o *options) {
		if n > 0 {
			o.seqBandwidth = n
		}
	}
}
