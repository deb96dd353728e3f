package bitdb

import (
	"log/slog"

	"github.com/hupe1980/bitdb/blobstore"
	"github.com/hupe1980/bitdb/internal/cache"
	"github.com/hupe1980/bitdb/internal/resource"
)

type options struct {
	metricsCollector MetricsCollector
	logger           *Logger
	cache            cache.Config
	resource         resource.Config
	workers          int64
	payloadStore     blobstore.BlobStore
}

// Option configures an Engine.
type Option func(*options)

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &bitdb.BasicMetricsCollector{}
//	db, _ := bitdb.New(bitdb.WithMetricsCollector(metrics))
//	// ... use db ...
//	stats := metrics.GetStats()
//	fmt.Printf("Queries: %d, Avg latency: %dns\n", stats.QueryCount, stats.QueryAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := bitdb.NewJSONLogger(slog.LevelInfo)
//	db, _ := bitdb.New(bitdb.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithCacheConfig replaces the formula cache configuration.
//
// Example:
//
//	cfg := bitdb.DefaultCacheConfig()
//	cfg.MinimalUsageThreshold = 3
//	db, _ := bitdb.New(bitdb.WithCacheConfig(cfg))
func WithCacheConfig(cfg CacheConfig) Option {
	return func(o *options) {
		o.cache = cfg
	}
}

// WithResourceConfig replaces the memory, background and IO limits.
func WithResourceConfig(cfg ResourceConfig) Option {
	return func(o *options) {
		o.resource = cfg
	}
}

// WithSchedulerWorkers bounds the number of concurrent background tasks.
// It overrides ResourceConfig.MaxBackgroundWorkers.
func WithSchedulerWorkers(n int) Option {
	return func(o *options) {
		o.workers = int64(n)
	}
}

// WithPayloadStore configures the blob store SaveCache and LoadCache use.
//
// Example with S3:
//
//	store, _ := s3.New(ctx, "my-bucket", s3.WithPrefix("bitdb/"))
//	db, _ := bitdb.New(bitdb.WithPayloadStore(store))
func WithPayloadStore(store blobstore.BlobStore) Option {
	return func(o *options) {
		o.payloadStore = store
	}
}

// WithPayloadCompression sets the compression of persisted cache payloads.
func WithPayloadCompression(c Compression) Option {
	return func(o *options) {
		o.cache.Compression = c
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
		cache:            cache.DefaultConfig(),
		resource:         resource.DefaultConfig(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.workers > 0 {
		o.resource.MaxBackgroundWorkers = o.workers
	}
	return o
}
