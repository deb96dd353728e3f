package cache

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hupe1980/bitdb/internal/formula"
)

// Key identifies a cached formula result: the structural hash of the
// subtree and the hash of the transactional sources it reads.
type Key struct {
	RecordHash          uint64
	TransactionalIDHash uint64
}

// KeyOf returns the cache key of f.
func KeyOf(f *formula.Formula) Key {
	return Key{RecordHash: f.Hash(), TransactionalIDHash: f.TransactionalIDHash()}
}

// String renders the key as a blob name.
func (k Key) String() string {
	return fmt.Sprintf("%016x-%016x", k.RecordHash, k.TransactionalIDHash)
}

// ParseKey parses the output of Key.String.
func ParseKey(s string) (Key, error) {
	rec, ids, ok := strings.Cut(s, "-")
	if !ok {
		return Key{}, fmt.Errorf("invalid cache key %q", s)
	}
	r, err := strconv.ParseUint(rec, 16, 64)
	if err != nil {
		return Key{}, fmt.Errorf("invalid cache key %q: %w", s, err)
	}
	t, err := strconv.ParseUint(ids, 16, 64)
	if err != nil {
		return Key{}, fmt.Errorf("invalid cache key %q: %w", s, err)
	}
	return Key{RecordHash: r, TransactionalIDHash: t}, nil
}

// Config configures a Cache.
type Config struct {
	// MinimalComplexityThreshold is the estimated cost a subtree must reach
	// before it is considered for caching.
	MinimalComplexityThreshold int64
	// MinimalUsageThreshold is the number of times a subtree must be seen
	// before its result is stored.
	MinimalUsageThreshold int
	// AnteroomCapacity bounds the number of tracked, not yet admitted
	// subtrees. Exceeding it triggers an eden evaluation.
	AnteroomCapacity int
	// MaxBytes bounds the memory held by stored payloads.
	MaxBytes int64
	// Compression is used when payloads are persisted.
	Compression Compression
	// PersistConcurrency bounds parallel blob reads and writes.
	PersistConcurrency int
	// Prefix is prepended to blob names on persistence.
	Prefix string
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() Config {
	return Config{
		MinimalComplexityThreshold: 5_000,
		MinimalUsageThreshold:      2,
		AnteroomCapacity:           10_000,
		MaxBytes:                   32 << 20,
		Compression:                CompressionLZ4,
		PersistConcurrency:         8,
		Prefix:                     "formula-cache/",
	}
}

// Stats reports cache counters.
type Stats struct {
	Hits        int64
	Misses      int64
	Stale       int64
	Admitted    int64
	Evicted     int64
	Entries     int
	Adepts      int
	StoredBytes int64
	Evaluations int64
	Rejections  int64
}
