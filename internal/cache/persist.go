package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/bitdb/internal/txn"
)

// Store is the blob storage payloads are persisted to.
type Store interface {
	Put(ctx context.Context, name string, data []byte) error
	Get(ctx context.Context, name string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
}

// blobPrefix scopes blob names to the id epoch of this process: payloads
// identify their sources by producer id, which is only meaningful within it.
func (c *Cache) blobPrefix() string {
	return fmt.Sprintf("%s%016x/", c.cfg.Prefix, txn.Epoch())
}

// SaveTo writes every stored payload to store, one blob per key. It returns
// the number of payloads written.
func (c *Cache) SaveTo(ctx context.Context, store Store) (int, error) {
	if err := c.rc.AcquireBackground(ctx); err != nil {
		return 0, err
	}
	defer c.rc.ReleaseBackground()

	payloads := c.eden.payloads()
	prefix := c.blobPrefix()

	var written atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.PersistConcurrency)
	for _, p := range payloads {
		g.Go(func() error {
			data, err := MarshalPayload(p, c.cfg.Compression)
			if err != nil {
				return fmt.Errorf("encode payload %s: %w", p.Key(), err)
			}
			if err := c.rc.AcquireIO(ctx, len(data)); err != nil {
				return err
			}
			if err := store.Put(ctx, prefix+p.Key().String(), data); err != nil {
				return fmt.Errorf("put payload %s: %w", p.Key(), err)
			}
			written.Add(1)
			return nil
		})
	}
	err := g.Wait()
	n := int(written.Load())
	c.logger.LogAttrs(ctx, slog.LevelInfo, "cache payloads saved",
		slog.Int("payloads", n),
		slog.String("compression", c.cfg.Compression.String()),
	)
	return n, err
}

// LoadFrom reads payloads from store into the cache. Blobs that cannot be
// decoded are logged and skipped; storage errors abort the load. It returns
// the number of payloads loaded.
//
// Only payloads saved by this process are visible. Loaded payloads are
// validated against the current source versions on lookup like any other
// payload.
func (c *Cache) LoadFrom(ctx context.Context, store Store) (int, error) {
	if err := c.rc.AcquireBackground(ctx); err != nil {
		return 0, err
	}
	defer c.rc.ReleaseBackground()

	prefix := c.blobPrefix()
	names, err := store.List(ctx, prefix)
	if err != nil {
		return 0, fmt.Errorf("list payloads: %w", err)
	}

	var loaded atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.PersistConcurrency)
	for _, name := range names {
		g.Go(func() error {
			data, err := store.Get(gctx, name)
			if err != nil {
				return fmt.Errorf("get payload %s: %w", name, err)
			}
			if err := c.rc.AcquireIO(gctx, len(data)); err != nil {
				return err
			}
			p, err := decodeBlob(strings.TrimPrefix(name, prefix), data)
			if err != nil {
				c.logger.LogAttrs(gctx, slog.LevelWarn, "skipping cache payload",
					slog.String("blob", name),
					slog.String("error", err.Error()),
				)
				return nil
			}
			if c.eden.set(p) {
				loaded.Add(1)
			}
			return nil
		})
	}
	err = g.Wait()
	n := int(loaded.Load())
	c.logger.LogAttrs(ctx, slog.LevelInfo, "cache payloads loaded",
		slog.Int("payloads", n),
		slog.Int("blobs", len(names)),
	)
	return n, err
}

func decodeBlob(name string, data []byte) (*Payload, error) {
	key, err := ParseKey(name)
	if err != nil {
		return nil, errors.Join(ErrCorruptPayload, err)
	}
	p, err := UnmarshalPayload(data)
	if err != nil {
		return nil, err
	}
	if p.Key() != key {
		return nil, fmt.Errorf("%w: blob %s holds payload %s", ErrCorruptPayload, key, p.Key())
	}
	return p, nil
}
