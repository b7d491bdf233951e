package refs

import (
	"context"
	"log/slog"
	"sync"

	"github.com/atomstack-labs/atomsh/pkg/core"
)

// Cache memoizes extraction results keyed by transform content hash.
// Results are computed once per asset per run and, when a registry store
// is available, persisted so an unchanged transform skips recomputation
// on later runs.
type Cache struct {
	store  core.RegistryStore
	logger *slog.Logger

	mu  sync.Mutex
	mem map[string]*core.ExtractedRefs
}

// NewCache creates an extraction cache. store may be nil, in which case
// results are memoized in memory only.
func NewCache(store core.RegistryStore, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Cache{
		store:  store,
		logger: logger,
		mem:    make(map[string]*core.ExtractedRefs),
	}
}

// Extract returns the references for an asset, from cache when the
// transform hash is unchanged from a prior run.
func (c *Cache) Extract(ctx context.Context, asset *core.Asset) (*core.ExtractedRefs, error) {
	hash := asset.ContentHash
	if hash == "" {
		hash = Hash(asset.Transform)
	}

	c.mu.Lock()
	if cached, ok := c.mem[hash]; ok {
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	if c.store != nil {
		cached, ok, err := c.store.GetExtraction(ctx, hash)
		if err != nil {
			return nil, err
		}
		if ok {
			c.logger.Debug("extraction cache hit", "asset", asset.Name, "hash", hash[:12])
			c.remember(hash, cached)
			return cached, nil
		}
	}

	extracted := Extract(asset.Transform)
	c.remember(hash, extracted)

	if c.store != nil {
		if err := c.store.PutExtraction(ctx, hash, extracted); err != nil {
			// Cache persistence is best effort; the extraction itself
			// is still valid.
			c.logger.Warn("failed to persist extraction cache", "asset", asset.Name, "error", err)
		}
	}

	return extracted, nil
}

func (c *Cache) remember(hash string, refs *core.ExtractedRefs) {
	c.mu.Lock()
	c.mem[hash] = refs
	c.mu.Unlock()
}
