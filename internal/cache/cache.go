// Package cache stores fitted growth curve parameters keyed by the growth
// points they were fitted from.
package cache

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"srf-carbon/internal/growth"
)

// keyVersion changes whenever the fitter changes in a way that alters results.
const keyVersion = "v1"

// FitCache is implemented by the Redis and in-memory caches
type FitCache interface {
	Get(ctx context.Context, key string) (growth.Parameters, bool, error)
	Set(ctx context.Context, key string, params growth.Parameters) error
}

// Key fingerprints an ordered set of growth points and the fit budget.
func Key(points []growth.Point, maxEvaluations int) string {
	buf := make([]byte, 0, 16*len(points)+8)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(maxEvaluations))
	for _, p := range points {
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(p.Age))
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(p.Rate))
	}
	return fmt.Sprintf("srf:fit:%s:%016x", keyVersion, xxhash.Sum64(buf))
}

type memoryEntry struct {
	params  growth.Parameters
	expires time.Time
}

// MemoryCache is a process-local FitCache with per-entry expiry
type MemoryCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryCache returns an empty cache. A non-positive ttl never expires.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		ttl:     ttl,
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (c *MemoryCache) Get(_ context.Context, key string) (growth.Parameters, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return growth.Parameters{}, false, nil
	}
	if !e.expires.IsZero() && !c.now().Before(e.expires) {
		delete(c.entries, key)
		return growth.Parameters{}, false, nil
	}
	return e.params, true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, params growth.Parameters) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := memoryEntry{params: params}
	if c.ttl > 0 {
		e.expires = c.now().Add(c.ttl)
	}
	c.entries[key] = e
	return nil
}

// Len returns the number of stored entries, expired or not
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
