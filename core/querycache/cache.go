// Package querycache is a best-effort in-memory cache with per-entry TTLs,
// used to memoize expensive listing and dashboard reads.
//
// A miss and an expired entry look the same to callers: both mean "recompute and Set".
package querycache

import (
	"context"
	"regexp"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/coursefactory/core"
)

// TTL classes used by the course service.
const (
	TTLShort  = 30 * time.Second
	TTLMedium = 2 * time.Minute
	TTLLong   = 10 * time.Minute
	TTLStatic = 30 * time.Minute

	DefaultTTL           = TTLMedium
	DefaultSweepInterval = 5 * time.Minute
)

type entry struct {
	data      interface{}
	expiresAt time.Time
}

// Stats is a diagnostic snapshot of the cache.
type Stats struct {
	Total   int `json:"total"`
	Valid   int `json:"valid"`
	Expired int `json:"expired"`
}

type Options struct {
	DefaultTTL    time.Duration
	SweepInterval time.Duration
	Logger        core.Logger
	Now           func() time.Time // mockable
}

type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	gen     uint64 // bumped by every invalidation

	defaultTTL    time.Duration
	sweepInterval time.Duration
	logger        core.Logger
	now           func() time.Time

	sweepMu   sync.Mutex
	stopSweep context.CancelFunc
	swept     chan struct{}
}

func New(opts Options) *Cache {
	c := &Cache{
		entries:       make(map[string]entry),
		defaultTTL:    opts.DefaultTTL,
		sweepInterval: opts.SweepInterval,
		logger:        opts.Logger,
		now:           opts.Now,
	}
	if c.defaultTTL <= 0 {
		c.defaultTTL = DefaultTTL
	}
	if c.sweepInterval <= 0 {
		c.sweepInterval = DefaultSweepInterval
	}
	if c.logger == nil {
		c.logger = core.NopLogger{}
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// Key builds an "entity:id" key.
func Key(entity, id string) string { return entity + ":" + id }

// AllKey builds an "entity:all" key.
func AllKey(entity string) string { return entity + ":all" }

// Set stores data under key for ttl, or for the default TTL when ttl is omitted or not positive.
func (c *Cache) Set(key string, data interface{}, ttl ...time.Duration) {
	d := c.ttl(ttl)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{data: data, expiresAt: c.now().Add(d)}
}

func (c *Cache) ttl(ttl []time.Duration) time.Duration {
	if len(ttl) > 0 && ttl[0] > 0 {
		return ttl[0]
	}
	return c.defaultTTL
}

// Generation identifies the current invalidation epoch.
// Capture it before computing a value and store the value with SetIfGeneration.
func (c *Cache) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gen
}

// SetIfGeneration stores data like Set, unless an invalidation happened since gen was captured.
// It reports whether the data was stored.
func (c *Cache) SetIfGeneration(gen uint64, key string, data interface{}, ttl ...time.Duration) bool {
	d := c.ttl(ttl)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return false
	}
	c.entries[key] = entry{data: data, expiresAt: c.now().Add(d)}
	return true
}

// Get returns the data stored under key if it has not expired.
// An expired entry is evicted on the way out.
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	ent, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !c.now().After(ent.expiresAt) {
		return ent.data, true
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// a concurrent Set may have refreshed it in between
	if cur, ok := c.entries[key]; ok && c.now().After(cur.expiresAt) {
		delete(c.entries, key)
	}
	return nil, false
}

func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	delete(c.entries, key)
}

// InvalidatePattern removes every key matching the regular expression pattern and returns how many were removed.
func (c *Cache) InvalidatePattern(pattern string) (int, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return 0, errors.Wrapf(err, "compiling pattern %q", pattern)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	var n int
	for key := range c.entries {
		if re.MatchString(key) {
			delete(c.entries, key)
			n++
		}
	}
	return n, nil
}

func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.entries = make(map[string]entry)
}

// Stats counts entries against the current time. It does not evict.
func (c *Cache) Stats() Stats {
	now := c.now()

	c.mu.RLock()
	defer c.mu.RUnlock()
	stats := Stats{Total: len(c.entries)}
	for _, ent := range c.entries {
		if now.After(ent.expiresAt) {
			stats.Expired++
		} else {
			stats.Valid++
		}
	}
	return stats
}

// Cleanup evicts every expired entry and returns how many were removed.
func (c *Cache) Cleanup() int {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()
	var n int
	for key, ent := range c.entries {
		if now.After(ent.expiresAt) {
			delete(c.entries, key)
			n++
		}
	}
	return n
}
