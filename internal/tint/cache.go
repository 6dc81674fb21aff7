package tint

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ironsheep/poster-tint/internal/imaging"
)

const (
	// DefaultCapacity is the number of records kept after a write.
	DefaultCapacity = 80

	// DefaultTTL is how long a record is served before re-extraction.
	DefaultTTL = 24 * time.Hour

	// SchemaVersion is stamped on every record. Records with any other
	// version are treated as misses.
	SchemaVersion = 1

	// DefaultStoreTimeout bounds each Store call.
	DefaultStoreTimeout = 2 * time.Second

	// hydrateRetryInterval is how long a failed read holds off the next one.
	hydrateRetryInterval = time.Second
)

// Record is one persisted color. The JSON layout is the on-disk format:
//
//	{"https://cdn.example/p.jpg": {"color": "hsl(210, 34%, 58%)", "ts": 1718000000000, "v": 1}}
type Record struct {
	Color string `json:"color"`
	TS    int64  `json:"ts"` // write time, Unix milliseconds
	V     int    `json:"v"`
}

// ErrorHook receives failures that are swallowed to keep lookups total. op
// names the failing step ("store_read", "store_write", "store_clear",
// "store_decode", or an extraction FallbackReason); url is empty for store
// operations.
type ErrorHook func(op, url string, err error)

// CacheOptions configures a Cache. Zero values select the defaults.
type CacheOptions struct {
	Capacity int
	TTL      time.Duration
	Version  int

	// Namespace is reported by Stats; the Store owns the actual key.
	Namespace string

	// StoreTimeout bounds each Store call. Store calls never inherit the
	// caller's cancellation.
	StoreTimeout time.Duration

	// Now is the clock, for tests.
	Now func() time.Time

	Logger  *zap.Logger
	Metrics *Metrics
	OnError ErrorHook
}

// CacheStats describes the cache state.
type CacheStats struct {
	Entries   int    `json:"entries"`
	Capacity  int    `json:"capacity"`
	TTL       string `json:"ttl"`
	Version   int    `json:"version"`
	Namespace string `json:"namespace"`
}

// Cache maps normalized image URLs to extracted colors.
//
// The in-memory map is authoritative for the lifetime of the Cache. The
// Store is read on first use and written through on every Put once that read
// has succeeded; until then a failed read is retried and nothing is written,
// so an unreadable store is never overwritten with a partial map. Store
// writes run outside the lookup lock. Persistence is best effort: Store
// failures are reported to the error hook and otherwise ignored.
//
// Cache is safe for concurrent use.
type Cache struct {
	store        Store
	capacity     int
	ttl          time.Duration
	version      int
	namespace    string
	storeTimeout time.Duration
	now          func() time.Time
	logger       *zap.Logger
	metrics      *Metrics
	onError      ErrorHook

	mu      sync.Mutex
	entries map[string]Record
	loaded  bool
	retryAt time.Time
	lastTS  int64
	gen     uint64 // bumped for every state handed to the Store

	// writeMu serializes Store writes; savedGen is the newest generation
	// that reached the Store, older snapshots are dropped.
	writeMu  sync.Mutex
	savedGen uint64
}

// NewCache creates a Cache persisting through store. A nil store keeps
// records in memory only.
func NewCache(store Store, opts CacheOptions) *Cache {
	c := &Cache{
		store:        store,
		capacity:     opts.Capacity,
		ttl:          opts.TTL,
		version:      opts.Version,
		namespace:    opts.Namespace,
		storeTimeout: opts.StoreTimeout,
		now:          opts.Now,
		logger:       opts.Logger,
		metrics:      opts.Metrics,
		onError:      opts.OnError,
		entries:      make(map[string]Record),
	}
	if c.store == nil {
		c.store = NewMemoryStore()
	}
	if c.capacity <= 0 {
		c.capacity = DefaultCapacity
	}
	if c.ttl <= 0 {
		c.ttl = DefaultTTL
	}
	if c.version <= 0 {
		c.version = SchemaVersion
	}
	if c.namespace == "" {
		c.namespace = DefaultNamespace
	}
	if c.storeTimeout <= 0 {
		c.storeTimeout = DefaultStoreTimeout
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	return c
}

// Get returns the color stored for a normalized URL. Records with a foreign
// schema version or older than the TTL are misses.
func (c *Cache) Get(ctx context.Context, key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hydrate(ctx)

	rec, ok := c.entries[key]
	if !ok {
		return "", false
	}
	if rec.V != c.version {
		delete(c.entries, key)
		return "", false
	}
	if c.expired(rec) {
		c.logger.Debug("cache entry expired", zap.String("url", key), zap.Int64("ts", rec.TS))
		delete(c.entries, key)
		return "", false
	}
	return rec.Color, true
}

// Put records color for a normalized URL, trims the map to capacity and
// writes it through to the Store.
//
// Write timestamps are strictly increasing within a Cache, so "most recently
// written" is well defined even for writes in the same millisecond.
func (c *Cache) Put(ctx context.Context, key, color string) {
	c.mu.Lock()
	c.hydrate(ctx)

	ts := c.now().UnixMilli()
	if ts <= c.lastTS {
		ts = c.lastTS + 1
	}
	c.lastTS = ts

	c.entries[key] = Record{Color: color, TS: ts, V: c.version}
	c.trim()

	if !c.loaded {
		c.mu.Unlock()
		c.logger.Debug("store not read yet, write kept in memory", zap.String("url", key))
		return
	}
	data, err := json.Marshal(c.entries)
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	if err != nil {
		c.report("store_write", "", fmt.Errorf("failed to encode colors: %w", err))
		return
	}
	c.write(ctx, gen, "store_write", func(ctx context.Context) error {
		return c.store.Save(ctx, data)
	})
}

// Clear drops every record, in memory and in the Store.
func (c *Cache) Clear(ctx context.Context) {
	c.mu.Lock()
	c.entries = make(map[string]Record)
	c.loaded = true
	c.retryAt = time.Time{}
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	c.write(ctx, gen, "store_clear", c.store.Clear)
}

// Len returns the number of records held, expired ones included.
func (c *Cache) Len(ctx context.Context) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hydrate(ctx)
	return len(c.entries)
}

// Snapshot returns a copy of the records.
func (c *Cache) Snapshot(ctx context.Context) map[string]Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hydrate(ctx)

	out := make(map[string]Record, len(c.entries))
	for k, v := range c.entries {
		out[k] = v
	}
	return out
}

// Stats reports the cache configuration and size.
func (c *Cache) Stats(ctx context.Context) CacheStats {
	return CacheStats{
		Entries:   c.Len(ctx),
		Capacity:  c.capacity,
		TTL:       c.ttl.String(),
		Version:   c.version,
		Namespace: c.namespace,
	}
}

func (c *Cache) expired(rec Record) bool {
	return c.now().UnixMilli()-rec.TS > c.ttl.Milliseconds()
}

// hydrate merges persisted records into the map until one read succeeds.
// Must be called with c.mu held.
//
// A failed read is retried after hydrateRetryInterval. Malformed data counts
// as an empty store. Individual records with a foreign version or an
// unparsable color are dropped, and records written here since the cache
// was created win over older persisted ones.
func (c *Cache) hydrate(ctx context.Context) {
	if c.loaded || c.now().Before(c.retryAt) {
		return
	}

	ctx, cancel := c.storeContext(ctx)
	defer cancel()
	data, err := c.store.Load(ctx)
	if err != nil {
		c.retryAt = c.now().Add(hydrateRetryInterval)
		c.report("store_read", "", err)
		return
	}
	c.loaded = true
	if len(data) == 0 {
		return
	}

	var persisted map[string]Record
	if err := json.Unmarshal(data, &persisted); err != nil {
		c.report("store_decode", "", fmt.Errorf("failed to decode persisted colors: %w", err))
		return
	}

	dropped := 0
	for key, rec := range persisted {
		if rec.V != c.version {
			dropped++
			continue
		}
		if _, err := imaging.ParseHSL(rec.Color); err != nil {
			dropped++
			continue
		}
		if cur, ok := c.entries[key]; ok && cur.TS >= rec.TS {
			continue
		}
		c.entries[key] = rec
		if rec.TS > c.lastTS {
			c.lastTS = rec.TS
		}
	}
	c.trim()
	c.logger.Debug("hydrated color cache",
		zap.Int("entries", len(c.entries)),
		zap.Int("dropped", dropped))
}

// trim keeps the capacity most recently written records. Must be called with
// c.mu held.
func (c *Cache) trim() {
	if len(c.entries) <= c.capacity {
		return
	}

	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return c.entries[keys[i]].TS > c.entries[keys[j]].TS
	})
	for _, k := range keys[c.capacity:] {
		delete(c.entries, k)
	}
}

// write applies one Store mutation for generation gen, unless a newer
// generation already got there. Must be called without c.mu held.
func (c *Cache) write(ctx context.Context, gen uint64, op string, fn func(context.Context) error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if gen <= c.savedGen {
		return
	}
	c.savedGen = gen

	ctx, cancel := c.storeContext(ctx)
	defer cancel()
	if err := fn(ctx); err != nil {
		c.report(op, "", err)
	}
}

// storeContext detaches ctx from the caller's cancellation and bounds it by
// the store timeout.
func (c *Cache) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), c.storeTimeout)
}

func (c *Cache) report(op, url string, err error) {
	c.metrics.storeError(op)
	c.logger.Warn("color cache persistence failed", zap.String("op", op), zap.Error(err))
	if c.onError != nil {
		c.onError(op, url, err)
	}
}
