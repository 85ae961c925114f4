package cache

import (
	"context"
	"regexp"
	"sync"
	"time"

	"market-pipeline/src/logger"
	"market-pipeline/src/models"
)

// -----------------------------------------------------------------------------
// Intelligent Cache
//
// TTL entries with usage-scored eviction. An entry is logically expired once
// now - timestamp > ttl regardless of when the background sweep removes it.
// Eviction score is accessCount / secondsSinceLastTouch: the lowest-scoring
// entry goes first, which keeps entries that are touched both often and
// recently over ones with a stale burst of historical hits.
// -----------------------------------------------------------------------------

type entry struct {
	value     interface{}
	timestamp time.Time
	ttl       time.Duration
}

// accessMeta is tracked alongside entries, not inside them: eviction scoring
// must not disturb the entry's expiry clock.
type accessMeta struct {
	count      int64
	lastAccess time.Time
}

type warmer struct {
	key      string
	producer func(ctx context.Context) (interface{}, error)
	interval time.Duration
	ttl      time.Duration
}

type IntelligentCache struct {
	maxEntries      int
	defaultTTL      time.Duration
	cleanupInterval time.Duration
	Logger          *logger.Logger

	// Optional lookup notifications, fired outside the lock. Must not call
	// back into the cache.
	OnHit  func()
	OnMiss func()

	entries map[string]*entry
	access  map[string]*accessMeta

	hits      int64
	misses    int64
	evictions int64
	expired   int64

	warmers []warmer

	mu     sync.Mutex
	now    func() time.Time
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// -----------------------------------------------------------------------------

func NewIntelligentCache(maxEntries int, defaultTTL, cleanupInterval time.Duration, log *logger.Logger) *IntelligentCache {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}
	return &IntelligentCache{
		maxEntries:      maxEntries,
		defaultTTL:      defaultTTL,
		cleanupInterval: cleanupInterval,
		Logger:          log,
		entries:         make(map[string]*entry),
		access:          make(map[string]*accessMeta),
		now:             time.Now,
	}
}

// -----------------------------------------------------------------------------

// Set stores value under the default TTL.
func (c *IntelligentCache) Set(key string, value interface{}) {
	c.SetTTL(key, value, c.defaultTTL)
}

// SetTTL stores value with an explicit TTL, evicting one entry first when the
// cache is at capacity and the key is new.
func (c *IntelligentCache) SetTTL(key string, value interface{}, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictOne()
	}

	now := c.now()
	c.entries[key] = &entry{value: value, timestamp: now, ttl: ttl}
	c.access[key] = &accessMeta{count: 0, lastAccess: now}
}

// -----------------------------------------------------------------------------

// Get returns the value if present and not logically expired. A hit refreshes
// the access metadata.
func (c *IntelligentCache) Get(key string) (interface{}, bool) {
	v, ok := c.lookup(key)
	if ok {
		if c.OnHit != nil {
			c.OnHit()
		}
	} else if c.OnMiss != nil {
		c.OnMiss()
	}
	return v, ok
}

func (c *IntelligentCache) lookup(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}

	now := c.now()
	if now.Sub(e.timestamp) > e.ttl {
		// Logically expired: treat as absent even before the sweep runs
		delete(c.entries, key)
		delete(c.access, key)
		c.misses++
		c.expired++
		return nil, false
	}

	meta := c.access[key]
	meta.count++
	meta.lastAccess = now
	c.hits++
	return e.value, true
}

// -----------------------------------------------------------------------------

// Delete removes a key. Returns whether it was present.
func (c *IntelligentCache) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.entries[key]
	delete(c.entries, key)
	delete(c.access, key)
	return ok
}

// -----------------------------------------------------------------------------

// GetOrSet returns the cached value or produces, stores and returns a fresh one.
func (c *IntelligentCache) GetOrSet(key string, producer func() (interface{}, error), ttl time.Duration) (interface{}, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := producer()
	if err != nil {
		return nil, err
	}
	c.SetTTL(key, v, ttl)
	return v, nil
}

// Refresh re-produces the value unconditionally and stores it.
func (c *IntelligentCache) Refresh(key string, producer func() (interface{}, error), ttl time.Duration) (interface{}, error) {
	v, err := producer()
	if err != nil {
		return nil, err
	}
	c.SetTTL(key, v, ttl)
	return v, nil
}

// -----------------------------------------------------------------------------

// InvalidatePattern removes every key matching the regex and returns the count.
func (c *IntelligentCache) InvalidatePattern(pattern string) (int, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key := range c.entries {
		if re.MatchString(key) {
			delete(c.entries, key)
			delete(c.access, key)
			removed++
		}
	}
	return removed, nil
}

// -----------------------------------------------------------------------------

// Cleanup purges entries past their TTL regardless of access. Returns the
// number removed.
func (c *IntelligentCache) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, e := range c.entries {
		if now.Sub(e.timestamp) > e.ttl {
			delete(c.entries, key)
			delete(c.access, key)
			c.expired++
			removed++
		}
	}
	return removed
}

// -----------------------------------------------------------------------------

// evictOne removes the entry with the lowest accesses-per-second score.
// Entries touched less than a second ago are exempt this cycle (their score
// would be unbounded); if every entry is exempt the oldest one goes.
// Caller holds the lock.
func (c *IntelligentCache) evictOne() {
	var victim string
	best := -1.0

	now := c.now()
	for key, meta := range c.access {
		age := now.Sub(meta.lastAccess).Seconds()
		if age < 1 {
			continue
		}
		score := float64(meta.count) / age
		if best < 0 || score < best {
			best = score
			victim = key
		}
	}

	if victim == "" {
		var oldest time.Time
		for key, e := range c.entries {
			if victim == "" || e.timestamp.Before(oldest) {
				victim = key
				oldest = e.timestamp
			}
		}
	}
	if victim == "" {
		return
	}

	delete(c.entries, victim)
	delete(c.access, victim)
	c.evictions++
	c.Logger.Debug("Evicted cache key '%s'", victim)
}

// -----------------------------------------------------------------------------
// Warming
// -----------------------------------------------------------------------------

// RegisterWarming schedules producer to refresh key on its own interval once
// the cache is started. Warming failures are logged, never propagated.
func (c *IntelligentCache) RegisterWarming(key string, producer func(ctx context.Context) (interface{}, error), interval, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.warmers = append(c.warmers, warmer{key: key, producer: producer, interval: interval, ttl: ttl})
}

// -----------------------------------------------------------------------------

// Start launches the background sweep and every registered warming strategy.
func (c *IntelligentCache) Start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	c.cancel = cancel

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := c.Cleanup(); n > 0 {
					c.Logger.Debug("Cache sweep removed %d expired entries", n)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	c.mu.Lock()
	warmers := make([]warmer, len(c.warmers))
	copy(warmers, c.warmers)
	c.mu.Unlock()

	for _, w := range warmers {
		c.wg.Add(1)
		go func(w warmer) {
			defer c.wg.Done()
			ticker := time.NewTicker(w.interval)
			defer ticker.Stop()

			c.warm(ctx, w)
			for {
				select {
				case <-ticker.C:
					c.warm(ctx, w)
				case <-ctx.Done():
					return
				}
			}
		}(w)
	}
}

// Stop terminates the sweep and warmers and waits for them.
func (c *IntelligentCache) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}

// -----------------------------------------------------------------------------

func (c *IntelligentCache) warm(ctx context.Context, w warmer) {
	v, err := w.producer(ctx)
	if err != nil {
		c.Logger.Warning("Cache warming for '%s' failed: %v", w.key, err)
		return
	}
	// Warming writes unconditionally
	c.SetTTL(w.key, v, w.ttl)
}

// -----------------------------------------------------------------------------

// Keys returns a snapshot of present keys (expired ones included until swept).
func (c *IntelligentCache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	return keys
}

// Stats returns a point-in-time counter snapshot.
func (c *IntelligentCache) Stats() models.MCacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return models.MCacheStats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Expired:   c.expired,
		Size:      len(c.entries),
		MaxSize:   c.maxEntries,
	}
}
