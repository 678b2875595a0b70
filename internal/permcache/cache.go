// Package permcache holds boolean authorization decisions keyed by user and
// permission code. It sits on the hot path of every authorized request, so it
// never returns errors: any internal failure is logged and degrades to a miss,
// and callers recompute from the source of truth.
package permcache

import (
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Defaults applied when a caller passes a non-positive size or TTL.
const (
	DefaultMaxSize = 1000
	DefaultTTL     = 5 * time.Minute
)

type entry struct {
	value     bool
	expiresAt time.Time
}

// Stats is a snapshot of cache counters for observability.
type Stats struct {
	Size    int     `json:"size"`
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	Sets    int64   `json:"sets"`
	Deletes int64   `json:"deletes"`
	HitRate float64 `json:"hit_rate"`
}

// Cache is a bounded decision cache with per-entry expiry. Eviction under
// size pressure is handled by the underlying LRU; expiry is checked on read.
// Construct one per process and inject it; there is no package-level instance.
type Cache struct {
	store  *lru.Cache[string, entry]
	locks  *keyLocks
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time

	hits    atomic.Int64
	misses  atomic.Int64
	sets    atomic.Int64
	deletes atomic.Int64
}

// New constructs a Cache. Non-positive maxSize or ttl fall back to defaults.
func New(maxSize int, ttl time.Duration, logger *slog.Logger) *Cache {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	store, err := lru.New[string, entry](maxSize)
	if err != nil {
		// Only reachable with a non-positive size, which is clamped above.
		logger.Error("permcache init", slog.Any("error", err))
		store, _ = lru.New[string, entry](DefaultMaxSize)
	}
	return &Cache{
		store:  store,
		locks:  newKeyLocks(),
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// Get returns the cached decision for (userID, code). The second return is
// false on a miss: absent key, expired entry, or a contended key lock.
func (c *Cache) Get(userID int64, code string) (bool, bool) {
	key := cacheKey(userID, code)
	release, ok := c.locks.tryAcquire("get:" + key)
	if !ok {
		c.misses.Add(1)
		return false, false
	}
	defer release()

	ent, ok := c.store.Get(key)
	if !ok {
		c.misses.Add(1)
		return false, false
	}
	if c.now().After(ent.expiresAt) {
		c.store.Remove(key)
		c.deletes.Add(1)
		c.misses.Add(1)
		return false, false
	}
	c.hits.Add(1)
	return ent.value, true
}

// Set stores a decision with the default TTL.
func (c *Cache) Set(userID int64, code string, value bool) {
	c.SetTTL(userID, code, value, c.ttl)
}

// SetTTL stores a decision with an explicit TTL. A contended key lock makes
// the write a no-op; the next read recomputes.
func (c *Cache) SetTTL(userID int64, code string, value bool, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	key := cacheKey(userID, code)
	release, ok := c.locks.tryAcquire("set:" + key)
	if !ok {
		return
	}
	defer release()

	c.store.Add(key, entry{value: value, expiresAt: c.now().Add(ttl)})
	c.sets.Add(1)
}

// InvalidateUser removes every cached decision belonging to userID. Called
// synchronously by every override mutation before it reports success.
func (c *Cache) InvalidateUser(userID int64) {
	prefix := strconv.FormatInt(userID, 10) + "|"
	for _, key := range c.store.Keys() {
		if strings.HasPrefix(key, prefix) {
			if c.store.Remove(key) {
				c.deletes.Add(1)
			}
		}
	}
}

// ClearAll drops every entry.
func (c *Cache) ClearAll() {
	n := c.store.Len()
	c.store.Purge()
	c.deletes.Add(int64(n))
}

// Len returns the current number of entries, including not-yet-expired ones.
func (c *Cache) Len() int {
	return c.store.Len()
}

// Stats returns a point-in-time counter snapshot.
func (c *Cache) Stats() Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()
	s := Stats{
		Size:    c.store.Len(),
		Hits:    hits,
		Misses:  misses,
		Sets:    c.sets.Load(),
		Deletes: c.deletes.Load(),
	}
	if total := hits + misses; total > 0 {
		s.HitRate = float64(hits) / float64(total)
	}
	return s
}

func cacheKey(userID int64, code string) string {
	return strconv.FormatInt(userID, 10) + "|" + code
}
