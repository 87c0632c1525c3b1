// Package cache implements the worker's response cache: named caches of
// HTTP request/response pairs with per-entry TTL, periodic maintenance,
// and hit/miss accounting.
package cache

import (
	"net/http"
	"sort"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/tempoapp/tempo-worker/internal/logger"
	"github.com/tempoapp/tempo-worker/internal/observability/metrics"
)

const (
	// janitorInterval is how often the backing store sweeps expired entries
	// on its own, independent of explicit Maintain calls.
	janitorInterval = 10 * time.Minute
)

// Entry is one stored response. The stored header always includes a Date
// so consumers can judge staleness of a degraded cache hit.
type Entry struct {
	Key        string      `json:"key"`
	StatusCode int         `json:"statusCode"`
	Header     http.Header `json:"header"`
	Body       []byte      `json:"-"`
	StoredAt   time.Time   `json:"storedAt"`
}

// RequestKey builds the cache key for a request. Method and URL together
// identify an entry; there is at most one entry per (cache, key).
func RequestKey(method, url string) string {
	if method == "" {
		method = http.MethodGet
	}
	return method + " " + url
}

// namedCache pairs a backing TTL store with its counters.
type namedCache struct {
	entries    *gocache.Cache
	defaultTTL time.Duration

	mu     sync.Mutex
	hits   uint64
	misses uint64
}

// CacheStats is a point-in-time snapshot of one named cache.
type CacheStats struct {
	Entries int    `json:"entries"`
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
}

// Stats is a snapshot across all named caches.
type Stats struct {
	Caches          map[string]CacheStats `json:"caches"`
	LastMaintenance time.Time             `json:"lastMaintenance"`
}

// Store holds all named caches for the worker.
type Store struct {
	mu     sync.RWMutex
	caches map[string]*namedCache

	lastMaintenance time.Time

	log     logger.Logger
	metrics *metrics.CacheMetrics
}

// NewStore creates an empty store. metrics may be nil.
func NewStore(log logger.Logger, m *metrics.CacheMetrics) *Store {
	return &Store{
		caches:  make(map[string]*namedCache),
		log:     log,
		metrics: m,
	}
}

// Open returns the named cache, creating it with the given default TTL if
// it does not exist. A zero TTL means entries never expire on their own.
func (s *Store) Open(name string, defaultTTL time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.caches[name]; ok {
		return
	}
	ttl := defaultTTL
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	c := &namedCache{
		entries:    gocache.New(ttl, janitorInterval),
		defaultTTL: defaultTTL,
	}
	if s.metrics != nil {
		c.entries.OnEvicted(func(string, any) {
			s.metrics.RecordEviction(name)
		})
	}
	s.caches[name] = c
}

// Put stores an entry in the named cache, overwriting any existing entry
// under the same key. A ttl of zero uses the cache's default.
func (s *Store) Put(cacheName, key string, entry *Entry, ttl time.Duration) {
	c := s.cache(cacheName)
	if c == nil {
		s.Open(cacheName, 0)
		c = s.cache(cacheName)
	}
	entry.Key = key
	if entry.StoredAt.IsZero() {
		entry.StoredAt = time.Now()
	}
	if entry.Header == nil {
		entry.Header = http.Header{}
	}
	if entry.Header.Get("Date") == "" {
		entry.Header.Set("Date", entry.StoredAt.UTC().Format(http.TimeFormat))
	}
	if ttl <= 0 {
		ttl = gocache.DefaultExpiration
	}
	c.entries.Set(key, entry, ttl)
	if s.metrics != nil {
		s.metrics.RecordStore(cacheName)
	}
}

// Match looks up an entry. Expired entries are treated as absent.
func (s *Store) Match(cacheName, key string) (*Entry, bool) {
	c := s.cache(cacheName)
	if c == nil {
		return nil, false
	}
	v, ok := c.entries.Get(key)
	c.mu.Lock()
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	c.mu.Unlock()
	if s.metrics != nil {
		if ok {
			s.metrics.RecordHit(cacheName)
		} else {
			s.metrics.RecordMiss(cacheName)
		}
	}
	if !ok {
		return nil, false
	}
	return v.(*Entry), true
}

// MatchAny looks up a key across every named cache. Used for degraded
// fallbacks where the caller does not know which cache holds the entry.
func (s *Store) MatchAny(key string) (*Entry, bool) {
	for _, name := range s.Names() {
		if entry, ok := s.Match(name, key); ok {
			return entry, true
		}
	}
	return nil, false
}

// Delete removes one entry from the named cache.
func (s *Store) Delete(cacheName, key string) {
	if c := s.cache(cacheName); c != nil {
		c.entries.Delete(key)
	}
}

// DeleteCache removes an entire named cache. Returns true if it existed.
func (s *Store) DeleteCache(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.caches[name]; !ok {
		return false
	}
	delete(s.caches, name)
	return true
}

// Names returns all cache names, sorted for deterministic iteration.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.caches))
	for name := range s.caches {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Keys returns the live entry keys of one named cache.
func (s *Store) Keys(cacheName string) []string {
	c := s.cache(cacheName)
	if c == nil {
		return nil
	}
	items := c.entries.Items()
	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Maintain sweeps expired entries from every cache and records the sweep
// time. Triggered by the CACHE_MAINTENANCE bus message and the periodic
// maintenance ticker.
func (s *Store) Maintain() {
	s.mu.Lock()
	caches := make([]*namedCache, 0, len(s.caches))
	for _, c := range s.caches {
		caches = append(caches, c)
	}
	s.lastMaintenance = time.Now()
	s.mu.Unlock()

	for _, c := range caches {
		c.entries.DeleteExpired()
	}
	if s.log != nil {
		s.log.Debug("cache maintenance sweep completed",
			logger.Int("caches", len(caches)))
	}
}

// Stats returns a snapshot of hit/miss counters and entry counts.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := Stats{
		Caches:          make(map[string]CacheStats, len(s.caches)),
		LastMaintenance: s.lastMaintenance,
	}
	for name, c := range s.caches {
		c.mu.Lock()
		out.Caches[name] = CacheStats{
			Entries: c.entries.ItemCount(),
			Hits:    c.hits,
			Misses:  c.misses,
		}
		c.mu.Unlock()
	}
	return out
}

func (s *Store) cache(name string) *namedCache {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.caches[name]
}
