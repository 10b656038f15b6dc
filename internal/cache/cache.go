// Package cache is a bounded in-memory forecast cache. Entries expire a
// fixed TTL after insertion and the least recently accessed entry is evicted
// once the cache is full.
package cache

import (
	"fmt"
	"math"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/lox/tripweather/internal/metrics"
	"github.com/lox/tripweather/internal/models"
)

const (
	DefaultMaxEntries = 500
	DefaultTTL        = time.Hour
)

// Entry is one cached segment forecast. The timeseries is shared between
// readers and must be treated as immutable.
type Entry struct {
	Timeseries *models.Timeseries
	Summary    models.SegmentSummary
	InsertedAt time.Time
}

type Stats struct {
	TotalEntries int `json:"total_entries"`
	MaxEntries   int `json:"max_entries"`
	TTLSeconds   int `json:"ttl_seconds"`
}

type Cache struct {
	lru        *expirable.LRU[string, Entry]
	maxEntries int
	ttl        time.Duration
	now        func() time.Time
}

// New builds a cache. The underlying expirable LRU starts a cleanup
// goroutine that cannot be stopped, so create one cache per process and
// reuse it; Clear empties it without leaking another goroutine.
func New(maxEntries int, ttl time.Duration) *Cache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		lru:        expirable.NewLRU[string, Entry](maxEntries, nil, ttl),
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        time.Now,
	}
}

// Key identifies a segment forecast. Coordinates are rounded to four
// decimal places (about 11 m) so float noise does not cause misses.
func Key(segmentID string, start, end time.Time, lat, lon float64) string {
	return fmt.Sprintf("%s|%s|%s|%s|%s",
		segmentID,
		start.UTC().Format(time.RFC3339),
		end.UTC().Format(time.RFC3339),
		roundCoord(lat),
		roundCoord(lon),
	)
}

func roundCoord(v float64) string {
	r := math.Round(v*1e4) / 1e4
	if r == 0 {
		r = 0 // collapse -0
	}
	return fmt.Sprintf("%.4f", r)
}

// Get returns the entry for key unless it is absent or expired. An entry is
// expired once ttl or more has elapsed since InsertedAt. A hit marks the
// entry as most recently used.
func (c *Cache) Get(key string) (Entry, bool) {
	e, ok := c.lru.Get(key)
	if ok && c.now().Sub(e.InsertedAt) >= c.ttl {
		c.lru.Remove(key)
		ok = false
	}
	if !ok {
		metrics.CacheLookupsTotal.WithLabelValues("miss").Inc()
		return Entry{}, false
	}
	metrics.CacheLookupsTotal.WithLabelValues("hit").Inc()
	return e, true
}

// Put inserts or replaces the entry for key and restarts its TTL.
func (c *Cache) Put(key string, e Entry) {
	if e.InsertedAt.IsZero() {
		e.InsertedAt = c.now()
	}
	if evicted := c.lru.Add(key, e); evicted {
		metrics.CacheEvictionsTotal.Inc()
	}
}

func (c *Cache) Clear() {
	c.lru.Purge()
}

func (c *Cache) Stats() Stats {
	return Stats{
		TotalEntries: c.lru.Len(),
		MaxEntries:   c.maxEntries,
		TTLSeconds:   int(c.ttl / time.Second),
	}
}
