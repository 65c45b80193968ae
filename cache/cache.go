// Package cache is a small in-memory cache of completed job outcomes,
// keyed by URL plus requested field set. Listings change slowly; serving a
// recent record avoids burning a browser session and a domain rate-limit
// token on a repeat request.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/use-agent/harvest/models"
)

// entry holds a cached outcome with its creation timestamp.
type entry struct {
	outcome   *models.JobOutcome
	createdAt time.Time
}

// Cache is safe for concurrent use.
type Cache struct {
	mu         sync.RWMutex
	store      map[string]*entry
	maxEntries int
}

// New creates a new Cache with the given maximum number of entries.
// A background goroutine runs every 5 minutes to evict entries older
// than 1 hour.
func New(maxEntries int) *Cache {
	c := &Cache{
		store:      make(map[string]*entry),
		maxEntries: maxEntries,
	}

	go c.cleanupLoop()
	return c
}

// Key derives a cache key from the URL and the requested field set.
// Field order does not matter: ["price","sqft"] and ["sqft","price"] hit
// the same entry.
func Key(url string, fields []string) string {
	sorted := append([]string(nil), fields...)
	sort.Strings(sorted)

	h := sha256.New()
	h.Write([]byte(url))
	h.Write([]byte("|"))
	h.Write([]byte(strings.Join(sorted, ",")))
	return hex.EncodeToString(h.Sum(nil))
}

// Get retrieves a cached outcome if it exists and is younger than maxAge.
// If maxAge <= 0, no cache lookup is performed.
func (c *Cache) Get(key string, maxAge time.Duration) (*models.JobOutcome, bool) {
	if maxAge <= 0 {
		return nil, false
	}

	c.mu.RLock()
	e, ok := c.store[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if time.Since(e.createdAt) > maxAge {
		return nil, false
	}

	return e.outcome, true
}

// Set stores an outcome. Failed outcomes are not cached so a transient
// error does not shadow a later fix. If the cache is at capacity, a random
// entry is evicted to make room.
func (c *Cache) Set(key string, outcome *models.JobOutcome) {
	if outcome == nil || outcome.Status == models.StatusFailed {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Evict one random entry if at capacity (map iteration is random in Go).
	if len(c.store) >= c.maxEntries {
		for k := range c.store {
			delete(c.store, k)
			break
		}
	}

	c.store[key] = &entry{
		outcome:   outcome,
		createdAt: time.Now(),
	}
}

// cleanupLoop evicts entries older than 1 hour every 5 minutes.
func (c *Cache) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-1 * time.Hour)
		c.mu.Lock()
		for k, e := range c.store {
			if e.createdAt.Before(cutoff) {
				delete(c.store, k)
			}
		}
		c.mu.Unlock()
	}
}
