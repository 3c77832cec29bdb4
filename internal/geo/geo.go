// Package geo resolves a client IP to the region label recorded on events.
package geo

import (
	"sync"
	"time"

	"github.com/radiusdt/adpulse/internal/metrics"
)

// Provider maps an IP to a region label.
type Provider interface {
	Region(ip string) (string, error)
	Close() error
}

// Resolver fronts a Provider with a bounded TTL cache. A nil Resolver
// resolves nothing.
type Resolver struct {
	provider Provider
	cache    *regionCache
	metrics  *metrics.Metrics
	now      func() time.Time
}

type regionCache struct {
	mu      sync.RWMutex
	data    map[string]cacheEntry
	maxSize int
	ttl     time.Duration
}

type cacheEntry struct {
	region    string
	expiresAt time.Time
}

// NewResolver creates a resolver caching up to cacheSize lookups for ttl.
func NewResolver(provider Provider, cacheSize int, ttl time.Duration, m *metrics.Metrics) *Resolver {
	if cacheSize <= 0 {
		cacheSize = 1000
	}
	return &Resolver{
		provider: provider,
		cache: &regionCache{
			data:    make(map[string]cacheEntry),
			maxSize: cacheSize,
			ttl:     ttl,
		},
		metrics: m,
		now:     time.Now,
	}
}

// Region returns the region for ip, or "" when it cannot be resolved.
func (r *Resolver) Region(ip string) string {
	if r == nil || r.provider == nil || ip == "" {
		return ""
	}

	start := time.Now()
	if region, ok := r.cache.get(ip, r.now()); ok {
		if r.metrics != nil {
			r.metrics.RecordGeoLookup(true, time.Since(start))
		}
		return region
	}

	region, err := r.provider.Region(ip)
	if err != nil {
		return ""
	}

	r.cache.set(ip, region, r.now())
	if r.metrics != nil {
		r.metrics.RecordGeoLookup(false, time.Since(start))
	}
	return region
}

// Close releases the provider.
func (r *Resolver) Close() error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close()
}

func (c *regionCache) get(ip string, now time.Time) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.data[ip]
	if !ok || now.After(entry.expiresAt) {
		return "", false
	}
	return entry.region, true
}

func (c *regionCache) set(ip, region string, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Evict an arbitrary entry at capacity
	if _, exists := c.data[ip]; !exists && len(c.data) >= c.maxSize {
		for k := range c.data {
			delete(c.data, k)
			break
		}
	}

	c.data[ip] = cacheEntry{region: region, expiresAt: now.Add(c.ttl)}
}
