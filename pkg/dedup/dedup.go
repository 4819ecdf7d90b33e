package dedup

import (
	"sync"
	"time"
)

// Deduper remembers message identities for a TTL so that QoS 1 redeliveries
// and repeated no-op updates can be dropped at the consuming boundary.
type Deduper struct {
	mu      sync.Mutex
	ttl     time.Duration
	max     int
	entries map[string]time.Time // id -> expiry
}

// New creates a Deduper. Non-positive arguments fall back to 10 minutes and
// 10000 entries.
func New(ttl time.Duration, max int) *Deduper {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if max <= 0 {
		max = 10000
	}
	return &Deduper{ttl: ttl, max: max, entries: make(map[string]time.Time, max)}
}

// ShouldProcess reports whether id has not been seen within the TTL, and
// records it. An empty id is always processed.
func (d *Deduper) ShouldProcess(id string) bool {
	if id == "" {
		return true
	}
	now := time.Now()
	d.mu.Lock()
	defer d.mu.Unlock()
	if exp, ok := d.entries[id]; ok && now.Before(exp) {
		return false
	}
	d.entries[id] = now.Add(d.ttl)
	if len(d.entries) > d.max {
		d.evictExpired(now)
	}
	return true
}

func (d *Deduper) evictExpired(now time.Time) {
	for k, exp := range d.entries {
		if now.After(exp) {
			delete(d.entries, k)
		}
		if len(d.entries) <= d.max {
			return
		}
	}
}
