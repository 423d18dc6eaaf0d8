// ABOUTME: TTL-bounded idempotency guard for mutating skills.
// ABOUTME: A repeated publish key within the window is rejected as a duplicate.

package dedupe

import (
	"sync"
	"time"
)

// DefaultWindow is the guard TTL when configuration does not set one.
const DefaultWindow = 10 * time.Minute

// Guard remembers recently used idempotency keys so that rerunning a
// publish skill cannot create the same article twice. Entries expire after
// the TTL; the guard is also size-bounded, evicting the oldest key first.
type Guard struct {
	mu      sync.Mutex
	seen    map[string]time.Time
	order   []string // keys oldest-first; may hold stale entries for evicted keys
	ttl     time.Duration
	maxKeys int

	done      chan struct{}
	closeOnce sync.Once
}

// NewGuard creates a guard with the given TTL and capacity. A background
// sweep removes expired keys once a minute until Close is called.
func NewGuard(ttl time.Duration, maxKeys int) *Guard {
	g := &Guard{
		seen:    make(map[string]time.Time),
		ttl:     ttl,
		maxKeys: maxKeys,
		done:    make(chan struct{}),
	}
	go g.sweepLoop()
	return g
}

// Seen reports whether the key was marked within the TTL window.
func (g *Guard) Seen(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	at, ok := g.seen[key]
	return ok && time.Since(at) < g.ttl
}

// Mark records a key. Called only after the guarded operation succeeded,
// or when its outcome is ambiguous — an ambiguous publish must not be
// retried blindly, so it is marked too.
func (g *Guard) Mark(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.seen[key]; !exists {
		if len(g.seen) >= g.maxKeys {
			g.evictOldestLocked()
		}
		g.order = append(g.order, key)
	}
	g.seen[key] = time.Now()
}

// Len returns the number of live keys.
func (g *Guard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.seen)
}

// Close stops the background sweep. Safe to call more than once.
func (g *Guard) Close() {
	g.closeOnce.Do(func() { close(g.done) })
}

// evictOldestLocked drops the oldest still-live key. Stale order entries
// (for keys already swept) are skipped and compacted along the way.
func (g *Guard) evictOldestLocked() {
	for len(g.order) > 0 {
		key := g.order[0]
		g.order = g.order[1:]
		if _, ok := g.seen[key]; ok {
			delete(g.seen, key)
			return
		}
	}
}

func (g *Guard) sweepLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-g.done:
			return
		case <-ticker.C:
			g.sweep()
		}
	}
}

func (g *Guard) sweep() {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	for key, at := range g.seen {
		if now.Sub(at) >= g.ttl {
			delete(g.seen, key)
		}
	}

	// Compact the order slice so it cannot grow unbounded from churn.
	live := g.order[:0]
	for _, key := range g.order {
		if _, ok := g.seen[key]; ok {
			live = append(live, key)
		}
	}
	g.order = live
}
