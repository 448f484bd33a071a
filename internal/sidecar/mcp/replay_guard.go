package mcp

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

const (
	defaultReplayTTL = 10 * time.Minute
	maxReplayEntries = 65536
)

type replayKey struct {
	client    string
	signature string
}

type replayEntry struct {
	key     replayKey
	expires time.Time
}

// replayGuard remembers signed requests per client until their ttl passes. A signed
// place call therefore lands in the world at most once per signature.
type replayGuard struct {
	mu     sync.Mutex
	ttl    time.Duration
	logger *log.Logger
	seen   map[replayKey]time.Time
	// queue holds entries in insertion order; with a fixed ttl that is expiry order.
	queue []replayEntry
}

func newReplayGuard(ttl time.Duration, logger *log.Logger) *replayGuard {
	if ttl <= 0 {
		ttl = defaultReplayTTL
	}
	if logger == nil {
		logger = log.Default()
	}
	return &replayGuard{ttl: ttl, logger: logger, seen: map[replayKey]time.Time{}}
}

// allow records the signature and reports whether it was unseen. what labels the
// request in the rejection log.
func (g *replayGuard) allow(client, signature, what string, now time.Time) bool {
	if g == nil || signature == "" {
		return true
	}
	key := replayKey{client: client, signature: signature}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.expireLocked(now)
	if exp, ok := g.seen[key]; ok && exp.After(now) {
		g.logger.Warn("replayed request rejected", "client", client, "request", what)
		return false
	}
	exp := now.Add(g.ttl)
	g.seen[key] = exp
	g.queue = append(g.queue, replayEntry{key: key, expires: exp})
	for len(g.queue) > maxReplayEntries {
		g.dropOldestLocked()
	}
	return true
}

func (g *replayGuard) expireLocked(now time.Time) {
	for len(g.queue) > 0 && !g.queue[0].expires.After(now) {
		g.dropOldestLocked()
	}
}

func (g *replayGuard) dropOldestLocked() {
	e := g.queue[0]
	g.queue = g.queue[1:]
	// A later insert for the same key owns the map slot.
	if g.seen[e.key].Equal(e.expires) {
		delete(g.seen, e.key)
	}
}

func (g *replayGuard) size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.seen)
}
