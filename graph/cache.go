package graph

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// sweepThreshold bounds how many entries accumulate before expired ones are dropped.
const sweepThreshold = 1024

type cacheEntry[S any] struct {
	output    NodeOutput[S]
	expiresAt time.Time
}

type cacheResult[S any] struct {
	output NodeOutput[S]
	hit    bool
}

// nodeCache memoizes node outputs for one compiled graph.
type nodeCache[S any] struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry[S]
	group   singleflight.Group
	now     func() time.Time
}

func newNodeCache[S any](now func() time.Time) *nodeCache[S] {
	if now == nil {
		now = time.Now
	}
	return &nodeCache[S]{
		entries: make(map[string]cacheEntry[S]),
		now:     now,
	}
}

func cacheKey(node string, input []byte) string {
	sum := sha256.Sum256(input)
	return node + ":" + hex.EncodeToString(sum[:])
}

func (c *nodeCache[S]) lookup(key string) (NodeOutput[S], bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok || !c.now().Before(entry.expiresAt) {
		return NodeOutput[S]{}, false
	}
	return entry.output, true
}

// store inserts out unless a live entry already exists, and returns whichever
// output ends up cached.
func (c *nodeCache[S]) store(key string, out NodeOutput[S], ttl time.Duration) NodeOutput[S] {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if entry, ok := c.entries[key]; ok && now.Before(entry.expiresAt) {
		return entry.output
	}
	if len(c.entries) >= sweepThreshold {
		for k, entry := range c.entries {
			if !now.Before(entry.expiresAt) {
				delete(c.entries, k)
			}
		}
	}
	c.entries[key] = cacheEntry[S]{output: out, expiresAt: now.Add(ttl)}
	return out
}

// do returns the cached output for key or computes it with fn. Concurrent
// misses for the same key share one call to fn. Errors and interrupts are not
// cached.
func (c *nodeCache[S]) do(key string, ttl time.Duration, fn func() (NodeOutput[S], error)) (NodeOutput[S], bool, error) {
	if out, ok := c.lookup(key); ok {
		return out, true, nil
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		if out, ok := c.lookup(key); ok {
			return cacheResult[S]{output: out, hit: true}, nil
		}
		out, err := fn()
		if err != nil {
			return nil, err
		}
		if !cacheable(out) {
			return cacheResult[S]{output: out}, nil
		}
		return cacheResult[S]{output: c.store(key, out, ttl)}, nil
	})
	if err != nil {
		return NodeOutput[S]{}, false, err
	}
	res := v.(cacheResult[S])
	return res.output, res.hit, nil
}

// cacheable rejects outputs that pause the run; replaying one would keep the
// thread paused after the caller resumes it.
func cacheable[S any](out NodeOutput[S]) bool {
	cmd, ok := out.Command()
	return !ok || cmd.Kind != CommandInterrupt
}

func (c *nodeCache[S]) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
