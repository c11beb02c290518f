package graph

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Task result caching (§9 supplemented feature, grounded on.
// original_source/pregel/types.rs CacheKey/CachePolicy). A node opts in via.
// NodePolicy.Cache; the executor then skips re-running it when an identical.
// (node, input) pair was already computed earlier in the same process.

// PathSegment is one element of a Task's execution-hierarchy path, mirroring.
// the original implementation's PathSegment enum (String/Int/Tuple).
type PathSegment struct {
	Str   string
	Int   int
	Tuple []PathSegment
}

// StringSegment builds a PathSegment identifying a node by name.
func StringSegment(s string) PathSegment { return PathSegment{Str: s} }

// IntSegment builds a PathSegment identifying a fan-out index.
func IntSegment(i int) PathSegment { return PathSegment{Int: i, Str: ""} }

// String renders a PathSegment the way the original implementation's Display.
// impl does: plain for String/Int, parenthesized comma-join for Tuple.
func (s PathSegment) String() string {
	if s.Tuple != nil {
		out := "("
		for i, seg := range s.Tuple {
			if i > 0 {
				out += ", "
			}
			out += seg.String()
		}
		return out + ")"
	}
	if s.Str != "" {
		return s.Str
	}
	return fmt.Sprintf("%d", s.Int)
}

// CachePolicy configures whether and how long a node's result may be reused.
type CachePolicy struct {
	// Enabled turns on caching for the node this policy is attached to.
	Enabled bool

	// TTL bounds how long a cached entry remains valid. Zero means it never.
	// expires for the lifetime of the process.
	TTL time.Duration
}

// CacheKey identifies a cached task result, namespaced by node name and.
// keyed by a deterministic hash of the task's input.
type CacheKey struct {
	NS  []string
	Key string
}

func (k CacheKey) namespaced() string {
	out := ""
	for _, n := range k.NS {
		out += n + "/"
	}
	return out + k.Key
}

// computeCacheKey derives a CacheKey from a node name and its computed input.
// Inputs that fail to marshal (e.g. contain a func or channel) make the node.
// ineligible for caching rather than producing a collision-prone key.
func computeCacheKey(nodeName string, input any) (CacheKey, bool) {
	b, err := json.Marshal(input)
	if err != nil {
		return CacheKey{}, false
	}
	sum := sha256.Sum256(b)
	return CacheKey{NS: []string{nodeName}, Key: fmt.Sprintf("%x", sum)}, true
}

type cacheEntry struct {
	value   any
	expires time.Time
}

// TaskCache stores node results keyed by CacheKey. Implementations must be.
// safe for concurrent use; the executor may consult it from multiple.
// worker-pool goroutines within one superstep.
type TaskCache interface {
	Get(key CacheKey) (any, bool)
	Put(key CacheKey, value any, ttl time.Duration)
}

// MemTaskCache is an in-memory TaskCache; entries past their TTL are treated.
// as absent and lazily evicted on the next Get/Put that observes them.
type MemTaskCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
}

// NewMemTaskCache constructs an empty in-memory TaskCache.
func NewMemTaskCache() *MemTaskCache {
	return &MemTaskCache{entries: make(map[string]cacheEntry)}
}

// Get implements TaskCache.
func (c *MemTaskCache) Get(key CacheKey) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key.namespaced()]
	if !ok {
		return nil, false
	}
	if !e.expires.IsZero() && time.Now().After(e.expires) {
		delete(c.entries, key.namespaced())
		return nil, false
	}
	return e.value, true
}

// Put implements TaskCache.
func (c *MemTaskCache) Put(key CacheKey, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var expires time.Time
	if ttl > 0 {
		expires = time.Now().Add(ttl)
	}
	c.entries[key.namespaced()] = cacheEntry{value: value, expires: expires}
}
