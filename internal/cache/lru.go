package cache

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"

	"github.com/JNZader/kirolint/internal/matcher"
)

// LRUCache implements an in-memory LRU cache.
type LRUCache struct {
	maxEntries int
	ttl        time.Duration

	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List

	hits   int64
	misses int64
}

type lruEntry struct {
	key       string
	findings  []matcher.Finding
	expiresAt time.Time
}

// NewLRUCache creates a new LRU cache.
func NewLRUCache(maxEntries int, ttl time.Duration) *LRUCache {
	return &LRUCache{
		maxEntries: maxEntries,
		ttl:        ttl,
		entries:    make(map[string]*list.Element),
		order:      list.New(),
	}
}

func (c *LRUCache) Get(key string) ([]matcher.Finding, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, exists := c.entries[key]
	if !exists {
		atomic.AddInt64(&c.misses, 1)
		return nil, false, nil
	}

	entry := elem.Value.(*lruEntry)
	if time.Now().After(entry.expiresAt) {
		c.order.Remove(elem)
		delete(c.entries, key)
		atomic.AddInt64(&c.misses, 1)
		return nil, false, nil
	}

	c.order.MoveToFront(elem)
	atomic.AddInt64(&c.hits, 1)
	return entry.findings, true, nil
}

func (c *LRUCache) Set(key string, findings []matcher.Finding) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	stored := append([]matcher.Finding(nil), findings...)

	if elem, exists := c.entries[key]; exists {
		entry := elem.Value.(*lruEntry)
		entry.findings = stored
		entry.expiresAt = time.Now().Add(c.ttl)
		c.order.MoveToFront(elem)
		return nil
	}

	if c.order.Len() >= c.maxEntries {
		c.evictOldest()
	}

	elem := c.order.PushFront(&lruEntry{
		key:       key,
		findings:  stored,
		expiresAt: time.Now().Add(c.ttl),
	})
	c.entries[key] = elem
	return nil
}

func (c *LRUCache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*list.Element)
	c.order.Init()
	return nil
}

func (c *LRUCache) Close() error {
	return nil
}

func (c *LRUCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		Hits:    atomic.LoadInt64(&c.hits),
		Misses:  atomic.LoadInt64(&c.misses),
		Entries: c.order.Len(),
	}
}

func (c *LRUCache) evictOldest() {
	elem := c.order.Back()
	if elem != nil {
		entry := elem.Value.(*lruEntry)
		delete(c.entries, entry.key)
		c.order.Remove(elem)
	}
}
