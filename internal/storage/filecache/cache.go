package filecache

import (
	"container/list"
	"io/fs"
	"os"
	"sync"
	"time"
)

// Config configures a Cache.
type Config struct {
	// MaxEntries bounds the number of cached files. Zero or less disables storage.
	MaxEntries int

	// MaxAge bounds the time since insertion. Zero means no age limit.
	MaxAge time.Duration

	// Stat reports the current state of a cached path. Defaults to os.Stat.
	Stat func(path string) (fs.FileInfo, error)

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Hits          uint64
	Misses        uint64
	Evictions     uint64 // removed for capacity
	Expirations   uint64 // removed for age
	Invalidations uint64 // removed because the file changed or vanished
	Size          int
	MaxSize       int
	Bytes         int64
}

// HitRatio returns hits / (hits + misses), or 0 before any lookup.
func (s Stats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// lruNode links the cache key and the entry to the list element.
type lruNode struct {
	entry      *Entry
	accessedAt time.Time
}

// Cache is an LRU cache of file entries keyed by absolute path.
type Cache struct {
	mu sync.Mutex
	// Doubly linked list in recency order, most recent at the front.
	lru   *list.List
	items map[string]*list.Element
	bytes int64

	maxEntries int
	maxAge     time.Duration
	stat       func(string) (fs.FileInfo, error)
	now        func() time.Time

	hits, misses, evictions, expirations, invalidations uint64
}

// New creates a cache.
func New(cfg Config) *Cache {
	if cfg.Stat == nil {
		cfg.Stat = os.Stat
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Cache{
		lru:        list.New(),
		items:      make(map[string]*list.Element),
		maxEntries: cfg.MaxEntries,
		maxAge:     cfg.MaxAge,
		stat:       cfg.Stat,
		now:        cfg.Now,
	}
}

// Get returns the entry for path if it is within MaxAge and the file still
// has the recorded modification time and size. Otherwise the entry is
// dropped and a miss is reported. A hit moves the entry to the front.
func (c *Cache) Get(path string) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[path]
	if !ok {
		c.misses++
		return nil, false
	}
	n := el.Value.(*lruNode)
	now := c.now()

	if c.maxAge > 0 && now.Sub(n.entry.LoadedAt) > c.maxAge {
		c.removeElement(el)
		c.expirations++
		c.misses++
		return nil, false
	}

	info, err := c.stat(path)
	if err != nil || !info.ModTime().Equal(n.entry.ModTime) || info.Size() != n.entry.Size {
		c.removeElement(el)
		c.invalidations++
		c.misses++
		return nil, false
	}

	c.lru.MoveToFront(el)
	n.accessedAt = now
	c.hits++
	return n.entry, true
}

// Put inserts or replaces the entry for e.Path as most recently used,
// evicting the least recently used entry first when the cache is full.
func (c *Cache) Put(e *Entry) {
	if e == nil || c.maxEntries <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if e.LoadedAt.IsZero() {
		e.LoadedAt = now
	}

	if el, ok := c.items[e.Path]; ok {
		n := el.Value.(*lruNode)
		c.bytes += e.Size - n.entry.Size
		n.entry = e
		n.accessedAt = now
		c.lru.MoveToFront(el)
		return
	}

	for c.lru.Len() >= c.maxEntries {
		back := c.lru.Back()
		if back == nil {
			break
		}
		c.removeElement(back)
		c.evictions++
	}

	c.items[e.Path] = c.lru.PushFront(&lruNode{entry: e, accessedAt: now})
	c.bytes += e.Size
}

// Remove drops the entry for path, if any.
func (c *Cache) Remove(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[path]; ok {
		c.removeElement(el)
	}
}

// Clear drops all entries. Counters are kept.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lru.Init()
	c.items = make(map[string]*list.Element)
	c.bytes = 0
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Keys returns the cached paths from most to least recently used.
func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, c.lru.Len())
	for el := c.lru.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Value.(*lruNode).entry.Path)
	}
	return keys
}

// AccessedAt returns when path was last put or hit.
func (c *Cache) AccessedAt(path string) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[path]
	if !ok {
		return time.Time{}, false
	}
	return el.Value.(*lruNode).accessedAt, true
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		Hits:          c.hits,
		Misses:        c.misses,
		Evictions:     c.evictions,
		Expirations:   c.expirations,
		Invalidations: c.invalidations,
		Size:          c.lru.Len(),
		MaxSize:       c.maxEntries,
		Bytes:         c.bytes,
	}
}

// removeElement must be called with mu held.
func (c *Cache) removeElement(el *list.Element) {
	n := c.lru.Remove(el).(*lruNode)
	delete(c.items, n.entry.Path)
	c.bytes -= n.entry.Size
}
