package filecache

import (
	"time"

	"golang.org/x/sync/singleflight"
)

// Loader serves file entries from a Cache, reading from disk on a miss.
// Disk reads run outside the cache lock; concurrent misses for one path
// share a single read.
type Loader struct {
	cache *Cache
	group singleflight.Group
	now   func() time.Time
	read  func(path string, now time.Time) (*Entry, error)
}

// NewLoader returns a loader over c. A nil cache reads every request from disk.
func NewLoader(c *Cache) *Loader {
	l := &Loader{cache: c, now: time.Now, read: ReadEntry}
	if c != nil {
		l.now = c.now
	}
	return l
}

// Load returns the entry for path and whether it came from the cache.
func (l *Loader) Load(path string) (*Entry, bool, error) {
	if l.cache != nil {
		if e, ok := l.cache.Get(path); ok {
			return e, true, nil
		}
	}

	v, err, _ := l.group.Do(path, func() (any, error) {
		e, err := l.read(path, l.now())
		if err != nil {
			return nil, err
		}
		if l.cache != nil {
			l.cache.Put(e)
		}
		return e, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*Entry), false, nil
}

// Cache returns the underlying cache, or nil.
func (l *Loader) Cache() *Cache {
	return l.cache
}
