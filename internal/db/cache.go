package db

import (
	"container/list"
	"database/sql"
	"sync"

	"github.com/michaelscutari/seek/internal/entry"
)

const queryCacheSize = 64

type queryCacheEntry struct {
	key   string
	value []entry.MatchResult
}

// queryCache remembers recent LoadResults pages. Snapshots are immutable
// once finalized, so entries never go stale.
type queryCache struct {
	mu    sync.Mutex
	max   int
	ll    *list.List
	items map[string]*list.Element
}

func newQueryCache(max int) *queryCache {
	return &queryCache{
		max:   max,
		ll:    list.New(),
		items: make(map[string]*list.Element),
	}
}

func (c *queryCache) Get(key string) ([]entry.MatchResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.ll.MoveToFront(el)
		return el.Value.(queryCacheEntry).value, true
	}
	return nil, false
}

func (c *queryCache) Set(key string, value []entry.MatchResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		el.Value = queryCacheEntry{key: key, value: value}
		c.ll.MoveToFront(el)
		return
	}

	el := c.ll.PushFront(queryCacheEntry{key: key, value: value})
	c.items[key] = el

	if c.ll.Len() > c.max {
		last := c.ll.Back()
		if last == nil {
			return
		}
		c.ll.Remove(last)
		delete(c.items, last.Value.(queryCacheEntry).key)
	}
}

var dbQueryCaches sync.Map // map[*sql.DB]*queryCache

// EnableQueryCache turns on result caching for a read-only snapshot.
func EnableQueryCache(db *sql.DB) {
	if db != nil {
		dbQueryCaches.LoadOrStore(db, newQueryCache(queryCacheSize))
	}
}

// DropQueryCache forgets the cache for db. Call it before closing db.
func DropQueryCache(db *sql.DB) {
	dbQueryCaches.Delete(db)
}

func getQueryCache(db *sql.DB) *queryCache {
	if db == nil {
		return nil
	}
	if existing, ok := dbQueryCaches.Load(db); ok {
		return existing.(*queryCache)
	}
	return nil
}
