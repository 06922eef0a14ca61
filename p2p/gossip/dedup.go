package gossip

import (
	"container/list"
	"sync"
)

// dedupCache is a bounded most-recently-seen set of hashes, used for
// lastSeenBlock/lastSeenPush (spec.md §4.6 "Duplicate suppression").
// Unlike an unbounded golang-set, insertion past capacity evicts the
// oldest entry so the cache cannot grow without bound over a long-running
// node.
type dedupCache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	index    map[string]*list.Element
}

func newDedupCache(capacity int) *dedupCache {
	return &dedupCache{
		capacity: capacity,
		order:    list.New(),
		index:    make(map[string]*list.Element, capacity),
	}
}

// SeenOrAdd reports whether key was already present, adding it (as most
// recent) if not.
func (c *dedupCache) SeenOrAdd(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.index[key]; ok {
		c.order.MoveToFront(el)
		return true
	}
	el := c.order.PushFront(key)
	c.index[key] = el
	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.index, oldest.Value.(string))
		}
	}
	return false
}
