package event

import (
	"container/list"
)

// contextKeysCache remembers recently indexed context keys so each context
// is described to the collector at most once per window. Capacity is bounded
// with oldest-first eviction; the owning worker clears the cache on an
// interval independent of the flush timer.
//
// Not safe for concurrent use: only the dispatcher worker touches it.
type contextKeysCache struct {
	capacity int
	order    *list.List               // front = oldest
	entries  map[string]*list.Element // key -> element in order
}

func newContextKeysCache(capacity int) *contextKeysCache {
	if capacity <= 0 {
		capacity = 1
	}
	return &contextKeysCache{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[string]*list.Element, capacity),
	}
}

// notice records a context key and reports whether it was already known.
// A freshly noticed key (return false) means an index event is needed.
func (c *contextKeysCache) notice(key string) bool {
	if elem, ok := c.entries[key]; ok {
		c.order.MoveToBack(elem)
		return true
	}

	if c.order.Len() >= c.capacity {
		oldest := c.order.Front()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(string))
		}
	}

	c.entries[key] = c.order.PushBack(key)
	return false
}

// clear forgets all keys, so every context is indexed again.
func (c *contextKeysCache) clear() {
	c.order.Init()
	clear(c.entries)
}

// len returns the number of cached keys.
func (c *contextKeysCache) len() int {
	return c.order.Len()
}
