package ingest

import (
	"container/list"
	"sync"

	"github.com/matchlog/matchlog/internal/combatlog"
)

// stateCache is a small LRU over the durable parse state store. Partitions
// are long-lived during a session, so a handful of entries absorbs almost
// every lookup.
type stateCache struct {
	mu       sync.RWMutex
	capacity int
	order    *list.List
	entries  map[string]*list.Element
}

type cacheEntry struct {
	partitionID string
	state       *combatlog.ParseState
}

func newStateCache(capacity int) *stateCache {
	return &stateCache{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[string]*list.Element),
	}
}

func (c *stateCache) get(partitionID string) (*combatlog.ParseState, bool) {
	c.mu.RLock()
	el, ok := c.entries[partitionID]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}

	c.mu.Lock()
	c.order.MoveToFront(el)
	c.mu.Unlock()
	return el.Value.(*cacheEntry).state, true
}

func (c *stateCache) put(partitionID string, state *combatlog.ParseState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[partitionID]; ok {
		el.Value.(*cacheEntry).state = state
		c.order.MoveToFront(el)
		return
	}

	el := c.order.PushFront(&cacheEntry{partitionID: partitionID, state: state})
	c.entries[partitionID] = el

	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).partitionID)
	}
}

func (c *stateCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.order.Len()
}
