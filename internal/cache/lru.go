package cache

import (
	"container/list"
	"sync"

	"github.com/hupe1980/bitdb/internal/resource"
)

// lru holds admitted payloads, bounded in bytes by its capacity and by the
// memory budget of the resource controller.
type lru struct {
	mu        sync.Mutex
	capacity  int64
	size      int64
	items     map[Key]*list.Element
	evictList *list.List
	rc        *resource.Controller

	onEvict func(p *Payload)
}

type entry struct {
	key     Key
	payload *Payload
	size    int64
}

func newLRU(capacity int64, rc *resource.Controller) *lru {
	return &lru{
		capacity:  capacity,
		items:     make(map[Key]*list.Element),
		evictList: list.New(),
		rc:        rc,
	}
}

func (c *lru) get(key Key) (*Payload, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ent, ok := c.items[key]; ok {
		c.evictList.MoveToFront(ent)
		return ent.Value.(*entry).payload, true
	}
	return nil, false
}

func (c *lru) contains(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.items[key]
	return ok
}

// set stores p and reports whether it was kept. A payload larger than the
// capacity, or one the controller has no memory for, is dropped.
func (c *lru) set(p *Payload) bool {
	key := p.Key()
	itemSize := p.size()

	c.mu.Lock()
	defer c.mu.Unlock()

	if ent, ok := c.items[key]; ok {
		c.removeElement(ent)
	}
	if itemSize > c.capacity {
		return false
	}

	// Evict locally first so the released memory is available to the
	// controller.
	for c.size+itemSize > c.capacity {
		ent := c.evictList.Back()
		if ent == nil {
			break
		}
		c.removeElement(ent)
	}

	if c.rc != nil {
		if err := c.rc.AcquireMemory(itemSize); err != nil {
			return false
		}
	}

	element := c.evictList.PushFront(&entry{key: key, payload: p, size: itemSize})
	c.items[key] = element
	c.size += itemSize
	return true
}

func (c *lru) remove(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ent, ok := c.items[key]; ok {
		c.removeElement(ent)
		return true
	}
	return false
}

// invalidate removes entries matching the predicate.
func (c *lru) invalidate(predicate func(p *Payload) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var toRemove []*list.Element
	for _, element := range c.items {
		if predicate(element.Value.(*entry).payload) {
			toRemove = append(toRemove, element)
		}
	}
	for _, e := range toRemove {
		c.removeElement(e)
	}
	return len(toRemove)
}

// payloads returns the stored payloads, most recently used first.
func (c *lru) payloads() []*Payload {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*Payload, 0, c.evictList.Len())
	for e := c.evictList.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(*entry).payload)
	}
	return out
}

func (c *lru) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.evictList.Len() > 0 {
		c.removeElement(c.evictList.Back())
	}
}

func (c *lru) removeElement(e *list.Element) {
	c.evictList.Remove(e)
	kv := e.Value.(*entry)
	delete(c.items, kv.key)
	c.size -= kv.size
	if c.rc != nil {
		c.rc.ReleaseMemory(kv.size)
	}
	if c.onEvict != nil {
		c.onEvict(kv.payload)
	}
}

func (c *lru) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// bytes returns the current size of the stored payloads.
func (c *lru) bytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}
