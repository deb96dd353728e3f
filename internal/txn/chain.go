package txn

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Commit groups the values published by one transaction. They become
// visible together when the commit completes.
type Commit struct {
	version uint64
	// horizon is the oldest commit version an open transaction may read.
	horizon uint64
	done    atomic.Bool
}

// Version returns the commit version.
func (c *Commit) Version() uint64 {
	return c.version
}

// entry is one published state of a producer.
type entry[T any] struct {
	value T
	// version is the producer version reported to readers.
	version uint64
	// commit is the commit version that published the state.
	commit uint64
	// pending is the commit still publishing the state, nil once visible.
	pending *Commit
	prev    atomic.Pointer[entry[T]]
}

func (e *entry[T]) visible() bool {
	return e.pending == nil || e.pending.done.Load()
}

// chain keeps the published states of a producer, newest first. States
// older than the horizon of the last commit are dropped.
type chain[T any] struct {
	mu   sync.Mutex // serializes writers
	head atomic.Pointer[entry[T]]
}

func (c *chain[T]) init(value T) {
	c.head.Store(&entry[T]{value: value})
}

// latest returns the newest visible state.
func (c *chain[T]) latest() *entry[T] {
	e := c.head.Load()
	for !e.visible() {
		e = e.prev.Load()
	}
	return e
}

// at returns the newest visible state published at or before commit
// version. If that state was already dropped, the oldest kept one is
// returned.
func (c *chain[T]) at(version uint64) *entry[T] {
	e := c.head.Load()
	for {
		if e.visible() && e.commit <= version {
			return e
		}
		prev := e.prev.Load()
		if prev == nil {
			return e
		}
		e = prev
	}
}

// newest returns the most recently published state, visible or not. Only
// commits, which are serialized, merge onto it.
func (c *chain[T]) newest() T {
	return c.head.Load().value
}

// publish prepends value as part of commit cm.
func (c *chain[T]) publish(value T, cm *Commit) {
	c.mu.Lock()
	defer c.mu.Unlock()

	head := c.head.Load()
	e := &entry[T]{
		value:   value,
		version: max(cm.version, head.version+1),
		commit:  cm.version,
		pending: cm,
	}
	e.prev.Store(head)
	c.head.Store(e)
	c.prune(cm.horizon)
}

// prune cuts the chain below the newest visible state at or before horizon.
func (c *chain[T]) prune(horizon uint64) {
	for e := c.head.Load(); e != nil; e = e.prev.Load() {
		if e.visible() && e.commit <= horizon {
			e.prev.Store(nil)
			return
		}
	}
}

// replace applies fn to the newest state and swaps the result in without
// a commit. The state keeps its commit version, so open transactions that
// can see the old state see the new one too.
func (c *chain[T]) replace(fn func(T) (T, bool, error)) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	head := c.head.Load()
	for !head.visible() {
		// A commit is publishing this producer; its entry must not be lost.
		runtime.Gosched()
		head = c.head.Load()
	}
	next, changed, err := fn(head.value)
	if err != nil || !changed {
		return false, err
	}
	e := &entry[T]{
		value:   next,
		version: head.version + 1,
		commit:  head.commit,
	}
	e.prev.Store(head.prev.Load())
	c.head.Store(e)
	return true, nil
}
