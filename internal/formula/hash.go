package formula

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

type digest struct {
	d   *xxhash.Digest
	buf [8]byte
}

func newDigest() *digest {
	return &digest{d: xxhash.New()}
}

func (h *digest) uint64(v uint64) {
	binary.LittleEndian.PutUint64(h.buf[:], v)
	_, _ = h.d.Write(h.buf[:])
}

func (h *digest) string(s string) {
	h.uint64(uint64(len(s)))
	_, _ = h.d.WriteString(s)
}

func (h *digest) sum() uint64 {
	return h.d.Sum64()
}

// Hash returns the structural hash of the formula. Formulas of the same
// shape over the same data hash identically, regardless of the instances
// they were built from. Child order is significant. Transactional sources
// contribute their id only, so the hash stays stable across commits.
// Source-backed constants hash by producer id, not by content.
func (f *Formula) Hash() uint64 {
	return f.hash.get(f.structuralHash)
}

func (f *Formula) structuralHash() uint64 {
	h := newDigest()
	h.uint64(f.kind.classID())
	switch f.kind {
	case KindEmpty, KindSkip:
	case KindConstant:
		if f.source != nil {
			// Versions are tracked by Dependencies, not by the hash.
			h.uint64(f.source.ID())
		} else {
			h.uint64(f.constant.ContentHash())
		}
	case KindAnd, KindOr, KindNot, KindFutureNot:
		for _, c := range f.children {
			h.uint64(c.Hash())
		}
	case KindAttribute:
		h.string(f.name)
		h.string(f.locale)
		h.uint64(f.children[0].Hash())
	case KindDeferred:
		h.uint64(f.supplier.Hash())
	case KindFlattened:
		// A surrogate is indistinguishable from the subtree it replaces.
		return f.recorded.Hash
	default:
		panic(fmt.Sprintf("formula: unknown kind %d", uint8(f.kind)))
	}
	return h.sum()
}

// Dependencies returns the transactional sources the formula reads,
// sorted by id, with the version each one had when it was captured.
func (f *Formula) Dependencies() []Dependency {
	return f.deps.get(f.collectDependencies)
}

func (f *Formula) collectDependencies() []Dependency {
	switch f.kind {
	case KindEmpty, KindSkip:
		return nil
	case KindConstant:
		if f.source == nil {
			return nil
		}
		return []Dependency{{ID: f.source.ID(), Version: f.source.Version()}}
	case KindDeferred:
		return mergeDependencies(f.supplier.Dependencies())
	case KindFlattened:
		return mergeDependencies(f.recorded.Dependencies)
	case KindAnd, KindOr, KindNot, KindFutureNot, KindAttribute:
		lists := make([][]Dependency, 0, len(f.children))
		for _, c := range f.children {
			lists = append(lists, c.Dependencies())
		}
		return mergeDependencies(lists...)
	default:
		panic(fmt.Sprintf("formula: unknown kind %d", uint8(f.kind)))
	}
}

// TransactionalIDs returns the sorted ids of the transactional sources the
// formula reads.
func (f *Formula) TransactionalIDs() []uint64 {
	return f.ids.get(func() []uint64 {
		deps := f.Dependencies()
		ids := make([]uint64, len(deps))
		for i, d := range deps {
			ids[i] = d.ID
		}
		return ids
	})
}

// TransactionalIDHash returns a hash of TransactionalIDs.
func (f *Formula) TransactionalIDHash() uint64 {
	return f.idHash.get(func() uint64 {
		h := newDigest()
		for _, id := range f.TransactionalIDs() {
			h.uint64(id)
		}
		return h.sum()
	})
}

// Cacheable reports whether the result depends only on committed data and
// may be shared between queries.
func (f *Formula) Cacheable() bool {
	return f.cacheable.get(f.isCacheable)
}

func (f *Formula) isCacheable() bool {
	switch f.kind {
	case KindEmpty, KindSkip, KindFlattened:
		return true
	case KindConstant:
		return f.source == nil || !f.source.HasPendingChanges()
	case KindDeferred:
		return f.supplier.Cacheable()
	case KindFutureNot:
		// The super-set is query specific.
		return false
	case KindAnd, KindOr, KindNot, KindAttribute:
		for _, c := range f.children {
			if !c.Cacheable() {
				return false
			}
		}
		return true
	default:
		panic(fmt.Sprintf("formula: unknown kind %d", uint8(f.kind)))
	}
}
