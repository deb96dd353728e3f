package index

import (
	"slices"

	"github.com/hupe1980/bitdb/internal/bitmap"
	"github.com/hupe1980/bitdb/internal/sorter"
	"github.com/hupe1980/bitdb/internal/txn"
)

// ReferenceIndex groups records by the entity they reference. Each group is
// an atomic block for sorting; blocks keep the order in which their target
// was first referenced.
type ReferenceIndex struct {
	name    string
	order   *txn.List[string]
	members *txn.Map[string, *txn.Bitmap]
}

func newReferenceIndex(name string) *ReferenceIndex {
	return &ReferenceIndex{
		name:    name,
		order:   txn.NewList[string](),
		members: txn.NewMap[string, *txn.Bitmap](),
	}
}

// Name returns the reference name.
func (ri *ReferenceIndex) Name() string {
	return ri.name
}

func (ri *ReferenceIndex) add(tx *txn.Tx, target string, id uint32) error {
	bm, ok := ri.members.Get(tx, target)
	if !ok {
		bm = txn.NewBitmap()
		if err := ri.members.Put(tx, target, bm); err != nil {
			return err
		}
		if err := ri.order.Append(tx, target); err != nil {
			return err
		}
	}
	return bm.Add(tx, id)
}

func (ri *ReferenceIndex) remove(tx *txn.Tx, target string, id uint32) error {
	bm, ok := ri.members.Get(tx, target)
	if !ok {
		return nil
	}
	if err := bm.Remove(tx, id); err != nil {
		return err
	}
	if bm.Cardinality(tx) > 0 {
		return nil
	}
	if err := ri.members.Remove(tx, target); err != nil {
		return err
	}
	if i := slices.Index(ri.order.Values(tx), target); i >= 0 {
		return ri.order.Remove(tx, i)
	}
	return nil
}

func (ri *ReferenceIndex) removeRecord(tx *txn.Tx, id uint32) error {
	for _, target := range ri.order.Values(tx) {
		bm, ok := ri.members.Get(tx, target)
		if !ok || !bm.Contains(tx, id) {
			continue
		}
		if err := ri.remove(tx, target, id); err != nil {
			return err
		}
	}
	return nil
}

// Targets returns the referenced entities in block order.
func (ri *ReferenceIndex) Targets(tx *txn.Tx) []string {
	return ri.order.Values(tx)
}

// Members returns the records referencing target.
func (ri *ReferenceIndex) Members(tx *txn.Tx, target string) *bitmap.Bitmap {
	bm, ok := ri.members.Get(tx, target)
	if !ok {
		return bitmap.Empty()
	}
	return bm.Snapshot(tx)
}

// blocks returns the atomic blocks in order. inner supplies the sorter used
// within each block. Without inner a block is sorted by primary key; a nil
// sorter leaves the block's records to later sorters.
func (ri *ReferenceIndex) blocks(tx *txn.Tx, inner func(target string) sorter.Sorter) []sorter.Block {
	targets := ri.order.Values(tx)
	out := make([]sorter.Block, 0, len(targets))
	for _, target := range targets {
		bm, ok := ri.members.Get(tx, target)
		if !ok {
			continue
		}
		s := sorter.Natural()
		if inner != nil {
			s = inner(target)
		}
		out = append(out, sorter.Block{
			Key:     ri.name + "/" + target,
			Members: bm.Snapshot(tx),
			Sorter:  s,
		})
	}
	return out
}
