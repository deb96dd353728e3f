package index

import (
	"cmp"
	"slices"

	"github.com/cespare/xxhash/v2"

	"github.com/hupe1980/bitdb/internal/bitmap"
	"github.com/hupe1980/bitdb/internal/formula"
	"github.com/hupe1980/bitdb/internal/txn"
)

// rangeSupplierCost is the per-element cost of a range filter. It covers
// locating the value bitmaps in addition to the union.
const rangeSupplierCost int64 = 43

// FilterIndex maps the values of one attribute to the bitmap of records
// holding them.
type FilterIndex struct {
	key     AttributeKey
	compare func(a, b string) int
	values  *txn.Map[string, *txn.Bitmap]
}

func newFilterIndex(key AttributeKey, compare func(a, b string) int) *FilterIndex {
	return &FilterIndex{
		key:     key,
		compare: compare,
		values:  txn.NewMap[string, *txn.Bitmap](),
	}
}

// Key returns the attribute the index belongs to.
func (fi *FilterIndex) Key() AttributeKey {
	return fi.key
}

func (fi *FilterIndex) add(tx *txn.Tx, value string, id uint32) error {
	bm, ok := fi.values.Get(tx, value)
	if !ok {
		bm = txn.NewBitmap()
		if err := fi.values.Put(tx, value, bm); err != nil {
			return err
		}
	}
	return bm.Add(tx, id)
}

func (fi *FilterIndex) remove(tx *txn.Tx, value string, id uint32) error {
	bm, ok := fi.values.Get(tx, value)
	if !ok {
		return nil
	}
	if err := bm.Remove(tx, id); err != nil {
		return err
	}
	if bm.Cardinality(tx) == 0 {
		return fi.values.Remove(tx, value)
	}
	return nil
}

func (fi *FilterIndex) removeRecord(tx *txn.Tx, id uint32) error {
	var stale []string
	fi.values.Range(tx, func(value string, bm *txn.Bitmap) bool {
		if bm.Contains(tx, id) {
			stale = append(stale, value)
		}
		return true
	})
	for _, value := range stale {
		if err := fi.remove(tx, value, id); err != nil {
			return err
		}
	}
	return nil
}

// Values returns the indexed values in ascending order.
func (fi *FilterIndex) Values(tx *txn.Tx) []string {
	values := fi.values.Keys(tx)
	slices.SortFunc(values, fi.compare)
	return values
}

// Records returns the records holding value.
func (fi *FilterIndex) Records(tx *txn.Tx, value string) *bitmap.Bitmap {
	bm, ok := fi.values.Get(tx, value)
	if !ok {
		return bitmap.Empty()
	}
	return bm.Snapshot(tx)
}

// SortedRecords returns every indexed record ordered by value, ties broken
// by primary key. A record with several values appears at its lowest one.
func (fi *FilterIndex) SortedRecords(tx *txn.Tx) []uint32 {
	seen := bitmap.New()
	var out []uint32
	for _, value := range fi.Values(tx) {
		bm, _ := fi.values.Get(tx, value)
		bm.Snapshot(tx).ForEach(func(id uint32) bool {
			if !seen.Contains(id) {
				seen.Add(id)
				out = append(out, id)
			}
			return true
		})
	}
	return out
}

// equals returns the formula of records holding value.
func (fi *FilterIndex) equals(tx *txn.Tx, value string) *formula.Formula {
	bm, ok := fi.values.Get(tx, value)
	if !ok {
		return formula.Empty()
	}
	return formula.FromSource(bm.View(tx))
}

// between returns a deferred formula of records holding a value in
// [from, to]. An empty bound is open.
func (fi *FilterIndex) between(tx *txn.Tx, from, to string) *formula.Formula {
	var views []txn.View
	for _, value := range fi.Values(tx) {
		if from != "" && fi.compare(value, from) < 0 {
			continue
		}
		if to != "" && fi.compare(value, to) > 0 {
			break
		}
		bm, _ := fi.values.Get(tx, value)
		views = append(views, bm.View(tx))
	}
	if len(views) == 0 {
		return formula.Empty()
	}

	// A pending value added to the range inside tx is not part of any
	// committed version, so such results must not be shared.
	pending := fi.values.HasPendingChanges(tx)
	// The value map is a dependency too: a value entering or leaving the
	// range changes the set of bitmaps read.
	deps := make([]formula.Dependency, 0, len(views)+1)
	deps = append(deps, formula.Dependency{ID: fi.values.ID(), Version: fi.values.VersionAt(tx)})
	var estimate int
	for _, v := range views {
		deps = append(deps, formula.Dependency{ID: v.ID(), Version: v.Version()})
		estimate += v.Cardinality()
		pending = pending || v.HasPendingChanges()
	}
	slices.SortFunc(deps, func(a, b formula.Dependency) int { return cmp.Compare(a.ID, b.ID) })

	return scoped(fi.key, formula.Deferred(&formula.FuncSupplier{
		Key:          rangeKey(fi.key, from, to),
		Cost:         rangeSupplierCost,
		Estimate:     estimate,
		Deps:         deps,
		NonCacheable: pending,
		Fn: func() *bitmap.Bitmap {
			bms := make([]*bitmap.Bitmap, len(views))
			for i, v := range views {
				bms[i] = v.Bitmap()
			}
			return bitmap.OrAll(bms...)
		},
	}))
}

func rangeKey(key AttributeKey, from, to string) uint64 {
	d := xxhash.New()
	for _, s := range []string{"range", key.Name, key.Locale, from, to} {
		_, _ = d.WriteString(s)
		_, _ = d.Write([]byte{0})
	}
	return d.Sum64()
}
