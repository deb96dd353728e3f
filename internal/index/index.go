package index

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/hupe1980/bitdb/internal/txn"
)

var (
	// ErrUnknownRecord is returned when a record is not part of the universe.
	ErrUnknownRecord = errors.New("index: unknown record")

	// ErrUnknownAttribute is returned when no filter index exists for an
	// attribute.
	ErrUnknownAttribute = errors.New("index: unknown attribute")
)

// AttributeKey identifies a filter index. An empty Locale marks a
// locale-independent attribute.
type AttributeKey struct {
	Name   string
	Locale string
}

func (k AttributeKey) String() string {
	if k.Locale == "" {
		return k.Name
	}
	return k.Name + ":" + k.Locale
}

// attributeKeyHasher hashes AttributeKey values for the persistent maps.
type attributeKeyHasher struct{}

func (attributeKeyHasher) Hash(k AttributeKey) uint32 {
	d := xxhash.New()
	_, _ = d.WriteString(k.Name)
	_, _ = d.Write([]byte{0})
	_, _ = d.WriteString(k.Locale)
	return uint32(d.Sum64())
}

func (attributeKeyHasher) Equal(a, b AttributeKey) bool {
	return a == b
}

// Config configures an EntityIndex.
type Config struct {
	// Compare orders attribute values for range filters and sorting.
	// Defaults to CompareValues.
	Compare func(a, b string) int
}

// CompareValues orders numeric values numerically and before all other
// values, which are ordered lexically.
func CompareValues(a, b string) int {
	fa, errA := strconv.ParseFloat(a, 64)
	fb, errB := strconv.ParseFloat(b, 64)
	switch {
	case errA == nil && errB == nil:
		if c := cmp.Compare(fa, fb); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	case errA == nil:
		return -1
	case errB == nil:
		return 1
	default:
		return cmp.Compare(a, b)
	}
}

// EntityIndex is the transactional index of one entity collection.
//
// Every method takes the transaction it runs in. A nil transaction reads and
// writes the committed state directly.
type EntityIndex struct {
	compare func(a, b string) int

	universe   *txn.Bitmap
	filters    *txn.Map[AttributeKey, *FilterIndex]
	references *txn.Map[string, *ReferenceIndex]
	locales    *txn.Set[string]
	dirty      *txn.Boolean
}

// New creates an empty EntityIndex.
func New(cfg Config) *EntityIndex {
	if cfg.Compare == nil {
		cfg.Compare = CompareValues
	}
	return &EntityIndex{
		compare:    cfg.Compare,
		universe:   txn.NewBitmap(),
		filters:    txn.NewMapWithHasher[AttributeKey, *FilterIndex](attributeKeyHasher{}),
		references: txn.NewMap[string, *ReferenceIndex](),
		locales:    txn.NewSet[string](),
		dirty:      txn.NewBoolean(false),
	}
}

// Sources returns the ids of every transactional producer formulas over
// the index may read, as visible to tx.
func (e *EntityIndex) Sources(tx *txn.Tx) []uint64 {
	ids := []uint64{e.universe.ID(), e.filters.ID(), e.references.ID()}
	e.filters.Range(tx, func(_ AttributeKey, fi *FilterIndex) bool {
		ids = append(ids, fi.values.ID())
		fi.values.Range(tx, func(_ string, bm *txn.Bitmap) bool {
			ids = append(ids, bm.ID())
			return true
		})
		return true
	})
	e.references.Range(tx, func(_ string, ri *ReferenceIndex) bool {
		ids = append(ids, ri.members.ID())
		ri.members.Range(tx, func(_ string, bm *txn.Bitmap) bool {
			ids = append(ids, bm.ID())
			return true
		})
		return true
	})
	return ids
}

// Insert adds ids to the universe.
func (e *EntityIndex) Insert(tx *txn.Tx, ids ...uint32) error {
	if err := e.universe.Add(tx, ids...); err != nil {
		return err
	}
	return e.dirty.SetToTrue(tx)
}

// Remove drops id from the universe and from every filter and reference
// index it appears in.
func (e *EntityIndex) Remove(tx *txn.Tx, id uint32) error {
	if !e.universe.Contains(tx, id) {
		return fmt.Errorf("%w: %d", ErrUnknownRecord, id)
	}
	if err := e.universe.Remove(tx, id); err != nil {
		return err
	}

	var err error
	e.filters.Range(tx, func(_ AttributeKey, fi *FilterIndex) bool {
		err = fi.removeRecord(tx, id)
		return err == nil
	})
	if err != nil {
		return err
	}
	e.references.Range(tx, func(_ string, ri *ReferenceIndex) bool {
		err = ri.removeRecord(tx, id)
		return err == nil
	})
	if err != nil {
		return err
	}
	return e.dirty.SetToTrue(tx)
}

// Contains reports whether id is part of the universe.
func (e *EntityIndex) Contains(tx *txn.Tx, id uint32) bool {
	return e.universe.Contains(tx, id)
}

// Size returns the number of records in the universe.
func (e *EntityIndex) Size(tx *txn.Tx) int {
	return e.universe.Cardinality(tx)
}

// SetAttribute indexes value for id under key, creating the filter index on
// first use.
func (e *EntityIndex) SetAttribute(tx *txn.Tx, key AttributeKey, id uint32, value string) error {
	if !e.universe.Contains(tx, id) {
		return fmt.Errorf("%w: %d", ErrUnknownRecord, id)
	}
	fi, ok := e.filters.Get(tx, key)
	if !ok {
		fi = newFilterIndex(key, e.compare)
		if err := e.filters.Put(tx, key, fi); err != nil {
			return err
		}
	}
	if err := fi.add(tx, value, id); err != nil {
		return err
	}
	if key.Locale != "" {
		if _, err := e.locales.Add(tx, key.Locale); err != nil {
			return err
		}
	}
	return e.dirty.SetToTrue(tx)
}

// RemoveAttribute removes value for id under key.
func (e *EntityIndex) RemoveAttribute(tx *txn.Tx, key AttributeKey, id uint32, value string) error {
	fi, ok := e.filters.Get(tx, key)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAttribute, key)
	}
	if err := fi.remove(tx, value, id); err != nil {
		return err
	}
	return e.dirty.SetToTrue(tx)
}

// Filter returns the filter index of key.
func (e *EntityIndex) Filter(tx *txn.Tx, key AttributeKey) (*FilterIndex, bool) {
	return e.filters.Get(tx, key)
}

// Attributes returns the keys of all filter indexes, ordered by name and
// locale.
func (e *EntityIndex) Attributes(tx *txn.Tx) []AttributeKey {
	keys := e.filters.Keys(tx)
	slices.SortFunc(keys, func(a, b AttributeKey) int {
		if c := cmp.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.Locale, b.Locale)
	})
	return keys
}

// Locales returns every locale an attribute was indexed in, sorted.
func (e *EntityIndex) Locales(tx *txn.Tx) []string {
	out := e.locales.Values(tx)
	slices.Sort(out)
	return out
}

// AddReference places id in the block of the referenced entity target of
// reference name. Blocks are ordered by first insertion.
func (e *EntityIndex) AddReference(tx *txn.Tx, name, target string, id uint32) error {
	if !e.universe.Contains(tx, id) {
		return fmt.Errorf("%w: %d", ErrUnknownRecord, id)
	}
	ri, ok := e.references.Get(tx, name)
	if !ok {
		ri = newReferenceIndex(name)
		if err := e.references.Put(tx, name, ri); err != nil {
			return err
		}
	}
	if err := ri.add(tx, target, id); err != nil {
		return err
	}
	return e.dirty.SetToTrue(tx)
}

// RemoveReference removes id from the block of target.
func (e *EntityIndex) RemoveReference(tx *txn.Tx, name, target string, id uint32) error {
	ri, ok := e.references.Get(tx, name)
	if !ok {
		return fmt.Errorf("%w: reference %s", ErrUnknownAttribute, name)
	}
	if err := ri.remove(tx, target, id); err != nil {
		return err
	}
	return e.dirty.SetToTrue(tx)
}

// Reference returns the reference index name.
func (e *EntityIndex) Reference(tx *txn.Tx, name string) (*ReferenceIndex, bool) {
	return e.references.Get(tx, name)
}

// IsDirty reports whether the index changed since the last MarkClean.
func (e *EntityIndex) IsDirty(tx *txn.Tx) bool {
	return e.dirty.IsSet(tx)
}

// MarkClean resets the dirty flag, typically after the index was flushed.
func (e *EntityIndex) MarkClean(tx *txn.Tx) error {
	return e.dirty.SetToFalse(tx)
}
