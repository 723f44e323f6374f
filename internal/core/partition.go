package core

import "fmt"

// Well-known partition names (spec.md §3, Glossary).
const (
	PartitionDB   = ":db.part/db"
	PartitionUser = ":db.part/user"
	PartitionTx   = ":db.part/tx"
)

// USER0 is the first entid of the user partition in a freshly bootstrapped
// store, matching the mentat constant of the same name exercised by the
// S1-S6 scenarios in spec.md §8.
const USER0 Entid = 0x10000000

// TX0 is the first entid of the tx partition in a freshly bootstrapped store.
const TX0 Entid = 0x10000000

// Partition is a named, bounded range of entid space with a monotone
// next-allocation cursor (spec.md Glossary).
type Partition struct {
	Start Entid
	End   Entid
	Index Entid
}

// Contains reports whether e falls within the partition's allocated range,
// i.e. has already been handed out ([Start, Index)).
func (p Partition) Contains(e Entid) bool {
	return e >= p.Start && e < p.Index
}

// PartitionMap maps partition name to its Partition. It is copied by value
// into each InProgress (spec.md §4.1) and replaced wholesale on commit.
type PartitionMap map[string]Partition

// Clone returns an independent copy of the map, since Go maps are reference
// types and a shallow assignment would alias the Connection's shared state.
func (pm PartitionMap) Clone() PartitionMap {
	out := make(PartitionMap, len(pm))
	for k, v := range pm {
		out[k] = v
	}
	return out
}

// Allocate reserves n consecutive entids from the named partition,
// returning the first allocated entid and advancing the partition's index.
// It enforces the partition-advance discipline (spec.md §3 invariants):
// index never goes below start or above end.
func (pm PartitionMap) Allocate(partition string, n int) (Entid, error) {
	if n < 0 {
		return 0, fmt.Errorf("cannot allocate a negative count from partition %s", partition)
	}
	p, ok := pm[partition]
	if !ok {
		return 0, fmt.Errorf("unknown partition %s", partition)
	}
	first := p.Index
	next := p.Index + Entid(n)
	if next > p.End || next < p.Start {
		return 0, fmt.Errorf("partition %s exhausted: cannot allocate %d more from index %d (end %d)", partition, n, p.Index, p.End)
	}
	p.Index = next
	pm[partition] = p
	return first, nil
}

// IsAllocated reports whether e lies within an already-allocated region of
// any partition in the map. A user-supplied entid that fails this check is
// rejected with UnrecognizedEntid (spec.md §7, §8 item 6), even when it
// equals the index that would be allocated next.
func (pm PartitionMap) IsAllocated(e Entid) bool {
	for _, p := range pm {
		if p.Contains(e) {
			return true
		}
	}
	return false
}

// Equal reports whether two partition maps have identical entries.
func (pm PartitionMap) Equal(other PartitionMap) bool {
	if len(pm) != len(other) {
		return false
	}
	for k, v := range pm {
		ov, ok := other[k]
		if !ok || ov != v {
			return false
		}
	}
	return true
}

// BootstrapPartitionMap returns the partition map installed by a fresh
// store: :db.part/db holds the low, pre-bootstrapped entids; :db.part/user
// starts at USER0; :db.part/tx starts at TX0. dbEnd and dbIndex describe
// how far the bootstrap process has already advanced :db.part/db (entids 0
// through dbIndex-1 are taken by bootstrap attributes and idents).
func BootstrapPartitionMap(dbEnd, dbIndex Entid) PartitionMap {
	return PartitionMap{
		PartitionDB:   {Start: 0, End: dbEnd, Index: dbIndex},
		PartitionUser: {Start: USER0, End: USER0 + 0x10000000, Index: USER0},
		PartitionTx:   {Start: TX0, End: TX0 + 0x10000000, Index: TX0},
	}
}
