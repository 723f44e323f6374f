package core

import "testing"

func TestPartitionMapAllocateAdvancesIndex(t *testing.T) {
	pm := BootstrapPartitionMap(USER0, 11)
	first, err := pm.Allocate(PartitionUser, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != USER0 {
		t.Fatalf("expected first allocation to be USER0, got %d", first)
	}
	if pm[PartitionUser].Index != USER0+3 {
		t.Fatalf("expected index to advance by 3, got %d", pm[PartitionUser].Index)
	}
}

func TestPartitionMapAllocateUnknownPartition(t *testing.T) {
	pm := BootstrapPartitionMap(USER0, 11)
	if _, err := pm.Allocate(":db.part/nope", 1); err == nil {
		t.Fatalf("expected error allocating from unknown partition")
	}
}

func TestPartitionMapAllocateExhaustion(t *testing.T) {
	pm := PartitionMap{
		PartitionUser: {Start: 0, End: 2, Index: 1},
	}
	if _, err := pm.Allocate(PartitionUser, 5); err == nil {
		t.Fatalf("expected error allocating past partition end")
	}
}

// An entid equal to the next-to-be-allocated index must be rejected, even
// though nothing has formally claimed it yet (spec.md §7, §8 item 6).
func TestPartitionMapIsAllocatedRejectsNextIndex(t *testing.T) {
	pm := BootstrapPartitionMap(USER0, 11)
	next := pm[PartitionUser].Index
	if pm.IsAllocated(next) {
		t.Fatalf("entid %d has not been allocated yet and must report false", next)
	}
	allocated, err := pm.Allocate(PartitionUser, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !pm.IsAllocated(allocated) {
		t.Fatalf("entid %d was just allocated and must report true", allocated)
	}
}

func TestPartitionContainsOnlyAllocatedRange(t *testing.T) {
	p := Partition{Start: 10, End: 100, Index: 20}
	if !p.Contains(10) || !p.Contains(19) {
		t.Fatalf("expected [10, 20) to be contained")
	}
	if p.Contains(20) || p.Contains(9) {
		t.Fatalf("expected 20 (next) and 9 (before start) to be excluded")
	}
}
