package engine

import (
	"testing"

	"github.com/rtiangha/dynarmic/internal/loc"
)

func TestFastDispatchMissOnEmptyTable(t *testing.T) {
	table := NewFastDispatchTable()
	d := loc.NewA32(0x1000, false, false, 0, false)
	if _, ok := table.Lookup(d); ok {
		t.Error("Lookup on an empty table must miss")
	}
}

func TestFastDispatchHitAfterUpdate(t *testing.T) {
	table := NewFastDispatchTable()
	d := loc.NewA32(0x1000, false, false, 0, false)
	table.Update(d, 0xdead)
	got, ok := table.Lookup(d)
	if !ok || got != 0xdead {
		t.Errorf("Lookup after Update = (%#x, %v), want (0xdead, true)", got, ok)
	}
}

func TestFastDispatchMissOnDifferentDescriptorAtSameIndex(t *testing.T) {
	table := NewFastDispatchTable()
	d1 := loc.NewA32(0x1000, false, false, 0, false)
	table.Update(d1, 0x1111)

	// A descriptor this table has never seen, built from the table's own
	// capacity, must never be reported as a hit even if it happens to
	// index to the same slot as d1 (it is only a hint: a collision must
	// look like a miss, never a wrong hit).
	d2 := loc.NewA32(0x9999, false, false, 0, false)
	if got, ok := table.Lookup(d2); ok {
		t.Errorf("Lookup(d2) unexpectedly hit with %#x", got)
	}
}

func TestFastDispatchClear(t *testing.T) {
	table := NewFastDispatchTable()
	d := loc.NewA32(0x2000, false, false, 0, false)
	table.Update(d, 0x2222)
	table.Clear()
	if _, ok := table.Lookup(d); ok {
		t.Error("Lookup after Clear must miss")
	}
}

func TestFastDispatchInvalidateSlotOnlyOwnEntry(t *testing.T) {
	table := NewFastDispatchTable()
	d := loc.NewA32(0x3000, false, false, 0, false)
	table.Update(d, 0x3333)

	other := loc.NewA32(0x4000, false, false, 0, false)
	// InvalidateSlot for a descriptor that was never installed must be a
	// no-op and must not disturb d's entry.
	table.InvalidateSlot(other)
	if got, ok := table.Lookup(d); !ok || got != 0x3333 {
		t.Error("InvalidateSlot(other) must not evict an unrelated occupant")
	}

	table.InvalidateSlot(d)
	if _, ok := table.Lookup(d); ok {
		t.Error("InvalidateSlot(d) must evict d's own entry")
	}
}

func TestFastDispatchUpdateOverwritesOnCollision(t *testing.T) {
	table := NewFastDispatchTable()
	d1 := loc.NewA32(0x1000, false, false, 0, false)
	table.Update(d1, 0x1111)
	d2 := loc.NewA32(0x5000, false, false, 0, false)
	table.Update(d2, 0x2222)

	// Whichever of d1/d2 now occupies d2's slot, the table never probes;
	// a later lookup of d1 must report a miss if d2 overwrote its slot, and
	// a hit otherwise -- the contract that must hold regardless is that
	// Lookup never returns a codeptr for a descriptor it wasn't given.
	if got, ok := table.Lookup(d1); ok && got != 0x1111 {
		t.Errorf("Lookup(d1) returned a codeptr belonging to neither Update: %#x", got)
	}
	if got, ok := table.Lookup(d2); !ok || got != 0x2222 {
		t.Errorf("Lookup(d2) = (%#x, %v), want (0x2222, true)", got, ok)
	}
}
