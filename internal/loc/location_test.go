package loc

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

// TestDescriptorEqualityDistinguishesMode exercises the data model
// invariant (§3): two guest states that must compile to different host
// code have different Descriptors, and two states that can safely share
// host code compile to equal Descriptors.
func TestDescriptorEqualityDistinguishesMode(t *testing.T) {
	base := NewA32(0x1000, false, false, 0, false)
	same := NewA32(0x1000, false, false, 0, false)
	if base != same {
		t.Errorf("identical A32 states produced different descriptors: %v vs %v", base, same)
	}

	thumb := NewA32(0x1000, true, false, 0, false)
	if base == thumb {
		t.Error("ARM and Thumb mode at the same PC must not share a descriptor")
	}

	bigEndian := NewA32(0x1000, false, true, 0, false)
	if base == bigEndian {
		t.Error("differing E-bit must not share a descriptor")
	}

	fpscr := NewA32(0x1000, false, false, 1, false)
	if base == fpscr {
		t.Error("differing FPSCR mode bits must not share a descriptor")
	}

	step := NewA32(0x1000, false, false, 0, true)
	if base == step {
		t.Error("differing single-step flag must not share a descriptor")
	}

	otherPC := NewA32(0x1004, false, false, 0, false)
	if base == otherPC {
		t.Error("differing PC must not share a descriptor")
	}
}

func TestDescriptorA32VsA64Distinct(t *testing.T) {
	a32 := NewA32(0x1000, false, false, 0, false)
	a64 := NewA64(0x1000, 0, false)
	if a32 == a64 {
		t.Error("A32 and A64 descriptors at the numerically same PC must not be equal")
	}
	if a32.ISA() != A32 || a64.ISA() != A64 {
		t.Error("ISA() must round-trip the constructor's ISA")
	}
}

func TestWithPCAndAdvancedByPreserveMode(t *testing.T) {
	d := NewA32(0x2000, true, false, 0x40, false)
	moved := d.WithPC(0x2002)
	if diff := cmp.Diff(d.Flags(), moved.Flags()); diff != "" {
		t.Errorf("WithPC must not change mode flags (-want +got):\n%s", diff)
	}
	if moved.PC() != 0x2002 {
		t.Errorf("WithPC PC = %#x, want 0x2002", moved.PC())
	}

	next := d.AdvancedBy(2)
	if next.PC() != 0x2002 {
		t.Errorf("AdvancedBy(2) PC = %#x, want 0x2002", next.PC())
	}
}

func TestHash64StableAndDistinguishing(t *testing.T) {
	d1 := NewA32(0x4000, false, false, 0, false)
	d2 := NewA32(0x4000, false, false, 0, false)
	if d1.Hash64() != d2.Hash64() {
		t.Error("Hash64 must be stable for equal descriptors")
	}

	d3 := NewA32(0x4004, false, false, 0, false)
	if d1.Hash64() == d3.Hash64() {
		t.Error("Hash64 collided for two descriptors differing only in PC (statistically should not happen for this simple case)")
	}
}

func TestThumbOnlyMeaningfulForA32(t *testing.T) {
	a64 := NewA64(0x8000, 0, false)
	if a64.Thumb() {
		t.Error("A64 descriptors must never report Thumb")
	}
}
