package jitstate

import "testing"

// TestNewInfoOffsetsAreDistinct guards the ABI invariant this package
// documents: every field backend emitters address by offset must resolve to
// a genuinely distinct byte range, or two unrelated fields would silently
// alias in emitted code.
func TestNewInfoOffsetsAreDistinct(t *testing.T) {
	info := NewInfo()
	named := map[string]uint32{
		"Regs": info.Regs, "ExtRegs64": info.ExtRegs64, "ExtRegs": info.ExtRegs,
		"FlagN": info.FlagN, "FlagZ": info.FlagZ, "FlagC": info.FlagC, "FlagV": info.FlagV, "FlagQ": info.FlagQ,
		"GE": info.GE, "FPSCR": info.FPSCR, "TicksRemaining": info.TicksRemaining,
		"HaltRequested": info.HaltRequested, "CondFailed": info.CondFailed,
		"PC": info.PC, "ModeDescriptorPacked": info.ModeDescriptorPacked,
		"RSB": info.RSB, "RSBPtr": info.RSBPtr,
		"SavedHostMXCSR": info.SavedHostMXCSR, "SavedHostFPSR": info.SavedHostFPSR,
		"ExclusiveAddr": info.ExclusiveAddr, "ExclusiveValid": info.ExclusiveValid,
		"Spills": info.Spills, "ProcessorID": info.ProcessorID,
	}
	seen := make(map[uint32]string, len(named))
	for name, off := range named {
		if other, ok := seen[off]; ok {
			t.Errorf("offset %d shared by both %s and %s", off, name, other)
		}
		seen[off] = name
	}
}

// TestSpillOffsetAndRSBOffsetAreMonotonic ensures successive slots land at
// increasing, non-overlapping offsets.
func TestSpillOffsetAndRSBOffsetAreMonotonic(t *testing.T) {
	info := NewInfo()

	for i := 0; i < SpillCount-1; i++ {
		if got, want := info.SpillOffset(i+1), info.SpillOffset(i)+info.SpillSlotSize; got != want {
			t.Fatalf("SpillOffset(%d) = %d, want %d", i+1, got, want)
		}
	}
	for i := 0; i < RSBSize-1; i++ {
		if got, want := info.RSBOffset(i+1), info.RSBOffset(i)+info.RSBEntrySize; got != want {
			t.Fatalf("RSBOffset(%d) = %d, want %d", i+1, got, want)
		}
	}
}

// TestNewSetsProcessorID covers the only field New populates explicitly.
func TestNewSetsProcessorID(t *testing.T) {
	s := New(7)
	if s.ProcessorID != 7 {
		t.Errorf("ProcessorID = %d, want 7", s.ProcessorID)
	}
	if s.TicksRemaining != 0 || s.HaltRequested != 0 {
		t.Error("New must otherwise return a zeroed State")
	}
}
