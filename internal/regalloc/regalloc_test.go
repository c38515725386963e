package regalloc

import "testing"

func slots(i int) uint32 { return uint32(i * 16) }

func TestDefineAndRequestRoundTrip(t *testing.T) {
	a := New(2, 2, slots, 4)
	reg, events, err := a.DefineValue(1, ClassGPR)
	if err != nil || len(events) != 0 {
		t.Fatalf("DefineValue: reg=%v events=%v err=%v", reg, events, err)
	}
	got, events, err := a.Request(1, UseGpr)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if got != reg {
		t.Fatalf("Request returned %d, want %d", got, reg)
	}
	if len(events) != 0 {
		t.Fatalf("unexpected spill events on a resident value: %v", events)
	}
}

func TestSpillOnExhaustionEvictsLRU(t *testing.T) {
	a := New(2, 2, slots, 4)
	r0, _, _ := a.DefineValue(1, ClassGPR)
	r1, _, _ := a.DefineValue(2, ClassGPR)
	if r0 == r1 {
		t.Fatalf("expected distinct registers, got %d twice", r0)
	}
	// Touch value 2 again so value 1 becomes the LRU occupant.
	if _, _, err := a.Request(2, UseGpr); err != nil {
		t.Fatal(err)
	}
	// Defining a third value with both registers full must evict value 1.
	_, events, err := a.DefineValue(3, ClassGPR)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Evicted != 1 || events[0].Kind != SpillKindSpill {
		t.Fatalf("expected value 1 spilled, got %+v", events)
	}
	// Requesting value 1 again must reload it.
	_, events, err = a.Request(1, UseGpr)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) == 0 || events[len(events)-1].Kind != SpillKindReload {
		t.Fatalf("expected a reload event, got %+v", events)
	}
}

func TestReleaseFreesRegister(t *testing.T) {
	a := New(1, 1, slots, 2)
	if _, _, err := a.DefineValue(1, ClassGPR); err != nil {
		t.Fatal(err)
	}
	a.EndOfAllocScope([]ValueKey{1})
	if _, _, err := a.DefineValue(2, ClassGPR); err != nil {
		t.Fatalf("expected register to be free after release: %v", err)
	}
	a.EndOfAllocScope([]ValueKey{2})
	a.AssertNoMoreUses()
}

func TestAssertNoMoreUsesPanicsOnLeak(t *testing.T) {
	a := New(1, 1, slots, 2)
	a.DefineValue(1, ClassGPR)
	defer func() {
		if recover() == nil {
			t.Fatal("expected AssertNoMoreUses to panic on a live leak")
		}
	}()
	a.AssertNoMoreUses()
}

func TestClobberedRegistersTracksEveryAssignedRegister(t *testing.T) {
	a := New(2, 1, slots, 2)
	r0, _, _ := a.DefineValue(1, ClassGPR)
	r1, _, _ := a.DefineValue(2, ClassGPR)
	_, _, err := a.Request(3, ScratchFpr)
	if err != nil {
		t.Fatal(err)
	}

	gprs := a.ClobberedRegisters(ClassGPR)
	if len(gprs) != 2 {
		t.Fatalf("ClobberedRegisters(GPR) = %v, want both %d and %d", gprs, r0, r1)
	}
	if len(a.ClobberedRegisters(ClassFPR)) != 1 {
		t.Fatalf("ClobberedRegisters(FPR) = %v, want exactly one entry", a.ClobberedRegisters(ClassFPR))
	}
}

func TestResetClearsAllocatorState(t *testing.T) {
	a := New(1, 1, slots, 2)
	a.DefineValue(1, ClassGPR)
	a.DefineValue(2, ClassFPR)

	a.Reset()

	if got := a.ClobberedRegisters(ClassGPR); len(got) != 0 {
		t.Errorf("ClobberedRegisters(GPR) after Reset = %v, want none", got)
	}
	if got := a.ClobberedRegisters(ClassFPR); len(got) != 0 {
		t.Errorf("ClobberedRegisters(FPR) after Reset = %v, want none", got)
	}
	// A value defined before Reset must not still occupy a register.
	if _, _, err := a.DefineValue(1, ClassGPR); err != nil {
		t.Fatalf("DefineValue after Reset should find a free register: %v", err)
	}
	a.EndOfAllocScope([]ValueKey{1})
	a.AssertNoMoreUses()
}

func TestPinForHostCallEvictsOccupant(t *testing.T) {
	a := New(2, 0, slots, 2)
	a.DefineValue(1, ClassGPR) // takes reg 0
	a.DefineValue(2, ClassGPR) // takes reg 1
	events, err := a.PinForHostCall(3, ClassGPR, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Evicted != 1 {
		t.Fatalf("expected value 1 spilled out of reg 0, got %+v", events)
	}
	got, _, err := a.Request(3, UseGpr)
	if err != nil || got != 0 {
		t.Fatalf("value 3 should be pinned to reg 0: got=%d err=%v", got, err)
	}
}
