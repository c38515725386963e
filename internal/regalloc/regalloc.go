// Package regalloc implements the linear, SSA-aware register allocator of
// spec.md §4.5. Unlike the teacher's internal/engine/wazevo/backend/regalloc
// package (which performs interval-tree-based allocation across a whole
// function's CFG of Blocks, see regalloc/intervals.go and coloring.go),
// this allocator works over one guest Block at a time: a Block never
// branches internally (control flow is expressed entirely through its
// Terminal, per internal/ir.Block's doc comment), so values are live over a
// single linear instruction sequence and a simple LRU spill policy
// suffices without interval trees. The VReg/RealReg naming is carried over
// from the teacher (internal/engine/wazevo/backend/regalloc/reg.go) because
// it is the idiomatic vocabulary for this exact problem.
package regalloc

import "fmt"

// RegClass distinguishes the two register files spec.md §4.5 names.
type RegClass byte

const (
	ClassGPR RegClass = iota
	ClassFPR
)

func (c RegClass) String() string {
	if c == ClassGPR {
		return "gpr"
	}
	return "fpr"
}

// RealReg is a physical register index within its class; its meaning
// (which ISA register it names) is defined by the embedding isa package.
type RealReg uint8

// RealRegInvalid marks "not yet assigned" / "spilled, no register".
const RealRegInvalid RealReg = 0xff

// Policy is the per-argument allocation request an emission routine makes
// for one IR value, per §4.5's five-plus-HostCall policy list.
type Policy byte

const (
	// UseGpr requests the GPR currently holding a live value for reading.
	UseGpr Policy = iota
	// UseScratchGpr is the same read but permits the emission routine to
	// clobber the register in place (e.g. an in-place shift).
	UseScratchGpr
	// ScratchGpr requests any free GPR with an undefined initial value.
	ScratchGpr
	UseFpr
	UseScratchFpr
	ScratchFpr
	// HostCall pins the argument to the ABI-mandated register for an
	// imminent host call, spilling whatever else currently lives there.
	HostCall
)

func (p Policy) class() RegClass {
	switch p {
	case UseFpr, UseScratchFpr, ScratchFpr:
		return ClassFPR
	default:
		return ClassGPR
	}
}

// ValueKey identifies the SSA value being allocated for; callers pass
// ir.Value.ID() (kept as a bare uint32 here so this package has no import
// dependency on internal/ir, matching the teacher's regalloc package
// depending only on ssa.Value's integer identity, not the full ssa
// package, for exactly this reason - see regalloc/api.go's Function
// interface taking ssa-free Block/Instr abstractions).
type ValueKey uint32

// SpillSlots abstracts the fixed JitState spill area so this package does
// not need to import internal/jitstate; the engine wires
// jitstate.Info.SpillOffset in as this function.
type SpillSlots func(slot int) (byteOffset uint32)

// Allocator tracks live-value-to-register assignments for a single Block's
// linear emission pass.
type Allocator struct {
	numGPR, numFPR int
	spillSlots     SpillSlots
	numSpillSlots  int

	// residency[class][reg] is the ValueKey currently live in that
	// physical register, or keyInvalid if free.
	residency [2][]ValueKey
	// location maps a live value to where it lives: either a register
	// (reg valid) or a spill slot index (spillIdx >= 0).
	location map[ValueKey]loc

	// lru records recency of use per class, back = most recently used;
	// the front of the slice is the spill candidate, matching §4.5
	// "least-recently-used live values spill".
	lru [2][]RealReg

	freeSpillSlots []int

	// clobbered records every physical register this allocation pass
	// assigned at least once, for ClobberedRegisters-style prologue/
	// epilogue save-set computation (the dispatcher prologue/epilogue is
	// hand-written per §4.6, so this is consulted only for documentation/
	// assertions, not codegen, but is kept for parity with the teacher's
	// Function.ClobberedRegisters contract).
	clobbered [2]map[RealReg]bool
}

type loc struct {
	reg      RealReg
	class    RegClass
	spillIdx int // -1 when reg is valid
}

const keyInvalid ValueKey = 0xffffffff

// New constructs an Allocator over numGPR general-purpose and numFPR
// vector/FP physical registers, spilling to slots resolved through
// slots, of which there are numSpillSlots.
func New(numGPR, numFPR int, slots SpillSlots, numSpillSlots int) *Allocator {
	a := &Allocator{
		numGPR: numGPR, numFPR: numFPR,
		spillSlots: slots, numSpillSlots: numSpillSlots,
		location: make(map[ValueKey]loc),
	}
	a.residency[ClassGPR] = make([]ValueKey, numGPR)
	a.residency[ClassFPR] = make([]ValueKey, numFPR)
	for i := range a.residency[ClassGPR] {
		a.residency[ClassGPR][i] = keyInvalid
	}
	for i := range a.residency[ClassFPR] {
		a.residency[ClassFPR][i] = keyInvalid
	}
	a.clobbered[ClassGPR] = map[RealReg]bool{}
	a.clobbered[ClassFPR] = map[RealReg]bool{}
	for i := 0; i < numSpillSlots; i++ {
		a.freeSpillSlots = append(a.freeSpillSlots, i)
	}
	return a
}

// SpillEvent is emitted by Request/DefineValue when satisfying a request
// required evicting a live value; the Machine's caller turns this into an
// actual store/load instruction pair. Events are returned in the order
// they must be emitted (spill before any subsequent reload of the evictee
// at its next use, which the caller handles by re-requesting it).
type SpillEvent struct {
	// Evicted is the value moved from a register to a spill slot (Kind ==
	// Spill) or from a slot back to a register (Kind == Reload).
	Evicted  ValueKey
	Kind     SpillKind
	Reg      RealReg
	Class    RegClass
	SpillOff uint32
}

type SpillKind byte

const (
	SpillKindSpill SpillKind = iota
	SpillKindReload
)

// touch marks reg most-recently-used within its class.
func (a *Allocator) touch(class RegClass, reg RealReg) {
	lru := a.lru[class]
	for i, r := range lru {
		if r == reg {
			lru = append(lru[:i], lru[i+1:]...)
			break
		}
	}
	a.lru[class] = append(lru, reg)
}

// evictLRU picks the least-recently-used occupied register in class and
// returns the eviction event, spilling its value to a fresh slot.
func (a *Allocator) evictLRU(class RegClass) (SpillEvent, error) {
	lru := a.lru[class]
	for i, reg := range lru {
		key := a.residency[class][reg]
		if key == keyInvalid {
			continue
		}
		if len(a.freeSpillSlots) == 0 {
			return SpillEvent{}, fmt.Errorf("regalloc: spill slots exhausted (class %s)", class)
		}
		slot := a.freeSpillSlots[len(a.freeSpillSlots)-1]
		a.freeSpillSlots = a.freeSpillSlots[:len(a.freeSpillSlots)-1]

		a.residency[class][reg] = keyInvalid
		a.location[key] = loc{spillIdx: slot}
		a.lru[class] = append(lru[:i], lru[i+1:]...)

		return SpillEvent{
			Evicted: key, Kind: SpillKindSpill, Reg: reg, Class: class,
			SpillOff: a.spillSlots(slot),
		}, nil
	}
	return SpillEvent{}, fmt.Errorf("regalloc: no occupied register to evict in class %s", class)
}

// allocFreeOrEvict returns a free register in class, evicting the LRU
// occupant if none is free, appending any eviction to events.
func (a *Allocator) allocFreeOrEvict(class RegClass, events *[]SpillEvent) (RealReg, error) {
	residency := a.residency[class]
	for i, key := range residency {
		if key == keyInvalid {
			return RealReg(i), nil
		}
	}
	ev, err := a.evictLRU(class)
	if err != nil {
		return RealRegInvalid, err
	}
	*events = append(*events, ev)
	return ev.Reg, nil
}

// DefineValue records that value now lives in a freshly allocated register
// of the given class, evicting via LRU if the class is full.
func (a *Allocator) DefineValue(value ValueKey, class RegClass) (RealReg, []SpillEvent, error) {
	var events []SpillEvent
	reg, err := a.allocFreeOrEvict(class, &events)
	if err != nil {
		return RealRegInvalid, events, err
	}
	a.residency[class][reg] = value
	a.location[value] = loc{reg: reg, class: class, spillIdx: -1}
	a.clobbered[class][reg] = true
	a.touch(class, reg)
	return reg, events, nil
}

// Request satisfies a Policy for value, returning the physical register it
// now lives in (reloading from its spill slot first if needed) plus any
// spill/reload events the caller must emit before using the returned
// register.
func (a *Allocator) Request(value ValueKey, p Policy) (RealReg, []SpillEvent, error) {
	class := p.class()
	var events []SpillEvent

	switch p {
	case ScratchGpr, ScratchFpr:
		reg, err := a.allocFreeOrEvict(class, &events)
		if err != nil {
			return RealRegInvalid, events, err
		}
		a.clobbered[class][reg] = true
		a.touch(class, reg)
		return reg, events, nil
	}

	l, ok := a.location[value]
	if !ok {
		return RealRegInvalid, events, fmt.Errorf("regalloc: value %d has no recorded location", value)
	}
	if l.spillIdx < 0 {
		a.touch(class, l.reg)
		a.clobbered[class][l.reg] = true
		return l.reg, events, nil
	}

	// Reload: find or make room for it, then pop the slot.
	reg, err := a.allocFreeOrEvict(class, &events)
	if err != nil {
		return RealRegInvalid, events, err
	}
	events = append(events, SpillEvent{
		Evicted: value, Kind: SpillKindReload, Reg: reg, Class: class,
		SpillOff: a.spillSlots(l.spillIdx),
	})
	a.freeSpillSlots = append(a.freeSpillSlots, l.spillIdx)
	a.residency[class][reg] = value
	a.location[value] = loc{reg: reg, class: class, spillIdx: -1}
	a.clobbered[class][reg] = true
	a.touch(class, reg)
	return reg, events, nil
}

// Release frees value's register/slot immediately, used by
// EndOfAllocScope for values the caller has determined are dead.
func (a *Allocator) Release(value ValueKey) {
	l, ok := a.location[value]
	if !ok {
		return
	}
	delete(a.location, value)
	if l.spillIdx >= 0 {
		a.freeSpillSlots = append(a.freeSpillSlots, l.spillIdx)
		return
	}
	a.residency[l.class][l.reg] = keyInvalid
}

// EndOfAllocScope releases every value in dead, called after each IR inst
// per §4.5 ("EndOfAllocScope is called after each IR inst to release
// temporaries that are dead after that point").
func (a *Allocator) EndOfAllocScope(dead []ValueKey) {
	for _, v := range dead {
		a.Release(v)
	}
}

// PinForHostCall evicts whatever currently occupies want (a physical
// register the ABI mandates for an imminent call argument) so value can be
// moved into it, satisfying §4.5's HostCall invariant that caller-saved
// registers holding still-live values are spilled before any HostCall.
func (a *Allocator) PinForHostCall(value ValueKey, class RegClass, want RealReg) ([]SpillEvent, error) {
	var events []SpillEvent
	if occupant := a.residency[class][want]; occupant != keyInvalid && occupant != value {
		if len(a.freeSpillSlots) == 0 {
			return nil, fmt.Errorf("regalloc: spill slots exhausted pinning host-call register")
		}
		slot := a.freeSpillSlots[len(a.freeSpillSlots)-1]
		a.freeSpillSlots = a.freeSpillSlots[:len(a.freeSpillSlots)-1]
		a.location[occupant] = loc{spillIdx: slot}
		events = append(events, SpillEvent{
			Evicted: occupant, Kind: SpillKindSpill, Reg: want, Class: class,
			SpillOff: a.spillSlots(slot),
		})
	}
	if l, ok := a.location[value]; ok && l.spillIdx >= 0 {
		a.freeSpillSlots = append(a.freeSpillSlots, l.spillIdx)
	}
	a.residency[class][want] = value
	a.location[value] = loc{reg: want, class: class, spillIdx: -1}
	a.clobbered[class][want] = true
	a.touch(class, want)
	return events, nil
}

// AssertNoMoreUses panics if any value remains resident at block end,
// catching allocator leaks per §4.5's invariant. Called once by the
// Machine after lowering a Block's last Inst and Terminal.
func (a *Allocator) AssertNoMoreUses() {
	if len(a.location) != 0 {
		panic(fmt.Sprintf("regalloc: %d value(s) still resident at end of block: %v", len(a.location), a.location))
	}
}

// ClobberedRegisters returns every physical register this pass assigned at
// least once, per class.
func (a *Allocator) ClobberedRegisters(class RegClass) []RealReg {
	var out []RealReg
	for r := range a.clobbered[class] {
		out = append(out, r)
	}
	return out
}

// Reset clears all allocator state so the same Allocator instance can be
// reused to compile the next Block without a fresh heap allocation.
func (a *Allocator) Reset() {
	for i := range a.residency[ClassGPR] {
		a.residency[ClassGPR][i] = keyInvalid
	}
	for i := range a.residency[ClassFPR] {
		a.residency[ClassFPR][i] = keyInvalid
	}
	a.lru[ClassGPR] = a.lru[ClassGPR][:0]
	a.lru[ClassFPR] = a.lru[ClassFPR][:0]
	for k := range a.location {
		delete(a.location, k)
	}
	a.freeSpillSlots = a.freeSpillSlots[:0]
	for i := 0; i < a.numSpillSlots; i++ {
		a.freeSpillSlots = append(a.freeSpillSlots, i)
	}
	for k := range a.clobbered[ClassGPR] {
		delete(a.clobbered[ClassGPR], k)
	}
	for k := range a.clobbered[ClassFPR] {
		delete(a.clobbered[ClassFPR], k)
	}
}
