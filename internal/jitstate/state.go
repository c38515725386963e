// Package jitstate defines JitState, the process-wide per-CPU struct that
// holds guest architectural state plus host scratch fields, matching the
// data model's JitState. Its byte layout is ABI between emitted host code
// and the dispatcher: offsets are captured once at construction into a
// JitStateInfo and passed to the backend emitter, exactly as the teacher's
// wazevoapi.ModuleContextOffsetData is computed once and threaded through
// backend.Machine so that emitted code references fields only by
// compile-time-known displacement, never by Go struct-field name.
package jitstate

import "unsafe"

// RSBSize is the number of (descriptor, codeptr) slots in the return stack
// buffer. Must be a power of two so RSBPtrMask can mask rsbPtr cheaply.
const RSBSize = 32

// RSBPtrMask masks rsbPtr into range; RSBSize is a power of two so this is
// rsbPtr & (RSBSize-1).
const RSBPtrMask = RSBSize - 1

// SpillCount is the number of fixed spill slots the register allocator may
// use once it runs out of physical registers, per §4.5.
const SpillCount = 32

// RSBEntry is one return-stack-buffer slot: the LocationDescriptor pushed
// by a call-type terminal and the host codeptr it had compiled to at push
// time (0 if not yet compiled).
type RSBEntry struct {
	// DescriptorPacked is loc.Descriptor.Hash64(), not a full Descriptor:
	// emitted code only ever compares this against another packed value or
	// recomputes it from the live descriptor, it never reconstructs a
	// Descriptor from an RSB slot.
	DescriptorPacked uint64
	CodePtr          uintptr
}

// State is the per-instance guest-plus-scratch struct. Field order is
// deliberate: hot fields emitted code touches every block (Regs, flags,
// TicksRemaining, HaltRequested) are grouped first to keep their
// displacements small and to keep them in as few cache lines as possible,
// following the teacher's moduleContext convention of putting hot fields
// before cold ones.
type State struct {
	// Regs holds the 16 A32 GPRs (R0-R15) or, when ISA is A64, the low 32
	// bits of X0-X30 plus SP are accessed through ExtRegs/Regs depending on
	// width; A64 lifting always uses the 64-bit view via ExtRegs64.
	Regs [16]uint32

	// ExtRegs64 holds the 64-bit general-purpose view for A64 (X0-X30, SP)
	// and doubles as scratch for A32 long-multiply results.
	ExtRegs64 [32]uint64

	// ExtRegs holds the vector/FP register file (Q0-Q31 for A64, D0-D31
	// aliased for A32), 128 bits each.
	ExtRegs [32][2]uint64

	// CPSR N/Z/C/V/Q/GE flags, one byte each for cheap emitted
	// compare-and-branch; packed small enough to share a cache line with
	// TicksRemaining.
	FlagN, FlagZ, FlagC, FlagV, FlagQ byte
	GE                                [4]byte

	FPSCR uint32 // A32 FPSCR / A64 FPCR mode+status bits, ISA-interpreted.

	// TicksRemaining is decremented by AddTicks and tested by LinkBlock's
	// remaining-cycles check; it may go negative (a block may overshoot
	// its budget by its own cycle cost before the next check).
	TicksRemaining int64

	// HaltRequested is polled by CheckHalt terminals; set by the
	// embedder's HaltExecution and cleared only by the embedder.
	HaltRequested byte
	// CondFailed is the byte CheckBit(CheckBitCondFailed) tests. Neither
	// emitted code nor the engine writes it; condition folding uses an If
	// terminal instead.
	CondFailed byte

	// PC/ModeDescriptorPacked hold the live guest location on exit, read by
	// the host after Run returns and written by emitted code before any
	// dispatcher-return terminal.
	PC                   uint64
	ModeDescriptorPacked uint64

	// RSB is the return-stack buffer, indexed by RSBPtr&RSBPtrMask.
	RSB    [RSBSize]RSBEntry
	RSBPtr uint32

	// SavedHostMXCSR/SavedHostFPSR snapshot the host FP control register
	// across SwitchFpscrOnEntry/exit so guest FP mode changes never leak
	// into the embedder's own FP state.
	SavedHostMXCSR uint32
	SavedHostFPSR  uint32

	// ExclusiveAddr/ExclusiveValid are laid out in JitState but nothing
	// reads or writes them; exclusive reservations are tracked by the
	// internal/exclusive Monitor.
	ExclusiveAddr  uint64
	ExclusiveValid byte

	// Spills is the fixed-slot spill area the register allocator targets
	// on register-file exhaustion (§4.5); each slot is 16 bytes wide so it
	// can hold either a GPR or the low half of a vector value.
	Spills [SpillCount][2]uint64

	// ProcessorID is copied from Config at construction; exclusive-monitor
	// operations tag their reservation with it.
	ProcessorID uint32
}

// New returns a zeroed State for the given processor id.
func New(processorID uint32) *State {
	return &State{ProcessorID: processorID}
}

// Info captures the byte offsets of every State field emitted code
// addresses, computed once via unsafe.Offsetof at construction and handed
// to the backend so emission routines never hardcode a struct layout that
// could silently drift from this package. Mirrors the teacher's
// wazevoapi.ModuleContextOffsetData / OffsetData pattern exactly.
type Info struct {
	Regs                 uint32
	ExtRegs64            uint32
	ExtRegs              uint32
	FlagN, FlagZ, FlagC, FlagV, FlagQ uint32
	GE                   uint32
	FPSCR                uint32
	TicksRemaining       uint32
	HaltRequested        uint32
	CondFailed           uint32
	PC                   uint32
	ModeDescriptorPacked uint32
	RSB                  uint32
	RSBPtr               uint32
	SavedHostMXCSR       uint32
	SavedHostFPSR        uint32
	ExclusiveAddr        uint32
	ExclusiveValid       uint32
	Spills               uint32
	ProcessorID          uint32

	RSBEntrySize uint32
	SpillSlotSize uint32
}

// NewInfo computes an Info from the real State layout; called exactly once
// by the engine at Jit construction.
func NewInfo() *Info {
	var s State
	base := uintptr(unsafe.Pointer(&s))
	off := func(p unsafe.Pointer) uint32 { return uint32(uintptr(p) - base) }
	return &Info{
		Regs:                 off(unsafe.Pointer(&s.Regs)),
		ExtRegs64:            off(unsafe.Pointer(&s.ExtRegs64)),
		ExtRegs:              off(unsafe.Pointer(&s.ExtRegs)),
		FlagN:                off(unsafe.Pointer(&s.FlagN)),
		FlagZ:                off(unsafe.Pointer(&s.FlagZ)),
		FlagC:                off(unsafe.Pointer(&s.FlagC)),
		FlagV:                off(unsafe.Pointer(&s.FlagV)),
		FlagQ:                off(unsafe.Pointer(&s.FlagQ)),
		GE:                   off(unsafe.Pointer(&s.GE)),
		FPSCR:                off(unsafe.Pointer(&s.FPSCR)),
		TicksRemaining:       off(unsafe.Pointer(&s.TicksRemaining)),
		HaltRequested:        off(unsafe.Pointer(&s.HaltRequested)),
		CondFailed:           off(unsafe.Pointer(&s.CondFailed)),
		PC:                   off(unsafe.Pointer(&s.PC)),
		ModeDescriptorPacked: off(unsafe.Pointer(&s.ModeDescriptorPacked)),
		RSB:                  off(unsafe.Pointer(&s.RSB)),
		RSBPtr:               off(unsafe.Pointer(&s.RSBPtr)),
		SavedHostMXCSR:       off(unsafe.Pointer(&s.SavedHostMXCSR)),
		SavedHostFPSR:        off(unsafe.Pointer(&s.SavedHostFPSR)),
		ExclusiveAddr:        off(unsafe.Pointer(&s.ExclusiveAddr)),
		ExclusiveValid:       off(unsafe.Pointer(&s.ExclusiveValid)),
		Spills:               off(unsafe.Pointer(&s.Spills)),
		ProcessorID:          off(unsafe.Pointer(&s.ProcessorID)),

		RSBEntrySize:  uint32(unsafe.Sizeof(RSBEntry{})),
		SpillSlotSize: 16,
	}
}

// SpillOffset returns the byte offset of spill slot i from the start of
// State, used by the register allocator when it emits a spill/reload.
func (info *Info) SpillOffset(i int) uint32 {
	return info.Spills + uint32(i)*info.SpillSlotSize
}

// RSBOffset returns the byte offset of RSB slot i.
func (info *Info) RSBOffset(i int) uint32 {
	return info.RSB + uint32(i)*info.RSBEntrySize
}
