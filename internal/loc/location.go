// Package loc defines LocationDescriptor, the opaque key that identifies a
// unique guest execution state for the purposes of code caching.
package loc

import "fmt"

// ISA identifies which guest instruction set a Descriptor was lifted from.
// A single Descriptor never mixes ISAs; the pipeline never translates a
// block whose instructions span more than one ISA.
type ISA uint8

const (
	// A32 is the 32-bit ARM instruction set (including its Thumb encoding,
	// distinguished by the T-bit carried in the Descriptor itself).
	A32 ISA = iota
	// A64 is the 64-bit ARM instruction set.
	A64
)

func (s ISA) String() string {
	switch s {
	case A32:
		return "A32"
	case A64:
		return "A64"
	default:
		return "unknown"
	}
}

// Descriptor uniquely identifies a guest execution mode: the program counter
// plus every architectural bit that changes codegen for the instructions at
// that PC. Two guest states that must compile to different host code have
// different Descriptors; two states that can safely share host code compile
// to equal Descriptors. Descriptor is a value type: comparable with ==, safe
// to use as a map key, and cheap to copy.
//
// Layout: a struct of the guest PC plus a Flags value holding the ISA and
// mode flags; no flag is packed into the PC's bits.
type Descriptor struct {
	// pc is the guest program counter. For A32 the low bit doubles as the
	// Thumb (T) bit per the architectural convention that BX/BLX targets
	// encode mode in bit 0; this descriptor stores T separately in flags
	// and stores pc exactly as given, without aligning it.
	pc uint64
	// flags packs the remaining mode bits that affect codegen.
	flags Flags
}

// Flags packs the non-PC architectural bits that select a codegen variant.
type Flags struct {
	ISA ISA
	// TFlag is the A32 Thumb-mode bit. Always false for A64.
	TFlag bool
	// EFlag is the A32 big-endian-mode (SETEND) bit.
	EFlag bool
	// FPBitsA32 carries the FPSCR rounding-mode/vector-length bits that
	// affect floating point codegen for A32; FPBitsA64 is the FPCR
	// equivalent for A64. Exactly one is meaningful per ISA.
	FPBitsA32 uint32
	FPBitsA64 uint32
	// SingleStep, when set, causes every lifted block to be exactly one
	// instruction long and end in a forced exit, used for Jit.Step.
	SingleStep bool
}

// NewA32 builds a Descriptor for an A32/Thumb guest state.
func NewA32(pc uint32, thumb, bigEndian bool, fpscrModeBits uint32, singleStep bool) Descriptor {
	return Descriptor{
		pc: uint64(pc),
		flags: Flags{
			ISA:       A32,
			TFlag:     thumb,
			EFlag:     bigEndian,
			FPBitsA32: fpscrModeBits,
			SingleStep: singleStep,
		},
	}
}

// NewA64 builds a Descriptor for an A64 guest state.
func NewA64(pc uint64, fpcrModeBits uint32, singleStep bool) Descriptor {
	return Descriptor{
		pc: pc,
		flags: Flags{
			ISA:        A64,
			FPBitsA64:  fpcrModeBits,
			SingleStep: singleStep,
		},
	}
}

// PC returns the guest program counter this Descriptor was built from. For
// A32 the returned value never carries the T-bit; use Thumb to query it.
func (d Descriptor) PC() uint64 { return d.pc }

// Thumb reports whether this is an A32 Thumb-mode Descriptor.
func (d Descriptor) Thumb() bool { return d.flags.ISA == A32 && d.flags.TFlag }

// ISA returns which guest instruction set this Descriptor belongs to.
func (d Descriptor) ISA() ISA { return d.flags.ISA }

// SingleStep reports whether this Descriptor forces one-instruction blocks.
func (d Descriptor) SingleStep() bool { return d.flags.SingleStep }

// Flags returns the full mode-flags bundle.
func (d Descriptor) Flags() Flags { return d.flags }

// WithPC returns a copy of d with a different PC but identical mode flags;
// used by the lifter when it advances within a block without a mode change.
func (d Descriptor) WithPC(pc uint64) Descriptor {
	d2 := d
	d2.pc = pc
	return d2
}

// AdvancedBy returns the Descriptor for the next instruction, honoring the
// instruction width implied by the current mode (2 bytes in Thumb, 4
// otherwise).
func (d Descriptor) AdvancedBy(instrBytes uint64) Descriptor {
	return d.WithPC(d.pc + instrBytes)
}

// String implements fmt.Stringer for debug/log output.
func (d Descriptor) String() string {
	switch d.flags.ISA {
	case A32:
		mode := "ARM"
		if d.flags.TFlag {
			mode = "Thumb"
		}
		return fmt.Sprintf("A32:%#08x[%s,E=%v,fpscr=%#x,step=%v]",
			d.pc, mode, d.flags.EFlag, d.flags.FPBitsA32, d.flags.SingleStep)
	case A64:
		return fmt.Sprintf("A64:%#016x[fpcr=%#x,step=%v]", d.pc, d.flags.FPBitsA64, d.flags.SingleStep)
	default:
		return fmt.Sprintf("?:%#x", d.pc)
	}
}

// packed returns a single uint64 combining pc and a hash of flags, used as a
// fast map/FastDispatchTable key component without requiring Descriptor
// itself (a non-comparable-by-hardware struct) to be hashed field by field
// on every lookup.
func (d Descriptor) packed() uint64 {
	var fl uint64
	fl |= uint64(d.flags.ISA) << 0
	if d.flags.TFlag {
		fl |= 1 << 2
	}
	if d.flags.EFlag {
		fl |= 1 << 3
	}
	if d.flags.SingleStep {
		fl |= 1 << 4
	}
	fl |= uint64(d.flags.FPBitsA32) << 8
	fl |= uint64(d.flags.FPBitsA64) << 8
	// Mix the PC in; a simple multiplicative mix is enough since this value
	// only feeds CRC32/hash-table indexing, never equality (Go's built-in
	// struct equality on Descriptor is what == and map keys actually use).
	return d.pc*0x9E3779B97F4A7C15 ^ fl
}

// Hash64 returns a 64-bit hash suitable for the FastDispatchTable's CRC32
// step (CRC32 is computed over this value's bytes) and for any other
// approximate bucketing the dispatcher needs; it is not used for equality.
func (d Descriptor) Hash64() uint64 { return d.packed() }
