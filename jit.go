package dynarmic

import (
	"fmt"

	"github.com/rtiangha/dynarmic/internal/engine"
	"github.com/rtiangha/dynarmic/internal/loc"
)

// ISA selects which guest instruction set a Jit instance is currently
// decoding, re-exported from internal/loc.
type ISA = loc.ISA

const (
	A32 = loc.A32
	A64 = loc.A64
)

// RunResult reports why Run or Step returned control to the caller,
// re-exported from internal/engine.
type RunResult = engine.RunResult

const (
	RunHalted          = engine.RunHalted
	RunCyclesExhausted = engine.RunCyclesExhausted
	RunStepped         = engine.RunStepped
)

// Jit is one runnable guest CPU instance: a compiled-block cache, a
// JitState, and the current guest execution mode, per spec.md §6's facade.
// A Jit is not safe for concurrent use by multiple goroutines (§5:
// "compilation, dispatch, and emitted guest execution all run on the
// caller thread").
type Jit struct {
	eng *engine.Engine

	isa                loc.ISA
	thumb, bigEndian   bool
	singleStep         bool
	alwaysLittleEndian bool
}

// NewJit constructs a Jit from cfg. Returns an error if a required callback
// is missing or the host code arena could not be reserved.
func NewJit(cfg Config) (*Jit, error) {
	eng, err := engine.New(cfg.toEngineConfig())
	if err != nil {
		return nil, fmt.Errorf("dynarmic: %w", err)
	}
	return &Jit{
		eng:                eng,
		isa:                A32,
		alwaysLittleEndian: cfg.AlwaysLittleEndian,
	}, nil
}

// Close releases the Jit's host code arena. The Jit must not be used
// afterwards.
func (j *Jit) Close() error { return j.eng.Close() }

// SetISA switches which guest instruction set subsequent Run/Step calls
// decode at the current PC; A64 ignores the Thumb/big-endian mode bits.
func (j *Jit) SetISA(isa ISA) { j.isa = isa }

// SetThumb toggles A32 Thumb-mode decoding; ignored when the current ISA is
// A64.
func (j *Jit) SetThumb(thumb bool) { j.thumb = thumb }

// SetBigEndian toggles the A32 SETEND big-endian mode bit; ignored if
// Config.AlwaysLittleEndian was set or the current ISA is A64.
func (j *Jit) SetBigEndian(bigEndian bool) { j.bigEndian = bigEndian }

// SetSingleStep forces every subsequently compiled block to be exactly one
// guest instruction long, used by Step.
func (j *Jit) SetSingleStep(step bool) { j.singleStep = step }

// PC returns the guest program counter execution will next resume at.
func (j *Jit) PC() uint64 { return j.eng.State().PC }

// SetPC retargets execution to pc without otherwise touching guest state,
// e.g. after the embedder resolves an indirect branch itself.
func (j *Jit) SetPC(pc uint64) { j.eng.State().PC = pc }

func (j *Jit) descriptor() loc.Descriptor {
	s := j.eng.State()
	if j.isa == A64 {
		return loc.NewA64(s.PC, s.FPSCR, j.singleStep)
	}
	bigEndian := j.bigEndian && !j.alwaysLittleEndian
	return loc.NewA32(uint32(s.PC), j.thumb, bigEndian, s.FPSCR, j.singleStep)
}

// Run drives guest execution from the current PC until halted or out of
// cycles, compiling blocks on demand.
func (j *Jit) Run() RunResult {
	next, result := j.eng.Run(j.descriptor())
	j.eng.State().PC = next.PC()
	return result
}

// Step executes exactly one guest instruction at the current PC.
func (j *Jit) Step() RunResult {
	next, result := j.eng.Step(j.descriptor())
	j.eng.State().PC = next.PC()
	return result
}

// HaltExecution requests that the running or next Run call return as soon
// as the current block reaches its next CheckHalt terminal.
func (j *Jit) HaltExecution() { j.eng.HaltExecution() }

// ClearHalt clears a previously requested halt.
func (j *Jit) ClearHalt() { j.eng.ClearHalt() }

// ClearCache empties the compiled-block cache, the fast-dispatch hint
// table, and rewinds the host code arena.
func (j *Jit) ClearCache() { j.eng.ClearCache() }

// InvalidateCacheRange invalidates every compiled block overlapping the
// guest address range [start, start+length), per §4.7's SMC contract. The
// translator does not track guest code writes by itself: the host calls
// this for every write to guest code, including writes the guest performs
// through the memory-write callbacks.
func (j *Jit) InvalidateCacheRange(start, length uint64) error {
	return j.eng.InvalidateCacheRange(start, length)
}

// Regs returns the live A32 general-purpose register file (R0-R15); index
// 15 aliases PC but is not kept in sync with it between Run/Step calls, so
// callers that need the current PC should use PC instead.
func (j *Jit) Regs() *[16]uint32 { return &j.eng.State().Regs }

// XRegs returns the live A64 general-purpose register file (X0-X30, SP at
// index 31).
func (j *Jit) XRegs() *[32]uint64 { return &j.eng.State().ExtRegs64 }

// ExtRegs returns the live vector/FP register file (Q0-Q31 for A64, D0-D31
// aliased in the low half of each entry for A32), 128 bits each.
func (j *Jit) ExtRegs() *[32][2]uint64 { return &j.eng.State().ExtRegs }

// Cpsr packs the A32 CPSR's N/Z/C/V/Q and GE[3:0] bits (and the Thumb bit
// this Jit is tracking) into the architectural layout. Other CPSR fields
// (mode, interrupt masks) are not modeled; this translator targets
// user-mode guest code per spec.md's scope.
func (j *Jit) Cpsr() uint32 {
	s := j.eng.State()
	var v uint32
	v |= uint32(s.FlagN) << 31
	v |= uint32(s.FlagZ) << 30
	v |= uint32(s.FlagC) << 29
	v |= uint32(s.FlagV) << 28
	v |= uint32(s.FlagQ) << 27
	for i, g := range s.GE {
		if g != 0 {
			v |= 1 << (16 + i)
		}
	}
	if j.thumb {
		v |= 1 << 5
	}
	return v
}

// SetCpsr unpacks v into the flags Cpsr reads, and into this Jit's tracked
// Thumb bit.
func (j *Jit) SetCpsr(v uint32) {
	s := j.eng.State()
	s.FlagN = byte(v >> 31 & 1)
	s.FlagZ = byte(v >> 30 & 1)
	s.FlagC = byte(v >> 29 & 1)
	s.FlagV = byte(v >> 28 & 1)
	s.FlagQ = byte(v >> 27 & 1)
	for i := range s.GE {
		if v&(1<<(16+i)) != 0 {
			s.GE[i] = 1
		} else {
			s.GE[i] = 0
		}
	}
	j.thumb = v&(1<<5) != 0
}

// Fpscr returns the A32 floating-point status/control register.
func (j *Jit) Fpscr() uint32 { return j.eng.State().FPSCR }

// SetFpscr sets the A32 floating-point status/control register.
func (j *Jit) SetFpscr(v uint32) { j.eng.State().FPSCR = v }

// Pstate packs the A64 PSTATE's N/Z/C/V bits.
func (j *Jit) Pstate() uint32 {
	s := j.eng.State()
	var v uint32
	v |= uint32(s.FlagN) << 31
	v |= uint32(s.FlagZ) << 30
	v |= uint32(s.FlagC) << 29
	v |= uint32(s.FlagV) << 28
	return v
}

// SetPstate unpacks v into the A64 NZCV flags.
func (j *Jit) SetPstate(v uint32) {
	s := j.eng.State()
	s.FlagN = byte(v >> 31 & 1)
	s.FlagZ = byte(v >> 30 & 1)
	s.FlagC = byte(v >> 29 & 1)
	s.FlagV = byte(v >> 28 & 1)
}

// Fpcr returns the A64 floating-point control register (aliased onto the
// same State field as Fpscr).
func (j *Jit) Fpcr() uint32 { return j.eng.State().FPSCR }

// SetFpcr sets the A64 floating-point control register.
func (j *Jit) SetFpcr(v uint32) { j.eng.State().FPSCR = v }
