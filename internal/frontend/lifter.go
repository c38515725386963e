// Package frontend implements the IR lifter: per-guest-instruction
// translation into the ir package's microinstructions, driven by the
// decoder's visitor callbacks (§4.2). Structurally this mirrors the
// teacher's frontend.Compiler, which owns one ssa.Builder per function and
// exposes per-Wasm-opcode lowering methods (frontend/lower.go); here one
// Lifter owns one ir.Builder per guest Block and exposes one method per
// A32/Thumb/A64 visitor callback instead.
package frontend

import (
	"github.com/rtiangha/dynarmic/internal/armcond"
	"github.com/rtiangha/dynarmic/internal/ir"
	"github.com/rtiangha/dynarmic/internal/loc"
)

// MaxBlockInstructions bounds how many guest instructions a single Block
// may contain before the lifter forces a terminal, per §4.2 "the
// block-size budget is exceeded".
const MaxBlockInstructions = 256

// Lifter translates guest instructions into IR for a single Block, used by
// both the A32/Thumb and A64 visitor implementations in this package.
type Lifter struct {
	b   *ir.Builder
	blk *ir.Block

	start loc.Descriptor
	pc    uint64 // next-instruction PC, advanced as instructions are lifted

	// instrBytes is 2 for Thumb, 4 otherwise; used to advance pc and to
	// compute PCRangeHi.
	instrBytes uint64

	numInstrs int
	done      bool

	// blockCond is the A32 condition this whole block was lifted under;
	// AL for Thumb/A64 and for unconditional A32 blocks. It is the condition
	// of the block's first instruction; the block ends before the first
	// later instruction whose condition differs from it.
	blockCond armcond.Code
}

// NewLifter creates a Lifter starting at start with the given guest
// instruction width (2 for Thumb, 4 for A32/A64).
func NewLifter(id ir.BlockID, start loc.Descriptor, instrBytes uint64) *Lifter {
	blk := ir.NewBlock(id, start)
	return &Lifter{
		b:          ir.NewBuilder(blk),
		blk:        blk,
		start:      start,
		pc:         start.PC(),
		instrBytes: instrBytes,
		blockCond:  armcond.AL,
	}
}

// Block returns the Block under construction; its Terminal stays nil until
// the lifter seals the block.
func (l *Lifter) Block() *ir.Block { return l.blk }

// PC returns the guest address of the next instruction to lift, read by
// the engine's decode loop to fetch each instruction word in turn.
func (l *Lifter) PC() uint64 { return l.pc }

// BlockCondition returns the A32 condition this block was lifted under.
func (l *Lifter) BlockCondition() armcond.Code { return l.blockCond }

// Done reports whether a terminal microinstruction has been emitted or the
// block-size budget was exceeded.
func (l *Lifter) Done() bool { return l.done || l.numInstrs >= MaxBlockInstructions }

// beginInstruction is called by each visitor method before emitting IR for
// a newly matched guest instruction; it tracks the PC range for SMC
// invalidation and the instruction budget.
func (l *Lifter) beginInstruction() {
	if l.pc < l.blk.PCRangeLo {
		l.blk.PCRangeLo = l.pc
	}
	if l.pc+l.instrBytes > l.blk.PCRangeHi {
		l.blk.PCRangeHi = l.pc + l.instrBytes
	}
	l.numInstrs++
}

// advance moves pc forward by one instruction's width; called at the end
// of every non-terminal visitor method.
func (l *Lifter) advance() {
	l.pc += l.instrBytes
}

// nextDescriptor returns the Descriptor for the instruction immediately
// following the current one, preserving the block's mode flags.
func (l *Lifter) nextDescriptor() loc.Descriptor {
	return l.start.WithPC(l.pc + l.instrBytes)
}

// finish seals the block with terminal t and records End. If this block was
// lifted under a non-AL A32 condition, the condition-failed resume point
// (§4.3 pass 4's ConditionFailedLocation) is the instruction immediately
// following the whole block, which is exactly End: a shared block
// condition gates every instruction in the block uniformly, so failing it
// skips the block in its entirety rather than any one instruction.
func (l *Lifter) finish(t ir.Terminal) {
	l.blk.End = l.start.WithPC(l.pc + l.instrBytes)
	if !l.blockCond.AlwaysTrue() {
		l.blk.ConditionFailedNext = l.blk.End
	}
	l.blk.SetTerminal(t)
	l.done = true
}

// Builder exposes the underlying ir.Builder for visitor implementations in
// sibling files (a32.go, a64.go, thumb.go) that need direct IR construction
// beyond the helpers on Lifter itself.
func (l *Lifter) Builder() *ir.Builder { return l.b }
