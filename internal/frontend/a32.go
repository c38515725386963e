package frontend

import (
	"github.com/rtiangha/dynarmic/internal/armcond"
	"github.com/rtiangha/dynarmic/internal/ir"
	"github.com/rtiangha/dynarmic/internal/loc"
)

// ARM register numbering: R0-R12 general purpose, R13 SP, R14 LR, R15 PC.
const (
	RegSP = 13
	RegLR = 14
	RegPC = 15
)

// A32Lifter adapts Lifter to decoder.A32Visitor, lifting one A32 (ARM-mode)
// basic block.
type A32Lifter struct {
	*Lifter
}

// NewA32Lifter creates an A32Lifter starting at start; instrBytes is
// always 4 in ARM mode (use NewThumbLifter for 2-byte Thumb instructions).
func NewA32Lifter(id ir.BlockID, start loc.Descriptor) *A32Lifter {
	return &A32Lifter{Lifter: NewLifter(id, start, 4)}
}

// checkBlockCondition enforces that every instruction in a block shares one
// condition code (§4.3 pass 4 treats "the block's A32 condition code" as a
// single value). If cond differs from the block's established condition,
// the current instruction is left unlifted and the block instead ends with
// a LinkBlockFast to itself, so the next compilation starts a fresh block
// at this PC under its own condition.
func (a *A32Lifter) checkBlockCondition(cond armcond.Code) (shouldStop bool) {
	if a.numInstrs == 0 {
		a.blockCond = cond
		if !cond.AlwaysTrue() {
			// Materialize the guard from the pre-block N/Z/C/V flags before
			// any other IR for this block is emitted, so the condition
			// folding pass (§4.3 pass 4) reads the flag state as it stood
			// immediately before the block, not as it stands after the
			// block's own flag-setting instructions have run.
			a.blk.ConditionValue = a.conditionValue(cond)
		}
		return false
	}
	if cond == a.blockCond || cond.AlwaysTrue() && a.blockCond.AlwaysTrue() {
		return false
	}
	a.finish(ir.LinkBlockFast(a.start.WithPC(a.pc)))
	a.blk.End = a.start.WithPC(a.pc)
	if !a.blockCond.AlwaysTrue() {
		a.blk.ConditionFailedNext = a.blk.End
	}
	return true
}

// conditionValue builds the IR evaluating the A32 4-bit condition field
// against the current N/Z/C/V flags, producing a U1 Value that is true iff
// cond holds, per the ARM architecture reference manual's condition-code
// truth table (A8.3). cond must not be AL/NV.
func (a *A32Lifter) conditionValue(cond armcond.Code) ir.Value {
	b := a.b
	switch cond {
	case armcond.EQ:
		return b.GetZFlag()
	case armcond.NE:
		return b.Bnot(ir.TypeU1, b.GetZFlag())
	case armcond.CS:
		return b.GetCFlag()
	case armcond.CC:
		return b.Bnot(ir.TypeU1, b.GetCFlag())
	case armcond.MI:
		return b.GetNFlag()
	case armcond.PL:
		return b.Bnot(ir.TypeU1, b.GetNFlag())
	case armcond.VS:
		return b.GetVFlag()
	case armcond.VC:
		return b.Bnot(ir.TypeU1, b.GetVFlag())
	case armcond.HI:
		return b.Band(ir.TypeU1, b.GetCFlag(), b.Bnot(ir.TypeU1, b.GetZFlag()))
	case armcond.LS:
		return b.Bor(ir.TypeU1, b.Bnot(ir.TypeU1, b.GetCFlag()), b.GetZFlag())
	case armcond.GE:
		return b.Bnot(ir.TypeU1, b.Bxor(ir.TypeU1, b.GetNFlag(), b.GetVFlag()))
	case armcond.LT:
		return b.Bxor(ir.TypeU1, b.GetNFlag(), b.GetVFlag())
	case armcond.GT:
		nEqV := b.Bnot(ir.TypeU1, b.Bxor(ir.TypeU1, b.GetNFlag(), b.GetVFlag()))
		return b.Band(ir.TypeU1, b.Bnot(ir.TypeU1, b.GetZFlag()), nEqV)
	case armcond.LE:
		nNeV := b.Bxor(ir.TypeU1, b.GetNFlag(), b.GetVFlag())
		return b.Bor(ir.TypeU1, b.GetZFlag(), nNeV)
	default:
		// AL/NV never reach here (checkBlockCondition guards on
		// AlwaysTrue()); an invariant violation here is fatal, not
		// recoverable, per §7.
		panic("frontend: conditionValue called with an always-true condition")
	}
}

func (a *A32Lifter) MOVImm(cond armcond.Code, s bool, rd uint32, imm32 uint32, carrySet bool, carry uint32) {
	if a.checkBlockCondition(cond) {
		return
	}
	a.beginInstruction()
	b := a.b
	v := b.Iconst(ir.TypeU32, uint64(imm32))
	if s {
		if carrySet {
			b.SetCFlag(b.Iconst(ir.TypeU1, uint64(carry)))
		}
		a.setNZFromResult(v)
	}
	a.setGPR(rd, v)
	a.advance()
}

func (a *A32Lifter) ADDImm(cond armcond.Code, s bool, rd, rn uint32, imm32 uint32) {
	if a.checkBlockCondition(cond) {
		return
	}
	a.beginInstruction()
	b := a.b
	lhs := a.getGPR(rn)
	rhs := b.Iconst(ir.TypeU32, uint64(imm32))
	result := b.Iadd(ir.TypeU32, lhs, rhs)
	if s {
		a.setFlagsForAdd(lhs, rhs, result)
	}
	a.setGPR(rd, result)
	a.advance()
}

func (a *A32Lifter) ADDReg(cond armcond.Code, s bool, rd, rn, rm uint32) {
	if a.checkBlockCondition(cond) {
		return
	}
	a.beginInstruction()
	b := a.b
	lhs, rhs := a.getGPR(rn), a.getGPR(rm)
	result := b.Iadd(ir.TypeU32, lhs, rhs)
	if s {
		a.setFlagsForAdd(lhs, rhs, result)
	}
	a.setGPR(rd, result)
	a.advance()
}

func (a *A32Lifter) SUBImm(cond armcond.Code, s bool, rd, rn uint32, imm32 uint32) {
	if a.checkBlockCondition(cond) {
		return
	}
	a.beginInstruction()
	b := a.b
	lhs := a.getGPR(rn)
	rhs := b.Iconst(ir.TypeU32, uint64(imm32))
	result := b.Isub(ir.TypeU32, lhs, rhs)
	if s {
		a.setFlagsForSub(lhs, rhs, result)
	}
	a.setGPR(rd, result)
	a.advance()
}

// QADD: saturating signed 32-bit add, sets the sticky Q flag per §4.4.
func (a *A32Lifter) QADD(cond armcond.Code, rd, rm, rn uint32) {
	if a.checkBlockCondition(cond) {
		return
	}
	a.beginInstruction()
	b := a.b
	x, y := a.getGPR(rn), a.getGPR(rm)
	result, overflow := b.SignedSaturatedAdd(ir.TypeU32, x, y, true)
	b.OrQFlag(overflow)
	a.setGPR(rd, result)
	a.advance()
}

func (a *A32Lifter) QSUB(cond armcond.Code, rd, rm, rn uint32) {
	if a.checkBlockCondition(cond) {
		return
	}
	a.beginInstruction()
	b := a.b
	x, y := a.getGPR(rn), a.getGPR(rm)
	result, overflow := b.SignedSaturatedSub(ir.TypeU32, x, y, true)
	b.OrQFlag(overflow)
	a.setGPR(rd, result)
	a.advance()
}

func (a *A32Lifter) BImm(cond armcond.Code, imm32 int32) {
	if a.checkBlockCondition(cond) {
		return
	}
	a.beginInstruction()
	target := a.pc + 8 + uint64(imm32) // PC is two instructions ahead in ARM state
	a.finish(ir.LinkBlock(a.start.WithPC(target)))
}

func (a *A32Lifter) BLImm(cond armcond.Code, imm32 int32) {
	if a.checkBlockCondition(cond) {
		return
	}
	a.beginInstruction()
	b := a.b
	retAddr := b.Iconst(ir.TypeU32, a.pc+4)
	a.setGPR(RegLR, retAddr)
	target := a.pc + 8 + uint64(imm32)
	a.finish(ir.LinkBlock(a.start.WithPC(target)))
}

func (a *A32Lifter) BX(cond armcond.Code, rm uint32) {
	if a.checkBlockCondition(cond) {
		return
	}
	a.beginInstruction()
	if rm == RegLR || rm < 15 {
		// The register's runtime value is unknown at lift time for any Rm,
		// so BX always ends the block with a PopRSBHint terminal, whatever
		// the register.
	}
	a.finish(ir.PopRSBHint())
}

func (a *A32Lifter) LDRImm(cond armcond.Code, rt, rn uint32, imm12 int32, index, add, wback bool) {
	if a.checkBlockCondition(cond) {
		return
	}
	a.beginInstruction()
	b := a.b
	base := a.getGPR(rn)
	offset := b.Iconst(ir.TypeU32, uint64(uint32(imm12)))
	var addr ir.Value
	if !add {
		addr = b.Isub(ir.TypeU32, base, offset)
	} else {
		addr = b.Iadd(ir.TypeU32, base, offset)
	}
	useAddr := base
	if index {
		useAddr = addr
	}
	v := b.ReadMemory32(useAddr)
	a.setGPR(rt, v)
	if wback {
		a.setGPR(rn, addr)
	}
	a.advance()
}

func (a *A32Lifter) STRImm(cond armcond.Code, rt, rn uint32, imm12 int32, index, add, wback bool) {
	if a.checkBlockCondition(cond) {
		return
	}
	a.beginInstruction()
	b := a.b
	base := a.getGPR(rn)
	offset := b.Iconst(ir.TypeU32, uint64(uint32(imm12)))
	var addr ir.Value
	if !add {
		addr = b.Isub(ir.TypeU32, base, offset)
	} else {
		addr = b.Iadd(ir.TypeU32, base, offset)
	}
	useAddr := base
	if index {
		useAddr = addr
	}
	b.WriteMemory32(useAddr, a.getGPR(rt))
	if wback {
		a.setGPR(rn, addr)
	}
	a.advance()
}

// LDREX marks the processor's exclusive-monitor reservation on addr and
// loads its value; the backend lowers this through the ExclusiveMonitor's
// ReadAndMark (§4.6, §5).
func (a *A32Lifter) LDREX(cond armcond.Code, rt, rn uint32) {
	if a.checkBlockCondition(cond) {
		return
	}
	a.beginInstruction()
	addr := a.getGPR(rn)
	v := a.b.ExclusiveReadMemory32(addr)
	a.setGPR(rt, v)
	a.advance()
}

// STREX performs the conditional exclusive store and writes 1 (failed) or
// 0 (succeeded) to Rd, per §8 S4.
func (a *A32Lifter) STREX(cond armcond.Code, rd, rt, rn uint32) {
	if a.checkBlockCondition(cond) {
		return
	}
	a.beginInstruction()
	addr := a.getGPR(rn)
	val := a.getGPR(rt)
	failed := a.b.ExclusiveWriteMemory32(addr, val)
	a.setGPR(rd, a.zeroExtendU1(failed))
	a.advance()
}

func (a *A32Lifter) SVC(cond armcond.Code, imm24 uint32) {
	if a.checkBlockCondition(cond) {
		return
	}
	a.beginInstruction()
	a.b.SVC(imm24)
	a.finish(ir.ReturnToDispatch())
}

func (a *A32Lifter) Undefined(word uint32) {
	a.beginInstruction()
	a.b.UndefinedInstruction()
	a.b.ExceptionRaised(ir.ExceptionUndefinedInstruction)
	a.finish(ir.ReturnToDispatch())
}

// --- shared helpers used by A32 and Thumb lifters -------------------------

func (a *A32Lifter) getGPR(r uint32) ir.Value { return a.b.GetRegister(r, ir.TypeU32) }
func (a *A32Lifter) setGPR(r uint32, v ir.Value) { a.b.SetRegister(r, v) }

func (a *A32Lifter) zeroExtendU1(v ir.Value) ir.Value {
	// U1 values are already represented as 0/1 in their defining Inst's
	// result; reinterpreting the same Value at U32 is valid since this
	// lifter never packs sub-word lanes, only the backend's register
	// allocator cares about the concrete width when assigning a class.
	return ir.Value(uint64(v.ID())).WithType(ir.TypeU32)
}

func (a *A32Lifter) setNZFromResult(v ir.Value) {
	b := a.b
	b.SetZFlag(b.IcmpEqZero(v))
	b.SetNFlag(b.MSB(v))
}

func (a *A32Lifter) setFlagsForAdd(x, y, result ir.Value) {
	b := a.b
	_, overflow := b.SignedSaturatedAdd(result.Type(), x, y, true)
	b.SetVFlag(overflow)
	_, carry := b.UnsignedSaturatedAdd(result.Type(), x, y, true)
	b.SetCFlag(carry)
	a.setNZFromResult(result)
}

func (a *A32Lifter) setFlagsForSub(x, y, result ir.Value) {
	b := a.b
	_, overflow := b.SignedSaturatedSub(result.Type(), x, y, true)
	b.SetVFlag(overflow)
	_, borrow := b.UnsignedSaturatedSub(result.Type(), x, y, true)
	b.SetCFlag(b.Bxor(ir.TypeU1, borrow, b.Iconst(ir.TypeU1, 1)))
	a.setNZFromResult(result)
}
