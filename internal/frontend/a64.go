package frontend

import (
	"github.com/rtiangha/dynarmic/internal/ir"
	"github.com/rtiangha/dynarmic/internal/loc"
)

// A64 register numbering: X0-X30 general purpose, X31 is SP or the zero
// register XZR depending on instruction class (the lifter methods below
// track which per guest instruction, matching the architectural encoding).
const RegA64ZROrSP = 31

// A64Lifter adapts Lifter to decoder.A64Visitor, lifting one A64 basic
// block.
type A64Lifter struct {
	*Lifter
}

// NewA64Lifter creates an A64Lifter starting at start.
func NewA64Lifter(id ir.BlockID, start loc.Descriptor) *A64Lifter {
	return &A64Lifter{Lifter: NewLifter(id, start, 4)}
}

func (a *A64Lifter) regType(sf bool) ir.Type {
	if sf {
		return ir.TypeU64
	}
	return ir.TypeU32
}

func (a *A64Lifter) getX(sf bool, r uint32) ir.Value {
	if r == RegA64ZROrSP {
		return a.b.Iconst(a.regType(sf), 0)
	}
	return a.b.GetRegister(r, a.regType(sf))
}

func (a *A64Lifter) setX(r uint32, v ir.Value) {
	if r == RegA64ZROrSP {
		return // writes to XZR are discarded
	}
	a.b.SetRegister(r, v)
}

func (a *A64Lifter) ADDShiftedReg(sf, setFlags bool, rd, rn, rm uint32, shift, amount uint32) {
	a.beginInstruction()
	b := a.b
	lhs := a.getX(sf, rn)
	rhsBase := a.getX(sf, rm)
	rhs := a.applyShift(lhs.Type(), rhsBase, shift, amount)
	// A64's ADD has no overflow/carry-flag-tracking non-S form; per §8 S3,
	// unsigned wraparound is silent when setFlags is false.
	result := b.Iadd(lhs.Type(), lhs, rhs)
	if setFlags {
		_, v := b.SignedSaturatedAdd(lhs.Type(), lhs, rhs, true)
		b.SetVFlag(v)
		_, c := b.UnsignedSaturatedAdd(lhs.Type(), lhs, rhs, true)
		b.SetCFlag(c)
		b.SetZFlag(b.IcmpEqZero(result))
		b.SetNFlag(b.MSB(result))
	}
	a.setX(rd, result)
	a.advance()
}

func (a *A64Lifter) SUBShiftedReg(sf, setFlags bool, rd, rn, rm uint32, shift, amount uint32) {
	a.beginInstruction()
	b := a.b
	lhs := a.getX(sf, rn)
	rhsBase := a.getX(sf, rm)
	rhs := a.applyShift(lhs.Type(), rhsBase, shift, amount)
	result := b.Isub(lhs.Type(), lhs, rhs)
	if setFlags {
		_, v := b.SignedSaturatedSub(lhs.Type(), lhs, rhs, true)
		b.SetVFlag(v)
		_, borrow := b.UnsignedSaturatedSub(lhs.Type(), lhs, rhs, true)
		b.SetCFlag(b.Bxor(ir.TypeU1, borrow, b.Iconst(ir.TypeU1, 1)))
		b.SetZFlag(b.IcmpEqZero(result))
		b.SetNFlag(b.MSB(result))
	}
	a.setX(rd, result)
	a.advance()
}

func (a *A64Lifter) ADDImm(sf, setFlags bool, rd, rn uint32, imm12, shift uint32) {
	a.beginInstruction()
	b := a.b
	imm := uint64(imm12)
	if shift == 1 {
		imm <<= 12
	}
	lhs := a.getX(sf, rn)
	rhs := b.Iconst(lhs.Type(), imm)
	result := b.Iadd(lhs.Type(), lhs, rhs)
	if setFlags {
		_, v := b.SignedSaturatedAdd(lhs.Type(), lhs, rhs, true)
		b.SetVFlag(v)
		_, c := b.UnsignedSaturatedAdd(lhs.Type(), lhs, rhs, true)
		b.SetCFlag(c)
		b.SetZFlag(b.IcmpEqZero(result))
		b.SetNFlag(b.MSB(result))
	}
	a.setX(rd, result)
	a.advance()
}

// applyShift implements the LSL/LSR/ASR/ROR shifted-register operand,
// shift in {0=LSL,1=LSR,2=ASR,3=ROR}.
func (a *A64Lifter) applyShift(t ir.Type, v ir.Value, shift, amount uint32) ir.Value {
	if amount == 0 {
		return v
	}
	b := a.b
	amt := b.Iconst(t, uint64(amount))
	switch shift {
	case 0:
		return b.Ishl(t, v, amt)
	case 1:
		return b.Ushr(t, v, amt)
	case 2:
		return b.Sshr(t, v, amt)
	case 3:
		return b.Rotr(t, v, amt)
	default:
		return v
	}
}

func (a *A64Lifter) RET(rn uint32) {
	a.beginInstruction()
	a.finish(ir.PopRSBHint())
}

func (a *A64Lifter) BR(rn uint32) {
	a.beginInstruction()
	a.finish(ir.ReturnToDispatch())
}

func (a *A64Lifter) SVC(imm16 uint32) {
	a.beginInstruction()
	a.b.SVC(imm16)
	a.finish(ir.ReturnToDispatch())
}

func (a *A64Lifter) Undefined(word uint32) {
	a.beginInstruction()
	a.b.UndefinedInstruction()
	a.b.ExceptionRaised(ir.ExceptionUndefinedInstruction)
	a.finish(ir.ReturnToDispatch())
}
