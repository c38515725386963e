package frontend

import (
	"github.com/rtiangha/dynarmic/internal/armcond"
	"github.com/rtiangha/dynarmic/internal/ir"
	"github.com/rtiangha/dynarmic/internal/loc"
)

// ThumbLifter adapts Lifter to decoder.ThumbVisitor, lifting one 16-bit
// Thumb basic block. Thumb shares A32's register file, flags, and NZCV
// semantics, so it embeds an A32Lifter to reuse getGPR/setGPR/setFlagsFor*
// rather than duplicating them; only the instruction width (2 bytes) and
// the unconditional-by-default execution differ.
type ThumbLifter struct {
	*A32Lifter
}

// NewThumbLifter creates a ThumbLifter starting at start.
func NewThumbLifter(id ir.BlockID, start loc.Descriptor) *ThumbLifter {
	return &ThumbLifter{A32Lifter: &A32Lifter{Lifter: NewLifter(id, start, 2)}}
}

// MOVImm8 lifts the 16-bit `MOVS Rd, #imm8` encoding; unlike A32's MOV,
// the T1 encoding is always unconditional and always flag-setting outside
// an IT block (IT-block predication is out of scope per spec.md's ARMv7
// scope, so this lifter always applies the flags).
func (t *ThumbLifter) MOVImm8(rd uint32, imm8 uint32) {
	t.beginInstruction()
	b := t.b
	v := b.Iconst(ir.TypeU32, uint64(imm8))
	t.setNZFromResult(v)
	t.setGPR(rd, v)
	t.advance()
}

// ADDImm3 lifts `ADDS Rd, Rn, #imm3`.
func (t *ThumbLifter) ADDImm3(rd, rn uint32, imm3 uint32) {
	t.beginInstruction()
	b := t.b
	lhs := t.getGPR(rn)
	rhs := b.Iconst(ir.TypeU32, uint64(imm3))
	result := b.Iadd(ir.TypeU32, lhs, rhs)
	t.setFlagsForAdd(lhs, rhs, result)
	t.setGPR(rd, result)
	t.advance()
}

// ADDReg lifts the high-register-capable `ADD Rdn, Rm` encoding, which
// never updates flags and permits Rdn == PC (a computed branch via
// `ADD PC, PC, Rm`-style sequences), per ARMv7 A6.2.3.
func (t *ThumbLifter) ADDReg(rdn, rm uint32) {
	t.beginInstruction()
	b := t.b
	lhs, rhs := t.getGPR(rdn), t.getGPR(rm)
	result := b.Iadd(ir.TypeU32, lhs, rhs)
	if rdn == RegPC {
		t.finish(ir.ReturnToDispatch())
		return
	}
	t.setGPR(rdn, result)
	t.advance()
}

func (t *ThumbLifter) BX(rm uint32) {
	t.beginInstruction()
	t.finish(ir.PopRSBHint())
}

// BImm8 lifts the 16-bit conditional branch; unlike A32's BImm, Thumb's
// PC-relative offset is instruction-width-scaled and PC is 4 ahead (2
// instructions in Thumb state, ARMv7 A2.3). imm8 arrives pre-shifted left
// by 1 from the decode table.
func (t *ThumbLifter) BImm8(cond armcond.Code, imm8 int32) {
	if t.checkBlockCondition(cond) {
		return
	}
	t.beginInstruction()
	target := t.pc + 4 + uint64(imm8)
	t.finish(ir.LinkBlock(t.start.WithPC(target)))
}

func (t *ThumbLifter) Undefined(halfword uint16) {
	t.beginInstruction()
	t.b.UndefinedInstruction()
	t.b.ExceptionRaised(ir.ExceptionUndefinedInstruction)
	t.finish(ir.ReturnToDispatch())
}
