package decoder

import "github.com/rtiangha/dynarmic/internal/armcond"

// ThumbVisitor receives one callback per matched 16-bit Thumb instruction.
// Only 16-bit Thumb encodings are decoded; this package has no table for
// 32-bit Thumb-2 encodings.
type ThumbVisitor interface {
	MOVImm8(rd uint32, imm8 uint32)
	ADDImm3(rd, rn uint32, imm3 uint32)
	ADDReg(rdn, rm uint32)
	BX(rm uint32)
	BImm8(cond armcond.Code, imm8 int32)
	Undefined(halfword uint16)
}

type ThumbHandler func(v ThumbVisitor, halfword uint16)

var thumbUndefinedHandler ThumbHandler = func(v ThumbVisitor, hw uint16) { v.Undefined(hw) }

// ThumbTable is a representative slice of the 16-bit Thumb decode table.
var ThumbTable = NewTable[ThumbHandler](thumbUndefinedHandler,
	// MOV (immediate) T1: 00100 Rd(3) imm8
	Matcher[ThumbHandler]{
		Name: "MOV_imm_T1", Mask: 0xF800, Expected: 0x2000,
		Handler: func(v ThumbVisitor, hw uint16) {
			v.MOVImm8(uint32(hw>>8)&0x7, uint32(hw)&0xFF)
		},
	},
	// ADD (immediate, 3-bit) T1: 0001110 imm3 Rn Rd
	Matcher[ThumbHandler]{
		Name: "ADD_imm3_T1", Mask: 0xFE00, Expected: 0x1C00,
		Handler: func(v ThumbVisitor, hw uint16) {
			imm3 := uint32(hw>>6) & 0x7
			rn := uint32(hw>>3) & 0x7
			rd := uint32(hw) & 0x7
			v.ADDImm3(rd, rn, imm3)
		},
	},
	// ADD (register) T2, high registers allowed: 01000100 DN Rm(4) Rdn(3)
	Matcher[ThumbHandler]{
		Name: "ADD_reg_T2", Mask: 0xFF00, Expected: 0x4400,
		Handler: func(v ThumbVisitor, hw uint16) {
			dn := uint32(hw>>7) & 1
			rm := uint32(hw>>3) & 0xF
			rdn := uint32(hw)&0x7 | dn<<3
			v.ADDReg(rdn, rm)
		},
	},
	// BX: 010001 1 1 0 Rm(4) 000
	Matcher[ThumbHandler]{
		Name: "BX", Mask: 0xFF87, Expected: 0x4700,
		Handler: func(v ThumbVisitor, hw uint16) { v.BX(uint32(hw>>3) & 0xF) },
	},
	// B<cond> T1: 1101 cond(4) imm8
	Matcher[ThumbHandler]{
		Name: "B_cond_T1", Mask: 0xF000, Expected: 0xD000,
		Handler: func(v ThumbVisitor, hw uint16) {
			cond := armcond.Code((hw >> 8) & 0xF)
			imm8 := int32(int8(hw & 0xFF))
			v.BImm8(cond, imm8<<1)
		},
	},
)
