package decoder

// A64Visitor receives one callback per matched A64 instruction.
type A64Visitor interface {
	ADDShiftedReg(sf, setFlags bool, rd, rn, rm uint32, shift uint32, amount uint32)
	ADDImm(sf, setFlags bool, rd, rn uint32, imm12, shift uint32)
	SUBShiftedReg(sf, setFlags bool, rd, rn, rm uint32, shift uint32, amount uint32)
	RET(rn uint32)
	BR(rn uint32)
	SVC(imm16 uint32)
	Undefined(word uint32)
}

type A64Handler func(v A64Visitor, word uint32)

var a64UndefinedHandler A64Handler = func(v A64Visitor, word uint32) { v.Undefined(word) }

// A64Table is a representative slice of the A64 decode table sufficient
// for this translator's testable scenarios (§8 S3).
var A64Table = NewTable[A64Handler](a64UndefinedHandler,
	// ADD (shifted register): sf 0 0 01011 shift(2) 0 Rm(5) imm6(6) Rn(5) Rd(5)
	Matcher[A64Handler]{
		Name: "ADD_shifted_reg", Mask: 0x7F200000, Expected: 0x0B000000,
		Handler: func(v A64Visitor, w uint32) {
			sf := w>>31 != 0
			setFlags := (w>>29)&1 != 0
			shift := (w >> 22) & 0x3
			rm := (w >> 16) & 0x1F
			amount := (w >> 10) & 0x3F
			rn := (w >> 5) & 0x1F
			rd := w & 0x1F
			v.ADDShiftedReg(sf, setFlags, rd, rn, rm, shift, amount)
		},
	},
	// SUB (shifted register): sf 1 0 01011 shift(2) 0 Rm imm6 Rn Rd
	Matcher[A64Handler]{
		Name: "SUB_shifted_reg", Mask: 0x7F200000, Expected: 0x4B000000,
		Handler: func(v A64Visitor, w uint32) {
			sf := w>>31 != 0
			setFlags := (w>>29)&1 != 0
			shift := (w >> 22) & 0x3
			rm := (w >> 16) & 0x1F
			amount := (w >> 10) & 0x3F
			rn := (w >> 5) & 0x1F
			rd := w & 0x1F
			v.SUBShiftedReg(sf, setFlags, rd, rn, rm, shift, amount)
		},
	},
	// ADD (immediate): sf 0 0 100010 shift(1) imm12 Rn Rd
	Matcher[A64Handler]{
		Name: "ADD_imm", Mask: 0x7F000000, Expected: 0x11000000,
		Handler: func(v A64Visitor, w uint32) {
			sf := w>>31 != 0
			setFlags := (w>>29)&1 != 0
			shift := (w >> 22) & 1
			imm12 := (w >> 10) & 0xFFF
			rn := (w >> 5) & 0x1F
			rd := w & 0x1F
			v.ADDImm(sf, setFlags, rd, rn, imm12, shift)
		},
	},
	// RET: 1101011 0 0 10 11111 0000 0 0 Rn 00000
	Matcher[A64Handler]{
		Name: "RET", Mask: 0xFFFFFC1F, Expected: 0xD65F0000,
		Handler: func(v A64Visitor, w uint32) { v.RET((w >> 5) & 0x1F) },
	},
	// BR: 1101011 0 0 00 11111 0000 0 0 Rn 00000
	Matcher[A64Handler]{
		Name: "BR", Mask: 0xFFFFFC1F, Expected: 0xD61F0000,
		Handler: func(v A64Visitor, w uint32) { v.BR((w >> 5) & 0x1F) },
	},
	// SVC: 1101 0100 000 imm16 00001
	Matcher[A64Handler]{
		Name: "SVC", Mask: 0xFFE0001F, Expected: 0xD4000001,
		Handler: func(v A64Visitor, w uint32) { v.SVC((w >> 5) & 0xFFFF) },
	},
)
