package optimizer

import "github.com/rtiangha/dynarmic/internal/ir"

// foldConstants implements §4.3 pass 2: an Inst whose opcode foldOne
// handles and whose arguments are all Iconst is rewritten in place
// (FoldToConst) into an Iconst carrying the computed result. This
// mirrors the teacher's passConstFoldingOpt plus the preceding
// passCollectValueIdToInstructionMapping it depends on (ssa/pass.go): SSA
// definitions always precede their uses in program order, so a single
// forward pass can build the ValueID -> defining Inst index as it goes and
// use it immediately to resolve each instruction's operands.
func foldConstants(blk *ir.Block) {
	defs := map[ir.ValueID]*ir.Inst{}

	constOf := func(v ir.Value) (uint64, bool) {
		if !v.Valid() {
			return 0, false
		}
		if d, ok := defs[v.ID()]; ok && d.IsConst() {
			return d.ConstValue(), true
		}
		return 0, false
	}

	blk.ForEachInst(func(inst *ir.Inst) {
		foldOne(inst, constOf)
		if r := inst.Return(); r.Valid() {
			defs[r.ID()] = inst
		}
	})
}

func foldOne(inst *ir.Inst, constOf func(ir.Value) (uint64, bool)) {
	x, y, _, _ := inst.Args()
	xc, xok := constOf(x)
	yc, yok := constOf(y)

	var result uint64
	var ok bool
	switch inst.Opcode() {
	case ir.OpcodeIadd:
		if xok && yok {
			result, ok = xc+yc, true
		}
	case ir.OpcodeIsub:
		if xok && yok {
			result, ok = xc-yc, true
		}
	case ir.OpcodeImul:
		if xok && yok {
			result, ok = xc*yc, true
		}
	case ir.OpcodeBand:
		if xok && yok {
			result, ok = xc&yc, true
		}
	case ir.OpcodeBor:
		if xok && yok {
			result, ok = xc|yc, true
		}
	case ir.OpcodeBxor:
		if xok && yok {
			result, ok = xc^yc, true
		}
	case ir.OpcodeBnot:
		if xok {
			result, ok = ^xc, true
		}
	case ir.OpcodeIshl:
		if xok && yok {
			result, ok = xc<<(yc&63), true
		}
	case ir.OpcodeUshr:
		if xok && yok {
			result, ok = xc>>(yc&63), true
		}
	case ir.OpcodeSshr:
		if xok && yok {
			width := inst.Type().Bits()
			result, ok = uint64(signedShiftRight(xc, width, yc&uint64(width-1))), true
		}
	case ir.OpcodeIcmpEqZero:
		if xok {
			if xc == 0 {
				result = 1
			}
			ok = true
		}
	case ir.OpcodeMSB:
		if xok {
			width := inst.Arg().Type().Bits()
			result = (xc >> (width - 1)) & 1
			ok = true
		}
	case ir.OpcodeRotr:
		if xok && yok {
			width := uint64(inst.Type().Bits())
			sh := yc % width
			mask := maskFor(width)
			result = ((xc >> sh) | (xc << (width - sh))) & mask
			ok = true
		}
	}

	if ok {
		maskWidth := inst.Type()
		if maskWidth.IsFixedWidthInt() && maskWidth.Bits() < 64 {
			result &= maskFor(uint64(maskWidth.Bits()))
		} else if maskWidth == ir.TypeU1 {
			result &= 1
		}
		inst.FoldToConst(result)
	}
}

func maskFor(bits uint64) uint64 {
	if bits >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << bits) - 1
}

func signedShiftRight(x uint64, width byte, shift uint64) int64 {
	signBit := uint64(1) << (width - 1)
	extended := x
	if x&signBit != 0 {
		extended |= ^maskFor(uint64(width))
	}
	return int64(extended) >> shift
}
