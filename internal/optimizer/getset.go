package optimizer

import "github.com/rtiangha/dynarmic/internal/ir"

// eliminateGetSet implements §4.3 pass 1: a GetRegister(r) following a
// SetRegister(r, v) within the same block resolves to v directly, and a
// SetRegister overwritten by a later SetRegister of the same register is
// dropped; the last Set of each register in the block is kept. Condition
// flags (N/Z/C/V) follow the identical rule, tracked as four single-slot
// "registers" alongside the GPR file. A Get with no earlier Set in the
// block is left as it is.
//
// This is a single forward pass maintaining a last-known-value map per
// register/flag, replacing each resolved Get's result with an alias; the
// resolved Gets and superseded Sets are erased from the block at the end
// of this pass.
func eliminateGetSet(blk *ir.Block) {
	lastGPR := map[uint32]ir.Value{}
	lastGPRSet := map[uint32]*ir.Inst{}
	lastExt := map[uint32]ir.Value{}
	lastExtSet := map[uint32]*ir.Inst{}
	lastN, lastZ, lastC, lastV := ir.ValueInvalid, ir.ValueInvalid, ir.ValueInvalid, ir.ValueInvalid
	var lastNSet, lastZSet, lastCSet, lastVSet *ir.Inst

	alias := map[ir.ValueID]ir.Value{}
	resolve := func(v ir.Value) ir.Value {
		for {
			if a, ok := alias[v.ID()]; ok {
				v = a
				continue
			}
			return v
		}
	}

	var toErase []*ir.Inst
	// supersede records that prevSet (if any) is now unreachable because a
	// fresh write to the same abstract location just happened: nothing can
	// observe prevSet's value anymore, since reads resolve straight to the
	// aliased Value rather than to the Set instruction itself.
	supersede := func(prevSet *ir.Inst) {
		if prevSet != nil {
			toErase = append(toErase, prevSet)
		}
	}

	blk.ForEachInst(func(inst *ir.Inst) {
		inst.RewriteArgs(resolve)

		switch inst.Opcode() {
		case ir.OpcodeGetRegister:
			if v, ok := lastGPR[inst.RegImm()]; ok {
				alias[inst.Return().ID()] = v
				toErase = append(toErase, inst)
			}
		case ir.OpcodeSetRegister:
			supersede(lastGPRSet[inst.RegImm()])
			lastGPR[inst.RegImm()] = inst.Arg()
			lastGPRSet[inst.RegImm()] = inst
		case ir.OpcodeGetExtRegister:
			if v, ok := lastExt[inst.RegImm()]; ok {
				alias[inst.Return().ID()] = v
				toErase = append(toErase, inst)
			}
		case ir.OpcodeSetExtRegister:
			supersede(lastExtSet[inst.RegImm()])
			lastExt[inst.RegImm()] = inst.Arg()
			lastExtSet[inst.RegImm()] = inst
		case ir.OpcodeGetNFlag:
			if lastN.Valid() {
				alias[inst.Return().ID()] = lastN
				toErase = append(toErase, inst)
			}
		case ir.OpcodeSetNFlag:
			supersede(lastNSet)
			lastN, lastNSet = inst.Arg(), inst
		case ir.OpcodeGetZFlag:
			if lastZ.Valid() {
				alias[inst.Return().ID()] = lastZ
				toErase = append(toErase, inst)
			}
		case ir.OpcodeSetZFlag:
			supersede(lastZSet)
			lastZ, lastZSet = inst.Arg(), inst
		case ir.OpcodeGetCFlag:
			if lastC.Valid() {
				alias[inst.Return().ID()] = lastC
				toErase = append(toErase, inst)
			}
		case ir.OpcodeSetCFlag:
			supersede(lastCSet)
			lastC, lastCSet = inst.Arg(), inst
		case ir.OpcodeGetVFlag:
			if lastV.Valid() {
				alias[inst.Return().ID()] = lastV
				toErase = append(toErase, inst)
			}
		case ir.OpcodeSetVFlag:
			supersede(lastVSet)
			lastV, lastVSet = inst.Arg(), inst
		}
	})

	for _, inst := range toErase {
		if inst.Live() {
			blk.Erase(inst)
		}
	}
}
