package optimizer

import "github.com/rtiangha/dynarmic/internal/ir"

// eliminateDeadCode implements §4.3 pass 3, following the teacher's
// mark-and-sweep passDeadCodeEliminationOpt (ssa/pass.go): first collect
// every Inst with an observable side effect as a liveness root, then walk
// backwards through each root's argument chain marking producers live, and
// finally sweep every Inst that never got marked. Erasing an Inst via
// Block.Erase also clears its pseudo-operation link on both ends, so a
// dead saturating op silently drops its dead GetOverflowFromOp consumer
// for free.
func eliminateDeadCode(blk *ir.Block) {
	defs := map[ir.ValueID]*ir.Inst{}
	var all []*ir.Inst
	var roots []*ir.Inst

	blk.ForEachInst(func(inst *ir.Inst) {
		all = append(all, inst)
		if r := inst.Return(); r.Valid() {
			defs[r.ID()] = inst
		}
		if inst.HasSideEffect() {
			roots = append(roots, inst)
		}
		// A pseudo-operation consumer (GetOverflowFromOp & co.) is kept
		// alive only when its own result is used by a live Inst; a live
		// producer does not by itself keep its consumer alive.
	})
	// The block's condition value is read by the terminal that condition
	// folding builds, so its definer is a root as well.
	if cv := blk.ConditionValue; cv.Valid() {
		if d, ok := defs[cv.ID()]; ok {
			roots = append(roots, d)
		}
	}

	live := map[*ir.Inst]bool{}
	stack := append([]*ir.Inst(nil), roots...)
	for len(stack) > 0 {
		n := len(stack) - 1
		cur := stack[n]
		stack = stack[:n]
		if live[cur] {
			continue
		}
		live[cur] = true

		v0, v1, v2, vs := cur.Args()
		for _, v := range []ir.Value{v0, v1, v2} {
			if v.Valid() {
				if d, ok := defs[v.ID()]; ok {
					stack = append(stack, d)
				}
			}
		}
		for _, v := range vs {
			if v.Valid() {
				if d, ok := defs[v.ID()]; ok {
					stack = append(stack, d)
				}
			}
		}
		// If cur is itself a pseudo-op consumer, its producer must stay
		// alive regardless of whether the producer's own primary result is
		// used elsewhere.
		if p := cur.Producer(); p != nil {
			stack = append(stack, p)
		}
	}

	for _, inst := range all {
		if !live[inst] {
			blk.Erase(inst)
		}
	}
}
