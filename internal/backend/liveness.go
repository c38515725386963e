package backend

import "github.com/rtiangha/dynarmic/internal/ir"

// LastUse maps a value's identifier to the index (in program order,
// 0-based, terminal counted as index NumInsts) of its last consumer in
// blk. Both isa/amd64 and isa/arm64 walk this once per CompileBlock call
// to know when regalloc.Allocator.EndOfAllocScope may release a value's
// register, since this translator's Block is always a single straight-line
// sequence (no CFG merges to reason about, unlike the teacher's
// interval-tree liveness over a whole function).
func LastUse(blk *ir.Block) map[ir.ValueID]int {
	last := make(map[ir.ValueID]int)
	idx := 0
	touch := func(v ir.Value) {
		if v.Valid() {
			last[v.ID()] = idx
		}
	}
	blk.ForEachInst(func(inst *ir.Inst) {
		a0, a1, a2, rest := inst.Args()
		touch(a0)
		touch(a1)
		touch(a2)
		for _, v := range rest {
			touch(v)
		}
		if p := inst.Producer(); p != nil {
			// A GetXFromOp pseudo-op's "argument" is its producer's result,
			// which does not appear in Args(); record it explicitly so the
			// producer's register survives until its pseudo-op consumer.
			last[p.Return().ID()] = idx
		}
		idx++
	})
	if t := blk.Terminal; t != nil {
		touch(t.Cond)
		var walk func(*ir.Terminal)
		walk = func(tt *ir.Terminal) {
			if tt == nil {
				return
			}
			touch(tt.Cond)
			walk(tt.Then)
			walk(tt.Else)
		}
		walk(t)
	}
	return last
}
