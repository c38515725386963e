// Package optimizer implements the IR optimization passes: A32 get/set
// elimination, constant propagation and folding, dead code elimination, and
// A32 condition folding. The pass order and the mark-and-sweep liveness
// scheme mirror the teacher's internal/engine/wazevo/ssa.RunPasses /
// passDeadCodeEliminationOpt, adapted from a function-wide CFG pass to a
// single straight-line Block (a guest Block never branches internally, so
// there is no block-reachability step to run first).
package optimizer

import "github.com/rtiangha/dynarmic/internal/ir"

// Config toggles which passes run; Jit's enable_optimizations flag maps
// directly to Enabled, i.e. Run running every pass vs. skipping everything
// but the mandatory condition
// folding (condition folding isn't optional: it determines the shape of
// the block's Terminal, which the backend always needs finalized).
type Config struct {
	Enabled bool
}

// Run executes the full pass pipeline over blk in the fixed order mandated
// by §4.3: get/set elimination, constant folding, dead code elimination,
// then A32 condition folding.
func Run(blk *ir.Block, cfg Config, a32Cond Condition) {
	if cfg.Enabled {
		eliminateGetSet(blk)
		foldConstants(blk)
		eliminateDeadCode(blk)
	}
	// Condition folding always runs: it is how an A32 block with a non-AL
	// block-level condition gets its Terminal shape decided, which every
	// downstream consumer (backend, dispatcher) depends on regardless of
	// whether other optimizations ran.
	foldA32Condition(blk, a32Cond)
}
