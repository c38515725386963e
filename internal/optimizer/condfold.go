package optimizer

import (
	"github.com/rtiangha/dynarmic/internal/armcond"
	"github.com/rtiangha/dynarmic/internal/ir"
	"github.com/rtiangha/dynarmic/internal/loc"
)

// Condition is the A32 condition code a whole block was lifted under (AL
// for Thumb and A64, which carry no block-level condition).
type Condition = armcond.Code

// ConditionFailedNext is the Descriptor the optimizer folds a block's
// "condition failed" path to: the instruction immediately following this
// block, with no architectural state changed, per §4.3 pass 4's
// `ConditionFailedLocation`. The lifter supplies it since only it knows the
// guest PC/mode the block started at.
type ConditionFailedNext = loc.Descriptor

// foldA32Condition implements §4.3 pass 4. If the block's condition is not
// AL, the whole block's condition is folded into its Terminal as
// `If{cond, then=original terminal, else=Interpret(ConditionFailedNext, 0)}`.
// If any Inst in the block has a side effect, blk.ConditionIsPrelude is set
// as well; the If wrapping is the same in both cases.
func foldA32Condition(blk *ir.Block, cond Condition) {
	if cond.AlwaysTrue() || blk.Terminal == nil {
		return
	}

	hasEarlySideEffect := false
	blk.ForEachInst(func(inst *ir.Inst) {
		if inst.HasSideEffect() {
			hasEarlySideEffect = true
		}
	})

	condValue := blk.ConditionValue
	if !condValue.Valid() {
		// The lifter is required to have materialized the condition test
		// as a U1 IR value (via Get{N,Z,C,V}Flag combinations) whenever
		// the block condition isn't AL; this is an invariant violation,
		// not a recoverable runtime condition (§7: assertion failures are
		// fatal).
		panic("optimizer: non-AL block has no condition Value")
	}

	failed := ir.Interpret(blk.ConditionFailedNext, 0)
	// An Interpret(next, 0) terminal is a degenerate "just resume
	// dispatch at next" marker; the backend lowers it identically to
	// ReturnToDispatch after materializing PC=next, which is exactly the
	// condition-failed behavior (architectural state unchanged, control
	// resumes one instruction later).
	original := *blk.Terminal

	if hasEarlySideEffect {
		// A side effect occurred before we could prove the condition only
		// gates the terminal, so the guard must run as an actual prelude
		// branch rather than a block-level fold: wrap with the same If
		// shape, but record that this is a prelude so the backend emits it
		// at block entry instead of folding it into exit lowering.
		blk.ConditionIsPrelude = true
	}

	blk.SetTerminalUnchecked(ir.If(condValue, original, failed))
}
