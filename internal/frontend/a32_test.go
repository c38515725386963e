package frontend

import (
	"testing"

	"github.com/rtiangha/dynarmic/internal/armcond"
	"github.com/rtiangha/dynarmic/internal/ir"
	"github.com/rtiangha/dynarmic/internal/loc"
	"github.com/rtiangha/dynarmic/internal/optimizer"
)

// TestNonALBlockMaterializesConditionValue ensures a conditional A32
// instruction's block carries a valid ConditionValue before the block
// finishes, so the optimizer's A32 condition-folding pass (§4.3 pass 4)
// never sees a non-AL block with no materialized guard.
func TestNonALBlockMaterializesConditionValue(t *testing.T) {
	start := loc.NewA32(0x1000, false, false, 0, false)
	l := NewA32Lifter(0, start)

	l.MOVImm(armcond.EQ, false, 0, 1, false, 0)
	l.BX(armcond.AL, RegLR)

	blk := l.Block()
	if !blk.ConditionValue.Valid() {
		t.Fatal("non-AL first instruction must materialize blk.ConditionValue")
	}
	if blk.ConditionFailedNext != blk.End {
		t.Errorf("ConditionFailedNext = %s, want End = %s", blk.ConditionFailedNext, blk.End)
	}
}

// TestALBlockLeavesConditionValueInvalid ensures an unconditional block
// never materializes a guard.
func TestALBlockLeavesConditionValueInvalid(t *testing.T) {
	start := loc.NewA32(0x1000, false, false, 0, false)
	l := NewA32Lifter(0, start)
	l.MOVImm(armcond.AL, false, 0, 1, false, 0)
	l.BX(armcond.AL, RegLR)

	if l.Block().ConditionValue.Valid() {
		t.Error("an AL block must not materialize a ConditionValue")
	}
}

// TestConditionFoldingSucceedsAfterLifting is an end-to-end check that a
// lifted conditional block survives the full optimizer pipeline without
// the panic that an unmaterialized ConditionValue would trigger (§4.3
// pass 4's invariant), matching §8 scenario S1's condition-handling
// sibling.
func TestConditionFoldingSucceedsAfterLifting(t *testing.T) {
	start := loc.NewA32(0x2000, false, false, 0, false)
	l := NewA32Lifter(0, start)
	l.MOVImm(armcond.NE, false, 0, 1, false, 0)
	l.BX(armcond.AL, RegLR)

	blk := l.Block()
	optimizer.Run(blk, optimizer.Config{Enabled: true}, l.BlockCondition())

	if blk.Terminal.Kind != ir.TerminalIf {
		t.Fatalf("conditional block must fold to an If terminal, got %s", blk.Terminal.Kind)
	}
	if blk.Terminal.Else.Kind != ir.TerminalInterpret || blk.Terminal.Else.Next != blk.End {
		t.Error("the Else arm must resume at the block's End descriptor")
	}
}

// TestMixedConditionSplitsBlock covers checkBlockCondition's documented
// behavior: an instruction whose condition differs from the block's
// established condition ends the block early with LinkBlockFast rather
// than being lifted into it.
func TestMixedConditionSplitsBlock(t *testing.T) {
	start := loc.NewA32(0x3000, false, false, 0, false)
	l := NewA32Lifter(0, start)
	l.MOVImm(armcond.EQ, false, 0, 1, false, 0)
	l.ADDImm(armcond.NE, false, 1, 1, 2) // different condition: must stop the block here

	blk := l.Block()
	if !blk.Sealed() {
		t.Fatal("a mismatched-condition instruction must seal the block")
	}
	if blk.Terminal.Kind != ir.TerminalLinkBlockFast {
		t.Errorf("expected LinkBlockFast on condition mismatch, got %s", blk.Terminal.Kind)
	}
	if blk.NumInsts() == 0 {
		t.Error("the first (EQ) instruction must still have been lifted into the block")
	}
}
