package ir

import (
	"testing"

	"github.com/rtiangha/dynarmic/internal/loc"
)

func newTestBlock() (*Block, *Builder) {
	blk := NewBlock(0, loc.NewA32(0, false, false, 0, false))
	return blk, NewBuilder(blk)
}

// TestRegisterRoundTrip covers §8 property 3's first half: SetRegister(r,
// v); GetRegister(r) resolves to v once optimized is not exercised here
// (see optimizer tests), but at the raw IR level the Set/Get pair must at
// least be constructible and ordered correctly.
func TestRegisterRoundTrip(t *testing.T) {
	blk, b := newTestBlock()
	v := b.Iconst(TypeU32, 42)
	b.SetRegister(0, v)
	got := b.GetRegister(0, TypeU32)
	if !got.Valid() {
		t.Fatal("GetRegister must produce a valid Value")
	}
	if blk.NumInsts() != 3 { // Iconst, SetRegister, GetRegister
		t.Errorf("NumInsts = %d, want 3", blk.NumInsts())
	}
}

func TestPseudoOperationLinking(t *testing.T) {
	blk, b := newTestBlock()
	x := b.Iconst(TypeU32, 10)
	y := b.Iconst(TypeU32, 20)
	_, overflow := b.SignedSaturatedAdd(TypeU32, x, y, true)

	if !overflow.Valid() {
		t.Fatal("wantOverflow=true must produce a valid overflow Value")
	}

	// Find the producer and pseudo Insts by walking the block.
	var producer, pseudo *Inst
	blk.ForEachInst(func(inst *Inst) {
		if inst.Opcode() == OpcodeSignedSaturatedAdd {
			producer = inst
		}
		if inst.Opcode() == OpcodeGetOverflowFromOp {
			pseudo = inst
		}
	})
	if producer == nil || pseudo == nil {
		t.Fatal("expected both a SignedSaturatedAdd and a GetOverflowFromOp inst")
	}
	if producer.Pseudo() != pseudo {
		t.Error("producer.Pseudo() must point at the GetOverflowFromOp inst")
	}
	if pseudo.Producer() != producer {
		t.Error("pseudo.Producer() must point back at the producer inst")
	}
}

func TestPseudoOperationOmittedWhenNotWanted(t *testing.T) {
	blk, b := newTestBlock()
	x := b.Iconst(TypeU32, 10)
	y := b.Iconst(TypeU32, 20)
	_, overflow := b.SignedSaturatedAdd(TypeU32, x, y, false)
	if overflow.Valid() {
		t.Error("wantOverflow=false must not produce a valid overflow Value")
	}
	blk.ForEachInst(func(inst *Inst) {
		if inst.Opcode() == OpcodeGetOverflowFromOp {
			t.Error("no GetOverflowFromOp inst should be emitted when wantOverflow is false")
		}
	})
}

// TestEraseRemovesPseudoLinkBothWays covers the data model invariant:
// "removing an Inst removes its pseudo links."
func TestEraseRemovesPseudoLinkBothWays(t *testing.T) {
	blk, b := newTestBlock()
	x := b.Iconst(TypeU32, 1)
	y := b.Iconst(TypeU32, 2)
	b.SignedSaturatedAdd(TypeU32, x, y, true)

	var producer, pseudo *Inst
	blk.ForEachInst(func(inst *Inst) {
		if inst.Opcode() == OpcodeSignedSaturatedAdd {
			producer = inst
		}
		if inst.Opcode() == OpcodeGetOverflowFromOp {
			pseudo = inst
		}
	})

	blk.Erase(producer)
	if producer.Pseudo() != nil {
		t.Error("erasing the producer must clear its own pseudo link")
	}
	if pseudo.Producer() != nil {
		t.Error("erasing the producer must clear the pseudo inst's back-link too")
	}
	if producer.Live() {
		t.Error("erased inst must report Live() == false")
	}
}

func TestAttachPseudoOverwritesPreviousLink(t *testing.T) {
	blk, b := newTestBlock()
	x := b.Iconst(TypeU32, 1)
	y := b.Iconst(TypeU32, 2)
	_, overflow := b.SignedSaturatedAdd(TypeU32, x, y, true)
	if !overflow.Valid() {
		t.Fatal("expected an initial pseudo link")
	}

	var producerInst, firstPseudo *Inst
	blk.ForEachInst(func(inst *Inst) {
		if inst.Opcode() == OpcodeSignedSaturatedAdd {
			producerInst = inst
		}
		if inst.Opcode() == OpcodeGetOverflowFromOp {
			firstPseudo = inst
		}
	})

	secondPseudoInst := blk.Insert(&Inst{opcode: OpcodeGetOverflowFromOp, typ: TypeU1, arg0: ValueInvalid, arg1: ValueInvalid, arg2: ValueInvalid})
	_ = secondPseudoInst
	var secondInst *Inst
	blk.ForEachInst(func(inst *Inst) {
		if inst.Opcode() == OpcodeGetOverflowFromOp && inst != firstPseudo {
			secondInst = inst
		}
	})
	blk.AttachPseudo(producerInst, secondInst)

	if producerInst.Pseudo() != secondInst {
		t.Error("AttachPseudo must overwrite, not stack, the previous pseudo link")
	}
}

func TestSetTerminalPanicsOnSecondCall(t *testing.T) {
	blk, _ := newTestBlock()
	blk.SetTerminal(ReturnToDispatch())
	defer func() {
		if recover() == nil {
			t.Error("a second SetTerminal call must panic")
		}
	}()
	blk.SetTerminal(ReturnToDispatch())
}

func TestSetTerminalUncheckedAllowsReplacement(t *testing.T) {
	blk, _ := newTestBlock()
	blk.SetTerminal(ReturnToDispatch())
	blk.SetTerminalUnchecked(LinkBlockFast(loc.NewA32(4, false, false, 0, false)))
	if blk.Terminal.Kind != TerminalLinkBlockFast {
		t.Error("SetTerminalUnchecked must replace the previously-set terminal")
	}
}
