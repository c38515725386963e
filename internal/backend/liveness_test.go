package backend

import (
	"testing"

	"github.com/rtiangha/dynarmic/internal/ir"
	"github.com/rtiangha/dynarmic/internal/loc"
)

// TestLastUseTracksTerminalCond ensures a value read only by the block's
// Terminal (never by another instruction's Args) is still recorded, since
// EndOfAllocScope must not release its register before the terminal lowers.
func TestLastUseTracksTerminalCond(t *testing.T) {
	start := loc.NewA32(0x1000, false, false, 0, false)
	blk := ir.NewBlock(0, start)
	b := ir.NewBuilder(blk)

	cond := b.GetZFlag()
	sum := b.Iadd(ir.TypeU32, b.GetRegister(0, ir.TypeU32), b.GetRegister(1, ir.TypeU32))
	b.SetRegister(0, sum)
	blk.SetTerminal(ir.If(cond, ir.ReturnToDispatch(), ir.ReturnToDispatch()))

	last := LastUse(blk)
	if _, ok := last[cond.ID()]; !ok {
		t.Error("a value read only by the Terminal's Cond must still appear in LastUse")
	}
	if _, ok := last[sum.ID()]; !ok {
		t.Error("a value consumed by SetRegister must appear in LastUse")
	}
}

// TestLastUseTracksPseudoProducer covers the GetXFromOp pseudo-op case: the
// producer's result does not appear in the pseudo-op's own Args(), so
// LastUse must record it via Producer() instead.
func TestLastUseTracksPseudoProducer(t *testing.T) {
	start := loc.NewA32(0x2000, false, false, 0, false)
	blk := ir.NewBlock(0, start)
	b := ir.NewBuilder(blk)

	sum, overflow := b.SignedSaturatedAdd(ir.TypeU32, b.GetRegister(0, ir.TypeU32), b.GetRegister(1, ir.TypeU32), true)
	b.SetRegister(0, sum)
	b.OrQFlag(overflow)
	blk.SetTerminal(ir.ReturnToDispatch())

	var producerInst *ir.Inst
	blk.ForEachInst(func(inst *ir.Inst) {
		if inst.Return() == sum {
			producerInst = inst
		}
	})
	if producerInst == nil {
		t.Fatal("could not find the instruction producing sum")
	}

	last := LastUse(blk)
	if _, ok := last[producerInst.Return().ID()]; !ok {
		t.Error("a pseudo-op's producer result must appear in LastUse even though Args() omits it")
	}
}

// fakeEmitter records which Emit* method LowerTerminal dispatches to, and
// invokes the then/els thunks it's handed for split terminals so nested
// If/CheckBit/CheckHalt arms get exercised too.
type fakeEmitter struct {
	calls []string
}

func (f *fakeEmitter) EmitLinkBlock(nextPacked uint64)     { f.calls = append(f.calls, "LinkBlock") }
func (f *fakeEmitter) EmitLinkBlockFast(nextPacked uint64) { f.calls = append(f.calls, "LinkBlockFast") }
func (f *fakeEmitter) EmitPopRSBHint()                     { f.calls = append(f.calls, "PopRSBHint") }
func (f *fakeEmitter) EmitFastDispatchHint()               { f.calls = append(f.calls, "FastDispatchHint") }
func (f *fakeEmitter) EmitInterpretFallback(nextPacked uint64, n uint32) {
	f.calls = append(f.calls, "InterpretFallback")
}
func (f *fakeEmitter) EmitReturnToDispatch() { f.calls = append(f.calls, "ReturnToDispatch") }
func (f *fakeEmitter) EmitConditionalSplit(cond ir.Value, then, els func()) {
	f.calls = append(f.calls, "ConditionalSplit")
	then()
	els()
}
func (f *fakeEmitter) EmitCheckBitSplit(bit ir.CheckBitName, then, els func()) {
	f.calls = append(f.calls, "CheckBitSplit")
	then()
	els()
}
func (f *fakeEmitter) EmitCheckHaltSplit(then, els func()) {
	f.calls = append(f.calls, "CheckHaltSplit")
	then()
	els()
}

// TestLowerTerminalRecursesIntoNestedArms covers §4.6's "lowering is a
// single match": an If wrapping a CheckHalt wrapping two leaves must visit
// every leaf exactly once, in program order.
func TestLowerTerminalRecursesIntoNestedArms(t *testing.T) {
	start := loc.NewA32(0x1000, false, false, 0, false)
	blk := ir.NewBlock(0, start)
	b := ir.NewBuilder(blk)
	cond := b.GetZFlag()

	inner := ir.CheckHalt(ir.PopRSBHint(), ir.ReturnToDispatch())
	term := ir.If(cond, inner, ir.FastDispatchHint())

	e := &fakeEmitter{}
	LowerTerminal(e, &term)

	want := []string{"ConditionalSplit", "CheckHaltSplit", "PopRSBHint", "ReturnToDispatch", "FastDispatchHint"}
	if len(e.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", e.calls, want)
	}
	for i, c := range want {
		if e.calls[i] != c {
			t.Errorf("calls[%d] = %s, want %s", i, e.calls[i], c)
		}
	}
}

// TestLowerTerminalLeafKinds covers the six leaf terminal kinds that do
// not recurse.
func TestLowerTerminalLeafKinds(t *testing.T) {
	next := loc.NewA32(0x3000, false, false, 0, false)
	cases := []struct {
		name string
		term ir.Terminal
		want string
	}{
		{"Interpret", ir.Interpret(next, 4), "InterpretFallback"},
		{"ReturnToDispatch", ir.ReturnToDispatch(), "ReturnToDispatch"},
		{"LinkBlock", ir.LinkBlock(next), "LinkBlock"},
		{"LinkBlockFast", ir.LinkBlockFast(next), "LinkBlockFast"},
		{"PopRSBHint", ir.PopRSBHint(), "PopRSBHint"},
		{"FastDispatchHint", ir.FastDispatchHint(), "FastDispatchHint"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			e := &fakeEmitter{}
			term := c.term
			LowerTerminal(e, &term)
			if len(e.calls) != 1 || e.calls[0] != c.want {
				t.Errorf("calls = %v, want [%s]", e.calls, c.want)
			}
		})
	}
}
