package backend

import (
	"github.com/rtiangha/dynarmic/internal/ir"
)

// TerminalEmitter is implemented by each ISA's Machine and supplies the
// host-specific primitives LowerTerminal needs for each of the nine
// terminal kinds, per §4.6. Keeping the nine-way switch itself in this
// shared, host-agnostic function (rather than duplicated in every isa
// package) is the "lowering is a single match" design note of §9 — only
// the leaves are host-specific.
type TerminalEmitter interface {
	// EmitLinkBlock lowers a LinkBlock terminal: compare the remaining-
	// cycles register against zero; if positive, fall through to a
	// directly patched jump to next's entrypoint (patched in once next
	// compiles); otherwise materialize next and return to the dispatcher.
	// Falls back to the unpatched materialize-PC+return stub when next has
	// not yet compiled. See DESIGN.md's RSB/FastDispatchHint entry: this
	// backend does not yet push an RSB entry on the slow-path arm.
	EmitLinkBlock(nextPacked uint64)
	// EmitLinkBlockFast lowers an unconditional patched jump to next, same
	// unpatched fallback as EmitLinkBlock.
	EmitLinkBlockFast(nextPacked uint64)
	// EmitPopRSBHint lowers a PopRSBHint terminal. Today this degrades to a
	// plain return to the dispatcher, which re-derives the target via a
	// full BlockCache lookup rather than a hand-written RSB-pop handler —
	// see DESIGN.md.
	EmitPopRSBHint()
	// EmitFastDispatchHint lowers a FastDispatchHint terminal. Today this
	// degrades to a plain return to the dispatcher rather than an inline
	// CRC32-indexed FastDispatchTable probe — see DESIGN.md.
	EmitFastDispatchHint()
	// EmitInterpretFallback stores next and returns to the dispatcher. It
	// does not call the embedder's interpreter-fallback callback, so n is
	// not used.
	EmitInterpretFallback(nextPacked uint64, n uint32)
	// EmitReturnToDispatch lowers an unconditional return to the dispatcher.
	EmitReturnToDispatch()
	// EmitConditionalSplit emits a host conditional branch on cond; then
	// and els are invoked (by LowerTerminal) to emit each arm's own
	// terminal once the branch is in place.
	EmitConditionalSplit(cond ir.Value, then, els func())
	// EmitCheckBitSplit tests the named JitState byte and branches.
	EmitCheckBitSplit(bit ir.CheckBitName, then, els func())
	// EmitCheckHaltSplit tests the halt byte and branches.
	EmitCheckHaltSplit(then, els func())
}

// LowerTerminal lowers t via e, recursing into nested arms for TerminalIf/
// CheckBit/CheckHalt. Called once, as the final step of CompileBlock, by
// every ISA's Machine.
func LowerTerminal(e TerminalEmitter, t *ir.Terminal) {
	switch t.Kind {
	case ir.TerminalInterpret:
		e.EmitInterpretFallback(t.Next.Hash64(), t.NInstructions)
	case ir.TerminalReturnToDispatch:
		e.EmitReturnToDispatch()
	case ir.TerminalLinkBlock:
		e.EmitLinkBlock(t.Next.Hash64())
	case ir.TerminalLinkBlockFast:
		e.EmitLinkBlockFast(t.Next.Hash64())
	case ir.TerminalPopRSBHint:
		e.EmitPopRSBHint()
	case ir.TerminalFastDispatchHint:
		e.EmitFastDispatchHint()
	case ir.TerminalIf:
		e.EmitConditionalSplit(t.Cond, func() { LowerTerminal(e, t.Then) }, func() { LowerTerminal(e, t.Else) })
	case ir.TerminalCheckBit:
		e.EmitCheckBitSplit(t.CheckBit, func() { LowerTerminal(e, t.Then) }, func() { LowerTerminal(e, t.Else) })
	case ir.TerminalCheckHalt:
		e.EmitCheckHaltSplit(func() { LowerTerminal(e, t.Then) }, func() { LowerTerminal(e, t.Else) })
	default:
		panic("backend: unhandled terminal kind")
	}
}
