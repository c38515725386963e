package ir

import "github.com/rtiangha/dynarmic/internal/loc"

// TerminalKind tags how control leaves a Block. This is the nine-way sum
// type from the design notes; Go has no sum type, so Terminal carries every
// kind's payload and TerminalKind says which fields are meaningful.
type TerminalKind byte

const (
	// TerminalInterpret stores Next and returns to the dispatcher; the
	// lowering does not call the embedder's interpreter-fallback callback,
	// and NInstructions is not used.
	TerminalInterpret TerminalKind = iota
	// TerminalReturnToDispatch performs an unconditional return to the
	// dispatcher.
	TerminalReturnToDispatch
	// TerminalLinkBlock checks the remaining-cycles register; if positive,
	// falls through to a directly patched jump to Next, else stores Next and
	// returns to the dispatcher. The lowering pushes no RSB entry.
	TerminalLinkBlock
	// TerminalLinkBlockFast is an unconditional patched jump to Next.
	TerminalLinkBlockFast
	// TerminalPopRSBHint jumps into the RSB-pop handler.
	TerminalPopRSBHint
	// TerminalFastDispatchHint CRC32-indexes the fast-dispatch table.
	TerminalFastDispatchHint
	// TerminalIf emits a host conditional branch on Cond; Then and Else are
	// each a nested *Terminal.
	TerminalIf
	// TerminalCheckBit tests a named JitState byte and branches.
	TerminalCheckBit
	// TerminalCheckHalt tests the halt byte and branches.
	TerminalCheckHalt
)

func (k TerminalKind) String() string {
	switch k {
	case TerminalInterpret:
		return "Interpret"
	case TerminalReturnToDispatch:
		return "ReturnToDispatch"
	case TerminalLinkBlock:
		return "LinkBlock"
	case TerminalLinkBlockFast:
		return "LinkBlockFast"
	case TerminalPopRSBHint:
		return "PopRSBHint"
	case TerminalFastDispatchHint:
		return "FastDispatchHint"
	case TerminalIf:
		return "If"
	case TerminalCheckBit:
		return "CheckBit"
	case TerminalCheckHalt:
		return "CheckHalt"
	default:
		return "Unknown"
	}
}

// CheckBitName identifies which JitState byte TerminalCheckBit tests.
type CheckBitName byte

const (
	CheckBitNone CheckBitName = iota
	CheckBitCondFailed
)

// Terminal is the single tagged value describing how control leaves a
// Block, per the data model's nine-terminal sum type. Lowering is a single
// switch over Kind (see LowerTerminal in internal/backend/dispatcher.go).
type Terminal struct {
	Kind TerminalKind

	// Next is the target Descriptor for LinkBlock/LinkBlockFast/Interpret.
	Next loc.Descriptor
	// NInstructions is the fallback instruction count for Interpret.
	NInstructions uint32

	// Cond is the boolean Value tested by TerminalIf; unused for other kinds.
	Cond Value
	// Then/Else are the nested Terminals for TerminalIf.
	Then, Else *Terminal

	// CheckBit names which byte TerminalCheckBit tests; CheckBitThen/Else
	// name where control goes depending on the bit, reusing Then/Else.
	CheckBit CheckBitName
}

// Interpret builds an Interpret terminal.
func Interpret(next loc.Descriptor, n uint32) Terminal {
	return Terminal{Kind: TerminalInterpret, Next: next, NInstructions: n}
}

// ReturnToDispatch builds a ReturnToDispatch terminal.
func ReturnToDispatch() Terminal { return Terminal{Kind: TerminalReturnToDispatch} }

// LinkBlock builds a LinkBlock terminal.
func LinkBlock(next loc.Descriptor) Terminal { return Terminal{Kind: TerminalLinkBlock, Next: next} }

// LinkBlockFast builds a LinkBlockFast terminal.
func LinkBlockFast(next loc.Descriptor) Terminal {
	return Terminal{Kind: TerminalLinkBlockFast, Next: next}
}

// PopRSBHint builds a PopRSBHint terminal.
func PopRSBHint() Terminal { return Terminal{Kind: TerminalPopRSBHint} }

// FastDispatchHint builds a FastDispatchHint terminal.
func FastDispatchHint() Terminal { return Terminal{Kind: TerminalFastDispatchHint} }

// If builds an If terminal.
func If(cond Value, then, els Terminal) Terminal {
	return Terminal{Kind: TerminalIf, Cond: cond, Then: &then, Else: &els}
}

// CheckBit builds a CheckBit terminal.
func CheckBit(name CheckBitName, then, els Terminal) Terminal {
	return Terminal{Kind: TerminalCheckBit, CheckBit: name, Then: &then, Else: &els}
}

// CheckHalt builds a CheckHalt terminal.
func CheckHalt(then, els Terminal) Terminal {
	return Terminal{Kind: TerminalCheckHalt, Then: &then, Else: &els}
}
