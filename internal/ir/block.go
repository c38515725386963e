package ir

import (
	"fmt"

	"github.com/rtiangha/dynarmic/internal/loc"
)

// BlockID uniquely identifies a Block within one compilation.
type BlockID uint32

// Block is a translated contiguous range of guest instructions terminated
// by a control-flow instruction or mode-changing side effect, matching the
// data model's Block. Unlike wazero's BasicBlock (which models an SSA
// function's internal CFG with block parameters for PHIs), a guest Block
// here is always a single straight-line sequence: guest control flow is
// expressed entirely through the Terminal, never through intra-block
// branches to other Blocks, so there is no block-parameter/PHI machinery
// to carry over from the teacher.
type Block struct {
	id BlockID

	// Start/End are the LocationDescriptors bracketing this block; Start
	// is its cache key, End is the descriptor execution would continue at
	// after falling off the end (used to validate PopRSBHint matches).
	Start, End loc.Descriptor

	// PCRangeLo/PCRangeHi is the guest PC range this block covers, used by
	// the block cache's interval map for SMC invalidation.
	PCRangeLo, PCRangeHi uint64

	// CycleCost is the estimated guest-cycle cost of this block (the engine
	// sets it to the lifted instruction count); no terminal lowering reads
	// it.
	CycleCost uint32

	root, tail *Inst
	numInsts   int

	// Terminal is set once the lifter finishes this block; nil beforehand.
	Terminal *Terminal

	// ConditionValue is the U1 IR value materialized by the lifter when
	// this block was lifted under a non-AL A32 condition; ValueInvalid for
	// Thumb/A64 blocks and AL A32 blocks.
	ConditionValue Value
	// ConditionFailedNext is where execution resumes, unchanged, if
	// ConditionValue evaluates false.
	ConditionFailedNext loc.Descriptor
	// ConditionIsPrelude records whether condition folding had to fall
	// back to an upfront branch (a side effect preceded the first
	// conditional branch point) instead of folding the condition into the
	// terminal, per §4.3 pass 4.
	ConditionIsPrelude bool

	nextGID GroupID
	valueID uint32

	sealed bool
}

// NewBlock creates an empty Block identified by id, starting at start.
func NewBlock(id BlockID, start loc.Descriptor) *Block {
	return &Block{id: id, Start: start, PCRangeLo: start.PC(), PCRangeHi: start.PC(), ConditionValue: ValueInvalid}
}

// ID returns this Block's identifier.
func (b *Block) ID() BlockID { return b.id }

// Root returns the first Inst in program order, or nil if empty.
func (b *Block) Root() *Inst { return b.root }

// Tail returns the last Inst in program order, or nil if empty.
func (b *Block) Tail() *Inst { return b.tail }

// NumInsts returns how many live instructions remain in the block.
func (b *Block) NumInsts() int { return b.numInsts }

// nextValue allocates a fresh ValueID, exactly mirroring the monotonically
// increasing counter scheme of the teacher's builder.
func (b *Block) nextValue(t Type) Value {
	id := b.valueID
	b.valueID++
	return Value(ValueID(id)).WithType(t)
}

// Insert appends inst to the tail of the block and assigns it a fresh
// GroupID boundary whenever it has a side effect, following the teacher's
// InstructionGroupID scheme (see ssa.Instruction doc comment): two
// instructions are only interchangeable by the optimizer if they fall in
// the same group, and every side-effecting Inst both closes its own group
// and opens the next one.
func (b *Block) Insert(inst *Inst) Value {
	inst.block = b
	inst.live = true
	if b.tail == nil {
		b.root, b.tail = inst, inst
	} else {
		inst.prev = b.tail
		b.tail.next = inst
		b.tail = inst
	}
	b.numInsts++

	inst.gid = b.nextGID
	if inst.HasSideEffect() {
		b.nextGID++
	}

	if inst.typ != typeInvalid {
		inst.result = b.nextValue(inst.typ)
		return inst.result
	}
	return ValueInvalid
}

// Erase unlinks inst from the block and clears its pseudo-operation links
// on both sides, preserving the invariant that removing an Inst removes
// its pseudo links.
func (b *Block) Erase(inst *Inst) {
	if inst.prev != nil {
		inst.prev.next = inst.next
	} else {
		b.root = inst.next
	}
	if inst.next != nil {
		inst.next.prev = inst.prev
	} else {
		b.tail = inst.prev
	}
	if inst.pseudo != nil {
		inst.pseudo.producer = nil
		inst.pseudo = nil
	}
	if inst.producer != nil {
		inst.producer.pseudo = nil
		inst.producer = nil
	}
	inst.live = false
	b.numInsts--
}

// AttachPseudo records that pseudoInst reads producer's side channel,
// enforcing the "at most one pseudo-operation link per side channel"
// invariant by overwriting (and never stacking) any previous link.
func (b *Block) AttachPseudo(producer, pseudoInst *Inst) {
	producer.pseudo = pseudoInst
	pseudoInst.producer = producer
}

// SetTerminal finalizes the block; must be called exactly once per block.
func (b *Block) SetTerminal(t Terminal) {
	if b.Terminal != nil {
		panic("ir: block terminal already set")
	}
	b.Terminal = &t
	b.sealed = true
}

// Sealed reports whether SetTerminal has been called.
func (b *Block) Sealed() bool { return b.sealed }

// SetTerminalUnchecked overwrites an already-set Terminal; used only by the
// A32 condition-folding optimizer pass, which must replace the lifter's
// original terminal with an If{cond, original, ConditionFailed} wrapper
// after the block has already been sealed.
func (b *Block) SetTerminalUnchecked(t Terminal) {
	b.Terminal = &t
}

// ForEachInst calls fn for every live Inst in program order.
func (b *Block) ForEachInst(fn func(*Inst)) {
	for i := b.root; i != nil; i = i.next {
		fn(i)
	}
}

// String implements fmt.Stringer for debug dumps.
func (b *Block) String() string {
	return fmt.Sprintf("blk%d[%s..%s]", b.id, b.Start, b.End)
}
