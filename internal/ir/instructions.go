package ir

import "fmt"

// Opcode identifies the operation an Inst performs. Every guest instruction
// lifts to a sequence of these microinstructions.
type Opcode uint32

const (
	OpcodeInvalid Opcode = iota

	// --- Guest register / flag access -------------------------------------
	OpcodeGetRegister  // GetRegister(reg) -> U32/U64
	OpcodeSetRegister  // SetRegister(reg, v)
	OpcodeGetExtRegister
	OpcodeSetExtRegister
	OpcodeGetNFlag
	OpcodeSetNFlag
	OpcodeGetZFlag
	OpcodeSetZFlag
	OpcodeGetCFlag
	OpcodeSetCFlag
	OpcodeGetVFlag
	OpcodeSetVFlag
	OpcodeOrQFlag
	OpcodeGetGEFlags
	OpcodeSetGEFlags

	// --- Memory --------------------------------------------------------
	OpcodeReadMemory8
	OpcodeReadMemory16
	OpcodeReadMemory32
	OpcodeReadMemory64
	OpcodeWriteMemory8
	OpcodeWriteMemory16
	OpcodeWriteMemory32
	OpcodeWriteMemory64
	OpcodeExclusiveReadMemory32
	OpcodeExclusiveReadMemory64
	OpcodeExclusiveWriteMemory32
	OpcodeExclusiveWriteMemory64
	OpcodeDataMemoryBarrier
	OpcodeDataSynchronizationBarrier

	// --- Arithmetic ------------------------------------------------------
	OpcodeIadd
	OpcodeIsub
	OpcodeImul
	OpcodeBand
	OpcodeBor
	OpcodeBxor
	OpcodeBnot
	OpcodeIshl
	OpcodeUshr
	OpcodeSshr
	OpcodeRotr
	OpcodeRotl

	// IcmpEqZero tests whether its single argument is zero, producing a
	// U1; MSB extracts the top bit of its argument's Type width, also a
	// U1. These two are enough to build the N/Z condition-flag
	// computation the lifter needs after every flag-setting data
	// processing instruction without a general comparison opcode.
	OpcodeIcmpEqZero
	OpcodeMSB

	// Saturating arithmetic; each of these has a companion pseudo-op
	// GetOverflowFromOp when the Q flag is observed.
	OpcodeSignedSaturatedAdd
	OpcodeSignedSaturatedSub
	OpcodeUnsignedSaturatedAdd
	OpcodeUnsignedSaturatedSub
	OpcodeSignedSaturation  // SignedSaturation(x, N)
	OpcodeUnsignedSaturation
	OpcodeSignedSaturatedDoublingMultiplyReturnHigh

	// --- Pseudo-operations (side-channel consumers) -----------------------
	OpcodeGetOverflowFromOp // consumes the Q-bit side output of a saturating op
	OpcodeGetCarryFromOp
	OpcodeGetGEFromOp

	// --- Control flow / exceptions -----------------------------------------
	OpcodeCondJump // internal conditional branch within a block, not a terminal
	OpcodeSVC
	OpcodeUndefinedInstruction
	OpcodeExceptionRaised
	OpcodeCallSupervisor

	// --- Coprocessor -------------------------------------------------------
	OpcodeCompileInternalOperation
	OpcodeCompileSendOneWord
	OpcodeCompileSendTwoWords
	OpcodeCompileGetOneWord
	OpcodeCompileGetTwoWords
	OpcodeCompileLoadWords
	OpcodeCompileStoreWords

	// --- Constants -----------------------------------------------------
	OpcodeIconst

	opcodeEnd
)

var opcodeNames = [opcodeEnd]string{
	OpcodeGetRegister:          "GetRegister",
	OpcodeSetRegister:          "SetRegister",
	OpcodeGetExtRegister:       "GetExtRegister",
	OpcodeSetExtRegister:       "SetExtRegister",
	OpcodeGetNFlag:             "GetNFlag",
	OpcodeSetNFlag:             "SetNFlag",
	OpcodeGetZFlag:             "GetZFlag",
	OpcodeSetZFlag:             "SetZFlag",
	OpcodeGetCFlag:             "GetCFlag",
	OpcodeSetCFlag:             "SetCFlag",
	OpcodeGetVFlag:             "GetVFlag",
	OpcodeSetVFlag:             "SetVFlag",
	OpcodeOrQFlag:              "OrQFlag",
	OpcodeGetGEFlags:           "GetGEFlags",
	OpcodeSetGEFlags:           "SetGEFlags",
	OpcodeReadMemory8:          "ReadMemory8",
	OpcodeReadMemory16:         "ReadMemory16",
	OpcodeReadMemory32:         "ReadMemory32",
	OpcodeReadMemory64:         "ReadMemory64",
	OpcodeWriteMemory8:         "WriteMemory8",
	OpcodeWriteMemory16:        "WriteMemory16",
	OpcodeWriteMemory32:        "WriteMemory32",
	OpcodeWriteMemory64:        "WriteMemory64",
	OpcodeExclusiveReadMemory32:  "ExclusiveReadMemory32",
	OpcodeExclusiveReadMemory64:  "ExclusiveReadMemory64",
	OpcodeExclusiveWriteMemory32: "ExclusiveWriteMemory32",
	OpcodeExclusiveWriteMemory64: "ExclusiveWriteMemory64",
	OpcodeDataMemoryBarrier:        "DataMemoryBarrier",
	OpcodeDataSynchronizationBarrier: "DataSynchronizationBarrier",
	OpcodeIadd:    "Iadd",
	OpcodeIsub:    "Isub",
	OpcodeImul:    "Imul",
	OpcodeBand:    "Band",
	OpcodeBor:     "Bor",
	OpcodeBxor:    "Bxor",
	OpcodeBnot:    "Bnot",
	OpcodeIshl:    "Ishl",
	OpcodeUshr:    "Ushr",
	OpcodeSshr:    "Sshr",
	OpcodeRotr:    "Rotr",
	OpcodeRotl:    "Rotl",
	OpcodeIcmpEqZero: "IcmpEqZero",
	OpcodeMSB:        "MSB",
	OpcodeSignedSaturatedAdd:                        "SignedSaturatedAdd",
	OpcodeSignedSaturatedSub:                        "SignedSaturatedSub",
	OpcodeUnsignedSaturatedAdd:                       "UnsignedSaturatedAdd",
	OpcodeUnsignedSaturatedSub:                       "UnsignedSaturatedSub",
	OpcodeSignedSaturation:                           "SignedSaturation",
	OpcodeUnsignedSaturation:                         "UnsignedSaturation",
	OpcodeSignedSaturatedDoublingMultiplyReturnHigh:  "SignedSaturatedDoublingMultiplyReturnHigh",
	OpcodeGetOverflowFromOp: "GetOverflowFromOp",
	OpcodeGetCarryFromOp:    "GetCarryFromOp",
	OpcodeGetGEFromOp:       "GetGEFromOp",
	OpcodeCondJump:              "CondJump",
	OpcodeSVC:                   "SVC",
	OpcodeUndefinedInstruction:  "UndefinedInstruction",
	OpcodeExceptionRaised:       "ExceptionRaised",
	OpcodeCallSupervisor:        "CallSupervisor",
	OpcodeCompileInternalOperation: "CompileInternalOperation",
	OpcodeCompileSendOneWord:       "CompileSendOneWord",
	OpcodeCompileSendTwoWords:      "CompileSendTwoWords",
	OpcodeCompileGetOneWord:        "CompileGetOneWord",
	OpcodeCompileGetTwoWords:       "CompileGetTwoWords",
	OpcodeCompileLoadWords:         "CompileLoadWords",
	OpcodeCompileStoreWords:        "CompileStoreWords",
	OpcodeIconst: "Iconst",
}

// OpcodeEnd returns one past the last valid Opcode, for callers (the
// backend's opcode-coverage check) that need to range over every defined
// opcode without reaching into this package's private sentinel.
func OpcodeEnd() Opcode { return opcodeEnd }

func (o Opcode) String() string {
	if int(o) < len(opcodeNames) && opcodeNames[o] != "" {
		return opcodeNames[o]
	}
	return fmt.Sprintf("Opcode(%d)", o)
}

// sideEffect classifies how DCE and scheduling may treat an Inst, mirroring
// the teacher's three-way sideEffectNone/Traps/Strict split: "none" insts
// are pure and removable when unused, "traps" insts must stay alive (they
// may raise a guest exception) but can still be reordered with others in
// the same InstructionGroupID, and "strict" insts are both pinned and
// ordering barriers.
type sideEffect byte

const (
	sideEffectNone sideEffect = iota
	sideEffectTraps
	sideEffectStrict
)

var instructionSideEffects = [opcodeEnd]sideEffect{
	OpcodeGetRegister:    sideEffectNone,
	OpcodeSetRegister:    sideEffectStrict,
	OpcodeGetExtRegister: sideEffectNone,
	OpcodeSetExtRegister: sideEffectStrict,
	OpcodeGetNFlag:       sideEffectNone,
	OpcodeSetNFlag:       sideEffectStrict,
	OpcodeGetZFlag:       sideEffectNone,
	OpcodeSetZFlag:       sideEffectStrict,
	OpcodeGetCFlag:       sideEffectNone,
	OpcodeSetCFlag:       sideEffectStrict,
	OpcodeGetVFlag:       sideEffectNone,
	OpcodeSetVFlag:       sideEffectStrict,
	OpcodeOrQFlag:        sideEffectStrict,
	OpcodeGetGEFlags:     sideEffectNone,
	OpcodeSetGEFlags:     sideEffectStrict,
	OpcodeReadMemory8:            sideEffectTraps,
	OpcodeReadMemory16:           sideEffectTraps,
	OpcodeReadMemory32:           sideEffectTraps,
	OpcodeReadMemory64:           sideEffectTraps,
	OpcodeWriteMemory8:           sideEffectStrict,
	OpcodeWriteMemory16:          sideEffectStrict,
	OpcodeWriteMemory32:          sideEffectStrict,
	OpcodeWriteMemory64:          sideEffectStrict,
	OpcodeExclusiveReadMemory32:  sideEffectStrict,
	OpcodeExclusiveReadMemory64:  sideEffectStrict,
	OpcodeExclusiveWriteMemory32: sideEffectStrict,
	OpcodeExclusiveWriteMemory64: sideEffectStrict,
	OpcodeDataMemoryBarrier:         sideEffectStrict,
	OpcodeDataSynchronizationBarrier: sideEffectStrict,
	OpcodeIadd: sideEffectNone,
	OpcodeIsub: sideEffectNone,
	OpcodeImul: sideEffectNone,
	OpcodeBand: sideEffectNone,
	OpcodeBor:  sideEffectNone,
	OpcodeBxor: sideEffectNone,
	OpcodeBnot: sideEffectNone,
	OpcodeIshl: sideEffectNone,
	OpcodeUshr: sideEffectNone,
	OpcodeSshr: sideEffectNone,
	OpcodeRotr: sideEffectNone,
	OpcodeRotl: sideEffectNone,
	OpcodeIcmpEqZero: sideEffectNone,
	OpcodeMSB:        sideEffectNone,
	OpcodeSignedSaturatedAdd:                       sideEffectNone,
	OpcodeSignedSaturatedSub:                       sideEffectNone,
	OpcodeUnsignedSaturatedAdd:                      sideEffectNone,
	OpcodeUnsignedSaturatedSub:                      sideEffectNone,
	OpcodeSignedSaturation:                          sideEffectNone,
	OpcodeUnsignedSaturation:                         sideEffectNone,
	OpcodeSignedSaturatedDoublingMultiplyReturnHigh: sideEffectNone,
	OpcodeGetOverflowFromOp: sideEffectNone,
	OpcodeGetCarryFromOp:    sideEffectNone,
	OpcodeGetGEFromOp:       sideEffectNone,
	OpcodeSVC:                  sideEffectStrict,
	OpcodeUndefinedInstruction: sideEffectStrict,
	OpcodeExceptionRaised:      sideEffectStrict,
	OpcodeCallSupervisor:       sideEffectStrict,
	OpcodeCompileInternalOperation: sideEffectStrict,
	OpcodeCompileSendOneWord:       sideEffectStrict,
	OpcodeCompileSendTwoWords:      sideEffectStrict,
	OpcodeCompileGetOneWord:        sideEffectStrict,
	OpcodeCompileGetTwoWords:       sideEffectStrict,
	OpcodeCompileLoadWords:         sideEffectStrict,
	OpcodeCompileStoreWords:        sideEffectStrict,
	OpcodeIconst: sideEffectNone,
}

// GroupID groups instructions that are interchangeable with each other
// except for the last one in the group, which carries a side effect. Every
// Inst with a side effect ends its group. GroupIDs are numbered per block,
// so two blocks can use the same GroupID.
type GroupID uint32

// Inst is a single microinstruction. Since Go has no sum type, one struct
// shape is reused for every Opcode and the fields are interpreted according
// to Opcode, exactly as the teacher's ssa.Instruction flattens all
// instruction shapes into one struct.
type Inst struct {
	opcode Opcode
	// imm holds an immediate operand (register index, shift amount,
	// saturation width N, SVC number, coprocessor id, ...).
	imm uint64
	// imm2 holds a second immediate where one isn't enough (e.g. a
	// coprocessor CRn/CRm/opc pair packed by the caller).
	imm2 uint64

	arg0, arg1, arg2 Value
	args             []Value // used by variable-arity ops (CompileSendTwoWords, calls)

	typ Type

	result Value

	// pseudo is the back-edge to the Inst consuming this one's side-channel
	// output (e.g. the GetOverflowFromOp hanging off a saturating add).
	// nil when no pseudo-operation has been attached. Matches the spec's
	// invariant of at most one pseudo-operation link per side channel by
	// using a single field rather than a slice.
	pseudo *Inst
	// producer is set on a pseudo-op Inst itself, pointing back at the Inst
	// whose side channel it reads.
	producer *Inst

	gid  GroupID
	live bool // cleared by DCE; the Inst is kept allocated but unlinked

	prev, next *Inst
	block      *Block
}

// Opcode returns the operation this Inst performs.
func (i *Inst) Opcode() Opcode { return i.opcode }

// GroupID returns the instruction group this Inst belongs to.
func (i *Inst) GroupID() GroupID { return i.gid }

// Args returns up to three positional Value arguments plus any overflow
// slice for variable-arity opcodes.
func (i *Inst) Args() (Value, Value, Value, []Value) { return i.arg0, i.arg1, i.arg2, i.args }

// Arg returns the first argument.
func (i *Inst) Arg() Value { return i.arg0 }

// Imm returns the first immediate operand.
func (i *Inst) Imm() uint64 { return i.imm }

// Imm2 returns the second immediate operand.
func (i *Inst) Imm2() uint64 { return i.imm2 }

// Return returns the Value this Inst defines, or an invalid Value if it
// defines nothing (e.g. WriteMemory, SetRegister).
func (i *Inst) Return() Value { return i.result }

// Pseudo returns the pseudo-operation Inst attached to this Inst's side
// channel, or nil if none was requested.
func (i *Inst) Pseudo() *Inst { return i.pseudo }

// Producer returns the Inst this pseudo-operation Inst reads its side
// channel from. Only meaningful when Opcode is one of the GetXFromOp family.
func (i *Inst) Producer() *Inst { return i.producer }

// Next returns the next Inst in block order.
func (i *Inst) Next() *Inst { return i.next }

// Prev returns the previous Inst in block order.
func (i *Inst) Prev() *Inst { return i.prev }

// SideEffect classifies this Inst for DCE/reordering purposes.
func (i *Inst) SideEffect() sideEffect { return instructionSideEffects[i.opcode] }

// HasSideEffect reports whether this Inst must never be removed even if its
// result (if any) is unused.
func (i *Inst) HasSideEffect() bool { return i.SideEffect() != sideEffectNone }

// Live reports whether this Inst is still linked into its block; DCE clears
// it on removed instructions so dangling references can detect staleness.
func (i *Inst) Live() bool { return i.live }

// IsConst reports whether this Inst is an Iconst, i.e. all of its "value" is
// really just an immediate; used by constant folding to test operands.
func (i *Inst) IsConst() bool { return i.opcode == OpcodeIconst }

// ConstValue returns the immediate an Iconst Inst carries.
func (i *Inst) ConstValue() uint64 { return i.imm }

// RewriteArgs applies resolve to every Value argument of this Inst in
// place, used by get/set elimination's alias-resolution step, which
// rewrites consumers rather than mutating producers, mirroring the
// teacher's builder.resolveArgumentAlias.
func (i *Inst) RewriteArgs(resolve func(Value) Value) {
	if i.arg0.Valid() {
		i.arg0 = resolve(i.arg0)
	}
	if i.arg1.Valid() {
		i.arg1 = resolve(i.arg1)
	}
	if i.arg2.Valid() {
		i.arg2 = resolve(i.arg2)
	}
	for idx, v := range i.args {
		if v.Valid() {
			i.args[idx] = resolve(v)
		}
	}
}

// RegImm returns the register/field immediate carried by register and
// coprocessor accessor opcodes (GetRegister, SetRegister, ...).
func (i *Inst) RegImm() uint32 { return uint32(i.imm) }

// Type returns the Type this Inst's result (if any) was defined with.
func (i *Inst) Type() Type { return i.typ }

// FoldToConst rewrites this Inst in place into an Iconst carrying value,
// preserving its Value identity so anything that already resolved an
// operand to this Inst's result keeps working. Any pseudo-operation link
// is left as it is; foldConstants does not fold an Inst that has one.
func (i *Inst) FoldToConst(value uint64) {
	i.opcode = OpcodeIconst
	i.imm = value
	i.arg0, i.arg1, i.arg2 = ValueInvalid, ValueInvalid, ValueInvalid
	i.args = nil
}

func (i *Inst) String() string {
	s := i.opcode.String()
	if i.result.Valid() {
		s = i.result.String() + " = " + s
	}
	return s
}
