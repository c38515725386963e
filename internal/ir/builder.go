package ir

// Builder incrementally constructs the Inst sequence of a single Block. The
// lifter allocates one Builder per guest basic block; unlike the teacher's
// ssa.Builder there is no cross-block Variable/PHI machinery because a
// guest Block never branches to another Block directly — all inter-block
// control flow is expressed through the Block's single Terminal.
type Builder struct {
	blk *Block
}

// NewBuilder wraps blk for instruction construction.
func NewBuilder(blk *Block) *Builder { return &Builder{blk: blk} }

// Block returns the Block under construction.
func (b *Builder) Block() *Block { return b.blk }

func (b *Builder) alloc(op Opcode, typ Type) *Inst {
	return &Inst{opcode: op, typ: typ, arg0: ValueInvalid, arg1: ValueInvalid, arg2: ValueInvalid}
}

func (b *Builder) insert(i *Inst) Value { return b.blk.Insert(i) }

// --- Guest register / flag accessors -----------------------------------

// GetRegister emits GetRegister(reg) of the given width.
func (b *Builder) GetRegister(reg uint32, t Type) Value {
	i := b.alloc(OpcodeGetRegister, t)
	i.imm = uint64(reg)
	return b.insert(i)
}

// SetRegister emits SetRegister(reg, v).
func (b *Builder) SetRegister(reg uint32, v Value) {
	i := b.alloc(OpcodeSetRegister, typeInvalid)
	i.imm = uint64(reg)
	i.arg0 = v
	b.insert(i)
}

// GetExtRegister emits GetExtRegister(reg) (FP/vector register file).
func (b *Builder) GetExtRegister(reg uint32, t Type) Value {
	i := b.alloc(OpcodeGetExtRegister, t)
	i.imm = uint64(reg)
	return b.insert(i)
}

// SetExtRegister emits SetExtRegister(reg, v).
func (b *Builder) SetExtRegister(reg uint32, v Value) {
	i := b.alloc(OpcodeSetExtRegister, typeInvalid)
	i.imm = uint64(reg)
	i.arg0 = v
	b.insert(i)
}

func (b *Builder) getFlag(op Opcode) Value { return b.insert(b.alloc(op, TypeU1)) }
func (b *Builder) setFlag(op Opcode, v Value) {
	i := b.alloc(op, typeInvalid)
	i.arg0 = v
	b.insert(i)
}

func (b *Builder) GetNFlag() Value       { return b.getFlag(OpcodeGetNFlag) }
func (b *Builder) SetNFlag(v Value)      { b.setFlag(OpcodeSetNFlag, v) }
func (b *Builder) GetZFlag() Value       { return b.getFlag(OpcodeGetZFlag) }
func (b *Builder) SetZFlag(v Value)      { b.setFlag(OpcodeSetZFlag, v) }
func (b *Builder) GetCFlag() Value       { return b.getFlag(OpcodeGetCFlag) }
func (b *Builder) SetCFlag(v Value)      { b.setFlag(OpcodeSetCFlag, v) }
func (b *Builder) GetVFlag() Value       { return b.getFlag(OpcodeGetVFlag) }
func (b *Builder) SetVFlag(v Value)      { b.setFlag(OpcodeSetVFlag, v) }

// OrQFlag ORs cond into the sticky Q (saturation) flag.
func (b *Builder) OrQFlag(cond Value) {
	i := b.alloc(OpcodeOrQFlag, typeInvalid)
	i.arg0 = cond
	b.insert(i)
}

// --- Memory ---------------------------------------------------------------

func (b *Builder) readMemory(op Opcode, t Type, addr Value) Value {
	i := b.alloc(op, t)
	i.arg0 = addr
	return b.insert(i)
}

func (b *Builder) writeMemory(op Opcode, addr, val Value) {
	i := b.alloc(op, typeInvalid)
	i.arg0, i.arg1 = addr, val
	b.insert(i)
}

func (b *Builder) ReadMemory8(addr Value) Value   { return b.readMemory(OpcodeReadMemory8, TypeU8, addr) }
func (b *Builder) ReadMemory16(addr Value) Value  { return b.readMemory(OpcodeReadMemory16, TypeU16, addr) }
func (b *Builder) ReadMemory32(addr Value) Value  { return b.readMemory(OpcodeReadMemory32, TypeU32, addr) }
func (b *Builder) ReadMemory64(addr Value) Value  { return b.readMemory(OpcodeReadMemory64, TypeU64, addr) }
func (b *Builder) WriteMemory8(addr, v Value)     { b.writeMemory(OpcodeWriteMemory8, addr, v) }
func (b *Builder) WriteMemory16(addr, v Value)    { b.writeMemory(OpcodeWriteMemory16, addr, v) }
func (b *Builder) WriteMemory32(addr, v Value)    { b.writeMemory(OpcodeWriteMemory32, addr, v) }
func (b *Builder) WriteMemory64(addr, v Value)    { b.writeMemory(OpcodeWriteMemory64, addr, v) }

// ExclusiveReadMemory32/64 mark addr as the active processor's reservation
// and return the loaded value; lowered through the ExclusiveMonitor.
func (b *Builder) ExclusiveReadMemory32(addr Value) Value {
	return b.readMemory(OpcodeExclusiveReadMemory32, TypeU32, addr)
}
func (b *Builder) ExclusiveReadMemory64(addr Value) Value {
	return b.readMemory(OpcodeExclusiveReadMemory64, TypeU64, addr)
}

// ExclusiveWriteMemory32/64 performs a conditional store; returns a U1
// "failed" status (1 = store did not occur), matching STREX's Rd semantics.
func (b *Builder) ExclusiveWriteMemory32(addr, v Value) Value {
	i := b.alloc(OpcodeExclusiveWriteMemory32, TypeU1)
	i.arg0, i.arg1 = addr, v
	return b.insert(i)
}
func (b *Builder) ExclusiveWriteMemory64(addr, v Value) Value {
	i := b.alloc(OpcodeExclusiveWriteMemory64, TypeU1)
	i.arg0, i.arg1 = addr, v
	return b.insert(i)
}

func (b *Builder) DataMemoryBarrier()        { b.insert(b.alloc(OpcodeDataMemoryBarrier, typeInvalid)) }
func (b *Builder) DataSynchronizationBarrier() {
	b.insert(b.alloc(OpcodeDataSynchronizationBarrier, typeInvalid))
}

// --- Arithmetic -------------------------------------------------------

func (b *Builder) binOp(op Opcode, t Type, x, y Value) Value {
	i := b.alloc(op, t)
	i.arg0, i.arg1 = x, y
	return b.insert(i)
}

func (b *Builder) Iadd(t Type, x, y Value) Value { return b.binOp(OpcodeIadd, t, x, y) }
func (b *Builder) Isub(t Type, x, y Value) Value { return b.binOp(OpcodeIsub, t, x, y) }
func (b *Builder) Imul(t Type, x, y Value) Value { return b.binOp(OpcodeImul, t, x, y) }
func (b *Builder) Band(t Type, x, y Value) Value { return b.binOp(OpcodeBand, t, x, y) }
func (b *Builder) Bor(t Type, x, y Value) Value  { return b.binOp(OpcodeBor, t, x, y) }
func (b *Builder) Bxor(t Type, x, y Value) Value { return b.binOp(OpcodeBxor, t, x, y) }
func (b *Builder) Ishl(t Type, x, y Value) Value { return b.binOp(OpcodeIshl, t, x, y) }
func (b *Builder) Ushr(t Type, x, y Value) Value { return b.binOp(OpcodeUshr, t, x, y) }
func (b *Builder) Sshr(t Type, x, y Value) Value { return b.binOp(OpcodeSshr, t, x, y) }
func (b *Builder) Rotr(t Type, x, y Value) Value { return b.binOp(OpcodeRotr, t, x, y) }

// Bnot emits a bitwise complement of x.
func (b *Builder) Bnot(t Type, x Value) Value {
	i := b.alloc(OpcodeBnot, t)
	i.arg0 = x
	return b.insert(i)
}

// IcmpEqZero tests x == 0, producing a U1.
func (b *Builder) IcmpEqZero(x Value) Value {
	i := b.alloc(OpcodeIcmpEqZero, TypeU1)
	i.arg0 = x
	return b.insert(i)
}

// MSB extracts the sign bit of x, producing a U1.
func (b *Builder) MSB(x Value) Value {
	i := b.alloc(OpcodeMSB, TypeU1)
	i.arg0 = x
	return b.insert(i)
}

func (b *Builder) Iconst(t Type, imm uint64) Value {
	i := b.alloc(OpcodeIconst, t)
	i.imm = imm
	return b.insert(i)
}

// --- Saturating arithmetic with pseudo-operations -------------------------

// satOp emits a saturating primary op and, if wantOverflow, attaches a
// GetOverflowFromOp pseudo-inst whose result is the Q bit; the backend is
// free to elide the flag materialization entirely when wantOverflow is
// false, per §4.2's pseudo-operation contract.
func (b *Builder) satOp(op Opcode, t Type, x, y Value, wantOverflow bool) (result, overflow Value) {
	i := b.alloc(op, t)
	i.arg0, i.arg1 = x, y
	result = b.insert(i)
	overflow = ValueInvalid
	if wantOverflow {
		p := b.alloc(OpcodeGetOverflowFromOp, TypeU1)
		overflow = b.insert(p)
		b.blk.AttachPseudo(i, p)
	}
	return result, overflow
}

func (b *Builder) SignedSaturatedAdd(t Type, x, y Value, wantQ bool) (Value, Value) {
	return b.satOp(OpcodeSignedSaturatedAdd, t, x, y, wantQ)
}
func (b *Builder) SignedSaturatedSub(t Type, x, y Value, wantQ bool) (Value, Value) {
	return b.satOp(OpcodeSignedSaturatedSub, t, x, y, wantQ)
}
func (b *Builder) UnsignedSaturatedAdd(t Type, x, y Value, wantQ bool) (Value, Value) {
	return b.satOp(OpcodeUnsignedSaturatedAdd, t, x, y, wantQ)
}
func (b *Builder) UnsignedSaturatedSub(t Type, x, y Value, wantQ bool) (Value, Value) {
	return b.satOp(OpcodeUnsignedSaturatedSub, t, x, y, wantQ)
}

// SignedSaturation clamps x to N bits signed, 1<=N<=32.
func (b *Builder) SignedSaturation(x Value, n uint32, wantQ bool) (result, overflow Value) {
	i := b.alloc(OpcodeSignedSaturation, x.Type())
	i.arg0 = x
	i.imm = uint64(n)
	result = b.insert(i)
	overflow = ValueInvalid
	if wantQ {
		p := b.alloc(OpcodeGetOverflowFromOp, TypeU1)
		overflow = b.insert(p)
		b.blk.AttachPseudo(i, p)
	}
	return result, overflow
}

// UnsignedSaturation clamps x to N bits unsigned, 0<=N<=31.
func (b *Builder) UnsignedSaturation(x Value, n uint32, wantQ bool) (result, overflow Value) {
	i := b.alloc(OpcodeUnsignedSaturation, x.Type())
	i.arg0 = x
	i.imm = uint64(n)
	result = b.insert(i)
	overflow = ValueInvalid
	if wantQ {
		p := b.alloc(OpcodeGetOverflowFromOp, TypeU1)
		overflow = b.insert(p)
		b.blk.AttachPseudo(i, p)
	}
	return result, overflow
}

// SignedSaturatedDoublingMultiplyReturnHigh implements
// sat((2*x*y) >> (2*width-1)) for width in {16,32}, clamping to
// 0x7FFF/0x7FFFFFFF and setting Q on saturation.
func (b *Builder) SignedSaturatedDoublingMultiplyReturnHigh(t Type, x, y Value, wantQ bool) (Value, Value) {
	return b.satOp(OpcodeSignedSaturatedDoublingMultiplyReturnHigh, t, x, y, wantQ)
}

// --- Control flow / exceptions ------------------------------------------

func (b *Builder) SVC(imm uint32) {
	i := b.alloc(OpcodeSVC, typeInvalid)
	i.imm = uint64(imm)
	b.insert(i)
}

func (b *Builder) UndefinedInstruction() { b.insert(b.alloc(OpcodeUndefinedInstruction, typeInvalid)) }

// ExceptionRaisedKind enumerates the ExceptionRaised(kind) payloads.
type ExceptionRaisedKind uint32

const (
	ExceptionUndefinedInstruction ExceptionRaisedKind = iota
	ExceptionUnpredictableInstruction
	ExceptionBreakpoint
)

func (b *Builder) ExceptionRaised(kind ExceptionRaisedKind) {
	i := b.alloc(OpcodeExceptionRaised, typeInvalid)
	i.imm = uint64(kind)
	b.insert(i)
}

// --- Coprocessor -----------------------------------------------------

// CompileGetOneWord emits the coprocessor MRC-style single-word read for
// coprocessor coproc, CRn/CRm/opc1/opc2 packed into imm2 by the caller.
func (b *Builder) CompileGetOneWord(coproc uint32, packedFields uint64) Value {
	i := b.alloc(OpcodeCompileGetOneWord, TypeU32)
	i.imm, i.imm2 = uint64(coproc), packedFields
	return b.insert(i)
}

// CompileSendOneWord emits the coprocessor MCR-style single-word write.
func (b *Builder) CompileSendOneWord(coproc uint32, packedFields uint64, v Value) {
	i := b.alloc(OpcodeCompileSendOneWord, typeInvalid)
	i.imm, i.imm2, i.arg0 = uint64(coproc), packedFields, v
	b.insert(i)
}
