package amd64

import (
	"github.com/rtiangha/dynarmic/internal/regalloc"
	"github.com/twitchyliquid64/golang-asm/obj/x86"
)

// gprOrder lists the general-purpose registers this Machine hands out, in
// allocation order. SP and BP are never handed out (BP holds the JitState
// pointer); AX and DX, the fixed multiply/divide operands, come last.
var gprOrder = [...]int16{
	x86.REG_R12, x86.REG_R13, x86.REG_R14, x86.REG_R15,
	x86.REG_CX, x86.REG_BX, x86.REG_SI, x86.REG_DI,
	x86.REG_R8, x86.REG_R9, x86.REG_R10, x86.REG_R11,
	x86.REG_AX, x86.REG_DX,
}

// fprOrder lists the XMM registers this Machine hands out.
var fprOrder = [...]int16{
	x86.REG_X0, x86.REG_X1, x86.REG_X2, x86.REG_X3,
	x86.REG_X4, x86.REG_X5, x86.REG_X6, x86.REG_X7,
	x86.REG_X8, x86.REG_X9, x86.REG_X10, x86.REG_X11,
	x86.REG_X12, x86.REG_X13, x86.REG_X14,
}

// jitStateBaseReg is the GPR the dispatcher prologue dedicates to holding
// the live *jitstate.State pointer for the duration of a block, per §9
// "emitted code references fields only through these offsets" — every
// field access is REG_MEM(jitStateBaseReg, offset).
const jitStateBaseReg = x86.REG_BP

func gprReal(r regalloc.RealReg) int16 { return gprOrder[r] }
func fprReal(r regalloc.RealReg) int16 { return fprOrder[r] }

// NumGPR/NumFPR are the physical register counts this Machine's Allocator
// is constructed with.
const (
	NumGPR = len(gprOrder)
	NumFPR = len(fprOrder)
)

// hostCallArgRegs are the System V AMD64 ABI integer argument registers,
// in order; EmitHostCall pins IR arguments into these via
// regalloc.Allocator.PinForHostCall before emitting the CALL, satisfying
// §4.5's HostCall policy contract.
var hostCallArgRegs = [...]int16{x86.REG_DI, x86.REG_SI, x86.REG_DX, x86.REG_CX, x86.REG_R8, x86.REG_R9}

// hostCallArgRealReg returns which RealReg index (within gprOrder)
// corresponds to System V argument slot i; it panics if that register is
// not in gprOrder.
func hostCallArgRealReg(i int) regalloc.RealReg {
	want := hostCallArgRegs[i]
	for idx, r := range gprOrder {
		if r == want {
			return regalloc.RealReg(idx)
		}
	}
	panic("amd64: host-call arg register not in allocatable set")
}

// gprIndex returns the RealReg index within gprOrder for a given x86
// register constant, used for fixed-register operations (REG_AX for
// IMULQ's implicit operand) that fall outside the general argument set.
func gprIndex(real int16) regalloc.RealReg {
	for idx, r := range gprOrder {
		if r == real {
			return regalloc.RealReg(idx)
		}
	}
	panic("amd64: register not in allocatable set")
}
