package arm64

import (
	"github.com/rtiangha/dynarmic/internal/regalloc"
	"github.com/twitchyliquid64/golang-asm/obj/arm64"
)

// gprOrder lists the general-purpose registers this Machine hands out, in
// allocation order. R18 is skipped (platform register, reserved on Darwin
// and best left alone generally); R29/R30/RSP are skipped as frame
// pointer, link register and stack pointer, all owned by the dispatcher's
// hand-written prologue, mirroring the teacher's arm64 backend's own
// reserved-register carve-out (see internal/engine/wazevo/backend/isa/arm64
// register allocation notes).
var gprOrder = [...]int16{
	arm64.REG_R0, arm64.REG_R1, arm64.REG_R2, arm64.REG_R3,
	arm64.REG_R4, arm64.REG_R5, arm64.REG_R6, arm64.REG_R7,
	arm64.REG_R8, arm64.REG_R9, arm64.REG_R10, arm64.REG_R11,
	arm64.REG_R12, arm64.REG_R13, arm64.REG_R14, arm64.REG_R15,
	arm64.REG_R16, arm64.REG_R17, arm64.REG_R19, arm64.REG_R20,
	arm64.REG_R21, arm64.REG_R22, arm64.REG_R23, arm64.REG_R24,
	arm64.REG_R25, arm64.REG_R26, arm64.REG_R27,
}

// fprOrder lists the vector/FP registers this Machine hands out.
var fprOrder = [...]int16{
	arm64.REG_F0, arm64.REG_F1, arm64.REG_F2, arm64.REG_F3,
	arm64.REG_F4, arm64.REG_F5, arm64.REG_F6, arm64.REG_F7,
	arm64.REG_F8, arm64.REG_F9, arm64.REG_F10, arm64.REG_F11,
	arm64.REG_F12, arm64.REG_F13, arm64.REG_F14, arm64.REG_F15,
}

// jitStateBaseReg is the GPR the dispatcher prologue dedicates to holding
// the live *jitstate.State pointer for the duration of a block, per §9
// "emitted code references fields only through these offsets".
const jitStateBaseReg = arm64.REG_R28

func gprReal(r regalloc.RealReg) int16 { return gprOrder[r] }
func fprReal(r regalloc.RealReg) int16 { return fprOrder[r] }

// NumGPR/NumFPR are the physical register counts this Machine's Allocator
// is constructed with.
const (
	NumGPR = len(gprOrder)
	NumFPR = len(fprOrder)
)

// hostCallArgRegs are the AAPCS64 integer argument registers, in order.
var hostCallArgRegs = [...]int16{
	arm64.REG_R0, arm64.REG_R1, arm64.REG_R2, arm64.REG_R3,
	arm64.REG_R4, arm64.REG_R5, arm64.REG_R6, arm64.REG_R7,
}

// hostCallArgRealReg returns which RealReg index (within gprOrder)
// corresponds to AAPCS64 argument slot i.
func hostCallArgRealReg(i int) regalloc.RealReg {
	want := hostCallArgRegs[i]
	for idx, r := range gprOrder {
		if r == want {
			return regalloc.RealReg(idx)
		}
	}
	panic("arm64: host-call arg register not in allocatable set")
}
