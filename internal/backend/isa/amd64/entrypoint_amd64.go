//go:build amd64

package amd64

// entrypoint transfers control from Go into a compiled block at code,
// with statePtr (the live *jitstate.State, passed as a raw uintptr so this
// declaration needs no unsafe import) installed in jitStateBaseReg (RBP)
// for the block's duration, per registers.go's "every field access is
// REG_MEM(jitStateBaseReg, offset)" contract. Implemented in
// entrypoint_amd64.s; internal/engine links against it by name via
// go:linkname, mirroring the teacher's wazevo.entrypoint /
// backend/isa/arm64.entrypoint split (entrypoint_arm64.go /
// entrypoint_others.go) generalized to both host architectures this
// translator targets, since the teacher's own wazevo compiler backend
// only ever targets arm64 hosts and falls back to its separate
// interpreter elsewhere; no equivalent amd64 JIT entry trampoline exists
// anywhere in the retrieval pack to copy literally, so the instruction
// sequence below is derived directly from the System V AMD64 calling
// convention and Go's stack-based asm argument-passing rules (see
// DESIGN.md).
//
// Returns when the compiled block reaches a Terminal that lowers to RET
// (ReturnToDispatch, PopRSBHint, FastDispatchHint, or the trailing
// fallback stub of LinkBlock/LinkBlockFast before it is patched); the
// caller inspects statePtr's TicksRemaining/HaltRequested/
// ModeDescriptorPacked fields to decide what happens next.
func entrypoint(code uintptr, statePtr uintptr)

// Enter is entrypoint's exported form, called by internal/engine's
// dispatcher loop once per transfer into compiled code.
func Enter(code uintptr, statePtr uintptr) { entrypoint(code, statePtr) }
