//go:build arm64

package arm64

// entrypoint transfers control from Go into a compiled block at code,
// with statePtr (the live *jitstate.State, passed as uintptr) installed
// in jitStateBaseReg (R28) for the block's duration. Implemented in
// entrypoint_arm64.s; internal/engine links against it via go:linkname,
// the same split the teacher uses for its own arm64 JIT entry
// (entrypoint_arm64.go / entrypoint_others.go), generalized here to a
// second architecture (see entrypoint_amd64.go for why no literal
// assembly file from the pack could be copied instead).
//
// R28 doubles as Go's own goroutine pointer register on arm64; the
// trampoline saves and restores it around the call into compiled code so
// the Go runtime's notion of the current g is never disturbed by a block
// that repurposes R28 as its JitState base for the duration of the call.
func entrypoint(code uintptr, statePtr uintptr)

// Enter is entrypoint's exported form, called by internal/engine's
// dispatcher loop once per transfer into compiled code.
func Enter(code uintptr, statePtr uintptr) { entrypoint(code, statePtr) }
