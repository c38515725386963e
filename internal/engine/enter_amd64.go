//go:build amd64

package engine

import "github.com/rtiangha/dynarmic/internal/backend/isa/amd64"

// enterHost transfers control into a compiled block's entrypoint on this
// host, selected at build time since the entrypoint trampoline itself is
// hand-written per-architecture assembly (see isa/amd64/entrypoint_amd64.s).
func enterHost(code, statePtr uintptr) { amd64.Enter(code, statePtr) }
