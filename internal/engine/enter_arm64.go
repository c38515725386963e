//go:build arm64

package engine

import "github.com/rtiangha/dynarmic/internal/backend/isa/arm64"

// enterHost transfers control into a compiled block's entrypoint on this
// host; see enter_amd64.go's doc comment.
func enterHost(code, statePtr uintptr) { arm64.Enter(code, statePtr) }
