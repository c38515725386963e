// Package backend defines the Machine interface implemented once per host
// (isa/amd64, isa/arm64): the template-driven host code emitter of §4.4
// plus the register-allocator glue of §4.5. This mirrors the teacher's
// backend.Machine interface (internal/engine/wazevo/backend/machine.go),
// narrowed from wazero's whole-function/CFG lowering to this translator's
// single-straight-line-Block model, the same narrowing internal/ir.Block's
// doc comment already calls out relative to wazero's ssa.BasicBlock.
package backend

import (
	"github.com/rtiangha/dynarmic/internal/ir"
	"github.com/rtiangha/dynarmic/internal/jitstate"
	"github.com/rtiangha/dynarmic/internal/regalloc"
)

// HostFeatures records which optional host ISA extensions the backend may
// assume are present, queried once at Jit construction (CPUID on amd64,
// the Linux arm64 HWCAP auxval on arm64) exactly as the teacher's
// platform.CpuFeatures is queried once and threaded through
// backend.NewCompiler.
type HostFeatures struct {
	// AES reports whether the host has a hardware AES instruction,
	// gating the §4.4 AES-lowering contract's fast path.
	AES bool
	// Fastmem reports whether this Machine supports lowering memory IR
	// directly to base+index addressing for the §4.8 fastmem mode; false
	// forces every Machine to emit the callback trampoline form.
Fastmem bool
}

// CompileResult is everything CompileBlock hands back to the engine: the
// finished host code plus metadata the dispatcher/cache need to patch and
// invalidate it later.
type CompileResult struct {
	Code []byte
	// PatchSites records, for LinkBlock/LinkBlockFast terminals, the byte
	// offset within Code of the patchable jump instruction plus which
	// Descriptor it targets, so BlockCache.link (§4.7) can rewrite it once
	// the target compiles, and unpatch it again on invalidation.
	PatchSites []PatchSite
	// FastmemSites records every fastmem-lowered memory access's code
	// offset, keyed the same way internal/fastmem's patch-info map keys
	// its SIGSEGV lookups (§4.8).
	FastmemSites []FastmemSite
}

// PatchSite is one direct-jump patch location inside a compiled block's
// code, per §4.6's EmitPatchJg / unconditional-jump patching.
type PatchSite struct {
	CodeOffset int
	Target     uint64 // loc.Descriptor.Hash64() of the jump target.
	// Conditional marks a conditional-jump patch site. LinkBlock and
	// LinkBlockFast both patch an unconditional jump, so the backends
	// record false for every site.
	Conditional bool
}

// FastmemSite is one fastmem-lowered memory access, keyed by code offset
// so the signal handler (internal/fastmem) can look up which IR opcode
// and width faulted and demote just that site.
type FastmemSite struct {
	CodeOffset int
	InstOffset uint32 // position within the source Block, for DoNotFastmem keys.
	Width      byte
	IsWrite    bool
}

// Machine is implemented once per host architecture. CompileBlock walks
// blk's IR in program order, emitting host code for each Inst via the
// opcode-coverage table (a map keyed by ir.Opcode whose completeness is
// checked by AssertComplete at package init), then lowers blk.Terminal via
// LowerTerminal in internal/backend/dispatcher.go, which calls back into
// the Machine only through the TerminalEmitter Emit* methods.
type Machine interface {
	// CompileBlock lowers blk to host code. info is the JitState layout
	// this host's emitted code addresses fields through; cb is the
	// resolved embedder-callback address table.
	CompileBlock(blk *ir.Block, info *jitstate.Info, cb *CallbackAddrs) (CompileResult, error)

	// RegisterAllocator returns the regalloc.Allocator this Machine's
	// CompileBlock uses, exposed so tests can assert spill behavior
	// without re-deriving it from emitted bytes.
	RegisterAllocator() *regalloc.Allocator

	// Features reports which host extensions this Machine instance was
	// constructed to target.
	Features() HostFeatures
}

// OpcodeCoverage is implemented by each ISA package's emission-routine
// table and asserted complete by an init()-time call to AssertComplete,
// giving the "hard, diagnosed failure at build time" missing-coverage
// contract an actual enforcement point despite Go lacking the teacher's
// macro-expanded opcode include file mechanism.
type OpcodeCoverage interface {
	// Covers reports whether op has a registered emission routine.
	Covers(op ir.Opcode) bool
}

// AssertComplete panics listing every ir.Opcode missing from cov, meant to
// be called from each isa package's init(). This is the Go-idiomatic
// substitute for the teacik's "opcode table macro/include" compile-time
// check: it still runs before any translation happens (at package init,
// i.e. at program startup, the earliest a pure-Go build can check this),
// rather than at `go build` time, since Go has no user-level static
// assertion over a runtime map's keys.
func AssertComplete(cov OpcodeCoverage) {
	var missing []ir.Opcode
	for op := ir.Opcode(1); op < ir.OpcodeEnd(); op++ {
		if !cov.Covers(op) {
			missing = append(missing, op)
		}
	}
	if len(missing) > 0 {
		panic(missingOpcodesError(missing))
	}
}

type missingOpcodesError []ir.Opcode

func (m missingOpcodesError) Error() string {
	s := "backend: missing emission routine for opcodes:"
	for _, op := range m {
		s += " " + op.String()
	}
	return s
}
