// Package dynarmic is the embedder-facing API of the translator: Config
// describes one guest CPU instance's callbacks and feature flags, and Jit
// (jit.go) is the compiled, runnable instance Config produces. This mirrors
// the shape of the teacher's root `package wazero` (wazero.RuntimeConfig /
// wazero.Runtime), narrowed from a WebAssembly host to a guest-ARM dynamic
// binary translator.
package dynarmic

import (
	"github.com/rtiangha/dynarmic/internal/engine"
	"github.com/rtiangha/dynarmic/internal/exclusive"
	"github.com/rtiangha/dynarmic/internal/telemetry"
)

// ExceptionKind enumerates the guest exception classes passed to
// Callbacks.ExceptionRaised. Re-exported from internal/engine so embedders
// never need to import an internal package to handle it.
type ExceptionKind = engine.ExceptionKind

const (
	ExceptionUndefinedInstruction   = engine.ExceptionUndefinedInstruction
	ExceptionUnpredictableInstruction = engine.ExceptionUnpredictableInstruction
	ExceptionBreakpoint             = engine.ExceptionBreakpoint
)

// Coprocessor is the embedder-supplied implementation of one A32 coprocessor
// (cp0-cp15), re-exported from internal/engine; see §6.
type Coprocessor = engine.Coprocessor

// Callbacks bundles every function the embedder must (or may) supply: guest
// memory access, the interpreter fallback, SVC/exception hooks, cycle
// accounting, and per-coprocessor hooks. Re-exported from internal/engine so
// the field set lives in exactly one place.
type Callbacks = engine.Callbacks

// Config is the complete set of construction-time parameters for NewJit,
// enumerating spec.md §6's "User configuration" list.
type Config struct {
	// Callbacks is required; NewJit returns an error if any non-coprocessor
	// field of it is nil.
	Callbacks Callbacks

	// ProcessorID tags this Jit's exclusive-monitor reservations and is
	// copied into JitState for embedder inspection (e.g. multi-core guest
	// emulation keyed by processor index).
	ProcessorID uint32

	// Monitor, when non-nil, is shared with other Jit instances so LDREX/
	// STREX reservations are visible across them (§5's multi-processor
	// contract). A nil Monitor gives this Jit its own, effectively
	// single-processor, monitor.
	Monitor *exclusive.Monitor

	// ReservationGranuleBytes sizes the exclusive-monitor granule when this
	// Config constructs its own Monitor (ignored if Monitor is set); 0
	// selects the architectural-minimum 8-byte default. See DESIGN.md for
	// why this is configurable rather than hardcoded, resolving spec.md
	// §9's Open Question.
	ReservationGranuleBytes uint64

	// EnableOptimizations toggles the get/set-elimination, constant-folding,
	// and dead-code-elimination optimizer passes; A32 condition folding
	// always runs regardless, per §4.3.
	EnableOptimizations bool

	// EnableFastDispatch toggles populating the FastDispatchTable hint
	// cache on every dispatch; always safe to disable for debugging since
	// it is purely a hint (§4.6).
	EnableFastDispatch bool

	// ArenaBytes sizes the host code arena; 0 selects a generous built-in
	// default sized for this translator's representative opcode coverage.
	ArenaBytes int

	// AlwaysLittleEndian, when true, makes the Jit build every A32
	// Descriptor with its E-flag clear, whatever SetBigEndian was given.
	// Default false (the E-flag follows SetBigEndian). No backend emits a
	// byte-swap sequence for the E-flag either way.
	AlwaysLittleEndian bool

	// Logger receives structured block-compile and cache-invalidation
	// diagnostics; nil disables logging entirely at zero
	// cost (see internal/telemetry's doc comment).
	Logger telemetry.Logger
}

func (c Config) toEngineConfig() engine.Config {
	monitor := c.Monitor
	if monitor == nil {
		granule := c.ReservationGranuleBytes
		if granule == 0 {
			monitor = exclusive.NewDefaultMonitor(1)
		} else {
			monitor = exclusive.NewMonitor(1, granule)
		}
	}
	return engine.Config{
		Callbacks:           c.Callbacks,
		ProcessorID:         c.ProcessorID,
		Monitor:             monitor,
		EnableOptimizations: c.EnableOptimizations,
		EnableFastDispatch:  c.EnableFastDispatch,
		ArenaBytes:          c.ArenaBytes,
		Logger:              c.Logger,
	}
}
