package engine

import (
	"unsafe"

	"github.com/rtiangha/dynarmic/internal/loc"
)

// RunResult reports why a call to Run or Step returned control to the
// embedder, mirroring the suspension points §5 enumerates.
type RunResult int

const (
	// RunHalted means the embedder's own HaltExecution call took effect.
	RunHalted RunResult = iota
	// RunCyclesExhausted means TicksRemaining reached zero or went negative.
	RunCyclesExhausted
	// RunStepped means Step completed exactly one guest instruction.
	RunStepped
)

// Run drives guest execution starting at start until the embedder halts it
// or its cycle budget is exhausted, compiling and caching blocks on demand
// per §4.6's dispatcher loop. It returns the Descriptor execution stopped
// at, for a subsequent Run/Step call to resume from.
func (e *Engine) Run(start loc.Descriptor) (loc.Descriptor, RunResult) {
	return e.runLoop(start, false)
}

// Step lifts and executes exactly one guest instruction at start. The
// Descriptor passed in should normally have SingleStep set so the lifter
// forces a one-instruction block regardless of what it would otherwise have
// coalesced.
func (e *Engine) Step(start loc.Descriptor) (loc.Descriptor, RunResult) {
	next, _ := e.runLoop(start, true)
	return next, RunStepped
}

// HaltExecution requests that the current or next Run call return as soon
// as the running block reaches its next CheckHalt terminal.
func (e *Engine) HaltExecution() {
	e.state.HaltRequested = 1
}

// ClearHalt clears a previously requested halt so the next Run call does
// not immediately return.
func (e *Engine) ClearHalt() {
	e.state.HaltRequested = 0
}

// runLoop holds no lock of its own across enterHost: the embedder's own
// memory-write callback can synchronously call InvalidateCacheRange from
// the very same goroutine while still inside a compiled block's call into
// Go (e.g. a guest store to a self-modified code page), so nothing here may
// take a non-reentrant lock that InvalidateCacheRange also needs. Safety
// for the cache/table/arena comes from their own internal locks; e.cur and
// e.nextBlockID are touched only by this loop and are never read
// concurrently from another goroutine under the single-Run-goroutine-per-
// Engine contract this package assumes.
func (e *Engine) runLoop(start loc.Descriptor, single bool) (loc.Descriptor, RunResult) {
	e.cur = start
	sp := uintptr(unsafe.Pointer(e.state))

	for {
		bd, ok := e.cache.Lookup(e.cur)
		if !ok {
			var err error
			bd, err = e.compile(e.cur)
			if err != nil {
				// A compilation failure here means the backend's own
				// opcode-coverage/invariant checks found something this
				// translator cannot lower; there is no partial-progress
				// state to return to the embedder, so this is fatal rather
				// than a RunResult the caller could meaningfully recover
				// from.
				panic(err)
			}
		}
		if e.useFast {
			e.fastTable.Update(e.cur, bd.Entrypoint)
		}

		enterHost(bd.Entrypoint, sp)

		e.cur = e.cur.WithPC(e.state.PC)

		if single {
			return e.cur, RunStepped
		}
		if e.state.HaltRequested != 0 {
			return e.cur, RunHalted
		}
		if e.state.TicksRemaining <= 0 {
			return e.cur, RunCyclesExhausted
		}
	}
}
