package engine

import (
	"fmt"
	"reflect"

	"github.com/rtiangha/dynarmic/internal/backend"
)

// ExceptionKind enumerates the guest exception classes passed to
// Callbacks.ExceptionRaised, per spec.md §6/§7: undefined/unpredictable
// instructions and breakpoints are all routed through this single
// callback, tagged by kind, rather than through separate hooks.
type ExceptionKind uint32

const (
	ExceptionUndefinedInstruction ExceptionKind = iota
	ExceptionUnpredictableInstruction
	ExceptionBreakpoint
)

func (k ExceptionKind) String() string {
	switch k {
	case ExceptionUndefinedInstruction:
		return "UndefinedInstruction"
	case ExceptionUnpredictableInstruction:
		return "UnpredictableInstruction"
	case ExceptionBreakpoint:
		return "Breakpoint"
	default:
		return "Unknown"
	}
}

// Coprocessor is the embedder-supplied implementation of one A32
// coprocessor (cp0-cp15), mirroring §6's seven per-coprocessor callback
// slots. The zero value (Present == false) models an absent coprocessor:
// CompileXxx opcodes targeting it emit the in-block coprocessor-exception
// sequence instead of calling out, per §7.
type Coprocessor struct {
	Present                  bool
	CompileInternalOperation func(opc1, crn, crm, opc2 uint32)
	CompileSendOneWord       func(opc1, crn, crm, opc2, value uint32)
	CompileSendTwoWords      func(opc1, crn, crm, opc2, v1, v2 uint32)
	CompileGetOneWord        func(opc1, crn, crm, opc2 uint32) uint32
	CompileGetTwoWords       func(opc1, crn, crm, opc2 uint32) (uint32, uint32)
	CompileLoadWords         func(long bool, opc1, crn uint32, addr uint64) uint32
	CompileStoreWords        func(long bool, opc1, crn uint32, addr, value uint64)
}

// Callbacks bundles every embedder collaborator function enumerated in
// §6: the guest memory accessors, interpreter fallback, SVC/exception
// hooks, cycle accounting, and the sixteen per-coprocessor hook bundles.
// The memory accessors double as the translator's own instruction-fetch
// path (the decode loop calls them directly, in Go, at compile time,
// since compilation always runs on the calling goroutine per §5); Resolve
// additionally exposes each func's entrypoint for emitted code to CALL at
// runtime.
type Callbacks struct {
	MemoryRead8  func(vaddr uint64) uint8
	MemoryRead16 func(vaddr uint64) uint16
	MemoryRead32 func(vaddr uint64) uint32
	MemoryRead64 func(vaddr uint64) uint64

	MemoryWrite8  func(vaddr uint64, value uint8)
	MemoryWrite16 func(vaddr uint64, value uint16)
	MemoryWrite32 func(vaddr uint64, value uint32)
	MemoryWrite64 func(vaddr uint64, value uint64)

	InterpreterFallback func(pc uint64, numInstructions uint32)
	CallSVC             func(imm uint32)
	ExceptionRaised     func(pc uint64, kind ExceptionKind)
	AddTicks            func(n uint64)
	GetTicksRemaining   func() uint64

	Coprocessors [16]Coprocessor
}

// requiredFields lists every Callbacks field (other than Coprocessors)
// Resolve treats as mandatory; a nil entry here means Jit construction
// would emit code that CALLs through a null pointer the first time a
// guest instruction reached it.
func (cb Callbacks) requiredFields() map[string]interface{} {
	return map[string]interface{}{
		"MemoryRead8": cb.MemoryRead8, "MemoryRead16": cb.MemoryRead16,
		"MemoryRead32": cb.MemoryRead32, "MemoryRead64": cb.MemoryRead64,
		"MemoryWrite8": cb.MemoryWrite8, "MemoryWrite16": cb.MemoryWrite16,
		"MemoryWrite32": cb.MemoryWrite32, "MemoryWrite64": cb.MemoryWrite64,
		"InterpreterFallback": cb.InterpreterFallback, "CallSVC": cb.CallSVC,
		"ExceptionRaised": cb.ExceptionRaised, "AddTicks": cb.AddTicks,
		"GetTicksRemaining": cb.GetTicksRemaining,
	}
}

// funcAddr resolves a Go func value to its code entrypoint via
// reflect.ValueOf(fn).Pointer(), the same "capture once, reference by
// displacement" discipline applied to JitStateInfo offsets; nil returns 0.
func funcAddr(fn interface{}) uintptr {
	if fn == nil {
		return 0
	}
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return 0
	}
	return v.Pointer()
}

// Resolve converts cb's Go func values into the raw entrypoint addresses
// backend.Machine-emitted CALLs target, failing if any required (non-
// coprocessor) callback is missing.
func Resolve(cb Callbacks) (*backend.CallbackAddrs, error) {
	for name, fn := range cb.requiredFields() {
		if funcAddr(fn) == 0 {
			return nil, fmt.Errorf("dynarmic: callback %s is required", name)
		}
	}

	addrs := &backend.CallbackAddrs{
		MemoryRead8: funcAddr(cb.MemoryRead8), MemoryRead16: funcAddr(cb.MemoryRead16),
		MemoryRead32: funcAddr(cb.MemoryRead32), MemoryRead64: funcAddr(cb.MemoryRead64),
		MemoryWrite8: funcAddr(cb.MemoryWrite8), MemoryWrite16: funcAddr(cb.MemoryWrite16),
		MemoryWrite32: funcAddr(cb.MemoryWrite32), MemoryWrite64: funcAddr(cb.MemoryWrite64),
		InterpreterFallback: funcAddr(cb.InterpreterFallback),
		CallSVC:             funcAddr(cb.CallSVC),
		ExceptionRaised:     funcAddr(cb.ExceptionRaised),
		AddTicks:            funcAddr(cb.AddTicks),
		GetTicksRemaining:   funcAddr(cb.GetTicksRemaining),
	}
	for i, cp := range cb.Coprocessors {
		if !cp.Present {
			continue
		}
		addrs.Coprocessors[i] = backend.CoprocessorAddrs{
			Present:                  true,
			CompileInternalOperation: funcAddr(cp.CompileInternalOperation),
			CompileSendOneWord:       funcAddr(cp.CompileSendOneWord),
			CompileSendTwoWords:      funcAddr(cp.CompileSendTwoWords),
			CompileGetOneWord:        funcAddr(cp.CompileGetOneWord),
			CompileGetTwoWords:       funcAddr(cp.CompileGetTwoWords),
			CompileLoadWords:         funcAddr(cp.CompileLoadWords),
			CompileStoreWords:        funcAddr(cp.CompileStoreWords),
		}
	}
	return addrs, nil
}
