// Package engine is the orchestration layer tying the decoder, frontend
// lifter, optimizer, and backend.Machine emitter into one running
// translator: the Go analogue of the teacher's internal/engine/wazevo
// engine.go, narrowed the same way internal/ir.Block's doc comment already
// narrows the IR itself, from a whole-module compiler to a single guest
// Block compiled and cached at a time.
package engine

import (
	"runtime"

	"github.com/rtiangha/dynarmic/internal/arena"
	"github.com/rtiangha/dynarmic/internal/backend"
	"github.com/rtiangha/dynarmic/internal/backend/isa/amd64"
	"github.com/rtiangha/dynarmic/internal/backend/isa/arm64"
	"github.com/rtiangha/dynarmic/internal/exclusive"
	"github.com/rtiangha/dynarmic/internal/ir"
	"github.com/rtiangha/dynarmic/internal/jitstate"
	"github.com/rtiangha/dynarmic/internal/loc"
	"github.com/rtiangha/dynarmic/internal/optimizer"
	"github.com/rtiangha/dynarmic/internal/telemetry"
)

// defaultArenaBytes sizes the code arena generously for the representative
// opcode coverage this translator carries; an embedder compiling a larger
// guest program raises it via Config.ArenaBytes.
const defaultArenaBytes = 16 << 20

// Config bundles an Engine's construction-time parameters. The public
// dynarmic.Config (the embedder-facing type) is translated into this one by
// the root package; Engine itself stays ignorant of that outer API so it
// can be unit-tested without it.
type Config struct {
	Callbacks           Callbacks
	ProcessorID         uint32
	Monitor             *exclusive.Monitor
	EnableOptimizations bool
	EnableFastDispatch  bool
	ArenaBytes          int
	Logger              telemetry.Logger
}

// Engine owns one arena, one BlockCache, one FastDispatchTable, and one
// JitState, and drives guest execution through them per spec.md §4.6's
// dispatcher loop. Exactly one Engine backs one embedder-visible Jit
// instance; Monitor may be shared across several Engines when the embedder
// wants LDREX/STREX visibility between them (§5).
type Engine struct {
	cb      Callbacks
	cbAddrs *backend.CallbackAddrs

	machine backend.Machine
	info    *jitstate.Info

	arena     *arena.Arena
	cache     *BlockCache
	fastTable *FastDispatchTable
	useFast   bool

	optCfg optimizer.Config
	log    telemetry.Logger

	monitor     *exclusive.Monitor
	processorID uint32

	nextBlockID ir.BlockID

	state *jitstate.State

	// cur is the live Descriptor the dispatcher loop is about to (re-)enter;
	// see dispatch.go's runLoop.
	cur loc.Descriptor
}

// New constructs an Engine ready to compile and run guest code.
func New(cfg Config) (*Engine, error) {
	addrs, err := Resolve(cfg.Callbacks)
	if err != nil {
		return nil, err
	}

	arenaBytes := cfg.ArenaBytes
	if arenaBytes <= 0 {
		arenaBytes = defaultArenaBytes
	}
	a, err := arena.New(arenaBytes)
	if err != nil {
		return nil, err
	}

	monitor := cfg.Monitor
	if monitor == nil {
		monitor = exclusive.NewDefaultMonitor(1)
	}

	e := &Engine{
		cb:          cfg.Callbacks,
		cbAddrs:     addrs,
		arena:       a,
		info:        jitstate.NewInfo(),
		useFast:     cfg.EnableFastDispatch,
		optCfg:      optimizer.Config{Enabled: cfg.EnableOptimizations},
		log:         cfg.Logger,
		monitor:     monitor,
		processorID: cfg.ProcessorID,
		state:       jitstate.New(cfg.ProcessorID),
	}

	// These three trampolines close over e itself, so they can only be
	// bound (and their addresses resolved) after e exists; every other
	// CallbackAddrs field was already filled in by Resolve above.
	e.cbAddrs.ExclusiveMonitorReadAndMark = funcAddr(e.exclusiveRead)
	e.cbAddrs.ExclusiveMonitorDoExclusiveOperation = funcAddr(e.exclusiveWrite)
	e.cbAddrs.BlockLookup = funcAddr(e.blockLookupTrampoline)

	e.machine = newMachine()
	e.cache = NewBlockCache(a, newPatcher(), e.log)
	e.fastTable = NewFastDispatchTable()

	return e, nil
}

func newMachine() backend.Machine {
	features := backend.HostFeatures{}
	if runtime.GOARCH == "arm64" {
		return arm64.NewMachine(features)
	}
	return amd64.NewMachine(features)
}

func newPatcher() Patcher {
	if runtime.GOARCH == "arm64" {
		return arm64.Patcher{}
	}
	return amd64.Patcher{}
}

// State returns the live JitState backing this Engine, read and written
// directly by the embedder-facing Jit facade's register accessors.
func (e *Engine) State() *jitstate.State { return e.state }

// Close releases the code arena. The Engine must not be used afterwards.
func (e *Engine) Close() error { return e.arena.Close() }

// ClearCache empties the BlockCache, the FastDispatchTable, and rewinds the
// arena, per §4.7's "wholesale invalidation" case. Like InvalidateCacheRange,
// this takes no Engine-wide lock (see runLoop's doc comment) and relies on
// the cache/table/arena's own internal locking.
func (e *Engine) ClearCache() {
	e.cache.Clear()
	e.fastTable.Clear()
	e.arena.Reset()
}

// InvalidateCacheRange removes every cached Block whose guest PC range
// overlaps [start, start+length), unpatches any direct jump that targeted
// one, and evicts matching FastDispatchTable slots, per §4.7's SMC
// invalidation path. Safe to call reentrantly from an embedder callback
// invoked synchronously during Run/Step on the same goroutine.
func (e *Engine) InvalidateCacheRange(start, length uint64) error {
	removed, err := e.cache.InvalidateCacheRanges([][2]uint64{{start, start + length}})
	if err != nil {
		return err
	}
	for _, d := range removed {
		e.fastTable.InvalidateSlot(d)
	}
	return nil
}

func (e *Engine) exclusiveRead(addr uint64) uint64 {
	e.monitor.ReadAndMark(e.processorID, addr)
	if e.cb.MemoryRead64 != nil {
		return e.cb.MemoryRead64(addr)
	}
	return 0
}

// exclusiveWrite backs STREX/STXR: the guest sees 0 in its status register
// on success and 1 on failure, ARM's own convention (ARMv8 ARM, STXR Ws
// result encoding), so the return value plugs directly into the register
// the emitted code writes back without further translation.
func (e *Engine) exclusiveWrite(addr, value uint64) uint64 {
	if !e.monitor.DoExclusiveOperation(e.processorID, addr) {
		return 1
	}
	if e.cb.MemoryWrite64 != nil {
		e.cb.MemoryWrite64(addr, value)
	}
	return 0
}

// blockLookupTrampoline backs CallbackAddrs.BlockLookup. No terminal this
// backend lowers currently emits a call through it: EmitFastDispatchHint
// and EmitPopRSBHint both just RET back into this package's runLoop instead
// of inlining a hash probe (isa/amd64/machine.go, isa/arm64/machine.go).
// runLoop itself does not special-case either hint either — it performs
// the same plain BlockCache lookup on every return regardless of which
// terminal produced it, so neither the RSB nor FastDispatchTable is
// actually consulted on the hot path today; see DESIGN.md's RSB/
// FastDispatchHint entry for the scope of this limitation. The trampoline
// address is kept valid regardless, so a future backend revision can start
// emitting that call without touching this package.
func (e *Engine) blockLookupTrampoline(descriptorPacked uint64) uintptr {
	ptr, _ := e.cache.LookupByHash(descriptorPacked)
	return ptr
}
