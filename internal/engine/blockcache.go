// Package engine ties the backend's per-block CompileResult to a
// persistent BlockCache and FastDispatchTable, and owns guest-range
// invalidation, per spec.md §4.7. This is the Go analogue of the teacher's
// internal/engine/wazevo engine.go/engine_cache.go pair (a compiledModule
// registry plus an on-disk cache), narrowed from whole-module caching to
// one compiled Block at a time, since this translator never compiles more
// than one Block per CompileBlock call.
package engine

import (
	"sort"
	"sync"

	"github.com/rtiangha/dynarmic/internal/arena"
	"github.com/rtiangha/dynarmic/internal/backend"
	"github.com/rtiangha/dynarmic/internal/loc"
	"github.com/rtiangha/dynarmic/internal/telemetry"
)

// BlockDescriptor is everything the dispatcher needs to resume execution
// at a cached Block: its host entrypoint and byte size, matching the data
// model's BlockCache value type.
type BlockDescriptor struct {
	Entrypoint uintptr
	Size       int
}

// patchRef is one outstanding reference from a compiled block's code to a
// not-yet-compiled target, recorded by the target's packed Hash64 so the
// target's eventual compilation can find and patch it even though only its
// hash, not its full Descriptor, was known at the time the reference was
// recorded.
type patchRef struct {
	fromDescriptor loc.Descriptor
	site           backend.PatchSite
}

type cachedBlock struct {
	desc       loc.Descriptor
	bd         BlockDescriptor
	pcLo, pcHi uint64
	sites      []backend.PatchSite
	fastmem    []backend.FastmemSite
}

// BlockCache maps LocationDescriptor to compiled host code and maintains
// the guest-PC-range interval index used for SMC invalidation (§4.7). It
// also performs the cross-block jump patching §4.6 describes: a
// LinkBlock/LinkBlockFast terminal's placeholder jump is rewritten in
// place, directly in the arena's bytes, once its target compiles.
type BlockCache struct {
	mu sync.RWMutex

	arena *arena.Arena
	log   telemetry.Logger

	blocks map[loc.Descriptor]*cachedBlock
	// pending maps a not-yet-compiled target's packed Hash64 to every
	// patch site elsewhere in the cache that wants to jump directly to it
	// once it exists. Keyed by hash (not Descriptor) since a forward
	// reference only ever carries the packed form (see
	// internal/backend.PatchSite.Target).
	pending map[uint64][]patchRef

	// ranges is the cached blocks sorted by PCRangeLo, rebuilt lazily
	// (dirty flag) by sortedRanges rather than kept sorted on every Add.
	// InvalidateCacheRanges does not use it; it scans blocks directly.
	ranges      []*cachedBlock
	rangesDirty bool

	patcher Patcher
}

// Patcher abstracts the host-specific byte-level rewrite of one PatchSite,
// implemented per ISA (internal/backend/isa/amd64, isa/arm64). Keeping
// this out of BlockCache itself mirrors the same "shared dispatcher logic,
// host-specific leaves" split as backend.TerminalEmitter.
type Patcher interface {
	// PatchJump rewrites the control-transfer instruction at code[site.
	// CodeOffset:] to jump to target. codeBase is the runtime address
	// code[0] is mapped at, needed to compute a PC-relative displacement.
	PatchJump(code []byte, codeBase uintptr, site backend.PatchSite, target uintptr) error
	// UnpatchJump restores the instruction to its originally-compiled
	// (materialize-PC-and-return) form, i.e. undoes PatchJump.
	UnpatchJump(code []byte, codeBase uintptr, site backend.PatchSite) error
}

// NewBlockCache constructs an empty cache backed by a.
func NewBlockCache(a *arena.Arena, patcher Patcher, log telemetry.Logger) *BlockCache {
	return &BlockCache{
		arena:   a,
		patcher: patcher,
		log:     log,
		blocks:  make(map[loc.Descriptor]*cachedBlock),
		pending: make(map[uint64][]patchRef),
	}
}

// Lookup returns the compiled BlockDescriptor for desc, if present.
func (c *BlockCache) Lookup(desc loc.Descriptor) (BlockDescriptor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.blocks[desc]
	if !ok {
		return BlockDescriptor{}, false
	}
	return b.bd, true
}

// Add registers a freshly compiled block's code (already appended to the
// arena by the caller) under desc, covering guest PC range [pcLo, pcHi).
// It resolves every outstanding pending reference to desc, and attempts to
// satisfy desc's own forward patch sites against already-compiled targets.
func (c *BlockCache) Add(desc loc.Descriptor, entrypoint uintptr, size int, pcLo, pcHi uint64, res backend.CompileResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cb := &cachedBlock{
		desc:    desc,
		bd:      BlockDescriptor{Entrypoint: entrypoint, Size: size},
		pcLo:    pcLo,
		pcHi:    pcHi,
		sites:   res.PatchSites,
		fastmem: res.FastmemSites,
	}
	c.blocks[desc] = cb
	c.rangesDirty = true

	for _, site := range res.PatchSites {
		if target, ok := c.findByHash(site.Target); ok {
			if err := c.patchSite(cb, site, target.bd.Entrypoint); err != nil {
				return err
			}
			continue
		}
		c.pending[site.Target] = append(c.pending[site.Target], patchRef{fromDescriptor: desc, site: site})
	}

	hash := desc.Hash64()
	if refs, ok := c.pending[hash]; ok {
		for _, ref := range refs {
			from, ok := c.blocks[ref.fromDescriptor]
			if !ok {
				continue // the referrer was itself invalidated in the meantime
			}
			if err := c.patchSite(from, ref.site, entrypoint); err != nil {
				return err
			}
		}
		delete(c.pending, hash)
	}

	if c.log != nil {
		c.log.Debug("block compiled", telemetry.Field{Key: "descriptor", Value: desc.String()}, telemetry.Field{Key: "size", Value: size})
	}
	return nil
}

// LookupByHash resolves a packed Hash64 to a compiled block's entrypoint,
// exported for CallbackAddrs.BlockLookup's trampoline (see
// internal/engine.Engine.blockLookupTrampoline); unlike Lookup, a hash
// collision between two distinct Descriptors cannot be detected here, so
// callers that have the full Descriptor available should always prefer
// Lookup instead.
func (c *BlockCache) LookupByHash(hash uint64) (uintptr, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.findByHash(hash)
	if !ok {
		return 0, false
	}
	return b.bd.Entrypoint, true
}

// findByHash resolves a packed Hash64 to a compiled block by linear scan;
// patch targets are rare per block (at most one or two per terminal) so
// this trades a reverse index for simplicity, matching the scale the
// spec's own block-cache section operates at.
func (c *BlockCache) findByHash(hash uint64) (*cachedBlock, bool) {
	for d, b := range c.blocks {
		if d.Hash64() == hash {
			return b, true
		}
	}
	return nil, false
}

func (c *BlockCache) patchSite(cb *cachedBlock, site backend.PatchSite, target uintptr) error {
	code := c.arena.Bytes(cb.bd.Entrypoint, cb.bd.Size)
	if err := c.arena.EnableWriting(); err != nil {
		return err
	}
	defer c.arena.DisableWriting()
	return c.patcher.PatchJump(code, cb.bd.Entrypoint, site, target)
}

// InvalidateCacheRanges implements §4.7: every Descriptor whose guest PC
// range overlaps any of ranges is removed, every patched direct jump that
// referenced it is unpatched (restored to the materialize-PC+return
// stub), and any pending (not-yet-satisfied) reference to it is re-armed
// since the block may be recompiled later at the same Descriptor. Returns
// the removed descriptors for the caller to also clear from the
// FastDispatchTable.
func (c *BlockCache) InvalidateCacheRanges(ranges [][2]uint64) ([]loc.Descriptor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var removed []loc.Descriptor
	for desc, cb := range c.blocks {
		if !overlapsAny(cb.pcLo, cb.pcHi, ranges) {
			continue
		}
		removed = append(removed, desc)
		delete(c.blocks, desc)
	}
	c.rangesDirty = true

	for _, cb := range c.blocks {
		for _, site := range cb.sites {
			for _, desc := range removed {
				if desc.Hash64() != site.Target {
					continue
				}
				code := c.arena.Bytes(cb.bd.Entrypoint, cb.bd.Size)
				if err := c.arena.EnableWriting(); err != nil {
					return nil, err
				}
				err := c.patcher.UnpatchJump(code, cb.bd.Entrypoint, site)
				c.arena.DisableWriting()
				if err != nil {
					return nil, err
				}
				c.pending[site.Target] = append(c.pending[site.Target], patchRef{fromDescriptor: cb.desc, site: site})
			}
		}
	}

	if c.log != nil && len(removed) > 0 {
		c.log.Info("cache invalidated", telemetry.Field{Key: "ranges", Value: len(ranges)}, telemetry.Field{Key: "descriptors", Value: len(removed)})
	}
	return removed, nil
}

func overlapsAny(lo, hi uint64, ranges [][2]uint64) bool {
	for _, r := range ranges {
		if lo < r[1] && r[0] < hi {
			return true
		}
	}
	return false
}

// Clear empties the cache entirely; host code bytes are not freed here
// (per §3's lifecycle note, they are reclaimed only by the arena's own
// Reset/Close), matching ClearCache's documented scope.
func (c *BlockCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blocks = make(map[loc.Descriptor]*cachedBlock)
	c.pending = make(map[uint64][]patchRef)
	c.ranges = nil
	c.rangesDirty = false
}

// Len reports how many Descriptors are currently cached.
func (c *BlockCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.blocks)
}

// sortedRanges rebuilds and returns c.ranges sorted by pcLo; callers must
// hold c.mu.
func (c *BlockCache) sortedRanges() []*cachedBlock {
	if !c.rangesDirty {
		return c.ranges
	}
	c.ranges = c.ranges[:0]
	for _, b := range c.blocks {
		c.ranges = append(c.ranges, b)
	}
	sort.Slice(c.ranges, func(i, j int) bool { return c.ranges[i].pcLo < c.ranges[j].pcLo })
	c.rangesDirty = false
	return c.ranges
}

// RangeEntry is one snapshot row from DumpRangeIndex.
type RangeEntry struct {
	Lo, Hi uint64
	Desc   loc.Descriptor
}

// DumpRangeIndex returns a snapshot of the guest-PC interval index for
// diagnostics/tests, sorted by Lo.
func (c *BlockCache) DumpRangeIndex() []RangeEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	blocks := c.sortedRanges()
	out := make([]RangeEntry, len(blocks))
	for i, b := range blocks {
		out[i] = RangeEntry{Lo: b.pcLo, Hi: b.pcHi, Desc: b.desc}
	}
	return out
}
