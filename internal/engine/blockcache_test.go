package engine

import (
	"encoding/binary"
	"testing"

	"github.com/rtiangha/dynarmic/internal/arena"
	"github.com/rtiangha/dynarmic/internal/backend"
	"github.com/rtiangha/dynarmic/internal/backend/isa/amd64"
	"github.com/rtiangha/dynarmic/internal/loc"
)

// appendBlock writes code into a and registers it in c under desc, covering
// guest PC range [pcLo, pcHi), returning the compiled block's entrypoint.
func appendBlock(t *testing.T, a *arena.Arena, c *BlockCache, desc loc.Descriptor, code []byte, pcLo, pcHi uint64, res backend.CompileResult) uintptr {
	t.Helper()
	if err := a.EnableWriting(); err != nil {
		t.Fatalf("EnableWriting: %v", err)
	}
	entrypoint, err := a.Append(code)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := a.DisableWriting(); err != nil {
		t.Fatalf("DisableWriting: %v", err)
	}
	res.Code = code
	if err := c.Add(desc, entrypoint, len(code), pcLo, pcHi, res); err != nil {
		t.Fatalf("Add: %v", err)
	}
	return entrypoint
}

// nopJump5 is a 5-byte placeholder: a JMP rel32 to the instruction right
// after itself (i.e. a fall-through), matching the "unpatched" stub shape
// amd64.Patcher.UnpatchJump restores.
func nopJump5() []byte { return []byte{0xE9, 0, 0, 0, 0} }

func newTestCache(t *testing.T) (*arena.Arena, *BlockCache) {
	t.Helper()
	a, err := arena.New(1 << 16)
	if err != nil {
		t.Fatalf("arena.New: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a, NewBlockCache(a, amd64.Patcher{}, nil)
}

// TestBlockCacheLookupAndAdd covers the basic Lookup contract.
func TestBlockCacheLookupAndAdd(t *testing.T) {
	a, c := newTestCache(t)
	dA := loc.NewA32(0x1000, false, false, 0, false)

	if _, ok := c.Lookup(dA); ok {
		t.Fatal("Lookup on an empty cache must miss")
	}

	entry := appendBlock(t, a, c, dA, nopJump5(), 0x1000, 0x1004, backend.CompileResult{})
	bd, ok := c.Lookup(dA)
	if !ok || bd.Entrypoint != entry {
		t.Fatalf("Lookup(dA) = (%+v, %v), want entrypoint %#x", bd, ok, entry)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}

// TestBlockCachePatchesForwardReference covers §4.6's direct-jump patching:
// a block compiled before its LinkBlockFast target exists records a
// pending patch, which is resolved the moment the target is added.
func TestBlockCachePatchesForwardReference(t *testing.T) {
	a, c := newTestCache(t)
	dTarget := loc.NewA32(0x2000, false, false, 0, false)

	// Compile the referrer first, with an outstanding patch site pointing
	// at dTarget, which does not exist yet.
	referrerCode := nopJump5()
	site := backend.PatchSite{CodeOffset: 0, Target: dTarget.Hash64()}
	referrerEntry := appendBlock(t, a, c, loc.NewA32(0x3000, false, false, 0, false), referrerCode,
		0x3000, 0x3004, backend.CompileResult{PatchSites: []backend.PatchSite{site}})

	// Unpatched form: JMP falls straight through to the stub after it.
	before := binary.LittleEndian.Uint32(a.Bytes(referrerEntry, 5)[1:5])
	if before != 0 {
		t.Fatalf("expected the forward reference to remain unpatched, rel32=%d", int32(before))
	}

	targetEntry := appendBlock(t, a, c, dTarget, nopJump5(), 0x2000, 0x2004, backend.CompileResult{})

	after := binary.LittleEndian.Uint32(a.Bytes(referrerEntry, 5)[1:5])
	wantRel := int32(int64(targetEntry) - int64(referrerEntry+5))
	if int32(after) != wantRel {
		t.Errorf("patch rel32 = %d, want %d (target %#x from site %#x)", int32(after), wantRel, targetEntry, referrerEntry)
	}
}

// TestInvalidateCacheRangesRemovesOverlapping covers §8 property 4: after
// InvalidateCacheRanges([a,b)), no Descriptor whose guest PC range overlaps
// [a,b) remains looked-up-able, and any live patch site referencing it is
// unpatched back to its materialize-PC+return stub.
func TestInvalidateCacheRangesRemovesOverlapping(t *testing.T) {
	a, c := newTestCache(t)
	dVictim := loc.NewA32(0x1000, false, false, 0, false)
	dSurvivor := loc.NewA32(0x9000, false, false, 0, false)

	appendBlock(t, a, c, dVictim, nopJump5(), 0x1000, 0x1004, backend.CompileResult{})

	site := backend.PatchSite{CodeOffset: 0, Target: dVictim.Hash64()}
	survivorEntry := appendBlock(t, a, c, dSurvivor, nopJump5(), 0x9000, 0x9004,
		backend.CompileResult{PatchSites: []backend.PatchSite{site}})

	// Confirm the survivor's reference to the victim got patched.
	patched := binary.LittleEndian.Uint32(a.Bytes(survivorEntry, 5)[1:5])
	if patched == 0 {
		t.Fatal("survivor's forward reference to the victim should have been patched")
	}

	removed, err := c.InvalidateCacheRanges([][2]uint64{{0x1000, 0x1004}})
	if err != nil {
		t.Fatalf("InvalidateCacheRanges: %v", err)
	}
	if len(removed) != 1 || removed[0] != dVictim {
		t.Fatalf("removed = %v, want [%v]", removed, dVictim)
	}

	if _, ok := c.Lookup(dVictim); ok {
		t.Error("the invalidated descriptor must no longer be looked-up-able")
	}
	if _, ok := c.Lookup(dSurvivor); !ok {
		t.Error("a descriptor outside the invalidated range must remain")
	}

	unpatched := binary.LittleEndian.Uint32(a.Bytes(survivorEntry, 5)[1:5])
	wantUnpatchedRel := int32(0) // straight fall-through, rel32 == 0
	if int32(unpatched) != wantUnpatchedRel {
		t.Errorf("survivor's reference to the invalidated block was not restored to the unpatched stub: rel32=%d", int32(unpatched))
	}
}

// TestInvalidateCacheRangesIgnoresNonOverlapping ensures a descriptor whose
// PC range does not overlap the invalidated ranges survives untouched.
func TestInvalidateCacheRangesIgnoresNonOverlapping(t *testing.T) {
	a, c := newTestCache(t)
	d := loc.NewA32(0x5000, false, false, 0, false)
	appendBlock(t, a, c, d, nopJump5(), 0x5000, 0x5004, backend.CompileResult{})

	removed, err := c.InvalidateCacheRanges([][2]uint64{{0x6000, 0x7000}})
	if err != nil {
		t.Fatalf("InvalidateCacheRanges: %v", err)
	}
	if len(removed) != 0 {
		t.Errorf("removed = %v, want none", removed)
	}
	if _, ok := c.Lookup(d); !ok {
		t.Error("a non-overlapping descriptor must survive invalidation")
	}
}

// TestClearEmptiesCache covers ClearCache's documented scope.
func TestClearEmptiesCache(t *testing.T) {
	a, c := newTestCache(t)
	d := loc.NewA32(0x7000, false, false, 0, false)
	appendBlock(t, a, c, d, nopJump5(), 0x7000, 0x7004, backend.CompileResult{})

	c.Clear()
	if c.Len() != 0 {
		t.Errorf("Len() after Clear = %d, want 0", c.Len())
	}
	if _, ok := c.Lookup(d); ok {
		t.Error("Lookup after Clear must miss")
	}
}
