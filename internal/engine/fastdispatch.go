package engine

import (
	"hash/crc32"
	"sync"

	"github.com/rtiangha/dynarmic/internal/loc"
)

// FastDispatchSize is the table's fixed capacity; must be a power of two
// so indexing is a cheap mask rather than a modulo, matching the
// RSB/spill-slot sizing convention used throughout this translator.
const FastDispatchSize = 4096

// fastDispatchMask masks a CRC32 value into [0, FastDispatchSize).
const fastDispatchMask = FastDispatchSize - 1

// fastDispatchSlot is one table entry: the packed Descriptor it was last
// populated with and the codeptr to jump to, or the zero value when empty.
type fastDispatchSlot struct {
	descriptorPacked uint64
	codePtr          uintptr
}

// FastDispatchTable is the CRC32-indexed hint table of §3/§4.6: a fixed-
// capacity, power-of-two, open-addressed-by-replacement cache mapping a
// LocationDescriptor's packed hash to a host codeptr. It is purely a hint:
// a miss (empty slot or descriptor mismatch) falls back to the
// authoritative BlockCache lookup, and a colliding insert simply
// overwrites the existing slot (no probing), since a wrong hint only costs
// a slow-path lookup, never correctness.
type FastDispatchTable struct {
	mu    sync.RWMutex
	slots [FastDispatchSize]fastDispatchSlot
}

// NewFastDispatchTable returns an empty table.
func NewFastDispatchTable() *FastDispatchTable { return &FastDispatchTable{} }

func index(desc loc.Descriptor) uint32 {
	var b [8]byte
	h := desc.Hash64()
	for i := 0; i < 8; i++ {
		b[i] = byte(h >> (8 * i))
	}
	return crc32.ChecksumIEEE(b[:]) & fastDispatchMask
}

// Lookup probes the table for desc, returning its codeptr and true only on
// an exact descriptor-hash match; any other outcome (empty slot, or a
// different descriptor hashed to the same index) is reported as a miss.
func (t *FastDispatchTable) Lookup(desc loc.Descriptor) (uintptr, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s := t.slots[index(desc)]
	if s.codePtr == 0 || s.descriptorPacked != desc.Hash64() {
		return 0, false
	}
	return s.codePtr, true
}

// Update installs (desc, codePtr) into the table, overwriting whatever
// previously occupied that index (§4.6: "on miss, call the block lookup,
// update the table, and tail-jump").
func (t *FastDispatchTable) Update(desc loc.Descriptor, codePtr uintptr) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.slots[index(desc)] = fastDispatchSlot{descriptorPacked: desc.Hash64(), codePtr: codePtr}
}

// Clear empties every slot for ClearCache, and InvalidateSlot clears a
// single descriptor's slot if it is still the occupant, used by
// InvalidateCacheRanges so a stale hint never outlives the block it
// pointed to (§4.7: "clears matching fast-dispatch slots").
func (t *FastDispatchTable) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.slots {
		t.slots[i] = fastDispatchSlot{}
	}
}

// InvalidateSlot clears desc's slot iff it is still occupied by desc
// itself; a slot that has since been overwritten by an unrelated
// descriptor (a hash-index collision) is left alone, since clearing it
// would incorrectly evict someone else's valid hint.
func (t *FastDispatchTable) InvalidateSlot(desc loc.Descriptor) {
	t.mu.Lock()
	defer t.mu.Unlock()
	i := index(desc)
	if t.slots[i].descriptorPacked == desc.Hash64() {
		t.slots[i] = fastDispatchSlot{}
	}
}
