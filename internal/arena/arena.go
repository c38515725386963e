// Package arena implements BlockOfCode, the single writable-then-executable
// memory arena that owns every byte of host code the backend emits, per
// spec.md §3 "Lifecycle" and §9 "W^X hosts". This mirrors the shape of the
// teacher's internal/engine/wazevo platform.MmapCodeSegment /
// platform.MprotectRX / platform.MunmapCodeSegment calls (see
// internal/engine/wazevo/engine.go's mmapExecutable), but since those
// platform-package internals were not themselves retrieved into the pack
// (wazero keeps them behind a private, OS-gated internal/platform package),
// this repo implements the mmap/mprotect calls directly against
// golang.org/x/sys/unix, the same dependency the rest of the retrieval pack
// reaches for when it needs raw page-table control (see DESIGN.md).
package arena

import (
	"fmt"
	"runtime"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Arena is a single contiguous mmap'd region that the backend emitter
// appends host code into. It supports the W^X toggle described in §9: on
// hosts that forbid simultaneous write+exec mappings (arm64, notably Apple
// Silicon), writes only happen while the mapping is RW, and EnableWriting/
// DisableWriting bracket every write batch; the entire mapping is left RX
// between batches so emitted code can always execute.
type Arena struct {
	mu sync.Mutex

	mem []byte // the raw mmap'd slice, len == cap == reserved size.
	used int

	writable bool
	// toggleRequired is true on hosts where RW and RX cannot coexist for
	// the same mapping (arm64); on amd64 the mapping is left RWX for the
	// whole lifetime and EnableWriting/DisableWriting are no-ops.
	toggleRequired bool
}

// New reserves size bytes of RWX (or RW, toggled to RX as needed) memory.
func New(size int) (*Arena, error) {
	mem, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE|unix.PROT_EXEC,
		unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("arena: mmap %d bytes: %w", size, err)
	}
	a := &Arena{mem: mem, writable: true}
	if runtime.GOARCH == "arm64" {
		// Apple Silicon (and some hardened Linux arm64 configurations)
		// reject RWX outright; re-request RW only and toggle explicitly.
		a.toggleRequired = true
		if err := unix.Mprotect(mem, unix.PROT_READ|unix.PROT_WRITE); err != nil {
			unix.Munmap(mem)
			return nil, fmt.Errorf("arena: mprotect RW: %w", err)
		}
	}
	return a, nil
}

// EnableWriting acquires the arena for a batch of writes, toggling the
// mapping to RW if this host requires W^X. Must be paired with a call to
// DisableWriting before any emitted code in this arena runs.
func (a *Arena) EnableWriting() error {
	a.mu.Lock()
	if a.writable {
		return nil
	}
	if a.toggleRequired {
		if err := unix.Mprotect(a.mem, unix.PROT_READ|unix.PROT_WRITE); err != nil {
			a.mu.Unlock()
			return fmt.Errorf("arena: mprotect RW: %w", err)
		}
	}
	a.writable = true
	return nil
}

// DisableWriting ends the write batch started by EnableWriting, toggling
// back to RX on hosts that require it, and releases the arena for
// concurrent readers (host code execution never takes this lock; only
// other compilations do).
func (a *Arena) DisableWriting() error {
	defer a.mu.Unlock()
	if !a.writable {
		return nil
	}
	if a.toggleRequired {
		if err := unix.Mprotect(a.mem, unix.PROT_READ|unix.PROT_EXEC); err != nil {
			return fmt.Errorf("arena: mprotect RX: %w", err)
		}
	}
	a.writable = false
	return nil
}

// Append copies code to the end of the arena, growing is not supported
// (the arena is a fixed reservation sized generously at construction;
// running out is a hard error so the embedder can reconfigure with a
// larger reservation rather than silently stalling on a realloc that would
// invalidate every previously returned entrypoint pointer). Must be called
// between EnableWriting/DisableWriting.
func (a *Arena) Append(code []byte) (entrypoint uintptr, err error) {
	if !a.writable {
		return 0, fmt.Errorf("arena: Append called outside an EnableWriting/DisableWriting scope")
	}
	if a.used+len(code) > len(a.mem) {
		return 0, fmt.Errorf("arena: exhausted (%d used, %d reserved, %d requested)", a.used, len(a.mem), len(code))
	}
	off := a.used
	copy(a.mem[off:], code)
	a.used += len(code)
	return a.entrypointAt(off), nil
}

func (a *Arena) entrypointAt(off int) uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(a.mem))) + uintptr(off)
}

// Reset rewinds the arena to empty without unmapping, used by ClearCache:
// previously returned entrypoints become dangling and must not be
// dereferenced by the caller after this returns.
func (a *Arena) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.used = 0
}

// Close unmaps the arena. Any outstanding entrypoint pointers are invalid
// after this returns.
func (a *Arena) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.mem == nil {
		return nil
	}
	err := unix.Munmap(a.mem)
	a.mem = nil
	return err
}

// Len reports how many bytes of the arena are in use.
func (a *Arena) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.used
}

// Base returns the runtime address of byte 0 of the arena, used by callers
// that need to convert a previously returned entrypoint back into an
// offset (e.g. to locate a PatchSite's CodeOffset within the arena when
// patching in place).
func (a *Arena) Base() uintptr {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.entrypointAt(0)
}

// Bytes returns the live arena slice backing the size bytes starting at
// entrypoint, for in-place rewriting by BlockCache's jump-patching logic.
// The returned slice aliases the arena's memory directly; callers must
// bracket any write into it with EnableWriting/DisableWriting.
func (a *Arena) Bytes(entrypoint uintptr, size int) []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	off := int(entrypoint - a.entrypointAt(0))
	return a.mem[off : off+size]
}
