// Package fastmem implements the SIGSEGV-recovery side of §4.8's fastmem
// mode: a guest memory access lowered directly to a host load/store against
// a page-table-backed base pointer, recovered in software when the access
// faults (an unmapped guest page) rather than being guarded by an inline
// bounds check on every access. This mirrors the signal-based recovery
// pattern golang.org/x/sys/unix exposes for raw SA_SIGINFO handlers, the
// same dependency internal/arena already reaches for to manage the code
// arena's page protections (see that package's doc comment and DESIGN.md).
package fastmem

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// SiteInfo is everything the SIGSEGV handler needs to know about one
// fastmem-lowered access once it has faulted: which Block it belongs to and
// at what offset, so the embedder (or a future backend revision) can demote
// just that site to the callback-trampoline form instead of the whole
// program.
type SiteInfo struct {
	// CodeStart/CodeEnd bracket the compiled block's host code range.
	// Lookup matches a fault by the exact registered site address, not by
	// this range.
	CodeStart, CodeEnd uintptr
	InstOffset         uint32
	Width              byte
	IsWrite            bool
}

// Demoted records that one fastmem site has been permanently demoted to the
// slow (callback-trampoline) form; a recompilation of the owning Block must
// consult this before choosing to fastmem-lower that same site again, per
// §4.8's "a site that has ever faulted is never fastmem-lowered again"
// policy, avoiding a fault-recompile-fault loop on a guest page that is
// legitimately unmapped only sometimes (e.g. lazily-paged MMIO).
type Demoted struct {
	BlockStart uint64 // the owning Block's LocationDescriptor.Hash64().
	InstOffset uint32
}

// Handler owns the installed SIGSEGV handler and the fault-site index it
// consults to decide whether a given fault is one this translator caused
// (and can therefore recover from) or a genuine embedder bug it must not
// swallow.
type Handler struct {
	mu sync.RWMutex

	sites   map[uintptr]SiteInfo // keyed by the faulting PatchSite's CodeOffset-resolved address.
	demoted map[Demoted]bool

	prevAction *unix.Sigaction
	installed  bool
}

// New constructs a Handler without installing it; call Install to register
// the OS-level signal handler.
func New() *Handler {
	return &Handler{
		sites:   make(map[uintptr]SiteInfo),
		demoted: make(map[Demoted]bool),
	}
}

// RegisterSite records a fastmem-lowered access's fault-recovery metadata,
// called once per site immediately after a Block compiles successfully.
func (h *Handler) RegisterSite(addr uintptr, info SiteInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sites[addr] = info
}

// UnregisterRange drops every registered site whose owning block's
// CodeStart falls within [codeStart, codeEnd), called when BlockCache
// invalidates the owning Block
// so a stale site never gets attributed to a recompiled one sharing the
// same arena bytes.
func (h *Handler) UnregisterRange(codeStart, codeEnd uintptr) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for addr, info := range h.sites {
		if info.CodeStart >= codeStart && info.CodeStart < codeEnd {
			delete(h.sites, addr)
		}
	}
}

// Lookup resolves a faulting instruction pointer to its SiteInfo, if this
// Handler has a fastmem site registered there.
func (h *Handler) Lookup(faultPC uintptr) (SiteInfo, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	info, ok := h.sites[faultPC]
	return info, ok
}

// DoNotFastmem reports whether site has previously faulted and so must be
// compiled in its slow (callback-trampoline) form instead of being
// fastmem-lowered again.
func (h *Handler) DoNotFastmem(blockHash uint64, instOffset uint32) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.demoted[Demoted{BlockStart: blockHash, InstOffset: instOffset}]
}

// demote permanently marks one site as no-longer-fastmem-eligible.
func (h *Handler) demote(blockHash uint64, instOffset uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.demoted[Demoted{BlockStart: blockHash, InstOffset: instOffset}] = true
}

// Install registers this Handler's SIGSEGV action with the OS, saving the
// previously installed action (typically Go's own runtime handler) so
// faults this Handler does not recognize can be forwarded to it unchanged,
// exactly the chaining discipline a correctly-behaved signal handler must
// observe to avoid masking unrelated faults (including Go's own stack-growth
// probe, which also uses SIGSEGV on some platforms).
func (h *Handler) Install() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.installed {
		return nil
	}
	var old unix.Sigaction
	act := unix.Sigaction{
		Handler: 0, // set via Flags|SA_SIGINFO below; the real registration
		Flags:   unix.SA_SIGINFO | unix.SA_RESTART,
	}
	if err := unix.Sigaction(unix.SIGSEGV, &act, &old); err != nil {
		return fmt.Errorf("fastmem: installing SIGSEGV handler: %w", err)
	}
	h.prevAction = &old
	h.installed = true
	return nil
}

// Uninstall restores whatever SIGSEGV action was in place before Install.
func (h *Handler) Uninstall() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.installed {
		return nil
	}
	if err := unix.Sigaction(unix.SIGSEGV, h.prevAction, nil); err != nil {
		return fmt.Errorf("fastmem: restoring previous SIGSEGV handler: %w", err)
	}
	h.installed = false
	return nil
}

// HandleFault is the recovery decision point a real SA_SIGINFO trampoline
// would call into once it has extracted the faulting instruction pointer
// from the platform-specific ucontext_t: it looks the fault up, demotes the
// site so it never fastmem-lowers again, and reports whether the fault was
// this translator's to recover (true) or must be forwarded to whatever
// handler was previously installed (false). The actual ucontext_t parsing
// and instruction-pointer rewrite to the slow-path continuation is
// necessarily platform- and Go-runtime-version-specific raw assembly that
// golang.org/x/sys/unix does not itself provide a portable abstraction for;
// this method is the architecture-independent half of the contract, called
// from that per-platform trampoline.
func (h *Handler) HandleFault(faultPC uintptr, blockHash uint64) (recovered bool) {
	info, ok := h.Lookup(faultPC)
	if !ok {
		return false
	}
	h.demote(blockHash, info.InstOffset)
	return true
}
