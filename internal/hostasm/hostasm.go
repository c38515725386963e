// Package hostasm implements the "opcode-assembler abstraction" described
// by spec.md §4.4: a thin, host-agnostic wrapper over
// github.com/twitchyliquid64/golang-asm's obj.Prog linked-list builder.
// Both isa/amd64 and isa/arm64 backends embed Base and layer their own
// arch-specific instruction/register enums and emission helper methods on
// top of it, mirroring the teacher's internal/asm/golang_asm package
// (GolangAsmBaseAssembler), which the teacher's internal/asm/amd64 and
// internal/asm/arm64 packages embed the exact same way for the WebAssembly
// compiler's own host code emitter.
package hostasm

import (
	"fmt"

	goasm "github.com/twitchyliquid64/golang-asm"
	"github.com/twitchyliquid64/golang-asm/obj"
)

// Base wraps one golang-asm Builder and is embedded by each ISA's
// Assembler. It owns nothing ISA-specific: registers, instruction opcodes,
// and operand encoding are the embedding package's job.
type Base struct {
	b *goasm.Builder

	pendingTargets []*obj.Prog
	// onAssemble callbacks run once, after final code generation, in the
	// order registered; used to patch absolute displacements (e.g. a
	// LinkBlock's EmitPatchJg target, per §4.6) that are only known once
	// the final byte offsets exist.
	onAssemble []func(code []byte) error
}

// NewBase constructs a Base for the given GOARCH string ("amd64" or
// "arm64"), with an initial estimated instruction-count hint exactly as
// the teacher's NewGolangAsmBaseAssembler does.
func NewBase(goarch string) (*Base, error) {
	b, err := goasm.NewBuilder(goarch, 1024)
	if err != nil {
		return nil, fmt.Errorf("hostasm: new builder for %s: %w", goarch, err)
	}
	return &Base{b: b}, nil
}

// NewProg allocates a fresh, unlinked *obj.Prog for the caller to fill in
// and pass to Add.
func (a *Base) NewProg() *obj.Prog { return a.b.NewProg() }

// Add appends p to the instruction stream and resolves any pending
// MarkTarget branches to point at p.
func (a *Base) Add(p *obj.Prog) {
	a.b.AddInstruction(p)
	for _, pending := range a.pendingTargets {
		pending.To.SetTarget(p)
	}
	a.pendingTargets = nil
}

// MarkTarget arranges for every Prog passed so far via MarkTarget(p) to
// branch to the very next instruction added.
func (a *Base) MarkTarget(p *obj.Prog) {
	a.pendingTargets = append(a.pendingTargets, p)
}

// OnAssemble registers a callback to run against the final machine code
// bytes, used for displacement patching that can't be expressed through
// golang-asm's own relocation machinery (cross-block entrypoint patches,
// which golang-asm has no notion of since it only ever assembles one
// function body at a time).
func (a *Base) OnAssemble(cb func(code []byte) error) {
	a.onAssemble = append(a.onAssemble, cb)
}

// Assemble finalizes the instruction stream into a byte slice.
func (a *Base) Assemble() ([]byte, error) {
	code := a.b.Assemble()
	for _, cb := range a.onAssemble {
		if err := cb(code); err != nil {
			return nil, err
		}
	}
	return code, nil
}
