package arm64

import (
	"encoding/binary"
	"fmt"

	"github.com/rtiangha/dynarmic/internal/backend"
)

// unconditionalBOpcode/branchLen describe the A64 unconditional branch
// encoding (B, imm26 * 4 relative): bits [31:26] = 0b000101, bits [25:0]
// the signed word-granularity displacement, 4 bytes total. The
// LinkBlock/LinkBlockFast placeholder this package emits is always
// assembled as this shape for the same reason isa/amd64 always gets a
// near jmp: the initial target is the trailing fallback stub, always far
// enough away that a shorter form is never available on this ISA anyway
// (A64 has no variable-length branch encoding).
const (
	bOpcodeBits = 0b000101 << 26
	branchLen   = 4
	imm26Mask   = 1<<26 - 1
)

// Patcher implements engine.Patcher for arm64, rewriting a PatchSite's B
// imm26 displacement in place.
type Patcher struct{}

// PatchJump implements engine.Patcher.
func (Patcher) PatchJump(code []byte, codeBase uintptr, site backend.PatchSite, target uintptr) error {
	return writeB(code, codeBase, site, target)
}

// UnpatchJump implements engine.Patcher, restoring a zero-displacement
// branch that falls straight through to the immediately following
// materialize-PC-and-return stub.
func (Patcher) UnpatchJump(code []byte, codeBase uintptr, site backend.PatchSite) error {
	siteAddr := codeBase + uintptr(site.CodeOffset)
	return writeB(code, codeBase, site, siteAddr+branchLen)
}

func writeB(code []byte, codeBase uintptr, site backend.PatchSite, target uintptr) error {
	off := site.CodeOffset
	if off < 0 || off+branchLen > len(code) {
		return fmt.Errorf("arm64: patch site %d out of range (code len %d)", off, len(code))
	}
	siteAddr := codeBase + uintptr(off)
	delta := int64(target) - int64(siteAddr)
	if delta%4 != 0 {
		return fmt.Errorf("arm64: patch displacement %d not 4-byte aligned", delta)
	}
	imm := delta / 4
	lo, hi := -(int64(1) << 25), int64(1)<<25-1
	if imm < lo || imm > hi {
		return fmt.Errorf("arm64: patch displacement %d out of imm26 range", imm)
	}
	word := uint32(bOpcodeBits) | uint32(imm)&imm26Mask
	binary.LittleEndian.PutUint32(code[off:off+4], word)
	return nil
}
