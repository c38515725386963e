package amd64

import (
	"encoding/binary"
	"fmt"

	"github.com/rtiangha/dynarmic/internal/backend"
)

// nearJumpOpcode/nearJumpLen describe the 5-byte E9 rel32 encoding golang-
// asm's assembler produces for the unconditional JMP this package always
// emits as the LinkBlock/LinkBlockFast placeholder (§4.6): the target is
// never within int8 range of the jmp site since it always initially points
// at the trailing materialize-PC-and-return stub emitted right after it,
// which is itself several instructions long, so the short (0xEB) encoding
// never applies here.
const (
	nearJumpOpcode = 0xE9
	nearJumpLen    = 5
)

// Patcher implements engine.Patcher for amd64, rewriting a PatchSite's JMP
// rel32 displacement in place.
type Patcher struct{}

// PatchJump implements engine.Patcher.
func (Patcher) PatchJump(code []byte, codeBase uintptr, site backend.PatchSite, target uintptr) error {
	return writeNearJump(code, codeBase, site, target)
}

// UnpatchJump implements engine.Patcher, restoring a zero-displacement
// jump that falls straight through into the stub immediately following it
// (the originally-compiled fallback body), per §4.7's "restoring the
// unpatched materialize-PC + return stub".
func (Patcher) UnpatchJump(code []byte, codeBase uintptr, site backend.PatchSite) error {
	siteAddr := codeBase + uintptr(site.CodeOffset)
	return writeNearJump(code, codeBase, site, siteAddr+nearJumpLen)
}

func writeNearJump(code []byte, codeBase uintptr, site backend.PatchSite, target uintptr) error {
	off := site.CodeOffset
	if off < 0 || off+nearJumpLen > len(code) {
		return fmt.Errorf("amd64: patch site %d out of range (code len %d)", off, len(code))
	}
	siteAddr := codeBase + uintptr(off)
	rel := int64(target) - int64(siteAddr+nearJumpLen)
	if rel > int64(1)<<31-1 || rel < -(int64(1)<<31) {
		return fmt.Errorf("amd64: patch displacement %d out of rel32 range", rel)
	}
	code[off] = nearJumpOpcode
	binary.LittleEndian.PutUint32(code[off+1:off+5], uint32(int32(rel)))
	return nil
}
