package hostasm

import (
	"testing"

	"github.com/twitchyliquid64/golang-asm/obj"
)

// TestMarkTargetResolvesForwardBranch covers the forward-reference pattern
// every backend lowering routine relies on: a branch emitted before its
// target is known is queued via MarkTarget, then resolved the moment the
// real target instruction is Added.
func TestMarkTargetResolvesForwardBranch(t *testing.T) {
	a, err := NewBase("amd64")
	if err != nil {
		t.Fatalf("NewBase: %v", err)
	}

	branch := a.NewProg()
	branch.As = obj.AJMP
	branch.To.Type = obj.TYPE_BRANCH
	a.Add(branch)
	a.MarkTarget(branch)

	target := a.NewProg()
	target.As = obj.ANOP
	a.Add(target)

	if branch.To.Target() != target {
		t.Error("MarkTarget must resolve the pending branch to the next Added instruction")
	}
}

// TestOnAssembleRunsAfterAssemble ensures registered callbacks fire, in
// registration order, against the final code bytes.
func TestOnAssembleRunsAfterAssemble(t *testing.T) {
	a, err := NewBase("amd64")
	if err != nil {
		t.Fatalf("NewBase: %v", err)
	}
	ret := a.NewProg()
	ret.As = obj.ARET
	a.Add(ret)

	var order []int
	a.OnAssemble(func(code []byte) error { order = append(order, 1); return nil })
	a.OnAssemble(func(code []byte) error { order = append(order, 2); return nil })

	if _, err := a.Assemble(); err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Errorf("callback order = %v, want [1 2]", order)
	}
}

// TestOnAssemblePropagatesError ensures Assemble surfaces the first failing
// callback's error rather than swallowing it.
func TestOnAssemblePropagatesError(t *testing.T) {
	a, err := NewBase("amd64")
	if err != nil {
		t.Fatalf("NewBase: %v", err)
	}
	ret := a.NewProg()
	ret.As = obj.ARET
	a.Add(ret)

	wantErr := errBoom
	a.OnAssemble(func(code []byte) error { return wantErr })

	if _, err := a.Assemble(); err != wantErr {
		t.Errorf("Assemble err = %v, want %v", err, wantErr)
	}
}

var errBoom = boomError{}

type boomError struct{}

func (boomError) Error() string { return "boom" }
