package dynarmic

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func validCallbacks() Callbacks {
	return Callbacks{
		MemoryRead8:         func(uint64) uint8 { return 0 },
		MemoryRead16:        func(uint64) uint16 { return 0 },
		MemoryRead32:        func(uint64) uint32 { return 0 },
		MemoryRead64:        func(uint64) uint64 { return 0 },
		MemoryWrite8:        func(uint64, uint8) {},
		MemoryWrite16:       func(uint64, uint16) {},
		MemoryWrite32:       func(uint64, uint32) {},
		MemoryWrite64:       func(uint64, uint64) {},
		InterpreterFallback: func(uint64, uint32) {},
		CallSVC:             func(uint32) {},
		ExceptionRaised:     func(uint64, ExceptionKind) {},
		AddTicks:            func(uint64) {},
		GetTicksRemaining:   func() uint64 { return 0 },
	}
}

// TestNewJitRejectsMissingCallback ensures a Config missing a required
// callback fails construction rather than producing a Jit that would call
// through a null function pointer the first time emitted code needed it.
func TestNewJitRejectsMissingCallback(t *testing.T) {
	cb := validCallbacks()
	cb.CallSVC = nil
	_, err := NewJit(Config{Callbacks: cb})
	require.Error(t, err)
}

// TestNewJitAndClose covers the happy construction path plus Close.
func TestNewJitAndClose(t *testing.T) {
	j, err := NewJit(Config{Callbacks: validCallbacks()})
	require.NoError(t, err)
	require.Zero(t, j.PC(), "a fresh Jit starts at PC 0")
	require.NoError(t, j.Close())
}

// TestCpsrRoundTrip covers the N/Z/C/V/Q/GE/Thumb packing contract.
func TestCpsrRoundTrip(t *testing.T) {
	j, err := NewJit(Config{Callbacks: validCallbacks()})
	require.NoError(t, err)
	defer j.Close()

	j.SetThumb(true)
	const want = uint32(1)<<31 | 1<<30 | 1<<29 | 1<<28 | 1<<27 | 0xf<<16 | 1<<5
	j.SetCpsr(want)
	require.Equal(t, want, j.Cpsr())
	require.True(t, j.thumb, "SetCpsr must update the tracked Thumb bit from bit 5")
}

// TestPstateRoundTrip covers the A64 NZCV-only packing.
func TestPstateRoundTrip(t *testing.T) {
	j, err := NewJit(Config{Callbacks: validCallbacks()})
	require.NoError(t, err)
	defer j.Close()

	const want = uint32(1)<<31 | 1<<29
	j.SetPstate(want)
	require.Equal(t, want, j.Pstate())
}

// TestFpscrFpcrAlias ensures the A32 FPSCR and A64 FPCR accessors read and
// write the same underlying State field.
func TestFpscrFpcrAlias(t *testing.T) {
	j, err := NewJit(Config{Callbacks: validCallbacks()})
	require.NoError(t, err)
	defer j.Close()

	j.SetFpscr(0x12345678)
	require.EqualValues(t, 0x12345678, j.Fpcr())
	j.SetFpcr(0xabcdef01)
	require.EqualValues(t, 0xabcdef01, j.Fpscr())
}

// TestRegsAndXRegsAreIndependentViews covers the disjoint A32/A64 register
// file accessors.
func TestRegsAndXRegsAreIndependentViews(t *testing.T) {
	j, err := NewJit(Config{Callbacks: validCallbacks()})
	require.NoError(t, err)
	defer j.Close()

	j.Regs()[0] = 42
	j.XRegs()[0] = 99
	require.EqualValues(t, 42, j.Regs()[0])
	require.EqualValues(t, 99, j.XRegs()[0])
}
