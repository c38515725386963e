package exclusive

import (
	"sync"
	"testing"
)

// TestExclusiveStoreSucceedsWithoutInterveningWrite covers §8 scenario S4's
// second half: LDREX; STREX with no intervening write succeeds.
func TestExclusiveStoreSucceedsWithoutInterveningWrite(t *testing.T) {
	m := NewDefaultMonitor(2)
	m.ReadAndMark(0, 0x1000)
	if ok := m.DoExclusiveOperation(0, 0x1000); !ok {
		t.Error("DoExclusiveOperation should succeed when no intervening write occurred")
	}
}

// TestExclusiveStoreFailsAfterInterveningWrite covers §8 scenario S4's
// first half: an intervening write from another processor fails the STREX.
func TestExclusiveStoreFailsAfterInterveningWrite(t *testing.T) {
	m := NewDefaultMonitor(2)
	m.ReadAndMark(0, 0x1000)
	// Processor 1 performs an ordinary write to the same granule.
	m.ClearAddress(0x1000)
	if ok := m.DoExclusiveOperation(0, 0x1000); ok {
		t.Error("DoExclusiveOperation should fail after an intervening write to the granule")
	}
}

// TestExclusiveStoreConsumesReservation ensures a processor cannot STREX
// twice off one LDREX.
func TestExclusiveStoreConsumesReservation(t *testing.T) {
	m := NewDefaultMonitor(1)
	m.ReadAndMark(0, 0x2000)
	if ok := m.DoExclusiveOperation(0, 0x2000); !ok {
		t.Fatal("first DoExclusiveOperation should succeed")
	}
	if ok := m.DoExclusiveOperation(0, 0x2000); ok {
		t.Error("second DoExclusiveOperation without an intervening LDREX must fail")
	}
}

// TestExclusiveStoreClearsOtherProcessorsReservation verifies §5's
// clear-on-write semantics: a successful exclusive store by one processor
// clears any other processor's reservation on the same granule.
func TestExclusiveStoreClearsOtherProcessorsReservation(t *testing.T) {
	m := NewDefaultMonitor(2)
	m.ReadAndMark(0, 0x3000)
	m.ReadAndMark(1, 0x3000)

	if ok := m.DoExclusiveOperation(0, 0x3000); !ok {
		t.Fatal("processor 0's exclusive store should succeed")
	}
	if ok := m.DoExclusiveOperation(1, 0x3000); ok {
		t.Error("processor 1's reservation should have been cleared by processor 0's store")
	}
}

// TestFailedExclusiveStoreDoesNotClearOthersReservation covers the ARM
// architectural requirement that a failing STREX/STXR performs no memory
// write: processor 1's reservation on a granule must survive processor 0's
// DoExclusiveOperation call when processor 0's own reservation was stale, so
// that processor 0's attempted store never actually touched memory and
// therefore cannot invalidate anyone else's reservation on it.
func TestFailedExclusiveStoreDoesNotClearOthersReservation(t *testing.T) {
	m := NewDefaultMonitor(2)
	m.ReadAndMark(0, 0x4000)
	m.ReadAndMark(1, 0x4000)

	// Invalidate processor 0's own reservation so its exclusive store fails.
	m.ClearProcessor(0)

	if ok := m.DoExclusiveOperation(0, 0x4000); ok {
		t.Fatal("processor 0's exclusive store should fail: its reservation was cleared")
	}
	if ok := m.DoExclusiveOperation(1, 0x4000); !ok {
		t.Error("processor 1's reservation must survive processor 0's failed exclusive store")
	}
}

// TestReservationGranuleMasksAddress verifies byte-offset adjacency within
// one granule is treated as the same reservation, per §9's Open Question
// decision to default to an 8-byte granule rather than all-ones.
func TestReservationGranuleMasksAddress(t *testing.T) {
	m := NewDefaultMonitor(1)
	m.ReadAndMark(0, 0x1000)
	if ok := m.DoExclusiveOperation(0, 0x1004); !ok {
		t.Error("an address within the same 8-byte granule must satisfy the reservation")
	}
}

func TestReservationGranuleAllOnes(t *testing.T) {
	m := NewMonitor(1, 0)
	m.ReadAndMark(0, 0x1000)
	if ok := m.DoExclusiveOperation(0, 0x1004); ok {
		t.Error("an all-ones granule must require an exact address match")
	}
}

// TestConcurrentExclusiveOperations is a coarse stress test of §8 property
// 7: across many goroutines racing ReadAndMark/DoExclusiveOperation pairs
// on the same address, the monitor must never panic or deadlock and every
// DoExclusiveOperation call must return a well-defined bool.
func TestConcurrentExclusiveOperations(t *testing.T) {
	m := NewDefaultMonitor(8)
	const n = 64
	var wg sync.WaitGroup
	var successes int32Counter
	for p := uint32(0); p < 8; p++ {
		wg.Add(1)
		go func(p uint32) {
			defer wg.Done()
			for i := 0; i < n; i++ {
				m.ReadAndMark(p, 0x5000)
				if m.DoExclusiveOperation(p, 0x5000) {
					successes.add(1)
				}
			}
		}(p)
	}
	wg.Wait()
	if successes.get() == 0 {
		t.Error("expected at least one successful exclusive store across all goroutines")
	}
}

type int32Counter struct {
	mu sync.Mutex
	v  int
}

func (c *int32Counter) add(n int) {
	c.mu.Lock()
	c.v += n
	c.mu.Unlock()
}

func (c *int32Counter) get() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.v
}
