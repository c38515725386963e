package fastmem

import "testing"

// TestDemotionPreventsRefastmemming covers §8 property 6: after a fastmem
// access at a site triggers the signal handler, re-execution of the
// containing block must never re-enter the fastmem form at that site.
func TestDemotionPreventsRefastmemming(t *testing.T) {
	h := New()
	const blockHash = 0xABCD
	const faultPC = uintptr(0x7000)

	h.RegisterSite(faultPC, SiteInfo{CodeStart: 0x6000, CodeEnd: 0x6100, InstOffset: 4, Width: 4})

	if h.DoNotFastmem(blockHash, 4) {
		t.Fatal("site must be fastmem-eligible before any fault")
	}

	if recovered := h.HandleFault(faultPC, blockHash); !recovered {
		t.Fatal("HandleFault must recover a fault at a registered site")
	}

	if !h.DoNotFastmem(blockHash, 4) {
		t.Error("site must be permanently demoted after a single fault")
	}
}

func TestHandleFaultUnrecognizedSiteNotRecovered(t *testing.T) {
	h := New()
	if recovered := h.HandleFault(0xdeadbeef, 1); recovered {
		t.Error("HandleFault must report false for an address with no registered site")
	}
}

func TestUnregisterRangeDropsOnlyOverlappingSites(t *testing.T) {
	h := New()
	h.RegisterSite(0x100, SiteInfo{CodeStart: 0x1000, CodeEnd: 0x1100})
	h.RegisterSite(0x200, SiteInfo{CodeStart: 0x2000, CodeEnd: 0x2100})

	h.UnregisterRange(0x1000, 0x1100)

	if _, ok := h.Lookup(0x100); ok {
		t.Error("site within the unregistered range must be dropped")
	}
	if _, ok := h.Lookup(0x200); !ok {
		t.Error("site outside the unregistered range must remain")
	}
}

func TestDemotionIsPerSiteNotPerBlock(t *testing.T) {
	h := New()
	const blockHash = 0x1
	h.RegisterSite(0x300, SiteInfo{InstOffset: 8})
	h.RegisterSite(0x400, SiteInfo{InstOffset: 16})

	h.HandleFault(0x300, blockHash)

	if !h.DoNotFastmem(blockHash, 8) {
		t.Error("the faulting site's offset must be demoted")
	}
	if h.DoNotFastmem(blockHash, 16) {
		t.Error("a different site's offset in the same block must remain eligible")
	}
}
