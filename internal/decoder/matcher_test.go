package decoder

import "testing"

// TestLookupUsesDeclarationOrderToDisambiguate covers §8 property 1: for
// overlapping patterns, the first matcher in declaration order wins,
// regardless of which is "more specific" by some other measure.
func TestLookupUsesDeclarationOrderToDisambiguate(t *testing.T) {
	table := NewTable("undefined",
		Matcher[string]{Name: "specific", Mask: 0xFFFF0000, Expected: 0x12340000, Handler: "specific"},
		Matcher[string]{Name: "general", Mask: 0x0000FFFF, Expected: 0x00000000, Handler: "general"},
	)

	word := uint32(0x12340000)
	if got := table.Lookup(word); got != "specific" {
		t.Errorf("Lookup(%#x) = %q, want %q (declared first)", word, got, "specific")
	}

	name, got := table.LookupNamed(word)
	if name != "specific" || got != "specific" {
		t.Errorf("LookupNamed(%#x) = (%q, %q), want (%q, %q)", word, name, got, "specific", "specific")
	}
}

func TestLookupFallsBackToUndefined(t *testing.T) {
	table := NewTable("undefined",
		Matcher[string]{Name: "only", Mask: 0xF0000000, Expected: 0xA0000000},
	)
	if got := table.Lookup(0x10000000); got != "undefined" {
		t.Errorf("Lookup of non-matching word = %q, want %q", got, "undefined")
	}
	name, got := table.LookupNamed(0x10000000)
	if name != "" || got != "undefined" {
		t.Errorf("LookupNamed of non-matching word = (%q, %q), want (\"\", %q)", name, got, "undefined")
	}
}

func TestMatchesMasking(t *testing.T) {
	m := Matcher[int]{Mask: 0x0000000F, Expected: 0x00000005}
	if !m.Matches(0xFFFFFFF5) {
		t.Error("Matches should ignore bits outside the mask")
	}
	if m.Matches(0xFFFFFFF3) {
		t.Error("Matches should reject a word whose masked bits differ")
	}
}

func TestValidatePanicsOnIdenticalPatterns(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Validate should panic when two rows share an identical (mask, expected) pair")
		}
	}()
	table := NewTable("undefined",
		Matcher[string]{Name: "a", Mask: 0xF, Expected: 0x1},
		Matcher[string]{Name: "b", Mask: 0xF, Expected: 0x1},
	)
	table.Validate()
}

func TestValidateAllowsOverlappingButDistinctPatterns(t *testing.T) {
	table := NewTable("undefined",
		Matcher[string]{Name: "specific", Mask: 0xFFFF0000, Expected: 0x12340000},
		Matcher[string]{Name: "general", Mask: 0x0000FFFF, Expected: 0x00000000},
	)
	table.Validate() // must not panic
}
