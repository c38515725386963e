// Package decoder implements the generic bit-pattern matcher engine used by
// each guest ISA's instruction table (§4.1). The tables themselves — the
// bit patterns and handler names for A32, Thumb, and A64 — are external to
// this translator's core per §1; this package only builds and searches the
// table structure, generic over the handler type H.
package decoder

import "fmt"

// Matcher is one declarative row of a decode table: a human-readable name,
// a mask/expected pair, and a typed handler reference. Matches(word) holds
// iff (word & Mask) == Expected.
type Matcher[H any] struct {
	Name     string
	Mask     uint32
	Expected uint32
	Handler  H
}

// Matches reports whether word satisfies this Matcher's bit pattern.
func (m Matcher[H]) Matches(word uint32) bool {
	return word&m.Mask == m.Expected
}

// Table is a declarative, ordered list of Matchers. Ordering is the sole
// disambiguation mechanism per §4.1/§8.1: the decoder returns the first
// matcher (by declaration order) whose pattern matches, so more specific
// patterns must be declared earlier than the more general ones they
// overlap with.
type Table[H any] struct {
	rows      []Matcher[H]
	undefined H
}

// NewTable builds a Table from rows in priority order, with undefined as
// the sentinel handler returned when no row matches.
func NewTable[H any](undefined H, rows ...Matcher[H]) *Table[H] {
	return &Table[H]{rows: rows, undefined: undefined}
}

// Lookup returns the first matching row's handler, or the table's
// undefined sentinel if no row matches (§4.1 failure mode: the sentinel
// lifts to a guest-undefined-exception IR sequence, it is never itself an
// error return from Lookup).
func (t *Table[H]) Lookup(word uint32) H {
	for _, row := range t.rows {
		if row.Matches(word) {
			return row.Handler
		}
	}
	return t.undefined
}

// LookupNamed is Lookup plus the matched row's Name, for disassembly/trace
// use; returns ("", handler) when falling back to the undefined sentinel.
func (t *Table[H]) LookupNamed(word uint32) (string, H) {
	for _, row := range t.rows {
		if row.Matches(word) {
			return row.Name, row.Handler
		}
	}
	return "", t.undefined
}

// Validate panics if two rows in the table have literally identical
// (mask, expected) pairs, which would make declaration order meaningless
// noise rather than intentional disambiguation; this is a build-time
// sanity check, not a runtime decode-path cost.
func (t *Table[H]) Validate() {
	type key struct{ mask, expected uint32 }
	seen := map[key]string{}
	for _, row := range t.rows {
		k := key{row.Mask, row.Expected}
		if prev, ok := seen[k]; ok {
			panic(fmt.Sprintf("decoder: matcher %q has identical pattern to %q (mask=%#08x expected=%#08x)",
				row.Name, prev, row.Mask, row.Expected))
		}
		seen[k] = row.Name
	}
}
