package ir

import (
	"fmt"
	"math"
)

// Value represents an SSA value produced by some Inst, packed with its Type
// the same way wazero's ssa.Value packs a Type into its high bits: the low
// 32 bits are the pure identifier (ValueID), the high 32 bits the Type.
type Value uint64

// ValueID is the identifier half of a Value, ignoring its Type.
type ValueID uint32

const (
	valueIDInvalid ValueID = math.MaxUint32
	// ValueInvalid is the sentinel for "no value", used e.g. as the else
	// branch of a terminal that cannot fail, or an unused argument slot. It
	// is not the zero Value: Value(0) names the valid ID 0.
	ValueInvalid Value = Value(valueIDInvalid)
)

// ID returns the identifier portion of v.
func (v Value) ID() ValueID { return ValueID(v) }

// Type returns the Type this value was defined with.
func (v Value) Type() Type { return Type(v >> 32) }

// Valid reports whether v refers to a real Inst result.
func (v Value) Valid() bool { return v.ID() != valueIDInvalid }

// WithType returns a copy of v carrying the given Type; used once, by the
// Inst that defines the value, immediately after allocating its ID.
func (v Value) WithType(t Type) Value {
	return Value(v.ID()) | Value(t)<<32
}

// String implements fmt.Stringer.
func (v Value) String() string {
	if !v.Valid() {
		return "<invalid>"
	}
	return fmt.Sprintf("v%d:%s", v.ID(), v.Type())
}
