package mir

import (
	"fmt"

	"dtorgen/internal/types"
)

type FuncID int32
type BlockID int32
type ValueID int32

const (
	NoFuncID  FuncID  = -1
	NoBlockID BlockID = -1
	NoValueID ValueID = -1
)

// Ownership is the statically known ownership state of an SSA value.
type Ownership uint8

const (
	// OwnershipNone covers trivial values and addresses.
	OwnershipNone Ownership = iota
	// OwnershipOwned values must be consumed exactly once on every path.
	OwnershipOwned
	// OwnershipGuaranteed values are borrowed for a scope.
	OwnershipGuaranteed
	// OwnershipUnowned values are not kept alive by the holder.
	OwnershipUnowned
)

func (o Ownership) String() string {
	switch o {
	case OwnershipNone:
		return "none"
	case OwnershipOwned:
		return "owned"
	case OwnershipGuaranteed:
		return "guaranteed"
	case OwnershipUnowned:
		return "unowned"
	default:
		return fmt.Sprintf("Ownership(%d)", o)
	}
}

type ValueFlags uint8

const (
	ValueFlagAddr ValueFlags = 1 << iota
	ValueFlagParam
)

// Value is an SSA value: a function parameter or an instruction result.
type Value struct {
	ID    ValueID
	Type  types.TypeID
	Own   Ownership
	Flags ValueFlags
	Block BlockID
	Name  string
}

// IsAddr reports whether the value is an address rather than an object.
func (v *Value) IsAddr() bool {
	return v != nil && v.Flags&ValueFlagAddr != 0
}

// IsParam reports whether the value is a function parameter.
func (v *Value) IsParam() bool {
	return v != nil && v.Flags&ValueFlagParam != 0
}
