package types

import "fmt"

// TypeID uniquely identifies a type inside the interner.
type TypeID uint32

// NoTypeID marks the absence of a type.
const NoTypeID TypeID = 0

// Kind enumerates all supported kinds of types.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindUnit
	KindBool
	KindInt
	KindWord
	KindString
	KindNativeObject
	KindAnyObject
	KindExecutor
	KindFn
	KindOptional
	KindGenericParam
	KindClass
	KindStruct
	KindEnum
)

func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "invalid"
	case KindUnit:
		return "unit"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindWord:
		return "word"
	case KindString:
		return "string"
	case KindNativeObject:
		return "native_object"
	case KindAnyObject:
		return "any_object"
	case KindExecutor:
		return "executor"
	case KindFn:
		return "fn"
	case KindOptional:
		return "optional"
	case KindGenericParam:
		return "generic_param"
	case KindClass:
		return "class"
	case KindStruct:
		return "struct"
	case KindEnum:
		return "enum"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// IsNominal reports whether the kind names a user declaration.
func (k Kind) IsNominal() bool {
	return k == KindClass || k == KindStruct || k == KindEnum
}

// Type is a compact descriptor for any supported type.
type Type struct {
	Kind    Kind
	Elem    TypeID // optional payload
	Payload uint32 // nominal / fn / generic param slot
	Args    uint32 // generic argument list slot (0 = unbound)
}

// Case indices of Optional.
const (
	OptionalNoneTag = 0
	OptionalSomeTag = 1
)

// MakeOptional describes Optional<elem>.
func MakeOptional(elem TypeID) Type {
	return Type{Kind: KindOptional, Elem: elem}
}
