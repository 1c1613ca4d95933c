package vm

import (
	"fmt"
	"strings"
)

// ValueKind identifies the runtime representation of a value.
type ValueKind uint8

const (
	VKInvalid ValueKind = iota
	VKUnit
	VKInt
	VKBool
	VKString
	VKRef      // strong reference to a heap object
	VKEnum     // optional or enum case; payload in Payload
	VKStruct   // inline aggregate; fields in Fields
	VKFunc     // function symbol
	VKExecutor // executor name
	VKAddr     // address of a memory cell
)

func (k ValueKind) String() string {
	switch k {
	case VKUnit:
		return "unit"
	case VKInt:
		return "int"
	case VKBool:
		return "bool"
	case VKString:
		return "string"
	case VKRef:
		return "ref"
	case VKEnum:
		return "enum"
	case VKStruct:
		return "struct"
	case VKFunc:
		return "func"
	case VKExecutor:
		return "executor"
	case VKAddr:
		return "addr"
	default:
		return "invalid"
	}
}

// Value is a runtime value. Only the fields of its kind are meaningful.
type Value struct {
	Kind    ValueKind
	Int     int64
	Str     string // VKString contents, VKFunc symbol, VKExecutor name
	H       Handle
	Tag     int
	Payload *Cell   // VKEnum
	Fields  []*Cell // VKStruct
	Type    string  // nominal name of VKStruct and VKEnum values
	Addr    *Cell

	// noDeinit is set by drop_deinit: destroying the value destroys its
	// members without running the type's deinit again.
	noDeinit bool
}

// Cell is one slot of memory: a stored field, a struct member, an enum
// payload or a stack allocation.
type Cell struct {
	V    Value
	Init bool

	obj   Handle // owning object, for stored fields
	class string
	field string
}

// Unit returns the empty tuple.
func Unit() Value { return Value{Kind: VKUnit} }

// Int returns an integer value.
func Int(n int64) Value { return Value{Kind: VKInt, Int: n} }

// Bool returns a boolean value.
func Bool(b bool) Value {
	v := Value{Kind: VKBool}
	if b {
		v.Int = 1
	}
	return v
}

// Str returns a string value. Strings are not trivially destructible: a
// stored string must be destroyed before its storage is freed.
func Str(s string) Value { return Value{Kind: VKString, Str: s} }

// None returns the empty optional.
func None() Value { return Value{Kind: VKEnum, Tag: 0} }

// Some wraps v in an optional, taking ownership of it.
func Some(v Value) Value {
	return Value{Kind: VKEnum, Tag: 1, Payload: &Cell{V: v, Init: true}}
}

// Case builds case tag of the enum typ. payload may be nil.
func Case(typ string, tag int, payload *Value) Value {
	v := Value{Kind: VKEnum, Type: typ, Tag: tag}
	if payload != nil {
		v.Payload = &Cell{V: *payload, Init: true}
	}
	return v
}

// Struct builds an aggregate of the struct typ, taking ownership of fields.
func Struct(typ string, fields ...Value) Value {
	cells := make([]*Cell, len(fields))
	for i, f := range fields {
		cells[i] = &Cell{V: f, Init: true, class: typ, field: fmt.Sprintf("#%d", i)}
	}
	return Value{Kind: VKStruct, Type: typ, Fields: cells}
}

// Truthy reports whether a boolean value is true.
func (v Value) Truthy() bool { return v.Kind == VKBool && v.Int != 0 }

// holdsResources reports whether dropping v on the floor would leak.
func (v Value) holdsResources() bool {
	switch v.Kind {
	case VKRef, VKString:
		return true
	case VKEnum:
		return v.Payload != nil && v.Payload.Init && v.Payload.V.holdsResources()
	case VKStruct:
		for _, f := range v.Fields {
			if f.Init && f.V.holdsResources() {
				return true
			}
		}
	}
	return false
}

func (v Value) String() string {
	switch v.Kind {
	case VKUnit:
		return "()"
	case VKInt:
		return fmt.Sprint(v.Int)
	case VKBool:
		return fmt.Sprint(v.Truthy())
	case VKString:
		return fmt.Sprintf("%q", v.Str)
	case VKRef:
		return fmt.Sprintf("ref#%d", v.H)
	case VKEnum:
		if v.Payload == nil {
			return fmt.Sprintf("%s.#%d", v.Type, v.Tag)
		}
		return fmt.Sprintf("%s.#%d(%s)", v.Type, v.Tag, v.Payload.V)
	case VKStruct:
		parts := make([]string, len(v.Fields))
		for i, f := range v.Fields {
			parts[i] = f.V.String()
		}
		return v.Type + "{" + strings.Join(parts, ", ") + "}"
	case VKFunc:
		return "@" + v.Str
	case VKExecutor:
		return "executor(" + v.Str + ")"
	case VKAddr:
		return "addr"
	default:
		return "<invalid>"
	}
}
