package dtor

import (
	"fmt"

	"dtorgen/internal/decl"
	"dtorgen/internal/mir"
	"dtorgen/internal/typelower"
	"dtorgen/internal/types"
)

// Category is the closed classification of a destructor's owning type.
type Category uint8

const (
	// CategoryNativeClass is a reference type managed by the native runtime.
	CategoryNativeClass Category = iota + 1
	// CategoryForeignClass is a reference type allocated by the foreign
	// object runtime; it gets a foreign dealloc and an ivar destroyer.
	CategoryForeignClass
	// CategoryRuntimeRoot is the foreign runtime's root class; the runtime
	// supplies its deallocation and nothing is emitted.
	CategoryRuntimeRoot
	// CategoryMoveOnlyValue is a non-copyable struct or enum.
	CategoryMoveOnlyValue
)

func (c Category) String() string {
	switch c {
	case CategoryNativeClass:
		return "native-class"
	case CategoryForeignClass:
		return "foreign-class"
	case CategoryRuntimeRoot:
		return "runtime-root"
	case CategoryMoveOnlyValue:
		return "move-only-value"
	default:
		return fmt.Sprintf("Category(%d)", c)
	}
}

// Classification is resolved once per destructor and drives every emitter.
type Classification struct {
	Category Category
	// Distributed wraps the deallocating entry in the remote-proxy check.
	Distributed bool
	// Scheduled means deallocation is submitted to the deinit's executor.
	Scheduled bool
	// AddressOnly value types bind self as an address.
	AddressOnly bool
	// Link is the single recursive link field, or nil.
	Link *decl.Field
	// Forms lists the entry points to emit, in emission order.
	Forms []mir.FuncKind
}

// Classify decides which destructor forms d lowers to. It never fails:
// declarations are validated when loaded, and a destructor on anything
// else is a bug upstream.
func Classify(layout *typelower.Lowering, d *decl.Destructor) Classification {
	n := d.Owner
	if n == nil {
		panic("dtor: destructor without an owning type")
	}
	switch {
	case n.IsClass() && n.ForeignRoot:
		return Classification{Category: CategoryRuntimeRoot}
	case n.IsClass() && n.ForeignAllocated:
		c := Classification{Category: CategoryForeignClass, Link: FindRecursiveLink(layout.Types(), n)}
		if needsIVarDestroyer(layout, n) {
			c.Forms = append(c.Forms, mir.FuncIVarDestroyer)
		}
		c.Forms = append(c.Forms, mir.FuncForeignDeallocator)
		return c
	case n.IsClass():
		c := Classification{
			Category:    CategoryNativeClass,
			Distributed: n.Distributed,
			Scheduled:   d.Isolated,
			Link:        FindRecursiveLink(layout.Types(), n),
			Forms:       []mir.FuncKind{mir.FuncDestroyer, mir.FuncDeallocator},
		}
		if d.Isolated {
			c.Forms = append(c.Forms, mir.FuncIsolatedDeallocator)
		}
		return c
	case !n.Copyable:
		return Classification{
			Category:    CategoryMoveOnlyValue,
			AddressOnly: layout.IsAddressOnly(n.Type),
			Forms:       []mir.FuncKind{mir.FuncDeallocator},
		}
	default:
		panic(fmt.Sprintf("dtor: %s is neither a class nor a non-copyable value type", n.Name))
	}
}

// FindRecursiveLink returns the one stored field of type Optional<Self>.
// With two or more such fields the chain is not linear and none is
// returned.
func FindRecursiveLink(in *types.Interner, n *decl.Nominal) *decl.Field {
	if RecursiveLinkCandidates(in, n) != 1 {
		return nil
	}
	self := in.Optional(n.Type)
	for _, f := range n.Fields {
		if f.Type == self {
			return f
		}
	}
	return nil
}

// RecursiveLinkCandidates counts the stored fields of type Optional<Self>.
func RecursiveLinkCandidates(in *types.Interner, n *decl.Nominal) int {
	if !n.IsClass() {
		return 0
	}
	self := in.Optional(n.Type)
	count := 0
	for _, f := range n.Fields {
		if f.Type == self {
			count++
		}
	}
	return count
}

func needsIVarDestroyer(layout *typelower.Lowering, n *decl.Nominal) bool {
	if n.RootDefaultActor {
		return true
	}
	for _, f := range n.Fields {
		if !layout.IsTrivial(layout.FieldType(n.Type, f)) {
			return true
		}
	}
	return false
}
