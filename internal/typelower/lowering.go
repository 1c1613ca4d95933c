// Package typelower answers the layout questions destructor lowering asks
// about a type: does destroying it do anything, and can it live in a
// register or only in memory.
package typelower

import (
	"dtorgen/internal/decl"
	"dtorgen/internal/types"
)

// Lowering caches triviality and address-only answers for one program.
type Lowering struct {
	prog     *decl.Program
	trivial  map[types.TypeID]bool
	addrOnly map[types.TypeID]bool
	visiting map[types.TypeID]struct{}
}

// New creates a Lowering over prog.
func New(prog *decl.Program) *Lowering {
	return &Lowering{
		prog:     prog,
		trivial:  make(map[types.TypeID]bool),
		addrOnly: make(map[types.TypeID]bool),
		visiting: make(map[types.TypeID]struct{}),
	}
}

// Program returns the declarations the lowering answers for.
func (l *Lowering) Program() *decl.Program { return l.prog }

// Types returns the program's interner.
func (l *Lowering) Types() *types.Interner { return l.prog.Types }

// IsTrivial reports whether destroying a value of type id is a no-op.
func (l *Lowering) IsTrivial(id types.TypeID) bool {
	if v, ok := l.trivial[id]; ok {
		return v
	}
	if _, busy := l.visiting[id]; busy {
		return false
	}
	l.visiting[id] = struct{}{}
	v := l.computeTrivial(id)
	delete(l.visiting, id)
	l.trivial[id] = v
	return v
}

func (l *Lowering) computeTrivial(id types.TypeID) bool {
	in := l.prog.Types
	tt, ok := in.Lookup(id)
	if !ok {
		return true
	}
	switch tt.Kind {
	case types.KindUnit, types.KindBool, types.KindInt, types.KindWord, types.KindExecutor, types.KindFn:
		return true
	case types.KindOptional:
		return l.IsTrivial(tt.Elem)
	case types.KindStruct, types.KindEnum:
		n, ok := l.prog.NominalOf(id)
		if !ok || !n.Copyable {
			return false
		}
		for _, member := range l.memberTypes(n, id) {
			if !l.IsTrivial(member) {
				return false
			}
		}
		return true
	default:
		// references, strings and unknown generic parameters all need work
		return false
	}
}

// IsAddressOnly reports whether values of type id must be manipulated
// through memory because their layout is not statically known.
func (l *Lowering) IsAddressOnly(id types.TypeID) bool {
	if v, ok := l.addrOnly[id]; ok {
		return v
	}
	if _, busy := l.visiting[id]; busy {
		return false
	}
	l.visiting[id] = struct{}{}
	v := l.computeAddressOnly(id)
	delete(l.visiting, id)
	l.addrOnly[id] = v
	return v
}

func (l *Lowering) computeAddressOnly(id types.TypeID) bool {
	tt, ok := l.prog.Types.Lookup(id)
	if !ok {
		return false
	}
	switch tt.Kind {
	case types.KindGenericParam:
		return true
	case types.KindOptional:
		return l.IsAddressOnly(tt.Elem)
	case types.KindStruct, types.KindEnum:
		n, ok := l.prog.NominalOf(id)
		if !ok {
			return false
		}
		if n.Resilient {
			return true
		}
		for _, member := range l.memberTypes(n, id) {
			if l.IsAddressOnly(member) {
				return true
			}
		}
	}
	return false
}

// FieldType returns the type of a stored field viewed through the binding
// owner (e.g. Box<Int>.value is Int for `value: T`).
func (l *Lowering) FieldType(owner types.TypeID, f *decl.Field) types.TypeID {
	return l.prog.Types.Subst(f.Type, l.prog.Types.Args(owner))
}

// PayloadType returns the payload type of an enum case viewed through owner.
func (l *Lowering) PayloadType(owner types.TypeID, c *decl.Case) types.TypeID {
	if !c.HasPayload() {
		return types.NoTypeID
	}
	return l.prog.Types.Subst(c.Payload, l.prog.Types.Args(owner))
}

func (l *Lowering) memberTypes(n *decl.Nominal, binding types.TypeID) []types.TypeID {
	var out []types.TypeID
	for _, f := range n.Fields {
		out = append(out, l.FieldType(binding, f))
	}
	for _, c := range n.Cases {
		if c.HasPayload() {
			out = append(out, l.PayloadType(binding, c))
		}
	}
	return out
}
