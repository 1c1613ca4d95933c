package dtor

import (
	"dtorgen/internal/mir"
)

// emitDestroyer emits the destroying entry point: it runs the user body,
// chains to the superclass destroyer, destroys the stored members and
// returns the storage as an owned native object. It never frees memory.
func (g *gen) emitDestroyer() {
	b := g.b
	if g.d.Implicit {
		b.SetAutoGenerated()
	}
	g.emitUnavailableStub()

	self := b.Param(0)
	if exec, ok := g.l.execs.ExecutorFor(b, g.d.Isolation, self); ok {
		g.l.execs.EmitPrecondition(b, exec)
	}
	if !g.emitUserBody() {
		return
	}

	// The superclass destroyer hands the storage back owned; member
	// destruction works through a borrow of it, cast back to our class.
	result := self
	object := self
	scope := mir.NoValueID
	if sup := g.n.Superclass; sup != nil && !sup.Decl.ForeignRoot {
		base := b.CreateUpcast(self, sup.Type)
		callee := b.CreateFunctionRef(
			mir.SymbolName(sup.Decl.Name, mir.FuncDestroyer),
			g.l.FnType(g.l.Signature(sup.Decl, mir.FuncDestroyer)),
		)
		result = b.CreateApply(callee,
			[]mir.Convention{mir.ConvGuaranteed},
			g.substitutions(sup.Type),
			[]mir.ValueID{base},
			g.l.types.Builtins().NativeObject, mir.OwnershipOwned)
		scope = b.CreateBeginBorrow(result)
		object = b.CreateUncheckedRefCast(scope, g.n.Type)
	}

	if g.n.Distributed {
		b.CreateBuiltin(mir.BuiltinResignIdentity, "", []mir.ValueID{self}, g.l.types.Builtins().Unit)
	}

	g.emitClassMemberDestruction(object)

	if scope != mir.NoValueID {
		b.CreateEndBorrow(scope)
	}
	b.CreateReturn(g.toOwnedNativeObject(result))
}

// toOwnedNativeObject casts the destroyer's result to the native object
// type, converting a guaranteed self to owned. The runtime retains the
// storage across the call, so the conversion does not add a retain.
func (g *gen) toOwnedNativeObject(v mir.ValueID) mir.ValueID {
	b := g.b
	obj := g.l.types.Builtins().NativeObject
	if b.Value(v).Type != obj {
		v = b.CreateUncheckedRefCast(v, obj)
	}
	if b.Value(v).Own != mir.OwnershipOwned {
		v = b.CreateUncheckedOwnershipConversion(v, mir.OwnershipOwned)
	}
	return v
}
