package dtor

import (
	"dtorgen/internal/mir"
)

// emitIVarDestroyer emits the entry point the foreign runtime calls to
// destroy the stored members of a foreign-allocated instance. self comes
// in unowned and is treated as borrowed for the duration.
func (g *gen) emitIVarDestroyer() {
	b := g.b
	b.SetAutoGenerated()
	self := b.CreateUncheckedOwnershipConversion(b.Param(0), mir.OwnershipGuaranteed)
	g.emitClassMemberDestruction(self)
	b.CreateEndBorrow(self)
	b.CreateReturnUnit()
}

// emitForeignDeallocator emits the foreign runtime's dealloc method: the
// user body, then a dynamic call to the superclass's dealloc. Member
// destruction is left to the ivar destroyer, which the runtime invokes
// once the root dealloc runs.
func (g *gen) emitForeignDeallocator() {
	b := g.b
	if g.d.Implicit {
		b.SetAutoGenerated()
	}
	g.emitUnavailableStub()
	self := b.Param(0)
	if !g.emitUserBody() {
		return
	}

	sup := g.n.Superclass
	if sup == nil {
		panic("dtor: foreign-allocated " + g.n.Name + " without a superclass")
	}
	sig := g.l.Signature(sup.Decl, mir.FuncForeignDeallocator)
	sig.Params[0].Conv = mir.ConvUnowned
	method := b.CreateSuperMethod(self,
		mir.SymbolName(sup.Decl.Name, mir.FuncForeignDeallocator),
		g.l.FnType(sig))
	superSelf := b.CreateUpcast(self, sup.Type)
	b.CreateApply(method,
		[]mir.Convention{mir.ConvUnowned},
		g.substitutions(sup.Type),
		[]mir.ValueID{superSelf},
		g.l.types.Builtins().Unit, mir.OwnershipNone)
	// self came in at +1 and was passed unowned; its lifetime ends here
	// without a release.
	b.CreateEndLifetime(superSelf)
	b.CreateReturnUnit()
}
