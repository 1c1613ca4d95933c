package dtor

import (
	"dtorgen/internal/decl"
	"dtorgen/internal/mir"
	"dtorgen/internal/types"
)

// emitClassMemberDestruction destroys every stored field of the class
// through the guaranteed reference self, unrolls the recursive link into a
// loop and tears down default-actor state last.
func (g *gen) emitClassMemberDestruction(self mir.ValueID) {
	link := g.cls.Link
	for _, f := range g.n.Fields {
		if f == link {
			continue
		}
		g.destroyClassMember(self, f)
	}
	if link != nil {
		g.emitRecursiveChainDestruction(self, link)
	}
	if g.n.RootDefaultActor {
		g.emitDestroyDefaultActor(self)
	}
}

// destroyClassMember destroys one stored field in place. Trivial fields
// emit nothing.
func (g *gen) destroyClassMember(self mir.ValueID, f *decl.Field) {
	ty := g.l.layout.FieldType(g.n.Type, f)
	if g.l.layout.IsTrivial(ty) {
		return
	}
	b := g.b
	addr := b.CreateRefElementAddr(self, f.Index, f.Name, ty)
	access := b.CreateBeginAccess(addr, mir.AccessDeinit)
	b.CreateDestroyAddr(access)
	b.CreateEndAccess(access)
}

func (g *gen) emitDestroyDefaultActor(self mir.ValueID) {
	g.b.CreateBuiltin(mir.BuiltinDestroyDefaultActor, "", []mir.ValueID{self}, g.l.types.Builtins().Unit)
}

// emitRecursiveChainDestruction releases a linked chain of instances
// without recursing: the link is detached into a stack slot and, while the
// slot holds the only reference to the next node, replaced by that node's
// own link. Releasing the slot then frees one node at a time, each of which
// finds its link already taken.
//
//	entry:     iter = take self.link; self.link = none; slot = iter
//	loop:      switch slot { some: bodyBB, none: cleanBB }
//	body:      if isUnique(slot) uniqueBB else cleanBB
//	unique:    slot = copy slot!.link
//	clean:     destroy slot
func (g *gen) emitRecursiveChainDestruction(self mir.ValueID, link *decl.Field) {
	b := g.b
	optTy := g.l.layout.FieldType(g.n.Type, link)
	g.point("recursive-link", g.n.Name+"."+link.Name)

	loopBB := b.NewBlock("chain.loop")
	someBB := b.NewBlock("chain.some")
	uniqueBB := b.NewBlock("chain.unique")
	notUniqueBB := b.NewBlock("chain.not_unique")
	noneBB := b.NewBlock("chain.none")
	cleanBB := b.NewBlock("chain.clean")

	none := b.CreateOptionalNone(optTy)
	field := b.CreateRefElementAddr(self, link.Index, link.Name, optTy)
	slot := b.CreateAllocStack(optTy)
	{
		access := b.CreateBeginAccess(field, mir.AccessModify)
		iter := b.CreateLoad(access, mir.LoadTake)
		b.CreateStore(none, access, mir.StoreInit)
		b.CreateEndAccess(access)
		b.CreateStore(iter, slot, mir.StoreInit)
	}
	b.CreateBranch(loopBB)

	b.SetInsertionPoint(loopBB)
	b.CreateSwitchTag(slot, []mir.SwitchTagCase{
		{Tag: types.OptionalSomeTag, TagName: "some", Target: someBB},
		{Tag: types.OptionalNoneTag, TagName: "none", Target: noneBB},
	}, mir.NoBlockID)

	b.SetInsertionPoint(someBB)
	unique := b.CreateIsUnique(slot)
	b.CreateCondBranch(unique, uniqueBB, notUniqueBB)

	b.SetInsertionPoint(uniqueBB)
	{
		node := b.CreateLoadBorrow(slot)
		cur := b.CreateUncheckedEnumData(node, types.OptionalSomeTag, "some", g.n.Type)
		next := b.CreateRefElementAddr(cur, link.Index, link.Name, optTy)
		access := b.CreateBeginAccess(next, mir.AccessRead)
		nextVal := b.CreateLoad(access, mir.LoadCopy)
		b.CreateEndAccess(access)
		b.CreateEndBorrow(node)
		b.CreateStore(nextVal, slot, mir.StoreAssign)
	}
	b.CreateBranch(loopBB)

	b.SetInsertionPoint(notUniqueBB)
	b.CreateBranch(cleanBB)

	b.SetInsertionPoint(noneBB)
	b.CreateBranch(cleanBB)

	b.SetInsertionPoint(cleanBB)
	b.CreateDestroyAddr(slot)
	b.CreateDeallocStack(slot)
}
