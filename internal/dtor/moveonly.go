package dtor

import (
	"dtorgen/internal/decl"
	"dtorgen/internal/mir"
)

// emitMoveOnlyDeallocator emits the deinit of a non-copyable struct or
// enum: the user body runs, then self is stripped of its deinit and its
// members destroyed individually. Address-only types receive self
// indirectly.
func (g *gen) emitMoveOnlyDeallocator() {
	b := g.b
	if g.d.Implicit {
		b.SetAutoGenerated()
	}
	g.emitUnavailableStub()
	self := b.Param(0)
	if !g.emitUserBody() {
		return
	}
	g.emitMoveOnlyMemberDestruction(self)
	b.CreateReturnUnit()
}

func (g *gen) emitMoveOnlyMemberDestruction(self mir.ValueID) {
	b := g.b
	// drop_deinit keeps destroy_value from re-entering this deinit.
	value := b.CreateDropDeinit(self)
	if !b.Value(value).IsAddr() {
		b.CreateDestroyValue(value)
		return
	}
	switch {
	case g.n.Kind == decl.NominalStruct:
		g.destroyStructFields(value)
	case len(g.n.Cases) > 0:
		g.destroyEnumPayload(value)
	}
}

func (g *gen) destroyStructFields(addr mir.ValueID) {
	b := g.b
	for _, f := range g.n.Fields {
		ty := g.l.layout.FieldType(g.n.Type, f)
		if g.l.layout.IsTrivial(ty) {
			continue
		}
		elem := b.CreateStructElementAddr(addr, f.Index, f.Name, ty)
		access := b.CreateBeginAccess(elem, mir.AccessDeinit)
		b.CreateDestroyAddr(access)
		b.CreateEndAccess(access)
	}
}

// destroyEnumPayload switches on the active case and destroys its payload
// in place.
func (g *gen) destroyEnumPayload(addr mir.ValueID) {
	b := g.b
	origin := b.InsertionBlock()
	cont := b.NewBlock("cont")
	cases := make([]mir.SwitchTagCase, 0, len(g.n.Cases))
	for _, c := range g.n.Cases {
		bb := b.NewBlock("case." + c.Name)
		b.SetInsertionPoint(bb)
		if c.HasPayload() {
			payload := b.CreateUncheckedTakeEnumDataAddr(addr, c.Index, c.Name, g.l.layout.PayloadType(g.n.Type, c))
			b.CreateDestroyAddr(payload)
		}
		b.CreateBranch(cont)
		cases = append(cases, mir.SwitchTagCase{Tag: c.Index, TagName: c.Name, Target: bb})
	}
	b.SetInsertionPoint(origin)
	b.CreateSwitchTag(addr, cases, mir.NoBlockID)
	b.SetInsertionPoint(cont)
}
