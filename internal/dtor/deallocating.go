package dtor

import (
	"dtorgen/internal/decl"
	"dtorgen/internal/mir"
	"dtorgen/internal/types"
)

// emitDeallocator emits the deallocating entry point: destroy, then free.
// isolated marks the body run on the executor by a scheduled
// deallocation; it never checks for remote proxies since the scheduling
// entry point already did.
func (g *gen) emitDeallocator(isolated bool) {
	b := g.b
	b.SetAutoGenerated()
	g.emitUnavailableStub()
	self := b.Param(0)
	g.withRemoteShortCircuit(self, isolated, func() {
		g.emitDestroyAndFree(self)
	})
}

func (g *gen) emitDestroyAndFree(self mir.ValueID) {
	b := g.b
	destroyer := b.CreateFunctionRef(
		mir.SymbolName(g.n.Name, mir.FuncDestroyer),
		g.l.FnType(g.l.Signature(g.n, mir.FuncDestroyer)),
	)
	borrowed := b.CreateBeginBorrow(self)
	storage := b.CreateApply(destroyer,
		[]mir.Convention{mir.ConvGuaranteed},
		g.forwardingSubstitutions(),
		[]mir.ValueID{borrowed},
		g.l.types.Builtins().NativeObject, mir.OwnershipOwned)
	b.CreateEndBorrow(borrowed)
	// self's lifetime ended inside the destroyer; what remains is storage.
	b.CreateEndLifetime(self)
	object := b.CreateUncheckedRefCast(storage, g.n.Type)
	b.CreateDeallocRef(object)
}

// forwardingSubstitutions maps the owner's generic parameters onto
// themselves for calls to a sibling entry point.
func (g *gen) forwardingSubstitutions() []types.TypeID {
	args := g.l.types.Args(g.n.Type)
	if len(args) == 0 {
		return nil
	}
	return args
}

// emitIsolatingDeallocator emits the deallocating entry point of an
// isolated deinit: it submits the isolated deallocator to the executor the
// deinit is isolated to and returns without destroying anything.
func (g *gen) emitIsolatingDeallocator() {
	b := g.b
	b.SetAutoGenerated()
	g.emitUnavailableStub()
	self := b.Param(0)
	g.withRemoteShortCircuit(self, false, func() {
		g.emitScheduleDeallocation(self)
	})
}

func (g *gen) emitScheduleDeallocation(self mir.ValueID) {
	b := g.b
	bt := g.l.types.Builtins()
	work := b.CreateFunctionRef(
		mir.SymbolName(g.n.Name, mir.FuncIsolatedDeallocator),
		g.l.FnType(g.l.Signature(g.n, mir.FuncIsolatedDeallocator)),
	)
	exec, ok := g.l.execs.ExecutorFor(b, g.d.Isolation, self)
	if !ok {
		panic("dtor: isolated deinit of " + g.n.Name + " has no executor")
	}
	g.point("schedule", g.d.Isolation.String())
	rtSig := g.l.RuntimeSignature()
	runtime := b.CreateFunctionRef(mir.RuntimeDeinitOnExecutor, g.l.FnType(rtSig))
	object := b.CreateInitExistentialRef(self, bt.AnyObject)
	workFn := b.CreateConvertFunction(work, rtSig.Params[1].Type)
	flags := b.CreateIntegerLiteral(bt.Word, 0)
	convs := make([]mir.Convention, len(rtSig.Params))
	for i, p := range rtSig.Params {
		convs[i] = p.Conv
	}
	b.CreateApply(runtime, convs, nil,
		[]mir.ValueID{object, workFn, exec, flags},
		bt.Unit, mir.OwnershipNone)
}

// withRemoteShortCircuit wraps local, the deallocation of a local
// instance, in a check for remote proxies of distributed actors. A proxy
// only ever initialized its identity and actor system, so only those are
// destroyed before its storage is freed. local must consume self.
func (g *gen) withRemoteShortCircuit(self mir.ValueID, isolated bool, local func()) {
	b := g.b
	if isolated || !g.cls.Distributed {
		local()
		b.CreateReturnUnit()
		return
	}
	g.point("remote-short-circuit", g.n.Name)

	remoteBB := b.NewBlock("remote")
	localBB := b.NewBlock("local")
	finishBB := b.NewBlock("finish")

	isRemote := b.CreateBuiltin(mir.BuiltinIsRemote, "", []mir.ValueID{self}, g.l.types.Builtins().Bool)
	b.CreateCondBranch(isRemote, remoteBB, localBB)

	b.SetInsertionPoint(remoteBB)
	borrowed := b.CreateBeginBorrow(self)
	for _, f := range g.n.Fields {
		if decl.IsRemoteProxyField(f) {
			g.destroyClassMember(borrowed, f)
		}
	}
	if g.n.RootDefaultActor {
		g.emitDestroyDefaultActor(borrowed)
	}
	b.CreateEndBorrow(borrowed)
	b.CreateDeallocRef(self)
	b.CreateBranch(finishBB)

	b.SetInsertionPoint(localBB)
	local()
	b.CreateBranch(finishBB)

	b.SetInsertionPoint(finishBB)
	b.CreateReturnUnit()
}
