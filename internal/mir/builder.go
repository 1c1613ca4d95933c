package mir

import (
	"fmt"

	"fortio.org/safecast"

	"dtorgen/internal/types"
)

// Builder constructs one function. The insertion point is explicit: every
// Create* call appends to the current block, and terminators clear it.
type Builder struct {
	types *types.Interner
	fn    *Func
	cur   BlockID
}

// NewBuilder starts a function with an entry block holding the insertion
// point and one parameter per signature entry.
func NewBuilder(typesIn *types.Interner, name string, kind FuncKind, owner types.TypeID, sig Signature) *Builder {
	b := &Builder{
		types: typesIn,
		fn: &Func{
			ID:    NoFuncID,
			Name:  name,
			Kind:  kind,
			Owner: owner,
			Sig:   sig,
			Entry: NoBlockID,
		},
		cur: NoBlockID,
	}
	entry := b.NewBlock("entry")
	b.fn.Entry = entry
	b.cur = entry
	for _, p := range sig.Params {
		own := OwnershipNone
		flags := ValueFlagParam
		switch p.Conv {
		case ConvOwned:
			own = OwnershipOwned
		case ConvGuaranteed:
			own = OwnershipGuaranteed
		case ConvUnowned:
			own = OwnershipUnowned
		case ConvIndirectIn:
			flags |= ValueFlagAddr
		}
		v := b.newValue(p.Type, own, flags)
		b.fn.Params = append(b.fn.Params, v)
	}
	return b
}

// Types returns the interner the builder resolves types with.
func (b *Builder) Types() *types.Interner { return b.types }

// Func returns the function under construction.
func (b *Builder) Func() *Func { return b.fn }

// Param returns the i-th parameter value.
func (b *Builder) Param(i int) ValueID { return b.fn.Params[i] }

// Value returns the value record for id.
func (b *Builder) Value(id ValueID) *Value { return b.fn.Value(id) }

// SetAutoGenerated marks the function as having no user source location.
func (b *Builder) SetAutoGenerated() { b.fn.AutoGenerated = true }

// NewBlock creates a detached block; it does not move the insertion point.
func (b *Builder) NewBlock(label string) BlockID {
	id := blockIndex(len(b.fn.Blocks))
	b.fn.Blocks = append(b.fn.Blocks, Block{ID: id, Label: label})
	return id
}

// EmitBlock moves the insertion point to id, falling through from the
// current block when it is still open.
func (b *Builder) EmitBlock(id BlockID) {
	if b.HasInsertion() {
		b.CreateBranch(id)
	}
	b.SetInsertionPoint(id)
}

// SetInsertionPoint moves the insertion point to the end of id.
func (b *Builder) SetInsertionPoint(id BlockID) {
	bb := b.fn.Block(id)
	if bb == nil {
		panic(fmt.Sprintf("mir: no block bb%d", id))
	}
	if bb.Terminated() {
		panic(fmt.Sprintf("mir: bb%d is already terminated", id))
	}
	b.cur = id
}

// ClearInsertion leaves the builder with no insertion point.
func (b *Builder) ClearInsertion() { b.cur = NoBlockID }

// HasInsertion reports whether instructions can be appended.
func (b *Builder) HasInsertion() bool { return b.cur != NoBlockID }

// InsertionBlock returns the current block or NoBlockID.
func (b *Builder) InsertionBlock() BlockID { return b.cur }

func (b *Builder) newValue(ty types.TypeID, own Ownership, flags ValueFlags) ValueID {
	n, err := safecast.Conv[int32](len(b.fn.Values))
	if err != nil {
		panic(fmt.Errorf("value table overflow: %w", err))
	}
	id := ValueID(n)
	b.fn.Values = append(b.fn.Values, Value{ID: id, Type: ty, Own: own, Flags: flags, Block: b.cur})
	return id
}

func (b *Builder) block() *Block {
	if b.cur == NoBlockID {
		panic("mir: no insertion point")
	}
	return &b.fn.Blocks[b.cur]
}

func (b *Builder) emit(ins Instr) {
	bb := b.block()
	bb.Instrs = append(bb.Instrs, ins)
}

func (b *Builder) emitResult(ins Instr, ty types.TypeID, own Ownership, flags ValueFlags) ValueID {
	b.block()
	ins.Result = b.newValue(ty, own, flags)
	b.emit(ins)
	return ins.Result
}

func (b *Builder) emitVoid(ins Instr) {
	ins.Result = NoValueID
	b.emit(ins)
}

func (b *Builder) own(v ValueID) Ownership {
	return b.fn.Values[v].Own
}

func (b *Builder) addrFlag(v ValueID) ValueFlags {
	return b.fn.Values[v].Flags & ValueFlagAddr
}

// CreateFunctionRef references the function named callee.
func (b *Builder) CreateFunctionRef(callee string, fnType types.TypeID) ValueID {
	return b.emitResult(Instr{Kind: InstrFunctionRef, Callee: callee, Type: fnType}, fnType, OwnershipNone, 0)
}

// CreateSuperMethod looks up the foreign superclass method callee on self.
func (b *Builder) CreateSuperMethod(self ValueID, callee string, fnType types.TypeID) ValueID {
	return b.emitResult(Instr{Kind: InstrSuperMethod, Ops: []ValueID{self}, Callee: callee, Type: fnType}, fnType, OwnershipNone, 0)
}

// CreateApply calls fn with args passed under convs.
func (b *Builder) CreateApply(fn ValueID, convs []Convention, subst []types.TypeID, args []ValueID, result types.TypeID, resultOwn Ownership) ValueID {
	if len(convs) != len(args) {
		panic(fmt.Sprintf("mir: apply with %d args and %d conventions", len(args), len(convs)))
	}
	ops := make([]ValueID, 0, len(args)+1)
	ops = append(ops, fn)
	ops = append(ops, args...)
	ins := Instr{
		Kind:  InstrApply,
		Ops:   ops,
		Convs: append([]Convention(nil), convs...),
		Subst: subst,
		Type:  result,
	}
	return b.emitResult(ins, result, resultOwn, 0)
}

// CreateBuiltin invokes a builtin whose result has type result.
func (b *Builder) CreateBuiltin(kind BuiltinKind, name string, ops []ValueID, result types.TypeID) ValueID {
	ins := Instr{Kind: InstrBuiltin, Builtin: kind, Name: name, Ops: ops, Type: result}
	return b.emitResult(ins, result, OwnershipNone, 0)
}

func (b *Builder) CreateIntegerLiteral(ty types.TypeID, n int64) ValueID {
	return b.emitResult(Instr{Kind: InstrIntegerLiteral, Type: ty, Int: n}, ty, OwnershipNone, 0)
}

// CreateUpcast forwards v's ownership to a superclass-typed result.
func (b *Builder) CreateUpcast(v ValueID, ty types.TypeID) ValueID {
	return b.emitResult(Instr{Kind: InstrUpcast, Ops: []ValueID{v}, Type: ty}, ty, b.own(v), 0)
}

// CreateUncheckedRefCast forwards v's ownership to a result of type ty.
func (b *Builder) CreateUncheckedRefCast(v ValueID, ty types.TypeID) ValueID {
	return b.emitResult(Instr{Kind: InstrUncheckedRefCast, Ops: []ValueID{v}, Type: ty}, ty, b.own(v), 0)
}

func (b *Builder) CreateUncheckedOwnershipConversion(v ValueID, own Ownership) ValueID {
	ty := b.fn.Values[v].Type
	return b.emitResult(Instr{Kind: InstrUncheckedOwnershipConversion, Ops: []ValueID{v}, Own: own, Type: ty}, ty, own, 0)
}

func (b *Builder) CreateBeginBorrow(v ValueID) ValueID {
	ty := b.fn.Values[v].Type
	return b.emitResult(Instr{Kind: InstrBeginBorrow, Ops: []ValueID{v}, Type: ty}, ty, OwnershipGuaranteed, 0)
}

func (b *Builder) CreateLoadBorrow(addr ValueID) ValueID {
	ty := b.fn.Values[addr].Type
	return b.emitResult(Instr{Kind: InstrLoadBorrow, Ops: []ValueID{addr}, Type: ty}, ty, OwnershipGuaranteed, 0)
}

func (b *Builder) CreateEndBorrow(v ValueID) {
	b.emitVoid(Instr{Kind: InstrEndBorrow, Ops: []ValueID{v}})
}

func (b *Builder) CreateEndLifetime(v ValueID) {
	b.emitVoid(Instr{Kind: InstrEndLifetime, Ops: []ValueID{v}})
}

func (b *Builder) CreateDeallocRef(v ValueID) {
	b.emitVoid(Instr{Kind: InstrDeallocRef, Ops: []ValueID{v}})
}

func (b *Builder) CreateDestroyValue(v ValueID) {
	b.emitVoid(Instr{Kind: InstrDestroyValue, Ops: []ValueID{v}})
}

// CreateRefElementAddr projects stored field index of the object obj.
func (b *Builder) CreateRefElementAddr(obj ValueID, field int, name string, ty types.TypeID) ValueID {
	ins := Instr{Kind: InstrRefElementAddr, Ops: []ValueID{obj}, Field: field, FieldName: name, Type: ty}
	return b.emitResult(ins, ty, OwnershipNone, ValueFlagAddr)
}

func (b *Builder) CreateStructElementAddr(addr ValueID, field int, name string, ty types.TypeID) ValueID {
	ins := Instr{Kind: InstrStructElementAddr, Ops: []ValueID{addr}, Field: field, FieldName: name, Type: ty}
	return b.emitResult(ins, ty, OwnershipNone, ValueFlagAddr)
}

func (b *Builder) CreateBeginAccess(addr ValueID, kind AccessKind) ValueID {
	ty := b.fn.Values[addr].Type
	return b.emitResult(Instr{Kind: InstrBeginAccess, Ops: []ValueID{addr}, Access: kind, Type: ty}, ty, OwnershipNone, ValueFlagAddr)
}

func (b *Builder) CreateEndAccess(access ValueID) {
	b.emitVoid(Instr{Kind: InstrEndAccess, Ops: []ValueID{access}})
}

func (b *Builder) CreateDestroyAddr(addr ValueID) {
	b.emitVoid(Instr{Kind: InstrDestroyAddr, Ops: []ValueID{addr}})
}

// CreateLoad reads addr. Take and copy loads produce owned values.
func (b *Builder) CreateLoad(addr ValueID, qual LoadQual) ValueID {
	ty := b.fn.Values[addr].Type
	own := OwnershipOwned
	if qual == LoadTrivial {
		own = OwnershipNone
	}
	return b.emitResult(Instr{Kind: InstrLoad, Ops: []ValueID{addr}, Load: qual, Type: ty}, ty, own, 0)
}

// CreateStore writes src into dst.
func (b *Builder) CreateStore(src, dst ValueID, qual StoreQual) {
	b.emitVoid(Instr{Kind: InstrStore, Ops: []ValueID{src, dst}, Store: qual})
}

func (b *Builder) CreateAllocStack(ty types.TypeID) ValueID {
	return b.emitResult(Instr{Kind: InstrAllocStack, Type: ty}, ty, OwnershipNone, ValueFlagAddr)
}

func (b *Builder) CreateDeallocStack(slot ValueID) {
	b.emitVoid(Instr{Kind: InstrDeallocStack, Ops: []ValueID{slot}})
}

// CreateEnum builds case tag of ty. payload is NoValueID for cases without
// data; otherwise the payload's ownership moves into the result.
func (b *Builder) CreateEnum(ty types.TypeID, tag int, tagName string, payload ValueID) ValueID {
	ins := Instr{Kind: InstrEnum, Type: ty, Tag: tag, TagName: tagName}
	own := OwnershipNone
	if payload != NoValueID {
		ins.Ops = []ValueID{payload}
		own = b.own(payload)
	}
	return b.emitResult(ins, ty, own, 0)
}

// CreateOptionalNone builds the empty case of the optional type ty.
func (b *Builder) CreateOptionalNone(ty types.TypeID) ValueID {
	return b.CreateEnum(ty, types.OptionalNoneTag, "none", NoValueID)
}

func (b *Builder) CreateUncheckedEnumData(v ValueID, tag int, tagName string, ty types.TypeID) ValueID {
	ins := Instr{Kind: InstrUncheckedEnumData, Ops: []ValueID{v}, Tag: tag, TagName: tagName, Type: ty}
	return b.emitResult(ins, ty, b.own(v), 0)
}

func (b *Builder) CreateUncheckedTakeEnumDataAddr(addr ValueID, tag int, tagName string, ty types.TypeID) ValueID {
	ins := Instr{Kind: InstrUncheckedTakeEnumDataAddr, Ops: []ValueID{addr}, Tag: tag, TagName: tagName, Type: ty}
	return b.emitResult(ins, ty, OwnershipNone, ValueFlagAddr)
}

func (b *Builder) CreateIsUnique(addr ValueID) ValueID {
	bt := b.types.Builtins().Bool
	return b.emitResult(Instr{Kind: InstrIsUnique, Ops: []ValueID{addr}, Type: bt}, bt, OwnershipNone, 0)
}

func (b *Builder) CreateInitExistentialRef(v ValueID, ty types.TypeID) ValueID {
	return b.emitResult(Instr{Kind: InstrInitExistentialRef, Ops: []ValueID{v}, Type: ty}, ty, b.own(v), 0)
}

func (b *Builder) CreateConvertFunction(v ValueID, ty types.TypeID) ValueID {
	return b.emitResult(Instr{Kind: InstrConvertFunction, Ops: []ValueID{v}, Type: ty}, ty, OwnershipNone, 0)
}

// CreateDropDeinit forwards v (object or address) past its user deinit.
func (b *Builder) CreateDropDeinit(v ValueID) ValueID {
	ty := b.fn.Values[v].Type
	return b.emitResult(Instr{Kind: InstrDropDeinit, Ops: []ValueID{v}, Type: ty}, ty, b.own(v), b.addrFlag(v))
}

func (b *Builder) terminate(t Terminator) {
	b.block().Term = t
	b.cur = NoBlockID
}

func (b *Builder) CreateReturn(v ValueID) {
	b.terminate(Terminator{Kind: TermReturn, Return: ReturnTerm{Value: v}})
}

// CreateReturnUnit returns the empty tuple.
func (b *Builder) CreateReturnUnit() {
	b.CreateReturn(NoValueID)
}

func (b *Builder) CreateBranch(target BlockID) {
	b.terminate(Terminator{Kind: TermGoto, Goto: GotoTerm{Target: target}})
}

func (b *Builder) CreateCondBranch(cond ValueID, then, els BlockID) {
	b.terminate(Terminator{Kind: TermIf, If: IfTerm{Cond: cond, Then: then, Else: els}})
}

// CreateSwitchTag dispatches on the tag of v; def may be NoBlockID.
func (b *Builder) CreateSwitchTag(v ValueID, cases []SwitchTagCase, def BlockID) {
	b.terminate(Terminator{Kind: TermSwitchTag, SwitchTag: SwitchTagTerm{Value: v, Cases: cases, Default: def}})
}

func (b *Builder) CreateUnreachable() {
	b.terminate(Terminator{Kind: TermUnreachable})
}

// Finish drops blocks unreachable from the entry and returns the function.
// Every remaining block must be terminated.
func (b *Builder) Finish() *Func {
	f := b.fn
	compactBlocks(f, computeReachability(f))
	b.cur = NoBlockID
	return f
}
