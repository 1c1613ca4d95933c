// Package vm interprets lowered destructor MIR against a model of the
// reference-counted object runtime. It exists to check what lowering
// promises: members destroyed exactly once, storage freed exactly once, no
// deinit run twice, and bounded stack depth when tearing down chains.
package vm

import (
	"fmt"

	"dtorgen/internal/decl"
	"dtorgen/internal/mir"
	"dtorgen/internal/trace"
	"dtorgen/internal/types"
)

// DefaultMaxDepth bounds nested calls before the VM reports an overflow.
const DefaultMaxDepth = 4096

// Options configures VM execution.
type Options struct {
	// MaxDepth bounds the call stack; zero selects DefaultMaxDepth.
	MaxDepth int
	// Tracer receives a point event per function entered.
	Tracer trace.Tracer
	// DiscardEvents turns the effect log off for long runs.
	DiscardEvents bool
}

// VM is a direct MIR interpreter for destructor entry points.
type VM struct {
	M     *mir.Module
	Prog  *decl.Program
	Types *types.Interner
	Heap  *Heap

	opts     Options
	stack    []*Frame
	maxDepth int
	events   []Event
	executor string
	jobs     []job
}

// Frame is one function activation.
type Frame struct {
	Func   *mir.Func
	BB     mir.BlockID
	Values []Value
}

type job struct {
	obj  Value
	work string
	exec string
}

// New creates a VM over the lowered module m of prog.
func New(m *mir.Module, prog *decl.Program, opts Options) *VM {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	if opts.Tracer == nil {
		opts.Tracer = trace.Nop
	}
	vm := &VM{M: m, Prog: prog, Types: prog.Types, opts: opts}
	vm.Heap = newHeap(vm)
	return vm
}

// Events returns the effect log in execution order.
func (vm *VM) Events() []Event { return vm.events }

// ResetEvents clears the effect log.
func (vm *VM) ResetEvents() { vm.events = nil }

// MaxDepth returns the deepest call stack observed so far.
func (vm *VM) MaxDepth() int { return vm.maxDepth }

// Executor returns the executor the VM is currently running on.
func (vm *VM) Executor() string { return vm.executor }

// SetExecutor switches the current executor.
func (vm *VM) SetExecutor(name string) { vm.executor = name }

// Pending returns the number of scheduled jobs not yet run.
func (vm *VM) Pending() int { return len(vm.jobs) }

// Call runs the function named name with args.
func (vm *VM) Call(name string, args ...Value) (result Value, vmErr *VMError) {
	defer vm.guard(&vmErr)
	return vm.callNamed(name, args), nil
}

func (vm *VM) callNamed(name string, args []Value) Value {
	f, ok := vm.M.Lookup(name)
	if !ok {
		return vm.runtimeCall(name, args)
	}
	return vm.call(f, args)
}

func (vm *VM) call(f *mir.Func, args []Value) Value {
	if len(args) != len(f.Params) {
		vm.panicf(PanicTypeMismatch, "%s takes %d arguments, got %d", f.Name, len(f.Params), len(args))
	}
	if len(vm.stack) >= vm.opts.MaxDepth {
		vm.panicf(PanicStackOverflow, "call depth exceeds %d entering %s", vm.opts.MaxDepth, f.Name)
	}
	fr := &Frame{Func: f, BB: f.Entry, Values: make([]Value, len(f.Values))}
	for i, p := range f.Params {
		fr.Values[p] = args[i]
	}
	vm.stack = append(vm.stack, fr)
	if d := len(vm.stack); d > vm.maxDepth {
		vm.maxDepth = d
	}
	vm.record(Event{Kind: EventEnter, Name: f.Name})
	trace.Point(vm.opts.Tracer, trace.ScopeStage, "vm.enter", f.Name, 0)

	result := vm.run(fr)
	vm.stack = vm.stack[:len(vm.stack)-1]
	return result
}

func (vm *VM) run(fr *Frame) Value {
	for {
		bb := fr.Func.Block(fr.BB)
		if bb == nil {
			vm.panicf(PanicUnimplemented, "%s: missing bb%d", fr.Func.Name, fr.BB)
		}
		for i := range bb.Instrs {
			vm.exec(fr, &bb.Instrs[i])
		}
		switch t := &bb.Term; t.Kind {
		case mir.TermReturn:
			if t.Return.Value == mir.NoValueID {
				return Unit()
			}
			return fr.Values[t.Return.Value]
		case mir.TermGoto:
			fr.BB = t.Goto.Target
		case mir.TermIf:
			if vm.expect(fr.Values[t.If.Cond], VKBool).Truthy() {
				fr.BB = t.If.Then
			} else {
				fr.BB = t.If.Else
			}
		case mir.TermSwitchTag:
			fr.BB = vm.switchTarget(fr, t)
		case mir.TermUnreachable:
			vm.panicf(PanicUnreachable, "%s: unreachable executed", fr.Func.Name)
		default:
			vm.panicf(PanicUnimplemented, "%s: terminator %d", fr.Func.Name, t.Kind)
		}
	}
}

func (vm *VM) switchTarget(fr *Frame, t *mir.Terminator) mir.BlockID {
	v := fr.Values[t.SwitchTag.Value]
	if v.Kind == VKAddr {
		v = vm.read(v.Addr)
	}
	v = vm.expect(v, VKEnum)
	for _, c := range t.SwitchTag.Cases {
		if c.Tag == v.Tag {
			return c.Target
		}
	}
	if t.SwitchTag.Default != mir.NoBlockID {
		return t.SwitchTag.Default
	}
	vm.panicf(PanicUnreachable, "%s: no case for tag %d", fr.Func.Name, v.Tag)
	return mir.NoBlockID
}

func (vm *VM) expect(v Value, kind ValueKind) Value {
	if v.Kind != kind {
		vm.panicf(PanicTypeMismatch, "expected %s, got %s", kind, v.Kind)
	}
	return v
}

func (vm *VM) addr(v Value) *Cell {
	return vm.expect(v, VKAddr).Addr
}

func (vm *VM) read(c *Cell) Value {
	if !c.Init {
		vm.panicf(PanicUseBeforeInit, "read of uninitialized %s", describeCell(c))
	}
	return c.V
}

func describeCell(c *Cell) string {
	if c.field == "" {
		return "stack slot"
	}
	if c.obj != 0 {
		return fmt.Sprintf("%s#%d.%s", c.class, c.obj, c.field)
	}
	return c.class + "." + c.field
}

// nominal resolves the declaration behind a static type.
func (vm *VM) nominal(ty types.TypeID) *decl.Nominal {
	n, ok := vm.Prog.NominalOf(ty)
	if !ok {
		vm.panicf(PanicTypeMismatch, "%s is not a declared type", vm.Types.String(ty))
	}
	return n
}

func (vm *VM) exec(fr *Frame, ins *mir.Instr) {
	ops := fr.Values
	arg := func(i int) Value { return ops[ins.Ops[i]] }
	set := func(v Value) { fr.Values[ins.Result] = v }

	switch ins.Kind {
	case mir.InstrFunctionRef, mir.InstrSuperMethod:
		set(Value{Kind: VKFunc, Str: ins.Callee})
	case mir.InstrApply:
		fn := vm.expect(arg(0), VKFunc)
		args := make([]Value, len(ins.Ops)-1)
		for i := range args {
			args[i] = arg(i + 1)
		}
		res := vm.callNamed(fn.Str, args)
		if ins.HasResult() {
			set(res)
		}
	case mir.InstrBuiltin:
		res := vm.builtin(fr, ins)
		if ins.HasResult() {
			set(res)
		}
	case mir.InstrIntegerLiteral:
		set(Int(ins.Int))
	case mir.InstrUpcast, mir.InstrUncheckedRefCast, mir.InstrUncheckedOwnershipConversion,
		mir.InstrBeginBorrow, mir.InstrInitExistentialRef, mir.InstrConvertFunction:
		set(arg(0))
	case mir.InstrLoadBorrow:
		set(vm.read(vm.addr(arg(0))))
	case mir.InstrEndBorrow, mir.InstrEndLifetime, mir.InstrEndAccess:
	case mir.InstrDeallocRef:
		vm.dealloc(vm.expect(arg(0), VKRef).H)
	case mir.InstrDestroyValue:
		vm.destroy(arg(0))
	case mir.InstrRefElementAddr:
		obj := vm.Heap.Get(vm.expect(arg(0), VKRef).H)
		class := vm.nominal(fr.Func.Values[ins.Ops[0]].Type)
		cell, ok := obj.Field(class, ins.Field)
		if !ok {
			vm.panicf(PanicTypeMismatch, "%s has no stored field %s.%s", obj.Class.Name, class.Name, ins.FieldName)
		}
		vm.record(Event{Kind: EventFieldAccess, Object: cell.obj, Class: class.Name, Field: cell.field})
		set(Value{Kind: VKAddr, Addr: cell})
	case mir.InstrStructElementAddr:
		agg := vm.expect(vm.read(vm.addr(arg(0))), VKStruct)
		if ins.Field >= len(agg.Fields) {
			vm.panicf(PanicTypeMismatch, "%s has no field %s", agg.Type, ins.FieldName)
		}
		set(Value{Kind: VKAddr, Addr: agg.Fields[ins.Field]})
	case mir.InstrBeginAccess, mir.InstrDropDeinit:
		v := arg(0)
		if ins.Kind == mir.InstrDropDeinit && v.Kind != VKAddr {
			v.noDeinit = true
		}
		set(v)
	case mir.InstrDestroyAddr:
		c := vm.addr(arg(0))
		v := vm.read(c)
		c.Init = false
		if c.obj != 0 {
			vm.record(Event{Kind: EventFieldDestroyed, Object: c.obj, Class: c.class, Field: c.field})
		}
		vm.destroy(v)
	case mir.InstrLoad:
		c := vm.addr(arg(0))
		v := vm.read(c)
		switch ins.Load {
		case mir.LoadTake:
			c.Init = false
		case mir.LoadCopy:
			v = vm.copy(v)
		}
		set(v)
	case mir.InstrStore:
		src, c := arg(0), vm.addr(arg(1))
		switch ins.Store {
		case mir.StoreAssign:
			old := vm.read(c)
			c.V = src
			vm.destroy(old)
		default:
			if c.Init && c.V.holdsResources() {
				vm.panicf(PanicLeak, "store [init] over initialized %s", describeCell(c))
			}
			c.V, c.Init = src, true
		}
	case mir.InstrAllocStack:
		set(Value{Kind: VKAddr, Addr: &Cell{}})
	case mir.InstrDeallocStack:
		if c := vm.addr(arg(0)); c.Init && c.V.holdsResources() {
			vm.panicf(PanicLeak, "stack slot released while holding %s", c.V)
		}
	case mir.InstrEnum:
		v := Value{Kind: VKEnum, Tag: ins.Tag}
		if len(ins.Ops) > 0 {
			v.Payload = &Cell{V: arg(0), Init: true}
		}
		set(v)
	case mir.InstrUncheckedEnumData:
		v := vm.expect(arg(0), VKEnum)
		if v.Tag != ins.Tag || v.Payload == nil {
			vm.panicf(PanicTypeMismatch, "expected case %s, got tag %d", ins.TagName, v.Tag)
		}
		set(vm.read(v.Payload))
	case mir.InstrUncheckedTakeEnumDataAddr:
		v := vm.expect(vm.read(vm.addr(arg(0))), VKEnum)
		if v.Tag != ins.Tag || v.Payload == nil {
			vm.panicf(PanicTypeMismatch, "expected case %s, got tag %d", ins.TagName, v.Tag)
		}
		set(Value{Kind: VKAddr, Addr: v.Payload})
	case mir.InstrIsUnique:
		set(Bool(vm.isUnique(vm.read(vm.addr(arg(0))))))
	default:
		vm.panicf(PanicUnimplemented, "%s: instruction %s", fr.Func.Name, ins.Kind)
	}
}

func (vm *VM) isUnique(v Value) bool {
	if v.Kind == VKEnum {
		if v.Payload == nil || !v.Payload.Init {
			return false
		}
		v = v.Payload.V
	}
	if v.Kind != VKRef {
		return false
	}
	return vm.Heap.Get(v.H).RC == 1
}

func (vm *VM) builtin(fr *Frame, ins *mir.Instr) Value {
	arg := func(i int) Value { return fr.Values[ins.Ops[i]] }
	switch ins.Builtin {
	case mir.BuiltinDestroyDefaultActor:
		obj := vm.Heap.Get(vm.expect(arg(0), VKRef).H)
		vm.record(Event{Kind: EventDefaultActorDestroyed, Object: arg(0).H, Class: obj.Class.Name})
	case mir.BuiltinResignIdentity:
		obj := vm.Heap.Get(vm.expect(arg(0), VKRef).H)
		vm.record(Event{Kind: EventIdentityResigned, Object: arg(0).H, Class: obj.Class.Name})
	case mir.BuiltinIsRemote:
		return Bool(vm.Heap.Get(vm.expect(arg(0), VKRef).H).Remote)
	case mir.BuiltinUnavailableCodeReached:
		vm.panicf(PanicUnavailable, "%s is unavailable", ins.Name)
	case mir.BuiltinPreconditionExecutor:
		want := vm.expect(arg(0), VKExecutor).Str
		if vm.executor != want {
			vm.panicf(PanicWrongExecutor, "%s expects executor %s, running on %q", fr.Func.Name, want, vm.executor)
		}
	case mir.BuiltinGlobalActorExecutor:
		return Value{Kind: VKExecutor, Str: ins.Name}
	case mir.BuiltinActorExecutor:
		return Value{Kind: VKExecutor, Str: ActorExecutorName(vm.expect(arg(0), VKRef).H)}
	case mir.BuiltinUserCall:
		vm.record(Event{Kind: EventUserCall, Name: ins.Name, Class: vm.typeName(fr.Func.Owner)})
	case mir.BuiltinFatal:
		vm.panicf(PanicTrap, "fatal error: %s", ins.Name)
	default:
		vm.panicf(PanicUnimplemented, "builtin %s", ins.Builtin)
	}
	return Unit()
}

func (vm *VM) typeName(ty types.TypeID) string {
	if n, ok := vm.Prog.NominalOf(ty); ok {
		return n.Name
	}
	return ""
}

// ActorExecutorName is the executor of the actor instance h.
func ActorExecutorName(h Handle) string {
	return fmt.Sprintf("actor#%d", h)
}
