package vm

import (
	"dtorgen/internal/decl"
	"dtorgen/internal/mir"
)

// NewObject allocates an instance of class with refcount one. Every stored
// field of the hierarchy starts uninitialized; remote marks a distributed
// actor proxy.
func (vm *VM) NewObject(class string, remote bool) (v Value, vmErr *VMError) {
	defer vm.guard(&vmErr)
	n, ok := vm.Prog.Lookup(class)
	if !ok || !n.IsClass() {
		vm.panicf(PanicTypeMismatch, "%s is not a class", class)
	}
	h, obj := vm.Heap.alloc(n)
	obj.Remote = remote
	return Value{Kind: VKRef, H: h}, nil
}

// SetField initializes the stored field named field, searching the class
// hierarchy from the most derived class. v is moved into the field.
func (vm *VM) SetField(obj Value, field string, v Value) (vmErr *VMError) {
	defer vm.guard(&vmErr)
	o := vm.Heap.Get(vm.expect(obj, VKRef).H)
	for c := o.Class; c != nil; c = superDecl(c) {
		if f, ok := c.Field(field); ok {
			cell, _ := o.Field(c, f.Index)
			if cell.Init {
				vm.panicf(PanicLeak, "%s initialized twice", describeCell(cell))
			}
			cell.V, cell.Init = v, true
			return nil
		}
	}
	vm.panicf(PanicTypeMismatch, "%s has no stored field %s", o.Class.Name, field)
	return nil
}

// Retain returns a new strong reference to the object v refers to.
func (vm *VM) Retain(v Value) (out Value, vmErr *VMError) {
	defer vm.guard(&vmErr)
	return vm.copy(v), nil
}

// Destroy consumes an owned value, releasing references and running the
// deinit of non-copyable values.
func (vm *VM) Destroy(v Value) (vmErr *VMError) {
	defer vm.guard(&vmErr)
	vm.destroy(v)
	return nil
}

// Deallocate frees the storage a destroyer returned, the way the runtime
// does after calling a destroyer directly. v must be the last reference.
func (vm *VM) Deallocate(v Value) (vmErr *VMError) {
	defer vm.guard(&vmErr)
	h := vm.expect(v, VKRef).H
	obj := vm.Heap.Get(h)
	if obj.RC != 1 {
		vm.panicf(PanicFreedWhileShared, "%s#%d deallocated with refcount %d", obj.Class.Name, h, obj.RC)
	}
	if obj.deallocating {
		vm.panicf(PanicDoubleFree, "%s#%d deallocated twice", obj.Class.Name, h)
	}
	obj.RC = 0
	obj.deallocating = true
	vm.dealloc(h)
	return nil
}

// Drain runs scheduled deallocations, each on the executor it was
// submitted to, until none remain.
func (vm *VM) Drain() (vmErr *VMError) {
	defer vm.guard(&vmErr)
	for len(vm.jobs) > 0 {
		j := vm.jobs[0]
		vm.jobs = vm.jobs[1:]
		prev := vm.executor
		vm.executor = j.exec
		vm.callNamed(j.work, []Value{j.obj})
		vm.executor = prev
	}
	return nil
}

// copy produces an additional owned reference to v.
func (vm *VM) copy(v Value) Value {
	switch v.Kind {
	case VKRef:
		vm.Heap.Get(v.H).RC++
	case VKEnum:
		if v.Payload != nil {
			inner := vm.copy(vm.read(v.Payload))
			v.Payload = &Cell{V: inner, Init: true}
		}
	case VKStruct:
		fields := make([]*Cell, len(v.Fields))
		for i, f := range v.Fields {
			fields[i] = &Cell{V: vm.copy(vm.read(f)), Init: true, class: f.class, field: f.field}
		}
		v.Fields = fields
	}
	return v
}

// destroy consumes the owned value v.
func (vm *VM) destroy(v Value) {
	switch v.Kind {
	case VKRef:
		vm.release(v.H)
	case VKEnum:
		if vm.runValueDeinit(v) {
			return
		}
		if v.Payload != nil && v.Payload.Init {
			inner := v.Payload.V
			v.Payload.Init = false
			vm.destroy(inner)
		}
	case VKStruct:
		if vm.runValueDeinit(v) {
			return
		}
		for _, f := range v.Fields {
			if f.Init {
				inner := f.V
				f.Init = false
				vm.destroy(inner)
			}
		}
	}
}

// runValueDeinit hands a non-copyable value to its deallocator. It reports
// false when the value has no deinit to run.
func (vm *VM) runValueDeinit(v Value) bool {
	if v.noDeinit || v.Type == "" {
		return false
	}
	n, ok := vm.Prog.Lookup(v.Type)
	if !ok || n.Copyable || n.IsClass() {
		return false
	}
	f, ok := vm.M.Lookup(mir.SymbolName(n.Name, mir.FuncDeallocator))
	if !ok {
		return false
	}
	if f.Sig.Params[0].Conv == mir.ConvIndirectIn {
		vm.call(f, []Value{{Kind: VKAddr, Addr: &Cell{V: v, Init: true}}})
		return true
	}
	vm.call(f, []Value{v})
	return true
}

// release drops one strong reference; the last one deallocates.
func (vm *VM) release(h Handle) {
	obj := vm.Heap.Get(h)
	if obj.RC <= 0 {
		vm.panicf(PanicOverRelease, "release of %s#%d at refcount %d", obj.Class.Name, h, obj.RC)
	}
	obj.RC--
	if obj.RC > 0 {
		return
	}
	if obj.deallocating {
		vm.panicf(PanicDoubleFree, "%s#%d deallocated twice", obj.Class.Name, h)
	}
	obj.deallocating = true

	self := Value{Kind: VKRef, H: h}
	kind := mir.FuncDeallocator
	if obj.Class.ForeignAllocated || obj.Class.ForeignRoot {
		kind = mir.FuncForeignDeallocator
	}
	vm.callNamed(mir.SymbolName(obj.Class.Name, kind), []Value{self})
}

// dealloc frees the storage of h.
func (vm *VM) dealloc(h Handle) {
	obj := vm.Heap.Get(h)
	vm.Heap.Free(h)
	vm.record(Event{Kind: EventDealloc, Object: h, Class: obj.Class.Name})
}

// runtimeCall serves symbols the runtime provides rather than lowering.
func (vm *VM) runtimeCall(name string, args []Value) Value {
	if name == mir.RuntimeDeinitOnExecutor {
		vm.schedule(args)
		return Unit()
	}
	if root, ok := vm.foreignRoot(name); ok {
		vm.rootDealloc(root, vm.expect(args[0], VKRef).H)
		return Unit()
	}
	vm.panicf(PanicUnknownFunction, "call to undefined function %s", name)
	return Unit()
}

func (vm *VM) foreignRoot(name string) (*decl.Nominal, bool) {
	for _, n := range vm.Prog.Nominals {
		if n.ForeignRoot && mir.SymbolName(n.Name, mir.FuncForeignDeallocator) == name {
			return n, true
		}
	}
	return nil, false
}

// rootDealloc is the foreign root class's dealloc: it runs the ivar
// destroyer of every class from the most derived one up, then frees.
func (vm *VM) rootDealloc(root *decl.Nominal, h Handle) {
	obj := vm.Heap.Get(h)
	self := Value{Kind: VKRef, H: h}
	for c := obj.Class; c != nil && c != root; c = superDecl(c) {
		if f, ok := vm.M.Lookup(mir.SymbolName(c.Name, mir.FuncIVarDestroyer)); ok {
			vm.call(f, []Value{self})
		}
	}
	vm.dealloc(h)
}

func (vm *VM) schedule(args []Value) {
	if len(args) != 4 {
		vm.panicf(PanicTypeMismatch, "%s takes 4 arguments, got %d", mir.RuntimeDeinitOnExecutor, len(args))
	}
	obj := vm.expect(args[0], VKRef)
	work := vm.expect(args[1], VKFunc)
	exec := vm.expect(args[2], VKExecutor)
	class := vm.Heap.Get(obj.H).Class.Name
	vm.jobs = append(vm.jobs, job{obj: obj, work: work.Str, exec: exec.Str})
	vm.record(Event{Kind: EventScheduled, Object: obj.H, Class: class, Name: work.Str, Executor: exec.Str})
}
