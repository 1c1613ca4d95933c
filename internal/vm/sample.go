package vm

import (
	"slices"

	"dtorgen/internal/decl"
	"dtorgen/internal/types"
)

// maxSampleDepth bounds nested allocation when populating fields whose
// types form a non-optional cycle.
const maxSampleDepth = 8

// Populate initializes every stored field of obj's hierarchy with a sample
// value of its declared type, except the fields named in skip.
func (vm *VM) Populate(obj Value, skip ...string) (vmErr *VMError) {
	defer vm.guard(&vmErr)
	vm.populate(obj, skip, 0)
	return nil
}

// SampleValue builds an owned sample value of the named struct or enum.
func (vm *VM) SampleValue(name string) (v Value, vmErr *VMError) {
	defer vm.guard(&vmErr)
	n, ok := vm.Prog.Lookup(name)
	if !ok || n.IsClass() {
		vm.panicf(PanicTypeMismatch, "%s is not a value type", name)
	}
	return vm.sample(n.Type, name, 0), nil
}

func (vm *VM) populate(obj Value, skip []string, depth int) {
	o := vm.Heap.Get(vm.expect(obj, VKRef).H)
	for c := o.Class; c != nil; c = superDecl(c) {
		for _, f := range c.Fields {
			if slices.Contains(skip, f.Name) {
				continue
			}
			cell, _ := o.Field(c, f.Index)
			if cell.Init {
				continue
			}
			cell.V, cell.Init = vm.sample(f.Type, f.Name, depth), true
		}
	}
}

func (vm *VM) sample(ty types.TypeID, label string, depth int) Value {
	if depth > maxSampleDepth {
		vm.panicf(PanicStackOverflow, "sample value for %s nests deeper than %d", vm.Types.String(ty), maxSampleDepth)
	}
	t, ok := vm.Types.Lookup(ty)
	if !ok {
		vm.panicf(PanicTypeMismatch, "unknown type %d", ty)
	}
	switch t.Kind {
	case types.KindUnit:
		return Unit()
	case types.KindBool:
		return Bool(false)
	case types.KindInt, types.KindWord:
		return Int(0)
	case types.KindOptional:
		return None()
	case types.KindClass:
		n := vm.nominal(ty)
		h, _ := vm.Heap.alloc(n)
		obj := Value{Kind: VKRef, H: h}
		vm.populate(obj, nil, depth+1)
		return obj
	case types.KindStruct:
		n := vm.nominal(ty)
		fields := make([]Value, len(n.Fields))
		for i, f := range n.Fields {
			fields[i] = vm.sample(vm.fieldType(ty, f), f.Name, depth+1)
		}
		return Struct(vm.valueTypeName(n), fields...)
	case types.KindEnum:
		n := vm.nominal(ty)
		if len(n.Cases) == 0 {
			vm.panicf(PanicTypeMismatch, "%s has no cases", n.Name)
		}
		c := n.Cases[0]
		if !c.HasPayload() {
			return Case(vm.valueTypeName(n), c.Index, nil)
		}
		payload := vm.sample(vm.Types.Subst(c.Payload, vm.Types.Args(ty)), c.Name, depth+1)
		return Case(vm.valueTypeName(n), c.Index, &payload)
	default:
		// strings, generic parameters and erased objects all own a resource
		return Str(label)
	}
}

func (vm *VM) fieldType(owner types.TypeID, f *decl.Field) types.TypeID {
	if args := vm.Types.Args(owner); len(args) > 0 {
		return vm.Types.Subst(f.Type, args)
	}
	return f.Type
}

// valueTypeName tags non-copyable values so destroying them runs their
// deinit; copyable values stay untagged.
func (vm *VM) valueTypeName(n *decl.Nominal) string {
	if n.Copyable {
		return ""
	}
	return n.Name
}
