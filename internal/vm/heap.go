package vm

import (
	"fmt"

	"fortio.org/safecast"

	"dtorgen/internal/decl"
)

// Handle is a stable, monotonically increasing reference to a heap object.
// Handle(0) is always invalid.
type Handle uint32

// Object is a class instance. Stored fields are kept per class of the
// hierarchy, so a subclass field never aliases a superclass one.
type Object struct {
	Class   *decl.Nominal
	RC      int
	Alive   bool
	Remote  bool
	AllocID uint64

	// deallocating is set once the refcount reached zero.
	deallocating bool
	storage      map[*decl.Nominal][]*Cell
}

// Field returns the storage of a stored field declared by class.
func (o *Object) Field(class *decl.Nominal, index int) (*Cell, bool) {
	cells, ok := o.storage[class]
	if !ok || index < 0 || index >= len(cells) {
		return nil, false
	}
	return cells[index], true
}

// Heap stores all class instances for the VM.
// Handles are never reused within a run; freed objects stay behind so that
// stale references are caught.
type Heap struct {
	next        Handle
	nextAllocID uint64
	objs        map[Handle]*Object
	live        int

	vm *VM
}

func newHeap(vm *VM) *Heap {
	return &Heap{next: 1, nextAllocID: 1, objs: make(map[Handle]*Object, 128), vm: vm}
}

func (h *Heap) alloc(class *decl.Nominal) (Handle, *Object) {
	handle := h.next
	next, err := safecast.Conv[Handle](uint64(handle) + 1)
	if err != nil {
		h.vm.panicf(PanicHeapExhausted, "no handle left after %d: %v", handle, err)
	}
	h.next = next
	obj := &Object{
		Class:   class,
		RC:      1,
		Alive:   true,
		AllocID: h.nextAllocID,
		storage: make(map[*decl.Nominal][]*Cell),
	}
	h.nextAllocID++
	for c := class; c != nil; c = superDecl(c) {
		cells := make([]*Cell, len(c.Fields))
		for i, f := range c.Fields {
			cells[i] = &Cell{obj: handle, class: c.Name, field: f.Name}
		}
		obj.storage[c] = cells
	}
	h.objs[handle] = obj
	h.live++
	return handle, obj
}

// Get returns a live object.
func (h *Heap) Get(handle Handle) *Object {
	obj, ok := h.objs[handle]
	if !ok || obj == nil {
		h.vm.panicf(PanicInvalidHandle, "invalid handle %d", handle)
	}
	if !obj.Alive {
		h.vm.panicf(PanicUseAfterFree, "use after free: handle %d (alloc=%d)", handle, obj.AllocID)
	}
	return obj
}

// Free releases the storage of handle. Every stored member must have been
// destroyed and no references may remain.
func (h *Heap) Free(handle Handle) {
	obj, ok := h.objs[handle]
	if !ok || obj == nil {
		h.vm.panicf(PanicInvalidHandle, "invalid handle %d", handle)
	}
	if !obj.Alive {
		h.vm.panicf(PanicDoubleFree, "double free: handle %d (alloc=%d)", handle, obj.AllocID)
	}
	if obj.RC != 0 {
		h.vm.panicf(PanicFreedWhileShared, "%s#%d freed with refcount %d", obj.Class.Name, handle, obj.RC)
	}
	for c := obj.Class; c != nil; c = superDecl(c) {
		for _, cell := range obj.storage[c] {
			if cell.Init && cell.V.holdsResources() {
				h.vm.panic(PanicLeak, fmt.Sprintf("%s#%d freed while %s.%s is still initialized", obj.Class.Name, handle, c.Name, cell.field))
			}
		}
	}
	obj.Alive = false
	h.live--
}

// Live returns the number of objects not yet freed.
func (h *Heap) Live() int { return h.live }

func superDecl(c *decl.Nominal) *decl.Nominal {
	if c == nil || c.Superclass == nil {
		return nil
	}
	return c.Superclass.Decl
}
