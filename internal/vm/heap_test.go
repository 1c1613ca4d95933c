package vm

import (
	"math"
	"testing"

	"dtorgen/internal/decl"
	"dtorgen/internal/mir"
)

func TestHeapRefusesHandleOverflow(t *testing.T) {
	prog, err := decl.Parse([]byte(`
[[type]]
name = "Cell"
kind = "class"
`))
	if err != nil {
		t.Fatal(err)
	}
	machine := New(mir.NewModule(), prog, Options{})
	machine.Heap.next = math.MaxUint32

	last, vmErr := machine.NewObject("Cell", false)
	if vmErr == nil {
		t.Fatalf("allocating the last handle should fail, got %v", last)
	}
	if vmErr.Code != PanicHeapExhausted {
		t.Fatalf("got %s, want %s", vmErr.Code, PanicHeapExhausted)
	}
	if machine.Heap.Live() != 0 || machine.Heap.next != math.MaxUint32 {
		t.Fatalf("failed allocation changed the heap: live=%d next=%d", machine.Heap.Live(), machine.Heap.next)
	}

	machine.Heap.next = math.MaxUint32 - 1
	obj, vmErr := machine.NewObject("Cell", false)
	if vmErr != nil {
		t.Fatalf("NewObject: %s", vmErr.Format())
	}
	if obj.H != math.MaxUint32-1 {
		t.Fatalf("handle %d, want %d", obj.H, uint32(math.MaxUint32-1))
	}
}
