package mir

import (
	"fmt"

	"dtorgen/internal/types"
)

// FuncKind identifies which destructor entry point a function implements.
type FuncKind uint8

const (
	// FuncDestroyer runs user code and member destruction and returns the
	// object for deallocation.
	FuncDestroyer FuncKind = iota + 1
	// FuncDeallocator destroys then frees the object (or schedules that on
	// an executor for isolated deinits).
	FuncDeallocator
	// FuncIsolatedDeallocator is the deallocating body run on the executor.
	FuncIsolatedDeallocator
	// FuncIVarDestroyer destroys only the stored members.
	FuncIVarDestroyer
	// FuncForeignDeallocator is the dealloc entry point used by the foreign
	// object runtime.
	FuncForeignDeallocator
	// FuncRuntime is an external runtime entry point; it has no body.
	FuncRuntime
)

func (k FuncKind) String() string {
	switch k {
	case FuncDestroyer:
		return "destroyer"
	case FuncDeallocator:
		return "deallocator"
	case FuncIsolatedDeallocator:
		return "isolated_deallocator"
	case FuncIVarDestroyer:
		return "ivar_destroyer"
	case FuncForeignDeallocator:
		return "foreign_deallocator"
	case FuncRuntime:
		return "runtime"
	default:
		return fmt.Sprintf("FuncKind(%d)", k)
	}
}

// SymbolName is the function name for a type's destructor entry point.
func SymbolName(typeName string, kind FuncKind) string {
	return typeName + ".deinit!" + kind.String()
}

// Convention describes how an argument is passed.
type Convention uint8

const (
	ConvGuaranteed Convention = iota
	ConvOwned
	ConvUnowned
	// ConvIndirectIn passes an address whose contents the callee consumes.
	ConvIndirectIn
	ConvTrivial
)

func (c Convention) String() string {
	switch c {
	case ConvGuaranteed:
		return "@guaranteed"
	case ConvOwned:
		return "@owned"
	case ConvUnowned:
		return "@unowned"
	case ConvIndirectIn:
		return "@in"
	case ConvTrivial:
		return "@trivial"
	default:
		return "@?"
	}
}

// Param is one formal parameter of a signature.
type Param struct {
	Type types.TypeID
	Conv Convention
}

// Signature is a lowered function type.
type Signature struct {
	Params    []Param
	Result    types.TypeID
	ResultOwn Ownership
}

// Func is a lowered function body.
type Func struct {
	ID    FuncID
	Name  string
	Kind  FuncKind
	Owner types.TypeID
	Sig   Signature

	// AutoGenerated marks bodies with no user-written source location.
	AutoGenerated bool

	Params []ValueID
	Values []Value
	Blocks []Block
	Entry  BlockID
}

// Value returns the value with the given id or nil.
func (f *Func) Value(id ValueID) *Value {
	if f == nil || id < 0 || int(id) >= len(f.Values) {
		return nil
	}
	return &f.Values[id]
}

// Block returns the block with the given id or nil.
func (f *Func) Block(id BlockID) *Block {
	if f == nil || id < 0 || int(id) >= len(f.Blocks) {
		return nil
	}
	return &f.Blocks[id]
}

// Successors lists the blocks a block's terminator can transfer to.
func (f *Func) Successors(id BlockID) []BlockID {
	bb := f.Block(id)
	if bb == nil {
		return nil
	}
	return bb.Term.Successors()
}

// Predecessors counts the terminators that target id.
func (f *Func) Predecessors(id BlockID) int {
	n := 0
	for i := range f.Blocks {
		for _, s := range f.Blocks[i].Term.Successors() {
			if s == id {
				n++
			}
		}
	}
	return n
}

// CountInstrs counts instructions of the given kind across the function.
func (f *Func) CountInstrs(kind InstrKind) int {
	n := 0
	for i := range f.Blocks {
		for j := range f.Blocks[i].Instrs {
			if f.Blocks[i].Instrs[j].Kind == kind {
				n++
			}
		}
	}
	return n
}
