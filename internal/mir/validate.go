package mir

import (
	"errors"
	"fmt"

	"dtorgen/internal/types"
)

// Validate runs ValidateFunc over every function of m and joins the
// failures, each prefixed with its function name.
func Validate(m *Module, typesIn *types.Interner) error {
	if m == nil {
		return nil
	}
	var errs []error
	for _, f := range m.Funcs {
		if err := ValidateFunc(f, typesIn); err != nil {
			errs = append(errs, fmt.Errorf("function %s: %w", f.Name, err))
		}
	}
	return errors.Join(errs...)
}

// funcCheck is one structural rule; every rule runs so a broken function
// reports all of its problems at once.
type funcCheck func(f *Func, typesIn *types.Interner) error

var funcChecks = []funcCheck{
	func(f *Func, _ *types.Interner) error { return validateBlocksTerminated(f) },
	func(f *Func, _ *types.Interner) error { return validateBlockTargets(f) },
	func(f *Func, _ *types.Interner) error { return validateValueIDs(f) },
	validateTypes,
	validateReturn,
	func(f *Func, _ *types.Interner) error { return validateOperandCategories(f) },
	func(f *Func, _ *types.Interner) error { return validateShapes(f) },
}

// ValidateFunc checks termination, block targets, operand definitions,
// value types, returns against the signature, address versus object
// operands, and switch and apply shapes.
func ValidateFunc(f *Func, typesIn *types.Interner) error {
	if f == nil {
		return nil
	}
	var errs []error
	for _, check := range funcChecks {
		if err := check(f, typesIn); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// validateBlocksTerminated checks that every block ends with a terminator.
func validateBlocksTerminated(f *Func) error {
	var errs []error
	for i := range f.Blocks {
		if f.Blocks[i].Term.Kind == TermNone {
			errs = append(errs, fmt.Errorf("bb%d: unterminated block", i))
		}
	}
	return errors.Join(errs...)
}

// validateBlockTargets checks that all terminator targets name real blocks.
func validateBlockTargets(f *Func) error {
	var errs []error
	if f.Block(f.Entry) == nil {
		errs = append(errs, fmt.Errorf("entry bb%d does not exist", f.Entry))
	}
	for i := range f.Blocks {
		for _, s := range f.Blocks[i].Term.Successors() {
			if f.Block(s) == nil {
				errs = append(errs, fmt.Errorf("bb%d: branch to missing bb%d", i, s))
			}
		}
	}
	return errors.Join(errs...)
}

func validateValueIDs(f *Func) error {
	var errs []error
	check := func(where string, id ValueID) {
		v := f.Value(id)
		if v == nil {
			errs = append(errs, fmt.Errorf("%s: unknown value %%%d", where, id))
			return
		}
		if v.Block == NoBlockID {
			errs = append(errs, fmt.Errorf("%s: %%%d is defined in a removed block", where, id))
		}
	}
	for i := range f.Blocks {
		bb := &f.Blocks[i]
		for j := range bb.Instrs {
			ins := &bb.Instrs[j]
			where := fmt.Sprintf("bb%d: %s", i, ins.Kind)
			for _, op := range ins.Ops {
				check(where, op)
			}
			if ins.HasResult() && f.Value(ins.Result) == nil {
				errs = append(errs, fmt.Errorf("%s: result %%%d not in value table", where, ins.Result))
			}
		}
		switch bb.Term.Kind {
		case TermReturn:
			if bb.Term.Return.Value != NoValueID {
				check(fmt.Sprintf("bb%d: return", i), bb.Term.Return.Value)
			}
		case TermIf:
			check(fmt.Sprintf("bb%d: cond_br", i), bb.Term.If.Cond)
		case TermSwitchTag:
			check(fmt.Sprintf("bb%d: switch", i), bb.Term.SwitchTag.Value)
		}
	}
	return errors.Join(errs...)
}

func validateTypes(f *Func, typesIn *types.Interner) error {
	if typesIn == nil {
		return nil
	}
	var errs []error
	for i := range f.Values {
		v := &f.Values[i]
		if v.Block == NoBlockID {
			continue
		}
		if v.Type == types.NoTypeID {
			errs = append(errs, fmt.Errorf("%%%d: missing type", v.ID))
			continue
		}
		if _, ok := typesIn.Lookup(v.Type); !ok {
			errs = append(errs, fmt.Errorf("%%%d: unknown type #%d", v.ID, v.Type))
		}
	}
	return errors.Join(errs...)
}

// validateReturn checks that every return matches the signature result.
func validateReturn(f *Func, typesIn *types.Interner) error {
	var errs []error
	unit := types.NoTypeID
	if typesIn != nil {
		unit = typesIn.Builtins().Unit
	}
	for i := range f.Blocks {
		term := &f.Blocks[i].Term
		if term.Kind != TermReturn {
			continue
		}
		if term.Return.Value == NoValueID {
			if f.Sig.Result != unit && f.Sig.Result != types.NoTypeID {
				errs = append(errs, fmt.Errorf("bb%d: return without value in function returning %s", i, typeStr(typesIn, f.Sig.Result)))
			}
			continue
		}
		v := f.Value(term.Return.Value)
		if v == nil {
			continue
		}
		if v.Type != f.Sig.Result {
			errs = append(errs, fmt.Errorf("bb%d: return type mismatch: have %s, want %s", i, typeStr(typesIn, v.Type), typeStr(typesIn, f.Sig.Result)))
		}
		if f.Sig.ResultOwn == OwnershipOwned && v.Own != OwnershipOwned {
			errs = append(errs, fmt.Errorf("bb%d: returning %s value as owned", i, v.Own))
		}
	}
	return errors.Join(errs...)
}

// addrOperands lists the operand positions that must be addresses.
func addrOperands(ins *Instr) []int {
	switch ins.Kind {
	case InstrStructElementAddr, InstrBeginAccess, InstrEndAccess, InstrDestroyAddr,
		InstrLoad, InstrLoadBorrow, InstrAllocStack, InstrDeallocStack,
		InstrUncheckedTakeEnumDataAddr, InstrIsUnique:
		if len(ins.Ops) == 0 {
			return nil
		}
		return []int{0}
	case InstrStore:
		return []int{1}
	default:
		return nil
	}
}

// objectOperands lists the operand positions that must be objects.
func objectOperands(ins *Instr) []int {
	switch ins.Kind {
	case InstrUpcast, InstrUncheckedRefCast, InstrUncheckedOwnershipConversion,
		InstrBeginBorrow, InstrEndBorrow, InstrEndLifetime, InstrDeallocRef,
		InstrDestroyValue, InstrRefElementAddr, InstrUncheckedEnumData,
		InstrInitExistentialRef, InstrConvertFunction, InstrSuperMethod:
		return []int{0}
	case InstrStore:
		return []int{0}
	default:
		return nil
	}
}

func operand(f *Func, ins *Instr, k int) *Value {
	if k >= len(ins.Ops) {
		return nil
	}
	return f.Value(ins.Ops[k])
}

func validateOperandCategories(f *Func) error {
	var errs []error
	for i := range f.Blocks {
		bb := &f.Blocks[i]
		for j := range bb.Instrs {
			ins := &bb.Instrs[j]
			for _, k := range addrOperands(ins) {
				if v := operand(f, ins, k); v != nil && !v.IsAddr() {
					errs = append(errs, fmt.Errorf("bb%d: %s: operand %%%d is not an address", i, ins.Kind, ins.Ops[k]))
				}
			}
			for _, k := range objectOperands(ins) {
				if v := operand(f, ins, k); v != nil && v.IsAddr() {
					errs = append(errs, fmt.Errorf("bb%d: %s: operand %%%d is an address", i, ins.Kind, ins.Ops[k]))
				}
			}
		}
	}
	return errors.Join(errs...)
}

func validateShapes(f *Func) error {
	var errs []error
	for i := range f.Blocks {
		bb := &f.Blocks[i]
		for j := range bb.Instrs {
			ins := &bb.Instrs[j]
			if ins.Kind == InstrApply && len(ins.Ops)-1 != len(ins.Convs) {
				errs = append(errs, fmt.Errorf("bb%d: apply has %d args and %d conventions", i, len(ins.Ops)-1, len(ins.Convs)))
			}
		}
		if bb.Term.Kind != TermSwitchTag {
			continue
		}
		seen := make(map[int]bool, len(bb.Term.SwitchTag.Cases))
		for _, c := range bb.Term.SwitchTag.Cases {
			if seen[c.Tag] {
				errs = append(errs, fmt.Errorf("bb%d: duplicate switch case %s", i, c.TagName))
			}
			seen[c.Tag] = true
		}
		if len(bb.Term.SwitchTag.Cases) == 0 && bb.Term.SwitchTag.Default == NoBlockID {
			errs = append(errs, fmt.Errorf("bb%d: switch without cases", i))
		}
	}
	return errors.Join(errs...)
}
