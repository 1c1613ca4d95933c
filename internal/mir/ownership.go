package mir

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// VerifyOwnership checks that every owned value is consumed exactly once on
// every path, that borrow and access scopes are properly closed, and that
// stack slots are initialized before use and empty when released. Paths
// ending in unreachable are exempt from the exit checks.
func VerifyOwnership(f *Func) error {
	if f == nil || f.Block(f.Entry) == nil {
		return nil
	}
	v := &ownershipVerifier{f: f, roots: slotRoots(f)}
	return v.run()
}

// VerifyModuleOwnership runs VerifyOwnership over every function of m.
func VerifyModuleOwnership(m *Module) error {
	if m == nil {
		return nil
	}
	var errs []error
	for _, f := range m.Funcs {
		if err := VerifyOwnership(f); err != nil {
			errs = append(errs, fmt.Errorf("function %s: %w", f.Name, err))
		}
	}
	return errors.Join(errs...)
}

type slotState uint8

const (
	slotUninit slotState = iota
	slotInit
)

type ownState struct {
	live     map[ValueID]struct{}
	consumed map[ValueID]struct{}
	borrows  map[ValueID]struct{}
	accesses map[ValueID]struct{}
	slots    map[ValueID]slotState
}

func newOwnState() *ownState {
	return &ownState{
		live:     make(map[ValueID]struct{}),
		consumed: make(map[ValueID]struct{}),
		borrows:  make(map[ValueID]struct{}),
		accesses: make(map[ValueID]struct{}),
		slots:    make(map[ValueID]slotState),
	}
}

func (s *ownState) clone() *ownState {
	return &ownState{
		live:     maps.Clone(s.live),
		consumed: maps.Clone(s.consumed),
		borrows:  maps.Clone(s.borrows),
		accesses: maps.Clone(s.accesses),
		slots:    maps.Clone(s.slots),
	}
}

// sameAs compares the state that must agree at control-flow merges.
func (s *ownState) sameAs(o *ownState) bool {
	return maps.Equal(s.live, o.live) &&
		maps.Equal(s.borrows, o.borrows) &&
		maps.Equal(s.accesses, o.accesses) &&
		maps.Equal(s.slots, o.slots)
}

type ownershipVerifier struct {
	f     *Func
	roots map[ValueID]ValueID
	errs  []error
}

// slotRoots maps every address derived from an alloc_stack to that slot.
func slotRoots(f *Func) map[ValueID]ValueID {
	roots := make(map[ValueID]ValueID)
	for changed := true; changed; {
		changed = false
		for i := range f.Blocks {
			for j := range f.Blocks[i].Instrs {
				ins := &f.Blocks[i].Instrs[j]
				if !ins.HasResult() {
					continue
				}
				if _, done := roots[ins.Result]; done {
					continue
				}
				switch ins.Kind {
				case InstrAllocStack:
					roots[ins.Result] = ins.Result
					changed = true
				case InstrBeginAccess, InstrDropDeinit:
					if r, ok := roots[ins.Ops[0]]; ok {
						roots[ins.Result] = r
						changed = true
					}
				}
			}
		}
	}
	return roots
}

func (v *ownershipVerifier) errorf(bb BlockID, format string, args ...any) {
	v.errs = append(v.errs, fmt.Errorf("bb%d: %s", bb, fmt.Sprintf(format, args...)))
}

func (v *ownershipVerifier) run() error {
	entry := newOwnState()
	for _, p := range v.f.Params {
		if v.f.Values[p].Own == OwnershipOwned {
			entry.live[p] = struct{}{}
		}
	}

	in := make(map[BlockID]*ownState, len(v.f.Blocks))
	in[v.f.Entry] = entry
	mismatch := make(map[BlockID]bool)
	work := []BlockID{v.f.Entry}
	for len(work) > 0 {
		id := work[len(work)-1]
		work = work[:len(work)-1]
		st := in[id].clone()
		v.block(id, st)
		for _, succ := range v.f.Successors(id) {
			prev, seen := in[succ]
			if !seen {
				in[succ] = st.clone()
				work = append(work, succ)
				continue
			}
			if !prev.sameAs(st) && !mismatch[succ] {
				mismatch[succ] = true
				v.errorf(succ, "ownership state differs between predecessors: %s vs %s", describe(prev), describe(st))
			}
		}
	}
	return errors.Join(v.errs...)
}

func describe(s *ownState) string {
	var parts []string
	list := func(name string, m map[ValueID]struct{}) {
		if len(m) == 0 {
			return
		}
		ids := slices.Sorted(maps.Keys(m))
		strs := make([]string, len(ids))
		for i, id := range ids {
			strs[i] = fmt.Sprintf("%%%d", id)
		}
		parts = append(parts, name+"{"+strings.Join(strs, ",")+"}")
	}
	list("live", s.live)
	list("borrows", s.borrows)
	list("accesses", s.accesses)
	if len(s.slots) > 0 {
		ids := slices.Sorted(maps.Keys(s.slots))
		strs := make([]string, len(ids))
		for i, id := range ids {
			state := "uninit"
			if s.slots[id] == slotInit {
				state = "init"
			}
			strs[i] = fmt.Sprintf("%%%d:%s", id, state)
		}
		parts = append(parts, "slots{"+strings.Join(strs, ",")+"}")
	}
	if len(parts) == 0 {
		return "{}"
	}
	return strings.Join(parts, " ")
}

func (v *ownershipVerifier) owned(id ValueID) bool {
	val := v.f.Value(id)
	return val != nil && val.Own == OwnershipOwned
}

func (v *ownershipVerifier) use(bb BlockID, st *ownState, id ValueID, what string) {
	if _, gone := st.consumed[id]; gone {
		v.errorf(bb, "%s uses %%%d after it was consumed", what, id)
	}
}

func (v *ownershipVerifier) consume(bb BlockID, st *ownState, id ValueID, what string) {
	if !v.owned(id) {
		return
	}
	if _, ok := st.live[id]; !ok {
		if _, gone := st.consumed[id]; gone {
			v.errorf(bb, "%s consumes %%%d twice", what, id)
		} else {
			v.errorf(bb, "%s consumes %%%d which is not live", what, id)
		}
		return
	}
	delete(st.live, id)
	st.consumed[id] = struct{}{}
}

func (v *ownershipVerifier) define(st *ownState, id ValueID) {
	if v.owned(id) {
		st.live[id] = struct{}{}
	}
}

func (v *ownershipVerifier) slot(addr ValueID) (ValueID, bool) {
	r, ok := v.roots[addr]
	return r, ok
}

func (v *ownershipVerifier) block(id BlockID, st *ownState) {
	bb := v.f.Block(id)
	for i := range bb.Instrs {
		ins := &bb.Instrs[i]
		what := ins.Kind.String()
		for _, op := range ins.Ops {
			v.use(id, st, op, what)
		}
		v.instr(id, st, ins, what)
	}
	v.term(id, st, &bb.Term)
}

func (v *ownershipVerifier) instr(bb BlockID, st *ownState, ins *Instr, what string) {
	switch ins.Kind {
	case InstrUpcast, InstrUncheckedRefCast, InstrInitExistentialRef, InstrDropDeinit, InstrEnum:
		// Forwarding: an owned operand moves into the result.
		if len(ins.Ops) > 0 {
			v.consume(bb, st, ins.Ops[0], what)
		}
		v.define(st, ins.Result)
	case InstrUncheckedOwnershipConversion:
		if v.owned(ins.Ops[0]) && ins.Own != OwnershipOwned {
			v.consume(bb, st, ins.Ops[0], what)
		}
		if ins.Own == OwnershipGuaranteed && !v.owned(ins.Ops[0]) && v.f.Values[ins.Ops[0]].Own != OwnershipGuaranteed {
			st.borrows[ins.Result] = struct{}{}
		}
		v.define(st, ins.Result)
	case InstrApply:
		for k, conv := range ins.Convs {
			if conv == ConvOwned {
				v.consume(bb, st, ins.Ops[k+1], what)
			}
		}
		v.define(st, ins.Result)
	case InstrBeginBorrow:
		if _, ok := st.live[ins.Ops[0]]; !ok && v.owned(ins.Ops[0]) {
			v.errorf(bb, "begin_borrow of %%%d which is not live", ins.Ops[0])
		}
		st.borrows[ins.Result] = struct{}{}
	case InstrLoadBorrow:
		v.requireInit(bb, st, ins.Ops[0], what)
		st.borrows[ins.Result] = struct{}{}
	case InstrEndBorrow:
		if _, ok := st.borrows[ins.Ops[0]]; !ok {
			v.errorf(bb, "end_borrow of %%%d without an open borrow", ins.Ops[0])
		}
		delete(st.borrows, ins.Ops[0])
	case InstrEndLifetime, InstrDeallocRef, InstrDestroyValue:
		if !v.owned(ins.Ops[0]) && v.f.Values[ins.Ops[0]].Own != OwnershipNone {
			v.errorf(bb, "%s of non-owned %%%d", what, ins.Ops[0])
		}
		v.consume(bb, st, ins.Ops[0], what)
	case InstrBeginAccess:
		st.accesses[ins.Result] = struct{}{}
	case InstrEndAccess:
		if _, ok := st.accesses[ins.Ops[0]]; !ok {
			v.errorf(bb, "end_access of %%%d without an open access", ins.Ops[0])
		}
		delete(st.accesses, ins.Ops[0])
	case InstrLoad:
		v.requireInit(bb, st, ins.Ops[0], what)
		if ins.Load == LoadTake {
			v.setSlot(st, ins.Ops[0], slotUninit)
		}
		v.define(st, ins.Result)
	case InstrStore:
		v.consume(bb, st, ins.Ops[0], what)
		switch ins.Store {
		case StoreInit:
			if r, ok := v.slot(ins.Ops[1]); ok && st.slots[r] == slotInit {
				v.errorf(bb, "store [init] into initialized slot %%%d", r)
			}
		case StoreAssign:
			v.requireInit(bb, st, ins.Ops[1], what)
		}
		v.setSlot(st, ins.Ops[1], slotInit)
	case InstrDestroyAddr:
		v.requireInit(bb, st, ins.Ops[0], what)
		v.setSlot(st, ins.Ops[0], slotUninit)
	case InstrIsUnique, InstrUncheckedTakeEnumDataAddr:
		v.requireInit(bb, st, ins.Ops[0], what)
	case InstrAllocStack:
		st.slots[ins.Result] = slotUninit
	case InstrDeallocStack:
		state, ok := st.slots[ins.Ops[0]]
		switch {
		case !ok:
			v.errorf(bb, "dealloc_stack of %%%d which is not allocated", ins.Ops[0])
		case state == slotInit:
			v.errorf(bb, "dealloc_stack of initialized slot %%%d", ins.Ops[0])
		}
		delete(st.slots, ins.Ops[0])
	default:
		v.define(st, ins.Result)
	}
}

func (v *ownershipVerifier) requireInit(bb BlockID, st *ownState, addr ValueID, what string) {
	r, ok := v.slot(addr)
	if !ok {
		return
	}
	if state, alloc := st.slots[r]; !alloc || state != slotInit {
		v.errorf(bb, "%s reads uninitialized slot %%%d", what, r)
	}
}

func (v *ownershipVerifier) setSlot(st *ownState, addr ValueID, state slotState) {
	if r, ok := v.slot(addr); ok {
		if _, alloc := st.slots[r]; alloc {
			st.slots[r] = state
		}
	}
}

func (v *ownershipVerifier) term(bb BlockID, st *ownState, t *Terminator) {
	switch t.Kind {
	case TermIf:
		v.use(bb, st, t.If.Cond, "cond_br")
	case TermSwitchTag:
		v.use(bb, st, t.SwitchTag.Value, "switch")
		if _, ok := v.slot(t.SwitchTag.Value); ok {
			v.requireInit(bb, st, t.SwitchTag.Value, "switch")
		}
	case TermReturn:
		if t.Return.Value != NoValueID {
			v.use(bb, st, t.Return.Value, "return")
			v.consume(bb, st, t.Return.Value, "return")
		}
		if len(st.live) > 0 || len(st.borrows) > 0 || len(st.accesses) > 0 || len(st.slots) > 0 {
			v.errorf(bb, "unbalanced state at return: %s", describe(st))
		}
	}
}
