package dtor_test

import (
	"context"
	"slices"
	"testing"

	"dtorgen/internal/decl"
	"dtorgen/internal/dtor"
	"dtorgen/internal/mir"
)

// lowerSource parses src, lowers every destructor and checks the result is
// structurally valid and ownership-balanced.
func lowerSource(t *testing.T, src string) (*decl.Program, *mir.Module) {
	t.Helper()
	prog, err := decl.Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	m, err := dtor.New(prog, dtor.Options{}).LowerProgram(context.Background())
	if err != nil {
		t.Fatalf("LowerProgram: %v", err)
	}
	if err := mir.Validate(m, prog.Types); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if err := mir.VerifyModuleOwnership(m); err != nil {
		t.Fatalf("VerifyModuleOwnership: %v", err)
	}
	return prog, m
}

func mustFunc(t *testing.T, m *mir.Module, name string) *mir.Func {
	t.Helper()
	f, ok := m.Lookup(name)
	if !ok {
		names := make([]string, 0, len(m.Funcs))
		for _, fn := range m.Funcs {
			names = append(names, fn.Name)
		}
		t.Fatalf("function %s not emitted; have %v", name, names)
	}
	return f
}

func instrs(f *mir.Func, kind mir.InstrKind) []*mir.Instr {
	var out []*mir.Instr
	for i := range f.Blocks {
		for j := range f.Blocks[i].Instrs {
			if ins := &f.Blocks[i].Instrs[j]; ins.Kind == kind {
				out = append(out, ins)
			}
		}
	}
	return out
}

func builtins(f *mir.Func, kind mir.BuiltinKind) int {
	n := 0
	for _, ins := range instrs(f, mir.InstrBuiltin) {
		if ins.Builtin == kind {
			n++
		}
	}
	return n
}

func blockLabeled(t *testing.T, f *mir.Func, label string) *mir.Block {
	t.Helper()
	for i := range f.Blocks {
		if f.Blocks[i].Label == label {
			return &f.Blocks[i]
		}
	}
	t.Fatalf("%s: no block labeled %q", f.Name, label)
	return nil
}

func countReturns(f *mir.Func) int {
	n := 0
	for i := range f.Blocks {
		if f.Blocks[i].Term.Kind == mir.TermReturn {
			n++
		}
	}
	return n
}

func TestLowerEmitsFormsPerCategory(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []string
	}{
		{
			name: "native class",
			src: `
[[type]]
name = "Box"
kind = "class"
  [[type.field]]
  name = "value"
  type = "String"
`,
			want: []string{"Box.deinit!destroyer", "Box.deinit!deallocator"},
		},
		{
			name: "isolated deinit",
			src: `
[[type]]
name = "Model"
kind = "class"
  [type.deinit]
  isolation = "global:MainActor"
  isolated = true
`,
			want: []string{"Model.deinit!destroyer", "Model.deinit!deallocator", "Model.deinit!isolated_deallocator"},
		},
		{
			name: "foreign class with storage",
			src: `
[[type]]
name = "NSObject"
kind = "class"
foreign_root = true

[[type]]
name = "View"
kind = "class"
superclass = "NSObject"
foreign_allocated = true
  [[type.field]]
  name = "title"
  type = "String"
`,
			want: []string{"View.deinit!ivar_destroyer", "View.deinit!foreign_deallocator"},
		},
		{
			name: "foreign class without storage",
			src: `
[[type]]
name = "NSObject"
kind = "class"
foreign_root = true

[[type]]
name = "Marker"
kind = "class"
superclass = "NSObject"
foreign_allocated = true
  [[type.field]]
  name = "count"
  type = "Int"
`,
			want: []string{"Marker.deinit!foreign_deallocator"},
		},
		{
			name: "move-only struct",
			src: `
[[type]]
name = "Handle"
kind = "struct"
copyable = false
  [[type.field]]
  name = "path"
  type = "String"
`,
			want: []string{"Handle.deinit!deallocator"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, m := lowerSource(t, tc.src)
			var got []string
			for _, f := range m.Funcs {
				got = append(got, f.Name)
			}
			if !slices.Equal(got, tc.want) {
				t.Fatalf("emitted %v, want %v", got, tc.want)
			}
		})
	}
}

func TestDestroyerDestroysNonTrivialFields(t *testing.T) {
	_, m := lowerSource(t, `
[[type]]
name = "Box"
kind = "class"
  [[type.field]]
  name = "count"
  type = "Int"
  [[type.field]]
  name = "label"
  type = "String"
  [[type.field]]
  name = "other"
  type = "Box?"
  [[type.field]]
  name = "again"
  type = "Box?"
  [type.deinit]
  body = ["call log"]
`)
	f := mustFunc(t, m, "Box.deinit!destroyer")
	if f.AutoGenerated {
		t.Errorf("explicit destroyer marked auto-generated")
	}
	var fields []string
	for _, ins := range instrs(f, mir.InstrRefElementAddr) {
		fields = append(fields, ins.FieldName)
	}
	// two Optional<Self> fields disable the chain loop; both are plain members
	if want := []string{"label", "other", "again"}; !slices.Equal(fields, want) {
		t.Errorf("destroyed fields %v, want %v", fields, want)
	}
	if n := len(instrs(f, mir.InstrAllocStack)); n != 0 {
		t.Errorf("expected no chain slot, got %d alloc_stack", n)
	}
	for _, ins := range instrs(f, mir.InstrBeginAccess) {
		if ins.Access != mir.AccessDeinit {
			t.Errorf("member access should be [deinit], got %s", ins.Access)
		}
	}
	if builtins(f, mir.BuiltinUserCall) != 1 {
		t.Errorf("user body not lowered")
	}
	if f.Sig.Params[0].Conv != mir.ConvGuaranteed || f.Sig.ResultOwn != mir.OwnershipOwned {
		t.Errorf("destroyer signature %+v", f.Sig)
	}

	dealloc := mustFunc(t, m, "Box.deinit!deallocator")
	if !dealloc.AutoGenerated {
		t.Errorf("deallocator should be auto-generated")
	}
	refs := instrs(dealloc, mir.InstrFunctionRef)
	if len(refs) != 1 || refs[0].Callee != "Box.deinit!destroyer" {
		t.Fatalf("deallocator should call the destroyer, got %+v", refs)
	}
	if len(instrs(dealloc, mir.InstrDeallocRef)) != 1 || len(instrs(dealloc, mir.InstrEndLifetime)) != 1 {
		t.Errorf("deallocator should end self's lifetime and free the storage once")
	}
}

func TestRecursiveLinkBecomesLoop(t *testing.T) {
	_, m := lowerSource(t, `
[[type]]
name = "Node"
kind = "class"
generics = ["T"]
  [[type.field]]
  name = "value"
  type = "T"
  [[type.field]]
  name = "next"
  type = "Node<T>?"
`)
	f := mustFunc(t, m, "Node.deinit!destroyer")
	if !f.AutoGenerated {
		t.Errorf("implicit destroyer should be auto-generated")
	}
	if n := len(instrs(f, mir.InstrAllocStack)); n != 1 {
		t.Fatalf("expected one chain slot, got %d", n)
	}
	if n := len(instrs(f, mir.InstrIsUnique)); n != 1 {
		t.Errorf("expected one uniqueness check, got %d", n)
	}
	if n := len(instrs(f, mir.InstrApply)); n != 0 {
		t.Errorf("chain destruction must not call anything, got %d applies", n)
	}
	loop := blockLabeled(t, f, "chain.loop")
	if loop.Term.Kind != mir.TermSwitchTag || len(loop.Term.SwitchTag.Cases) != 2 {
		t.Errorf("loop header should switch on the slot, got %+v", loop.Term)
	}
	unique := blockLabeled(t, f, "chain.unique")
	if unique.Term.Kind != mir.TermGoto || unique.Term.Goto.Target != loop.ID {
		t.Errorf("unique path should branch back to the loop")
	}
	var stores []mir.StoreQual
	for _, ins := range instrs(f, mir.InstrStore) {
		stores = append(stores, ins.Store)
	}
	if want := []mir.StoreQual{mir.StoreInit, mir.StoreInit, mir.StoreAssign}; !slices.Equal(stores, want) {
		t.Errorf("stores %v, want %v", stores, want)
	}
	// value is destroyed in place before the chain is detached
	first := instrs(f, mir.InstrRefElementAddr)[0]
	if first.FieldName != "value" {
		t.Errorf("first member destroyed is %s, want value", first.FieldName)
	}

	dealloc := mustFunc(t, m, "Node.deinit!deallocator")
	apply := instrs(dealloc, mir.InstrApply)[0]
	if len(apply.Subst) != 1 {
		t.Errorf("generic deallocator should forward its parameters, got %v", apply.Subst)
	}
}

func TestSuperclassChaining(t *testing.T) {
	prog, m := lowerSource(t, `
[[type]]
name = "Base"
kind = "class"
generics = ["U"]
  [[type.field]]
  name = "payload"
  type = "U"

[[type]]
name = "Derived"
kind = "class"
generics = ["T"]
superclass = "Base<T>"
  [[type.field]]
  name = "tag"
  type = "String"

[[type]]
name = "Concrete"
kind = "class"
superclass = "Base<Int>"
  [[type.field]]
  name = "name"
  type = "String"
`)
	tests := []struct {
		fn        string
		wantSubst int
	}{
		{fn: "Derived.deinit!destroyer", wantSubst: 1},
		{fn: "Concrete.deinit!destroyer", wantSubst: 0},
	}
	for _, tc := range tests {
		t.Run(tc.fn, func(t *testing.T) {
			f := mustFunc(t, m, tc.fn)
			refs := instrs(f, mir.InstrFunctionRef)
			if len(refs) != 1 || refs[0].Callee != "Base.deinit!destroyer" {
				t.Fatalf("expected a call to the base destroyer, got %+v", refs)
			}
			apply := instrs(f, mir.InstrApply)[0]
			if len(apply.Subst) != tc.wantSubst {
				t.Errorf("substitutions: got %d, want %d", len(apply.Subst), tc.wantSubst)
			}
			if apply.Convs[0] != mir.ConvGuaranteed {
				t.Errorf("base destroyer takes self guaranteed, got %s", apply.Convs[0])
			}
			if len(instrs(f, mir.InstrUpcast)) != 1 {
				t.Errorf("self should be upcast once")
			}
			// the subclass's own field is destroyed through the base's result
			if len(instrs(f, mir.InstrBeginBorrow)) != 1 || len(instrs(f, mir.InstrEndBorrow)) != 1 {
				t.Errorf("member destruction should borrow the base result")
			}
		})
	}
	concrete, _ := prog.Lookup("Concrete")
	if concrete.Superclass == nil {
		t.Fatalf("Concrete lost its superclass")
	}
}

func TestDistributedActorShortCircuitsRemoteProxies(t *testing.T) {
	_, m := lowerSource(t, `
[[type]]
name = "Greeter"
kind = "actor"
distributed = true
root_default_actor = true
  [[type.field]]
  name = "id"
  type = "String"
  [[type.field]]
  name = "actorSystem"
  type = "String"
  [[type.field]]
  name = "greeting"
  type = "String"
  isolated = true
  [[type.field]]
  name = "history"
  type = "String"
  isolated = true
`)
	destroyer := mustFunc(t, m, "Greeter.deinit!destroyer")
	if builtins(destroyer, mir.BuiltinResignIdentity) != 1 {
		t.Errorf("destroyer should resign the actor identity")
	}
	if builtins(destroyer, mir.BuiltinDestroyDefaultActor) != 1 {
		t.Errorf("destroyer should destroy default-actor state")
	}
	if n := len(instrs(destroyer, mir.InstrRefElementAddr)); n != 4 {
		t.Errorf("local destruction should touch all 4 fields, got %d", n)
	}

	dealloc := mustFunc(t, m, "Greeter.deinit!deallocator")
	if builtins(dealloc, mir.BuiltinIsRemote) != 1 {
		t.Fatalf("deallocator should test for a remote proxy")
	}
	remote := blockLabeled(t, dealloc, "remote")
	var fields []string
	for _, ins := range remote.Instrs {
		if ins.Kind == mir.InstrRefElementAddr {
			fields = append(fields, ins.FieldName)
		}
	}
	if want := []string{"id", "actorSystem"}; !slices.Equal(fields, want) {
		t.Errorf("remote proxy destroys %v, want %v", fields, want)
	}
	if countReturns(dealloc) != 1 {
		t.Errorf("both paths should merge into a single return")
	}
	if n := len(instrs(dealloc, mir.InstrDeallocRef)); n != 2 {
		t.Errorf("each path frees the storage once, got %d dealloc_ref", n)
	}
}

func TestIsolatedDeinitSchedulesOnExecutor(t *testing.T) {
	_, m := lowerSource(t, `
[[type]]
name = "Account"
kind = "actor"
distributed = true
root_default_actor = true
  [[type.field]]
  name = "id"
  type = "String"
  [[type.field]]
  name = "balance"
  type = "String"
  isolated = true
  [type.deinit]
  isolation = "instance"
  isolated = true
  body = ["call flush"]
`)
	dealloc := mustFunc(t, m, "Account.deinit!deallocator")
	var callees []string
	for _, ins := range instrs(dealloc, mir.InstrFunctionRef) {
		callees = append(callees, ins.Callee)
	}
	if want := []string{"Account.deinit!isolated_deallocator", mir.RuntimeDeinitOnExecutor}; !slices.Equal(callees, want) {
		t.Fatalf("scheduling deallocator references %v, want %v", callees, want)
	}
	if builtins(dealloc, mir.BuiltinIsRemote) != 1 {
		t.Errorf("scheduling deallocator of a distributed actor checks for proxies")
	}
	if len(instrs(dealloc, mir.InstrInitExistentialRef)) != 1 || len(instrs(dealloc, mir.InstrConvertFunction)) != 1 {
		t.Errorf("self and the work function should be erased for the runtime")
	}
	if builtins(dealloc, mir.BuiltinActorExecutor) != 1 {
		t.Errorf("instance isolation should ask for the actor's executor")
	}

	isolated := mustFunc(t, m, "Account.deinit!isolated_deallocator")
	if builtins(isolated, mir.BuiltinIsRemote) != 0 {
		t.Errorf("isolated deallocator must not repeat the remote check")
	}
	refs := instrs(isolated, mir.InstrFunctionRef)
	if len(refs) != 1 || refs[0].Callee != "Account.deinit!destroyer" {
		t.Errorf("isolated deallocator should call the destroyer, got %+v", refs)
	}

	destroyer := mustFunc(t, m, "Account.deinit!destroyer")
	if builtins(destroyer, mir.BuiltinPreconditionExecutor) != 1 {
		t.Errorf("destroyer should check it runs on the actor's executor")
	}
}

func TestMoveOnlyDeallocator(t *testing.T) {
	_, m := lowerSource(t, `
[[type]]
name = "File"
kind = "struct"
copyable = false
  [[type.field]]
  name = "fd"
  type = "Int"
  [[type.field]]
  name = "path"
  type = "String"
  [type.deinit]
  body = ["call close"]

[[type]]
name = "Buffer"
kind = "struct"
generics = ["T"]
copyable = false
  [[type.field]]
  name = "storage"
  type = "T"
  [[type.field]]
  name = "size"
  type = "Int"

[[type]]
name = "Slot"
kind = "enum"
generics = ["T"]
copyable = false
  [[type.case]]
  name = "empty"
  [[type.case]]
  name = "full"
  payload = "T"
`)
	file := mustFunc(t, m, "File.deinit!deallocator")
	if file.AutoGenerated {
		t.Errorf("explicit move-only deinit marked auto-generated")
	}
	if file.Sig.Params[0].Conv != mir.ConvOwned {
		t.Errorf("loadable value should be passed owned, got %s", file.Sig.Params[0].Conv)
	}
	if len(instrs(file, mir.InstrDropDeinit)) != 1 || len(instrs(file, mir.InstrDestroyValue)) != 1 {
		t.Errorf("loadable self should be drop_deinit'ed and destroyed as a whole")
	}

	buffer := mustFunc(t, m, "Buffer.deinit!deallocator")
	if buffer.Sig.Params[0].Conv != mir.ConvIndirectIn {
		t.Fatalf("address-only value should be passed @in, got %s", buffer.Sig.Params[0].Conv)
	}
	var fields []string
	for _, ins := range instrs(buffer, mir.InstrStructElementAddr) {
		fields = append(fields, ins.FieldName)
	}
	if want := []string{"storage"}; !slices.Equal(fields, want) {
		t.Errorf("destroyed fields %v, want %v", fields, want)
	}

	slot := mustFunc(t, m, "Slot.deinit!deallocator")
	var sw *mir.Terminator
	for i := range slot.Blocks {
		if slot.Blocks[i].Term.Kind == mir.TermSwitchTag {
			sw = &slot.Blocks[i].Term
		}
	}
	if sw == nil || len(sw.SwitchTag.Cases) != 2 {
		t.Fatalf("enum deinit should switch over both cases")
	}
	if n := len(instrs(slot, mir.InstrUncheckedTakeEnumDataAddr)); n != 1 {
		t.Errorf("only the payload case is destroyed, got %d projections", n)
	}
	if countReturns(slot) != 1 {
		t.Errorf("cases should rejoin before returning")
	}
}

func TestForeignDeallocatorCallsSuper(t *testing.T) {
	_, m := lowerSource(t, `
[[type]]
name = "NSObject"
kind = "class"
foreign_root = true

[[type]]
name = "Base"
kind = "class"
superclass = "NSObject"
foreign_allocated = true

[[type]]
name = "View"
kind = "class"
superclass = "Base"
foreign_allocated = true
  [[type.field]]
  name = "title"
  type = "String"
  [type.deinit]
  body = ["call teardown"]
`)
	f := mustFunc(t, m, "View.deinit!foreign_deallocator")
	methods := instrs(f, mir.InstrSuperMethod)
	if len(methods) != 1 || methods[0].Callee != "Base.deinit!foreign_deallocator" {
		t.Fatalf("expected a dynamic call to Base's dealloc, got %+v", methods)
	}
	apply := instrs(f, mir.InstrApply)[0]
	if apply.Convs[0] != mir.ConvUnowned {
		t.Errorf("super dealloc receives self unowned, got %s", apply.Convs[0])
	}
	if len(instrs(f, mir.InstrRefElementAddr)) != 0 {
		t.Errorf("foreign dealloc leaves members to the ivar destroyer")
	}

	ivars := mustFunc(t, m, "View.deinit!ivar_destroyer")
	if !ivars.AutoGenerated || ivars.Sig.Params[0].Conv != mir.ConvUnowned {
		t.Errorf("ivar destroyer: auto=%v conv=%s", ivars.AutoGenerated, ivars.Sig.Params[0].Conv)
	}
	if n := len(instrs(ivars, mir.InstrRefElementAddr)); n != 1 {
		t.Errorf("ivar destroyer should destroy title, got %d projections", n)
	}
	if _, ok := m.Lookup("Base.deinit!ivar_destroyer"); ok {
		t.Errorf("Base has no storage and needs no ivar destroyer")
	}
}

func TestBodyWithoutFallthroughSkipsEpilog(t *testing.T) {
	_, m := lowerSource(t, `
[[type]]
name = "Doomed"
kind = "class"
  [[type.field]]
  name = "name"
  type = "String"
  [type.deinit]
  body = ["fatal unreachable teardown", "call never"]

[[type]]
name = "Token"
kind = "struct"
copyable = false
  [[type.field]]
  name = "name"
  type = "String"
  [type.deinit]
  body = ["fatal gone"]
`)
	for _, name := range []string{"Doomed.deinit!destroyer", "Token.deinit!deallocator"} {
		f := mustFunc(t, m, name)
		if countReturns(f) != 0 {
			t.Errorf("%s: no path should return", name)
		}
		if builtins(f, mir.BuiltinUserCall) != 0 {
			t.Errorf("%s: statements after a trap are dead", name)
		}
		if len(instrs(f, mir.InstrRefElementAddr))+len(instrs(f, mir.InstrDropDeinit)) != 0 {
			t.Errorf("%s: member destruction emitted after a trap", name)
		}
	}
}

func TestUnavailableDeinitTrapsOnEntry(t *testing.T) {
	_, m := lowerSource(t, `
[[type]]
name = "Legacy"
kind = "class"
  [type.deinit]
  unavailable = true
`)
	for _, name := range []string{"Legacy.deinit!destroyer", "Legacy.deinit!deallocator"} {
		f := mustFunc(t, m, name)
		first := f.Blocks[f.Entry].Instrs[0]
		if first.Kind != mir.InstrBuiltin || first.Builtin != mir.BuiltinUnavailableCodeReached {
			t.Errorf("%s: first instruction is %s", name, first.Kind)
		}
	}
}

func TestClassifyRuntimeRootEmitsNothing(t *testing.T) {
	prog, err := decl.Parse([]byte(`
[[type]]
name = "NSObject"
kind = "class"
foreign_root = true
`))
	if err != nil {
		t.Fatal(err)
	}
	l := dtor.New(prog, dtor.Options{})
	root, _ := prog.Lookup("NSObject")
	cls := l.Classify(root.Destructor)
	if cls.Category != dtor.CategoryRuntimeRoot || len(cls.Forms) != 0 {
		t.Fatalf("classification %+v", cls)
	}
	m, err := l.Lower(context.Background(), root.Destructor)
	if err != nil || len(m.Funcs) != 0 {
		t.Fatalf("Lower: %v, %d funcs", err, len(m.Funcs))
	}
}

func TestLowerHonorsCancellation(t *testing.T) {
	prog, err := decl.Parse([]byte(`
[[type]]
name = "Box"
kind = "class"
`))
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := dtor.New(prog, dtor.Options{}).LowerProgram(ctx); err == nil {
		t.Fatal("expected a cancellation error")
	}
}
