package mir_test

import (
	"bytes"
	"strings"
	"testing"

	"dtorgen/internal/mir"
	"dtorgen/internal/types"
)

func ownedObjectSig(in *types.Interner) mir.Signature {
	b := in.Builtins()
	return mir.Signature{
		Params: []mir.Param{{Type: b.NativeObject, Conv: mir.ConvOwned}},
		Result: b.Unit,
	}
}

// TestSimplifyCFG_TrivialGoto tests that trivial goto blocks are removed.
func TestSimplifyCFG_TrivialGoto(t *testing.T) {
	in := types.NewInterner()
	b := mir.NewBuilder(in, "test", mir.FuncDestroyer, types.NoTypeID, mir.Signature{Result: in.Builtins().Unit})
	mid := b.NewBlock("mid")
	exit := b.NewBlock("exit")
	b.CreateIntegerLiteral(in.Builtins().Int, 1)
	b.CreateBranch(mid)
	b.SetInsertionPoint(mid)
	b.CreateBranch(exit)
	b.SetInsertionPoint(exit)
	b.CreateReturnUnit()
	f := b.Finish()

	mir.SimplifyCFG(f)

	if len(f.Blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(f.Blocks))
	}
	if f.Blocks[0].Term.Kind != mir.TermGoto || f.Blocks[0].Term.Goto.Target != 1 {
		t.Errorf("bb0 should branch straight to bb1, got %+v", f.Blocks[0].Term)
	}
	if err := mir.ValidateFunc(f, in); err != nil {
		t.Errorf("validate after simplify: %v", err)
	}
}

func TestBuilderFinishDropsUnreachableBlocks(t *testing.T) {
	in := types.NewInterner()
	b := mir.NewBuilder(in, "test", mir.FuncDestroyer, types.NoTypeID, mir.Signature{Result: in.Builtins().Unit})
	dead := b.NewBlock("epilog")
	b.CreateReturnUnit()
	b.SetInsertionPoint(dead)
	lit := b.CreateIntegerLiteral(in.Builtins().Int, 7)
	b.CreateReturnUnit()
	f := b.Finish()

	if len(f.Blocks) != 1 {
		t.Fatalf("expected 1 block, got %d", len(f.Blocks))
	}
	if f.Value(lit).Block != mir.NoBlockID {
		t.Errorf("value in dropped block should be detached, got bb%d", f.Value(lit).Block)
	}
	if err := mir.ValidateFunc(f, in); err != nil {
		t.Errorf("validate: %v", err)
	}
}

func TestEmitBlockFallsThrough(t *testing.T) {
	in := types.NewInterner()
	b := mir.NewBuilder(in, "test", mir.FuncDestroyer, types.NoTypeID, mir.Signature{Result: in.Builtins().Unit})
	next := b.NewBlock("next")
	b.EmitBlock(next)
	if b.InsertionBlock() != next {
		t.Fatalf("insertion point: got bb%d, want bb%d", b.InsertionBlock(), next)
	}
	b.CreateReturnUnit()
	if b.HasInsertion() {
		t.Errorf("terminator should clear the insertion point")
	}
	f := b.Finish()
	if f.Blocks[0].Term.Kind != mir.TermGoto {
		t.Errorf("entry should fall through with a branch, got %v", f.Blocks[0].Term.Kind)
	}
}

func TestVerifyOwnership(t *testing.T) {
	tests := []struct {
		name  string
		build func(b *mir.Builder)
		want  string
	}{
		{
			name: "destroyed once",
			build: func(b *mir.Builder) {
				b.CreateDestroyValue(b.Param(0))
				b.CreateReturnUnit()
			},
		},
		{
			name: "leaked",
			build: func(b *mir.Builder) {
				b.CreateReturnUnit()
			},
			want: "unbalanced state at return",
		},
		{
			name: "destroyed twice",
			build: func(b *mir.Builder) {
				b.CreateDestroyValue(b.Param(0))
				b.CreateDestroyValue(b.Param(0))
				b.CreateReturnUnit()
			},
			want: "after it was consumed",
		},
		{
			name: "borrow left open",
			build: func(b *mir.Builder) {
				b.CreateBeginBorrow(b.Param(0))
				b.CreateDestroyValue(b.Param(0))
				b.CreateReturnUnit()
			},
			want: "borrows",
		},
		{
			name: "end_lifetime balances",
			build: func(b *mir.Builder) {
				bw := b.CreateBeginBorrow(b.Param(0))
				b.CreateEndBorrow(bw)
				b.CreateEndLifetime(b.Param(0))
				b.CreateReturnUnit()
			},
		},
		{
			name: "paths disagree",
			build: func(b *mir.Builder) {
				in := b.Types()
				cond := b.CreateIntegerLiteral(in.Builtins().Bool, 1)
				yes := b.NewBlock("yes")
				no := b.NewBlock("no")
				join := b.NewBlock("join")
				b.CreateCondBranch(cond, yes, no)
				b.SetInsertionPoint(yes)
				b.CreateDestroyValue(b.Param(0))
				b.CreateBranch(join)
				b.SetInsertionPoint(no)
				b.CreateBranch(join)
				b.SetInsertionPoint(join)
				b.CreateReturnUnit()
			},
			want: "differs between predecessors",
		},
		{
			name: "unreachable path is exempt",
			build: func(b *mir.Builder) {
				b.CreateBuiltin(mir.BuiltinFatal, "boom", nil, b.Types().Builtins().Unit)
				b.CreateUnreachable()
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			in := types.NewInterner()
			b := mir.NewBuilder(in, "f", mir.FuncDeallocator, types.NoTypeID, ownedObjectSig(in))
			tc.build(b)
			err := mir.VerifyOwnership(b.Finish())
			if tc.want == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestVerifyOwnershipStackSlots(t *testing.T) {
	in := types.NewInterner()
	obj := in.Builtins().NativeObject

	b := mir.NewBuilder(in, "ok", mir.FuncDeallocator, types.NoTypeID, ownedObjectSig(in))
	slot := b.CreateAllocStack(obj)
	b.CreateStore(b.Param(0), slot, mir.StoreInit)
	b.CreateDestroyAddr(slot)
	b.CreateDeallocStack(slot)
	b.CreateReturnUnit()
	if err := mir.VerifyOwnership(b.Finish()); err != nil {
		t.Fatalf("balanced slot: %v", err)
	}

	b = mir.NewBuilder(in, "bad", mir.FuncDeallocator, types.NoTypeID, ownedObjectSig(in))
	slot = b.CreateAllocStack(obj)
	b.CreateStore(b.Param(0), slot, mir.StoreInit)
	b.CreateDeallocStack(slot)
	b.CreateReturnUnit()
	err := mir.VerifyOwnership(b.Finish())
	if err == nil || !strings.Contains(err.Error(), "dealloc_stack of initialized slot") {
		t.Fatalf("expected initialized-slot error, got %v", err)
	}
}

func TestValidateReportsStructuralErrors(t *testing.T) {
	in := types.NewInterner()
	bt := in.Builtins()
	b := mir.NewBuilder(in, "f", mir.FuncDestroyer, types.NoTypeID, mir.Signature{
		Params:    []mir.Param{{Type: bt.NativeObject, Conv: mir.ConvGuaranteed}},
		Result:    bt.NativeObject,
		ResultOwn: mir.OwnershipOwned,
	})
	lit := b.CreateIntegerLiteral(bt.Int, 0)
	b.CreateDestroyAddr(b.Param(0))
	b.CreateReturn(lit)
	f := b.Finish()

	m := mir.NewModule()
	if _, err := m.Add(f); err != nil {
		t.Fatal(err)
	}
	err := mir.Validate(m, in)
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{"return type mismatch", "is not an address", "as owned"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("missing %q in %v", want, err)
		}
	}
}

func TestModuleRejectsDuplicateNames(t *testing.T) {
	m := mir.NewModule()
	if _, err := m.Add(&mir.Func{Name: "A.deinit!destroyer"}); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Add(&mir.Func{Name: "A.deinit!destroyer"}); err == nil {
		t.Fatal("expected duplicate error")
	}
	if f, ok := m.Lookup("A.deinit!destroyer"); !ok || f.ID != 0 {
		t.Fatalf("lookup: %v %v", f, ok)
	}
}

func TestDumpFunc(t *testing.T) {
	in := types.NewInterner()
	b := mir.NewBuilder(in, mir.SymbolName("Box", mir.FuncDeallocator), mir.FuncDeallocator, types.NoTypeID, ownedObjectSig(in))
	b.SetAutoGenerated()
	bw := b.CreateBeginBorrow(b.Param(0))
	addr := b.CreateRefElementAddr(bw, 0, "value", in.Builtins().String)
	acc := b.CreateBeginAccess(addr, mir.AccessDeinit)
	b.CreateDestroyAddr(acc)
	b.CreateEndAccess(acc)
	b.CreateEndBorrow(bw)
	b.CreateDeallocRef(b.Param(0))
	b.CreateReturnUnit()

	var buf bytes.Buffer
	if err := mir.DumpFunc(&buf, b.Finish(), in, mir.DumpOptions{Ownership: true}); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		"// deallocator auto_gen",
		"fn Box.deinit!deallocator(@owned Builtin.NativeObject) -> ()",
		"ref_element_addr %1, #value : $*String",
		"begin_access [deinit] [static] %2",
		"// @guaranteed",
		"return ()",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("dump missing %q:\n%s", want, out)
		}
	}
}
