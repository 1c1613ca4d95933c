package stmtgen_test

import (
	"slices"
	"testing"

	"dtorgen/internal/decl"
	"dtorgen/internal/mir"
	"dtorgen/internal/stmtgen"
	"dtorgen/internal/types"
)

// emit lowers body into a fresh function whose epilog returns unit.
func emit(t *testing.T, body *decl.Body) *mir.Func {
	t.Helper()
	in := types.NewInterner()
	b := mir.NewBuilder(in, "test", mir.FuncDestroyer, types.NoTypeID, mir.Signature{Result: in.Builtins().Unit})
	epilog := b.NewBlock("epilog")
	stmtgen.Default{}.EmitBody(b, body, epilog)
	if b.HasInsertion() {
		t.Fatalf("body left the insertion point open")
	}
	b.SetInsertionPoint(epilog)
	b.CreateReturnUnit()
	f := b.Finish()
	if err := mir.ValidateFunc(f, in); err != nil {
		t.Fatalf("validate: %v", err)
	}
	return f
}

func builtins(f *mir.Func) []string {
	var out []string
	for _, bb := range f.Blocks {
		for _, ins := range bb.Instrs {
			if ins.Kind == mir.InstrBuiltin {
				out = append(out, ins.Name)
			}
		}
	}
	return out
}

func TestEmitBody(t *testing.T) {
	tests := []struct {
		name        string
		body        *decl.Body
		calls       []string
		unreachable bool
	}{
		{name: "nil body", body: nil},
		{
			name:  "calls in order",
			body:  &decl.Body{Stmts: []decl.Stmt{{Kind: decl.StmtCall, Callee: "a"}, {Kind: decl.StmtCall, Callee: "b"}}},
			calls: []string{"a", "b"},
		},
		{
			name:  "statements after return are dead",
			body:  &decl.Body{Stmts: []decl.Stmt{{Kind: decl.StmtCall, Callee: "a"}, {Kind: decl.StmtReturn}, {Kind: decl.StmtCall, Callee: "b"}}},
			calls: []string{"a"},
		},
		{
			name:        "fatal ends in unreachable",
			body:        &decl.Body{Stmts: []decl.Stmt{{Kind: decl.StmtFatal, Msg: "boom"}, {Kind: decl.StmtCall, Callee: "b"}}},
			calls:       []string{"boom"},
			unreachable: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := emit(t, tt.body)
			if got := builtins(f); !slices.Equal(got, tt.calls) {
				t.Fatalf("builtins %v, want %v", got, tt.calls)
			}
			hasUnreachable := slices.ContainsFunc(f.Blocks, func(bb mir.Block) bool {
				return bb.Term.Kind == mir.TermUnreachable
			})
			if hasUnreachable != tt.unreachable {
				t.Fatalf("unreachable terminator: got %v, want %v", hasUnreachable, tt.unreachable)
			}
		})
	}
}
