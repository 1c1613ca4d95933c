package actorrt_test

import (
	"testing"

	"dtorgen/internal/actorrt"
	"dtorgen/internal/decl"
	"dtorgen/internal/mir"
	"dtorgen/internal/types"
)

func TestExecutorFor(t *testing.T) {
	tests := []struct {
		name    string
		iso     decl.Isolation
		want    mir.BuiltinKind
		actor   string
		present bool
	}{
		{name: "nonisolated", iso: decl.Isolation{}},
		{name: "instance", iso: decl.Isolation{Kind: decl.IsolationInstance}, want: mir.BuiltinActorExecutor, present: true},
		{
			name:    "global actor",
			iso:     decl.Isolation{Kind: decl.IsolationGlobalActor, Actor: "MainActor"},
			want:    mir.BuiltinGlobalActorExecutor,
			actor:   "global:MainActor",
			present: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := types.NewInterner()
			sig := mir.Signature{
				Params: []mir.Param{{Type: in.Builtins().NativeObject, Conv: mir.ConvGuaranteed}},
				Result: in.Builtins().Unit,
			}
			b := mir.NewBuilder(in, "test", mir.FuncDeallocator, types.NoTypeID, sig)

			exec, ok := actorrt.Default{}.ExecutorFor(b, tt.iso, b.Param(0))
			if ok != tt.present {
				t.Fatalf("ExecutorFor reported %v, want %v", ok, tt.present)
			}
			instrs := b.Func().Blocks[0].Instrs
			if !ok {
				if exec != mir.NoValueID || len(instrs) != 0 {
					t.Fatalf("nonisolated emitted %d instructions", len(instrs))
				}
				return
			}
			if len(instrs) != 1 {
				t.Fatalf("emitted %d instructions, want 1", len(instrs))
			}
			ins := instrs[0]
			if ins.Builtin != tt.want || ins.Name != tt.actor || ins.Result != exec {
				t.Fatalf("emitted %+v", ins)
			}
			if b.Value(exec).Type != in.Builtins().Executor {
				t.Fatalf("executor value has type %d", b.Value(exec).Type)
			}
		})
	}
}

func TestEmitPrecondition(t *testing.T) {
	in := types.NewInterner()
	b := mir.NewBuilder(in, "test", mir.FuncDeallocator, types.NoTypeID, mir.Signature{Result: in.Builtins().Unit})
	exec := b.CreateBuiltin(mir.BuiltinGlobalActorExecutor, actorrt.GlobalExecutorName("Main"), nil, in.Builtins().Executor)
	actorrt.Default{}.EmitPrecondition(b, exec)

	instrs := b.Func().Blocks[0].Instrs
	last := instrs[len(instrs)-1]
	if last.Builtin != mir.BuiltinPreconditionExecutor || len(last.Ops) != 1 || last.Ops[0] != exec {
		t.Fatalf("precondition %+v", last)
	}
}
