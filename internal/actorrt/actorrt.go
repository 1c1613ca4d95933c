// Package actorrt is the executor collaborator of destructor lowering: it
// names the executor an isolation requires and emits the runtime checks.
package actorrt

import (
	"dtorgen/internal/decl"
	"dtorgen/internal/mir"
)

// GlobalExecutorName is the runtime name of a global actor's executor.
func GlobalExecutorName(actor string) string {
	return "global:" + actor
}

// Executors computes and checks executors for isolated code.
type Executors interface {
	// ExecutorFor returns the executor required by iso for self, or false
	// when iso names none.
	ExecutorFor(b *mir.Builder, iso decl.Isolation, self mir.ValueID) (mir.ValueID, bool)
	// EmitPrecondition traps at runtime unless the current executor is exec.
	EmitPrecondition(b *mir.Builder, exec mir.ValueID)
}

// Default emits builtin requests understood by the runtime.
type Default struct{}

var _ Executors = Default{}

func (Default) ExecutorFor(b *mir.Builder, iso decl.Isolation, self mir.ValueID) (mir.ValueID, bool) {
	execTy := b.Types().Builtins().Executor
	switch iso.Kind {
	case decl.IsolationInstance:
		return b.CreateBuiltin(mir.BuiltinActorExecutor, "", []mir.ValueID{self}, execTy), true
	case decl.IsolationGlobalActor:
		return b.CreateBuiltin(mir.BuiltinGlobalActorExecutor, GlobalExecutorName(iso.Actor), nil, execTy), true
	default:
		return mir.NoValueID, false
	}
}

func (Default) EmitPrecondition(b *mir.Builder, exec mir.ValueID) {
	b.CreateBuiltin(mir.BuiltinPreconditionExecutor, "", []mir.ValueID{exec}, b.Types().Builtins().Unit)
}
