// Package stmtgen lowers the resolved statement sequence of a deinit body
// into MIR. Destructor lowering treats it as an opaque collaborator.
package stmtgen

import (
	"dtorgen/internal/decl"
	"dtorgen/internal/mir"
)

// Emitter lowers a user-written body at the builder's insertion point.
// Normal exits (falling off the end or an explicit return) branch to
// epilog; paths that cannot complete end in unreachable.
type Emitter interface {
	EmitBody(b *mir.Builder, body *decl.Body, epilog mir.BlockID)
}

// Default is the statement lowering used by the driver.
type Default struct{}

var _ Emitter = Default{}

func (Default) EmitBody(b *mir.Builder, body *decl.Body, epilog mir.BlockID) {
	unit := b.Types().Builtins().Unit
	if body != nil {
		for _, st := range body.Stmts {
			if !b.HasInsertion() {
				// Statements after return or a trap are dead.
				break
			}
			switch st.Kind {
			case decl.StmtCall:
				b.CreateBuiltin(mir.BuiltinUserCall, st.Callee, nil, unit)
			case decl.StmtReturn:
				b.CreateBranch(epilog)
			case decl.StmtFatal:
				b.CreateBuiltin(mir.BuiltinFatal, st.Msg, nil, unit)
				b.CreateUnreachable()
			}
		}
	}
	if b.HasInsertion() {
		b.CreateBranch(epilog)
	}
}
