package types

import (
	"fmt"
	"strings"
)

// NominalInfo stores the identity of a declared class, struct or enum.
type NominalInfo struct {
	Name   string
	Kind   Kind
	Params []string
}

// RegisterNominal allocates a nominal slot and returns its declared
// interface type: the nominal bound to its own generic parameters.
func (in *Interner) RegisterNominal(name string, kind Kind, params []string) TypeID {
	if !kind.IsNominal() {
		panic(fmt.Sprintf("types: %s is not a nominal kind", kind))
	}
	in.nominals = append(in.nominals, NominalInfo{Name: name, Kind: kind, Params: append([]string(nil), params...)})
	slot := mustSlot(len(in.nominals) - 1)
	args := make([]TypeID, len(params))
	for i, p := range params {
		args[i] = in.GenericParam(p, i)
	}
	return in.Intern(Type{Kind: kind, Payload: slot, Args: in.argSlot(args)})
}

// Bind returns the nominal of declared with the provided generic arguments.
func (in *Interner) Bind(declared TypeID, args []TypeID) TypeID {
	tt, ok := in.Lookup(declared)
	if !ok || !tt.Kind.IsNominal() {
		return NoTypeID
	}
	return in.Intern(Type{Kind: tt.Kind, Payload: tt.Payload, Args: in.argSlot(args)})
}

// Declared maps any binding of a nominal back to its declared interface type.
func (in *Interner) Declared(id TypeID) TypeID {
	info, ok := in.NominalInfo(id)
	if !ok {
		return NoTypeID
	}
	tt := in.MustLookup(id)
	args := make([]TypeID, len(info.Params))
	for i, p := range info.Params {
		args[i] = in.GenericParam(p, i)
	}
	return in.Intern(Type{Kind: tt.Kind, Payload: tt.Payload, Args: in.argSlot(args)})
}

// SameNominal reports whether a and b are bindings of the same declaration.
func (in *Interner) SameNominal(a, b TypeID) bool {
	ta, okA := in.Lookup(a)
	tb, okB := in.Lookup(b)
	return okA && okB && ta.Kind.IsNominal() && ta.Kind == tb.Kind && ta.Payload == tb.Payload
}

// NominalInfo returns metadata for the declaration behind a nominal type.
func (in *Interner) NominalInfo(id TypeID) (*NominalInfo, bool) {
	tt, ok := in.Lookup(id)
	if !ok || !tt.Kind.IsNominal() {
		return nil, false
	}
	if tt.Payload == 0 || int(tt.Payload) >= len(in.nominals) {
		return nil, false
	}
	return &in.nominals[tt.Payload], true
}

// String renders a type for IR dumps and diagnostics.
func (in *Interner) String(id TypeID) string {
	tt, ok := in.Lookup(id)
	if !ok {
		return "<invalid>"
	}
	switch tt.Kind {
	case KindUnit:
		return "()"
	case KindBool:
		return "Builtin.Int1"
	case KindInt:
		return "Int"
	case KindWord:
		return "Builtin.Word"
	case KindString:
		return "String"
	case KindNativeObject:
		return "Builtin.NativeObject"
	case KindAnyObject:
		return "AnyObject"
	case KindExecutor:
		return "Builtin.Executor"
	case KindOptional:
		return in.String(tt.Elem) + "?"
	case KindGenericParam:
		p, _ := in.ParamInfo(id)
		return p.Name
	case KindFn:
		info, _ := in.FnInfo(id)
		if info == nil {
			return "<fn?>"
		}
		parts := make([]string, len(info.Params))
		for i, p := range info.Params {
			parts[i] = in.String(p)
		}
		return fmt.Sprintf("@convention(thin) (%s) -> %s", strings.Join(parts, ", "), in.String(info.Result))
	case KindClass, KindStruct, KindEnum:
		info, _ := in.NominalInfo(id)
		if info == nil {
			return "<nominal?>"
		}
		args := in.Args(id)
		if len(args) == 0 {
			return info.Name
		}
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = in.String(a)
		}
		return info.Name + "<" + strings.Join(parts, ", ") + ">"
	}
	return tt.Kind.String()
}
