package mir

import (
	"fmt"
	"io"
	"strings"

	"dtorgen/internal/types"
)

// DumpOptions configures MIR module dumping.
type DumpOptions struct {
	// Ownership annotates every result with its ownership kind.
	Ownership bool
}

// DumpModule writes a human-readable representation of a MIR module.
func DumpModule(w io.Writer, m *Module, typesIn *types.Interner, opts DumpOptions) error {
	if w == nil || m == nil {
		return nil
	}
	funcs := m.Sorted()
	if _, err := fmt.Fprintf(w, "funcs=%d\n", len(funcs)); err != nil {
		return err
	}
	for _, f := range funcs {
		if err := DumpFunc(w, f, typesIn, opts); err != nil {
			return err
		}
	}
	return nil
}

// DumpFunc writes a single function.
func DumpFunc(w io.Writer, f *Func, typesIn *types.Interner, opts DumpOptions) error {
	if w == nil || f == nil {
		return nil
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "\n// %s", f.Kind)
	if f.AutoGenerated {
		sb.WriteString(" auto_gen")
	}
	sb.WriteString("\n")
	params := make([]string, len(f.Sig.Params))
	for i, p := range f.Sig.Params {
		params[i] = p.Conv.String() + " " + typeStr(typesIn, p.Type)
	}
	result := typeStr(typesIn, f.Sig.Result)
	if f.Sig.ResultOwn == OwnershipOwned {
		result = "@owned " + result
	}
	fmt.Fprintf(&sb, "fn %s(%s) -> %s {\n", f.Name, strings.Join(params, ", "), result)

	for i := range f.Blocks {
		bb := &f.Blocks[i]
		fmt.Fprintf(&sb, "bb%d", bb.ID)
		if bb.ID == f.Entry && len(f.Params) > 0 {
			args := make([]string, len(f.Params))
			for k, p := range f.Params {
				args[k] = fmt.Sprintf("%%%d", p)
			}
			fmt.Fprintf(&sb, "(%s)", strings.Join(args, ", "))
		}
		if bb.Label != "" {
			fmt.Fprintf(&sb, ":  // %s\n", bb.Label)
		} else {
			sb.WriteString(":\n")
		}
		for j := range bb.Instrs {
			sb.WriteString("  ")
			sb.WriteString(formatInstr(f, typesIn, &bb.Instrs[j], opts))
			sb.WriteString("\n")
		}
		sb.WriteString("  ")
		sb.WriteString(formatTerm(f, &bb.Term))
		sb.WriteString("\n")
	}
	sb.WriteString("}\n")
	_, err := io.WriteString(w, sb.String())
	return err
}

func typeStr(typesIn *types.Interner, id types.TypeID) string {
	if typesIn == nil {
		return fmt.Sprintf("#%d", id)
	}
	if id == types.NoTypeID {
		return "<none>"
	}
	return typesIn.String(id)
}

func valueList(ids []ValueID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%%%d", id)
	}
	return strings.Join(parts, ", ")
}

func formatInstr(f *Func, typesIn *types.Interner, ins *Instr, opts DumpOptions) string {
	var body string
	ops := valueList(ins.Ops)
	switch ins.Kind {
	case InstrFunctionRef:
		body = fmt.Sprintf("function_ref @%s : %s", ins.Callee, typeStr(typesIn, ins.Type))
	case InstrSuperMethod:
		body = fmt.Sprintf("super_method %s, @%s : %s", ops, ins.Callee, typeStr(typesIn, ins.Type))
	case InstrApply:
		args := make([]string, 0, len(ins.Convs))
		for k, c := range ins.Convs {
			args = append(args, fmt.Sprintf("%s %%%d", c, ins.Ops[k+1]))
		}
		subst := ""
		if len(ins.Subst) > 0 {
			names := make([]string, len(ins.Subst))
			for k, s := range ins.Subst {
				names[k] = typeStr(typesIn, s)
			}
			subst = "<" + strings.Join(names, ", ") + ">"
		}
		body = fmt.Sprintf("apply %%%d%s(%s) : %s", ins.Ops[0], subst, strings.Join(args, ", "), typeStr(typesIn, ins.Type))
	case InstrBuiltin:
		name := ""
		if ins.Name != "" {
			name = fmt.Sprintf(" %q", ins.Name)
		}
		body = fmt.Sprintf("builtin %q%s(%s) : %s", ins.Builtin.String(), name, ops, typeStr(typesIn, ins.Type))
	case InstrIntegerLiteral:
		body = fmt.Sprintf("integer_literal %s, %d", typeStr(typesIn, ins.Type), ins.Int)
	case InstrUpcast, InstrUncheckedRefCast, InstrInitExistentialRef, InstrConvertFunction:
		body = fmt.Sprintf("%s %s to %s", ins.Kind, ops, typeStr(typesIn, ins.Type))
	case InstrUncheckedOwnershipConversion:
		from := OwnershipNone
		if v := f.Value(ins.Ops[0]); v != nil {
			from = v.Own
		}
		body = fmt.Sprintf("unchecked_ownership_conversion %s, @%s to @%s", ops, from, ins.Own)
	case InstrRefElementAddr, InstrStructElementAddr:
		body = fmt.Sprintf("%s %s, #%s : $*%s", ins.Kind, ops, ins.FieldName, typeStr(typesIn, ins.Type))
	case InstrBeginAccess:
		body = fmt.Sprintf("begin_access [%s] [static] %s", ins.Access, ops)
	case InstrLoad:
		body = fmt.Sprintf("load [%s] %s", ins.Load, ops)
	case InstrStore:
		body = fmt.Sprintf("store %%%d to [%s] %%%d", ins.Ops[0], ins.Store, ins.Ops[1])
	case InstrAllocStack:
		body = fmt.Sprintf("alloc_stack $%s", typeStr(typesIn, ins.Type))
	case InstrEnum:
		body = fmt.Sprintf("enum $%s, #%s", typeStr(typesIn, ins.Type), ins.TagName)
		if ops != "" {
			body += ", " + ops
		}
	case InstrUncheckedEnumData, InstrUncheckedTakeEnumDataAddr:
		body = fmt.Sprintf("%s %s, #%s", ins.Kind, ops, ins.TagName)
	default:
		body = fmt.Sprintf("%s %s", ins.Kind, ops)
	}
	if !ins.HasResult() {
		return strings.TrimRight(body, " ")
	}
	res := fmt.Sprintf("%%%d = %s", ins.Result, body)
	if opts.Ownership {
		if v := f.Value(ins.Result); v != nil && v.Own != OwnershipNone {
			res += fmt.Sprintf("  // @%s", v.Own)
		}
	}
	return res
}

func formatTerm(f *Func, t *Terminator) string {
	switch t.Kind {
	case TermReturn:
		if t.Return.Value == NoValueID {
			return "return ()"
		}
		return fmt.Sprintf("return %%%d", t.Return.Value)
	case TermGoto:
		return fmt.Sprintf("br bb%d", t.Goto.Target)
	case TermIf:
		return fmt.Sprintf("cond_br %%%d, bb%d, bb%d", t.If.Cond, t.If.Then, t.If.Else)
	case TermSwitchTag:
		kw := "switch_enum"
		if v := f.Value(t.SwitchTag.Value); v.IsAddr() {
			kw = "switch_enum_addr"
		}
		parts := make([]string, 0, len(t.SwitchTag.Cases)+1)
		for _, c := range t.SwitchTag.Cases {
			parts = append(parts, fmt.Sprintf("case #%s: bb%d", c.TagName, c.Target))
		}
		if t.SwitchTag.Default != NoBlockID {
			parts = append(parts, fmt.Sprintf("default bb%d", t.SwitchTag.Default))
		}
		return fmt.Sprintf("%s %%%d, %s", kw, t.SwitchTag.Value, strings.Join(parts, ", "))
	case TermUnreachable:
		return "unreachable"
	default:
		return "<unterminated>"
	}
}
