package mir

type TermKind uint8

const (
	TermNone TermKind = iota
	TermReturn
	TermGoto
	TermIf
	TermSwitchTag
	TermUnreachable
)

type Terminator struct {
	Kind TermKind

	Return      ReturnTerm
	Goto        GotoTerm
	If          IfTerm
	SwitchTag   SwitchTagTerm
	Unreachable struct{}
}

type ReturnTerm struct {
	Value ValueID
}

type GotoTerm struct {
	Target BlockID
}

type IfTerm struct {
	Cond ValueID
	Then BlockID
	Else BlockID
}

type SwitchTagCase struct {
	Tag     int
	TagName string
	Target  BlockID
}

// SwitchTagTerm dispatches on the tag of the enum stored at an address
// (or held in a value). Default is NoBlockID when the cases are exhaustive.
type SwitchTagTerm struct {
	Value   ValueID
	Cases   []SwitchTagCase
	Default BlockID
}

// Successors returns the blocks this terminator can transfer to.
func (t *Terminator) Successors() []BlockID {
	switch t.Kind {
	case TermGoto:
		return []BlockID{t.Goto.Target}
	case TermIf:
		return []BlockID{t.If.Then, t.If.Else}
	case TermSwitchTag:
		out := make([]BlockID, 0, len(t.SwitchTag.Cases)+1)
		for _, c := range t.SwitchTag.Cases {
			out = append(out, c.Target)
		}
		if t.SwitchTag.Default != NoBlockID {
			out = append(out, t.SwitchTag.Default)
		}
		return out
	default:
		return nil
	}
}

// redirect rewrites every successor through fn.
func (t *Terminator) redirect(fn func(BlockID) BlockID) {
	switch t.Kind {
	case TermGoto:
		t.Goto.Target = fn(t.Goto.Target)
	case TermIf:
		t.If.Then = fn(t.If.Then)
		t.If.Else = fn(t.If.Else)
	case TermSwitchTag:
		for i := range t.SwitchTag.Cases {
			t.SwitchTag.Cases[i].Target = fn(t.SwitchTag.Cases[i].Target)
		}
		if t.SwitchTag.Default != NoBlockID {
			t.SwitchTag.Default = fn(t.SwitchTag.Default)
		}
	}
}
