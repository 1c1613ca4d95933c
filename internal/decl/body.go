package decl

import (
	"fmt"
	"strings"
)

// StmtKind enumerates the statement forms a deinit body may contain.
type StmtKind uint8

const (
	// StmtCall invokes a user function for its side effect.
	StmtCall StmtKind = iota + 1
	// StmtReturn leaves the body early through the epilog.
	StmtReturn
	// StmtFatal traps; nothing after it is reachable.
	StmtFatal
)

func (k StmtKind) String() string {
	switch k {
	case StmtCall:
		return "call"
	case StmtReturn:
		return "return"
	case StmtFatal:
		return "fatal"
	default:
		return fmt.Sprintf("StmtKind(%d)", k)
	}
}

// Stmt is one type-checked statement of a deinit body.
type Stmt struct {
	Kind   StmtKind
	Callee string // StmtCall
	Msg    string // StmtFatal
}

// Body is the resolved statement sequence of a deinit.
type Body struct {
	Stmts []Stmt
}

// Empty reports whether the body has no statements.
func (b *Body) Empty() bool {
	return b == nil || len(b.Stmts) == 0
}

// ParseStmt parses the textual statement forms used by declaration files:
//
//	call <name>
//	return
//	fatal [message]
func ParseStmt(src string) (Stmt, error) {
	text := strings.TrimSpace(src)
	head, rest, _ := strings.Cut(text, " ")
	rest = strings.TrimSpace(rest)
	switch head {
	case "call":
		if rest == "" {
			return Stmt{}, fmt.Errorf("call statement needs a callee: %q", src)
		}
		return Stmt{Kind: StmtCall, Callee: normalizeIdent(rest)}, nil
	case "return":
		if rest != "" {
			return Stmt{}, fmt.Errorf("deinit cannot return a value: %q", src)
		}
		return Stmt{Kind: StmtReturn}, nil
	case "fatal":
		return Stmt{Kind: StmtFatal, Msg: strings.Trim(rest, `"`)}, nil
	default:
		return Stmt{}, fmt.Errorf("unknown statement %q", src)
	}
}
