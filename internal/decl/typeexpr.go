package decl

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"dtorgen/internal/types"
)

// ResolveType parses a type expression such as `Node<T>?` in the generic
// context of owner (which may be nil for a context without parameters).
func (p *Program) ResolveType(src string, owner *Nominal) (types.TypeID, error) {
	r := &typeReader{src: src, prog: p, owner: owner}
	r.skipSpace()
	id, err := r.parseType()
	if err != nil {
		return types.NoTypeID, fmt.Errorf("type %q: %w", src, err)
	}
	r.skipSpace()
	if r.pos != len(r.src) {
		return types.NoTypeID, fmt.Errorf("type %q: unexpected %q", src, r.src[r.pos:])
	}
	return id, nil
}

type typeReader struct {
	src   string
	pos   int
	prog  *Program
	owner *Nominal
}

func (r *typeReader) skipSpace() {
	for r.pos < len(r.src) && r.src[r.pos] == ' ' {
		r.pos++
	}
}

func (r *typeReader) peek() byte {
	if r.pos >= len(r.src) {
		return 0
	}
	return r.src[r.pos]
}

func (r *typeReader) parseType() (types.TypeID, error) {
	id, err := r.parseBase()
	if err != nil {
		return types.NoTypeID, err
	}
	for {
		r.skipSpace()
		if r.peek() != '?' {
			return id, nil
		}
		r.pos++
		id = r.prog.Types.Optional(id)
	}
}

func (r *typeReader) parseIdent() string {
	start := r.pos
	for r.pos < len(r.src) {
		c, size := utf8.DecodeRuneInString(r.src[r.pos:])
		if c != '_' && c != '.' && !unicode.IsLetter(c) && !unicode.IsDigit(c) {
			break
		}
		r.pos += size
	}
	return normalizeIdent(r.src[start:r.pos])
}

func (r *typeReader) parseBase() (types.TypeID, error) {
	name := r.parseIdent()
	if name == "" {
		return types.NoTypeID, fmt.Errorf("expected type name at offset %d", r.pos)
	}
	var args []types.TypeID
	r.skipSpace()
	if r.peek() == '<' {
		r.pos++
		for {
			r.skipSpace()
			arg, err := r.parseType()
			if err != nil {
				return types.NoTypeID, err
			}
			args = append(args, arg)
			r.skipSpace()
			switch r.peek() {
			case ',':
				r.pos++
				continue
			case '>':
				r.pos++
			default:
				return types.NoTypeID, fmt.Errorf("expected ',' or '>' at offset %d", r.pos)
			}
			break
		}
	}

	if r.owner != nil {
		for i, param := range r.owner.Params {
			if param == name {
				if len(args) > 0 {
					return types.NoTypeID, fmt.Errorf("generic parameter %s takes no arguments", name)
				}
				return r.prog.Types.GenericParam(param, i), nil
			}
		}
	}

	if id, ok := r.builtin(name); ok {
		if len(args) > 0 {
			return types.NoTypeID, fmt.Errorf("builtin %s takes no arguments", name)
		}
		return id, nil
	}

	n, ok := r.prog.Lookup(name)
	if !ok {
		return types.NoTypeID, fmt.Errorf("unknown type %s", name)
	}
	if len(args) != len(n.Params) {
		return types.NoTypeID, fmt.Errorf("%s expects %d generic arguments, got %d", name, len(n.Params), len(args))
	}
	if len(args) == 0 {
		return n.Type, nil
	}
	return r.prog.Types.Bind(n.Type, args), nil
}

func (r *typeReader) builtin(name string) (types.TypeID, bool) {
	b := r.prog.Types.Builtins()
	switch strings.TrimPrefix(name, "Builtin.") {
	case "Int":
		return b.Int, true
	case "Bool", "Int1":
		return b.Bool, true
	case "Word":
		return b.Word, true
	case "String":
		return b.String, true
	case "NativeObject":
		return b.NativeObject, true
	case "AnyObject":
		return b.AnyObject, true
	}
	return types.NoTypeID, false
}
