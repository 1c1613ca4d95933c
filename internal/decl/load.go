package decl

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"dtorgen/internal/types"
)

type fileSchema struct {
	Types []typeSchema `toml:"type"`
}

type typeSchema struct {
	Name             string        `toml:"name"`
	Kind             string        `toml:"kind"`
	Generics         []string      `toml:"generics"`
	Superclass       string        `toml:"superclass"`
	RootDefaultActor bool          `toml:"root_default_actor"`
	Distributed      bool          `toml:"distributed"`
	Copyable         *bool         `toml:"copyable"`
	Resilient        bool          `toml:"resilient"`
	ForeignRoot      bool          `toml:"foreign_root"`
	ForeignAllocated bool          `toml:"foreign_allocated"`
	Fields           []fieldSchema `toml:"field"`
	Cases            []caseSchema  `toml:"case"`
	Deinit           *deinitSchema `toml:"deinit"`
}

type fieldSchema struct {
	Name     string `toml:"name"`
	Type     string `toml:"type"`
	Isolated bool   `toml:"isolated"`
}

type caseSchema struct {
	Name    string `toml:"name"`
	Payload string `toml:"payload"`
}

type deinitSchema struct {
	Isolation   string   `toml:"isolation"`
	Isolated    bool     `toml:"isolated"`
	Unavailable bool     `toml:"unavailable"`
	Body        []string `toml:"body"`
}

// LoadFile reads a declaration file from disk.
func LoadFile(path string) (*Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	prog, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return prog, nil
}

// Parse decodes a TOML declaration file into a Program. Every class and
// non-copyable value type receives a destructor, implicit if none was written.
func Parse(data []byte) (*Program, error) {
	var schema fileSchema
	meta, err := toml.Decode(string(data), &schema)
	if err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}

	prog := NewProgram(types.NewInterner())
	var errs []error

	// pass 1: names, so fields may refer to types declared later
	for i := range schema.Types {
		ts := &schema.Types[i]
		kind, err := parseKind(ts.Kind)
		if err != nil {
			errs = append(errs, fmt.Errorf("type %q: %w", ts.Name, err))
			continue
		}
		params := make([]string, len(ts.Generics))
		for j, g := range ts.Generics {
			params[j] = normalizeIdent(g)
		}
		n, err := prog.Declare(normalizeIdent(ts.Name), kind, params)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		n.RootDefaultActor = ts.RootDefaultActor
		n.Distributed = ts.Distributed
		n.Resilient = ts.Resilient
		n.ForeignRoot = ts.ForeignRoot
		n.ForeignAllocated = ts.ForeignAllocated
		if ts.Copyable != nil {
			n.Copyable = *ts.Copyable
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	// pass 2: members, superclass and destructors
	for i := range schema.Types {
		ts := &schema.Types[i]
		n, _ := prog.Lookup(normalizeIdent(ts.Name))
		if err := resolveMembers(prog, n, ts); err != nil {
			errs = append(errs, fmt.Errorf("type %q: %w", n.Name, err))
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	prog.SynthesizeImplicitDestructors()
	return prog, nil
}

func parseKind(s string) (NominalKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "class", "actor":
		return NominalClass, nil
	case "struct":
		return NominalStruct, nil
	case "enum":
		return NominalEnum, nil
	default:
		return 0, fmt.Errorf("invalid kind %q (expected class|struct|enum)", s)
	}
}

func resolveMembers(prog *Program, n *Nominal, ts *typeSchema) error {
	var errs []error

	for i, fs := range ts.Fields {
		ty, err := prog.ResolveType(fs.Type, n)
		if err != nil {
			errs = append(errs, fmt.Errorf("field %q: %w", fs.Name, err))
			continue
		}
		iso := FieldNonisolated
		if fs.Isolated {
			iso = FieldActorInstance
		}
		n.Fields = append(n.Fields, &Field{Name: normalizeIdent(fs.Name), Type: ty, Isolation: iso, Index: i})
	}

	if len(ts.Cases) > 0 && n.Kind != NominalEnum {
		errs = append(errs, fmt.Errorf("only enums declare cases"))
	}
	if n.Kind == NominalEnum && len(ts.Fields) > 0 {
		errs = append(errs, fmt.Errorf("enums carry payloads on cases, not stored fields"))
	}
	for i, cs := range ts.Cases {
		c := &Case{Name: normalizeIdent(cs.Name), Index: i}
		if cs.Payload != "" {
			ty, err := prog.ResolveType(cs.Payload, n)
			if err != nil {
				errs = append(errs, fmt.Errorf("case %q: %w", cs.Name, err))
				continue
			}
			c.Payload = ty
		}
		n.Cases = append(n.Cases, c)
	}

	if ts.Superclass != "" {
		if n.Kind != NominalClass {
			errs = append(errs, fmt.Errorf("only classes have a superclass"))
		} else if sup, err := prog.ResolveType(ts.Superclass, n); err != nil {
			errs = append(errs, fmt.Errorf("superclass: %w", err))
		} else if sd, ok := prog.NominalOf(sup); !ok || !sd.IsClass() {
			errs = append(errs, fmt.Errorf("superclass %s is not a class", ts.Superclass))
		} else {
			n.Superclass = &SuperclassRef{Decl: sd, Type: sup}
		}
	}

	if n.ForeignAllocated && n.Superclass == nil && len(errs) == 0 {
		errs = append(errs, fmt.Errorf("foreign-allocated class needs a superclass"))
	}

	if ts.Deinit != nil {
		if n.Kind != NominalClass && n.Copyable {
			errs = append(errs, fmt.Errorf("deinit requires a class or a non-copyable value type"))
		}
		dd, err := resolveDeinit(n, ts.Deinit)
		if err != nil {
			errs = append(errs, fmt.Errorf("deinit: %w", err))
		} else {
			n.Destructor = dd
		}
	}
	return errors.Join(errs...)
}

func resolveDeinit(n *Nominal, ds *deinitSchema) (*Destructor, error) {
	iso, err := ParseIsolation(ds.Isolation)
	if err != nil {
		return nil, err
	}
	if iso.Kind == IsolationInstance && !n.IsClass() {
		return nil, fmt.Errorf("only actors can isolate a deinit to self")
	}
	if ds.Isolated && !iso.Requires() {
		return nil, fmt.Errorf("isolated deinit needs an isolation")
	}
	if ds.Isolated && !n.IsClass() {
		return nil, fmt.Errorf("isolated deinit is only supported on classes")
	}
	body := &Body{}
	for _, src := range ds.Body {
		st, err := ParseStmt(src)
		if err != nil {
			return nil, err
		}
		body.Stmts = append(body.Stmts, st)
	}
	return &Destructor{
		Owner:       n,
		Isolation:   iso,
		Isolated:    ds.Isolated,
		Unavailable: ds.Unavailable,
		Body:        body,
	}, nil
}

// ParseIsolation accepts "", "none", "instance" and "global:<Actor>".
func ParseIsolation(s string) (Isolation, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "" || s == "none":
		return Isolation{Kind: IsolationNone}, nil
	case s == "instance":
		return Isolation{Kind: IsolationInstance}, nil
	case strings.HasPrefix(s, "global:"):
		actor := normalizeIdent(strings.TrimPrefix(s, "global:"))
		if actor == "" {
			return Isolation{}, fmt.Errorf("global isolation needs an actor name")
		}
		return Isolation{Kind: IsolationGlobalActor, Actor: actor}, nil
	default:
		return Isolation{}, fmt.Errorf("invalid isolation %q (expected none|instance|global:<Actor>)", s)
	}
}
