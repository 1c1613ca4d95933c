// Package decl models the type-checked declarations destructor lowering
// consumes: nominal types with their stored fields, enum cases, superclass
// links and the destructor declaration attached to each type.
//
// Declarations are read-only once a Program has been built. Programs are
// normally produced by Load from a TOML description, which stands in for the
// front end's AST.
package decl

import (
	"fmt"

	"dtorgen/internal/types"
)

// NominalKind distinguishes the owning type categories.
type NominalKind uint8

const (
	NominalClass NominalKind = iota + 1
	NominalStruct
	NominalEnum
)

func (k NominalKind) String() string {
	switch k {
	case NominalClass:
		return "class"
	case NominalStruct:
		return "struct"
	case NominalEnum:
		return "enum"
	default:
		return fmt.Sprintf("NominalKind(%d)", k)
	}
}

// TypeKind maps the declaration kind to the interner kind.
func (k NominalKind) TypeKind() types.Kind {
	switch k {
	case NominalClass:
		return types.KindClass
	case NominalStruct:
		return types.KindStruct
	case NominalEnum:
		return types.KindEnum
	default:
		return types.KindInvalid
	}
}

// FieldIsolation records which partition of an actor a stored field belongs to.
type FieldIsolation uint8

const (
	// FieldNonisolated fields are readable without the actor's executor.
	FieldNonisolated FieldIsolation = iota
	// FieldActorInstance fields belong to the actor-isolated state.
	FieldActorInstance
)

// Field is a stored property of a nominal type.
type Field struct {
	Name      string
	Type      types.TypeID
	Isolation FieldIsolation
	Index     int
}

// Case is one alternative of a tagged union.
type Case struct {
	Name    string
	Payload types.TypeID // NoTypeID when the case carries no data
	Index   int
}

// HasPayload reports whether the case carries associated data.
func (c *Case) HasPayload() bool {
	return c != nil && c.Payload != types.NoTypeID
}

// SuperclassRef links a class to its superclass as written in the subclass's
// generic context.
type SuperclassRef struct {
	Decl *Nominal
	Type types.TypeID // e.g. Base<T> expressed with the subclass's params
}

// Nominal is an owning type: a class, struct or enum.
type Nominal struct {
	Name   string
	Kind   NominalKind
	Params []string
	Type   types.TypeID // declared interface type

	Fields     []*Field
	Cases      []*Case
	Superclass *SuperclassRef

	RootDefaultActor bool
	Distributed      bool
	Copyable         bool
	Resilient        bool
	// ForeignRoot marks the native root class of the foreign object runtime.
	ForeignRoot bool
	// ForeignAllocated classes are allocated and freed by the foreign runtime.
	ForeignAllocated bool

	Destructor *Destructor
}

// IsClass reports whether the nominal is a reference type.
func (n *Nominal) IsClass() bool { return n != nil && n.Kind == NominalClass }

// Field looks a stored field up by name.
func (n *Nominal) Field(name string) (*Field, bool) {
	if n == nil {
		return nil, false
	}
	for _, f := range n.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}

// IsolationKind enumerates destructor isolation requirements.
type IsolationKind uint8

const (
	IsolationNone IsolationKind = iota
	IsolationInstance
	IsolationGlobalActor
)

func (k IsolationKind) String() string {
	switch k {
	case IsolationNone:
		return "nonisolated"
	case IsolationInstance:
		return "isolated(self)"
	case IsolationGlobalActor:
		return "global-actor"
	default:
		return fmt.Sprintf("IsolationKind(%d)", k)
	}
}

// Isolation is the executor requirement of a destructor.
type Isolation struct {
	Kind  IsolationKind
	Actor string // global actor name for IsolationGlobalActor
}

// Requires reports whether the isolation names an executor.
func (i Isolation) Requires() bool {
	return i.Kind != IsolationNone
}

func (i Isolation) String() string {
	if i.Kind == IsolationGlobalActor {
		return "@" + i.Actor
	}
	return i.Kind.String()
}

// Destructor is a deinit declaration, explicit or synthesized.
type Destructor struct {
	Owner     *Nominal
	Isolation Isolation
	// Isolated requests an isolated deinit: deallocation is scheduled on the
	// executor rather than run inline.
	Isolated    bool
	Implicit    bool
	Unavailable bool
	Body        *Body
}

// Name is the symbolic name used for emitted functions.
func (d *Destructor) Name() string {
	if d == nil || d.Owner == nil {
		return "<deinit>"
	}
	return d.Owner.Name + ".deinit"
}

// Program is the set of declarations of one input unit.
type Program struct {
	Types    *types.Interner
	Nominals []*Nominal
	byName   map[string]*Nominal
	byType   map[types.TypeID]*Nominal
}

// NewProgram returns an empty program over the given interner.
func NewProgram(in *types.Interner) *Program {
	if in == nil {
		in = types.NewInterner()
	}
	return &Program{
		Types:  in,
		byName: make(map[string]*Nominal),
		byType: make(map[types.TypeID]*Nominal),
	}
}

// Declare registers a nominal and interns its declared type.
func (p *Program) Declare(name string, kind NominalKind, params []string) (*Nominal, error) {
	if _, dup := p.byName[name]; dup {
		return nil, fmt.Errorf("type %q declared twice", name)
	}
	n := &Nominal{
		Name:     name,
		Kind:     kind,
		Params:   append([]string(nil), params...),
		Copyable: true,
	}
	n.Type = p.Types.RegisterNominal(name, kind.TypeKind(), params)
	p.Nominals = append(p.Nominals, n)
	p.byName[name] = n
	p.byType[n.Type] = n
	return n, nil
}

// Lookup finds a nominal by name.
func (p *Program) Lookup(name string) (*Nominal, bool) {
	n, ok := p.byName[name]
	return n, ok
}

// NominalOf resolves any binding of a nominal type to its declaration.
func (p *Program) NominalOf(id types.TypeID) (*Nominal, bool) {
	declared := p.Types.Declared(id)
	if declared == types.NoTypeID {
		return nil, false
	}
	n, ok := p.byType[declared]
	return n, ok
}

// Destructors returns every destructor in declaration order.
func (p *Program) Destructors() []*Destructor {
	out := make([]*Destructor, 0, len(p.Nominals))
	for _, n := range p.Nominals {
		if n.Destructor != nil {
			out = append(out, n.Destructor)
		}
	}
	return out
}

// SynthesizeImplicitDestructors attaches an empty implicit deinit to every
// class and non-copyable value type that lacks one.
func (p *Program) SynthesizeImplicitDestructors() {
	for _, n := range p.Nominals {
		if n.Destructor != nil {
			continue
		}
		if n.Kind != NominalClass && n.Copyable {
			continue
		}
		n.Destructor = &Destructor{Owner: n, Implicit: true, Body: &Body{}}
	}
}
