// Package dtor lowers destructor declarations into the MIR entry points the
// runtime calls when an instance's lifetime ends.
//
// A class destructor produces a destroyer (user body, superclass chaining,
// member destruction; returns the storage as an owned native object) and a
// deallocator that calls it and frees the storage. Isolated deinits add an
// isolated deallocator and turn the deallocator into a scheduler; distributed
// actors short-circuit remote proxies. Foreign-allocated classes produce a
// foreign dealloc and an ivar destroyer instead, and non-copyable value types
// produce a single move-only deallocator.
//
// All emitted functions come out of a mir.Builder; callers are expected to
// run mir.ValidateFunc and mir.VerifyOwnership over the result.
package dtor

import (
	"context"
	"errors"
	"fmt"

	"dtorgen/internal/actorrt"
	"dtorgen/internal/decl"
	"dtorgen/internal/mir"
	"dtorgen/internal/stmtgen"
	"dtorgen/internal/trace"
	"dtorgen/internal/typelower"
	"dtorgen/internal/types"
)

// Options selects the collaborators a Lowerer emits through. Zero fields
// fall back to the defaults.
type Options struct {
	Stmts     stmtgen.Emitter
	Executors actorrt.Executors
}

// Lowerer emits destructor entry points for one Program. It caches type
// layout and is not safe for concurrent use.
type Lowerer struct {
	prog   *decl.Program
	types  *types.Interner
	layout *typelower.Lowering
	stmts  stmtgen.Emitter
	execs  actorrt.Executors
}

// New returns a Lowerer over prog.
func New(prog *decl.Program, opts Options) *Lowerer {
	l := &Lowerer{
		prog:   prog,
		types:  prog.Types,
		layout: typelower.New(prog),
		stmts:  opts.Stmts,
		execs:  opts.Executors,
	}
	if l.stmts == nil {
		l.stmts = stmtgen.Default{}
	}
	if l.execs == nil {
		l.execs = actorrt.Default{}
	}
	return l
}

// Layout exposes the type lowering the Lowerer classifies with.
func (l *Lowerer) Layout() *typelower.Lowering { return l.layout }

// Classify is Classify bound to the Lowerer's layout.
func (l *Lowerer) Classify(d *decl.Destructor) Classification {
	return Classify(l.layout, d)
}

// Lower emits every entry point d requires into a fresh module.
func (l *Lowerer) Lower(ctx context.Context, d *decl.Destructor) (*mir.Module, error) {
	if d == nil || d.Owner == nil {
		return nil, errors.New("dtor: destructor without an owning type")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tracer := trace.FromContext(ctx)
	span := trace.Begin(tracer, trace.ScopeDecl, d.Name(), trace.CurrentSpan(ctx).SpanID)
	cls := l.Classify(d)
	span.WithExtra("category", cls.Category.String())

	m := mir.NewModule()
	for _, kind := range cls.Forms {
		g := l.newGen(tracer, span.ID(), d, cls, kind)
		f := g.emit()
		if _, err := m.Add(f); err != nil {
			span.End("error")
			return nil, fmt.Errorf("%s: %w", d.Name(), err)
		}
	}
	span.End(fmt.Sprintf("%d funcs", len(m.Funcs)))
	return m, nil
}

// LowerProgram lowers every destructor of the Program into one module.
func (l *Lowerer) LowerProgram(ctx context.Context) (*mir.Module, error) {
	out := mir.NewModule()
	var errs []error
	for _, d := range l.prog.Destructors() {
		m, err := l.Lower(ctx, d)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			errs = append(errs, err)
			continue
		}
		if err := out.Merge(m); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

// Signature returns the calling convention of the given entry point of n.
func (l *Lowerer) Signature(n *decl.Nominal, kind mir.FuncKind) mir.Signature {
	bt := l.types.Builtins()
	switch kind {
	case mir.FuncDestroyer:
		return mir.Signature{
			Params:    []mir.Param{{Type: n.Type, Conv: mir.ConvGuaranteed}},
			Result:    bt.NativeObject,
			ResultOwn: mir.OwnershipOwned,
		}
	case mir.FuncIVarDestroyer:
		return mir.Signature{
			Params: []mir.Param{{Type: n.Type, Conv: mir.ConvUnowned}},
			Result: bt.Unit,
		}
	case mir.FuncDeallocator:
		conv := mir.ConvOwned
		if !n.IsClass() && l.layout.IsAddressOnly(n.Type) {
			conv = mir.ConvIndirectIn
		}
		return mir.Signature{
			Params: []mir.Param{{Type: n.Type, Conv: conv}},
			Result: bt.Unit,
		}
	case mir.FuncIsolatedDeallocator, mir.FuncForeignDeallocator:
		return mir.Signature{
			Params: []mir.Param{{Type: n.Type, Conv: mir.ConvOwned}},
			Result: bt.Unit,
		}
	default:
		panic(fmt.Sprintf("dtor: no signature for %s", kind))
	}
}

// RuntimeSignature is the signature of the executor scheduling entry point:
// the object, the deallocation work, the executor and scheduling flags.
func (l *Lowerer) RuntimeSignature() mir.Signature {
	bt := l.types.Builtins()
	work := l.types.Fn([]types.TypeID{bt.AnyObject}, bt.Unit)
	return mir.Signature{
		Params: []mir.Param{
			{Type: bt.AnyObject, Conv: mir.ConvOwned},
			{Type: work, Conv: mir.ConvTrivial},
			{Type: bt.Executor, Conv: mir.ConvTrivial},
			{Type: bt.Word, Conv: mir.ConvTrivial},
		},
		Result: bt.Unit,
	}
}

// FnType interns the thin function type of sig.
func (l *Lowerer) FnType(sig mir.Signature) types.TypeID {
	params := make([]types.TypeID, len(sig.Params))
	for i, p := range sig.Params {
		params[i] = p.Type
	}
	return l.types.Fn(params, sig.Result)
}

// gen holds the state of one function being emitted.
type gen struct {
	l      *Lowerer
	b      *mir.Builder
	d      *decl.Destructor
	n      *decl.Nominal
	cls    Classification
	kind   mir.FuncKind
	tracer trace.Tracer
	span   *trace.Span
}

func (l *Lowerer) newGen(tracer trace.Tracer, parent uint64, d *decl.Destructor, cls Classification, kind mir.FuncKind) *gen {
	n := d.Owner
	name := mir.SymbolName(n.Name, kind)
	return &gen{
		l:      l,
		b:      mir.NewBuilder(l.types, name, kind, n.Type, l.Signature(n, kind)),
		d:      d,
		n:      n,
		cls:    cls,
		kind:   kind,
		tracer: tracer,
		span:   trace.Begin(tracer, trace.ScopeStage, name, parent),
	}
}

func (g *gen) emit() *mir.Func {
	switch {
	case g.kind == mir.FuncDestroyer:
		g.emitDestroyer()
	case g.kind == mir.FuncDeallocator && g.cls.Category == CategoryMoveOnlyValue:
		g.emitMoveOnlyDeallocator()
	case g.kind == mir.FuncDeallocator && g.cls.Scheduled:
		g.emitIsolatingDeallocator()
	case g.kind == mir.FuncDeallocator:
		g.emitDeallocator(false)
	case g.kind == mir.FuncIsolatedDeallocator:
		g.emitDeallocator(true)
	case g.kind == mir.FuncIVarDestroyer:
		g.emitIVarDestroyer()
	case g.kind == mir.FuncForeignDeallocator:
		g.emitForeignDeallocator()
	default:
		panic(fmt.Sprintf("dtor: cannot emit %s for %s", g.kind, g.n.Name))
	}
	f := g.b.Finish()
	g.span.WithExtra("blocks", fmt.Sprint(len(f.Blocks)))
	g.span.End(g.kind.String())
	return f
}

func (g *gen) point(name, detail string) {
	trace.Point(g.tracer, trace.ScopeStage, name, detail, g.span.ID())
}

// emitUnavailableStub traps on entry when the deinit is marked unavailable.
func (g *gen) emitUnavailableStub() {
	if !g.d.Unavailable {
		return
	}
	g.b.CreateBuiltin(mir.BuiltinUnavailableCodeReached, g.d.Name(), nil, g.l.types.Builtins().Unit)
}

// emitUserBody lowers the deinit body and positions the builder in the
// epilog. It reports false when no path reaches the epilog.
func (g *gen) emitUserBody() bool {
	epilog := g.b.NewBlock("epilog")
	g.l.stmts.EmitBody(g.b, g.d.Body, epilog)
	if g.b.Func().Predecessors(epilog) == 0 {
		g.point("no-fallthrough", g.d.Name())
		g.b.ClearInsertion()
		return false
	}
	g.b.SetInsertionPoint(epilog)
	return true
}

// substitutions returns the generic arguments of ty, or nil when every
// argument is concrete.
func (g *gen) substitutions(ty types.TypeID) []types.TypeID {
	args := g.l.types.Args(ty)
	for _, a := range args {
		if g.l.types.ContainsGenericParam(a) {
			return args
		}
	}
	if len(args) > 0 {
		g.point("concrete-substitutions", g.l.types.String(ty))
	}
	return nil
}
