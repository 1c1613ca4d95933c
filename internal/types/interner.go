package types

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"fortio.org/safecast"
)

// Builtins stores TypeIDs for runtime-provided types.
type Builtins struct {
	Invalid      TypeID
	Unit         TypeID
	Bool         TypeID
	Int          TypeID
	Word         TypeID
	String       TypeID
	NativeObject TypeID
	AnyObject    TypeID
	Executor     TypeID
}

// Interner provides stable TypeIDs by hashing structural descriptors.
type Interner struct {
	types    []Type
	index    map[typeKey]TypeID
	builtins Builtins

	nominals []NominalInfo
	params   []ParamInfo
	fns      []FnInfo
	argLists [][]TypeID
	argIndex map[string]uint32
}

// NewInterner constructs an interner seeded with built-in types.
func NewInterner() *Interner {
	in := &Interner{
		index:    make(map[typeKey]TypeID, 64),
		argIndex: make(map[string]uint32, 16),
	}
	// slot 0 is the invalid sentinel in every side table
	in.nominals = append(in.nominals, NominalInfo{})
	in.params = append(in.params, ParamInfo{})
	in.fns = append(in.fns, FnInfo{})
	in.argLists = append(in.argLists, nil)

	in.builtins.Invalid = in.internRaw(Type{Kind: KindInvalid})
	in.builtins.Unit = in.Intern(Type{Kind: KindUnit})
	in.builtins.Bool = in.Intern(Type{Kind: KindBool})
	in.builtins.Int = in.Intern(Type{Kind: KindInt})
	in.builtins.Word = in.Intern(Type{Kind: KindWord})
	in.builtins.String = in.Intern(Type{Kind: KindString})
	in.builtins.NativeObject = in.Intern(Type{Kind: KindNativeObject})
	in.builtins.AnyObject = in.Intern(Type{Kind: KindAnyObject})
	in.builtins.Executor = in.Intern(Type{Kind: KindExecutor})
	return in
}

// Builtins returns TypeIDs for primitive types.
func (in *Interner) Builtins() Builtins {
	return in.builtins
}

// Intern ensures the provided descriptor has a stable TypeID.
func (in *Interner) Intern(t Type) TypeID {
	if t.Kind == KindInvalid {
		return NoTypeID
	}
	key := typeKey(t)
	if id, ok := in.index[key]; ok {
		return id
	}
	return in.internRaw(t)
}

// internRaw adds the descriptor to the storage without consulting the map.
func (in *Interner) internRaw(t Type) TypeID {
	lenTypes, err := safecast.Conv[uint32](len(in.types))
	if err != nil {
		panic(fmt.Errorf("len(types) overflow: %w", err))
	}
	id := TypeID(lenTypes)
	in.types = append(in.types, t)
	in.index[typeKey(t)] = id
	return id
}

// Lookup returns the descriptor for a TypeID.
func (in *Interner) Lookup(id TypeID) (Type, bool) {
	if id == NoTypeID || int(id) >= len(in.types) {
		return Type{}, false
	}
	return in.types[id], true
}

// MustLookup panics when id is invalid.
func (in *Interner) MustLookup(id TypeID) Type {
	tt, ok := in.Lookup(id)
	if !ok {
		panic("types: invalid TypeID")
	}
	return tt
}

// Optional interns Optional<elem>.
func (in *Interner) Optional(elem TypeID) TypeID {
	return in.Intern(MakeOptional(elem))
}

// OptionalElem returns the wrapped type when id is an optional.
func (in *Interner) OptionalElem(id TypeID) (TypeID, bool) {
	tt, ok := in.Lookup(id)
	if !ok || tt.Kind != KindOptional {
		return NoTypeID, false
	}
	return tt.Elem, true
}

// ParamInfo describes a generic parameter by position.
type ParamInfo struct {
	Name  string
	Index int
}

// GenericParam interns the generic parameter at index with the given name.
func (in *Interner) GenericParam(name string, index int) TypeID {
	for slot := 1; slot < len(in.params); slot++ {
		p := in.params[slot]
		if p.Name == name && p.Index == index {
			return in.Intern(Type{Kind: KindGenericParam, Payload: mustSlot(slot)})
		}
	}
	in.params = append(in.params, ParamInfo{Name: name, Index: index})
	return in.Intern(Type{Kind: KindGenericParam, Payload: mustSlot(len(in.params) - 1)})
}

// ParamInfo returns metadata for a generic parameter type.
func (in *Interner) ParamInfo(id TypeID) (ParamInfo, bool) {
	tt, ok := in.Lookup(id)
	if !ok || tt.Kind != KindGenericParam || int(tt.Payload) >= len(in.params) {
		return ParamInfo{}, false
	}
	return in.params[tt.Payload], true
}

// FnInfo stores metadata for thin function types.
type FnInfo struct {
	Params []TypeID
	Result TypeID
}

// Fn interns a thin function type.
func (in *Interner) Fn(params []TypeID, result TypeID) TypeID {
	for slot := 1; slot < len(in.fns); slot++ {
		info := in.fns[slot]
		if info.Result == result && slices.Equal(info.Params, params) {
			return in.Intern(Type{Kind: KindFn, Payload: mustSlot(slot)})
		}
	}
	in.fns = append(in.fns, FnInfo{Params: slices.Clone(params), Result: result})
	return in.Intern(Type{Kind: KindFn, Payload: mustSlot(len(in.fns) - 1)})
}

// FnInfo retrieves function type metadata by TypeID.
func (in *Interner) FnInfo(id TypeID) (*FnInfo, bool) {
	tt, ok := in.Lookup(id)
	if !ok || tt.Kind != KindFn || int(tt.Payload) >= len(in.fns) {
		return nil, false
	}
	return &in.fns[tt.Payload], true
}

// ContainsGenericParam reports whether the type mentions any generic parameter.
func (in *Interner) ContainsGenericParam(id TypeID) bool {
	tt, ok := in.Lookup(id)
	if !ok {
		return false
	}
	switch tt.Kind {
	case KindGenericParam:
		return true
	case KindOptional:
		return in.ContainsGenericParam(tt.Elem)
	case KindFn:
		info, _ := in.FnInfo(id)
		if info == nil {
			return false
		}
		for _, p := range info.Params {
			if in.ContainsGenericParam(p) {
				return true
			}
		}
		return in.ContainsGenericParam(info.Result)
	case KindClass, KindStruct, KindEnum:
		for _, arg := range in.Args(id) {
			if in.ContainsGenericParam(arg) {
				return true
			}
		}
	}
	return false
}

// Subst replaces generic parameters by position with args.
// Parameters past the end of args are left untouched.
func (in *Interner) Subst(id TypeID, args []TypeID) TypeID {
	if len(args) == 0 {
		return id
	}
	tt, ok := in.Lookup(id)
	if !ok {
		return id
	}
	switch tt.Kind {
	case KindGenericParam:
		p, _ := in.ParamInfo(id)
		if p.Index >= 0 && p.Index < len(args) {
			return args[p.Index]
		}
		return id
	case KindOptional:
		return in.Optional(in.Subst(tt.Elem, args))
	case KindFn:
		info, _ := in.FnInfo(id)
		if info == nil {
			return id
		}
		params := make([]TypeID, len(info.Params))
		for i, p := range info.Params {
			params[i] = in.Subst(p, args)
		}
		return in.Fn(params, in.Subst(info.Result, args))
	case KindClass, KindStruct, KindEnum:
		cur := in.Args(id)
		if len(cur) == 0 {
			return id
		}
		next := make([]TypeID, len(cur))
		for i, a := range cur {
			next[i] = in.Subst(a, args)
		}
		return in.Intern(Type{Kind: tt.Kind, Payload: tt.Payload, Args: in.argSlot(next)})
	}
	return id
}

func (in *Interner) argSlot(args []TypeID) uint32 {
	if len(args) == 0 {
		return 0
	}
	var sb strings.Builder
	for i, a := range args {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatUint(uint64(a), 10))
	}
	key := sb.String()
	if slot, ok := in.argIndex[key]; ok {
		return slot
	}
	in.argLists = append(in.argLists, slices.Clone(args))
	slot := mustSlot(len(in.argLists) - 1)
	in.argIndex[key] = slot
	return slot
}

// Args returns the generic arguments bound to a nominal type.
func (in *Interner) Args(id TypeID) []TypeID {
	tt, ok := in.Lookup(id)
	if !ok || tt.Args == 0 || int(tt.Args) >= len(in.argLists) {
		return nil
	}
	return in.argLists[tt.Args]
}

func mustSlot(n int) uint32 {
	slot, err := safecast.Conv[uint32](n)
	if err != nil {
		panic(fmt.Errorf("types: slot overflow: %w", err))
	}
	return slot
}

type typeKey struct {
	Kind    Kind
	Elem    TypeID
	Payload uint32
	Args    uint32
}
