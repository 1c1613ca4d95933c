package mir

import (
	"fmt"

	"dtorgen/internal/types"
)

// InstrKind enumerates instruction kinds in MIR.
type InstrKind uint8

const (
	InstrInvalid InstrKind = iota
	// InstrFunctionRef produces a thin reference to a function by symbol.
	InstrFunctionRef
	// InstrSuperMethod looks up a foreign superclass method on an object.
	InstrSuperMethod
	// InstrApply calls Ops[0] with Ops[1:] under Convs.
	InstrApply
	// InstrBuiltin invokes a compiler builtin.
	InstrBuiltin
	// InstrIntegerLiteral produces a trivial integer.
	InstrIntegerLiteral
	// InstrUpcast converts a class reference to a superclass reference.
	InstrUpcast
	// InstrUncheckedRefCast reinterprets a reference as another reference type.
	InstrUncheckedRefCast
	// InstrUncheckedOwnershipConversion changes the ownership of a value
	// without any runtime effect.
	InstrUncheckedOwnershipConversion
	// InstrBeginBorrow opens a borrow scope on an owned value.
	InstrBeginBorrow
	// InstrLoadBorrow opens a borrow scope on the contents of an address.
	InstrLoadBorrow
	// InstrEndBorrow closes a borrow scope.
	InstrEndBorrow
	// InstrEndLifetime ends an owned value without destroying it.
	InstrEndLifetime
	// InstrDeallocRef frees the memory of an object.
	InstrDeallocRef
	// InstrDestroyValue releases an owned value.
	InstrDestroyValue
	// InstrRefElementAddr projects the address of a stored class field.
	InstrRefElementAddr
	// InstrStructElementAddr projects the address of a struct field.
	InstrStructElementAddr
	// InstrBeginAccess opens a scoped access region on an address.
	InstrBeginAccess
	// InstrEndAccess closes a scoped access region.
	InstrEndAccess
	// InstrDestroyAddr destroys the value stored at an address.
	InstrDestroyAddr
	// InstrLoad reads an address under a LoadQual.
	InstrLoad
	// InstrStore writes Ops[0] into address Ops[1] under a StoreQual.
	InstrStore
	// InstrAllocStack allocates an uninitialized stack slot.
	InstrAllocStack
	// InstrDeallocStack releases a stack slot.
	InstrDeallocStack
	// InstrEnum builds an enum or optional value for Tag.
	InstrEnum
	// InstrUncheckedEnumData projects the payload of a borrowed enum value.
	InstrUncheckedEnumData
	// InstrUncheckedTakeEnumDataAddr projects the payload address of an enum
	// in memory.
	InstrUncheckedTakeEnumDataAddr
	// InstrIsUnique tests whether the reference at an address is uniquely owned.
	InstrIsUnique
	// InstrInitExistentialRef erases a class reference to AnyObject.
	InstrInitExistentialRef
	// InstrConvertFunction reinterprets a function reference with a new type.
	InstrConvertFunction
	// InstrDropDeinit marks a value as no longer running its user deinit.
	InstrDropDeinit
)

var instrNames = [...]string{
	InstrInvalid:                      "invalid",
	InstrFunctionRef:                  "function_ref",
	InstrSuperMethod:                  "super_method",
	InstrApply:                        "apply",
	InstrBuiltin:                      "builtin",
	InstrIntegerLiteral:               "integer_literal",
	InstrUpcast:                       "upcast",
	InstrUncheckedRefCast:             "unchecked_ref_cast",
	InstrUncheckedOwnershipConversion: "unchecked_ownership_conversion",
	InstrBeginBorrow:                  "begin_borrow",
	InstrLoadBorrow:                   "load_borrow",
	InstrEndBorrow:                    "end_borrow",
	InstrEndLifetime:                  "end_lifetime",
	InstrDeallocRef:                   "dealloc_ref",
	InstrDestroyValue:                 "destroy_value",
	InstrRefElementAddr:               "ref_element_addr",
	InstrStructElementAddr:            "struct_element_addr",
	InstrBeginAccess:                  "begin_access",
	InstrEndAccess:                    "end_access",
	InstrDestroyAddr:                  "destroy_addr",
	InstrLoad:                         "load",
	InstrStore:                        "store",
	InstrAllocStack:                   "alloc_stack",
	InstrDeallocStack:                 "dealloc_stack",
	InstrEnum:                         "enum",
	InstrUncheckedEnumData:            "unchecked_enum_data",
	InstrUncheckedTakeEnumDataAddr:    "unchecked_take_enum_data_addr",
	InstrIsUnique:                     "is_unique",
	InstrInitExistentialRef:           "init_existential_ref",
	InstrConvertFunction:              "convert_function",
	InstrDropDeinit:                   "drop_deinit",
}

func (k InstrKind) String() string {
	if int(k) < len(instrNames) && instrNames[k] != "" {
		return instrNames[k]
	}
	return fmt.Sprintf("InstrKind(%d)", k)
}

// AccessKind is the kind of a scoped access region.
type AccessKind uint8

const (
	AccessRead AccessKind = iota
	AccessModify
	AccessDeinit
)

func (a AccessKind) String() string {
	switch a {
	case AccessRead:
		return "read"
	case AccessModify:
		return "modify"
	case AccessDeinit:
		return "deinit"
	default:
		return "?"
	}
}

// LoadQual is the ownership qualifier of a load.
type LoadQual uint8

const (
	LoadTrivial LoadQual = iota
	LoadTake
	LoadCopy
)

func (q LoadQual) String() string {
	switch q {
	case LoadTrivial:
		return "trivial"
	case LoadTake:
		return "take"
	case LoadCopy:
		return "copy"
	default:
		return "?"
	}
}

// StoreQual is the ownership qualifier of a store.
type StoreQual uint8

const (
	StoreTrivial StoreQual = iota
	// StoreInit writes into uninitialized memory.
	StoreInit
	// StoreAssign destroys the old contents after writing.
	StoreAssign
)

func (q StoreQual) String() string {
	switch q {
	case StoreTrivial:
		return "trivial"
	case StoreInit:
		return "init"
	case StoreAssign:
		return "assign"
	default:
		return "?"
	}
}

// BuiltinKind names a compiler builtin.
type BuiltinKind uint8

const (
	BuiltinInvalid BuiltinKind = iota
	// BuiltinDestroyDefaultActor tears down intrinsic actor state of self.
	BuiltinDestroyDefaultActor
	// BuiltinResignIdentity releases a distributed actor's identity.
	BuiltinResignIdentity
	// BuiltinIsRemote reports whether self is a remote proxy.
	BuiltinIsRemote
	// BuiltinUnavailableCodeReached traps.
	BuiltinUnavailableCodeReached
	// BuiltinPreconditionExecutor traps unless running on Ops[0].
	BuiltinPreconditionExecutor
	// BuiltinGlobalActorExecutor yields the executor of the global actor Name.
	BuiltinGlobalActorExecutor
	// BuiltinActorExecutor yields the executor of the actor instance Ops[0].
	BuiltinActorExecutor
	// BuiltinUserCall is an opaque call emitted for user-written statements.
	BuiltinUserCall
	// BuiltinFatal traps with Name as the message.
	BuiltinFatal
)

var builtinNames = [...]string{
	BuiltinInvalid:                "invalid",
	BuiltinDestroyDefaultActor:    "destroyDefaultActor",
	BuiltinResignIdentity:         "resignIdentity",
	BuiltinIsRemote:               "isRemote",
	BuiltinUnavailableCodeReached: "unavailableCodeReached",
	BuiltinPreconditionExecutor:   "preconditionExecutor",
	BuiltinGlobalActorExecutor:    "globalActorExecutor",
	BuiltinActorExecutor:          "actorExecutor",
	BuiltinUserCall:               "userCall",
	BuiltinFatal:                  "fatal",
}

func (k BuiltinKind) String() string {
	if int(k) < len(builtinNames) && builtinNames[k] != "" {
		return builtinNames[k]
	}
	return fmt.Sprintf("BuiltinKind(%d)", k)
}

// RuntimeDeinitOnExecutor is the runtime entry point that schedules a
// deallocation job on an executor.
const RuntimeDeinitOnExecutor = "rt.deinitOnExecutor"

// Instr is one MIR instruction. Only the fields relevant to Kind are set.
type Instr struct {
	Kind   InstrKind
	Result ValueID
	Ops    []ValueID

	// Type is the result type for casts, literals, enums and stack slots.
	Type types.TypeID
	// Field is the stored field index for element projections.
	Field int
	// FieldName is carried for printing and tracing.
	FieldName string
	// Tag is the case index for enum instructions.
	Tag     int
	TagName string

	Access AccessKind
	Load   LoadQual
	Store  StoreQual
	Own    Ownership

	// Callee is the symbol for function_ref and super_method.
	Callee string
	// Convs are the argument conventions of an apply.
	Convs []Convention
	// Subst are the generic arguments of an apply; nil when the callee
	// is not generic or every argument is concrete.
	Subst []types.TypeID

	Builtin BuiltinKind
	// Name is the builtin's symbolic operand (callee, actor or message).
	Name string
	Int  int64
}

// HasResult reports whether the instruction defines a value.
func (ins *Instr) HasResult() bool {
	return ins != nil && ins.Result != NoValueID
}
