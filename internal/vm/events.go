package vm

import "fmt"

// EventKind classifies an observable runtime effect.
type EventKind uint8

const (
	EventEnter EventKind = iota + 1
	EventFieldAccess
	EventFieldDestroyed
	EventUserCall
	EventDealloc
	EventDefaultActorDestroyed
	EventIdentityResigned
	EventScheduled
)

func (k EventKind) String() string {
	switch k {
	case EventEnter:
		return "enter"
	case EventFieldAccess:
		return "field_access"
	case EventFieldDestroyed:
		return "field_destroyed"
	case EventUserCall:
		return "user_call"
	case EventDealloc:
		return "dealloc"
	case EventDefaultActorDestroyed:
		return "default_actor_destroyed"
	case EventIdentityResigned:
		return "identity_resigned"
	case EventScheduled:
		return "scheduled"
	default:
		return fmt.Sprintf("EventKind(%d)", k)
	}
}

// Event is one entry of the VM's effect log.
type Event struct {
	Kind     EventKind
	Object   Handle
	Class    string
	Field    string
	Name     string // function entered, user callee or scheduled work
	Executor string // executor current when the event happened
	Depth    int
}

func (e Event) String() string {
	switch e.Kind {
	case EventEnter:
		return fmt.Sprintf("enter %s", e.Name)
	case EventFieldAccess, EventFieldDestroyed:
		return fmt.Sprintf("%s %s#%d.%s", e.Kind, e.Class, e.Object, e.Field)
	case EventUserCall:
		return fmt.Sprintf("call %s on %q", e.Name, e.Executor)
	case EventScheduled:
		return fmt.Sprintf("scheduled %s#%d on %s", e.Class, e.Object, e.Executor)
	default:
		return fmt.Sprintf("%s %s#%d", e.Kind, e.Class, e.Object)
	}
}

func (vm *VM) record(ev Event) {
	if vm.opts.DiscardEvents {
		return
	}
	ev.Depth = len(vm.stack)
	if ev.Executor == "" {
		ev.Executor = vm.executor
	}
	vm.events = append(vm.events, ev)
}
