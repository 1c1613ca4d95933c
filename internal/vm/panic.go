package vm

import (
	"fmt"
	"strings"
)

// PanicCode identifies the type of VM panic.
type PanicCode int

// Stable panic codes - do not change values.
const (
	PanicUseBeforeInit    PanicCode = 1001 // VM1001: read of an uninitialized cell
	PanicTypeMismatch     PanicCode = 1003 // VM1003: operand of the wrong kind
	PanicUnknownFunction  PanicCode = 1007 // VM1007: call to a missing symbol
	PanicInvalidHandle    PanicCode = 1101 // VM1101: handle never allocated
	PanicUseAfterFree     PanicCode = 1102 // VM1102: object used after dealloc
	PanicDoubleFree       PanicCode = 1103 // VM1103: object freed twice
	PanicLeak             PanicCode = 1104 // VM1104: storage freed with live members
	PanicFreedWhileShared PanicCode = 1105 // VM1105: storage freed with references left
	PanicOverRelease      PanicCode = 1106 // VM1106: release of an object at refcount zero
	PanicHeapExhausted    PanicCode = 1107 // VM1107: object handles used up
	PanicTrap             PanicCode = 1201 // VM1201: fatal error in user code
	PanicUnavailable      PanicCode = 1202 // VM1202: unavailable code reached
	PanicWrongExecutor    PanicCode = 1203 // VM1203: isolated code on the wrong executor
	PanicUnreachable      PanicCode = 1204 // VM1204: unreachable executed
	PanicStackOverflow    PanicCode = 1301 // VM1301: call depth limit exceeded
	PanicUnimplemented    PanicCode = 1999 // VM1999: unimplemented opcode/terminator
)

// String returns the code as "VM1001" format.
func (c PanicCode) String() string {
	return fmt.Sprintf("VM%d", c)
}

// BacktraceFrame represents one frame in the panic backtrace.
type BacktraceFrame struct {
	FuncName string
	Block    int
}

// VMError represents a runtime panic in the VM.
type VMError struct {
	Code      PanicCode
	Message   string
	Backtrace []BacktraceFrame // Stack frames from top to bottom
}

// Error implements the error interface.
func (p *VMError) Error() string {
	return fmt.Sprintf("panic %s: %s", p.Code, p.Message)
}

// Format renders the panic with its backtrace.
func (p *VMError) Format() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("panic %s: %s\n", p.Code, p.Message))
	if len(p.Backtrace) > 0 {
		sb.WriteString("backtrace:\n")
		for i, frame := range p.Backtrace {
			sb.WriteString(fmt.Sprintf("  %d: %s at bb%d\n", i, frame.FuncName, frame.Block))
		}
	}
	return sb.String()
}

func (vm *VM) makeError(code PanicCode, msg string) *VMError {
	e := &VMError{Code: code, Message: msg}
	e.Backtrace = make([]BacktraceFrame, len(vm.stack))
	for i := len(vm.stack) - 1; i >= 0; i-- {
		frame := vm.stack[i]
		e.Backtrace[len(vm.stack)-1-i] = BacktraceFrame{
			FuncName: frame.Func.Name,
			Block:    int(frame.BB),
		}
	}
	return e
}

// panic aborts execution; entry points recover it into a *VMError.
func (vm *VM) panic(code PanicCode, msg string) {
	panic(vm.makeError(code, msg))
}

func (vm *VM) panicf(code PanicCode, format string, args ...any) {
	vm.panic(code, fmt.Sprintf(format, args...))
}

// guard converts a VM panic raised below it into a returned error and
// unwinds the call stack.
func (vm *VM) guard(vmErr **VMError) {
	if r := recover(); r != nil {
		e, ok := r.(*VMError)
		if !ok {
			panic(r)
		}
		vm.stack = vm.stack[:0]
		*vmErr = e
	}
}
