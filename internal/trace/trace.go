// Package trace records what the lowering pipeline does: driver runs, the
// passes over each declaration file, every destructor and the emission
// stages of each form. Tracing is off unless a command asks for it, and a
// disabled tracer costs one interface call per span.
//
//	ctx = trace.WithTracer(ctx, tracer)
//	span := trace.Begin(trace.FromContext(ctx), trace.ScopePass, "lower", trace.CurrentSpan(ctx).SpanID)
//	defer span.End("")
package trace

import (
	"fmt"
	"strings"
	"time"
)

// Level selects how deep tracing goes.
type Level uint8

const (
	LevelOff    Level = iota
	LevelError        // nothing is emitted by scope; reserved for crash dumps
	LevelPhase        // driver runs and passes
	LevelDetail       // plus one span per destructor
	LevelDebug        // plus emission stages and VM calls
)

var levelNames = [...]string{"off", "error", "phase", "detail", "debug"}

func (l Level) String() string {
	if int(l) < len(levelNames) {
		return levelNames[l]
	}
	return fmt.Sprintf("Level(%d)", l)
}

// ParseLevel accepts a level name in any case.
func ParseLevel(s string) (Level, error) {
	for i, name := range levelNames {
		if strings.EqualFold(s, name) {
			return Level(i), nil
		}
	}
	return LevelOff, fmt.Errorf("invalid trace level %q (expected off|error|phase|detail|debug)", s)
}

// deepestScope is the finest scope each level admits.
var deepestScope = [...]Scope{
	LevelOff:    0,
	LevelError:  0,
	LevelPhase:  ScopePass,
	LevelDetail: ScopeDecl,
	LevelDebug:  ScopeStage,
}

// Admits reports whether events of scope are recorded at this level.
func (l Level) Admits(scope Scope) bool {
	if int(l) >= len(deepestScope) {
		return false
	}
	return scope != 0 && scope <= deepestScope[l]
}

// Scope orders events from coarse to fine.
type Scope uint8

const (
	ScopeDriver Scope = iota + 1 // a CLI run or a batch of files
	ScopePass                    // load, lower, simplify, verify, cache
	ScopeDecl                    // one destructor declaration
	ScopeStage                   // one emission stage of a destructor form
)

func (s Scope) String() string {
	switch s {
	case ScopeDriver:
		return "driver"
	case ScopePass:
		return "pass"
	case ScopeDecl:
		return "decl"
	case ScopeStage:
		return "stage"
	default:
		return fmt.Sprintf("Scope(%d)", s)
	}
}

// Kind distinguishes span boundaries from instant events.
type Kind uint8

const (
	KindSpanBegin Kind = iota + 1
	KindSpanEnd
	KindPoint
	KindHeartbeat
)

func (k Kind) String() string {
	switch k {
	case KindSpanBegin:
		return "begin"
	case KindSpanEnd:
		return "end"
	case KindPoint:
		return "point"
	case KindHeartbeat:
		return "heartbeat"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// Event is one trace record.
type Event struct {
	Time     time.Time
	Seq      uint64
	Kind     Kind
	Scope    Scope
	SpanID   uint64
	ParentID uint64 // zero for a root span
	Name     string // "lower_file", "Node.deinit", "members"
	Detail   string
	Elapsed  time.Duration // span duration, set on KindSpanEnd
	Extra    map[string]string
}

// Tracer receives events. Implementations must be safe for concurrent use.
type Tracer interface {
	Emit(ev *Event)
	Flush() error
	Close() error
	Level() Level
	Enabled() bool
}

type nopTracer struct{}

func (nopTracer) Emit(*Event)   {}
func (nopTracer) Flush() error  { return nil }
func (nopTracer) Close() error  { return nil }
func (nopTracer) Level() Level  { return LevelOff }
func (nopTracer) Enabled() bool { return false }

// Nop discards everything.
var Nop Tracer = nopTracer{}
