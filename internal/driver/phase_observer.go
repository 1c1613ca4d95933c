package driver

import "time"

// PhaseStatus reports whether a phase started or finished.
type PhaseStatus int

const (
	// PhaseStart indicates that a lowering phase has begun.
	PhaseStart PhaseStatus = iota
	PhaseEnd
	// PhaseFailed ends a phase that returned an error.
	PhaseFailed
)

// Phase names reported to observers, in pipeline order.
const (
	PhaseLoad     = "load"
	PhaseLower    = "lower"
	PhaseSimplify = "simplify"
	PhaseVerify   = "verify"
	PhaseCache    = "cache"
)

// PhaseEvent describes a timing phase boundary for one file.
type PhaseEvent struct {
	Path    string
	Name    string
	Status  PhaseStatus
	Elapsed time.Duration
}

// PhaseObserver receives phase events emitted during lowering. With more
// than one job it is called from several goroutines.
type PhaseObserver func(PhaseEvent)
