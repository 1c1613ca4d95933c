package buildpipeline

import (
	"time"

	"dtorgen/internal/driver"
)

// Stage is a per-file pipeline phase; the values match the driver's phase
// names.
type Stage string

const (
	// StageLoad reads and hashes a declaration file.
	StageLoad Stage = driver.PhaseLoad
	// StageLower parses declarations and emits destructor entry points.
	StageLower Stage = driver.PhaseLower
	// StageSimplify folds trivial control flow.
	StageSimplify Stage = driver.PhaseSimplify
	// StageVerify validates structure and ownership.
	StageVerify Stage = driver.PhaseVerify
	// StageCache stores the printed module.
	StageCache Stage = driver.PhaseCache
)

// Status is where a file stands.
type Status string

const (
	StatusQueued  Status = "queued"
	StatusWorking Status = "working" // Event.Stage names the running stage
	StatusDone    Status = "done"
	StatusCached  Status = "cached" // served from the disk cache
	StatusError   Status = "error"
)

// Event reports progress of one file. The last event of a run has an empty
// File and carries the joined error and total elapsed time.
type Event struct {
	File    string
	Stage   Stage
	Status  Status
	Err     error
	Elapsed time.Duration
}

// ProgressSink receives events from the goroutines lowering files; it must
// be safe for concurrent use.
type ProgressSink interface {
	OnEvent(Event)
}

// Timings sums stage durations over every file of a run. The zero value
// is ready to use.
type Timings map[Stage]time.Duration

// Add accumulates dur under stage; a nil map is allocated on first use.
func (t *Timings) Add(stage Stage, dur time.Duration) {
	if *t == nil {
		*t = make(Timings)
	}
	(*t)[stage] += dur
}

// Has reports whether any file ran stage.
func (t Timings) Has(stage Stage) bool {
	_, ok := t[stage]
	return ok
}

// Duration is the summed time of stage.
func (t Timings) Duration(stage Stage) time.Duration {
	return t[stage]
}
