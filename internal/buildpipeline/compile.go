package buildpipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"dtorgen/internal/driver"
)

// CompileRequest configures the shared lowering pipeline.
type CompileRequest struct {
	Files    []string
	Options  driver.Options
	Progress ProgressSink
}

// CompileResult captures per-file results and stage timings.
type CompileResult struct {
	Files   []*driver.FileResult
	Timings Timings
	Cached  int
	Elapsed time.Duration
}

// Failed returns the results that carry an error.
func (r CompileResult) Failed() []*driver.FileResult {
	var out []*driver.FileResult
	for _, f := range r.Files {
		if f != nil && f.Err != nil {
			out = append(out, f)
		}
	}
	return out
}

// Compile lowers every requested file, reporting progress to req.Progress.
// The returned error joins the per-file failures.
func Compile(ctx context.Context, req *CompileRequest) (CompileResult, error) {
	var result CompileResult
	if ctx == nil {
		ctx = context.Background()
	}
	if req == nil {
		return result, fmt.Errorf("missing compile request")
	}
	start := time.Now()
	emitQueued(req.Progress, req.Files)

	var mu sync.Mutex
	opts := req.Options
	inner := opts.Observer
	opts.Observer = func(ev driver.PhaseEvent) {
		if inner != nil {
			inner(ev)
		}
		stage := Stage(ev.Name)
		switch ev.Status {
		case driver.PhaseStart:
			emit(req.Progress, Event{File: ev.Path, Stage: stage, Status: StatusWorking})
		case driver.PhaseEnd, driver.PhaseFailed:
			mu.Lock()
			result.Timings.Add(stage, ev.Elapsed)
			mu.Unlock()
		}
	}

	files, err := driver.LowerFiles(ctx, req.Files, opts)
	result.Files = files
	for _, res := range files {
		if res == nil {
			continue
		}
		ev := Event{File: res.Path, Stage: StageLower, Status: StatusDone, Err: res.Err}
		switch {
		case res.Err != nil:
			ev.Status = StatusError
		case res.Cached:
			ev.Status = StatusCached
			result.Cached++
		}
		emit(req.Progress, ev)
	}
	result.Elapsed = time.Since(start)

	final := Event{Stage: StageVerify, Status: StatusDone, Err: err, Elapsed: result.Elapsed}
	if err != nil {
		final.Status = StatusError
	}
	emit(req.Progress, final)
	return result, err
}

func emitQueued(sink ProgressSink, files []string) {
	for _, file := range files {
		emit(sink, Event{File: file, Stage: StageLoad, Status: StatusQueued})
	}
}

func emit(sink ProgressSink, ev Event) {
	if sink == nil {
		return
	}
	sink.OnEvent(ev)
}
