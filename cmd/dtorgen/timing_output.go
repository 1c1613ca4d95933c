package main

import (
	"fmt"
	"io"
	"time"

	"dtorgen/internal/buildpipeline"
	"dtorgen/internal/driver"
)

var timedStages = []buildpipeline.Stage{
	buildpipeline.StageLoad,
	buildpipeline.StageLower,
	buildpipeline.StageSimplify,
	buildpipeline.StageVerify,
	buildpipeline.StageCache,
}

// printStageTimings writes the summed per-stage durations of a run.
func printStageTimings(out io.Writer, res buildpipeline.CompileResult) {
	if out == nil {
		return
	}
	for _, stage := range timedStages {
		if !res.Timings.Has(stage) {
			continue
		}
		fmt.Fprintf(out, "%-9s %7.1f ms\n", stage, toMillis(res.Timings.Duration(stage)))
	}
	fmt.Fprintf(out, "%-9s %7.1f ms (%d files, %d cached)\n", "total", toMillis(res.Elapsed), len(res.Files), res.Cached)
	if slow := slowestFile(res.Files); slow != nil && len(res.Files) > 1 {
		fmt.Fprintf(out, "%-9s %7.1f ms %s\n", "slowest", slow.Timing.TotalMS, slow.Path)
	}
}

func slowestFile(files []*driver.FileResult) *driver.FileResult {
	var slow *driver.FileResult
	for _, fr := range files {
		if fr != nil && (slow == nil || fr.Timing.TotalMS > slow.Timing.TotalMS) {
			slow = fr
		}
	}
	return slow
}

func toMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
