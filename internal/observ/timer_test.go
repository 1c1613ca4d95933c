package observ

import "testing"

func TestTimerReportsPhasesInOrder(t *testing.T) {
	tm := NewTimer()
	load := tm.Begin("load")
	tm.End(load, "3 types")
	lower := tm.Begin("lower")
	tm.End(lower, "")
	tm.End(42, "ignored")
	tm.Begin("verify")

	report := tm.Report()
	if len(report.Phases) != 3 {
		t.Fatalf("phases: got %d, want 3", len(report.Phases))
	}
	if report.Phases[0].Name != "load" || report.Phases[0].Note != "3 types" {
		t.Errorf("first phase %+v", report.Phases[0])
	}
	if report.TotalMS < report.Phases[0].DurationMS {
		t.Errorf("total %.3f below a single phase %.3f", report.TotalMS, report.Phases[0].DurationMS)
	}
	if open, ok := report.Phase("verify"); !ok || open.DurationMS != 0 {
		t.Errorf("open phase %+v, %v", open, ok)
	}
	if _, ok := report.Phase("cache"); ok {
		t.Errorf("found a phase that never ran")
	}
	if NewTimer().Report().Phases != nil {
		t.Errorf("empty timer should report no phases")
	}
}
