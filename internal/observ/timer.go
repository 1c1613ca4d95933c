// Package observ measures the phases of lowering one declaration file.
package observ

import "time"

// Timer records named phases in the order they begin. One Timer belongs to
// one file and is not safe for concurrent use.
type Timer struct {
	names  []string
	starts []time.Time
	durs   []time.Duration
	notes  []string
}

func NewTimer() *Timer { return &Timer{} }

// Begin opens a phase; pass the returned index to End.
func (t *Timer) Begin(name string) int {
	t.names = append(t.names, name)
	t.starts = append(t.starts, time.Now())
	t.durs = append(t.durs, 0)
	t.notes = append(t.notes, "")
	return len(t.names) - 1
}

// End closes phase idx. Unknown indexes are ignored.
func (t *Timer) End(idx int, note string) {
	if idx < 0 || idx >= len(t.names) {
		return
	}
	t.durs[idx] = time.Since(t.starts[idx])
	t.notes[idx] = note
}

// PhaseReport is one closed or open phase; open phases report zero.
type PhaseReport struct {
	Name       string  `json:"name"`
	DurationMS float64 `json:"duration_ms"`
	Note       string  `json:"note,omitempty"`
}

// Report is the timing summary attached to every lowered file.
type Report struct {
	TotalMS float64       `json:"total_ms"`
	Phases  []PhaseReport `json:"phases"`
}

// Phase returns the report of the first phase called name.
func (r Report) Phase(name string) (PhaseReport, bool) {
	for _, p := range r.Phases {
		if p.Name == name {
			return p, true
		}
	}
	return PhaseReport{}, false
}

func (t *Timer) Report() Report {
	var r Report
	if len(t.names) == 0 {
		return r
	}
	r.Phases = make([]PhaseReport, len(t.names))
	var total time.Duration
	for i, name := range t.names {
		total += t.durs[i]
		r.Phases[i] = PhaseReport{Name: name, DurationMS: millis(t.durs[i]), Note: t.notes[i]}
	}
	r.TotalMS = millis(total)
	return r
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
