package ui

import (
	"errors"
	"strings"
	"testing"
	"time"

	"dtorgen/internal/buildpipeline"
)

func TestProgressModelTracksFileStatus(t *testing.T) {
	events := make(chan buildpipeline.Event)
	m := NewProgressModel("lowering", []string{"a.toml", "b.toml", "c.toml"}, events).(*progressModel)
	clock := time.Unix(0, 0)
	m.now = func() time.Time { return clock }

	m.apply(buildpipeline.Event{File: "a.toml", Stage: buildpipeline.StageLower, Status: buildpipeline.StatusWorking})
	if got := m.rows[0].label(); got != "lowering" {
		t.Fatalf("label %q, want lowering", got)
	}
	if got, want := m.percent(), 0.3/3; got != want {
		t.Fatalf("percent %.3f, want %.3f", got, want)
	}

	clock = clock.Add(2 * time.Millisecond)
	m.apply(buildpipeline.Event{File: "a.toml", Stage: buildpipeline.StageLower, Status: buildpipeline.StatusDone})
	m.apply(buildpipeline.Event{File: "b.toml", Stage: buildpipeline.StageLower, Status: buildpipeline.StatusCached})
	m.apply(buildpipeline.Event{File: "c.toml", Stage: buildpipeline.StageLower, Status: buildpipeline.StatusError, Err: errors.New("c.toml: unknown type Widget")})
	m.apply(buildpipeline.Event{File: "unknown.toml", Status: buildpipeline.StatusError})
	if got := m.percent(); got != 1.0 {
		t.Errorf("percent %.2f, want 1", got)
	}
	if m.rows[0].elapsed != 2*time.Millisecond {
		t.Errorf("elapsed %v, want 2ms", m.rows[0].elapsed)
	}

	m.apply(buildpipeline.Event{Stage: buildpipeline.StageVerify, Status: buildpipeline.StatusError})
	view := m.View()
	for _, want := range []string{"done: lowering", "a.toml", "cached", "unknown type Widget", "1 lowered, 1 cached, 1 failed"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestTruncateUsesDisplayWidth(t *testing.T) {
	tests := []struct {
		in    string
		width int
		want  string
	}{
		{in: "short.toml", width: 20, want: "short.toml"},
		{in: "declarations/very/long/path.toml", width: 12, want: "declarati..."},
		{in: "日本語.toml", width: 9, want: "日本語..."},
		{in: "abcdef", width: 2, want: "ab"},
		{in: "abc", width: 0, want: "abc"},
	}
	for _, tc := range tests {
		if got := truncate(tc.in, tc.width); got != tc.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tc.in, tc.width, got, tc.want)
		}
	}
}
