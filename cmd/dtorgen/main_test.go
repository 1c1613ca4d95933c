package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"dtorgen/internal/buildpipeline"
	"dtorgen/internal/driver"
	"dtorgen/internal/observ"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestLoadProjectManifestDefaults(t *testing.T) {
	manifest, ok, err := loadProjectManifest(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatalf("found a manifest in an empty directory")
	}
	if !manifest.Config.Lower.Simplify || !manifest.Config.Lower.Verify {
		t.Fatalf("defaults should simplify and verify: %+v", manifest.Config.Lower)
	}
}

func TestLoadProjectManifestWalksUp(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, driver.ManifestName), `
[lower]
simplify = false
jobs = 2

[cache]
enabled = true
dir = ".cache"
`)
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}

	manifest, ok, err := loadProjectManifest(nested)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatalf("manifest not found from %s", nested)
	}
	cfg := manifest.Config
	if cfg.Lower.Simplify || !cfg.Lower.Verify || cfg.Lower.Jobs != 2 {
		t.Fatalf("lower config %+v", cfg.Lower)
	}
	if want := filepath.Join(manifest.Root, ".cache"); cfg.Cache.Dir != want {
		t.Fatalf("cache dir %q, want %q", cfg.Cache.Dir, want)
	}
}

func TestLoadProjectConfigRejectsBadInput(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"unknown key", "[lower]\nfast = true\n", "unknown keys: lower.fast"},
		{"negative jobs", "[lower]\njobs = -1\n", "must not be negative"},
		{"syntax", "[lower\n", "failed to parse TOML"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), driver.ManifestName)
			writeFile(t, path, tt.content)
			_, err := loadProjectConfig(path)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error %v, want one containing %q", err, tt.want)
			}
		})
	}
}

func TestReadUIMode(t *testing.T) {
	tests := []struct {
		in      string
		want    uiMode
		wantErr bool
	}{
		{"", uiModeAuto, false},
		{"AUTO", uiModeAuto, false},
		{" on ", uiModeOn, false},
		{"off", uiModeOff, false},
		{"sometimes", "", true},
	}
	for _, tt := range tests {
		got, err := readUIMode(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("readUIMode(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestUIModeAllows(t *testing.T) {
	tty := uiSurface{stderrTTY: true}
	tests := []struct {
		mode    uiMode
		surface uiSurface
		want    bool
	}{
		{uiModeAuto, tty, true},
		{uiModeAuto, uiSurface{}, false},
		{uiModeAuto, uiSurface{stderrTTY: true, traceOnStderr: true}, false},
		{uiModeOn, uiSurface{traceOnStderr: true}, true},
		{uiModeOn, uiSurface{stderrTTY: true, quiet: true}, false},
		{uiModeOff, tty, false},
	}
	for _, tt := range tests {
		if got := tt.mode.allows(tt.surface); got != tt.want {
			t.Errorf("%s.allows(%+v) = %v, want %v", tt.mode, tt.surface, got, tt.want)
		}
	}
}

func TestCompileWithViewSurvivesEarlyExit(t *testing.T) {
	dir := t.TempDir()
	// more queued events than the progress buffer holds
	files := make([]string, progressBuffer*2)
	for i := range files {
		files[i] = filepath.Join(dir, fmt.Sprintf("missing-%03d.toml", i))
	}
	errNoTTY := errors.New("no tty")
	req := &buildpipeline.CompileRequest{Files: files, Options: driver.Options{Jobs: 4}}

	done := make(chan error, 1)
	var res buildpipeline.CompileResult
	go func() {
		var err error
		res, err = compileWithView(context.Background(), req, func(<-chan buildpipeline.Event) error {
			return errNoTTY
		})
		done <- err
	}()
	select {
	case err := <-done:
		if !errors.Is(err, errNoTTY) {
			t.Fatalf("err = %v, want the view error", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("compile blocked after the view exited")
	}
	if len(res.Files) != len(files) || len(res.Failed()) != len(files) {
		t.Fatalf("got %d results, %d failed", len(res.Files), len(res.Failed()))
	}
}

func TestResolveInputsExpandsDirectories(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, driver.ManifestName), "")
	writeFile(t, filepath.Join(root, "b.toml"), "")
	writeFile(t, filepath.Join(root, "sub", "a.toml"), "")
	writeFile(t, filepath.Join(root, "notes.txt"), "")

	got, err := resolveInputs(nil, &projectManifest{Root: root})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{filepath.Join(root, "b.toml"), filepath.Join(root, "sub", "a.toml")}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("inputs %v, want %v", got, want)
	}

	if _, err := resolveInputs([]string{filepath.Join(root, "sub", "missing.toml")}, nil); err == nil {
		t.Fatalf("missing file should fail")
	}
}

func TestWriteModulesHeadersOnlyForSeveralFiles(t *testing.T) {
	one := []*driver.FileResult{{Path: "a.toml", Text: "fn a\n"}}
	var buf bytes.Buffer
	writeModules(&buf, one)
	if buf.String() != "fn a\n" {
		t.Fatalf("single file output %q", buf.String())
	}

	buf.Reset()
	writeModules(&buf, append(one, &driver.FileResult{Path: "b.toml", Err: os.ErrNotExist}))
	if want := "// file: a.toml\nfn a\n"; buf.String() != want {
		t.Fatalf("output %q, want %q", buf.String(), want)
	}
}

func TestDescribeFuncs(t *testing.T) {
	funcs := []driver.FuncSummary{{Name: "A.deinit!destroyer"}, {Name: "A.deinit!deallocator", AutoGenerated: true}}
	if got := describeFuncs(funcs); got != "2 functions, 1 synthesized" {
		t.Fatalf("describeFuncs = %q", got)
	}
	if got := describeFuncs(funcs[:1]); got != "1 function" {
		t.Fatalf("describeFuncs = %q", got)
	}
}

func TestPrintStageTimings(t *testing.T) {
	res := buildpipeline.CompileResult{
		Files: []*driver.FileResult{
			{Path: "a.toml", Timing: observ.Report{TotalMS: 1.5}},
			{Path: "b.toml", Timing: observ.Report{TotalMS: 4}, Cached: true},
		},
		Cached:  1,
		Elapsed: 5 * time.Millisecond,
	}
	res.Timings.Add(buildpipeline.StageLower, 2*time.Millisecond)

	var buf bytes.Buffer
	printStageTimings(&buf, res)
	out := buf.String()
	for _, want := range []string{"lower         2.0 ms", "total         5.0 ms (2 files, 1 cached)", "slowest       4.0 ms b.toml"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "verify") {
		t.Errorf("printed a stage that never ran:\n%s", out)
	}
}
