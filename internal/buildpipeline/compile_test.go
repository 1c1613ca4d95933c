package buildpipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"dtorgen/internal/driver"
)

func TestCompileReportsProgressAndTimings(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.toml")
	bad := filepath.Join(dir, "bad.toml")
	if err := os.WriteFile(good, []byte("[[type]]\nname = \"Box\"\nkind = \"class\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(bad, []byte("[[type]]\nname = \"Box\"\nkind = \"class\"\nsuperclass = \"Missing\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	sink := &RecordingSink{}
	res, err := Compile(context.Background(), &CompileRequest{
		Files:    []string{good, bad},
		Options:  driver.Options{Jobs: 1, Verify: true},
		Progress: sink,
	})
	if err == nil {
		t.Fatal("expected the bad file to fail")
	}
	if n := len(res.Failed()); n != 1 {
		t.Fatalf("failed files: got %d, want 1", n)
	}
	if !res.Timings.Has(StageLower) || !res.Timings.Has(StageLoad) {
		t.Errorf("missing stage timings")
	}

	final := map[string]Status{}
	queued := 0
	for _, ev := range sink.Events() {
		if ev.Status == StatusQueued {
			queued++
			continue
		}
		final[ev.File] = ev.Status
	}
	if queued != 2 {
		t.Errorf("queued events: got %d, want 2", queued)
	}
	if final[good] != StatusDone || final[bad] != StatusError || final[""] != StatusError {
		t.Errorf("final statuses %v", final)
	}
}

func TestCompileRejectsNilRequest(t *testing.T) {
	if _, err := Compile(context.Background(), nil); err == nil {
		t.Fatal("expected an error for a nil request")
	}
}
