package driver

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

const boxDecl = `
[[type]]
name = "Box"
kind = "class"
  [[type.field]]
  name = "label"
  type = "String"
`

const fileDecl = `
[[type]]
name = "File"
kind = "struct"
copyable = false
  [[type.field]]
  name = "path"
  type = "String"
  [type.deinit]
  body = ["call close"]
`

func writeDecls(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, src := range files {
		p := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(src), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestListDeclFilesSkipsManifest(t *testing.T) {
	dir := writeDecls(t, map[string]string{
		"b.toml":      boxDecl,
		"a/file.toml": fileDecl,
		ManifestName:  "[lower]\n",
		"notes.txt":   "ignored",
	})
	files, err := ListDeclFiles(dir)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{filepath.Join(dir, "a", "file.toml"), filepath.Join(dir, "b.toml")}
	if strings.Join(files, ",") != strings.Join(want, ",") {
		t.Fatalf("files %v, want %v", files, want)
	}
}

func TestLowerFilesReportsPerFileResults(t *testing.T) {
	dir := writeDecls(t, map[string]string{
		"box.toml":    boxDecl,
		"file.toml":   fileDecl,
		"broken.toml": "[[type]]\nname = \"X\"\nkind = \"trait\"\n",
	})
	paths, err := ListDeclFiles(dir)
	if err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	phases := map[string][]string{}
	opts := Options{
		Jobs:     2,
		Simplify: true,
		Verify:   true,
		Observer: func(ev PhaseEvent) {
			if ev.Status == PhaseStart {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			phases[filepath.Base(ev.Path)] = append(phases[filepath.Base(ev.Path)], ev.Name)
		},
	}
	results, err := LowerFiles(context.Background(), paths, opts)
	if err == nil || !strings.Contains(err.Error(), "broken.toml") {
		t.Fatalf("expected the broken file to fail, got %v", err)
	}

	byName := map[string]*FileResult{}
	for _, res := range results {
		byName[filepath.Base(res.Path)] = res
	}
	if byName["broken.toml"].Err == nil {
		t.Errorf("broken.toml should carry its error")
	}
	box := byName["box.toml"]
	if box.Err != nil {
		t.Fatalf("box.toml: %v", box.Err)
	}
	if len(box.Funcs) != 2 || !strings.Contains(box.Text, "Box.deinit!destroyer") {
		t.Errorf("box.toml lowered to %+v", box.Funcs)
	}
	if box.Hash.IsZero() || len(box.Timing.Phases) == 0 {
		t.Errorf("box.toml missing hash or timings")
	}
	if got := strings.Join(phases["file.toml"], ","); got != "load,lower,simplify,verify" {
		t.Errorf("file.toml phases %s", got)
	}
	if got := strings.Join(phases["broken.toml"], ","); got != "load,lower" {
		t.Errorf("broken.toml phases %s", got)
	}
}

func TestLowerFileUsesDiskCache(t *testing.T) {
	dir := writeDecls(t, map[string]string{"box.toml": boxDecl})
	cache, err := OpenDiskCache("dtorgen", filepath.Join(t.TempDir(), "cache"))
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "box.toml")
	opts := Options{Verify: true, Cache: cache}

	first := LowerFile(context.Background(), path, opts)
	if first.Err != nil || first.Cached {
		t.Fatalf("first run: err=%v cached=%v", first.Err, first.Cached)
	}
	second := LowerFile(context.Background(), path, opts)
	if second.Err != nil || !second.Cached {
		t.Fatalf("second run should hit the cache: err=%v cached=%v", second.Err, second.Cached)
	}
	if second.Text != first.Text || len(second.Funcs) != len(first.Funcs) || second.Module != nil {
		t.Errorf("cached result differs from the lowered one")
	}

	opts.Ownership = true
	if annotated := LowerFile(context.Background(), path, opts); annotated.Cached {
		t.Errorf("different print options must not share a cache entry")
	}

	if err := cache.DropAll(); err != nil {
		t.Fatal(err)
	}
	opts.Ownership = false
	if again := LowerFile(context.Background(), path, opts); again.Cached {
		t.Errorf("dropped cache still served an entry")
	}
}

func TestLowerFilesHonorsCancellation(t *testing.T) {
	dir := writeDecls(t, map[string]string{"box.toml": boxDecl})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := LowerFiles(ctx, []string{filepath.Join(dir, "box.toml")}, Options{}); err == nil {
		t.Fatal("expected a cancellation error")
	}
}
