package driver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"dtorgen/internal/decl"
	"dtorgen/internal/dtor"
	"dtorgen/internal/mir"
	"dtorgen/internal/observ"
	"dtorgen/internal/trace"
)

// ManifestName is the project manifest; it is never a declaration file.
const ManifestName = "dtorgen.toml"

// Options configures a lowering run.
type Options struct {
	// Jobs bounds concurrent files; zero selects GOMAXPROCS.
	Jobs int
	// Simplify runs CFG simplification on every emitted function.
	Simplify bool
	// Verify runs the ownership verifier after structural validation.
	Verify bool
	// Ownership annotates the printed module with ownership kinds.
	Ownership bool
	// Cache, when set, serves and stores printed modules by content hash.
	Cache    *DiskCache
	Observer PhaseObserver
	// Lowering overrides the collaborators used for every destructor.
	Lowering dtor.Options
}

// FuncSummary describes one emitted entry point.
type FuncSummary struct {
	Name          string
	Kind          string
	Blocks        int
	Instrs        int
	AutoGenerated bool
}

// FileResult is the outcome of lowering one declaration file. Program and
// Module are nil when the result was served from the cache.
type FileResult struct {
	Path    string
	Hash    Digest
	Program *decl.Program
	Module  *mir.Module
	Funcs   []FuncSummary
	Text    string
	Cached  bool
	Timing  observ.Report
	Err     error
}

// ListDeclFiles returns the sorted *.toml declaration files under dir,
// skipping the project manifest.
func ListDeclFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || d.Name() == ManifestName {
			return nil
		}
		if strings.HasSuffix(path, ".toml") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// LowerFiles lowers every file concurrently. Per-file failures are kept in
// FileResult.Err and joined into the returned error; cancellation stops
// files that have not started.
func LowerFiles(ctx context.Context, paths []string, opts Options) ([]*FileResult, error) {
	results := make([]*FileResult, len(paths))
	if len(paths) == 0 {
		return results, nil
	}
	jobs := opts.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}

	tracer := trace.FromContext(ctx)
	span := trace.Begin(tracer, trace.ScopeDriver, "lower_files", trace.CurrentSpan(ctx).SpanID).
		WithExtra("files", strconv.Itoa(len(paths))).
		WithExtra("jobs", strconv.Itoa(jobs))
	ctx = trace.WithSpanContext(ctx, trace.SpanContext{SpanID: span.ID()})

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(jobs, len(paths)))
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			// the index is unique per goroutine, no mutex needed
			results[i] = LowerFile(gctx, path, opts)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.End("canceled")
		return results, err
	}

	var errs []error
	for _, res := range results {
		if res != nil && res.Err != nil {
			errs = append(errs, res.Err)
		}
	}
	span.End(fmt.Sprintf("%d failed", len(errs)))
	return results, errors.Join(errs...)
}

type fileRun struct {
	opts  *Options
	res   *FileResult
	timer *observ.Timer
}

func (r *fileRun) notify(name string, status PhaseStatus, elapsed time.Duration) {
	if r.opts.Observer != nil {
		r.opts.Observer(PhaseEvent{Path: r.res.Path, Name: name, Status: status, Elapsed: elapsed})
	}
}

func (r *fileRun) phase(name string, fn func() error) error {
	r.notify(name, PhaseStart, 0)
	idx := r.timer.Begin(name)
	start := time.Now()
	err := fn()
	note := ""
	status := PhaseEnd
	if err != nil {
		note = "failed"
		status = PhaseFailed
	}
	r.timer.End(idx, note)
	r.notify(name, status, time.Since(start))
	return err
}

// LowerFile loads, lowers, checks and prints one declaration file. Internal
// invariant violations raised while lowering are reported as errors.
func LowerFile(ctx context.Context, path string, opts Options) (res *FileResult) {
	res = &FileResult{Path: path}
	run := &fileRun{opts: &opts, res: res, timer: observ.NewTimer()}

	tracer := trace.FromContext(ctx)
	span := trace.Begin(tracer, trace.ScopeDriver, "lower_file", trace.CurrentSpan(ctx).SpanID).WithExtra("path", path)
	ctx = trace.WithSpanContext(ctx, trace.SpanContext{SpanID: span.ID()})
	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("%s: internal error: %v", path, r)
		}
		res.Timing = run.timer.Report()
		detail := "ok"
		switch {
		case res.Err != nil:
			detail = "error"
		case res.Cached:
			detail = "cached"
		}
		span.End(detail)
	}()

	var data []byte
	var key Digest
	err := run.phase(PhaseLoad, func() error {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return err
		}
		res.Hash = HashContent(data)
		key = cacheKey(res.Hash, &opts)
		return nil
	})
	if err != nil {
		res.Err = err
		return res
	}

	if opts.Cache != nil {
		var payload DiskPayload
		hit, err := opts.Cache.Get(key, &payload)
		if err == nil && hit && payload.ContentHash == res.Hash {
			res.Cached = true
			res.Funcs = payload.Funcs
			res.Text = payload.Text
			return res
		}
	}

	err = run.phase(PhaseLower, func() error {
		prog, err := decl.Parse(data)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		m, err := dtor.New(prog, opts.Lowering).LowerProgram(ctx)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		res.Program, res.Module = prog, m
		return nil
	})
	if err != nil {
		res.Err = err
		return res
	}

	if opts.Simplify {
		_ = run.phase(PhaseSimplify, func() error {
			for _, f := range res.Module.Funcs {
				mir.SimplifyCFG(f)
			}
			return nil
		})
	}

	err = run.phase(PhaseVerify, func() error {
		if err := mir.Validate(res.Module, res.Program.Types); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if !opts.Verify {
			return nil
		}
		if err := mir.VerifyModuleOwnership(res.Module); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		return nil
	})
	if err != nil {
		res.Err = err
		return res
	}

	var buf bytes.Buffer
	if err := mir.DumpModule(&buf, res.Module, res.Program.Types, mir.DumpOptions{Ownership: opts.Ownership}); err != nil {
		res.Err = err
		return res
	}
	res.Text = buf.String()
	res.Funcs = summarize(res.Module)

	if opts.Cache != nil {
		// a failed store only costs the next run a re-lowering
		_ = run.phase(PhaseCache, func() error {
			return opts.Cache.Put(key, &DiskPayload{
				Schema:      diskCacheSchemaVersion,
				Path:        path,
				ContentHash: res.Hash,
				Funcs:       res.Funcs,
				Text:        res.Text,
			})
		})
	}
	return res
}

func summarize(m *mir.Module) []FuncSummary {
	funcs := m.Sorted()
	out := make([]FuncSummary, 0, len(funcs))
	for _, f := range funcs {
		s := FuncSummary{
			Name:          f.Name,
			Kind:          f.Kind.String(),
			Blocks:        len(f.Blocks),
			AutoGenerated: f.AutoGenerated,
		}
		for i := range f.Blocks {
			s.Instrs += len(f.Blocks[i].Instrs)
		}
		out = append(out, s)
	}
	return out
}
