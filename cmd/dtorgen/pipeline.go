package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"dtorgen/internal/buildpipeline"
	"dtorgen/internal/driver"
)

const cacheApp = "dtorgen"

func addLowerFlags(cmd *cobra.Command) {
	cmd.Flags().Int("jobs", 0, "max parallel files (0=auto)")
	cmd.Flags().Bool("simplify", true, "simplify the control flow of emitted functions")
	cmd.Flags().Bool("verify", true, "run the ownership verifier")
	cmd.Flags().Bool("cache", false, "serve unchanged files from the disk cache")
	cmd.Flags().String("cache-dir", "", "disk cache directory (default $XDG_CACHE_HOME/dtorgen)")
	cmd.Flags().Bool("rebuild", false, "drop every cached module before lowering")
}

// resolveInputs expands files and directories into declaration files. With
// no arguments it lowers the manifest root, or the working directory.
func resolveInputs(args []string, manifest *projectManifest) ([]string, error) {
	if len(args) == 0 {
		root := "."
		if manifest != nil && manifest.Root != "" {
			root = manifest.Root
		}
		args = []string{root}
	}
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %q: %w", arg, err)
		}
		if !info.IsDir() {
			files = append(files, filepath.Clean(arg))
			continue
		}
		found, err := driver.ListDeclFiles(arg)
		if err != nil {
			return nil, err
		}
		files = append(files, found...)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no declaration files found")
	}
	return files, nil
}

// lowerOptions merges the manifest with the flags the user set explicitly.
func lowerOptions(cmd *cobra.Command, manifest *projectManifest) (driver.Options, error) {
	cfg := manifest.Config
	opts := driver.Options{
		Jobs:      cfg.Lower.Jobs,
		Simplify:  cfg.Lower.Simplify,
		Verify:    cfg.Lower.Verify,
		Ownership: cfg.Lower.Ownership,
	}
	flags := cmd.Flags()
	var err error
	if flags.Changed("jobs") {
		if opts.Jobs, err = flags.GetInt("jobs"); err != nil {
			return opts, err
		}
	}
	if flags.Changed("simplify") {
		if opts.Simplify, err = flags.GetBool("simplify"); err != nil {
			return opts, err
		}
	}
	if flags.Changed("verify") {
		if opts.Verify, err = flags.GetBool("verify"); err != nil {
			return opts, err
		}
	}
	if flags.Lookup("ownership") != nil && flags.Changed("ownership") {
		if opts.Ownership, err = flags.GetBool("ownership"); err != nil {
			return opts, err
		}
	}

	useCache := cfg.Cache.Enabled
	if flags.Changed("cache") {
		if useCache, err = flags.GetBool("cache"); err != nil {
			return opts, err
		}
	}
	cacheDir := cfg.Cache.Dir
	if flags.Changed("cache-dir") {
		if cacheDir, err = flags.GetString("cache-dir"); err != nil {
			return opts, err
		}
	}
	if useCache {
		cache, err := driver.OpenDiskCache(cacheApp, cacheDir)
		if err != nil {
			return opts, fmt.Errorf("failed to open disk cache: %w", err)
		}
		rebuild, err := flags.GetBool("rebuild")
		if err != nil {
			return opts, err
		}
		if rebuild {
			if err := cache.DropAll(); err != nil {
				return opts, fmt.Errorf("failed to clear disk cache: %w", err)
			}
		}
		opts.Cache = cache
	}
	return opts, nil
}

// runPipeline lowers files with the progress UI when enabled, then prints
// stage timings if --timings was given.
func runPipeline(cmd *cobra.Command, title string, files []string, opts driver.Options) (buildpipeline.CompileResult, error) {
	uiValue, err := cmd.Root().PersistentFlags().GetString("ui")
	if err != nil {
		return buildpipeline.CompileResult{}, fmt.Errorf("failed to get ui flag: %w", err)
	}
	mode, err := readUIMode(uiValue)
	if err != nil {
		return buildpipeline.CompileResult{}, err
	}

	req := &buildpipeline.CompileRequest{Files: files, Options: opts}
	var res buildpipeline.CompileResult
	if mode.allows(currentUISurface(cmd)) {
		res, err = runCompileWithUI(cmd.Context(), title, req)
	} else {
		res, err = buildpipeline.Compile(cmd.Context(), req)
	}

	if timings, flagErr := cmd.Root().PersistentFlags().GetBool("timings"); flagErr == nil && timings {
		printStageTimings(cmd.ErrOrStderr(), res)
	}
	return res, err
}
