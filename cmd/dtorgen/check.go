package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"dtorgen/internal/buildpipeline"
	"dtorgen/internal/driver"
)

var checkCmd = &cobra.Command{
	Use:   "check [paths...]",
	Short: "Lower and verify declaration files without printing modules",
	RunE:  runCheck,
}

func init() {
	addLowerFlags(checkCmd)
}

var (
	okColor   = color.New(color.FgGreen, color.Bold)
	failColor = color.New(color.FgRed, color.Bold)
)

func runCheck(cmd *cobra.Command, args []string) error {
	manifest, _, err := loadProjectManifest(".")
	if err != nil {
		return err
	}
	files, err := resolveInputs(args, manifest)
	if err != nil {
		return err
	}
	opts, err := lowerOptions(cmd, manifest)
	if err != nil {
		return err
	}
	opts.Verify = true

	res, runErr := runPipeline(cmd, "checking", files, opts)
	if runErr != nil && res.Files == nil {
		return runErr
	}
	if !quiet(cmd) {
		reportCheck(cmd.OutOrStdout(), res)
	}
	if failed := len(res.Failed()); failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(res.Files))
	}
	return runErr
}

func reportCheck(out io.Writer, res buildpipeline.CompileResult) {
	funcs := 0
	for _, fr := range res.Files {
		if fr == nil {
			continue
		}
		if fr.Err != nil {
			fmt.Fprintf(out, "%s %s\n  %v\n", failColor.Sprint("FAIL"), fr.Path, fr.Err)
			continue
		}
		funcs += len(fr.Funcs)
		fmt.Fprintf(out, "%s   %s (%s)\n", okColor.Sprint("ok"), fr.Path, describeFuncs(fr.Funcs))
	}
	fmt.Fprintf(out, "%d files, %d failed, %d functions\n", len(res.Files), len(res.Failed()), funcs)
}

// describeFuncs renders a count such as "2 functions, 1 synthesized".
func describeFuncs(funcs []driver.FuncSummary) string {
	auto := 0
	for _, f := range funcs {
		if f.AutoGenerated {
			auto++
		}
	}
	noun := "functions"
	if len(funcs) == 1 {
		noun = "function"
	}
	if auto == 0 {
		return fmt.Sprintf("%d %s", len(funcs), noun)
	}
	return fmt.Sprintf("%d %s, %d synthesized", len(funcs), noun, auto)
}
