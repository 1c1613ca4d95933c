package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"dtorgen/internal/driver"
)

var lowerCmd = &cobra.Command{
	Use:   "lower [paths...]",
	Short: "Lower declared destructors and print the emitted functions",
	Long: `Lower reads declaration files (or directories of them) and prints the
destroyer, deallocator and related functions emitted for every type`,
	RunE: runLower,
}

func init() {
	addLowerFlags(lowerCmd)
	lowerCmd.Flags().Bool("ownership", false, "annotate printed values with ownership kinds")
	lowerCmd.Flags().StringP("out", "o", "", "write the printed module to a file instead of stdout")
}

func runLower(cmd *cobra.Command, args []string) error {
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

	res, runErr := runPipeline(cmd, "lowering", files, opts)
	if runErr != nil && res.Files == nil {
		return runErr
	}

	out := cmd.OutOrStdout()
	outPath, err := cmd.Flags().GetString("out")
	if err != nil {
		return fmt.Errorf("failed to get out flag: %w", err)
	}
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("failed to create %q: %w", outPath, err)
		}
		defer f.Close()
		out = f
	}

	writeModules(out, res.Files)
	for _, fr := range res.Files {
		if fr != nil && fr.Err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", fr.Err)
		}
	}
	if failed := len(res.Failed()); failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(res.Files))
	}
	return runErr
}

// writeModules prints every successfully lowered module. With more than one
// file each module is preceded by a header naming its source.
func writeModules(out io.Writer, files []*driver.FileResult) {
	multi := len(files) > 1
	for _, fr := range files {
		if fr == nil || fr.Err != nil {
			continue
		}
		if multi {
			fmt.Fprintf(out, "// file: %s\n", fr.Path)
		}
		io.WriteString(out, fr.Text)
	}
}
