package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"dtorgen/internal/trace"
)

type uiMode string

const (
	uiModeAuto uiMode = "auto"
	uiModeOn   uiMode = "on"
	uiModeOff  uiMode = "off"
)

func readUIMode(value string) (uiMode, error) {
	switch mode := uiMode(strings.TrimSpace(strings.ToLower(value))); mode {
	case "":
		return uiModeAuto, nil
	case uiModeAuto, uiModeOn, uiModeOff:
		return mode, nil
	default:
		return "", fmt.Errorf("invalid --ui value %q (expected auto|on|off)", value)
	}
}

// uiSurface is the state of stderr, where the progress UI draws.
type uiSurface struct {
	stderrTTY bool
	quiet     bool
	// traceOnStderr is set when a trace stream already writes to stderr.
	traceOnStderr bool
}

func currentUISurface(cmd *cobra.Command) uiSurface {
	return uiSurface{
		stderrTTY:     isTerminal(os.Stderr),
		quiet:         quiet(cmd),
		traceOnStderr: trace.StreamsTo(trace.FromContext(cmd.Context()), os.Stderr),
	}
}

// allows decides whether the progress UI is drawn. --quiet overrides every
// mode; auto also needs a terminal that no trace stream is writing to.
func (m uiMode) allows(s uiSurface) bool {
	switch {
	case m == uiModeOff || s.quiet:
		return false
	case m == uiModeOn:
		return true
	default:
		return s.stderrTTY && !s.traceOnStderr
	}
}
