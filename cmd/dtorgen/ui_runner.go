package main

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"dtorgen/internal/buildpipeline"
	"dtorgen/internal/ui"
)

// progressBuffer holds events the view has not consumed yet.
const progressBuffer = 256

type compileOutcome struct {
	result buildpipeline.CompileResult
	err    error
}

func runCompileWithUI(ctx context.Context, title string, req *buildpipeline.CompileRequest) (buildpipeline.CompileResult, error) {
	if req == nil {
		return buildpipeline.CompileResult{}, fmt.Errorf("missing compile request")
	}
	return compileWithView(ctx, req, func(events <-chan buildpipeline.Event) error {
		model := ui.NewProgressModel(title, req.Files, events)
		_, err := tea.NewProgram(model, tea.WithOutput(os.Stderr)).Run()
		return err
	})
}

// compileWithView runs the pipeline while view consumes its events. Once
// view returns, whatever it left unread is discarded so the pipeline never
// blocks on a view that has gone away.
func compileWithView(ctx context.Context, req *buildpipeline.CompileRequest, view func(<-chan buildpipeline.Event) error) (buildpipeline.CompileResult, error) {
	events := make(chan buildpipeline.Event, progressBuffer)
	outcomeCh := make(chan compileOutcome, 1)

	go func() {
		reqCopy := *req
		reqCopy.Progress = buildpipeline.ChannelSink{Ch: events}
		res, err := buildpipeline.Compile(ctx, &reqCopy)
		close(events)
		outcomeCh <- compileOutcome{result: res, err: err}
	}()

	viewErr := view(events)
	for range events {
	}
	outcome := <-outcomeCh
	if viewErr != nil {
		return outcome.result, viewErr
	}
	return outcome.result, outcome.err
}
