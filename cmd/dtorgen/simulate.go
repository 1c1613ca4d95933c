package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"dtorgen/internal/decl"
	"dtorgen/internal/driver"
	"dtorgen/internal/dtor"
	"dtorgen/internal/trace"
	"dtorgen/internal/vm"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate FILE TYPE",
	Short: "Destroy a sample instance of TYPE and print the runtime effects",
	Long: `Simulate lowers FILE, builds a sample value of TYPE with every stored field
initialized, destroys it and prints the observed effects. With --chain the
value is the head of a linked list threaded through the type's
Optional<Self> field.`,
	Args: cobra.ExactArgs(2),
	RunE: runSimulate,
}

func init() {
	simulateCmd.Flags().Int("chain", 0, "build a chain of N instances linked through --link")
	simulateCmd.Flags().String("link", "", "field linking chain nodes (default: the single Optional<Self> field)")
	simulateCmd.Flags().Bool("remote", false, "allocate a distributed actor as a remote proxy")
	simulateCmd.Flags().String("executor", "", "executor current when the value is destroyed")
	simulateCmd.Flags().Int("max-depth", 0, "call depth limit (0=default)")
	simulateCmd.Flags().Bool("events", true, "print every recorded event")
}

type simulateOptions struct {
	chain    int
	link     string
	remote   bool
	executor string
	maxDepth int
	events   bool
}

func readSimulateOptions(cmd *cobra.Command) (simulateOptions, error) {
	var opts simulateOptions
	var err error
	flags := cmd.Flags()
	if opts.chain, err = flags.GetInt("chain"); err != nil {
		return opts, err
	}
	if opts.chain < 0 {
		return opts, fmt.Errorf("--chain must not be negative")
	}
	if opts.link, err = flags.GetString("link"); err != nil {
		return opts, err
	}
	if opts.remote, err = flags.GetBool("remote"); err != nil {
		return opts, err
	}
	if opts.executor, err = flags.GetString("executor"); err != nil {
		return opts, err
	}
	if opts.maxDepth, err = flags.GetInt("max-depth"); err != nil {
		return opts, err
	}
	if opts.events, err = flags.GetBool("events"); err != nil {
		return opts, err
	}
	return opts, nil
}

func runSimulate(cmd *cobra.Command, args []string) error {
	path, typeName := args[0], args[1]
	opts, err := readSimulateOptions(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	res := driver.LowerFile(ctx, path, driver.Options{Simplify: true, Verify: true})
	if res.Err != nil {
		return res.Err
	}
	n, ok := res.Program.Lookup(typeName)
	if !ok {
		return fmt.Errorf("%s: no type named %q", path, typeName)
	}

	machine := vm.New(res.Module, res.Program, vm.Options{
		MaxDepth:      opts.maxDepth,
		Tracer:        trace.FromContext(ctx),
		DiscardEvents: !opts.events,
	})
	if opts.executor != "" {
		machine.SetExecutor(opts.executor)
	}

	root, vmErr := buildSample(machine, res.Program, n, opts)
	if vmErr != nil {
		return fmt.Errorf("building %s: %s", typeName, vmErr.Format())
	}
	built := machine.Heap.Live()
	machine.ResetEvents()

	vmErr = machine.Destroy(root)
	if vmErr == nil {
		vmErr = machine.Drain()
	}

	out := cmd.OutOrStdout()
	if opts.events {
		writeEvents(out, machine.Events())
	}
	if vmErr != nil {
		fmt.Fprint(cmd.ErrOrStderr(), vmErr.Format())
		return fmt.Errorf("%s teardown failed: %s", typeName, vmErr.Code)
	}
	if !quiet(cmd) {
		fmt.Fprintf(out, "%s objects=%d live=%d max-depth=%d\n",
			okColor.Sprint("done"), built, machine.Heap.Live(), machine.MaxDepth())
	}
	if live := machine.Heap.Live(); live != 0 {
		return fmt.Errorf("%d objects still live after teardown", live)
	}
	return nil
}

// buildSample produces an owned sample of n. Classes are allocated and
// populated; with a chain each node owns the next through the link field.
func buildSample(machine *vm.VM, prog *decl.Program, n *decl.Nominal, opts simulateOptions) (vm.Value, *vm.VMError) {
	if !n.IsClass() {
		if opts.chain > 0 {
			return vm.Value{}, &vm.VMError{Code: vm.PanicTypeMismatch, Message: n.Name + " is not a class; --chain needs one"}
		}
		return machine.SampleValue(n.Name)
	}
	if opts.chain == 0 {
		obj, vmErr := machine.NewObject(n.Name, opts.remote)
		if vmErr != nil {
			return obj, vmErr
		}
		return obj, machine.Populate(obj)
	}

	link := opts.link
	if link == "" {
		f := dtor.FindRecursiveLink(prog.Types, n)
		if f == nil {
			return vm.Value{}, &vm.VMError{Code: vm.PanicTypeMismatch, Message: n.Name + " has no single Optional<Self> field; pass --link"}
		}
		link = f.Name
	}

	next := vm.None()
	var head vm.Value
	for range opts.chain {
		obj, vmErr := machine.NewObject(n.Name, opts.remote)
		if vmErr != nil {
			return obj, vmErr
		}
		if vmErr := machine.SetField(obj, link, next); vmErr != nil {
			return obj, vmErr
		}
		if vmErr := machine.Populate(obj); vmErr != nil {
			return obj, vmErr
		}
		head = obj
		next = vm.Some(obj)
	}
	return head, nil
}

var (
	enterColor = color.New(color.FgHiBlack)
	callColor  = color.New(color.FgCyan)
	freeColor  = color.New(color.FgYellow)
)

func writeEvents(out io.Writer, events []vm.Event) {
	for _, ev := range events {
		indent := strings.Repeat("  ", max(ev.Depth-1, 0))
		line := ev.String()
		switch ev.Kind {
		case vm.EventEnter:
			line = enterColor.Sprint(line)
		case vm.EventUserCall, vm.EventScheduled:
			line = callColor.Sprint(line)
		case vm.EventDealloc:
			line = freeColor.Sprint(line)
		}
		fmt.Fprintf(out, "%s%s\n", indent, line)
	}
}
