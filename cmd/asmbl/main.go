// Command asmbl is the CLI entry point (SPEC_FULL.md §6, §A.3): it
// gathers every Unit reachable from a context directory, builds the
// task graph, finds what is out of date, and executes prepared
// commands, printing progress and a full error cause chain the way
// friedelschoen-mk's mk.go does.
package main

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/sanity-io/litter"
	"github.com/spf13/pflag"

	"github.com/gsrushton/asmbl/frontend/luafe"
	"github.com/gsrushton/asmbl/frontend/makefe"
	"github.com/gsrushton/asmbl/internal/diagnostics"
	"github.com/gsrushton/asmbl/internal/engine"
	"github.com/gsrushton/asmbl/internal/graph"
)

func main() {
	var (
		context  string
		target   string
		rootFile string
		dryRun   bool
		quiet    bool
		color    string
		dumpPlan bool
	)

	pflag.StringVarP(&context, "context", "c", ".", "project root to build from")
	pflag.StringVarP(&target, "target", "t", "", "output prefix directory, relative to context")
	pflag.StringVarP(&rootFile, "file", "f", "", "explicit root unit file, overriding asmbl.<ext> discovery")
	pflag.BoolVarP(&dryRun, "dry-run", "n", false, "print prepared commands without executing them")
	pflag.BoolVarP(&quiet, "quiet", "q", false, "don't print recipes before executing them")
	pflag.StringVar(&color, "color", "auto", "colourise output: auto, always, or never")
	pflag.BoolVar(&dumpPlan, "dump-plan", false, "print the resolved task graph and exit")
	pflag.Parse()

	useColor, err := resolveColor(color)
	if err != nil {
		fatal(diagnostics.NewPrinter(os.Stdout, os.Stderr, false), err)
	}
	printer := diagnostics.NewPrinter(os.Stdout, os.Stderr, useColor)

	if err := os.Chdir(context); err != nil {
		fatal(printer, fmt.Errorf("changing directory to %q: %w", context, err))
	}

	e := engine.New()
	e.Register(makefe.FrontEnd{})
	e.Register(luafe.FrontEnd{})

	var units []graph.UnitInput
	if rootFile != "" {
		units, err = e.GatherUnitsFrom(".", rootFile)
	} else {
		units, err = e.GatherUnits(".")
	}
	if err != nil {
		fatal(printer, err)
	}

	tl, err := graph.Build(target, units)
	if err != nil {
		fatal(printer, err)
	}

	if dumpPlan {
		litter.Dump(tl.Tasks())
		return
	}

	stale, err := tl.OutOfDate()
	if err != nil {
		fatal(printer, err)
	}

	for _, s := range stale {
		inv, err := s.Task.Prepare()
		if err != nil {
			fatal(printer, fmt.Errorf("%s: %w", primaryTarget(s.Task), err))
		}

		printer.PrintRecipe(primaryTarget(s.Task), strings.Join(append([]string{inv.Path}, inv.Args...), " "), quiet || s.Task.Quiet)

		if dryRun {
			continue
		}

		cmd := exec.Command(inv.Path, inv.Args...)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		cmd.Env = inv.Env
		if err := cmd.Run(); err != nil {
			fatal(printer, fmt.Errorf("%s: %w", primaryTarget(s.Task), err))
		}
	}
}

func primaryTarget(t *graph.Task) string {
	if len(t.Targets) == 0 {
		return "<phony>"
	}
	return t.Targets[0]
}

func resolveColor(mode string) (bool, error) {
	switch mode {
	case "always":
		return true, nil
	case "never":
		return false, nil
	case "auto":
		return diagnostics.DetectColor(os.Stdout), nil
	default:
		return false, fmt.Errorf("--color: must be auto, always, or never, got %q", mode)
	}
}

// fatal prints err and exits non-zero (spec.md §7: the caller surfaces
// the cause chain textually and exits non-zero). Every error type in
// this module already renders its wrapped cause inline via %w/%s, so
// err.Error() alone is the full chain; walking errors.Unwrap here too
// would print each inner cause a second time.
func fatal(p *diagnostics.Printer, err error) {
	p.PrintError(err.Error())
	os.Exit(1)
}
