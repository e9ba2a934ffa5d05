// Package diagnostics prints build progress and errors the way
// friedelschoen-mk's mkPrintRecipe/mkPrintError do: one mutex-guarded
// writer, ANSI colour gated on terminal detection, recipes indented
// under their target's arrow.
package diagnostics

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
)

const (
	ansiDefault   = "\033[0m"
	ansiRed       = "\033[31m"
	ansiBlue      = "\033[34m"
	ansiBright    = "\033[1m"
	ansiUnderline = "\033[4m"
)

// DetectColor reports whether f is a terminal go-isatty can confirm,
// covering both native and Cygwin/MSYS terminals.
func DetectColor(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Printer serialises diagnostic output so concurrent recipe execution
// never interleaves two messages.
type Printer struct {
	out   io.Writer
	err   io.Writer
	color bool
	mu    sync.Mutex
}

// NewPrinter builds a Printer writing to out/err, coloured if color.
func NewPrinter(out, err io.Writer, color bool) *Printer {
	return &Printer{out: out, err: err, color: color}
}

// PrintRecipe announces a task's target before its recipe runs. When
// quiet, only an ellipsis follows the target instead of the full
// command line.
func (p *Printer) PrintRecipe(target, recipe string, quiet bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.color {
		fmt.Fprintf(p.out, "%s: ", target)
	} else {
		fmt.Fprintf(p.out, "%s%s%s → %s", ansiBlue+ansiBright+ansiUnderline, target, ansiDefault, ansiBlue)
	}

	if quiet {
		if !p.color {
			fmt.Fprintln(p.out, "...")
		} else {
			fmt.Fprintln(p.out, "…")
		}
	} else {
		printIndented(p.out, recipe, len(target)+3)
		if len(recipe) == 0 {
			io.WriteString(p.out, "\n")
		}
	}

	if p.color {
		io.WriteString(p.out, ansiDefault)
	}
}

// PrintError writes one error message, in red when colour is on.
func (p *Printer) PrintError(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.color {
		io.WriteString(p.err, ansiRed)
	}
	fmt.Fprintf(p.err, "error: %s\n", msg)
	if p.color {
		io.WriteString(p.err, ansiDefault)
	}
}

// printIndented writes s to out, indenting every line but the first by
// ind spaces so a multi-line recipe lines up under its target's arrow.
func printIndented(out io.Writer, s string, ind int) {
	indentation := strings.Repeat(" ", ind)
	reader := bufio.NewReader(strings.NewReader(s))
	first := true
	for {
		line, err := reader.ReadString('\n')
		if len(line) > 0 {
			if !first {
				io.WriteString(out, indentation)
			}
			io.WriteString(out, line)
		}
		if err != nil {
			break
		}
		first = false
	}
}
