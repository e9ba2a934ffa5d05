// Package recipe implements the Recipe Compiler (SPEC_FULL.md §4.3): an
// argument-list parser producing a template of literal fragments and
// variable references, and a renderer that resolves that template against
// concrete target/input paths and an environment into a prepared process
// invocation.
package recipe

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/gsrushton/asmbl/internal/envspec"
)

// Sentinel errors, comparable with errors.Is.
var (
	ErrNotEnoughArgs         = errors.New("recipe must contain at least one argument")
	ErrNoSuchCmd             = errors.New("command not found")
	ErrInputIndexOutOfRange  = errors.New("input index out of range")
	ErrTargetIndexOutOfRange = errors.New("target index out of range")
)

// UnrecognisedBindingError names the unresolved $name reference.
type UnrecognisedBindingError struct {
	Name string
}

func (e *UnrecognisedBindingError) Error() string {
	return fmt.Sprintf("unrecognised binding %q", e.Name)
}

// Recipe is the parsed template of command-line arguments: an ordered
// sequence of Elements, with ElemBreak marking the boundary between
// arguments. Shell, when set, overrides argv[0] resolution: the
// rendered arguments become trailing arguments to Shell instead of
// being split into an executable and its own arguments (SPEC_FULL.md
// §C.3 — friedelschoen-mk's "S" rule attribute / defaultShell).
type Recipe struct {
	elements []Element
	Shell    []string
}

// New builds a Recipe from an already-tokenised argument list (as the
// scripted front-end supplies when `run` is a Lua table of strings).
func New(args []string) (Recipe, error) {
	if len(args) == 0 {
		return Recipe{}, ErrNotEnoughArgs
	}

	var elements []Element
	for _, arg := range args {
		parsed, err := parseElements(arg)
		if err != nil {
			return Recipe{}, err
		}
		elements = append(elements, parsed...)
		elements = append(elements, Element{Kind: ElemBreak})
	}
	return Recipe{elements: elements}, nil
}

// Parse tokenises a single recipe string (as the scripted front-end
// supplies when `run` is one string) and builds a Recipe from it.
func Parse(s string) (Recipe, error) {
	args, err := lexArgs(s)
	if err != nil {
		return Recipe{}, err
	}
	return New(args)
}

// WithShell returns a copy of r that runs under the given shell
// invocation instead of resolving argv[0] as a direct executable.
func (r Recipe) WithShell(shell []string) Recipe {
	r.Shell = shell
	return r
}

// Invocation is the prepared process invocation the core hands back to
// its caller: the resolved executable, its remaining arguments, and an
// environment built exclusively from the task's EnvSpec list.
type Invocation struct {
	Path string
	Args []string
	Env  []string
}

// Prepare renders the Recipe against concrete targets, inputs, and an
// environment spec list, per SPEC_FULL.md §4.3's render stage.
func (r Recipe) Prepare(targets, inputs []string, env []envspec.Spec) (Invocation, error) {
	var args []string
	var current strings.Builder

	flush := func() {
		args = append(args, current.String())
		current.Reset()
	}

	for _, el := range r.elements {
		switch el.Kind {
		case ElemBreak:
			flush()
		case ElemLiteral:
			current.WriteString(el.Literal)
		case ElemVariable:
			switch el.Var.Kind {
			case VarTargets:
				current.WriteString(strings.Join(targets, " "))
			case VarTarget:
				if el.Var.Index >= len(targets) {
					return Invocation{}, fmt.Errorf("%w: %d", ErrTargetIndexOutOfRange, el.Var.Index)
				}
				current.WriteString(targets[el.Var.Index])
			case VarInputs:
				current.WriteString(strings.Join(inputs, " "))
			case VarInput:
				if el.Var.Index >= len(inputs) {
					return Invocation{}, fmt.Errorf("%w: %d", ErrInputIndexOutOfRange, el.Var.Index)
				}
				current.WriteString(inputs[el.Var.Index])
			case VarNamed:
				return Invocation{}, &UnrecognisedBindingError{Name: el.Var.Name}
			}
		}
	}
	anyNonEmpty := false
	for _, a := range args {
		if a != "" {
			anyNonEmpty = true
			break
		}
	}
	if !anyNonEmpty {
		return Invocation{}, ErrNotEnoughArgs
	}

	if len(r.Shell) > 0 {
		resolvedPath, err := resolveCommand(r.Shell[0])
		if err != nil {
			return Invocation{}, err
		}
		return Invocation{
			Path: resolvedPath,
			Args: append(append([]string{}, r.Shell[1:]...), args...),
			Env:  renderEnv(env),
		}, nil
	}

	cmdName := args[0]
	resolvedPath, err := resolveCommand(cmdName)
	if err != nil {
		return Invocation{}, err
	}

	return Invocation{
		Path: resolvedPath,
		Args: args[1:],
		Env:  renderEnv(env),
	}, nil
}

func resolveCommand(name string) (string, error) {
	if info, err := os.Stat(name); err == nil && !info.IsDir() {
		return name, nil
	}
	resolved, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrNoSuchCmd, name)
	}
	return resolved, nil
}

// renderEnv builds the process environment exclusively from env: an
// Inherit entry copies the named variable from the current process
// environment if set, dropping it otherwise; a Define entry sets it
// literally.
func renderEnv(env []envspec.Spec) []string {
	var out []string
	for _, e := range env {
		switch v := e.Value.(type) {
		case envspec.Inherit:
			if val, ok := os.LookupEnv(e.Name); ok {
				out = append(out, e.Name+"="+val)
			}
		case envspec.Define:
			out = append(out, e.Name+"="+v.Value)
		}
	}
	return out
}
