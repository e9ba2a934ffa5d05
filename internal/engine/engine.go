// Package engine implements the Engine Façade (SPEC_FULL.md §4.8): a
// small registry of extension-keyed front-ends, root-Unit discovery by
// probing `asmbl.<ext>` in registration order, and recursive sub-unit
// gathering into the flat, children-before-parents UnitInput list the
// Task Graph Builder consumes.
package engine

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gsrushton/asmbl/internal/graph"
	"github.com/gsrushton/asmbl/internal/pathspec"
	"github.com/gsrushton/asmbl/internal/unit"
)

// FrontEnd turns one input file's content into a Unit via b.
type FrontEnd interface {
	// Extension is the file extension this front-end handles, without
	// the leading dot — e.g. "mk" or "lua".
	Extension() string
	Parse(content []byte, b *unit.Builder) error
}

// ErrNoRootUnit is returned when no registered front-end's
// `asmbl.<ext>` candidate exists in the context directory.
var ErrNoRootUnit = errors.New("no asmbl.<ext> root unit found for any registered front-end")

// NoFrontEndError names the file extension no front-end is registered
// for.
type NoFrontEndError struct {
	Extension string
}

func (e *NoFrontEndError) Error() string {
	return fmt.Sprintf("no front-end registered for extension %q", e.Extension)
}

// BadSubUnitError names the sub-unit reference that could not be
// resolved to a file to parse.
type BadSubUnitError struct {
	Path string
	Err  error
}

func (e *BadSubUnitError) Error() string { return fmt.Sprintf("sub-unit %q: %s", e.Path, e.Err) }
func (e *BadSubUnitError) Unwrap() error { return e.Err }

// ParseError names the unit file a front-end failed to parse.
type ParseError struct {
	File string
	Err  error
}

func (e *ParseError) Error() string { return fmt.Sprintf("%s: %s", e.File, e.Err) }
func (e *ParseError) Unwrap() error { return e.Err }

// Engine holds the registered front-ends and discovers/parses every
// Unit reachable from a context directory's root unit.
type Engine struct {
	order []FrontEnd
	byExt map[string]FrontEnd
}

// New builds an empty Engine.
func New() *Engine {
	return &Engine{byExt: make(map[string]FrontEnd)}
}

// Register adds fe to the registry. Root-unit probing tries front-ends
// in registration order; the first front-end registered for a given
// extension is the one used to resolve sub-units of that extension.
func (e *Engine) Register(fe FrontEnd) {
	e.order = append(e.order, fe)
	if _, exists := e.byExt[fe.Extension()]; !exists {
		e.byExt[fe.Extension()] = fe
	}
}

func splitLogical(p string) []string {
	if p == "" || p == "." {
		return nil
	}
	return strings.Split(p, "/")
}

func extensionOf(p string) string {
	ext := path.Ext(p)
	return strings.TrimPrefix(ext, ".")
}

// GatherUnits probes contextDir (a real filesystem directory) for a
// root unit, then recursively parses every reachable sub-unit,
// returning the flat list of UnitInputs the graph builder expects, in
// children-before-parents order.
func (e *Engine) GatherUnits(contextDir string) ([]graph.UnitInput, error) {
	abs, err := filepath.Abs(contextDir)
	if err != nil {
		return nil, err
	}
	contextComponents := splitLogical(filepath.ToSlash(abs))

	var rootPath string
	var rootFE FrontEnd
	for _, fe := range e.order {
		candidate := "asmbl." + fe.Extension()
		if _, statErr := os.Stat(filepath.Join(abs, candidate)); statErr == nil {
			rootPath = candidate
			rootFE = fe
			break
		}
	}
	if rootFE == nil {
		return nil, ErrNoRootUnit
	}

	g := &gatherer{
		contextRealDir:    abs,
		contextComponents: contextComponents,
		engine:            e,
		visited:           make(map[string]bool),
	}
	if err := g.gather(rootPath, rootFE); err != nil {
		return nil, err
	}
	return g.units, nil
}

// GatherUnitsFrom is GatherUnits with the root unit's path given
// explicitly (the CLI's `-f/--file` override) instead of discovered by
// probing `asmbl.<ext>`.
func (e *Engine) GatherUnitsFrom(contextDir, rootPath string) ([]graph.UnitInput, error) {
	abs, err := filepath.Abs(contextDir)
	if err != nil {
		return nil, err
	}
	contextComponents := splitLogical(filepath.ToSlash(abs))

	ext := extensionOf(rootPath)
	rootFE, ok := e.byExt[ext]
	if !ok {
		return nil, &NoFrontEndError{Extension: ext}
	}

	g := &gatherer{
		contextRealDir:    abs,
		contextComponents: contextComponents,
		engine:            e,
		visited:           make(map[string]bool),
	}
	if err := g.gather(rootPath, rootFE); err != nil {
		return nil, err
	}
	return g.units, nil
}

type gatherer struct {
	contextRealDir    string
	contextComponents []string
	engine            *Engine
	visited           map[string]bool
	units             []graph.UnitInput
}

func (g *gatherer) gather(relPath string, fe FrontEnd) error {
	if g.visited[relPath] {
		return nil
	}
	g.visited[relPath] = true

	data, err := os.ReadFile(filepath.Join(g.contextRealDir, filepath.FromSlash(relPath)))
	if err != nil {
		return &ParseError{File: relPath, Err: err}
	}

	base := splitLogical(path.Dir(relPath))
	absBase := append(append([]string{}, g.contextComponents...), base...)
	b := unit.NewBuilder(g.contextComponents, absBase)
	if err := fe.Parse(data, b); err != nil {
		return &ParseError{File: relPath, Err: err}
	}
	u := b.Unit()

	_, _, subUnitsNamed, subUnitsHandle := u.Decompose()

	rel := pathspec.NewRelativiser(g.contextComponents)
	for _, raw := range subUnitsNamed {
		// The Builder has already made raw context-relative, so it is
		// rebased against the context root, not the unit's own directory.
		p, err := rel.Relativise(g.contextComponents, raw)
		if err != nil {
			return &BadSubUnitError{Path: raw, Err: err}
		}
		subPath := p.String()

		ext := extensionOf(subPath)
		subFE, ok := g.engine.byExt[ext]
		if !ok {
			return &BadSubUnitError{Path: subPath, Err: &NoFrontEndError{Extension: ext}}
		}
		if err := g.gather(subPath, subFE); err != nil {
			return err
		}
	}

	for _, handle := range subUnitsHandle {
		spec := u.TargetSpecAt(handle)
		subPath, err := spec.Resolve("", nil)
		if err != nil {
			return &BadSubUnitError{Path: spec.String(), Err: err}
		}
		ext := extensionOf(subPath)
		subFE, ok := g.engine.byExt[ext]
		if !ok {
			return &BadSubUnitError{Path: subPath, Err: &NoFrontEndError{Extension: ext}}
		}
		if err := g.gather(subPath, subFE); err != nil {
			return err
		}
	}

	g.units = append(g.units, graph.UnitInput{BaseDir: base, Unit: u})
	return nil
}
