package graph

import (
	"io"
	"os"

	"github.com/gsrushton/asmbl/internal/envspec"
	"github.com/gsrushton/asmbl/internal/makefrag"
	"github.com/gsrushton/asmbl/internal/pathspec"
	"github.com/gsrushton/asmbl/internal/recipe"
	"github.com/gsrushton/asmbl/internal/target"
	"github.com/gsrushton/asmbl/internal/unit"
)

// UnitInput pairs one decomposable Unit with the context-relative
// directory it was built against, needed to relativise its includes'
// textual target/prerequisite idents back into canonical paths.
type UnitInput struct {
	BaseDir []string
	Unit    *unit.Unit
}

// Option configures Build.
type Option func(*config)

type config struct {
	open func(path string) (io.ReadCloser, error)
}

// WithFileOpener overrides how include targets are opened, for tests.
func WithFileOpener(open func(path string) (io.ReadCloser, error)) Option {
	return func(c *config) { c.open = open }
}

func defaultOpen(path string) (io.ReadCloser, error) { return os.Open(path) }

// flatTask is a DecomposedTask with every Handle-typed prerequisite
// rewritten from Unit-local to flat-task-list-global task indices.
type flatTask struct {
	targets   target.Specs
	consumes  []unit.PrerequisiteSpec
	dependsOn []unit.PrerequisiteSpec
	notBefore []unit.PrerequisiteSpec
	quiet     bool
	env       []envspec.Spec
	recipe    recipe.Recipe
}

// includeRef is a flattened include directive awaiting stage 4.
type includeRef struct {
	handle   unit.TargetSpecHandle
	unitBase []string
}

// Build runs the full six-stage Task Graph Builder (SPEC_FULL.md §4.6)
// over every Unit in units, resolving targets under targetPrefix (a
// path expressed in the same context-relative space as every Unit's
// paths — SPEC_FULL.md §4.2/§4.6 scenario S1) and returns the resulting
// TaskList in topological order.
func Build(targetPrefix string, units []UnitInput, opts ...Option) (*TaskList, error) {
	cfg := config{open: defaultOpen}
	for _, opt := range opts {
		opt(&cfg)
	}

	flat, includes := flatten(units)

	concreteTargets, err := resolveTargets(targetPrefix, flat)
	if err != nil {
		return nil, err
	}

	targetIndex := indexTargets(concreteTargets)

	if err := mergeIncludes(flat, includes, concreteTargets, targetIndex, cfg.open); err != nil {
		return nil, err
	}

	upstream, downstream, inputs := resolvePrerequisites(flat, concreteTargets, targetIndex)

	order := topologicalOrder(upstream, downstream)

	return assemble(flat, concreteTargets, upstream, downstream, inputs, order), nil
}

func flatten(units []UnitInput) ([]flatTask, []includeRef) {
	var flat []flatTask
	var includes []includeRef

	offset := 0
	for _, ui := range units {
		tasks, unitIncludes, _, _ := ui.Unit.Decompose()
		for _, t := range tasks {
			flat = append(flat, flatTask{
				targets:   t.Targets,
				consumes:  offsetPrereqs(t.Consumes, offset),
				dependsOn: offsetPrereqs(t.DependsOn, offset),
				notBefore: offsetPrereqs(t.NotBefore, offset),
				quiet:     t.Quiet,
				env:       t.Env,
				recipe:    t.Recipe,
			})
		}
		for _, h := range unitIncludes {
			includes = append(includes, includeRef{
				handle:   unit.TargetSpecHandle{TaskIndex: h.TaskIndex + offset, TargetIndex: h.TargetIndex},
				unitBase: ui.BaseDir,
			})
		}
		offset += len(tasks)
	}

	return flat, includes
}

func offsetPrereqs(ps []unit.PrerequisiteSpec, offset int) []unit.PrerequisiteSpec {
	if offset == 0 {
		return ps
	}
	out := make([]unit.PrerequisiteSpec, len(ps))
	for i, p := range ps {
		if h, ok := p.(unit.Handle); ok {
			out[i] = unit.Handle{Handle: unit.TargetSpecHandle{
				TaskIndex:   h.Handle.TaskIndex + offset,
				TargetIndex: h.Handle.TargetIndex,
			}}
			continue
		}
		out[i] = p
	}
	return out
}

// resolveTargets runs stage 2: each task's concrete target paths,
// resolved via memoized recursion because a %f marker may need the
// first consumed input, which may itself be another task's target.
func resolveTargets(targetPrefix string, flat []flatTask) ([][]string, error) {
	concrete := make([][]string, len(flat))
	resolving := make([]bool, len(flat))

	var resolve func(i int) ([]string, error)
	resolve = func(i int) ([]string, error) {
		if concrete[i] != nil {
			return concrete[i], nil
		}
		if resolving[i] {
			return nil, &BuildError{TaskIndex: i, Err: ErrCyclicTargetResolution}
		}
		resolving[i] = true
		defer func() { resolving[i] = false }()

		// A spec with no %f marker resolves without an input, so its
		// producer is not visited; a handle cycle among such tasks is
		// left for stage 6 to drop.
		if resolved, err := flat[i].targets.ResolveAll(targetPrefix, nil); err == nil {
			concrete[i] = resolved
			return resolved, nil
		}

		var firstInput *string
		if len(flat[i].consumes) > 0 {
			switch p := flat[i].consumes[0].(type) {
			case unit.Named:
				path := p.Path
				firstInput = &path
			case unit.Handle:
				producer, err := resolve(p.Handle.TaskIndex)
				if err != nil {
					return nil, err
				}
				if p.Handle.TargetIndex < 0 || p.Handle.TargetIndex >= len(producer) {
					return nil, &BuildError{TaskIndex: i, Err: ErrDanglingHandle}
				}
				firstInput = &producer[p.Handle.TargetIndex]
			}
		}

		resolved, err := flat[i].targets.ResolveAll(targetPrefix, firstInput)
		if err != nil {
			return nil, &BuildError{TaskIndex: i, Err: err}
		}
		concrete[i] = resolved
		return resolved, nil
	}

	for i := range flat {
		if _, err := resolve(i); err != nil {
			return nil, err
		}
	}
	return concrete, nil
}

type targetLoc struct {
	task  int
	index int
}

// indexTargets runs stage 3. Where two tasks resolve the same concrete
// path, the later task (in Unit/task declaration order) wins, matching
// the last-definition-wins policy of SPEC_FULL.md §9.
func indexTargets(concrete [][]string) map[string]targetLoc {
	index := make(map[string]targetLoc)
	for i, paths := range concrete {
		for j, p := range paths {
			index[p] = targetLoc{task: i, index: j}
		}
	}
	return index
}

// mergeIncludes runs stage 4: each include's produced file is parsed as
// a Makefile fragment, and every (target, prerequisite) pair whose
// target matches a known concrete target is appended to that task's
// DependsOn as an optional Named prerequisite. A missing include file is
// not an error — it is the ordinary state of a fresh checkout before the
// producing task has ever run.
func mergeIncludes(flat []flatTask, includes []includeRef, concrete [][]string, index map[string]targetLoc, open func(string) (io.ReadCloser, error)) error {
	for _, inc := range includes {
		if inc.handle.TaskIndex < 0 || inc.handle.TaskIndex >= len(concrete) {
			return &BuildError{TaskIndex: inc.handle.TaskIndex, Err: ErrDanglingHandle}
		}
		producerTargets := concrete[inc.handle.TaskIndex]
		if inc.handle.TargetIndex < 0 || inc.handle.TargetIndex >= len(producerTargets) {
			return &BuildError{TaskIndex: inc.handle.TaskIndex, Err: ErrDanglingHandle}
		}
		fragPath := producerTargets[inc.handle.TargetIndex]

		f, err := open(fragPath)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return &IncludeError{Path: fragPath, Err: err}
		}
		rules, err := makefrag.Parse(f)
		f.Close()
		if err != nil {
			return &IncludeError{Path: fragPath, Err: err}
		}

		rel := pathspec.NewRelativiser(nil)
		for _, pair := range makefrag.Pairs(rules) {
			relTarget, err := rel.Relativise(inc.unitBase, pair.Target)
			if err != nil {
				return &IncludeError{Path: fragPath, Err: err}
			}
			loc, ok := index[relTarget.String()]
			if !ok {
				continue
			}
			relPrereq, err := rel.Relativise(inc.unitBase, pair.Prerequisite)
			if err != nil {
				return &IncludeError{Path: fragPath, Err: err}
			}
			flat[loc.task].dependsOn = append(flat[loc.task].dependsOn, unit.Named{
				Path:     relPrereq.String(),
				Optional: true,
			})
		}
	}
	return nil
}

// resolvePrerequisites runs stage 5: every PrerequisiteSpec becomes a
// Prerequisite (Handle or Named), each task's consumed inputs become
// concrete paths for $< / $@ rendering, and reverse (downstream) edges
// are recorded alongside.
func resolvePrerequisites(flat []flatTask, concrete [][]string, index map[string]targetLoc) (upstream [][]Prerequisite, downstream [][]int, inputs [][]string) {
	upstream = make([][]Prerequisite, len(flat))
	downstream = make([][]int, len(flat))
	inputs = make([][]string, len(flat))

	resolveOne := func(p unit.PrerequisiteSpec) (Prerequisite, string) {
		switch v := p.(type) {
		case unit.Handle:
			return HandlePrerequisite{Handle: TaskHandle(v.Handle.TaskIndex)},
				concrete[v.Handle.TaskIndex][v.Handle.TargetIndex]
		case unit.Named:
			if loc, ok := index[v.Path]; ok {
				return HandlePrerequisite{Handle: TaskHandle(loc.task)}, concrete[loc.task][loc.index]
			}
			return NamedPrerequisite{Path: v.Path, Optional: v.Optional}, v.Path
		default:
			panic("graph: unknown PrerequisiteSpec variant")
		}
	}

	for s, t := range flat {
		var up []Prerequisite
		var in []string

		record := func(p Prerequisite) {
			up = append(up, p)
			if hp, ok := p.(HandlePrerequisite); ok {
				downstream[hp.Handle] = append(downstream[hp.Handle], s)
			}
		}

		for _, c := range t.consumes {
			p, path := resolveOne(c)
			record(p)
			in = append(in, path)
		}
		for _, d := range t.dependsOn {
			p, _ := resolveOne(d)
			record(p)
		}
		for _, nb := range t.notBefore {
			p, _ := resolveOne(nb)
			record(p)
		}

		upstream[s] = up
		inputs[s] = in
	}

	return upstream, downstream, inputs
}

// topologicalOrder runs stage 6: a BFS from every task with no Handle
// upstream (a "leaf"), propagating along downstream edges. Tasks never
// reached this way — cyclic, or dependent only on a cyclic producer —
// are silently omitted, per SPEC_FULL.md §9.
func topologicalOrder(upstream [][]Prerequisite, downstream [][]int) []int {
	placed := make([]bool, len(upstream))
	var order []int

	for i, ups := range upstream {
		leaf := true
		for _, p := range ups {
			if _, ok := p.(HandlePrerequisite); ok {
				leaf = false
				break
			}
		}
		if leaf {
			placed[i] = true
			order = append(order, i)
		}
	}

	for cursor := 0; cursor < len(order); cursor++ {
		for _, d := range downstream[order[cursor]] {
			if !placed[d] {
				placed[d] = true
				order = append(order, d)
			}
		}
	}

	return order
}

func assemble(flat []flatTask, concrete [][]string, upstream [][]Prerequisite, downstream [][]int, inputs [][]string, order []int) *TaskList {
	globalToFinal := make([]int, len(flat))
	for i := range globalToFinal {
		globalToFinal[i] = -1
	}
	for finalIdx, orig := range order {
		globalToFinal[orig] = finalIdx
	}

	tasks := make([]Task, 0, len(order))
	for _, orig := range order {
		var newUp []Prerequisite
		for _, p := range upstream[orig] {
			if hp, ok := p.(HandlePrerequisite); ok {
				newUp = append(newUp, HandlePrerequisite{Handle: TaskHandle(globalToFinal[int(hp.Handle)])})
				continue
			}
			newUp = append(newUp, p)
		}

		var newDown []TaskHandle
		for _, d := range downstream[orig] {
			if globalToFinal[d] != -1 {
				newDown = append(newDown, TaskHandle(globalToFinal[d]))
			}
		}

		tasks = append(tasks, Task{
			Targets:    concrete[orig],
			Inputs:     inputs[orig],
			Upstream:   newUp,
			Downstream: newDown,
			Quiet:      flat[orig].quiet,
			Env:        flat[orig].env,
			Recipe:     flat[orig].recipe,
		})
	}

	return &TaskList{tasks: tasks}
}
