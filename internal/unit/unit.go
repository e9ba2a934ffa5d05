// Package unit implements the Unit Builder (SPEC_FULL.md §4.5): the
// builder-owned aggregate of tasks, include directives, and sub-unit
// references a front-end populates for one input file, with every path
// relativised against the context root as it is added.
package unit

import (
	"github.com/gsrushton/asmbl/internal/envspec"
	"github.com/gsrushton/asmbl/internal/recipe"
	"github.com/gsrushton/asmbl/internal/target"
)

// TaskSpec is one pre-fusion task declaration (SPEC_FULL.md §3). Quiet
// overrides the CLI's global -q flag for this one task, suppressing its
// recipe echo regardless (SPEC_FULL.md §C.2).
type TaskSpec struct {
	Consumes  []PrerequisiteSpec
	DependsOn []PrerequisiteSpec
	NotBefore []PrerequisiteSpec
	Aggregate bool
	Quiet     bool
	Env       []envspec.Spec
	Recipe    recipe.Recipe
}

type taskEntry struct {
	Targets target.Specs
	Spec    TaskSpec
}

// DecomposedTask is a TaskSpec after fan-out decomposition: aggregate is
// always true, and a non-aggregate multi-input task has been replaced by
// one DecomposedTask per input.
type DecomposedTask struct {
	Targets   target.Specs
	Consumes  []PrerequisiteSpec
	DependsOn []PrerequisiteSpec
	NotBefore []PrerequisiteSpec
	Quiet     bool
	Env       []envspec.Spec
	Recipe    recipe.Recipe
}

// Unit is the in-memory description produced by a front-end for one
// input file: tasks, includes, sub-units.
type Unit struct {
	tasks          []taskEntry
	includes       []TargetSpecHandle
	subUnitsNamed  []string
	subUnitsHandle []TargetSpecHandle
}

func newUnit() *Unit {
	return &Unit{}
}

func (u *Unit) addTask(targets target.Specs, spec TaskSpec) []TargetSpecHandle {
	taskIndex := len(u.tasks)
	u.tasks = append(u.tasks, taskEntry{Targets: targets, Spec: spec})

	handles := make([]TargetSpecHandle, targets.Len())
	for i := range handles {
		handles[i] = TargetSpecHandle{TaskIndex: taskIndex, TargetIndex: i}
	}
	return handles
}

// AddInclude marks the file produced by handle as a Makefile-style
// dependency fragment to be merged during graph building (§4.4).
func (u *Unit) AddInclude(handle TargetSpecHandle) {
	u.includes = append(u.includes, handle)
}

// AddSubUnitNamed includes another Unit file at path.
func (u *Unit) AddSubUnitNamed(path string) {
	u.subUnitsNamed = append(u.subUnitsNamed, path)
}

// AddSubUnitHandle includes another Unit file produced as the target of
// an earlier task — the supplemented SubUnitSpec::Target behavior from
// SPEC_FULL.md §C.1.
func (u *Unit) AddSubUnitHandle(handle TargetSpecHandle) {
	u.subUnitsHandle = append(u.subUnitsHandle, handle)
}

// TargetSpecAt returns the raw TargetSpec a handle refers to, for
// resolving sub_unit(handle)-style references before the Unit is fused
// into the graph.
func (u *Unit) TargetSpecAt(handle TargetSpecHandle) target.Spec {
	return u.tasks[handle.TaskIndex].Targets.At(handle.TargetIndex)
}

// Decompose flattens the Unit's tasks, applying fan-out (§4.5): a
// non-aggregate task with more than one consumed input becomes one task
// per input, sharing everything but Consumes and Targets (cloned, not
// re-parameterised — SPEC_FULL.md §9 design note 4).
//
// Fan-out shifts every task index at and after the fanned entry, so
// every Handle embedded in another task's Consumes/DependsOn/NotBefore,
// or in an include, is rewritten against a
// pre-decompose-index -> post-decompose-first-slot map before
// returning, keeping every Handle.TaskIndex valid in the decomposed
// task list the graph builder flattens (spec.md: "Every Handle
// variant, after fusion, points to a valid index in the TaskList"). A
// fanned task's clones all carry the same Targets, so its first slot
// always carries the handle's referenced target.
//
// subUnitsHandle is returned unremapped: it is resolved immediately via
// TargetSpecAt against the pre-decompose u.tasks, not against the
// decomposed list, so it must keep its original task index.
func (u *Unit) Decompose() (tasks []DecomposedTask, includes []TargetSpecHandle, subUnitsNamed []string, subUnitsHandle []TargetSpecHandle) {
	firstSlot := make([]int, len(u.tasks))
	for i, entry := range u.tasks {
		firstSlot[i] = len(tasks)
		spec := entry.Spec
		if !spec.Aggregate && len(spec.Consumes) > 1 {
			for _, consume := range spec.Consumes {
				tasks = append(tasks, DecomposedTask{
					Targets:   entry.Targets,
					Consumes:  []PrerequisiteSpec{consume},
					DependsOn: spec.DependsOn,
					NotBefore: spec.NotBefore,
					Quiet:     spec.Quiet,
					Env:       spec.Env,
					Recipe:    spec.Recipe,
				})
			}
			continue
		}
		tasks = append(tasks, DecomposedTask{
			Targets:   entry.Targets,
			Consumes:  spec.Consumes,
			DependsOn: spec.DependsOn,
			NotBefore: spec.NotBefore,
			Quiet:     spec.Quiet,
			Env:       spec.Env,
			Recipe:    spec.Recipe,
		})
	}

	for i := range tasks {
		tasks[i].Consumes = remapPrereqs(tasks[i].Consumes, firstSlot)
		tasks[i].DependsOn = remapPrereqs(tasks[i].DependsOn, firstSlot)
		tasks[i].NotBefore = remapPrereqs(tasks[i].NotBefore, firstSlot)
	}

	includes = make([]TargetSpecHandle, len(u.includes))
	for i, h := range u.includes {
		includes[i] = remapHandle(h, firstSlot)
	}

	return tasks, includes, u.subUnitsNamed, u.subUnitsHandle
}

func remapHandle(h TargetSpecHandle, firstSlot []int) TargetSpecHandle {
	return TargetSpecHandle{TaskIndex: firstSlot[h.TaskIndex], TargetIndex: h.TargetIndex}
}

func remapPrereqs(ps []PrerequisiteSpec, firstSlot []int) []PrerequisiteSpec {
	out := make([]PrerequisiteSpec, len(ps))
	for i, p := range ps {
		if h, ok := p.(Handle); ok {
			out[i] = Handle{Handle: remapHandle(h.Handle, firstSlot)}
			continue
		}
		out[i] = p
	}
	return out
}
