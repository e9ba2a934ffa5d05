// Package graph implements the Task Graph Builder and Staleness Evaluator
// (SPEC_FULL.md §4.6, §4.7): flattening every Unit into one flat task
// list, resolving prerequisites to internal handles or external files,
// deriving reverse edges, topologically ordering the result, and walking
// that order to find which tasks are out of date.
package graph

import (
	"github.com/gsrushton/asmbl/internal/envspec"
	"github.com/gsrushton/asmbl/internal/recipe"
)

// TaskHandle is a small integer index into a TaskList, cheap to copy and
// trivially serialisable (SPEC_FULL.md §9 design notes).
type TaskHandle int

// Prerequisite is a task's resolved upstream dependency: either another
// task (by handle) or an external file.
type Prerequisite interface {
	isPrerequisite()
}

// NamedPrerequisite is an external file, optionally tolerant of being
// absent.
type NamedPrerequisite struct {
	Path     string
	Optional bool
}

func (NamedPrerequisite) isPrerequisite() {}

// HandlePrerequisite is another task within the same TaskList.
type HandlePrerequisite struct {
	Handle TaskHandle
}

func (HandlePrerequisite) isPrerequisite() {}

// Task is one post-fusion, runtime task: concrete targets and inputs, its
// resolved upstream/downstream edges, its environment, and its recipe.
type Task struct {
	Targets    []string
	Inputs     []string
	Upstream   []Prerequisite
	Downstream []TaskHandle
	Quiet      bool
	Env        []envspec.Spec
	Recipe     recipe.Recipe
}

// Prepare renders the task's recipe into a process invocation.
func (t *Task) Prepare() (recipe.Invocation, error) {
	return t.Recipe.Prepare(t.Targets, t.Inputs, t.Env)
}

// TaskList is an ordered vector of Tasks such that for every edge u -> d,
// u appears before d. Unreachable (cyclic) tasks are omitted silently.
type TaskList struct {
	tasks []Task
}

// Len reports how many tasks are in the list.
func (l *TaskList) Len() int { return len(l.tasks) }

// Task returns the task at handle.
func (l *TaskList) Task(h TaskHandle) *Task { return &l.tasks[h] }

// Tasks returns every task, in topological (build) order.
func (l *TaskList) Tasks() []Task { return l.tasks }
