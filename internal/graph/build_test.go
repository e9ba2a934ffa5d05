package graph

import (
	"errors"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/gsrushton/asmbl/internal/recipe"
	"github.com/gsrushton/asmbl/internal/unit"
)

func mustRecipe(t *testing.T, s string) recipe.Recipe {
	t.Helper()
	r, err := recipe.Parse(s)
	if err != nil {
		t.Fatalf("unexpected error parsing recipe: %v", err)
	}
	return r
}

func findTask(t *testing.T, tl *TaskList, target string) (TaskHandle, *Task) {
	t.Helper()
	for i, task := range tl.Tasks() {
		for _, tgt := range task.Targets {
			if tgt == target {
				return TaskHandle(i), &tl.Tasks()[i]
			}
		}
	}
	t.Fatalf("no task produces target %q", target)
	return 0, nil
}

func TestBuildHandleChainOrdering(t *testing.T) {
	b := unit.NewBuilder(nil, nil)

	srcHandles, err := b.AddTask([]string{"a.o"}, []unit.PrerequisiteSpec{unit.Named{Path: "a.c"}}, nil, nil, true, false, nil,
		mustRecipe(t, "cc -c $< -o $@"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = b.AddTask([]string{"a.out"}, []unit.PrerequisiteSpec{unit.Handle{Handle: srcHandles[0]}}, nil, nil, true, false, nil,
		mustRecipe(t, "ld $< -o $@"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tl, err := Build("", []UnitInput{{Unit: b.Unit()}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tl.Len() != 2 {
		t.Fatalf("got %d tasks, want 2", tl.Len())
	}

	objHandle, _ := findTask(t, tl, "a.o")
	binHandle, binTask := findTask(t, tl, "a.out")
	if objHandle >= binHandle {
		t.Errorf("a.o (handle %d) should precede a.out (handle %d)", objHandle, binHandle)
	}
	if len(binTask.Upstream) != 1 {
		t.Fatalf("got %d upstream prerequisites, want 1", len(binTask.Upstream))
	}
	if hp, ok := binTask.Upstream[0].(HandlePrerequisite); !ok || hp.Handle != objHandle {
		t.Errorf("a.out should depend on a.o's handle, got %#v", binTask.Upstream[0])
	}
}

func TestBuildNamedPrerequisiteResolvesToProducingTask(t *testing.T) {
	b := unit.NewBuilder(nil, nil)

	if _, err := b.AddTask([]string{"a.o"}, nil, nil, nil, true, false, nil, mustRecipe(t, "touch $@")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := b.AddTask([]string{"a.out"}, []unit.PrerequisiteSpec{unit.Named{Path: "a.o"}}, nil, nil, true, false, nil,
		mustRecipe(t, "ld $< -o $@")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tl, err := Build("", []UnitInput{{Unit: b.Unit()}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	objHandle, _ := findTask(t, tl, "a.o")
	_, binTask := findTask(t, tl, "a.out")
	if hp, ok := binTask.Upstream[0].(HandlePrerequisite); !ok || hp.Handle != objHandle {
		t.Errorf("a.out's Named(\"a.o\") prerequisite should resolve to a.o's producing task, got %#v", binTask.Upstream[0])
	}
}

func TestBuildCyclicTargetResolutionDetected(t *testing.T) {
	b := unit.NewBuilder(nil, nil)

	if _, err := b.AddTask([]string{"%f.a"},
		[]unit.PrerequisiteSpec{unit.Handle{Handle: unit.TargetSpecHandle{TaskIndex: 1, TargetIndex: 0}}},
		nil, nil, true, false, nil, mustRecipe(t, "touch $@")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := b.AddTask([]string{"%f.b"},
		[]unit.PrerequisiteSpec{unit.Handle{Handle: unit.TargetSpecHandle{TaskIndex: 0, TargetIndex: 0}}},
		nil, nil, true, false, nil, mustRecipe(t, "touch $@")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err := Build("", []UnitInput{{Unit: b.Unit()}})
	if !errors.Is(err, ErrCyclicTargetResolution) {
		t.Fatalf("got %v, want ErrCyclicTargetResolution", err)
	}
}

func TestBuildUnreachableCycleOmittedFromResult(t *testing.T) {
	b := unit.NewBuilder(nil, nil)

	h0, err := b.AddTask([]string{"good.o"}, nil, nil, nil, true, false, nil, mustRecipe(t, "touch $@"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Two tasks whose only upstream is each other: neither is a leaf, and
	// neither is reachable from one, so both are silently dropped.
	_, err = b.AddTask([]string{"x.o"}, []unit.PrerequisiteSpec{unit.Handle{Handle: unit.TargetSpecHandle{TaskIndex: 2, TargetIndex: 0}}},
		nil, nil, true, false, nil, mustRecipe(t, "touch $@"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = b.AddTask([]string{"y.o"}, []unit.PrerequisiteSpec{unit.Handle{Handle: unit.TargetSpecHandle{TaskIndex: 1, TargetIndex: 0}}},
		nil, nil, true, false, nil, mustRecipe(t, "touch $@"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tl, err := Build("", []UnitInput{{Unit: b.Unit()}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tl.Len() != 1 {
		t.Fatalf("got %d tasks, want 1 (only the reachable leaf)", tl.Len())
	}
	_ = h0
}

func TestBuildMergesIncludeIntoDependsOn(t *testing.T) {
	b := unit.NewBuilder(nil, nil)

	fragHandles, err := b.AddTask([]string{"a.d"}, nil, nil, nil, true, false, nil, mustRecipe(t, "touch $@"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b.AddInclude(fragHandles[0])

	if _, err := b.AddTask([]string{"a.o"}, []unit.PrerequisiteSpec{unit.Named{Path: "a.c"}}, nil, nil, true, false, nil,
		mustRecipe(t, "cc -c $< -o $@")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	opener := func(path string) (io.ReadCloser, error) {
		if path == "a.d" {
			return io.NopCloser(strings.NewReader("a.o: a.h\n")), nil
		}
		return nil, os.ErrNotExist
	}

	tl, err := Build("", []UnitInput{{Unit: b.Unit()}}, WithFileOpener(opener))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, objTask := findTask(t, tl, "a.o")
	var found bool
	for _, p := range objTask.Upstream {
		if np, ok := p.(NamedPrerequisite); ok && np.Path == "a.h" && np.Optional {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a.o's upstream to include optional a.h from the merged fragment, got %#v", objTask.Upstream)
	}
}

func TestBuildMissingIncludeFileIsNotAnError(t *testing.T) {
	b := unit.NewBuilder(nil, nil)

	fragHandles, err := b.AddTask([]string{"a.d"}, nil, nil, nil, true, false, nil, mustRecipe(t, "touch $@"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b.AddInclude(fragHandles[0])

	_, err = Build("", []UnitInput{{Unit: b.Unit()}}, WithFileOpener(func(string) (io.ReadCloser, error) {
		return nil, os.ErrNotExist
	}))
	if err != nil {
		t.Fatalf("unexpected error on a fresh checkout with no fragment yet: %v", err)
	}
}
