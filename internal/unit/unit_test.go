package unit

import (
	"testing"

	"github.com/gsrushton/asmbl/internal/recipe"
)

func mustRecipe(t *testing.T, s string) recipe.Recipe {
	t.Helper()
	r, err := recipe.Parse(s)
	if err != nil {
		t.Fatalf("unexpected error parsing recipe: %v", err)
	}
	return r
}

func TestAddTaskRelativisesPaths(t *testing.T) {
	b := NewBuilder([]string{"p"}, []string{"p"})

	handles, err := b.AddTask(
		[]string{"%f.o"},
		[]PrerequisiteSpec{Named{Path: "a.c"}},
		nil, nil, true, false, nil,
		mustRecipe(t, "cc -c $< -o $@"),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(handles) != 1 {
		t.Fatalf("got %d handles, want 1", len(handles))
	}

	tasks, _, _, _ := b.Unit().Decompose()
	if len(tasks) != 1 {
		t.Fatalf("got %d tasks, want 1", len(tasks))
	}
	named := tasks[0].Consumes[0].(Named)
	if named.Path != "a.c" {
		t.Errorf("got path %q, want %q", named.Path, "a.c")
	}
}

func TestFanOutDecomposition(t *testing.T) {
	b := NewBuilder([]string{"p"}, []string{"p"})

	_, err := b.AddTask(
		[]string{"%f.o"},
		[]PrerequisiteSpec{Named{Path: "a.c"}, Named{Path: "b.c"}},
		nil, nil, false, false, nil,
		mustRecipe(t, "cc -c $< -o $@"),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tasks, _, _, _ := b.Unit().Decompose()
	if len(tasks) != 2 {
		t.Fatalf("got %d tasks, want 2 (fan-out)", len(tasks))
	}
	for _, task := range tasks {
		if len(task.Consumes) != 1 {
			t.Errorf("fanned-out task should consume exactly one input, got %d", len(task.Consumes))
		}
	}
}

func TestHandleAfterFanOutPointsToCorrectPostDecomposeTask(t *testing.T) {
	b := NewBuilder([]string{"p"}, []string{"p"})

	_, err := b.AddTask(
		[]string{"a.o", "b.o"},
		[]PrerequisiteSpec{Named{Path: "a.c"}, Named{Path: "b.c"}},
		nil, nil, false, false, nil,
		mustRecipe(t, "cc -c $< -o $@"),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	h2, err := b.AddTask(
		[]string{"c.o"},
		[]PrerequisiteSpec{Named{Path: "c.c"}},
		nil, nil, true, false, nil,
		mustRecipe(t, "cc -c $< -o $@"),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	b.AddInclude(h2[0])

	tasks, includes, _, _ := b.Unit().Decompose()
	if len(tasks) != 3 {
		t.Fatalf("got %d tasks, want 3 (2 fanned from the first task, 1 from the second)", len(tasks))
	}

	// AddTask's handles are pre-decompose; Decompose remaps the include.
	h := includes[0]
	if h.TaskIndex != 2 {
		t.Fatalf("expected c.o's post-decompose task index to be 2, got %d", h.TaskIndex)
	}
	if got := tasks[h.TaskIndex].Targets.At(h.TargetIndex).String(); got != "c.o" {
		t.Errorf("handle for c.o resolves to task producing %q, want %q", got, "c.o")
	}
}

func TestAggregateTaskNotFannedOut(t *testing.T) {
	b := NewBuilder([]string{"p"}, []string{"p"})

	_, err := b.AddTask(
		[]string{"combined.o"},
		[]PrerequisiteSpec{Named{Path: "a.c"}, Named{Path: "b.c"}},
		nil, nil, true, false, nil,
		mustRecipe(t, "cc -c $< -o $@"),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tasks, _, _, _ := b.Unit().Decompose()
	if len(tasks) != 1 {
		t.Fatalf("got %d tasks, want 1 (aggregate)", len(tasks))
	}
	if len(tasks[0].Consumes) != 2 {
		t.Errorf("got %d consumes, want 2", len(tasks[0].Consumes))
	}
}
