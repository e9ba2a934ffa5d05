package luafe

import (
	"strings"
	"testing"

	"github.com/gsrushton/asmbl/internal/graph"
	"github.com/gsrushton/asmbl/internal/unit"
)

func build(t *testing.T, script string) *graph.TaskList {
	t.Helper()
	b := unit.NewBuilder(nil, nil)
	if err := (FrontEnd{}).Parse([]byte(script), b); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tl, err := graph.Build("", []graph.UnitInput{{Unit: b.Unit()}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return tl
}

func findTarget(tl *graph.TaskList, target string) *graph.Task {
	for i := range tl.Tasks() {
		task := tl.Task(graph.TaskHandle(i))
		for _, tg := range task.Targets {
			if tg == target {
				return task
			}
		}
	}
	return nil
}

func TestTaskStringTarget(t *testing.T) {
	tl := build(t, `task{ target = "a.o", consumes = {"a.c"}, run = "cc -c $< -o $@" }`)
	if findTarget(tl, "a.o") == nil {
		t.Fatal("expected a task producing a.o")
	}
}

func TestTaskTableTargetsAndRun(t *testing.T) {
	tl := build(t, `task{ targets = {"a.o", "a.d"}, consumes = {"a.c"}, run = {"cc", "-c", "$<", "-o", "$@"} }`)
	if findTarget(tl, "a.o") == nil || findTarget(tl, "a.d") == nil {
		t.Fatal("expected both declared targets")
	}
}

func TestTaskChainedViaReturnedHandle(t *testing.T) {
	tl := build(t, strings.Join([]string{
		`local obj = task{ target = "a.o", consumes = {"a.c"}, run = "cc -c $< -o $@" }`,
		`task{ target = "a.out", consumes = {obj}, run = "ld $< -o $@" }`,
	}, "\n"))

	obj := findTarget(tl, "a.o")
	out := findTarget(tl, "a.out")
	if obj == nil || out == nil {
		t.Fatal("expected both tasks")
	}
	if len(out.Upstream) != 1 {
		t.Fatalf("got %d upstream prerequisites for a.out, want 1", len(out.Upstream))
	}
	if _, ok := out.Upstream[0].(graph.HandlePrerequisite); !ok {
		t.Errorf("expected a.out's upstream to be a handle reference to a.o, got %#v", out.Upstream[0])
	}
}

func TestTaskQuietAndShell(t *testing.T) {
	tl := build(t, `task{ target = "a.o", consumes = {"a.c"}, run = "cc -c $< -o $@", quiet = true, shell = {"bash", "-c"} }`)
	task := findTarget(tl, "a.o")
	if task == nil {
		t.Fatal("expected a task producing a.o")
	}
	if !task.Quiet {
		t.Error("expected the task to be quiet")
	}
}

func TestSubUnitDirective(t *testing.T) {
	b := unit.NewBuilder(nil, nil)
	if err := (FrontEnd{}).Parse([]byte(`sub_unit("sub/asmbl.lua")`), b); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestIncludeDirective(t *testing.T) {
	b := unit.NewBuilder(nil, nil)
	script := strings.Join([]string{
		`local dep = task{ target = "a.d", consumes = {"a.c"}, run = "cc -MM $< -o $@" }`,
		`include(dep)`,
	}, "\n")
	if err := (FrontEnd{}).Parse([]byte(script), b); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestTaskMissingRunIsAnError(t *testing.T) {
	b := unit.NewBuilder(nil, nil)
	err := (FrontEnd{}).Parse([]byte(`task{ target = "a.o", consumes = {"a.c"} }`), b)
	if err == nil {
		t.Fatal("expected an error for a task with no run")
	}
}
