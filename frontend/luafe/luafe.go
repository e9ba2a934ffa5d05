// Package luafe implements the scripted Unit interface (SPEC_FULL.md
// §6): a FrontEnd that executes a Lua script exposing `task{}`,
// `sub_unit()`, and `include()` as globals, built on gopher-lua in
// place of the original implementation's rlua binding.
package luafe

import (
	"errors"
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/gsrushton/asmbl/internal/envspec"
	"github.com/gsrushton/asmbl/internal/recipe"
	"github.com/gsrushton/asmbl/internal/unit"
)

// FrontEnd parses a Lua script into a Unit. The zero value is ready to
// use.
type FrontEnd struct{}

// Extension is the file extension this front-end probes for and
// recognises as a named sub-unit.
func (FrontEnd) Extension() string { return "lua" }

// ScriptError wraps the underlying Lua runtime error, preserving it as
// the cause for errors.Unwrap (mirroring the original's ScriptError ->
// rlua::Error chain).
type ScriptError struct {
	Err error
}

func (e *ScriptError) Error() string { return fmt.Sprintf("script error: %s", e.Err) }
func (e *ScriptError) Unwrap() error  { return e.Err }

const handleMeta = "asmbl.TargetSpecHandle"

func pushHandle(L *lua.LState, h unit.TargetSpecHandle) *lua.LUserData {
	ud := L.NewUserData()
	ud.Value = h
	L.SetMetatable(ud, L.GetTypeMetatable(handleMeta))
	return ud
}

func asHandle(lv lua.LValue) (unit.TargetSpecHandle, bool) {
	ud, ok := lv.(*lua.LUserData)
	if !ok {
		return unit.TargetSpecHandle{}, false
	}
	h, ok := ud.Value.(unit.TargetSpecHandle)
	return h, ok
}

// Parse executes content as a Lua script against a fresh interpreter,
// registering task/sub_unit/include globals bound to b.
func (FrontEnd) Parse(content []byte, b *unit.Builder) error {
	L := lua.NewState()
	defer L.Close()

	L.NewTypeMetatable(handleMeta)

	L.SetGlobal("task", L.NewFunction(taskFn(b)))
	L.SetGlobal("sub_unit", L.NewFunction(subUnitFn(b)))
	L.SetGlobal("include", L.NewFunction(includeFn(b)))

	if err := L.DoString(string(content)); err != nil {
		return &ScriptError{Err: err}
	}
	return nil
}

func taskFn(b *unit.Builder) lua.LGFunction {
	return func(L *lua.LState) int {
		args := L.CheckTable(1)

		targets, err := extractTargets(args)
		if err != nil {
			L.RaiseError("%s", err)
		}
		consumes, err := extractPrerequisites(args, "consumes")
		if err != nil {
			L.RaiseError("%s", err)
		}
		dependsOn, err := extractPrerequisites(args, "depends_on")
		if err != nil {
			L.RaiseError("%s", err)
		}
		notBefore, err := extractPrerequisites(args, "not_before")
		if err != nil {
			L.RaiseError("%s", err)
		}
		env, err := extractEnv(args)
		if err != nil {
			L.RaiseError("%s", err)
		}
		rec, err := extractRecipe(args)
		if err != nil {
			L.RaiseError("%s", err)
		}
		shell, err := extractStringList(args, "shell")
		if err != nil {
			L.RaiseError("%s", err)
		}
		if len(shell) > 0 {
			rec = rec.WithShell(shell)
		}

		aggregate := boolField(args, "aggregate", true)
		quiet := boolField(args, "quiet", false)

		handles, err := b.AddTask(targets, consumes, dependsOn, notBefore, aggregate, quiet, env, rec)
		if err != nil {
			L.RaiseError("%s", err)
		}

		for _, h := range handles {
			L.Push(pushHandle(L, h))
		}
		return len(handles)
	}
}

func subUnitFn(b *unit.Builder) lua.LGFunction {
	return func(L *lua.LState) int {
		arg := L.CheckAny(1)
		if h, ok := asHandle(arg); ok {
			b.AddSubUnitHandle(h)
			return 0
		}
		path, ok := arg.(lua.LString)
		if !ok {
			L.RaiseError("sub_unit: argument must be a path string or a handle returned from task()")
		}
		if err := b.AddSubUnit(string(path)); err != nil {
			L.RaiseError("%s", err)
		}
		return 0
	}
}

func includeFn(b *unit.Builder) lua.LGFunction {
	return func(L *lua.LState) int {
		h, ok := asHandle(L.CheckAny(1))
		if !ok {
			L.RaiseError("include: argument must be a handle returned from task()")
		}
		b.AddInclude(h)
		return 0
	}
}

// errMissingRun is raised when a task table has no usable `run` field.
var errMissingRun = errors.New("task must set `run` to a string or a sequence of strings")

func extractTargets(args *lua.LTable) ([]string, error) {
	lv := args.RawGetString("targets")
	if lv == lua.LNil {
		lv = args.RawGetString("target")
	}
	switch v := lv.(type) {
	case lua.LString:
		return []string{string(v)}, nil
	case *lua.LTable:
		return tableStrings(v)
	default:
		return nil, errors.New("task must set `target` or `targets` to a string or a sequence of strings")
	}
}

func extractStringList(args *lua.LTable, key string) ([]string, error) {
	lv := args.RawGetString(key)
	if lv == lua.LNil {
		return nil, nil
	}
	t, ok := lv.(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("task.%s must be a sequence of strings", key)
	}
	return tableStrings(t)
}

func tableStrings(t *lua.LTable) ([]string, error) {
	n := t.Len()
	out := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		s, ok := t.RawGetInt(i).(lua.LString)
		if !ok {
			return nil, fmt.Errorf("element %d must be a string", i)
		}
		out = append(out, string(s))
	}
	return out, nil
}

func extractPrerequisites(args *lua.LTable, key string) ([]unit.PrerequisiteSpec, error) {
	lv := args.RawGetString(key)
	if lv == lua.LNil {
		return nil, nil
	}
	t, ok := lv.(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("task.%s must be a sequence of paths or handles", key)
	}

	n := t.Len()
	out := make([]unit.PrerequisiteSpec, 0, n)
	for i := 1; i <= n; i++ {
		v := t.RawGetInt(i)
		if h, ok := asHandle(v); ok {
			out = append(out, unit.Handle{Handle: h})
			continue
		}
		s, ok := v.(lua.LString)
		if !ok {
			return nil, fmt.Errorf("task.%s[%d] must be a path string or a handle returned from task()", key, i)
		}
		out = append(out, unit.Named{Path: string(s)})
	}
	return out, nil
}

func extractEnv(args *lua.LTable) ([]envspec.Spec, error) {
	lv := args.RawGetString("env")
	if lv == lua.LNil {
		return nil, nil
	}
	t, ok := lv.(*lua.LTable)
	if !ok {
		return nil, errors.New("task.env must be a table")
	}

	var out []envspec.Spec
	var convErr error
	t.ForEach(func(key, value lua.LValue) {
		if convErr != nil {
			return
		}
		val, ok := value.(lua.LString)
		if !ok {
			convErr = errors.New("task.env values must be strings")
			return
		}
		switch k := key.(type) {
		case lua.LNumber:
			out = append(out, envspec.NewInherit(string(val)))
		case lua.LString:
			out = append(out, envspec.NewDefine(string(k), string(val)))
		default:
			convErr = errors.New("task.env keys must be strings or numbers")
		}
	})
	return out, convErr
}

func extractRecipe(args *lua.LTable) (recipe.Recipe, error) {
	lv := args.RawGetString("run")
	switch v := lv.(type) {
	case lua.LString:
		return recipe.Parse(string(v))
	case *lua.LTable:
		strs, err := tableStrings(v)
		if err != nil {
			return recipe.Recipe{}, err
		}
		return recipe.New(strs)
	default:
		return recipe.Recipe{}, errMissingRun
	}
}

func boolField(args *lua.LTable, key string, def bool) bool {
	lv := args.RawGetString(key)
	b, ok := lv.(lua.LBool)
	if !ok {
		return def
	}
	return bool(b)
}
