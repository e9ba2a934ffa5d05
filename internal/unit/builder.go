package unit

import (
	"github.com/gsrushton/asmbl/internal/envspec"
	"github.com/gsrushton/asmbl/internal/pathspec"
	"github.com/gsrushton/asmbl/internal/recipe"
	"github.com/gsrushton/asmbl/internal/target"
)

// Builder accumulates tasks, include directives, and sub-unit references
// for one Unit, relativising every path component of every argument
// before storage (SPEC_FULL.md §4.5).
type Builder struct {
	relativiser *pathspec.Relativiser
	base        []string
	unit        *Unit
}

// NewBuilder constructs a Builder for a Unit rooted at base, relative to
// context.
func NewBuilder(context, base []string) *Builder {
	return &Builder{
		relativiser: pathspec.NewRelativiser(context),
		base:        base,
		unit:        newUnit(),
	}
}

func (b *Builder) relativise(raw string) (string, error) {
	p, err := b.relativiser.Relativise(b.base, raw)
	if err != nil {
		return "", err
	}
	return p.String(), nil
}

func (b *Builder) relativisePrerequisite(p PrerequisiteSpec) (PrerequisiteSpec, error) {
	named, ok := p.(Named)
	if !ok {
		return p, nil
	}
	rel, err := b.relativise(named.Path)
	if err != nil {
		return nil, err
	}
	return Named{Path: rel, Optional: named.Optional}, nil
}

func (b *Builder) relativisePrerequisites(ps []PrerequisiteSpec) ([]PrerequisiteSpec, error) {
	out := make([]PrerequisiteSpec, len(ps))
	for i, p := range ps {
		rel, err := b.relativisePrerequisite(p)
		if err != nil {
			return nil, err
		}
		out[i] = rel
	}
	return out, nil
}

// AddTask relativises every target and Named prerequisite path, parses
// the target templates, and appends the task to the Unit, returning one
// TargetSpecHandle per target.
func (b *Builder) AddTask(
	targets []string,
	consumes, dependsOn, notBefore []PrerequisiteSpec,
	aggregate bool,
	quiet bool,
	env []envspec.Spec,
	rec recipe.Recipe,
) ([]TargetSpecHandle, error) {
	specs := make([]target.Spec, len(targets))
	for i, t := range targets {
		rel, err := b.relativise(t)
		if err != nil {
			return nil, err
		}
		spec, err := target.Parse(rel)
		if err != nil {
			return nil, err
		}
		specs[i] = spec
	}

	consumes, err := b.relativisePrerequisites(consumes)
	if err != nil {
		return nil, err
	}
	dependsOn, err = b.relativisePrerequisites(dependsOn)
	if err != nil {
		return nil, err
	}
	notBefore, err = b.relativisePrerequisites(notBefore)
	if err != nil {
		return nil, err
	}

	targetsSpec := target.Multi(specs)
	if len(specs) == 1 {
		targetsSpec = target.Single(specs[0])
	}

	return b.unit.addTask(targetsSpec, TaskSpec{
		Consumes:  consumes,
		DependsOn: dependsOn,
		NotBefore: notBefore,
		Aggregate: aggregate,
		Quiet:     quiet,
		Env:       env,
		Recipe:    rec,
	}), nil
}

// AddInclude forwards to the underlying Unit.
func (b *Builder) AddInclude(handle TargetSpecHandle) { b.unit.AddInclude(handle) }

// AddSubUnit relativises path and records it as a sub-unit reference.
func (b *Builder) AddSubUnit(path string) error {
	rel, err := b.relativise(path)
	if err != nil {
		return err
	}
	b.unit.AddSubUnitNamed(rel)
	return nil
}

// AddSubUnitHandle forwards to the underlying Unit (§C.1 supplement).
func (b *Builder) AddSubUnitHandle(handle TargetSpecHandle) { b.unit.AddSubUnitHandle(handle) }

// Unit returns the accumulated Unit, consuming the Builder.
func (b *Builder) Unit() *Unit { return b.unit }
