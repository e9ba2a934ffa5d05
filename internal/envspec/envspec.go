// Package envspec defines EnvSpec (SPEC_FULL.md §3): a variable name
// plus either "inherit from the parent process environment" or "define
// this literal value", shared between the Unit data model and the
// Recipe Compiler's render stage.
package envspec

// Value is the inherit/define choice for one EnvSpec entry.
type Value interface {
	isEnvValue()
}

// Inherit copies the named variable from the parent process environment
// if it is currently set; otherwise it contributes nothing.
type Inherit struct{}

func (Inherit) isEnvValue() {}

// Define sets the named variable to a literal value.
type Define struct {
	Value string
}

func (Define) isEnvValue() {}

// Spec is one entry of a task's environment.
type Spec struct {
	Name  string
	Value Value
}

// NewInherit builds a Spec that copies name from the parent environment.
func NewInherit(name string) Spec {
	return Spec{Name: name, Value: Inherit{}}
}

// NewDefine builds a Spec that sets name to value literally.
func NewDefine(name, value string) Spec {
	return Spec{Name: name, Value: Define{Value: value}}
}
