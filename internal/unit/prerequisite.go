package unit

// TargetSpecHandle is an intra-Unit reference to one target produced by a
// task added earlier in the same Unit (SPEC_FULL.md §3).
type TargetSpecHandle struct {
	TaskIndex   int
	TargetIndex int
}

// PrerequisiteSpec is a tagged variant: a file named by path, or a handle
// to another task's target within the same Unit.
type PrerequisiteSpec interface {
	isPrerequisiteSpec()
}

// Named references a file by path. Optional means an absent file does
// not abort staleness evaluation.
type Named struct {
	Path     string
	Optional bool
}

func (Named) isPrerequisiteSpec() {}

// Handle references a target produced earlier in the same Unit.
type Handle struct {
	Handle TargetSpecHandle
}

func (Handle) isPrerequisiteSpec() {}
