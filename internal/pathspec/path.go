// Package pathspec relativises caller-supplied paths against a context
// root, the way the Unit Builder must before a path is ever stored on a
// Task. See SPEC_FULL.md §4.1.
package pathspec

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors, comparable with errors.Is.
var (
	ErrUnderflow        = errors.New("path addresses beneath the context root")
	ErrPrefixUnsupported = errors.New("drive or UNC path prefixes are unsupported")
)

// Error wraps one of the sentinels above with the offending path, the way
// friedelschoen-mk's parseError attaches a file/line to a syntax error.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Path is a normalised sequence of path components, relative to some
// context root unless Abs is set. It is the canonical, comparable form
// used as a map key throughout the engine.
type Path struct {
	Components []string
	Abs        bool
}

// String renders the path with forward slashes, regardless of host OS —
// the engine's own notion of a path is logical, not filesystem-native.
func (p Path) String() string {
	if len(p.Components) == 0 {
		if p.Abs {
			return "/"
		}
		return "."
	}
	prefix := ""
	if p.Abs {
		prefix = "/"
	}
	return prefix + strings.Join(p.Components, "/")
}

// splitComponents splits a logical path string into components, flagging
// drive letters (C:\...) and UNC prefixes (\\server\share) as unsupported
// the way the original relativiser.rs rejects path::Prefix components.
func splitComponents(s string) (components []string, abs bool, err error) {
	if len(s) >= 2 && s[1] == ':' && isASCIILetter(s[0]) {
		return nil, false, ErrPrefixUnsupported
	}
	if strings.HasPrefix(s, `\\`) {
		return nil, false, ErrPrefixUnsupported
	}

	norm := strings.ReplaceAll(s, `\`, `/`)
	abs = strings.HasPrefix(norm, "/")

	for _, part := range strings.Split(norm, "/") {
		if part == "" {
			continue
		}
		components = append(components, part)
	}
	return components, abs, nil
}

func isASCIILetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// normalise walks raw components dropping "." segments and popping on
// ".." segments, failing with ErrUnderflow if a pop empties the stack.
func normalise(raw []string) ([]string, error) {
	var out []string
	for _, c := range raw {
		switch c {
		case ".":
			// NOP
		case "..":
			if len(out) == 0 {
				return nil, ErrUnderflow
			}
			out = out[:len(out)-1]
		default:
			out = append(out, c)
		}
	}
	return out, nil
}

// Relativiser rebases paths against a fixed context root.
type Relativiser struct {
	context []string
}

// NewRelativiser builds a Relativiser against the given context root,
// itself given as normalised absolute components.
func NewRelativiser(context []string) *Relativiser {
	return &Relativiser{context: context}
}

// Context returns the component slice the relativiser was built with.
func (r *Relativiser) Context() []string {
	return r.context
}

// Relativise rebases input against base (if input is not itself
// absolute) and re-expresses the result relative to the context root,
// per SPEC_FULL.md §4.1.
func (r *Relativiser) Relativise(base []string, input string) (Path, error) {
	rawComponents, abs, err := splitComponents(input)
	if err != nil {
		return Path{}, &Error{Path: input, Err: err}
	}

	var raw []string
	if abs {
		raw = rawComponents
	} else {
		raw = append(append([]string{}, base...), rawComponents...)
	}

	normalised, err := normalise(raw)
	if err != nil {
		return Path{}, &Error{Path: input, Err: err}
	}

	shared := 0
	for shared < len(normalised) && shared < len(r.context) && normalised[shared] == r.context[shared] {
		shared++
	}

	var out []string
	for i := shared; i < len(r.context); i++ {
		out = append(out, "..")
	}
	out = append(out, normalised[shared:]...)

	return Path{Components: out}, nil
}
