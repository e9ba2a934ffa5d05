// Package target implements the Target Template Resolver (SPEC_FULL.md
// §4.2): expansion of the `%f`/`%%` markers in an unexpanded TargetSpec
// string against a task's first input, and the TargetsSpec container that
// may hold either one target or an ordered list of them.
package target

import (
	"errors"
	"fmt"
	"path"
	"strings"
	"unicode/utf8"
)

// Sentinel errors, comparable with errors.Is.
var (
	ErrNoInput                = errors.New("target spec references %f but the task has no input")
	ErrNoFileStem             = errors.New("input path has no file stem")
	ErrNonUnicodeInputPath    = errors.New("input path is not valid UTF-8")
	ErrMissingMarkerCharacter = errors.New("marker character missing at end of target spec")
	ErrInvalidMarkerCharacter = errors.New("invalid marker character")
)

// ResolveError names the TargetSpec text that failed to resolve,
// matching the file/line style errors elsewhere in this module.
type ResolveError struct {
	Spec string
	Err  error
}

func (e *ResolveError) Error() string { return fmt.Sprintf("target %q: %s", e.Spec, e.Err) }
func (e *ResolveError) Unwrap() error  { return e.Err }

// fragment is a literal run of characters, or a marker to be expanded at
// resolve time.
type fragment struct {
	literal string // valid when !isStem
	isStem  bool   // true for a %f marker
}

// Spec is a single unexpanded output-path template, pre-scanned into
// literal/marker fragments so Resolve is a single pass with no further
// parsing, mirroring the markers []usize precompute in targets_spec.rs.
type Spec struct {
	raw       string
	fragments []fragment
}

// Parse scans spec for `%%` and `%f` markers, failing fast on malformed
// marker syntax.
func Parse(spec string) (Spec, error) {
	var fragments []fragment
	var literal strings.Builder

	runes := []rune(spec)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		if c != '%' {
			literal.WriteRune(c)
			continue
		}
		i++
		if i >= len(runes) {
			return Spec{}, &ResolveError{Spec: spec, Err: ErrMissingMarkerCharacter}
		}
		switch runes[i] {
		case '%':
			literal.WriteRune('%')
		case 'f':
			if literal.Len() > 0 {
				fragments = append(fragments, fragment{literal: literal.String()})
				literal.Reset()
			}
			fragments = append(fragments, fragment{isStem: true})
		default:
			return Spec{}, &ResolveError{Spec: spec, Err: fmt.Errorf("%w: %q", ErrInvalidMarkerCharacter, runes[i])}
		}
	}
	if literal.Len() > 0 {
		fragments = append(fragments, fragment{literal: literal.String()})
	}

	return Spec{raw: spec, fragments: fragments}, nil
}

// MustParse is Parse, panicking on error — for spec strings known at
// compile time (tests, front-end literals already validated elsewhere).
func MustParse(spec string) Spec {
	s, err := Parse(spec)
	if err != nil {
		panic(err)
	}
	return s
}

func (s Spec) String() string { return s.raw }

func fileStem(input string) (string, error) {
	if !utf8.ValidString(input) {
		return "", ErrNonUnicodeInputPath
	}
	base := path.Base(input)
	if idx := strings.LastIndexByte(base, '.'); idx > 0 {
		base = base[:idx]
	}
	if base == "" {
		return "", ErrNoFileStem
	}
	return base, nil
}

// Resolve expands s against an optional input path, placing the result
// under prefix. A nil input is only valid when s contains no %f marker.
func (s Spec) Resolve(prefix string, input *string) (string, error) {
	var out strings.Builder
	for _, f := range s.fragments {
		if !f.isStem {
			out.WriteString(f.literal)
			continue
		}
		if input == nil {
			return "", &ResolveError{Spec: s.raw, Err: ErrNoInput}
		}
		stem, err := fileStem(*input)
		if err != nil {
			return "", &ResolveError{Spec: s.raw, Err: err}
		}
		out.WriteString(stem)
	}
	return path.Join(prefix, out.String()), nil
}

// Specs is either a single Spec or an ordered list of Specs — TargetsSpec
// in SPEC_FULL.md §3.
type Specs struct {
	single *Spec
	multi  []Spec
}

// Single wraps one Spec as a TargetsSpec.
func Single(s Spec) Specs { return Specs{single: &s} }

// Multi wraps an ordered list of Specs as a TargetsSpec.
func Multi(specs []Spec) Specs { return Specs{multi: specs} }

// Len reports how many concrete targets this TargetsSpec will resolve to.
func (s Specs) Len() int {
	if s.single != nil {
		return 1
	}
	return len(s.multi)
}

// At returns the i'th Spec.
func (s Specs) At(i int) Spec {
	if s.single != nil {
		if i != 0 {
			panic("target: index out of range for single TargetsSpec")
		}
		return *s.single
	}
	return s.multi[i]
}

// ResolveAll resolves every Spec in order.
func (s Specs) ResolveAll(prefix string, input *string) ([]string, error) {
	out := make([]string, 0, s.Len())
	for i := 0; i < s.Len(); i++ {
		resolved, err := s.At(i).Resolve(prefix, input)
		if err != nil {
			return nil, err
		}
		out = append(out, resolved)
	}
	return out, nil
}
