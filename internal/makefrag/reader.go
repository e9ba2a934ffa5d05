// Package makefrag implements the Makefile-fragment Reader (SPEC_FULL.md
// §4.4): the classical `targets: prerequisites` grammar used both for
// dynamic-dependency ingestion (`include()`) and, via frontend/makefe,
// as a full front-end's rule syntax.
package makefrag

import (
	"fmt"
	"io"
	"strings"
)

// ParseError names the offending line.
type ParseError struct {
	Line int
	Text string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("makefile fragment line %d: missing ':' in %q", e.Line, e.Text)
}

// Rule is one `targets: prerequisites` line.
type Rule struct {
	Targets       []string
	Prerequisites []string
}

// Pair is one (target, prerequisite) cross-product entry.
type Pair struct {
	Target       string
	Prerequisite string
}

// Parse reads r as a sequence of line-continued rules, per the grammar:
//
//	rule  := idents ':' idents? NEWLINE
//	ident := any run of characters not in { ' ', '\t', '\\', '\n', ':' }
//
// A backslash immediately followed by a newline acts as whitespace,
// letting a rule span multiple physical lines.
func Parse(r io.Reader) ([]Rule, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	text := strings.ReplaceAll(string(data), "\\\r\n", " ")
	text = strings.ReplaceAll(text, "\\\n", " ")

	var rules []Rule
	for i, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		idx := strings.IndexByte(trimmed, ':')
		if idx == -1 {
			return nil, &ParseError{Line: i + 1, Text: trimmed}
		}

		targets := strings.Fields(trimmed[:idx])
		if len(targets) == 0 {
			return nil, &ParseError{Line: i + 1, Text: trimmed}
		}
		prereqs := strings.Fields(trimmed[idx+1:])

		rules = append(rules, Rule{Targets: targets, Prerequisites: prereqs})
	}
	return rules, nil
}

// Pairs cross-products each rule's targets with its prerequisites into a
// flat list, as the graph builder's include-merge stage consumes them.
func Pairs(rules []Rule) []Pair {
	var pairs []Pair
	for _, rule := range rules {
		for _, t := range rule.Targets {
			for _, p := range rule.Prerequisites {
				pairs = append(pairs, Pair{Target: t, Prerequisite: p})
			}
		}
	}
	return pairs
}
