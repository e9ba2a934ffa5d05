// Package makefe implements a front-end that treats a classic Makefile
// as a root or sub Unit directly (SPEC_FULL.md §D): every literal rule
// becomes one task, and a pattern rule one task per referenced
// prerequisite it matches, reusing internal/makefrag's `targets: prerequisites` grammar
// for each rule header and internal/recipe for each rule's shell body.
package makefe

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/gsrushton/asmbl/internal/makefrag"
	"github.com/gsrushton/asmbl/internal/recipe"
	"github.com/gsrushton/asmbl/internal/unit"
)

// FrontEnd parses a Makefile into a Unit. The zero value is ready to use.
type FrontEnd struct{}

// Extension names the file this front-end probes for at the root of a
// context and recognises as a named sub-unit (SPEC_FULL.md §D).
func (FrontEnd) Extension() string { return "mk" }

// rule is one header (targets/prerequisites) plus its recipe body, still
// holding raw, unexpanded text.
type rule struct {
	targets, prereqs []string
	recipeLines      []string
	line             int
}

func (r rule) isPattern() bool {
	return len(r.targets) == 1 && strings.Contains(r.targets[0], "%")
}

var varAssignRe = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)\s*=\s*(.*)$`)
var varRefRe = regexp.MustCompile(`\$\(([A-Za-z_][A-Za-z0-9_]*)\)|\$\{([A-Za-z_][A-Za-z0-9_]*)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

func expandVars(s string, vars map[string]string) string {
	return varRefRe.ReplaceAllStringFunc(s, func(m string) string {
		sub := varRefRe.FindStringSubmatch(m)
		for _, name := range sub[1:] {
			if name != "" {
				return vars[name]
			}
		}
		return ""
	})
}

// ParseError names the offending line within the Makefile text.
type ParseError struct {
	Line int
	Err  error
}

func (e *ParseError) Error() string { return fmt.Sprintf("makefile line %d: %s", e.Line, e.Err) }
func (e *ParseError) Unwrap() error  { return e.Err }

// Parse reads a complete Makefile, registering one task per literal rule,
// one task per referenced prerequisite a pattern rule applies to, and a
// sub-unit for each `include` line. There is no `sub_unit` directive.
func (FrontEnd) Parse(content []byte, b *unit.Builder) error {
	lines := strings.Split(strings.ReplaceAll(string(content), "\r\n", "\n"), "\n")

	vars := map[string]string{}
	var rules []rule

	for i := 0; i < len(lines); i++ {
		raw := lines[i]
		trimmed := strings.TrimSpace(raw)

		switch {
		case trimmed == "":
			continue

		case strings.HasPrefix(raw, "\t") || strings.HasPrefix(raw, " "):
			return &ParseError{Line: i + 1, Err: fmt.Errorf("recipe line with no preceding rule")}

		case strings.HasPrefix(trimmed, "include "):
			if err := b.AddSubUnit(strings.TrimSpace(strings.TrimPrefix(trimmed, "include "))); err != nil {
				return &ParseError{Line: i + 1, Err: err}
			}

		case varAssignRe.MatchString(trimmed) && !strings.Contains(trimmed[:strings.IndexByte(trimmed, '=')], ":"):
			m := varAssignRe.FindStringSubmatch(trimmed)
			vars[m[1]] = expandVars(strings.TrimSpace(m[2]), vars)

		default:
			r, next, err := parseRuleHeader(lines, i)
			if err != nil {
				return err
			}
			for j, t := range r.targets {
				r.targets[j] = expandVars(t, vars)
			}
			for j, p := range r.prereqs {
				r.prereqs[j] = expandVars(p, vars)
			}
			i = next
			rules = append(rules, r)
		}
	}

	return emit(rules, vars, b)
}

// parseRuleHeader joins the header's backslash-continued lines, hands
// the single logical line to makefrag.Parse for the actual
// `targets: prerequisites` grammar, then collects the following
// indented lines as its recipe body. It returns the rule and the index
// of the last line it consumed.
func parseRuleHeader(lines []string, start int) (rule, int, error) {
	var header strings.Builder
	i := start
	for {
		line := lines[i]
		if strings.HasSuffix(line, "\\") {
			header.WriteString(strings.TrimSuffix(line, "\\"))
			header.WriteByte(' ')
			i++
			if i >= len(lines) {
				return rule{}, 0, &ParseError{Line: start + 1, Err: fmt.Errorf("line continuation at end of file")}
			}
			continue
		}
		header.WriteString(line)
		break
	}

	parsed, err := makefrag.Parse(strings.NewReader(header.String()))
	if err != nil {
		return rule{}, 0, &ParseError{Line: start + 1, Err: err}
	}
	if len(parsed) == 0 {
		return rule{}, 0, &ParseError{Line: start + 1, Err: fmt.Errorf("rule header %q has no targets", strings.TrimSpace(header.String()))}
	}

	r := rule{targets: parsed[0].Targets, prereqs: parsed[0].Prerequisites, line: start + 1}

	for i+1 < len(lines) {
		next := lines[i+1]
		if strings.TrimSpace(next) == "" {
			break
		}
		if !strings.HasPrefix(next, "\t") && !strings.HasPrefix(next, " ") {
			break
		}
		r.recipeLines = append(r.recipeLines, strings.TrimLeft(next, " \t"))
		i++
	}

	return r, i, nil
}

// compileRecipe joins a rule's recipe lines into one shell script run via
// sh -c, so embedded $< / $@ references still resolve through
// internal/recipe's own element grammar (SPEC_FULL.md §D, §C.3).
func compileRecipe(lines []string, vars map[string]string) (recipe.Recipe, bool, error) {
	quiet := false
	expanded := make([]string, 0, len(lines))
	for _, l := range lines {
		if strings.HasPrefix(l, "@") {
			quiet = true
			l = l[1:]
		}
		expanded = append(expanded, expandVars(l, vars))
	}

	script := strings.Join(expanded, "\n")
	rec, err := recipe.New([]string{script})
	if err != nil {
		return recipe.Recipe{}, false, err
	}

	shell := []string{"sh", "-c"}
	if s, ok := vars["SHELL"]; ok && strings.TrimSpace(s) != "" {
		shell = strings.Fields(s)
	}
	return rec.WithShell(shell), quiet, nil
}

// patternRule is a Makefile implicit rule ("%.o: %.c") reduced to the
// prefix/suffix either side of its single '%' marker.
type patternRule struct {
	prereqPrefix, prereqSuffix string
	targetSpec                 string
	recipe                     recipe.Recipe
	quiet                      bool
}

// match reports whether prereq is a file this pattern rule's target side
// produces and, if so, returns the input it would consume: the rule's
// prerequisite pattern with '%' replaced by prereq's stem.
func (p patternRule) match(prereq string) (bool, string) {
	idx := strings.Index(p.targetSpec, "%f")
	targetPrefix, targetSuffix := p.targetSpec[:idx], p.targetSpec[idx+2:]
	if !strings.HasPrefix(prereq, targetPrefix) || !strings.HasSuffix(prereq, targetSuffix) {
		return false, ""
	}
	if len(prereq) < len(targetPrefix)+len(targetSuffix) {
		return false, ""
	}
	stem := prereq[len(targetPrefix) : len(prereq)-len(targetSuffix)]
	return true, p.prereqPrefix + stem + p.prereqSuffix
}

// emit compiles every rule's recipe and registers its task, first
// applying pattern rules to any literal prerequisite that has no
// explicit rule of its own (SPEC_FULL.md §D: a prerequisite matching a
// pattern's target side yields a task whose sole consumed input is the
// pattern's prerequisite for the same stem, which then drives
// internal/target's %f marker).
func emit(rules []rule, vars map[string]string, b *unit.Builder) error {
	var patterns []patternRule
	var literals []rule
	explicitTargets := map[string]bool{}

	for _, r := range rules {
		if r.isPattern() {
			if len(r.prereqs) != 1 || !strings.Contains(r.prereqs[0], "%") {
				return &ParseError{Line: r.line, Err: fmt.Errorf("pattern rule %q needs exactly one %%-prerequisite", r.targets[0])}
			}
			rec, quiet, err := compileRecipe(r.recipeLines, vars)
			if err != nil {
				return &ParseError{Line: r.line, Err: err}
			}
			prereqPattern := r.prereqs[0]
			pi := strings.IndexByte(prereqPattern, '%')
			patterns = append(patterns, patternRule{
				prereqPrefix: prereqPattern[:pi],
				prereqSuffix: prereqPattern[pi+1:],
				targetSpec:   strings.Replace(r.targets[0], "%", "%f", 1),
				recipe:       rec,
				quiet:        quiet,
			})
			continue
		}
		for _, t := range r.targets {
			explicitTargets[t] = true
		}
		literals = append(literals, r)
	}

	synthesized := map[string]bool{}
	for _, r := range literals {
		for _, p := range r.prereqs {
			if explicitTargets[p] {
				continue
			}
			for _, pat := range patterns {
				ok, matched := pat.match(p)
				if !ok {
					continue
				}
				key := pat.targetSpec + "\x00" + matched
				if synthesized[key] {
					continue
				}
				synthesized[key] = true
				if _, err := b.AddTask(
					[]string{pat.targetSpec},
					[]unit.PrerequisiteSpec{unit.Named{Path: matched}},
					nil, nil,
					true, pat.quiet, nil,
					pat.recipe,
				); err != nil {
					return &ParseError{Line: r.line, Err: err}
				}
				break
			}
		}
	}

	for _, r := range literals {
		rec, quiet, err := compileRecipe(r.recipeLines, vars)
		if err != nil {
			return &ParseError{Line: r.line, Err: err}
		}
		consumes := make([]unit.PrerequisiteSpec, len(r.prereqs))
		for i, p := range r.prereqs {
			consumes[i] = unit.Named{Path: p}
		}
		if _, err := b.AddTask(r.targets, consumes, nil, nil, true, quiet, nil, rec); err != nil {
			return &ParseError{Line: r.line, Err: err}
		}
	}

	return nil
}
