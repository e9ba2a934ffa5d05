package makefrag

import (
	"strings"
	"testing"
)

func TestParseSimpleRule(t *testing.T) {
	rules, err := Parse(strings.NewReader("a.o: a.c a.h\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rules) != 1 {
		t.Fatalf("got %d rules, want 1", len(rules))
	}
	if len(rules[0].Targets) != 1 || rules[0].Targets[0] != "a.o" {
		t.Errorf("got targets %v", rules[0].Targets)
	}
	if len(rules[0].Prerequisites) != 2 {
		t.Errorf("got prerequisites %v", rules[0].Prerequisites)
	}
}

func TestParseLineContinuation(t *testing.T) {
	rules, err := Parse(strings.NewReader("a.o: a.c \\\n    a.h\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rules) != 1 || len(rules[0].Prerequisites) != 2 {
		t.Fatalf("line continuation not handled: %+v", rules)
	}
}

func TestParseMissingColon(t *testing.T) {
	_, err := Parse(strings.NewReader("not a rule\n"))
	if err == nil {
		t.Fatal("expected an error")
	}
}

func TestPairsCrossProduct(t *testing.T) {
	pairs := Pairs([]Rule{{Targets: []string{"a", "b"}, Prerequisites: []string{"c", "d"}}})
	if len(pairs) != 4 {
		t.Fatalf("got %d pairs, want 4", len(pairs))
	}
}
