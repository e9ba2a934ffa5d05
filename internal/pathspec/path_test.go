package pathspec

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRelativiseBasic(t *testing.T) {
	r := NewRelativiser([]string{"p"})

	got, err := r.Relativise([]string{"p"}, "a.c")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff([]string{"a.c"}, got.Components); diff != "" {
		t.Errorf("Relativise mismatch (-want +got):\n%s", diff)
	}
}

func TestRelativiseWalksUpOutOfContext(t *testing.T) {
	r := NewRelativiser([]string{"p", "sub"})

	got, err := r.Relativise([]string{"p", "sub"}, "../a.c")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff([]string{"..", "a.c"}, got.Components); diff != "" {
		t.Errorf("Relativise mismatch (-want +got):\n%s", diff)
	}
}

func TestRelativiseUnderflow(t *testing.T) {
	r := NewRelativiser([]string{"p"})

	_, err := r.Relativise([]string{"p"}, "../../a.c")
	if !errors.Is(err, ErrUnderflow) {
		t.Fatalf("expected ErrUnderflow, got %v", err)
	}
}

func TestRelativisePrefixUnsupported(t *testing.T) {
	r := NewRelativiser([]string{"p"})

	_, err := r.Relativise([]string{"p"}, `C:\windows\path`)
	if !errors.Is(err, ErrPrefixUnsupported) {
		t.Fatalf("expected ErrPrefixUnsupported, got %v", err)
	}

	_, err = r.Relativise([]string{"p"}, `\\server\share`)
	if !errors.Is(err, ErrPrefixUnsupported) {
		t.Fatalf("expected ErrPrefixUnsupported, got %v", err)
	}
}

func TestRelativiseIdempotent(t *testing.T) {
	r := NewRelativiser([]string{"p"})

	once, err := r.Relativise([]string{"p", "sub"}, "../a.c")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// once is relative to the context root, so it is rebased against it.
	twice, err := r.Relativise([]string{"p"}, once.String())
	if err != nil {
		t.Fatalf("unexpected error on second pass: %v", err)
	}

	if diff := cmp.Diff(once.Components, twice.Components); diff != "" {
		t.Errorf("Relativise is not idempotent (-want +got):\n%s", diff)
	}
}

func TestRelativiseAbsoluteInput(t *testing.T) {
	r := NewRelativiser([]string{"p"})

	got, err := r.Relativise([]string{"p", "sub"}, "/p/a.c")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff([]string{"a.c"}, got.Components); diff != "" {
		t.Errorf("Relativise mismatch (-want +got):\n%s", diff)
	}
}
