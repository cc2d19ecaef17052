package slug

import (
	"math/rand/v2"
	"strings"
	"testing"
)

func TestGenerateShape(t *testing.T) {
	g := New()
	for i := 0; i < 200; i++ {
		s := g.Generate()
		if parts := strings.Split(s, "-"); len(parts) != 3 {
			t.Fatalf("expected three words, got %q", s)
		}
		if !Valid(s) {
			t.Fatalf("generated slug %q is not valid", s)
		}
	}
}

func TestGenerateDeterministicWithSource(t *testing.T) {
	a := NewWithSource(rand.NewPCG(1, 2)).Generate()
	b := NewWithSource(rand.NewPCG(1, 2)).Generate()
	if a != b {
		t.Fatalf("expected identical slugs for identical seeds, got %q and %q", a, b)
	}
}

func TestValid(t *testing.T) {
	for _, s := range []string{"", "-a", "a-", "a--b", "Upper-case", "a.b"} {
		if Valid(s) {
			t.Fatalf("expected %q to be invalid", s)
		}
	}
	if !Valid("calm-red-fox") {
		t.Fatal("expected calm-red-fox to be valid")
	}
}
