package generator

import (
	"strings"
	"testing"
)

func TestGenerateCount(t *testing.T) {
	g := NewSeeded(1)
	words := []string{"alpha", "beta", "gamma"}
	got := g.Generate(words, 10, 0, 0, nil)
	if len(got) != 10 {
		t.Fatalf("expected 10 words, got %d", len(got))
	}
	for _, w := range got {
		found := false
		for _, src := range words {
			if w == src {
				found = true
			}
		}
		if !found {
			t.Errorf("unexpected word %q", w)
		}
	}
}

func TestGenerateDeterministicForSeed(t *testing.T) {
	words := []string{"alpha", "beta", "gamma", "delta"}
	a := NewSeeded(42).Generate(words, 20, 0.3, 0.2, []rune{'.', ','})
	b := NewSeeded(42).Generate(words, 20, 0.3, 0.2, []rune{'.', ','})
	if JoinText(a) != JoinText(b) {
		t.Fatal("same seed must produce the same course")
	}
}

func TestGenerateCapsAlways(t *testing.T) {
	g := NewSeeded(7)
	got := g.Generate([]string{"word"}, 5, 1.0, 0, nil)
	for _, w := range got {
		if w != "Word" {
			t.Errorf("expected capitalized word, got %q", w)
		}
	}
}

func TestGeneratePunctAlways(t *testing.T) {
	g := NewSeeded(7)
	got := g.Generate([]string{"word"}, 5, 0, 1.0, []rune{'!'})
	for _, w := range got {
		if !strings.HasSuffix(w, "!") {
			t.Errorf("expected trailing punctuation, got %q", w)
		}
	}
}

func TestGenerateWeightedBiasesWeakChars(t *testing.T) {
	g := NewSeeded(99)
	words := []string{"aaaa", "bbbb"}
	weak := map[rune]struct{}{'a': {}}
	got := g.GenerateWeighted(words, 500, 0, 0, nil, weak, 10.0)

	weakCount := 0
	for _, w := range got {
		if w == "aaaa" {
			weakCount++
		}
	}
	// weight 41 vs 1: the weak word should dominate.
	if weakCount < 400 {
		t.Fatalf("expected weak-char word to dominate, got %d of %d", weakCount, len(got))
	}
}

func TestGenerateWeightedNoWeakSetIsUniformish(t *testing.T) {
	g := NewSeeded(3)
	words := []string{"one", "two"}
	got := g.GenerateWeighted(words, 200, 0, 0, nil, nil, 5.0)
	ones := 0
	for _, w := range got {
		if w == "one" {
			ones++
		}
	}
	if ones < 50 || ones > 150 {
		t.Fatalf("expected roughly uniform selection, got %d of %d", ones, len(got))
	}
}
