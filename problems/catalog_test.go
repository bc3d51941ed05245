package problems

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"codeduel-server/duelerrors"
)

func testCatalog() *Catalog {
	return New([]Problem{
		{Slug: "two-sum", Title: "Two Sum", Rating: 800, Body: "..."},
		{Slug: "median-arrays", Title: "Median of Two Sorted Arrays", Rating: 2100, Body: "..."},
		{Slug: "big-countries", Title: "Big Countries", Rating: 500, Topics: []string{"SQL"}, Body: "..."},
		{Slug: "valid-parens", Title: "Valid Parentheses", Rating: 900, Topics: []string{"Stack"}, Body: "..."},
	})
}

func TestRandomEligibleRespectsRatingCap(t *testing.T) {
	c := testCatalog()
	for i := 0; i < 50; i++ {
		p, err := c.RandomEligible(1500)
		if err != nil {
			t.Fatalf("RandomEligible: %v", err)
		}
		if p.Rating > 1500 {
			t.Errorf("problem %q rated %d exceeds the cap", p.Slug, p.Rating)
		}
		if p.Slug == "big-countries" {
			t.Error("SQL-topic problem should never be selected")
		}
	}
}

func TestRandomEligibleEmpty(t *testing.T) {
	c := testCatalog()
	_, err := c.RandomEligible(100)
	if !errors.Is(err, duelerrors.ErrNoEligibleProblem) {
		t.Errorf("expected ErrNoEligibleProblem, got %v", err)
	}
}

func TestBySlugIncludesExcludedTopics(t *testing.T) {
	c := testCatalog()
	if _, ok := c.BySlug("big-countries"); !ok {
		t.Error("SQL problem should still be reachable by slug")
	}
	if _, ok := c.BySlug("nope"); ok {
		t.Error("unknown slug should not be found")
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "questions.json")
	contents := `[{"slug":"two-sum","title":"Two Sum","rating":800,"body":"Given an array..."}]`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Len() != 1 {
		t.Errorf("expected 1 problem, got %d", c.Len())
	}
	p, ok := c.BySlug("two-sum")
	if !ok || p.Title != "Two Sum" {
		t.Errorf("unexpected problem: %+v ok=%v", p, ok)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("does-not-exist.json"); err == nil {
		t.Error("expected error for missing catalog file")
	}
}
