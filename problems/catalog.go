// Package problems loads the problem catalog and selects rating-appropriate
// problems for duels.
package problems

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"

	"codeduel-server/duelerrors"
)

// Problem is one entry of the catalog. Body holds the full problem statement
// shown to players and sent to the judge.
type Problem struct {
	Slug   string   `json:"slug"`
	Title  string   `json:"title"`
	Rating int      `json:"rating"`
	Topics []string `json:"topics,omitempty"`
	Body   string   `json:"body"`
}

// Catalog is an immutable, in-memory problem set loaded at startup.
type Catalog struct {
	all    []Problem
	bySlug map[string]Problem
}

const excludedTopic = "SQL"

// Load reads a JSON array of problems from path.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading problem catalog: %w", err)
	}
	var list []Problem
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("parsing problem catalog: %w", err)
	}
	return New(list), nil
}

// New builds a Catalog from a problem list. Database-query-style problems
// (SQL topic) are excluded from random selection but stay reachable by slug.
func New(list []Problem) *Catalog {
	c := &Catalog{bySlug: make(map[string]Problem, len(list))}
	for _, p := range list {
		c.bySlug[p.Slug] = p
		if hasTopic(p, excludedTopic) {
			continue
		}
		c.all = append(c.all, p)
	}
	return c
}

// RandomEligible returns a uniformly random problem rated at or below
// maxRating, excluding SQL-topic problems.
func (c *Catalog) RandomEligible(maxRating int) (Problem, error) {
	eligible := make([]Problem, 0, len(c.all))
	for _, p := range c.all {
		if p.Rating <= maxRating {
			eligible = append(eligible, p)
		}
	}
	if len(eligible) == 0 {
		return Problem{}, duelerrors.ErrNoEligibleProblem
	}
	return eligible[rand.Intn(len(eligible))], nil
}

// BySlug returns the problem with the given slug.
func (c *Catalog) BySlug(slug string) (Problem, bool) {
	p, ok := c.bySlug[slug]
	return p, ok
}

// Len returns the number of randomly selectable problems.
func (c *Catalog) Len() int {
	return len(c.all)
}

func hasTopic(p Problem, topic string) bool {
	for _, t := range p.Topics {
		if t == topic {
			return true
		}
	}
	return false
}
