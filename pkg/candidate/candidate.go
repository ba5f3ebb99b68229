// Package candidate merges the partial candidate sets produced by the signal
// scanners and ranks the result.
//
// Scores from different sources are never added together. A rule's merged
// score is the maximum score any source proposed for it.
package candidate

import (
	"cmp"
	"fmt"
	"maps"
	"slices"

	"github.com/macropower/loadout/pkg/rule"
)

// Source names the scanner that proposed a candidate.
type Source string

const (
	SourceFileType Source = "file-type"
	SourceManifest Source = "manifest"
	SourceKeyword  Source = "keyword"
)

// AllSources lists the sources from highest to lowest priority.
var AllSources = []Source{SourceFileType, SourceManifest, SourceKeyword}

// Priority returns the tie-break rank of s. Lower values win.
func (s Source) Priority() int {
	switch s {
	case SourceFileType:
		return 0
	case SourceManifest:
		return 1
	case SourceKeyword:
		return 2
	}

	return len(AllSources)
}

func (s Source) String() string {
	return string(s)
}

// Candidate is a rule under consideration together with the best score each
// source proposed for it.
type Candidate struct {
	scores map[Source]int
	ID     rule.ID
}

// Score returns the merged score: the maximum over all sources.
func (c *Candidate) Score() int {
	best := 0
	for _, s := range c.scores {
		best = max(best, s)
	}

	return best
}

// SourceScore returns the score proposed by src.
func (c *Candidate) SourceScore(src Source) (int, bool) {
	s, ok := c.scores[src]

	return s, ok
}

// Sources returns the contributing sources ordered by priority.
func (c *Candidate) Sources() []Source {
	srcs := slices.Collect(maps.Keys(c.scores))
	slices.SortFunc(srcs, compareSources)

	return srcs
}

// Top returns the highest-priority source among those that proposed the
// merged score.
func (c *Candidate) Top() Source {
	score := c.Score()
	for _, src := range c.Sources() {
		if c.scores[src] == score {
			return src
		}
	}

	return ""
}

func (c *Candidate) String() string {
	return fmt.Sprintf("%s(%d, %s)", c.ID, c.Score(), c.Top())
}

// Set maps rule ids to candidates.
type Set map[rule.ID]*Candidate

// Add records that src proposed id with score. Repeated proposals from the
// same source keep the maximum.
func (s Set) Add(id rule.ID, src Source, score int) {
	c, ok := s[id]
	if !ok {
		c = &Candidate{ID: id, scores: map[Source]int{}}
		s[id] = c
	}

	if prev, ok := c.scores[src]; !ok || score > prev {
		c.scores[src] = score
	}
}

// Get returns the candidate for id.
func (s Set) Get(id rule.ID) (*Candidate, bool) {
	c, ok := s[id]

	return c, ok
}

// Merge combines sets into a new [Set]. The inputs are not modified and the
// result does not depend on their order.
func Merge(sets ...Set) Set {
	merged := Set{}
	for _, set := range sets {
		for id, c := range set {
			for src, score := range c.scores {
				merged.Add(id, src, score)
			}
		}
	}

	return merged
}

// Ranked returns the candidates ordered by score descending, then by the
// priority of their top source, then by id.
func (s Set) Ranked() []*Candidate {
	ranked := slices.Collect(maps.Values(s))
	slices.SortFunc(ranked, Compare)

	return ranked
}

// Compare orders candidates for ranking.
func Compare(a, b *Candidate) int {
	return cmp.Or(
		cmp.Compare(b.Score(), a.Score()),
		compareSources(a.Top(), b.Top()),
		cmp.Compare(a.ID, b.ID),
	)
}

func compareSources(a, b Source) int {
	return cmp.Or(
		cmp.Compare(a.Priority(), b.Priority()),
		cmp.Compare(a, b),
	)
}
