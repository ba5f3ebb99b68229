package resolve_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macropower/loadout/pkg/candidate"
	"github.com/macropower/loadout/pkg/registry"
	"github.com/macropower/loadout/pkg/resolve"
	"github.com/macropower/loadout/pkg/rule"
)

type entry struct {
	id         rule.ID
	provenance resolve.Provenance
	parent     rule.ID
	score      int
	depth      int
}

func flatten(entries []*resolve.Entry) []entry {
	out := make([]entry, 0, len(entries))
	for _, e := range entries {
		out = append(out, entry{
			id:         e.ID,
			provenance: e.Provenance,
			parent:     e.Parent,
			score:      e.Score,
			depth:      e.Depth,
		})
	}

	return out
}

func ranked(scores map[rule.ID]int) []*candidate.Candidate {
	set := candidate.Set{}
	for id, score := range scores {
		set.Add(id, candidate.SourceFileType, score)
	}

	return set.Ranked()
}

func TestResolver_Resolve(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		graph  registry.Graph
		scores map[rule.ID]int
		opts   []resolve.ResolverOpt
		want   []entry
	}{
		"required dependency materializes": {
			graph: registry.Graph{
				"p": {Required: []rule.ID{"q"}},
				"q": {},
			},
			scores: map[rule.ID]int{"p": 10},
			want: []entry{
				{id: "p", provenance: resolve.ProvenanceDirect, score: 10},
				{id: "q", provenance: resolve.ProvenanceRequired, parent: "p", score: 10, depth: 1},
			},
		},
		"required chains are not depth bounded": {
			graph: registry.Graph{
				"a": {Required: []rule.ID{"b"}},
				"b": {Required: []rule.ID{"c"}},
				"c": {Required: []rule.ID{"d"}},
				"d": {},
			},
			scores: map[rule.ID]int{"a": 3},
			want: []entry{
				{id: "a", provenance: resolve.ProvenanceDirect, score: 3},
				{id: "b", provenance: resolve.ProvenanceRequired, parent: "a", score: 3, depth: 1},
				{id: "c", provenance: resolve.ProvenanceRequired, parent: "b", score: 3, depth: 2},
				{id: "d", provenance: resolve.ProvenanceRequired, parent: "c", score: 3, depth: 3},
			},
		},
		"optional below threshold is skipped": {
			graph: registry.Graph{
				"a": {Optional: []rule.ID{"b"}},
				"b": {},
			},
			scores: map[rule.ID]int{"a": 6},
			want: []entry{
				{id: "a", provenance: resolve.ProvenanceDirect, score: 6},
			},
		},
		"optional above threshold is added": {
			graph: registry.Graph{
				"a": {Optional: []rule.ID{"b"}},
				"b": {Optional: []rule.ID{"c"}},
				"c": {Optional: []rule.ID{"d"}},
				"d": {},
			},
			scores: map[rule.ID]int{"a": 7},
			want: []entry{
				{id: "a", provenance: resolve.ProvenanceDirect, score: 7},
				{id: "b", provenance: resolve.ProvenanceOptional, parent: "a", score: 7, depth: 1},
				{id: "c", provenance: resolve.ProvenanceOptional, parent: "b", score: 7, depth: 2},
			},
		},
		"optional uses own candidate score": {
			graph: registry.Graph{
				"a": {Optional: []rule.ID{"b"}},
				"b": {},
			},
			scores: map[rule.ID]int{"a": 10, "b": 4},
			want: []entry{
				{id: "a", provenance: resolve.ProvenanceDirect, score: 10},
				{id: "b", provenance: resolve.ProvenanceDirect, score: 4},
			},
		},
		"optional target brings its required deps": {
			graph: registry.Graph{
				"a": {Optional: []rule.ID{"b"}},
				"b": {Optional: []rule.ID{"c"}},
				"c": {Required: []rule.ID{"d"}},
				"d": {},
			},
			scores: map[rule.ID]int{"a": 9},
			opts:   []resolve.ResolverOpt{resolve.WithMaxDepth(2)},
			want: []entry{
				{id: "a", provenance: resolve.ProvenanceDirect, score: 9},
				{id: "b", provenance: resolve.ProvenanceOptional, parent: "a", score: 9, depth: 1},
				{id: "c", provenance: resolve.ProvenanceOptional, parent: "b", score: 9, depth: 2},
				{id: "d", provenance: resolve.ProvenanceRequired, parent: "c", score: 9, depth: 3},
			},
		},
		"required upgrades optional": {
			graph: registry.Graph{
				"a": {Optional: []rule.ID{"c"}},
				"b": {Required: []rule.ID{"c"}},
				"c": {},
			},
			scores: map[rule.ID]int{"a": 10, "b": 9},
			want: []entry{
				{id: "a", provenance: resolve.ProvenanceDirect, score: 10},
				{id: "c", provenance: resolve.ProvenanceRequired, parent: "b", score: 10, depth: 1},
				{id: "b", provenance: resolve.ProvenanceDirect, score: 9},
			},
		},
		"shared dependency is deduplicated": {
			graph: registry.Graph{
				"a": {Required: []rule.ID{"c"}},
				"b": {Required: []rule.ID{"c"}},
				"c": {},
			},
			scores: map[rule.ID]int{"a": 10, "b": 8},
			want: []entry{
				{id: "a", provenance: resolve.ProvenanceDirect, score: 10},
				{id: "c", provenance: resolve.ProvenanceRequired, parent: "a", score: 10, depth: 1},
				{id: "b", provenance: resolve.ProvenanceDirect, score: 8},
			},
		},
		"direct candidate lowers depth": {
			graph: registry.Graph{
				"a": {Optional: []rule.ID{"b"}},
				"b": {Optional: []rule.ID{"c"}},
				"c": {Optional: []rule.ID{"d"}},
				"d": {},
			},
			scores: map[rule.ID]int{"a": 10, "c": 8},
			want: []entry{
				{id: "a", provenance: resolve.ProvenanceDirect, score: 10},
				{id: "b", provenance: resolve.ProvenanceOptional, parent: "a", score: 10, depth: 1},
				{id: "c", provenance: resolve.ProvenanceDirect, score: 8},
				{id: "d", provenance: resolve.ProvenanceOptional, parent: "c", score: 8, depth: 1},
			},
		},
		"custom threshold": {
			graph: registry.Graph{
				"a": {Optional: []rule.ID{"b"}},
				"b": {},
			},
			scores: map[rule.ID]int{"a": 3},
			opts:   []resolve.ResolverOpt{resolve.WithOptionalThreshold(2)},
			want: []entry{
				{id: "a", provenance: resolve.ProvenanceDirect, score: 3},
				{id: "b", provenance: resolve.ProvenanceOptional, parent: "a", score: 3, depth: 1},
			},
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			r := resolve.NewResolver(tc.graph, tc.opts...)

			got, err := r.Resolve(ranked(tc.scores))
			require.NoError(t, err)
			assert.Equal(t, tc.want, flatten(got))
		})
	}
}

func TestResolver_InternalCycle(t *testing.T) {
	t.Parallel()

	graph := registry.Graph{
		"p": {Required: []rule.ID{"q"}},
		"q": {Required: []rule.ID{"p"}},
	}

	_, err := resolve.NewResolver(graph).Resolve(ranked(map[rule.ID]int{"p": 10}))
	require.ErrorIs(t, err, resolve.ErrInternalCycle)
}

func TestResolver_Sources(t *testing.T) {
	t.Parallel()

	graph := registry.Graph{"p": {Required: []rule.ID{"q"}}, "q": {}}

	set := candidate.Set{}
	set.Add("p", candidate.SourceKeyword, 5)
	set.Add("p", candidate.SourceManifest, 5)

	got, err := resolve.NewResolver(graph).Resolve(set.Ranked())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, []candidate.Source{candidate.SourceManifest, candidate.SourceKeyword}, got[0].Sources)
	assert.Empty(t, got[1].Sources)
}

func TestResolver_DirectMatchOverridesOptionalEdge(t *testing.T) {
	t.Parallel()

	graph := registry.Graph{
		"a": {Optional: []rule.ID{"b"}},
		"b": {Required: []rule.ID{"c"}},
		"c": {},
	}

	set := candidate.Set{}
	set.Add("a", candidate.SourceFileType, 10)
	set.Add("b", candidate.SourceManifest, 8)
	set.Add("c", candidate.SourceKeyword, 5)

	got, err := resolve.NewResolver(graph).Resolve(set.Ranked())
	require.NoError(t, err)
	require.Len(t, got, 3)

	b := got[1]
	assert.Equal(t, rule.ID("b"), b.ID)
	assert.Equal(t, resolve.ProvenanceDirect, b.Provenance)
	assert.Empty(t, b.Parent)
	assert.Equal(t, 0, b.Depth)
	assert.Equal(t, 8, b.Score)
	assert.Equal(t, []candidate.Source{candidate.SourceManifest}, b.Sources)

	// A required edge reached c before its own direct match.
	c := got[2]
	assert.Equal(t, rule.ID("c"), c.ID)
	assert.Equal(t, resolve.ProvenanceRequired, c.Provenance)
	assert.Equal(t, rule.ID("b"), c.Parent)
	assert.Equal(t, 8, c.Score)
}
