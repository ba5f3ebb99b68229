// Package resolve expands a ranked candidate list along the rule dependency
// graph.
//
// Required edges always materialize. Optional edges are followed only when
// their score clears a threshold and their target stays within a maximum
// depth of a directly matched candidate.
package resolve

import (
	"errors"
	"fmt"

	"github.com/macropower/loadout/pkg/candidate"
	"github.com/macropower/loadout/pkg/rule"
)

// Defaults for optional edge expansion.
const (
	DefaultOptionalThreshold = 6
	DefaultMaxDepth          = 2
)

// ErrInternalCycle is returned when a required cycle is found while resolving.
// Registries reject such graphs, so this indicates an unvalidated graph.
var ErrInternalCycle = errors.New("internal error: required dependency cycle")

// Provenance tells why an entry was included.
type Provenance string

const (
	ProvenanceDirect   Provenance = "direct"
	ProvenanceRequired Provenance = "required"
	ProvenanceOptional Provenance = "optional"
)

// Graph provides the dependency edges of each rule.
type Graph interface {
	Required(id rule.ID) []rule.ID
	Optional(id rule.ID) []rule.ID
}

// Entry is one rule in a resolved list.
type Entry struct {
	ID         rule.ID            `json:"id" yaml:"id"`
	Provenance Provenance         `json:"provenance" yaml:"provenance"`
	Parent     rule.ID            `json:"parent,omitempty" yaml:"parent,omitempty"`
	Sources    []candidate.Source `json:"sources,omitempty" yaml:"sources,omitempty"`
	Score      int                `json:"score" yaml:"score"`
	Depth      int                `json:"depth" yaml:"depth"`
}

// Resolver expands candidates along a [Graph].
type Resolver struct {
	graph             Graph
	optionalThreshold int
	maxDepth          int
}

// ResolverOpt configures a [Resolver].
type ResolverOpt func(*Resolver)

// WithOptionalThreshold sets the score an optional edge must exceed.
func WithOptionalThreshold(n int) ResolverOpt {
	return func(r *Resolver) {
		r.optionalThreshold = n
	}
}

// WithMaxDepth sets the maximum depth of optional targets.
func WithMaxDepth(n int) ResolverOpt {
	return func(r *Resolver) {
		r.maxDepth = n
	}
}

// NewResolver creates a [Resolver] for graph.
func NewResolver(graph Graph, opts ...ResolverOpt) *Resolver {
	r := &Resolver{
		graph:             graph,
		optionalThreshold: DefaultOptionalThreshold,
		maxDepth:          DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(r)
	}

	return r
}

type resolution struct {
	*Resolver

	index   map[rule.ID]int
	ranked  map[rule.ID]*candidate.Candidate
	entries []*Entry
	queue   []rule.ID
}

// Resolve walks ranked top-down and expands each candidate breadth-first.
// Entries are returned in insertion order.
func (r *Resolver) Resolve(ranked []*candidate.Candidate) ([]*Entry, error) {
	res := &resolution{
		Resolver: r,
		index:    make(map[rule.ID]int, len(ranked)),
		ranked:   make(map[rule.ID]*candidate.Candidate, len(ranked)),
		entries:  make([]*Entry, 0, len(ranked)),
	}

	for _, c := range ranked {
		res.ranked[c.ID] = c
	}

	for _, c := range ranked {
		if e, ok := res.get(c.ID); ok {
			// Already pulled in by a higher-ranked candidate. A direct match
			// outranks an optional edge; required entries keep their parent.
			e.Score = max(e.Score, c.Score())
			if e.Provenance == ProvenanceOptional {
				e.Provenance = ProvenanceDirect
				e.Parent = ""
				e.Sources = c.Sources()
			}
			if e.Depth > 0 {
				e.Depth = 0
				res.queue = append(res.queue, e.ID)
			}
		} else {
			res.add(&Entry{
				ID:         c.ID,
				Score:      c.Score(),
				Sources:    c.Sources(),
				Provenance: ProvenanceDirect,
			})
		}

		err := res.drain()
		if err != nil {
			return nil, err
		}
	}

	return res.entries, nil
}

func (res *resolution) get(id rule.ID) (*Entry, bool) {
	i, ok := res.index[id]
	if !ok {
		return nil, false
	}

	return res.entries[i], true
}

func (res *resolution) add(e *Entry) {
	res.index[e.ID] = len(res.entries)
	res.entries = append(res.entries, e)
	res.queue = append(res.queue, e.ID)
}

func (res *resolution) drain() error {
	for len(res.queue) > 0 {
		id := res.queue[0]
		res.queue = res.queue[1:]

		parent, _ := res.get(id)

		for _, dep := range res.graph.Required(id) {
			err := res.require(parent, dep)
			if err != nil {
				return err
			}
		}

		for _, dep := range res.graph.Optional(id) {
			res.optional(parent, dep)
		}
	}

	return nil
}

func (res *resolution) require(parent *Entry, id rule.ID) error {
	depth := parent.Depth + 1

	e, ok := res.get(id)
	if !ok {
		score := parent.Score
		var sources []candidate.Source
		if c, ok := res.ranked[id]; ok {
			score = max(score, c.Score())
			sources = c.Sources()
		}

		res.add(&Entry{
			ID:         id,
			Score:      score,
			Sources:    sources,
			Provenance: ProvenanceRequired,
			Parent:     parent.ID,
			Depth:      depth,
		})

		return nil
	}

	if res.requiredAncestor(parent, id) {
		return fmt.Errorf("%w: %s -> %s", ErrInternalCycle, parent.ID, id)
	}

	if e.Provenance == ProvenanceOptional {
		e.Provenance = ProvenanceRequired
		e.Parent = parent.ID
		e.Score = max(e.Score, parent.Score)
	}

	if depth < e.Depth {
		e.Depth = depth
		res.queue = append(res.queue, e.ID)
	}

	return nil
}

func (res *resolution) optional(parent *Entry, id rule.ID) {
	depth := parent.Depth + 1

	if e, ok := res.get(id); ok {
		if depth < e.Depth {
			e.Depth = depth
			res.queue = append(res.queue, e.ID)
		}

		return
	}

	if depth > res.maxDepth {
		return
	}

	score := parent.Score
	var sources []candidate.Source
	if c, ok := res.ranked[id]; ok {
		score = c.Score()
		sources = c.Sources()
	}

	if score <= res.optionalThreshold {
		return
	}

	res.add(&Entry{
		ID:         id,
		Score:      score,
		Sources:    sources,
		Provenance: ProvenanceOptional,
		Parent:     parent.ID,
		Depth:      depth,
	})
}

// requiredAncestor reports whether id is reached by following required
// parent links upward from e.
func (res *resolution) requiredAncestor(e *Entry, id rule.ID) bool {
	for range len(res.entries) {
		if e.ID == id {
			return true
		}
		if e.Provenance != ProvenanceRequired {
			return false
		}

		parent, ok := res.get(e.Parent)
		if !ok {
			return false
		}

		e = parent
	}

	return false
}
