// Package limit bounds a resolved rule list to the load limit of a task
// scope.
package limit

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/macropower/loadout/pkg/resolve"
	"github.com/macropower/loadout/pkg/rule"
)

var (
	ErrUnknownScope = errors.New("unknown scope")
	ErrInvalidLimit = errors.New("limit must be positive")
)

// Scope classifies the size of a task.
type Scope string

const (
	ScopeSingleFileEdit     Scope = "single_file_edit"
	ScopeFeatureBuild       Scope = "feature_build"
	ScopeMultiFileTask      Scope = "multi_file_task"
	ScopeArchitectureReview Scope = "architecture_review"
)

// AllScopes lists the scopes from smallest to largest.
var AllScopes = []Scope{
	ScopeSingleFileEdit,
	ScopeFeatureBuild,
	ScopeMultiFileTask,
	ScopeArchitectureReview,
}

// ParseScope returns the [Scope] named by s.
func ParseScope(s string) (Scope, error) {
	scope := Scope(strings.TrimSpace(s))
	if !slices.Contains(AllScopes, scope) {
		return "", fmt.Errorf("%w: %q", ErrUnknownScope, s)
	}

	return scope, nil
}

// ScopeStrings returns the names of [AllScopes].
func ScopeStrings() []string {
	out := make([]string, 0, len(AllScopes))
	for _, s := range AllScopes {
		out = append(out, string(s))
	}

	return out
}

// Limits maps scopes to their maximum result size.
type Limits map[Scope]int

// DefaultLimits returns the default load limits.
func DefaultLimits() Limits {
	return Limits{
		ScopeSingleFileEdit:     5,
		ScopeFeatureBuild:       7,
		ScopeMultiFileTask:      9,
		ScopeArchitectureReview: 12,
	}
}

// With returns a copy of l with overrides applied.
func (l Limits) With(overrides map[Scope]int) (Limits, error) {
	out := make(Limits, len(l))
	for scope, n := range l {
		out[scope] = n
	}

	for scope, n := range overrides {
		if !slices.Contains(AllScopes, scope) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownScope, scope)
		}
		if n <= 0 {
			return nil, fmt.Errorf("scope %q: %w", scope, ErrInvalidLimit)
		}

		out[scope] = n
	}

	return out, nil
}

// For returns the limit for scope.
func (l Limits) For(scope Scope) (int, error) {
	n, ok := l[scope]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownScope, scope)
	}

	return n, nil
}

// LimitExceededWarning reports that required entries alone exceeded the
// limit and some of them were dropped.
type LimitExceededWarning struct {
	Required int `json:"required" yaml:"required"`
	Limit    int `json:"limit" yaml:"limit"`
	Dropped  int `json:"dropped" yaml:"dropped"`
}

func (w *LimitExceededWarning) Error() string {
	return fmt.Sprintf("%d required rules exceed the limit of %d: dropped %d", w.Required, w.Limit, w.Dropped)
}

// Selection is the outcome of [Select].
type Selection struct {
	Warning *LimitExceededWarning
	Entries []*resolve.Entry
	Dropped []rule.ID
}

// Select keeps at most n entries. Required entries are kept first, then the
// highest-scored direct and optional entries. Kept and dropped entries retain
// their resolution order.
func Select(entries []*resolve.Entry, n int) *Selection {
	type ranked struct {
		e   *resolve.Entry
		pos int
	}

	n = max(n, 0)

	var required, rest []ranked
	for i, e := range entries {
		if e.Provenance == resolve.ProvenanceRequired {
			required = append(required, ranked{e: e, pos: i})
		} else {
			rest = append(rest, ranked{e: e, pos: i})
		}
	}

	byScore := func(a, b ranked) int {
		return cmp.Or(
			cmp.Compare(b.e.Score, a.e.Score),
			cmp.Compare(a.pos, b.pos),
		)
	}

	sel := &Selection{}
	keep := make([]bool, len(entries))

	slices.SortStableFunc(required, byScore)
	if len(required) > n {
		sel.Warning = &LimitExceededWarning{
			Required: len(required),
			Limit:    n,
			Dropped:  len(required) - n,
		}
		required = required[:n]
	}

	for _, r := range required {
		keep[r.pos] = true
	}

	slices.SortStableFunc(rest, byScore)
	for _, r := range rest[:min(len(rest), n-len(required))] {
		keep[r.pos] = true
	}

	for i, e := range entries {
		if keep[i] {
			sel.Entries = append(sel.Entries, e)
		} else {
			sel.Dropped = append(sel.Dropped, e.ID)
		}
	}

	return sel
}
