package render

import (
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/sahilm/fuzzy"

	"github.com/macropower/loadout/pkg/rule"
)

// ruleSource adapts a rule list to [fuzzy.Source]. Each rule is matched on
// its id followed by its description.
type ruleSource []*rule.Rule

func (s ruleSource) String(i int) string {
	return string(s[i].ID) + " " + s[i].Description
}

func (s ruleSource) Len() int {
	return len(s)
}

// FilterRules returns the rules fuzzy matching query, best match first. An
// empty query returns all rules sorted by id.
func FilterRules(rules []*rule.Rule, query string) []*rule.Rule {
	if strings.TrimSpace(query) == "" {
		out := slices.Clone(rules)
		slices.SortFunc(out, func(a, b *rule.Rule) int {
			return strings.Compare(string(a.ID), string(b.ID))
		})

		return out
	}

	matches := fuzzy.FindFrom(query, ruleSource(rules))

	out := make([]*rule.Rule, 0, len(matches))
	for _, m := range matches {
		out = append(out, rules[m.Index])
	}

	return out
}

// Rules formats a rule listing.
func (r *Renderer) Rules(rules []*rule.Rule) (string, error) {
	if r.format != FormatTable {
		return r.marshal(rules)
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(r.styles.Border).
		Headers("RULE", "DESCRIPTION", "SIGNALS", "REQUIRES", "OPTIONAL").
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return r.styles.Header
			}

			return r.styles.Cell
		})

	for _, ru := range rules {
		t.Row(string(ru.ID), ru.Description, signals(ru), joinIDs(ru.Requires), joinIDs(ru.Optional))
	}

	return t.String() + "\n", nil
}

func signals(r *rule.Rule) string {
	var parts []string
	if n := len(r.FileTypes); n > 0 {
		parts = append(parts, fmt.Sprintf("%d file", n))
	}
	if n := len(r.Dependencies); n > 0 {
		parts = append(parts, fmt.Sprintf("%d manifest", n))
	}
	if n := len(r.Keywords); n > 0 {
		parts = append(parts, fmt.Sprintf("%d keyword", n))
	}
	if r.HasGuard() {
		parts = append(parts, "guarded")
	}

	if len(parts) == 0 {
		return "-"
	}

	return strings.Join(parts, ", ")
}

func joinIDs(ids []rule.ID) string {
	if len(ids) == 0 {
		return "-"
	}

	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, string(id))
	}

	return strings.Join(out, ", ")
}
