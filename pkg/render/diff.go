package render

import (
	"strings"

	"github.com/aymanbagabas/go-udiff"

	"github.com/macropower/loadout/pkg/engine"
)

// Diff returns a unified diff between two renderings of a result, with
// inserted and deleted lines styled. It returns an empty string when the
// renderings are equal.
func (r *Renderer) Diff(before, after string) string {
	if before == after {
		return ""
	}

	unified := udiff.Unified("previous", "current", before, after)

	lines := strings.Split(strings.TrimRight(unified, "\n"), "\n")
	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			lines[i] = r.styles.Subtle.Render(line)
		case strings.HasPrefix(line, "+"):
			lines[i] = r.styles.Inserted.Render(line)
		case strings.HasPrefix(line, "-"):
			lines[i] = r.styles.Deleted.Render(line)
		case strings.HasPrefix(line, "@@"):
			lines[i] = r.styles.Subtle.Render(line)
		}
	}

	return strings.Join(lines, "\n") + "\n"
}

// IDList renders the ids of the selected rules one per line.
func IDList(res *engine.Result) string {
	var b strings.Builder
	for _, id := range res.IDs() {
		b.WriteString(string(id))
		b.WriteByte('\n')
	}

	return b.String()
}
