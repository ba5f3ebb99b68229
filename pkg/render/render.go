// Package render formats discovery results for the terminal.
package render

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"

	"github.com/macropower/loadout/api"
	"github.com/macropower/loadout/pkg/engine"
	"github.com/macropower/loadout/pkg/resolve"
)

var ErrUnknownFormat = errors.New("unknown output format")

// Format is an output format.
type Format string

const (
	FormatTable Format = "table"
	FormatYAML  Format = "yaml"
	FormatJSON  Format = "json"
)

// AllFormats contains every supported [Format], as strings.
var AllFormats = []string{string(FormatTable), string(FormatYAML), string(FormatJSON)}

// ParseFormat parses s into a [Format].
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatTable, FormatYAML, FormatJSON:
		return f, nil
	}

	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// Styles used by the table output.
type Styles struct {
	Header   lipgloss.Style
	Cell     lipgloss.Style
	Subtle   lipgloss.Style
	Warning  lipgloss.Style
	Border   lipgloss.Style
	Inserted lipgloss.Style
	Deleted  lipgloss.Style
}

// DefaultStyles returns the default [Styles].
func DefaultStyles() Styles {
	return Styles{
		Header:   lipgloss.NewStyle().Bold(true).Padding(0, 1),
		Cell:     lipgloss.NewStyle().Padding(0, 1),
		Subtle:   lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#9B9B9B", Dark: "#5C5C5C"}),
		Warning:  lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#B8860B", Dark: "#FFD75F"}),
		Border:   lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#C0C0C0", Dark: "#444444"}),
		Inserted: lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#1A7F37", Dark: "#3FB950"}),
		Deleted:  lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#CF222E", Dark: "#F85149"}),
	}
}

// Renderer writes results in one [Format].
type Renderer struct {
	now    func() time.Time
	styles Styles
	format Format
}

// RendererOpt configures a [Renderer].
type RendererOpt func(*Renderer)

// WithStyles sets the table styles.
func WithStyles(s Styles) RendererOpt {
	return func(r *Renderer) {
		r.styles = s
	}
}

// WithClock sets the clock used for relative times.
func WithClock(now func() time.Time) RendererOpt {
	return func(r *Renderer) {
		r.now = now
	}
}

// NewRenderer creates a new [Renderer].
func NewRenderer(format Format, opts ...RendererOpt) *Renderer {
	r := &Renderer{
		format: format,
		styles: DefaultStyles(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Format returns the renderer's output format.
func (r *Renderer) Format() Format {
	return r.format
}

// Result formats res as a string.
func (r *Renderer) Result(res *engine.Result) (string, error) {
	if r.format == FormatTable {
		return r.table(res), nil
	}

	return r.marshal(res)
}

func (r *Renderer) marshal(v any) (string, error) {
	switch r.format {
	case FormatJSON:
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshal json: %w", err)
		}

		return string(b) + "\n", nil

	case FormatYAML:
		b, err := api.MarshalYAML(v)
		if err != nil {
			return "", err //nolint:wrapcheck // Already wrapped.
		}

		return string(b), nil
	}

	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, r.format)
}

// WriteResult writes res to w.
func (r *Renderer) WriteResult(w io.Writer, res *engine.Result) error {
	out, err := r.Result(res)
	if err != nil {
		return err
	}

	_, err = io.WriteString(w, out)
	if err != nil {
		return fmt.Errorf("write result: %w", err)
	}

	return nil
}

func (r *Renderer) table(res *engine.Result) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(r.styles.Border).
		Headers("#", "RULE", "SCORE", "SOURCES", "PROVENANCE").
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return r.styles.Header
			}

			return r.styles.Cell
		})

	for i, e := range res.Rules {
		t.Row(strconv.Itoa(i+1), string(e.ID), strconv.Itoa(e.Score), sources(e), provenance(e))
	}

	var b strings.Builder

	b.WriteString(t.String())
	b.WriteString("\n")

	status := "fresh"
	if res.Cached {
		status = "cached"
	}

	fmt.Fprintf(&b, "%s\n", r.styles.Subtle.Render(fmt.Sprintf(
		"%d rules for %s, %s, generated %s",
		len(res.Rules), res.Scope, status, humanize.RelTime(res.GeneratedAt, r.now(), "ago", "from now"),
	)))

	if res.Warning != nil {
		fmt.Fprintf(&b, "%s\n", r.styles.Warning.Render("warning: "+res.Warning.Error()))
	}

	if len(res.Dropped) > 0 {
		dropped := make([]string, 0, len(res.Dropped))
		for _, id := range res.Dropped {
			dropped = append(dropped, string(id))
		}

		fmt.Fprintf(&b, "%s\n", r.styles.Subtle.Render("dropped: "+strings.Join(dropped, ", ")))
	}

	for _, se := range res.ScanErrors {
		fmt.Fprintf(&b, "%s\n", r.styles.Warning.Render("skipped: "+se.Error()))
	}

	return b.String()
}

func sources(e *resolve.Entry) string {
	if len(e.Sources) == 0 {
		return "-"
	}

	out := make([]string, 0, len(e.Sources))
	for _, src := range e.Sources {
		out = append(out, src.String())
	}

	return strings.Join(out, ",")
}

func provenance(e *resolve.Entry) string {
	if e.Parent == "" {
		return string(e.Provenance)
	}

	return fmt.Sprintf("%s (%s)", e.Provenance, e.Parent)
}
