package render

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/muesli/termenv"
)

// DefaultChromaStyle is the chroma style used when none is given.
const DefaultChromaStyle = "onedark"

// Highlighter renders source with chroma syntax highlighting.
type Highlighter struct {
	lexer     chroma.Lexer
	formatter chroma.Formatter
	style     *chroma.Style
}

// NewHighlighter creates a [Highlighter] for the named language. The
// formatter is picked from the terminal's color profile; without color
// support the source is returned unchanged.
func NewHighlighter(language, style string) *Highlighter {
	lexer := lexers.Get(language)
	if lexer == nil {
		lexer = lexers.Fallback
	}

	formatterName := "noop"
	switch termenv.ColorProfile() {
	case termenv.TrueColor:
		formatterName = "terminal16m"

	case termenv.ANSI256:
		formatterName = "terminal256"

	case termenv.ANSI:
		formatterName = "terminal8"
	}

	if style == "" {
		style = DefaultChromaStyle
	}

	return &Highlighter{
		lexer:     chroma.Coalesce(lexer),
		formatter: formatters.Get(formatterName),
		style:     styles.Get(style),
	}
}

// SetFormatter sets the chroma formatter explicitly.
func (h *Highlighter) SetFormatter(name string) {
	h.formatter = formatters.Get(name)
}

// Render highlights src.
func (h *Highlighter) Render(src string) (string, error) {
	iterator, err := h.lexer.Tokenise(nil, src)
	if err != nil {
		return "", fmt.Errorf("lexer tokenize: %w", err)
	}

	buf := &bytes.Buffer{}

	err = h.formatter.Format(buf, h.style, iterator)
	if err != nil {
		return "", fmt.Errorf("format: %w", err)
	}

	return strings.TrimRight(buf.String(), "\n") + "\n", nil
}
