package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/lipgloss"

	"github.com/macropower/loadout/pkg/limit"
	"github.com/macropower/loadout/pkg/registry"
	"github.com/macropower/loadout/pkg/render"
)

// ErrorHandler prints err with a hint for the errors a user can fix from the
// command line.
func ErrorHandler(w io.Writer, styles fang.Styles, err error) {
	mustN(fmt.Fprintln(w, styles.ErrorHeader.String()))
	mustN(fmt.Fprintln(w, lipgloss.NewStyle().MarginLeft(2).Render(err.Error())))
	mustN(fmt.Fprintln(w))

	hint, purpose := errorHint(err)
	if hint == "" {
		return
	}

	mustN(fmt.Fprintln(w, lipgloss.JoinHorizontal(
		lipgloss.Left,
		styles.ErrorText.UnsetWidth().Render("Try"),
		styles.Program.Flag.Render(hint),
		styles.ErrorText.UnsetWidth().UnsetMargins().UnsetTransform().PaddingLeft(1).Render(purpose),
	)))
	mustN(fmt.Fprintln(w))
}

func errorHint(err error) (string, string) {
	switch {
	case errors.Is(err, limit.ErrUnknownScope):
		return "--scope " + strings.Join(limit.ScopeStrings(), "|"), "instead."
	case errors.Is(err, render.ErrUnknownFormat):
		return "--output " + strings.Join(render.AllFormats, "|"), "instead."
	case errors.Is(err, registry.ErrDependencyCycle), errors.Is(err, registry.ErrUnknownRule):
		return "--show-config", "to inspect the rule graph."
	case isUsageError(err):
		return "--help", "for usage."
	}

	return "", ""
}

// Cobra does not export typed usage errors.
// See: https://github.com/spf13/cobra/pull/2266
func isUsageError(err error) bool {
	s := err.Error()
	for _, prefix := range []string{
		"flag needs an argument:",
		"unknown flag:",
		"unknown shorthand flag:",
		"unknown command",
		"invalid argument",
		"accepts at most",
	} {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}

	return false
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

func mustN(_ int, err error) {
	must(err)
}
