package expr_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macropower/loadout/pkg/expr"
)

func TestEnvironment_Guards(t *testing.T) {
	t.Parallel()

	env := expr.MustNewEnvironment()

	vars := map[string]any{
		expr.VarFiles:        []string{"/repo/web/App.tsx", "/repo/Dockerfile"},
		expr.VarDependencies: map[string]string{"react": "^18.2.0", "typescript": "5.4"},
		expr.VarRequest:      "add a login form",
	}

	tcs := map[string]struct {
		expression string
		want       bool
	}{
		"pathExt in list": {
			expression: `files.exists(f, pathExt(f) in [".tsx", ".jsx"])`,
			want:       true,
		},
		"pathBase equality": {
			expression: `files.exists(f, pathBase(f) == "Dockerfile")`,
			want:       true,
		},
		"pathDir contains": {
			expression: `files.exists(f, pathDir(f).contains("/migrations"))`,
			want:       false,
		},
		"dependency present": {
			expression: `"react" in dependencies`,
			want:       true,
		},
		"semver at least": {
			expression: `semverCompare(dependencies["react"], "18.0.0") >= 0`,
			want:       true,
		},
		"semver below": {
			expression: `semverCompare(dependencies["typescript"], "5.5") < 0`,
			want:       true,
		},
		"request contains": {
			expression: `request.contains("login")`,
			want:       true,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			program, err := env.Compile(tc.expression)
			require.NoError(t, err)

			got, err := expr.EvalBool(program, vars)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestEnvironment_CompileErrors(t *testing.T) {
	t.Parallel()

	env := expr.MustNewEnvironment()

	tcs := map[string]struct {
		expression string
	}{
		"syntax error":     {expression: `files.exists(f,`},
		"unknown function": {expression: `nope(request)`},
		"non-bool result":  {expression: `pathBase(request)`},
		"wrong arg type":   {expression: `pathBase(42) == ""`},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := env.Compile(tc.expression)
			require.Error(t, err)
		})
	}
}

func TestCanonicalVersion(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		in   string
		want string
	}{
		"caret":      {in: "^18.2.0", want: "v18.2.0"},
		"tilde":      {in: "~1.4", want: "v1.4.0"},
		"pep440":     {in: "~=3.11", want: "v3.11.0"},
		"go version": {in: "v1.9.1", want: "v1.9.1"},
		"wildcard":   {in: "*", want: ""},
		"empty":      {in: "", want: ""},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.want, expr.CanonicalVersion(tc.in))
		})
	}
}
