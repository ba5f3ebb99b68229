package expr

import (
	"path/filepath"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/ext"
	"golang.org/x/mod/semver"
)

type lib struct{}

func (lib) CompileOptions() []cel.EnvOption {
	return []cel.EnvOption{
		ext.Strings(),
		ext.Lists(),

		// `pathBase` returns the last element of the path.
		// Example: files.exists(f, pathBase(f) == "Dockerfile").
		cel.Function("pathBase",
			cel.Overload("path_base", []*cel.Type{cel.StringType}, cel.StringType,
				cel.UnaryBinding(stringFunc("pathBase", filepath.Base)),
			),
		),

		// `pathDir` returns all but the last element of the path.
		// Example: files.exists(f, pathDir(f).contains("/migrations")).
		cel.Function("pathDir",
			cel.Overload("path_dir", []*cel.Type{cel.StringType}, cel.StringType,
				cel.UnaryBinding(stringFunc("pathDir", filepath.Dir)),
			),
		),

		// `pathExt` returns the file extension of the path, including the dot.
		// Example: files.exists(f, pathExt(f) in [".ts", ".tsx"]).
		cel.Function("pathExt",
			cel.Overload("path_ext", []*cel.Type{cel.StringType}, cel.StringType,
				cel.UnaryBinding(stringFunc("pathExt", filepath.Ext)),
			),
		),

		// `semverCompare` compares two versions, with or without a "v" prefix
		// and ignoring range operators like "^" or "~".
		// Example: semverCompare(dependencies["react"], "18.0.0") >= 0.
		cel.Function("semverCompare",
			cel.Overload("semver_compare", []*cel.Type{cel.StringType, cel.StringType}, cel.IntType,
				cel.BinaryBinding(func(a, b ref.Val) ref.Val {
					av, aok := a.(types.String)
					bv, bok := b.(types.String)
					if !aok || !bok {
						return types.NewErr("semverCompare: invalid string value")
					}

					return types.Int(semver.Compare(CanonicalVersion(string(av)), CanonicalVersion(string(bv))))
				}),
			),
		),
	}
}

func (lib) ProgramOptions() []cel.ProgramOption {
	return []cel.ProgramOption{}
}

func stringFunc(name string, fn func(string) string) func(ref.Val) ref.Val {
	return func(v ref.Val) ref.Val {
		s, ok := v.(types.String)
		if !ok {
			return types.NewErr("%s: invalid string value", name)
		}

		return types.String(fn(string(s)))
	}
}

// CanonicalVersion converts a declared version such as "^1.2", "~=3.4.1" or
// "1.21" into the "vMAJOR.MINOR.PATCH" form understood by
// [golang.org/x/mod/semver]. Unparseable versions return "".
func CanonicalVersion(version string) string {
	v := strings.TrimSpace(version)
	v = strings.TrimLeft(v, "^~=><! ")
	if v == "" {
		return ""
	}

	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}

	return semver.Canonical(v)
}
