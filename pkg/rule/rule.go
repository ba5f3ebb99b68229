package rule

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/cel-go/cel"
	"golang.org/x/text/cases"

	"github.com/macropower/loadout/pkg/expr"
)

var (
	ErrEmptyID         = errors.New("rule id is empty")
	ErrEmptyPattern    = errors.New("pattern is empty")
	ErrInvalidPattern  = errors.New("invalid pattern")
	ErrNegativeWeight  = errors.New("weight must not be negative")
	ErrRuleNotCompiled = errors.New("rule has not been compiled")
)

// ID is the stable identifier of a rule.
type ID string

// Rule describes when a rule applies and which rules it depends on.
//
// Weights of zero fall back to the tier default supplied by the caller.
//
// The optional When guard is a CEL expression evaluated after candidates are
// merged. It has access to variables:
//   - `files` (list<string>): The active and open files
//   - `dependencies` (map<string, string>): Declared dependency versions
//   - `request` (string): The case-folded request text
//
// Examples:
//   - "react" in dependencies && semverCompare(dependencies["react"], "18.0.0") >= 0
//   - files.exists(f, pathDir(f).contains("/migrations"))
//   - !request.contains("readme")
type Rule struct {
	whenProgram cel.Program

	// ID uniquely identifies the rule.
	ID ID `json:"id" jsonschema:"title=Rule ID"`
	// Description is a short human readable summary.
	Description string `json:"description,omitempty" jsonschema:"title=Description"`
	// When is a CEL expression that must evaluate to true for the rule to be kept.
	When string `json:"when,omitempty" jsonschema:"title=Applicability Guard"`
	// FileTypes match active and open files.
	FileTypes []*FileType `json:"fileTypes,omitempty" jsonschema:"title=File Type Patterns"`
	// Dependencies match dependencies declared in manifest files.
	Dependencies []*Dependency `json:"dependencies,omitempty" jsonschema:"title=Dependency Patterns"`
	// Keywords match the free-text request.
	Keywords []*Keyword `json:"keywords,omitempty" jsonschema:"title=Keyword Patterns"`
	// Requires lists rules that are always loaded together with this rule.
	Requires []ID `json:"requires,omitempty" jsonschema:"title=Required Rules"`
	// Optional lists rules that are loaded when they score high enough.
	Optional []ID `json:"optional,omitempty" jsonschema:"title=Optional Rules"`
}

// FileType matches file names with a doublestar glob.
//
// Patterns without a slash match the base name, so "*.go" or "Dockerfile".
// Patterns with a slash match the whole slash-separated path. A bare
// extension such as ".tsx" is shorthand for "*.tsx".
type FileType struct {
	Pattern string `json:"pattern" jsonschema:"title=Glob Pattern"`
	Weight  int    `json:"weight,omitempty" jsonschema:"title=Weight,minimum=0"`

	glob     string
	fullPath bool
}

// Dependency matches declared dependency names with an anchored regular
// expression, optionally restricted to one manifest file name.
type Dependency struct {
	re *regexp.Regexp

	Pattern  string `json:"pattern" jsonschema:"title=Name Pattern"`
	Manifest string `json:"manifest,omitempty" jsonschema:"title=Manifest File Name"`
	Weight   int    `json:"weight,omitempty" jsonschema:"title=Weight,minimum=0"`
}

// Keyword matches the request text. Plain phrases match whole words ignoring
// case. Patterns wrapped in slashes, like "/migrat(e|ion)s?/", are regular
// expressions.
type Keyword struct {
	re *regexp.Regexp

	Pattern string `json:"pattern" jsonschema:"title=Keyword or /Regex/"`
	Weight  int    `json:"weight,omitempty" jsonschema:"title=Weight,minimum=0"`
}

// New creates and compiles a rule with the given id.
func New(id ID, env *expr.Environment, opts ...Opt) (*Rule, error) {
	r := &Rule{ID: id}
	for _, opt := range opts {
		opt(r)
	}

	err := r.Compile(env)
	if err != nil {
		return nil, err
	}

	return r, nil
}

// MustNew creates a new rule and panics if there's an error.
func MustNew(id ID, env *expr.Environment, opts ...Opt) *Rule {
	r, err := New(id, env, opts...)
	if err != nil {
		panic(err)
	}

	return r
}

// Opt configures a [Rule] created with [New].
type Opt func(*Rule)

func WithFileType(pattern string, weight int) Opt {
	return func(r *Rule) {
		r.FileTypes = append(r.FileTypes, &FileType{Pattern: pattern, Weight: weight})
	}
}

func WithDependency(manifest, pattern string, weight int) Opt {
	return func(r *Rule) {
		r.Dependencies = append(r.Dependencies, &Dependency{Pattern: pattern, Manifest: manifest, Weight: weight})
	}
}

func WithKeyword(pattern string, weight int) Opt {
	return func(r *Rule) {
		r.Keywords = append(r.Keywords, &Keyword{Pattern: pattern, Weight: weight})
	}
}

func WithWhen(expression string) Opt {
	return func(r *Rule) {
		r.When = expression
	}
}

func WithRequires(ids ...ID) Opt {
	return func(r *Rule) {
		r.Requires = append(r.Requires, ids...)
	}
}

func WithOptional(ids ...ID) Opt {
	return func(r *Rule) {
		r.Optional = append(r.Optional, ids...)
	}
}

// Compile validates the rule's patterns and compiles its guard with env.
// A nil env is only valid for rules without a guard.
func (r *Rule) Compile(env *expr.Environment) error {
	if r.ID == "" {
		return ErrEmptyID
	}

	for i, ft := range r.FileTypes {
		err := ft.compile()
		if err != nil {
			return fmt.Errorf("rule %q: fileTypes[%d]: %w", r.ID, i, err)
		}
	}

	for i, dep := range r.Dependencies {
		err := dep.compile()
		if err != nil {
			return fmt.Errorf("rule %q: dependencies[%d]: %w", r.ID, i, err)
		}
	}

	for i, kw := range r.Keywords {
		err := kw.compile()
		if err != nil {
			return fmt.Errorf("rule %q: keywords[%d]: %w", r.ID, i, err)
		}
	}

	r.whenProgram = nil
	if r.When != "" {
		if env == nil {
			return fmt.Errorf("rule %q: %w", r.ID, ErrRuleNotCompiled)
		}

		program, err := env.Compile(r.When)
		if err != nil {
			return fmt.Errorf("rule %q: when: %w", r.ID, err)
		}

		r.whenProgram = program
	}

	return nil
}

// MatchFile returns the highest weight of the file type patterns matching
// path. Zero pattern weights are replaced by def.
func (r *Rule) MatchFile(path string, def int) (int, bool) {
	best, ok := 0, false
	for _, ft := range r.FileTypes {
		if !ft.matches(path) {
			continue
		}

		w := weightOr(ft.Weight, def)
		if !ok || w > best {
			best, ok = w, true
		}
	}

	return best, ok
}

// MatchDependency returns the highest weight of the dependency patterns
// matching name as declared in the manifest file with base name manifest.
func (r *Rule) MatchDependency(manifest, name string, def int) (int, bool) {
	best, ok := 0, false
	for _, dep := range r.Dependencies {
		if dep.Manifest != "" && dep.Manifest != manifest {
			continue
		}
		if dep.re == nil || !dep.re.MatchString(name) {
			continue
		}

		w := weightOr(dep.Weight, def)
		if !ok || w > best {
			best, ok = w, true
		}
	}

	return best, ok
}

// MatchRequest returns the highest weight of the keyword patterns matching
// the already folded request text. See [Fold].
func (r *Rule) MatchRequest(folded string, def int) (int, bool) {
	best, ok := 0, false
	for _, kw := range r.Keywords {
		if kw.re == nil || !kw.re.MatchString(folded) {
			continue
		}

		w := weightOr(kw.Weight, def)
		if !ok || w > best {
			best, ok = w, true
		}
	}

	return best, ok
}

// HasGuard reports whether the rule carries a When expression.
func (r *Rule) HasGuard() bool {
	return r.When != ""
}

// Applies evaluates the When guard with vars. Rules without a guard always
// apply.
func (r *Rule) Applies(vars map[string]any) (bool, error) {
	if r.When == "" {
		return true, nil
	}
	if r.whenProgram == nil {
		return false, fmt.Errorf("rule %q: %w", r.ID, ErrRuleNotCompiled)
	}

	ok, err := expr.EvalBool(r.whenProgram, vars)
	if err != nil {
		return false, fmt.Errorf("rule %q: %w", r.ID, err)
	}

	return ok, nil
}

func (r *Rule) String() string {
	return string(r.ID)
}

func (ft *FileType) compile() error {
	if err := checkWeight(ft.Pattern, ft.Weight); err != nil {
		return err
	}

	glob := ft.Pattern
	if strings.HasPrefix(glob, ".") && !strings.ContainsAny(glob, "/*") {
		glob = "*" + glob
	}

	if !doublestar.ValidatePattern(glob) {
		return fmt.Errorf("%w: %q", ErrInvalidPattern, ft.Pattern)
	}

	ft.glob = glob
	ft.fullPath = strings.Contains(glob, "/")

	return nil
}

func (ft *FileType) matches(path string) bool {
	if ft.glob == "" {
		return false
	}

	name := filepath.ToSlash(path)
	if !ft.fullPath {
		name = filepath.Base(path)
	}

	ok, err := doublestar.Match(ft.glob, name)

	return err == nil && ok
}

func (dep *Dependency) compile() error {
	if err := checkWeight(dep.Pattern, dep.Weight); err != nil {
		return err
	}

	re, err := regexp.Compile("^(?:" + dep.Pattern + ")$")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPattern, err)
	}

	dep.re = re

	return nil
}

// Word characters are letters, digits and underscores in any script.
const (
	wordStart = `(?:^|[^\p{L}\p{N}_])`
	wordEnd   = `(?:$|[^\p{L}\p{N}_])`
)

func (kw *Keyword) compile() error {
	if err := checkWeight(kw.Pattern, kw.Weight); err != nil {
		return err
	}

	var expression string
	if len(kw.Pattern) > 2 && strings.HasPrefix(kw.Pattern, "/") && strings.HasSuffix(kw.Pattern, "/") {
		expression = "(?i)" + kw.Pattern[1:len(kw.Pattern)-1]
	} else {
		phrase := strings.Join(strings.Fields(Fold(kw.Pattern)), " ")
		if phrase == "" {
			return ErrEmptyPattern
		}

		expression = wordStart + strings.ReplaceAll(regexp.QuoteMeta(phrase), " ", `\s+`) + wordEnd
	}

	re, err := regexp.Compile(expression)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPattern, err)
	}

	kw.re = re

	return nil
}

// Fold returns the case-folded form of s used for keyword matching.
func Fold(s string) string {
	return cases.Fold().String(s)
}

func checkWeight(pattern string, weight int) error {
	if strings.TrimSpace(pattern) == "" {
		return ErrEmptyPattern
	}
	if weight < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeWeight, weight)
	}

	return nil
}

func weightOr(weight, def int) int {
	if weight == 0 {
		return def
	}

	return weight
}
