package manifest

import (
	"cmp"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
)

var (
	ErrNoParser  = errors.New("no parser for file")
	ErrMalformed = errors.New("malformed declaration file")
)

// File is a declaration file found at the project root.
type File struct {
	Path    string `json:"path"`
	Content []byte `json:"-"`
}

// Name returns the base name of the file.
func (f File) Name() string {
	return filepath.Base(f.Path)
}

// Dependency is a single declared dependency. Version is empty when the
// declaration does not constrain it.
type Dependency struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// Parser extracts dependencies from the content of a declaration file.
type Parser func(content []byte) ([]Dependency, error)

var parsers = map[string]Parser{
	"go.mod":           parseGoMod,
	"package.json":     parsePackageJSON,
	"composer.json":    parseComposerJSON,
	"Cargo.toml":       parseCargoTOML,
	"pyproject.toml":   parsePyProjectTOML,
	"requirements.txt": parseRequirementsTXT,
	"Gemfile":          parseGemfile,
	"pubspec.yaml":     parsePubspecYAML,
}

// Names returns the supported declaration file names, sorted.
func Names() []string {
	names := make([]string, 0, len(parsers))
	for name := range parsers {
		names = append(names, name)
	}

	slices.Sort(names)

	return names
}

// IsDeclarationFile reports whether path has the name of a supported
// declaration file.
func IsDeclarationFile(path string) bool {
	_, ok := parsers[filepath.Base(path)]

	return ok
}

// Parse parses f with the parser registered for its base name.
func Parse(f File) ([]Dependency, error) {
	parse, ok := parsers[f.Name()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoParser, f.Name())
	}

	deps, err := parse(f.Content)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", f.Name(), err)
	}

	return normalize(deps), nil
}

// Declaration is the result of parsing one [File].
type Declaration struct {
	Err          error
	File         File
	Dependencies []Dependency
}

// ParseAll parses every file. Failures are recorded per file.
func ParseAll(files []File) []*Declaration {
	decls := make([]*Declaration, 0, len(files))
	for _, f := range files {
		deps, err := Parse(f)
		decls = append(decls, &Declaration{File: f, Dependencies: deps, Err: err})
	}

	return decls
}

// DependencyMap flattens successfully parsed declarations into a map of
// dependency name to version. Earlier declarations win on conflicts.
func DependencyMap(decls []*Declaration) map[string]string {
	out := map[string]string{}
	for _, d := range decls {
		if d.Err != nil {
			continue
		}

		for _, dep := range d.Dependencies {
			if _, ok := out[dep.Name]; !ok {
				out[dep.Name] = dep.Version
			}
		}
	}

	return out
}

// ReadRoot reads every supported declaration file directly inside root, in
// name order. Missing files are skipped; other read errors are returned.
func ReadRoot(root string) ([]File, error) {
	files := []File{}
	for _, name := range Names() {
		path := filepath.Join(root, name)

		content, err := os.ReadFile(path) //nolint:gosec // G304: Potential file inclusion via variable.
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}

		files = append(files, File{Path: path, Content: content})
	}

	return files, nil
}

// Lazy parses a set of files at most once and is safe for concurrent use.
type Lazy struct {
	decls []*Declaration
	files []File
	once  sync.Once
}

// NewLazy creates a [Lazy] for files.
func NewLazy(files []File) *Lazy {
	return &Lazy{files: files}
}

// Declarations returns the parsed declarations.
func (l *Lazy) Declarations() []*Declaration {
	l.once.Do(func() {
		l.decls = ParseAll(l.files)
	})

	return l.decls
}

func normalize(deps []Dependency) []Dependency {
	out := make([]Dependency, 0, len(deps))
	for _, d := range deps {
		d.Name = strings.TrimSpace(d.Name)
		d.Version = strings.TrimSpace(d.Version)
		if d.Name == "" {
			continue
		}

		out = append(out, d)
	}

	slices.SortFunc(out, func(a, b Dependency) int {
		return cmp.Or(
			strings.Compare(a.Name, b.Name),
			strings.Compare(a.Version, b.Version),
		)
	})

	return slices.CompactFunc(out, func(a, b Dependency) bool {
		return a.Name == b.Name
	})
}
