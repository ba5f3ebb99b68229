package manifest

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/tidwall/jsonc"
	"golang.org/x/mod/modfile"

	"github.com/macropower/loadout/pkg/yaml"
)

func parseGoMod(content []byte) ([]Dependency, error) {
	f, err := modfile.ParseLax("go.mod", content, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	deps := make([]Dependency, 0, len(f.Require)+1)
	if f.Go != nil {
		deps = append(deps, Dependency{Name: "go", Version: f.Go.Version})
	}

	for _, req := range f.Require {
		deps = append(deps, Dependency{Name: req.Mod.Path, Version: req.Mod.Version})
	}

	return deps, nil
}

type packageJSON struct {
	Dependencies         map[string]string `json:"dependencies"`
	DevDependencies      map[string]string `json:"devDependencies"`
	PeerDependencies     map[string]string `json:"peerDependencies"`
	OptionalDependencies map[string]string `json:"optionalDependencies"`
}

func parsePackageJSON(content []byte) ([]Dependency, error) {
	var pkg packageJSON

	err := json.Unmarshal(jsonc.ToJSON(content), &pkg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	return fromStringMaps(pkg.Dependencies, pkg.DevDependencies, pkg.PeerDependencies, pkg.OptionalDependencies), nil
}

type composerJSON struct {
	Require    map[string]string `json:"require"`
	RequireDev map[string]string `json:"require-dev"`
}

func parseComposerJSON(content []byte) ([]Dependency, error) {
	var pkg composerJSON

	err := json.Unmarshal(jsonc.ToJSON(content), &pkg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	return fromStringMaps(pkg.Require, pkg.RequireDev), nil
}

type cargoTOML struct {
	Dependencies      map[string]any `toml:"dependencies"`
	DevDependencies   map[string]any `toml:"dev-dependencies"`
	BuildDependencies map[string]any `toml:"build-dependencies"`
	Workspace         struct {
		Dependencies map[string]any `toml:"dependencies"`
	} `toml:"workspace"`
}

func parseCargoTOML(content []byte) ([]Dependency, error) {
	var cargo cargoTOML

	err := toml.Unmarshal(content, &cargo)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	return fromAnyMaps(cargo.Dependencies, cargo.DevDependencies, cargo.BuildDependencies, cargo.Workspace.Dependencies), nil
}

type pyProjectTOML struct {
	Project struct {
		OptionalDependencies map[string][]string `toml:"optional-dependencies"`
		Dependencies         []string            `toml:"dependencies"`
	} `toml:"project"`
	Tool struct {
		Poetry struct {
			Dependencies    map[string]any `toml:"dependencies"`
			DevDependencies map[string]any `toml:"dev-dependencies"`
			Group           map[string]struct {
				Dependencies map[string]any `toml:"dependencies"`
			} `toml:"group"`
		} `toml:"poetry"`
	} `toml:"tool"`
}

func parsePyProjectTOML(content []byte) ([]Dependency, error) {
	var py pyProjectTOML

	err := toml.Unmarshal(content, &py)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	deps := []Dependency{}

	requirements := py.Project.Dependencies
	for _, extra := range py.Project.OptionalDependencies {
		requirements = append(requirements, extra...)
	}

	for _, req := range requirements {
		dep, ok := parseRequirement(req)
		if !ok {
			return nil, fmt.Errorf("%w: invalid requirement %q", ErrMalformed, req)
		}

		deps = append(deps, dep)
	}

	poetry := []map[string]any{py.Tool.Poetry.Dependencies, py.Tool.Poetry.DevDependencies}
	for _, group := range py.Tool.Poetry.Group {
		poetry = append(poetry, group.Dependencies)
	}

	for _, dep := range fromAnyMaps(poetry...) {
		dep.Name = normalizePythonName(dep.Name)
		deps = append(deps, dep)
	}

	return deps, nil
}

func parseRequirementsTXT(content []byte) ([]Dependency, error) {
	deps := []Dependency{}

	scanner := bufio.NewScanner(bytes.NewReader(content))
	lineNum, startLine := 0, 0

	var logical strings.Builder
	for scanner.Scan() {
		lineNum++
		if logical.Len() == 0 {
			startLine = lineNum
		}

		raw := strings.TrimSpace(scanner.Text())
		if cont, ok := strings.CutSuffix(raw, "\\"); ok {
			logical.WriteString(cont)
			logical.WriteByte(' ')

			continue
		}

		logical.WriteString(raw)
		line := logical.String()
		logical.Reset()

		dep, ok, err := parseRequirementLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", startLine, err)
		}
		if ok {
			deps = append(deps, dep)
		}
	}

	err := scanner.Err()
	if err != nil {
		return nil, fmt.Errorf("scan lines: %w", err)
	}

	if logical.Len() > 0 {
		dep, ok, err := parseRequirementLine(logical.String())
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", startLine, err)
		}
		if ok {
			deps = append(deps, dep)
		}
	}

	return deps, nil
}

// parseRequirementLine parses one logical requirements.txt line. Per-requirement
// options such as --hash are dropped; option-only lines are skipped.
func parseRequirementLine(line string) (Dependency, bool, error) {
	line = stripComment(line)
	if line == "" || strings.HasPrefix(line, "-") {
		return Dependency{}, false, nil
	}

	if i := strings.Index(line, " --"); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}

	dep, ok := parseRequirement(line)
	if !ok {
		return Dependency{}, false, fmt.Errorf("%w: %q", ErrMalformed, line)
	}

	return dep, true, nil
}

var gemLine = regexp.MustCompile(`^\s*gem\s+["']([^"']+)["'](?:\s*,\s*["']([^"']+)["'])?`)

func parseGemfile(content []byte) ([]Dependency, error) {
	deps := []Dependency{}

	scanner := bufio.NewScanner(bytes.NewReader(content))
	for scanner.Scan() {
		m := gemLine.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}

		deps = append(deps, Dependency{Name: m[1], Version: m[2]})
	}

	err := scanner.Err()
	if err != nil {
		return nil, fmt.Errorf("scan lines: %w", err)
	}

	return deps, nil
}

type pubspecYAML struct {
	Dependencies    map[string]any `yaml:"dependencies"`
	DevDependencies map[string]any `yaml:"dev_dependencies"`
}

func parsePubspecYAML(content []byte) ([]Dependency, error) {
	var pub pubspecYAML

	err := yaml.Unmarshal(content, &pub)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	return fromAnyMaps(pub.Dependencies, pub.DevDependencies), nil
}

// PEP 508 requirement: name, optional extras, then a version specifier or a
// URL, then optional environment markers.
var requirement = regexp.MustCompile(`^([A-Za-z0-9][A-Za-z0-9._-]*)\s*(?:\[[^\]]*\])?\s*(.*)$`)

func parseRequirement(s string) (Dependency, bool) {
	m := requirement.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return Dependency{}, false
	}

	version, _, _ := strings.Cut(m[2], ";")
	version = strings.TrimSpace(version)
	if strings.HasPrefix(version, "@") {
		version = ""
	}

	version = strings.Trim(version, "()")

	return Dependency{Name: normalizePythonName(m[1]), Version: version}, true
}

var pythonNameSeparators = regexp.MustCompile(`[-_.]+`)

func normalizePythonName(name string) string {
	return pythonNameSeparators.ReplaceAllString(strings.ToLower(name), "-")
}

func stripComment(line string) string {
	line = strings.TrimSpace(line)
	if strings.HasPrefix(line, "#") {
		return ""
	}

	if i := strings.Index(line, " #"); i >= 0 {
		line = line[:i]
	}

	return strings.TrimSpace(line)
}

func fromStringMaps(maps ...map[string]string) []Dependency {
	deps := []Dependency{}
	for _, m := range maps {
		for name, version := range m {
			deps = append(deps, Dependency{Name: name, Version: version})
		}
	}

	return deps
}

func fromAnyMaps(maps ...map[string]any) []Dependency {
	deps := []Dependency{}
	for _, m := range maps {
		for name, v := range m {
			deps = append(deps, Dependency{Name: name, Version: versionOf(v)})
		}
	}

	return deps
}

// versionOf reads a version from either a plain string or a table with a
// "version" key.
func versionOf(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case map[string]any:
		if s, ok := val["version"].(string); ok {
			return s
		}
	}

	return ""
}
