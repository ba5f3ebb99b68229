// Package projectconfigs provides the ProjectConfig configuration type for loadout.
package projectconfigs

import (
	"fmt"
	"slices"

	"github.com/invopop/jsonschema"

	_ "embed"

	"github.com/macropower/loadout/api"
	"github.com/macropower/loadout/api/v1beta1"
	"github.com/macropower/loadout/pkg/limit"
	"github.com/macropower/loadout/pkg/rule"
	"github.com/macropower/loadout/pkg/yaml"
)

//go:generate go run ../../../internal/schemagen/project/main.go -o projectconfigs.v1beta1.json

var (
	// FileNames contains the valid names for project configuration files.
	FileNames = []string{
		".loadout.yaml",
		"loadout.yaml",
	}

	//go:embed projectconfigs.v1beta1.json
	projectSchemaJSON []byte

	// DefaultValidator validates project configuration against the JSON schema.
	DefaultValidator = yaml.MustNewValidator("/projectconfigs.v1beta1.json", projectSchemaJSON)

	// ValidKinds contains the valid kind values for project configurations.
	ValidKinds = []string{"ProjectConfig"}

	// Compile-time interface checks.
	_ v1beta1.Object = (*ProjectConfig)(nil)
)

// ProjectConfig represents project-level configuration.
//
//nolint:recvcheck // Must satisfy the jsonschema interface.
type ProjectConfig struct {
	// Limits overrides the load limit of individual scopes for this project.
	Limits           map[limit.Scope]int `json:"limits,omitempty" jsonschema:"title=Load Limits"`
	v1beta1.TypeMeta `json:",inline"`
	// Rules are added to the registry, replacing global rules with the same id.
	Rules []*rule.Rule `json:"rules,omitempty" jsonschema:"title=Rules"`
	// DisabledRules are removed from the registry.
	DisabledRules []rule.ID `json:"disabledRules,omitempty" jsonschema:"title=Disabled Rules"`
}

// New creates a new [ProjectConfig].
func New() *ProjectConfig {
	return &ProjectConfig{
		TypeMeta: v1beta1.TypeMeta{
			APIVersion: v1beta1.APIVersion,
			Kind:       "ProjectConfig",
		},
	}
}

// EnsureDefaults initializes nil fields to their default values.
func (c *ProjectConfig) EnsureDefaults() {
	if c.Limits == nil {
		c.Limits = map[limit.Scope]int{}
	}
}

// Validate validates the project configuration.
func (c *ProjectConfig) Validate() error {
	_, err := limit.DefaultLimits().With(c.Limits)
	if err != nil {
		return fmt.Errorf("validate limits: %w", err)
	}

	seen := make(map[rule.ID]bool, len(c.Rules))
	for i, r := range c.Rules {
		if r == nil || r.ID == "" {
			return fmt.Errorf("rules[%d]: %w", i, rule.ErrEmptyID)
		}
		if seen[r.ID] {
			return fmt.Errorf("rules[%d]: duplicate rule %q", i, r.ID)
		}
		if slices.Contains(c.DisabledRules, r.ID) {
			return fmt.Errorf("rules[%d]: rule %q is also disabled", i, r.ID)
		}

		seen[r.ID] = true
	}

	return nil
}

func (c ProjectConfig) JSONSchemaExtend(jss *jsonschema.Schema) {
	v1beta1.ExtendSchemaWithEnums(jss, v1beta1.ValidAPIVersions, ValidKinds)
}

// MarshalYAML serializes the project config to YAML.
func (c ProjectConfig) MarshalYAML() ([]byte, error) {
	type alias ProjectConfig

	b, err := api.MarshalYAML(alias(c))
	if err != nil {
		return nil, fmt.Errorf("marshal project config: %w", err)
	}

	return b, nil
}

// Find searches for a project config file starting from targetPath
// and walking up the directory tree until the filesystem root.
// It checks for all [FileNames] in each directory.
// Returns the path to the config file if found, or empty string if not found.
func Find(targetPath string) (string, error) {
	path, err := api.FindConfigFile(targetPath, FileNames)
	if err != nil {
		return "", fmt.Errorf("find project config: %w", err)
	}

	return path, nil
}
