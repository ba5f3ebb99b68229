// Package configs provides the global Configuration type for loadout.
package configs

import (
	"fmt"

	"github.com/invopop/jsonschema"

	_ "embed"

	"github.com/macropower/loadout/api"
	"github.com/macropower/loadout/api/v1beta1"
	"github.com/macropower/loadout/pkg/engine"
	"github.com/macropower/loadout/pkg/rule"
	"github.com/macropower/loadout/pkg/yaml"
)

//go:generate go run ../../../internal/schemagen/main.go -o configs.v1beta1.json

var (
	//go:embed config.yaml
	defaultConfigYAML []byte

	//go:embed configs.v1beta1.json
	schemaJSON []byte

	// ValidKinds contains the valid kind values for global configurations.
	ValidKinds = []string{"Configuration"}

	// DefaultValidator validates global configuration against the JSON schema.
	DefaultValidator = yaml.MustNewValidator("/configs.v1beta1.json", schemaJSON)

	// Compile-time interface checks.
	_ v1beta1.Object = (*Config)(nil)
)

// Config represents the global loadout configuration: engine settings and
// the rule registry.
//
//nolint:recvcheck // Must satisfy the jsonschema interface.
type Config struct {
	// Engine tunes scoring, dependency expansion and load limits.
	Engine *engine.Config `json:"engine,omitempty" jsonschema:"title=Engine"`
	v1beta1.TypeMeta `json:",inline"`
	// Rules is the rule registry.
	Rules []*rule.Rule `json:"rules,omitempty" jsonschema:"title=Rules"`
}

// New creates a new global [Config] with default values and no rules.
func New() *Config {
	c := &Config{
		TypeMeta: v1beta1.TypeMeta{
			APIVersion: v1beta1.APIVersion,
			Kind:       "Configuration",
		},
	}
	c.EnsureDefaults()

	return c
}

// Default returns the embedded default configuration, including the built-in
// rule registry.
func Default() (*Config, error) {
	c := &Config{}

	err := yaml.Unmarshal(defaultConfigYAML, c)
	if err != nil {
		return nil, fmt.Errorf("decode default config: %w", err)
	}

	c.EnsureDefaults()

	return c, nil
}

// DefaultYAML returns the embedded default config.yaml.
func DefaultYAML() []byte {
	return defaultConfigYAML
}

// EnsureDefaults initializes nil fields to their default values.
func (c *Config) EnsureDefaults() {
	if c.Engine == nil {
		c.Engine = engine.NewConfig()
	} else {
		c.Engine.EnsureDefaults()
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Engine != nil {
		err := c.Engine.Validate()
		if err != nil {
			return fmt.Errorf("validate engine config: %w", err)
		}
	}

	seen := make(map[rule.ID]bool, len(c.Rules))
	for i, r := range c.Rules {
		if r == nil || r.ID == "" {
			return fmt.Errorf("rules[%d]: %w", i, rule.ErrEmptyID)
		}
		if seen[r.ID] {
			return fmt.Errorf("rules[%d]: duplicate rule %q", i, r.ID)
		}

		seen[r.ID] = true
	}

	return nil
}

func (c Config) JSONSchemaExtend(jss *jsonschema.Schema) {
	v1beta1.ExtendSchemaWithEnums(jss, v1beta1.ValidAPIVersions, ValidKinds)
}

// MarshalYAML serializes the config to YAML.
func (c Config) MarshalYAML() ([]byte, error) {
	type alias Config

	b, err := api.MarshalYAML(alias(c))
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}

	return b, nil
}

// Write writes the config to the specified path if it doesn't already exist.
func (c Config) Write(path string) error {
	b, err := c.MarshalYAML()
	if err != nil {
		return err
	}

	err = api.WriteIfNotExists(path, b)
	if err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// WriteDefault writes the embedded default config.yaml to the specified path.
func WriteDefault(path string, force bool) error {
	err := api.WriteDefaultFile(path, defaultConfigYAML, force, "configuration")
	if err != nil {
		return fmt.Errorf("write default config: %w", err)
	}

	return nil
}

// GetPath returns the path to the global configuration file.
func GetPath() string {
	return api.GetConfigPath("config.yaml")
}
