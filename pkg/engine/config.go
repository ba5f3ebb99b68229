package engine

import (
	"errors"
	"fmt"

	"github.com/macropower/loadout/pkg/limit"
	"github.com/macropower/loadout/pkg/resolve"
)

var ErrInvalidConfig = errors.New("invalid engine config")

// Config holds the tunable engine settings of a configuration file.
type Config struct {
	// Weights are the default tier weights for matchers without an explicit weight.
	Weights *Weights `json:"weights,omitempty" jsonschema:"title=Tier Weights"`
	// OptionalThreshold is the score an optional dependency must exceed.
	OptionalThreshold *int `json:"optionalThreshold,omitempty" jsonschema:"title=Optional Threshold,minimum=0"`
	// MaxDepth is the maximum depth at which optional dependencies are followed.
	MaxDepth *int `json:"maxDepth,omitempty" jsonschema:"title=Optional Max Depth,minimum=0"`
	// Limits overrides the load limit of individual scopes.
	Limits map[limit.Scope]int `json:"limits,omitempty" jsonschema:"title=Load Limits"`
}

// NewConfig returns a [Config] populated with the default settings.
func NewConfig() *Config {
	c := &Config{}
	c.EnsureDefaults()

	return c
}

// EnsureDefaults fills unset fields with the default settings.
func (c *Config) EnsureDefaults() {
	if c.Weights == nil {
		w := DefaultWeights()
		c.Weights = &w
	} else {
		def := DefaultWeights()
		if c.Weights.FileType == 0 {
			c.Weights.FileType = def.FileType
		}
		if c.Weights.Manifest == 0 {
			c.Weights.Manifest = def.Manifest
		}
		if c.Weights.Keyword == 0 {
			c.Weights.Keyword = def.Keyword
		}
	}

	if c.OptionalThreshold == nil {
		n := resolve.DefaultOptionalThreshold
		c.OptionalThreshold = &n
	}

	if c.MaxDepth == nil {
		n := resolve.DefaultMaxDepth
		c.MaxDepth = &n
	}
}

// Validate checks the settings without applying defaults.
func (c *Config) Validate() error {
	if c.Weights != nil && (c.Weights.FileType < 0 || c.Weights.Manifest < 0 || c.Weights.Keyword < 0) {
		return fmt.Errorf("%w: weights must not be negative", ErrInvalidConfig)
	}

	if c.OptionalThreshold != nil && *c.OptionalThreshold < 0 {
		return fmt.Errorf("%w: optionalThreshold must not be negative", ErrInvalidConfig)
	}

	if c.MaxDepth != nil && *c.MaxDepth < 0 {
		return fmt.Errorf("%w: maxDepth must not be negative", ErrInvalidConfig)
	}

	_, err := limit.DefaultLimits().With(c.Limits)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return nil
}

// Options converts the config into engine options.
func (c *Config) Options() ([]Opt, error) {
	err := c.Validate()
	if err != nil {
		return nil, err
	}

	limits, err := limit.DefaultLimits().With(c.Limits)
	if err != nil {
		return nil, fmt.Errorf("limits: %w", err)
	}

	opts := []Opt{WithLimits(limits)}
	if c.Weights != nil {
		opts = append(opts, WithWeights(*c.Weights))
	}
	if c.OptionalThreshold != nil {
		opts = append(opts, WithOptionalThreshold(*c.OptionalThreshold))
	}
	if c.MaxDepth != nil {
		opts = append(opts, WithMaxDepth(*c.MaxDepth))
	}

	return opts, nil
}
