package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"slices"

	"github.com/macropower/loadout/api/v1beta1/configs"
	"github.com/macropower/loadout/api/v1beta1/projectconfigs"
	"github.com/macropower/loadout/pkg/engine"
	"github.com/macropower/loadout/pkg/expr"
	"github.com/macropower/loadout/pkg/limit"
	"github.com/macropower/loadout/pkg/registry"
	"github.com/macropower/loadout/pkg/rule"
)

var ErrUnknownDisabledRule = errors.New("disabled rule is not defined")

// LoadConfig loads the global configuration at path. When no file exists at
// path, the embedded default is written there first.
func LoadConfig(path string, opts ...LoaderOpt) (*configs.Config, error) {
	err := configs.WriteDefault(path, false)
	if err != nil {
		return nil, fmt.Errorf("ensure config: %w", err)
	}

	cl, err := NewLoaderFromFile(path, configs.New, configs.DefaultValidator, opts...)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	err = cl.Validate()
	if err != nil {
		return nil, fmt.Errorf("validate config %s: %w", path, err)
	}

	cfg, err := cl.Load()
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}

	return cfg, nil
}

// LoadProjectConfig finds and loads the project configuration for root. It
// returns nil and an empty path when root has no project configuration.
func LoadProjectConfig(root string, opts ...LoaderOpt) (*projectconfigs.ProjectConfig, string, error) {
	path, err := projectconfigs.Find(root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", err //nolint:wrapcheck // Already wrapped.
	}
	if path == "" {
		return nil, "", nil
	}

	slog.Debug("found project config", slog.String("path", path))

	pl, err := NewLoaderFromFile(path, projectconfigs.New, projectconfigs.DefaultValidator, opts...)
	if err != nil {
		return nil, path, fmt.Errorf("read project config: %w", err)
	}

	err = pl.Validate()
	if err != nil {
		return nil, path, fmt.Errorf("validate project config %s: %w", path, err)
	}

	pc, err := pl.Load()
	if err != nil {
		return nil, path, fmt.Errorf("load project config %s: %w", path, err)
	}

	return pc, path, nil
}

// Effective is the combination of a global and a project configuration.
type Effective struct {
	// Engine holds the engine settings, with project limits applied.
	Engine *engine.Config `json:"engine" yaml:"engine"`
	// Rules is the combined rule registry, in declaration order.
	Rules []*rule.Rule `json:"rules" yaml:"rules"`
	// ProjectPath is the project configuration file, if any.
	ProjectPath string `json:"projectPath,omitempty" yaml:"projectPath,omitempty"`
}

// Merge combines cfg and pc. Project rules replace global rules with the same
// id and are otherwise appended. Disabled rules are removed, along with any
// reference to them. pc may be nil.
func Merge(cfg *configs.Config, pc *projectconfigs.ProjectConfig) (*Effective, error) {
	if cfg == nil {
		cfg = configs.New()
	}
	if cfg.Engine == nil {
		cfg.EnsureDefaults()
	}

	eng := *cfg.Engine
	eng.Limits = make(map[limit.Scope]int, len(cfg.Engine.Limits))
	for scope, n := range cfg.Engine.Limits {
		eng.Limits[scope] = n
	}

	rules := slices.Clone(cfg.Rules)
	if pc == nil {
		return &Effective{Engine: &eng, Rules: rules}, nil
	}

	for scope, n := range pc.Limits {
		eng.Limits[scope] = n
	}

	for _, r := range pc.Rules {
		i := slices.IndexFunc(rules, func(g *rule.Rule) bool { return g.ID == r.ID })
		if i >= 0 {
			slog.Debug("project rule overrides global rule", slog.String("rule", string(r.ID)))

			rules[i] = r
		} else {
			rules = append(rules, r)
		}
	}

	for _, id := range pc.DisabledRules {
		i := slices.IndexFunc(rules, func(r *rule.Rule) bool { return r.ID == id })
		if i < 0 {
			return nil, fmt.Errorf("%w: %q", ErrUnknownDisabledRule, id)
		}

		rules = slices.Delete(rules, i, i+1)
	}

	if len(pc.DisabledRules) > 0 {
		rules = withoutRefs(rules, pc.DisabledRules)
	}

	return &Effective{Engine: &eng, Rules: rules}, nil
}

// withoutRefs returns copies of the rules whose edges point at a disabled
// rule, with those edges removed.
func withoutRefs(rules []*rule.Rule, disabled []rule.ID) []*rule.Rule {
	isDisabled := func(id rule.ID) bool { return slices.Contains(disabled, id) }

	out := make([]*rule.Rule, 0, len(rules))
	for _, r := range rules {
		if !slices.ContainsFunc(r.Requires, isDisabled) && !slices.ContainsFunc(r.Optional, isDisabled) {
			out = append(out, r)

			continue
		}

		cp := *r
		cp.Requires = slices.DeleteFunc(slices.Clone(r.Requires), isDisabled)
		cp.Optional = slices.DeleteFunc(slices.Clone(r.Optional), isDisabled)
		out = append(out, &cp)
	}

	return out
}

// Registry compiles the effective rules into a [registry.Registry].
func (e *Effective) Registry(env *expr.Environment) (*registry.Registry, error) {
	reg, err := registry.New(env, e.Rules...)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}

	return reg, nil
}

// NewEngine builds an [engine.Engine] from the effective configuration.
// Additional opts are applied after the configured settings.
func (e *Effective) NewEngine(env *expr.Environment, opts ...engine.Opt) (*engine.Engine, error) {
	reg, err := e.Registry(env)
	if err != nil {
		return nil, err
	}

	engOpts, err := e.Engine.Options()
	if err != nil {
		return nil, fmt.Errorf("engine config: %w", err)
	}

	eng, err := engine.New(reg, append(engOpts, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("create engine: %w", err)
	}

	return eng, nil
}
