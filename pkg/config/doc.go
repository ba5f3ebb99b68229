// Package config loads loadout configuration files.
//
// It wraps the configuration kinds in [github.com/macropower/loadout/api] to
// provide a single API for loading and validating them, and for combining
// the global configuration with a project configuration into the rule
// registry and engine settings of a discovery run.
package config
