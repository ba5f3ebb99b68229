// Package manifest parses project dependency-declaration files.
//
// Supported files are selected by base name:
//   - go.mod
//   - package.json, composer.json (comments and trailing commas allowed)
//   - Cargo.toml, pyproject.toml
//   - requirements.txt
//   - Gemfile
//   - pubspec.yaml
//
// Each parser returns the declared [Dependency] values sorted by name.
package manifest
