// Package expr provides the CEL (Common Expression Language) environment used
// by rule applicability guards.
//
// Guard expressions have access to variables:
//   - `files` (list<string>): The active and open file identifiers
//   - `dependencies` (map<string, string>): Declared dependency names to versions
//   - `request` (string): The case-folded user request
//
// Additional functions:
//   - pathBase(string), pathDir(string), pathExt(string): File path helpers
//   - semverCompare(string, string) -> int: Compares two versions (-1, 0, 1)
package expr
