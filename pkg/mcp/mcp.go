// Package mcp exposes rule discovery as a Model Context Protocol server.
package mcp

import "github.com/google/jsonschema-go/jsonschema"

const (
	name         = "loadout"
	instructions = `MCP Server 'loadout' selects the rules (conventions, guides, playbooks) that are relevant to the current task.

When to use these tools:
- Before starting a task, to learn which rules apply to the files and dependencies involved
- After dependency-declaration files change, to refresh the selection

REQUIRED workflow:
1. Call 'discover_rules' with the project root, the active file, any other open files, the user's request and the task scope
2. Load the returned rules in order; each entry explains why it was chosen (score, sources, provenance)
3. Call 'invalidate_rules' when you know the project changed in a way the server cannot see, then call 'discover_rules' again

Scopes: single_file_edit, feature_build, multi_file_task, architecture_review.
Results are cached per session; reuse the same 'session' value for one conversation.
`

	defaultSession = "default"
)

func stringSchema(description string) *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:        "string",
		Description: description,
	}
}

func newDiscoverRulesSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"root":       stringSchema("The project root directory containing dependency-declaration files. Defaults to the server's root."),
			"activeFile": stringSchema("The file currently being edited."),
			"openFiles": {
				Type:        "array",
				Description: "Other open files.",
				Items:       stringSchema("A file path."),
			},
			"request": stringSchema("The user's request in free text."),
			"scope": {
				Type:        "string",
				Description: "The task scope, which bounds the number of rules returned.",
				Enum:        []any{"single_file_edit", "feature_build", "multi_file_task", "architecture_review"},
			},
			"session": stringSchema("The session key. Results are cached per session."),
		},
		Required: []string{"scope"},
	}
}

func newInvalidateRulesSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"session": stringSchema("The session key to invalidate."),
		},
	}
}
