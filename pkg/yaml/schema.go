package yaml

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// SchemaGenerator reflects a JSON schema from a Go configuration type.
type SchemaGenerator struct {
	reflector *jsonschema.Reflector
	root      any
}

// NewSchemaGenerator creates a [SchemaGenerator] for root. Field names come
// from json tags and unset fields are not required unless tagged so.
func NewSchemaGenerator(root any) *SchemaGenerator {
	return &SchemaGenerator{
		root: root,
		reflector: &jsonschema.Reflector{
			AllowAdditionalProperties:  false,
			RequiredFromJSONSchemaTags: true,
			ExpandedStruct:             true,
		},
	}
}

// Generate returns the indented JSON schema document.
func (g *SchemaGenerator) Generate() ([]byte, error) {
	schema := g.reflector.Reflect(g.root)

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}

	return data, nil
}
