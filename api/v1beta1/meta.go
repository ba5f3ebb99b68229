// Package v1beta1 contains the v1beta1 API types shared by loadout
// configuration kinds.
package v1beta1

import "github.com/invopop/jsonschema"

// APIVersion is the current API version for all loadout configuration kinds.
const APIVersion = "loadout.jacobcolvin.com/v1beta1"

// ValidAPIVersions contains all valid API versions.
var ValidAPIVersions = []string{APIVersion}

// TypeMeta contains the API version and kind common to all configuration kinds.
type TypeMeta struct {
	// APIVersion specifies the API version for this configuration.
	APIVersion string `json:"apiVersion" jsonschema:"title=API Version"`
	// Kind defines the type of configuration.
	Kind string `json:"kind" jsonschema:"title=Kind"`
}

func (tm TypeMeta) GetAPIVersion() string {
	return tm.APIVersion
}

func (tm TypeMeta) GetKind() string {
	return tm.Kind
}

// Object is implemented by every configuration kind.
type Object interface {
	GetAPIVersion() string
	GetKind() string
	EnsureDefaults()
	Validate() error
}

// ExtendSchemaWithEnums restricts the apiVersion and kind properties of jss
// to the given values.
func ExtendSchemaWithEnums(jss *jsonschema.Schema, apiVersions, kinds []string) {
	constrain(jss, "apiVersion", "API Version", apiVersions)
	constrain(jss, "kind", "Kind", kinds)
}

func constrain(jss *jsonschema.Schema, property, title string, values []string) {
	prop, ok := jss.Properties.Get(property)
	if !ok {
		panic(property + " property not found in schema")
	}

	for _, v := range values {
		prop.OneOf = append(prop.OneOf, &jsonschema.Schema{
			Type:  "string",
			Const: v,
			Title: title,
		})
	}

	_, _ = jss.Properties.Set(property, prop)
}
