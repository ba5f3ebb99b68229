// Package yaml wraps [github.com/goccy/go-yaml] with the decoding, encoding,
// schema validation and source-annotated error reporting used by loadout
// configuration files.
package yaml

import (
	"errors"
	"io"

	"github.com/goccy/go-yaml"
)

// Decoder decodes YAML documents, converting parse failures into [*Error]
// values that carry the offending token.
type Decoder struct {
	d *yaml.Decoder
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{
		d: yaml.NewDecoder(r, yaml.AllowDuplicateMapKey()),
	}
}

func (d *Decoder) Decode(v any) error {
	err := d.d.Decode(v)
	if err == nil {
		return nil
	}

	var yamlErr yaml.Error
	if errors.As(err, &yamlErr) {
		return &Error{
			Err:   errors.New(yamlErr.GetMessage()),
			Token: yamlErr.GetToken(),
		}
	}

	return err //nolint:wrapcheck // Return the original error if it's not a [yaml.Error].
}

// Unmarshal decodes a single document from data.
func Unmarshal(data []byte, v any) error {
	err := yaml.UnmarshalWithOptions(data, v, yaml.AllowDuplicateMapKey())
	if err == nil {
		return nil
	}

	var yamlErr yaml.Error
	if errors.As(err, &yamlErr) {
		return &Error{
			Err:    errors.New(yamlErr.GetMessage()),
			Token:  yamlErr.GetToken(),
			Source: data,
		}
	}

	return err //nolint:wrapcheck // Return the original error if it's not a [yaml.Error].
}
