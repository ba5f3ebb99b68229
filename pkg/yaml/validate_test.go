package yaml_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macropower/loadout/pkg/yaml"
)

const registrySchema = `{
	"type": "object",
	"properties": {
		"name": {"type": "string"},
		"rules": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"id": {"type": "string"},
					"weight": {"type": "integer", "minimum": 0}
				},
				"required": ["id"]
			}
		}
	},
	"required": ["name"]
}`

func TestNewValidator(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		errMsg     string
		schemaData []byte
	}{
		"valid schema": {
			schemaData: []byte(registrySchema),
		},
		"invalid json": {
			schemaData: []byte(`{"invalid": json}`),
			errMsg:     "unmarshal schema",
		},
		"invalid schema": {
			schemaData: []byte(`{"type": "invalid_type"}`),
			errMsg:     "compile schema",
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			validator, err := yaml.NewValidator("/test.json", tc.schemaData)
			if tc.errMsg != "" {
				require.ErrorContains(t, err, tc.errMsg)
				assert.Nil(t, validator)

				return
			}

			require.NoError(t, err)
			assert.NotNil(t, validator)
		})
	}
}

func TestValidator_Validate(t *testing.T) {
	t.Parallel()

	validator := yaml.MustNewValidator("/test.json", []byte(registrySchema))

	tcs := map[string]struct {
		data     any
		wantPath string
	}{
		"valid document": {
			data: map[string]any{
				"name":  "default",
				"rules": []any{map[string]any{"id": "go", "weight": uint64(10)}},
			},
		},
		"missing name": {
			data:     map[string]any{},
			wantPath: "$",
		},
		"negative weight": {
			data: map[string]any{
				"name":  "default",
				"rules": []any{map[string]any{"id": "go", "weight": int64(-1)}},
			},
			wantPath: "$.rules[0].weight",
		},
		"missing rule id": {
			data: map[string]any{
				"name":  "default",
				"rules": []any{map[string]any{"weight": 3}},
			},
			wantPath: "$.rules[0]",
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			err := validator.Validate(tc.data)
			if tc.wantPath == "" {
				require.NoError(t, err)

				return
			}

			var yamlErr *yaml.Error
			require.ErrorAs(t, err, &yamlErr)
			require.NotNil(t, yamlErr.Path)
			assert.Equal(t, tc.wantPath, yamlErr.Path.String())
		})
	}
}

func TestError_Error(t *testing.T) {
	t.Parallel()

	pb := yaml.NewPathBuilder()

	tcs := map[string]struct {
		err  yaml.Error
		want string
	}{
		"with path": {
			err: yaml.Error{
				Err:  errors.New("value is required"),
				Path: pb.Root().Child("engine").Child("maxDepth").Build(),
			},
			want: "error at $.engine.maxDepth: value is required",
		},
		"without path": {
			err:  yaml.Error{Err: errors.New("value is required")},
			want: "value is required",
		},
		"nil error": {
			err:  yaml.Error{},
			want: "",
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.want, tc.err.Error())
		})
	}
}

func TestError_AnnotatesSource(t *testing.T) {
	t.Parallel()

	source := []byte("engine:\n  maxDepth: -1\n")
	path := yaml.NewPathBuilder().Root().Child("engine").Child("maxDepth").Build()

	ew := yaml.NewErrorWrapper(yaml.WithSource(source))
	err := ew.Wrap(yaml.NewError(errors.New("must be >= 0"), yaml.WithPath(path)))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "error at $.engine.maxDepth: must be >= 0")
	assert.Contains(t, err.Error(), "maxDepth: -1")
}

func TestDecoder_Decode(t *testing.T) {
	t.Parallel()

	type doc struct {
		Name string `json:"name"`
	}

	t.Run("valid", func(t *testing.T) {
		t.Parallel()

		var got doc
		require.NoError(t, yaml.Unmarshal([]byte("name: go\n"), &got))
		assert.Equal(t, "go", got.Name)
	})

	t.Run("syntax error carries token", func(t *testing.T) {
		t.Parallel()

		var got doc

		err := yaml.Unmarshal([]byte("name: [go\n"), &got)

		var yamlErr *yaml.Error
		require.ErrorAs(t, err, &yamlErr)
		assert.NotNil(t, yamlErr.Token)
	})
}
