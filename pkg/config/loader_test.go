package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macropower/loadout/api/v1beta1/configs"
	"github.com/macropower/loadout/api/v1beta1/projectconfigs"
	"github.com/macropower/loadout/pkg/config"
	"github.com/macropower/loadout/pkg/limit"
	"github.com/macropower/loadout/pkg/yaml"
)

func createTempFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	err := os.WriteFile(path, []byte(content), 0o600)
	require.NoError(t, err)

	return path
}

func TestNewLoaderFromFile(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		setupFile func(t *testing.T) string
		wantErr   bool
	}{
		"valid file": {
			setupFile: func(t *testing.T) string {
				t.Helper()

				return createTempFile(t, "apiVersion: loadout.jacobcolvin.com/v1beta1\nkind: Configuration\n")
			},
		},
		"non-existent file": {
			setupFile: func(t *testing.T) string {
				t.Helper()

				return "/non/existent/file.yaml"
			},
			wantErr: true,
		},
		"directory instead of file": {
			setupFile: func(t *testing.T) string {
				t.Helper()

				return t.TempDir()
			},
			wantErr: true,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got, err := config.NewLoaderFromFile(tc.setupFile(t), configs.New, configs.DefaultValidator)
			if tc.wantErr {
				require.Error(t, err)
				assert.Nil(t, got)

				return
			}

			require.NoError(t, err)
			assert.NotNil(t, got)
		})
	}
}

func TestLoader_Validate(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		input   string
		errMsg  string
		wantErr bool
	}{
		"minimal config": {
			input: "apiVersion: loadout.jacobcolvin.com/v1beta1\nkind: Configuration\n",
		},
		"config with rules": {
			input: `apiVersion: loadout.jacobcolvin.com/v1beta1
kind: Configuration
engine:
  limits:
    single_file_edit: 3
rules:
  - id: go
    fileTypes:
      - pattern: "*.go"
`,
		},
		"wrong kind": {
			input:   "apiVersion: loadout.jacobcolvin.com/v1beta1\nkind: ProjectConfig\n",
			wantErr: true,
		},
		"unknown scope": {
			input: `apiVersion: loadout.jacobcolvin.com/v1beta1
kind: Configuration
engine:
  limits:
    everything: 3
`,
			wantErr: true,
			errMsg:  "limits",
		},
		"rule without id": {
			input: `apiVersion: loadout.jacobcolvin.com/v1beta1
kind: Configuration
rules:
  - description: nameless
`,
			wantErr: true,
		},
		"invalid yaml": {
			input:   "apiVersion: [\n",
			wantErr: true,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			cl := config.NewLoaderFromBytes([]byte(tc.input), configs.New, configs.DefaultValidator)

			err := cl.Validate()
			if !tc.wantErr {
				require.NoError(t, err)

				return
			}

			require.Error(t, err)
			if tc.errMsg != "" {
				assert.Contains(t, err.Error(), tc.errMsg)
			}
		})
	}
}

func TestLoader_ValidateAnnotatesSource(t *testing.T) {
	t.Parallel()

	input := `apiVersion: loadout.jacobcolvin.com/v1beta1
kind: Configuration
engine:
  maxDepth: -1
`

	cl := config.NewLoaderFromBytes([]byte(input), configs.New, configs.DefaultValidator)

	err := cl.Validate()
	require.Error(t, err)

	var yamlErr *yaml.Error
	require.ErrorAs(t, err, &yamlErr)
	assert.NotEmpty(t, yamlErr.Source)
	assert.Contains(t, err.Error(), "maxDepth")
}

func TestLoader_Load(t *testing.T) {
	t.Parallel()

	input := `apiVersion: loadout.jacobcolvin.com/v1beta1
kind: Configuration
engine:
  optionalThreshold: 4
  limits:
    feature_build: 3
rules:
  - id: go
    fileTypes:
      - pattern: .go
    requires: [style]
  - id: style
`

	cl := config.NewLoaderFromBytes([]byte(input), configs.New, configs.DefaultValidator)

	cfg, err := cl.Load()
	require.NoError(t, err)

	require.Len(t, cfg.Rules, 2)
	assert.Equal(t, "go", string(cfg.Rules[0].ID))
	assert.Equal(t, ".go", cfg.Rules[0].FileTypes[0].Pattern)

	require.NotNil(t, cfg.Engine)
	require.NotNil(t, cfg.Engine.OptionalThreshold)
	assert.Equal(t, 4, *cfg.Engine.OptionalThreshold)
	require.NotNil(t, cfg.Engine.MaxDepth)
	assert.Equal(t, 2, *cfg.Engine.MaxDepth)
	assert.Equal(t, 3, cfg.Engine.Limits[limit.ScopeFeatureBuild])
}

func TestLoader_LoadRejectsDuplicateRules(t *testing.T) {
	t.Parallel()

	input := `apiVersion: loadout.jacobcolvin.com/v1beta1
kind: Configuration
rules:
  - id: go
  - id: go
`

	_, err := config.NewLoaderFromBytes([]byte(input), configs.New, configs.DefaultValidator).Load()
	require.ErrorContains(t, err, "duplicate rule")
}

func TestLoader_ProjectConfig(t *testing.T) {
	t.Parallel()

	input := `apiVersion: loadout.jacobcolvin.com/v1beta1
kind: ProjectConfig
limits:
  single_file_edit: 2
disabledRules: [docker]
rules:
  - id: internal-api
    keywords:
      - pattern: billing
`

	pl := config.NewLoaderFromBytes([]byte(input), projectconfigs.New, projectconfigs.DefaultValidator)
	require.NoError(t, pl.Validate())

	pc, err := pl.Load()
	require.NoError(t, err)
	assert.Equal(t, 2, pc.Limits[limit.ScopeSingleFileEdit])
	assert.Equal(t, "docker", string(pc.DisabledRules[0]))
	require.Len(t, pc.Rules, 1)
	assert.Equal(t, "billing", pc.Rules[0].Keywords[0].Pattern)
}
