package cli_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macropower/loadout/internal/cli"
)

func TestBindEnvVars(t *testing.T) {
	tcs := map[string]struct {
		envVars       map[string]string
		wantLogLevel  string
		wantLogFormat string
		args          []string
	}{
		"environment variables are bound when no args provided": {
			envVars: map[string]string{
				"LOADOUT_LOG_LEVEL":  "debug",
				"LOADOUT_LOG_FORMAT": "json",
			},
			args:          []string{},
			wantLogLevel:  "debug",
			wantLogFormat: "json",
		},
		"command line args take precedence over environment variables": {
			envVars: map[string]string{
				"LOADOUT_LOG_LEVEL":  "debug",
				"LOADOUT_LOG_FORMAT": "json",
			},
			args:          []string{"--log-level", "error", "--log-format", "text"},
			wantLogLevel:  "error",
			wantLogFormat: "text",
		},
		"partial environment variable override": {
			envVars: map[string]string{
				"LOADOUT_LOG_LEVEL": "warn",
			},
			args:          []string{"--log-format", "json"},
			wantLogLevel:  "warn",
			wantLogFormat: "json",
		},
		"no environment variables uses defaults": {
			envVars:       map[string]string{},
			args:          []string{},
			wantLogLevel:  "info",
			wantLogFormat: "text",
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			for key, val := range tc.envVars {
				t.Setenv(key, val)
			}

			cmd := cli.NewRootCmd()
			cmd.SetArgs(tc.args)

			err := cmd.ParseFlags(tc.args)
			require.NoError(t, err)

			logLevel, err := cmd.Flags().GetString("log-level")
			require.NoError(t, err)
			assert.Equal(t, tc.wantLogLevel, logLevel)

			logFormat, err := cmd.Flags().GetString("log-format")
			require.NoError(t, err)
			assert.Equal(t, tc.wantLogFormat, logFormat)
		})
	}
}

func TestBindEnvVars_DiscoverFlags(t *testing.T) {
	t.Setenv("LOADOUT_SCOPE", "architecture_review")
	t.Setenv("LOADOUT_OPEN", "a.go,b.go")

	cmd := cli.NewRootCmd()

	scope, err := cmd.Flags().GetString("scope")
	require.NoError(t, err)
	assert.Equal(t, "architecture_review", scope)

	open, err := cmd.Flags().GetStringSlice("open")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.go", "b.go"}, open)
}

func TestEnvironmentVariableUsageUpdate(t *testing.T) {
	t.Parallel()

	cmd := cli.NewRootCmd()

	logLevelFlag := cmd.PersistentFlags().Lookup("log-level")
	require.NotNil(t, logLevelFlag)
	assert.Contains(t, logLevelFlag.Usage, "$LOADOUT_LOG_LEVEL")

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Contains(t, configFlag.Usage, "$LOADOUT_CONFIG")

	scopeFlag := cmd.Flags().Lookup("scope")
	require.NotNil(t, scopeFlag)
	assert.Contains(t, scopeFlag.Usage, "$LOADOUT_SCOPE")
	assert.NotContains(t, scopeFlag.Usage, "($LOADOUT_SCOPE) ($LOADOUT_SCOPE)")
}
