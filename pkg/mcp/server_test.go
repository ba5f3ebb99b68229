package mcp_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/macropower/loadout/pkg/engine"
	"github.com/macropower/loadout/pkg/expr"
	"github.com/macropower/loadout/pkg/mcp"
	"github.com/macropower/loadout/pkg/registry"
	"github.com/macropower/loadout/pkg/rule"
	"github.com/macropower/loadout/pkg/session"
)

func newEngine(t *testing.T) *engine.Engine {
	t.Helper()

	reg := registry.MustNew(expr.MustNewEnvironment(),
		&rule.Rule{
			ID:           "go",
			FileTypes:    []*rule.FileType{{Pattern: "*.go"}},
			Dependencies: []*rule.Dependency{{Pattern: "go", Manifest: "go.mod"}},
			Requires:     []rule.ID{"style"},
		},
		&rule.Rule{ID: "style"},
		&rule.Rule{
			ID:       "testing",
			Keywords: []*rule.Keyword{{Pattern: "unit test"}},
		},
	)

	return engine.MustNew(reg)
}

func newProject(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	err := os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module example.com/x\n\ngo 1.25\n"), 0o600)
	require.NoError(t, err)

	return dir
}

func connect(t *testing.T, s *mcp.Server) *sdk.ClientSession {
	t.Helper()

	ctx := t.Context()
	serverTransport, clientTransport := sdk.NewInMemoryTransports()

	serverSession, err := s.Server().Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = serverSession.Close() })

	client := sdk.NewClient(&sdk.Implementation{Name: "client"}, nil)

	clientSession, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = clientSession.Close() })

	return clientSession
}

func ruleIDs(t *testing.T, structured any) []string {
	t.Helper()

	content, ok := structured.(map[string]any)
	require.True(t, ok, "structured content should be an object")

	rules, ok := content["rules"].([]any)
	require.True(t, ok, "rules should be an array")

	ids := make([]string, 0, len(rules))
	for _, r := range rules {
		entry, ok := r.(map[string]any)
		require.True(t, ok)

		id, ok := entry["id"].(string)
		require.True(t, ok)

		ids = append(ids, id)
	}

	return ids
}

func TestNewServer(t *testing.T) {
	t.Parallel()

	_, err := mcp.NewServer("", nil)
	require.Error(t, err)

	s, err := mcp.NewServer("localhost:0", newEngine(t), mcp.WithRoot(t.TempDir()))
	require.NoError(t, err)
	assert.NotNil(t, s.Server())
	assert.NotNil(t, s.Store())
	assert.NotNil(t, s.Handler())
}

func TestServer_DiscoverRules(t *testing.T) {
	t.Parallel()

	root := newProject(t)

	s, err := mcp.NewServer("", newEngine(t), mcp.WithRoot(root))
	require.NoError(t, err)

	cs := connect(t, s)

	r, err := cs.CallTool(t.Context(), &sdk.CallToolParams{
		Name: "discover_rules",
		Arguments: map[string]any{
			"activeFile": "main.go",
			"request":    "add a unit test",
			"scope":      "single_file_edit",
			"session":    "s1",
		},
	})
	require.NoError(t, err)
	require.False(t, r.IsError)

	assert.Equal(t, []string{"go", "style", "testing"}, ruleIDs(t, r.StructuredContent))

	content, ok := r.StructuredContent.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "s1", content["session"])
	assert.Equal(t, "single_file_edit", content["scope"])
	assert.Equal(t, false, content["cached"])
	assert.InDelta(t, 3, content["ruleCount"], 0)

	// The same call is served from the session cache.
	r, err = cs.CallTool(t.Context(), &sdk.CallToolParams{
		Name: "discover_rules",
		Arguments: map[string]any{
			"activeFile": "main.go",
			"request":    "add a unit test",
			"scope":      "single_file_edit",
			"session":    "s1",
		},
	})
	require.NoError(t, err)

	content, ok = r.StructuredContent.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, content["cached"])
}

func TestServer_DiscoverRulesInvalidScope(t *testing.T) {
	t.Parallel()

	s, err := mcp.NewServer("", newEngine(t), mcp.WithRoot(newProject(t)))
	require.NoError(t, err)

	cs := connect(t, s)

	r, err := cs.CallTool(t.Context(), &sdk.CallToolParams{
		Name:      "discover_rules",
		Arguments: map[string]any{"scope": "everything"},
	})
	if err == nil {
		assert.True(t, r.IsError)
	}
}

func TestServer_InvalidateRules(t *testing.T) {
	t.Parallel()

	s, err := mcp.NewServer("", newEngine(t), mcp.WithRoot(newProject(t)))
	require.NoError(t, err)

	cs := connect(t, s)

	tcs := map[string]struct {
		discover bool
		found    bool
	}{
		"unknown session": {discover: false, found: false},
		"known session":   {discover: true, found: true},
	}

	for name, tc := range tcs {
		key := "invalidate-" + name

		if tc.discover {
			_, err := cs.CallTool(t.Context(), &sdk.CallToolParams{
				Name: "discover_rules",
				Arguments: map[string]any{
					"activeFile": "main.go",
					"scope":      "feature_build",
					"session":    key,
				},
			})
			require.NoError(t, err)
		}

		r, err := cs.CallTool(t.Context(), &sdk.CallToolParams{
			Name:      "invalidate_rules",
			Arguments: map[string]any{"session": key},
		})
		require.NoError(t, err, name)

		content, ok := r.StructuredContent.(map[string]any)
		require.True(t, ok, name)
		assert.Equal(t, tc.found, content["found"], name)
		assert.Equal(t, key, content["session"], name)

		if tc.found {
			sess, ok := s.Store().Lookup(session.Key(key))
			require.True(t, ok, name)

			_, cached := sess.Get()
			assert.False(t, cached, name)
		}
	}
}

