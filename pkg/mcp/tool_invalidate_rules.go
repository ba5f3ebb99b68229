package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/macropower/loadout/pkg/session"
)

// InvalidateRulesParams defines parameters for the invalidate_rules tool.
type InvalidateRulesParams struct {
	Session string `json:"session,omitempty"`
}

// InvalidateRulesResult contains the result of an invalidation.
type InvalidateRulesResult struct {
	Message string `json:"message"`
	Session string `json:"session"`
	Found   bool   `json:"found"`
}

func (s *Server) handleInvalidateRules(
	ctx context.Context,
	_ *mcp.ServerSession,
	params *mcp.CallToolParamsFor[InvalidateRulesParams],
) (*mcp.CallToolResultFor[InvalidateRulesResult], error) {
	key := params.Arguments.Session
	if key == "" {
		key = defaultSession
	}

	result := InvalidateRulesResult{Session: key}

	sess, ok := s.store.Lookup(session.Key(key))
	if ok {
		s.engine.Invalidate(ctx, sess)

		result.Found = true
		result.Message = fmt.Sprintf("Invalidated session %q.", key)
	} else {
		result.Message = fmt.Sprintf("Session %q has no cached result.", key)
	}

	return &mcp.CallToolResultFor[InvalidateRulesResult]{
		Content: []mcp.Content{
			&mcp.TextContent{
				Text: result.Message,
			},
		},
		StructuredContent: result,
	}, nil
}
