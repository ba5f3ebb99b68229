package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/macropower/loadout/pkg/engine"
	"github.com/macropower/loadout/pkg/limit"
	"github.com/macropower/loadout/pkg/scan"
	"github.com/macropower/loadout/pkg/session"
)

// DiscoverRulesParams defines parameters for the discover_rules tool.
type DiscoverRulesParams struct {
	Root       string   `json:"root,omitempty"`
	ActiveFile string   `json:"activeFile,omitempty"`
	Request    string   `json:"request,omitempty"`
	Scope      string   `json:"scope"`
	Session    string   `json:"session,omitempty"`
	OpenFiles  []string `json:"openFiles,omitempty"`
}

// RuleEntry describes one selected rule.
type RuleEntry struct {
	ID         string   `json:"id"`
	Provenance string   `json:"provenance"`
	Parent     string   `json:"parent,omitempty"`
	Sources    []string `json:"sources,omitempty"`
	Score      int      `json:"score"`
	Depth      int      `json:"depth"`
}

// DiscoverRulesResult contains the result of a discovery run.
type DiscoverRulesResult struct {
	Message     string      `json:"message"`
	Session     string      `json:"session"`
	Scope       string      `json:"scope"`
	Signature   string      `json:"signature"`
	GeneratedAt string      `json:"generatedAt"`
	Warning     string      `json:"warning,omitempty"`
	Rules       []RuleEntry `json:"rules"`
	Dropped     []string    `json:"dropped,omitempty"`
	ScanErrors  []string    `json:"scanErrors,omitempty"`
	RuleCount   int         `json:"ruleCount"`
	Cached      bool        `json:"cached"`
}

func (s *Server) handleDiscoverRules(
	ctx context.Context,
	_ *mcp.ServerSession,
	params *mcp.CallToolParamsFor[DiscoverRulesParams],
) (*mcp.CallToolResultFor[DiscoverRulesResult], error) {
	args := params.Arguments

	scope, err := limit.ParseScope(args.Scope)
	if err != nil {
		return nil, fmt.Errorf("parse scope: %w", err)
	}

	key := args.Session
	if key == "" {
		key = defaultSession
	}

	manifests, err := readManifests(s.resolveRoot(args.Root))
	if err != nil {
		return nil, err
	}

	res, err := s.engine.Discover(ctx, s.store.Get(session.Key(key)), &scan.Input{
		ActiveFile: args.ActiveFile,
		OpenFiles:  args.OpenFiles,
		Request:    args.Request,
		Manifests:  manifests,
	}, scope)
	if err != nil {
		return nil, fmt.Errorf("discover rules: %w", err)
	}

	return createDiscoverRulesResult(key, res), nil
}

func createDiscoverRulesResult(key string, res *engine.Result) *mcp.CallToolResultFor[DiscoverRulesResult] {
	result := DiscoverRulesResult{
		Session:     key,
		Scope:       string(res.Scope),
		Signature:   res.Signature,
		GeneratedAt: res.GeneratedAt.UTC().Format(time.RFC3339),
		Cached:      res.Cached,
		RuleCount:   len(res.Rules),
		Rules:       make([]RuleEntry, 0, len(res.Rules)),
	}

	for _, e := range res.Rules {
		entry := RuleEntry{
			ID:         string(e.ID),
			Provenance: string(e.Provenance),
			Parent:     string(e.Parent),
			Score:      e.Score,
			Depth:      e.Depth,
		}
		for _, src := range e.Sources {
			entry.Sources = append(entry.Sources, src.String())
		}

		result.Rules = append(result.Rules, entry)
	}

	for _, id := range res.Dropped {
		result.Dropped = append(result.Dropped, string(id))
	}

	for _, se := range res.ScanErrors {
		result.ScanErrors = append(result.ScanErrors, se.Error())
	}

	if res.Warning != nil {
		result.Warning = res.Warning.Error()
	}

	result.Message = fmt.Sprintf("Selected %d rules.", result.RuleCount)
	if res.Cached {
		result.Message = fmt.Sprintf("Selected %d rules (cached).", result.RuleCount)
	}

	return &mcp.CallToolResultFor[DiscoverRulesResult]{
		Content: []mcp.Content{
			&mcp.TextContent{
				Text: result.Message,
			},
		},
		StructuredContent: result,
	}
}
