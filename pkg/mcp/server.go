package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/macropower/loadout/pkg/engine"
	"github.com/macropower/loadout/pkg/manifest"
	"github.com/macropower/loadout/pkg/metrics"
	"github.com/macropower/loadout/pkg/version"
)

// Server implements the MCP server for loadout.
type Server struct {
	engine  *engine.Engine
	store   *engine.Store
	server  *mcp.Server
	metrics *metrics.Metrics
	tracer  trace.Tracer
	address string
	root    string
}

// ServerOpt configures a [Server].
type ServerOpt func(*Server)

// WithRoot sets the project root used when a call does not name one.
func WithRoot(root string) ServerOpt {
	return func(s *Server) {
		s.root = root
	}
}

// WithStore sets the session store. By default each server has its own.
func WithStore(store *engine.Store) ServerOpt {
	return func(s *Server) {
		s.store = store
	}
}

// WithMetrics exposes m at /metrics when serving HTTP.
func WithMetrics(m *metrics.Metrics) ServerOpt {
	return func(s *Server) {
		s.metrics = m
	}
}

// NewServer creates a new MCP server instance. An empty address serves stdio.
func NewServer(address string, eng *engine.Engine, opts ...ServerOpt) (*Server, error) {
	if eng == nil {
		return nil, errors.New("engine is nil")
	}

	impl := &mcp.Implementation{
		Name:    name,
		Version: version.GetVersion(),
	}

	s := &Server{
		address: address,
		engine:  eng,
		server:  mcp.NewServer(impl, &mcp.ServerOptions{Instructions: instructions}),
		tracer:  otel.Tracer("mcp"),
		root:    ".",
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.store == nil {
		s.store = engine.NewStore()
	}

	root, err := filepath.Abs(s.root)
	if err != nil {
		return nil, fmt.Errorf("get absolute path: %w", err)
	}

	s.root = root

	s.registerTools()

	return s, nil
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "discover_rules",
		Description: "Discover the rules to load for the current task. Returns an ordered, size-bounded list of rule ids with the score, sources and provenance of each.",
		InputSchema: newDiscoverRulesSchema(),
	}, WithTracing(s.tracer, s.handleDiscoverRules))

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "invalidate_rules",
		Description: "Discard the cached discovery result of a session, forcing the next discover_rules call to rescan.",
		InputSchema: newInvalidateRulesSchema(),
	}, WithTracing(s.tracer, s.handleInvalidateRules))
}

// Server returns the underlying MCP server.
func (s *Server) Server() *mcp.Server {
	return s.server
}

// Store returns the session store.
func (s *Server) Store() *engine.Store {
	return s.store
}

// Serve starts the MCP server.
func (s *Server) Serve(ctx context.Context) error {
	slog.InfoContext(ctx, "starting MCP server", slog.String("address", s.address))

	if s.address == "" {
		err := s.serveStdio(ctx)
		if err != nil {
			return fmt.Errorf("serve stdio: %w", err)
		}

		return nil
	}

	err := s.serveHTTP(ctx)
	if err != nil {
		return fmt.Errorf("serve HTTP: %w", err)
	}

	return nil
}

// Handler returns the HTTP handler serving MCP at "/" and metrics at
// "/metrics".
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.metrics.Handler())
	mux.Handle("/", mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.server
	}, nil))

	return mux
}

func (s *Server) serveHTTP(ctx context.Context) error {
	server := &http.Server{
		Addr:    s.address,
		Handler: s.Handler(),

		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()

		err := server.Shutdown(shutdownCtx)
		if err != nil {
			slog.ErrorContext(ctx, "shut down MCP server", slog.Any("err", err))
		}
	}()

	err := server.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("MCP server failed: %w", err)
	}

	return nil
}

func (s *Server) serveStdio(ctx context.Context) error {
	t := mcp.NewLoggingTransport(mcp.NewStdioTransport(), os.Stderr)

	err := s.server.Run(ctx, t)
	if err != nil {
		return fmt.Errorf("MCP server failed: %w", err)
	}

	return nil
}

func (s *Server) resolveRoot(root string) string {
	switch {
	case root == "":
		return s.root
	case filepath.IsAbs(root):
		return filepath.Clean(root)
	}

	return filepath.Join(s.root, root)
}

func readManifests(root string) ([]manifest.File, error) {
	files, err := manifest.ReadRoot(root)
	if err != nil {
		return nil, fmt.Errorf("read declaration files in %s: %w", root, err)
	}

	return files, nil
}
