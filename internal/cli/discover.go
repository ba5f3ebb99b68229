package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/macropower/loadout/api"
	"github.com/macropower/loadout/api/v1beta1/configs"
	"github.com/macropower/loadout/pkg/config"
	"github.com/macropower/loadout/pkg/engine"
	"github.com/macropower/loadout/pkg/expr"
	"github.com/macropower/loadout/pkg/limit"
	"github.com/macropower/loadout/pkg/manifest"
	"github.com/macropower/loadout/pkg/mcp"
	"github.com/macropower/loadout/pkg/metrics"
	"github.com/macropower/loadout/pkg/render"
	"github.com/macropower/loadout/pkg/scan"
	"github.com/macropower/loadout/pkg/session"
	"github.com/macropower/loadout/pkg/telemetry"
	"github.com/macropower/loadout/pkg/watch"
)

const (
	cmdExamples = `  # Discover rules for the current directory:
  loadout

  # Discover rules for a single file edit:
  loadout --scope single_file_edit --active src/App.tsx

  # Include the request text and open files:
  loadout ./api --scope feature_build --open handlers.go --request "add a migration"

  # Watch declaration files and print changes to the selection:
  loadout --watch

  # Serve the MCP server over stdio, or over HTTP at an address:
  loadout --serve-mcp stdio
  loadout --serve-mcp localhost:8080

  # Print machine readable output:
  loadout --output json`

	serveStdio = "stdio"
)

type DiscoverArgs struct {
	*RootArgs

	Root        string
	ActiveFile  string
	Request     string
	Scope       string
	Output      string
	ServeMCP    string
	OpenFiles   []string
	Watch       bool
	WriteConfig bool
	ShowConfig  bool
}

func NewDiscoverArgs(rootArgs *RootArgs) *DiscoverArgs {
	return &DiscoverArgs{
		RootArgs: rootArgs,
	}
}

func (da *DiscoverArgs) AddFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&da.ActiveFile, "active", "", "Path of the file being edited")
	cmd.Flags().StringSliceVar(&da.OpenFiles, "open", nil, "Paths of other open files (repeatable)")
	cmd.Flags().StringVar(&da.Request, "request", "", "Free-text request")
	cmd.Flags().StringVar(&da.Scope, "scope", string(limit.ScopeFeatureBuild),
		fmt.Sprintf("Task scope, one of: %s", limit.ScopeStrings()))
	cmd.Flags().StringVarP(&da.Output, "output", "o", string(render.FormatTable),
		fmt.Sprintf("Output format, one of: %s", render.AllFormats))
	cmd.Flags().StringVar(&da.ServeMCP, "serve-mcp", "", "Serve the MCP server over stdio or at the specified address")
	cmd.Flags().BoolVarP(&da.Watch, "watch", "w", false, "Watch declaration files and print changes")
	cmd.Flags().BoolVar(&da.WriteConfig, "write-config", false, "Write the default configuration file and exit")
	cmd.Flags().BoolVar(&da.ShowConfig, "show-config", false, "Print the effective configuration and exit")

	err := cmd.RegisterFlagCompletionFunc("scope",
		cobra.FixedCompletions(limit.ScopeStrings(), cobra.ShellCompDirectiveNoFileComp),
	)
	if err != nil {
		panic(err)
	}

	err = cmd.RegisterFlagCompletionFunc("output",
		cobra.FixedCompletions(render.AllFormats, cobra.ShellCompDirectiveNoFileComp),
	)
	if err != nil {
		panic(err)
	}
}

func NewDiscoverCmd(da *DiscoverArgs) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "discover [root]",
		Short:   "Default command, discover the rules to load for a project",
		Example: cmdExamples,
		Args:    cobra.MaximumNArgs(1),
		ValidArgsFunction: func(_ *cobra.Command, args []string, _ string) ([]cobra.Completion, cobra.ShellCompDirective) {
			if len(args) == 0 {
				return nil, cobra.ShellCompDirectiveFilterDirs
			}

			return nil, cobra.ShellCompDirectiveNoFileComp
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			da.Root = "."
			if len(args) > 0 {
				da.Root = args[0]
			}

			return discover(cmd, da)
		},
	}
	da.AddFlags(cmd)

	bindEnvVars(cmd)

	return cmd
}

func discover(cmd *cobra.Command, da *DiscoverArgs) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	configPath := da.GetConfigPath()

	if da.WriteConfig {
		err := configs.WriteDefault(configPath, false)
		if err != nil {
			return fmt.Errorf("write default config: %w", err)
		}

		return nil
	}

	root, err := filepath.Abs(da.Root)
	if err != nil {
		return fmt.Errorf("get absolute path: %w", err)
	}

	eff, err := loadEffective(configPath, root)
	if err != nil {
		return err
	}

	if da.ShowConfig {
		return showConfig(cmd.OutOrStdout(), configPath, eff)
	}

	shutdown, err := telemetry.Setup(ctx)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}

	defer func() {
		err := shutdown(context.WithoutCancel(ctx))
		if err != nil {
			slog.Error("shut down tracing", slog.Any("err", err))
		}
	}()

	m := metrics.New()

	eng, err := eff.NewEngine(expr.MustNewEnvironment(), engine.WithMetrics(m))
	if err != nil {
		return err //nolint:wrapcheck // Already wrapped.
	}

	if da.ServeMCP != "" {
		return serveMCP(ctx, da.ServeMCP, eng, root, m)
	}

	scope, err := limit.ParseScope(da.Scope)
	if err != nil {
		return err //nolint:wrapcheck // Already wrapped.
	}

	format, err := render.ParseFormat(da.Output)
	if err != nil {
		return err //nolint:wrapcheck // Already wrapped.
	}

	r := render.NewRenderer(format)
	sess := engine.NewSession(session.NewKey())

	res, err := runDiscover(ctx, eng, sess, da, root, scope)
	if err != nil {
		return err
	}

	err = r.WriteResult(cmd.OutOrStdout(), res)
	if err != nil {
		return err //nolint:wrapcheck // Already wrapped.
	}

	if !da.Watch {
		return nil
	}

	return watchRoot(ctx, cmd.OutOrStdout(), eng, sess, da, root, scope, r, res)
}

func loadEffective(configPath, root string) (*config.Effective, error) {
	var opts []config.LoaderOpt
	if term.IsTerminal(0) {
		opts = append(opts, config.WithColor(true))
	}

	cfg, err := config.LoadConfig(configPath, opts...)
	if err != nil {
		return nil, fmt.Errorf("invalid config %q: %w", configPath, err)
	}

	pc, projectPath, err := config.LoadProjectConfig(root, opts...)
	if err != nil {
		return nil, fmt.Errorf("invalid project config: %w", err)
	}

	eff, err := config.Merge(cfg, pc)
	if err != nil {
		return nil, fmt.Errorf("merge project config %q: %w", projectPath, err)
	}

	eff.ProjectPath = projectPath

	return eff, nil
}

func showConfig(w io.Writer, configPath string, eff *config.Effective) error {
	slog.Info("active configuration",
		slog.String("path", configPath),
		slog.String("project", eff.ProjectPath),
	)

	yamlBytes, err := api.MarshalYAML(eff)
	if err != nil {
		return fmt.Errorf("marshal config yaml: %w", err)
	}

	pretty, err := render.NewHighlighter("YAML", "").Render(string(yamlBytes))
	if err != nil {
		mustN(fmt.Fprint(w, string(yamlBytes)))

		return err //nolint:wrapcheck // Already wrapped.
	}

	mustN(fmt.Fprint(w, pretty))

	return nil
}

func serveMCP(ctx context.Context, address string, eng *engine.Engine, root string, m *metrics.Metrics) error {
	if address == serveStdio {
		address = ""
	}

	s, err := mcp.NewServer(address, eng, mcp.WithRoot(root), mcp.WithMetrics(m))
	if err != nil {
		return fmt.Errorf("create MCP server: %w", err)
	}

	err = s.Serve(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err //nolint:wrapcheck // Already wrapped.
	}

	return nil
}

func runDiscover(
	ctx context.Context,
	eng *engine.Engine,
	sess *engine.Session,
	da *DiscoverArgs,
	root string,
	scope limit.Scope,
) (*engine.Result, error) {
	manifests, err := manifest.ReadRoot(root)
	if err != nil {
		return nil, fmt.Errorf("read declaration files: %w", err)
	}

	res, err := eng.Discover(ctx, sess, &scan.Input{
		ActiveFile: da.ActiveFile,
		OpenFiles:  da.OpenFiles,
		Request:    da.Request,
		Manifests:  manifests,
	}, scope)
	if err != nil {
		return nil, fmt.Errorf("discover rules: %w", err)
	}

	return res, nil
}

func watchRoot(
	ctx context.Context,
	w io.Writer,
	eng *engine.Engine,
	sess *engine.Session,
	da *DiscoverArgs,
	root string,
	scope limit.Scope,
	r *render.Renderer,
	prev *engine.Result,
) error {
	watcher, err := watch.New(root, watch.WithInvalidator(sess))
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	defer func() {
		err := watcher.Close()
		if err != nil {
			slog.Error("close watcher", slog.Any("err", err))
		}
	}()

	events := make(chan watch.Event, 16)
	watcher.Subscribe(events)

	errCh := make(chan error, 1)
	go func() {
		errCh <- watcher.Run(ctx)
	}()

	slog.Info("watching declaration files", slog.String("root", root))

	for {
		select {
		case <-ctx.Done():
			return nil

		case err := <-errCh:
			if err != nil && !errors.Is(err, watch.ErrClosed) && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("watch: %w", err)
			}

			return nil

		case evt := <-events:
			slog.Debug("declaration file changed",
				slog.String("path", evt.Path),
				slog.String("op", evt.Op.String()),
			)

			res, err := runDiscover(ctx, eng, sess, da, root, scope)
			if err != nil {
				slog.Error("rediscover", slog.Any("err", err))

				continue
			}

			diff := r.Diff(render.IDList(prev), render.IDList(res))
			if diff == "" {
				slog.Info("selection unchanged", slog.String("file", filepath.Base(evt.Path)))

				continue
			}

			mustN(fmt.Fprint(w, diff))

			prev = res
		}
	}
}
