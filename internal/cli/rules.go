package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/macropower/loadout/pkg/render"
)

type RulesArgs struct {
	*RootArgs

	Root   string
	Query  string
	Output string
}

func NewRulesArgs(rootArgs *RootArgs) *RulesArgs {
	return &RulesArgs{
		RootArgs: rootArgs,
	}
}

func (ra *RulesArgs) AddFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&ra.Root, "root", ".", "Project root used to find a project configuration")
	cmd.Flags().StringVarP(&ra.Output, "output", "o", string(render.FormatTable),
		fmt.Sprintf("Output format, one of: %s", render.AllFormats))

	err := cmd.RegisterFlagCompletionFunc("output",
		cobra.FixedCompletions(render.AllFormats, cobra.ShellCompDirectiveNoFileComp),
	)
	if err != nil {
		panic(err)
	}

	err = cmd.MarkFlagDirname("root")
	if err != nil {
		panic(fmt.Errorf("mark root flag: %w", err))
	}
}

func NewRulesCmd(ra *RulesArgs) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules [query]",
		Short: "List the rules in the effective registry",
		Example: `  # List every rule:
  loadout rules

  # Fuzzy search rule ids and descriptions:
  loadout rules test`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ra.Query = ""
			if len(args) > 0 {
				ra.Query = args[0]
			}

			return listRules(cmd, ra)
		},
	}
	ra.AddFlags(cmd)

	bindEnvVars(cmd)

	return cmd
}

func listRules(cmd *cobra.Command, ra *RulesArgs) error {
	format, err := render.ParseFormat(ra.Output)
	if err != nil {
		return err //nolint:wrapcheck // Already wrapped.
	}

	root, err := filepath.Abs(ra.Root)
	if err != nil {
		return fmt.Errorf("get absolute path: %w", err)
	}

	eff, err := loadEffective(ra.GetConfigPath(), root)
	if err != nil {
		return err
	}

	out, err := render.NewRenderer(format).Rules(render.FilterRules(eff.Rules, ra.Query))
	if err != nil {
		return err //nolint:wrapcheck // Already wrapped.
	}

	mustN(fmt.Fprint(cmd.OutOrStdout(), out))

	return nil
}
