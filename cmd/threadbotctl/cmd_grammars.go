package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/threadbot/threadbot/internal/biz/usecase"
	"github.com/threadbot/threadbot/internal/conf"
)

var (
	grammarsPath string
	contextless  bool
)

var grammarsCmd = &cobra.Command{
	Use:   "grammars",
	Short: "Inspect the command registry",
}

var grammarsCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Compile the registry and verify every example matches its command",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := grammarsPath
		if path == "" {
			path = cfg.GrammarsPath
		}
		categories, err := conf.LoadGrammars(path, cfg.Bot.UserSeparator)
		if err != nil {
			return err
		}
		registry, err := usecase.NewRegistry(categories)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		failures := usecase.CheckExamples(cmd.Context(), registry, contextless || cfg.Bot.Contextless)
		for _, f := range failures {
			fmt.Fprintf(out, "FAIL %s: %q\n", f.GrammarID, f.Example)
		}
		if len(failures) > 0 {
			return fmt.Errorf("%d examples do not match", len(failures))
		}
		fmt.Fprintf(out, "%d grammars OK\n", len(registry.Grammars()))
		return nil
	},
}
