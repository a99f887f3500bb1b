package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"ailib/internal/registry"
)

func newModelsCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "models",
		Short:   "List GGUF models found in the models directory",
		Example: "  ailibd models --models-dir ~/models/llm",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := o.load()
			if err != nil {
				return err
			}
			specs, err := registry.LoadDir(cfg.ModelsDir)
			if err != nil {
				return fmt.Errorf("scan %s: %w", cfg.ModelsDir, err)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tFAMILY\tQUANT\tPATH")
			for _, s := range specs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.ID, orDash(s.Family), orDash(s.Quant), s.Path)
			}
			return tw.Flush()
		},
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
