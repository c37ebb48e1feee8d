package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"reelforge/internal/renderer"
)

func newStylesCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "styles",
		Short:       "List built-in image style presets",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			presets := renderer.Presets()
			rows := make([][]string, 0, len(presets))
			for _, p := range presets {
				name := p.Name
				if name == renderer.DefaultPreset {
					name += " (default)"
				}
				rows = append(rows, []string{name, p.Label, truncate(p.Description, 60)})
			}
			out := cmd.OutOrStdout()
			fmt.Fprint(out, renderTable([]string{"Preset", "Label", "Prompt"}, rows, nil))
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Use --style-description for a custom style.")
			return nil
		},
	}
}
