package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"reelforge/internal/layout"
)

func newTemplatesCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "List layout templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			registry, err := layout.NewRegistry(cfg.Paths.TemplatesDir)
			if err != nil {
				return err
			}
			templates := registry.List()
			if jsonOutput {
				type templateView struct {
					ID     string `json:"id"`
					Name   string `json:"name"`
					Width  int    `json:"width"`
					Height int    `json:"height"`
					FPS    int    `json:"fps"`
					Source string `json:"source"`
				}
				views := make([]templateView, len(templates))
				for i, t := range templates {
					views[i] = templateView{t.ID, t.Name, t.Width, t.Height, t.FPS, t.Source}
				}
				return writeJSON(cmd, views)
			}
			rows := make([][]string, 0, len(templates))
			for _, t := range templates {
				rows = append(rows, []string{
					t.ID,
					t.Name,
					fmt.Sprintf("%dx%d", t.Width, t.Height),
					strconv.Itoa(t.FPS),
					t.Source,
				})
			}
			fmt.Fprint(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Name", "Size", "FPS", "Source"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft},
			))
			fmt.Fprintln(cmd.OutOrStdout())
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
