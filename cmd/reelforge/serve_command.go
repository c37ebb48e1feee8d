package main

import (
	"fmt"
	"net"
	"strings"

	"github.com/spf13/cobra"

	"reelforge/internal/api"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the run API over HTTP until interrupted",
		Long: `Serve the run API over HTTP until interrupted.

Runs started through the API are cancelled on shutdown and can be picked up
again later with "reelforge runs resume".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := ctx.application()
			if err != nil {
				return err
			}
			bind := strings.TrimSpace(addr)
			if bind == "" {
				bind = app.cfg.Paths.APIBind
			}
			listener, err := net.Listen("tcp", bind)
			if err != nil {
				return fmt.Errorf("api listen: %w", err)
			}
			srv := api.NewServer(
				api.OrchestratorLauncher(app.orchestrator),
				app.runs,
				api.Options{Token: app.cfg.Paths.APIToken, Version: version},
				app.logger,
			)
			fmt.Fprintf(cmd.OutOrStdout(), "Listening on http://%s\n", listener.Addr())
			return srv.Serve(cmd.Context(), listener)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (defaults to paths.api_bind)")
	return cmd
}
