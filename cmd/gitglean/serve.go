package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (ingest, search, health, metrics and MCP)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup(cmd.Context(), "")
			if err != nil {
				return err
			}
			defer env.cleanup()

			env.logger.Info("starting gitglean",
				zap.String("version", version),
				zap.String("addr", env.app.Config.Server.Addr),
			)
			return env.app.Serve(cmd.Context(), version)
		},
	}
}

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Run the MCP tools over stdin/stdout for local clients",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup(cmd.Context(), "json")
			if err != nil {
				return err
			}
			defer env.cleanup()

			env.logger.Info("starting gitglean MCP server (stdio mode)")
			return env.app.MCPServer(version).Run(cmd.Context())
		},
	}
}
