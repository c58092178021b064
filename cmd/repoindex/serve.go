package main

import (
	"github.com/spf13/cobra"

	"github.com/dshills/repoindex/internal/mcp"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server on stdio",
		Long: `Run a Model Context Protocol server on stdin/stdout exposing the
index_repository, search_code and list_repositories tools. Logs go to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service()
			if err != nil {
				return err
			}

			a.logger.Info().
				Str("version", version).
				Str("data_dir", svc.DataDir()).
				Msg("repoindex MCP server starting")

			server := mcp.NewServer(svc, version, mcp.WithLogger(a.logger))
			if err := server.Serve(cmd.Context()); err != nil {
				return err
			}

			a.logger.Info().Msg("server stopped")
			return nil
		},
	}
}
