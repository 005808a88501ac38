package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/switchboardhq/switchboard/internal/auth"
	"github.com/switchboardhq/switchboard/internal/config"
	"github.com/switchboardhq/switchboard/internal/coordinator"
	"github.com/switchboardhq/switchboard/internal/hub"
	"github.com/switchboardhq/switchboard/internal/mcp"
	"github.com/switchboardhq/switchboard/internal/provider"
)

func mcpCmd() *cobra.Command {
	var flagToken string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Run an MCP server on stdio",
		Long: `Runs an MCP server on stdin/stdout, acting as the user identified
by the session token. The token comes from --token or SWITCHBOARD_TOKEN.

The MCP process shares the daemon's database (WAL mode), so messages it
sends are visible to connected WebSocket clients on their next fetch.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			token := flagToken
			if token == "" {
				token = os.Getenv("SWITCHBOARD_TOKEN")
			}
			if token == "" {
				return fmt.Errorf("session token not set (--token or SWITCHBOARD_TOKEN)")
			}

			cfg := config.Load()
			if flagDB != "" {
				cfg.DBPath = flagDB
			}
			log := newLogger(cfg.LogLevel)

			st, err := openStore()
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			ctx := context.Background()
			userID, err := auth.New(st).Authenticate(ctx, token)
			if err != nil {
				return err
			}

			providers := provider.NewRegistry()
			providers.Register("echo", &provider.Echo{})
			if cfg.DefaultModel != "" && cfg.DefaultModel != "echo" {
				providers.Register(cfg.DefaultModel, &provider.Echo{})
				providers.SetDefault(cfg.DefaultModel)
			}

			// This process has no WebSocket clients; the router exists so
			// the coordinator's broadcasts are valid no-ops. Live clients
			// attached to the daemon read the shared history.
			index := hub.NewIndex()
			registry := hub.NewRegistry(index, log)
			router := hub.NewRouter(registry, index, log)
			coord := coordinator.New(st, router, providers, cfg.CallTimeout, log)

			server := mcp.NewServer(st, coord, userID, mcp.WithVersion(Version))
			if err := server.Run(ctx); err != nil {
				return err
			}
			coord.Wait()
			return nil
		},
	}

	cmd.Flags().StringVar(&flagToken, "token", "", "Session token (or SWITCHBOARD_TOKEN env var)")
	return cmd
}
