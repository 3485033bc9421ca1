// ABOUTME: MCP server subcommand
// ABOUTME: Serves the engage tools over stdio for an assistant host
package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/harperreed/engage/config"
	"github.com/harperreed/engage/engine"
	"github.com/harperreed/engage/handlers"
	"github.com/harperreed/engage/logging"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

// MCPCommand starts the MCP server on stdio
func MCPCommand(eng *engine.Engine, cfg *config.Config) error {
	logging.Info("starting MCP server", zap.String("name", cfg.MCP.Name), zap.String("version", cfg.MCP.Version))

	server := handlers.NewServer(eng, cfg.MCP.Name, cfg.MCP.Version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return server.Run(ctx, &mcp.StdioTransport{})
}
