package mcpserver

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerConfigTools() {
	s.tool(mcp.NewTool("get_config",
		mcp.WithDescription("Return the full server configuration: files root, allowed directories, blocked commands, shell, line limits, and log locations."),
	), s.handleGetConfig)

	s.tool(mcp.NewTool("set_config_value",
		mcp.WithDescription("Set one configuration value in memory. Mutable keys: allowed_directories, blocked_commands, default_shell, file_read_line_limit, file_write_line_limit, log_level."),
		mcp.WithString("key",
			mcp.Required(),
			mcp.Description("Configuration key to set"),
		),
		mcp.WithString("value",
			mcp.Description("Value for the key; lists may be passed as comma-separated strings or JSON arrays"),
		),
	), s.handleSetConfigValue)
}

func (s *Server) handleGetConfig(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(s.store.Snapshot())
}

func (s *Server) handleSetConfigValue(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error) {
	key, err := requireString(args, "key")
	if err != nil {
		return nil, err
	}
	value, ok := args["value"]
	if !ok {
		return nil, invalidArgs("missing required field %q", "value")
	}
	if err := s.store.Set(key, value); err != nil {
		return nil, invalidArgs("%v", err)
	}
	return mcp.NewToolResultJSON(map[string]any{
		"success": true,
		"key":     key,
	})
}
