package mcpserver

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/babybirdprd/mcp-rg-editor/pkg/session"
)

func (s *Server) registerTerminalTools() {
	s.tool(mcp.NewTool("execute_command",
		mcp.WithDescription(`Run a shell command. Waits up to timeout_ms; if the command is still running it continues in the background and its output can be fetched with read_output using the returned session_id.`),
		mcp.WithString("command", mcp.Required(), mcp.Description("Command line to run")),
		mcp.WithNumber("timeout_ms", mcp.Description("Soft wait before backgrounding"), mcp.DefaultNumber(1000)),
		mcp.WithString("shell", mcp.Description("Shell program override; defaults to the configured or OS shell")),
	), s.handleExecuteCommand)

	s.tool(mcp.NewTool("read_output",
		mcp.WithDescription("Read output appended since the previous read for a background session."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id from execute_command")),
	), s.handleReadOutput)

	s.tool(mcp.NewTool("force_terminate",
		mcp.WithDescription("Terminate a background session's whole process group (SIGTERM, then SIGKILL)."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id from execute_command")),
	), s.handleForceTerminate)

	s.tool(mcp.NewTool("list_sessions",
		mcp.WithDescription("List command sessions that are running or recently finished."),
	), s.handleListSessions)
}

func (s *Server) handleExecuteCommand(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error) {
	command, err := requireString(args, "command")
	if err != nil {
		return nil, err
	}
	timeoutMs, err := optInt(args, "timeout_ms", 0)
	if err != nil {
		return nil, err
	}
	shell, err := optString(args, "shell", "")
	if err != nil {
		return nil, err
	}

	res, err := s.sessions.ExecuteCommand(ctx, session.ExecArgs{
		Command: command,
		Timeout: time.Duration(timeoutMs) * time.Millisecond,
		Shell:   shell,
	})
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultJSON(res)
}

func (s *Server) handleReadOutput(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error) {
	id, err := requireString(args, "session_id")
	if err != nil {
		return nil, err
	}
	res, err := s.sessions.ReadOutput(id)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultJSON(res)
}

func (s *Server) handleForceTerminate(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error) {
	id, err := requireString(args, "session_id")
	if err != nil {
		return nil, err
	}
	res, err := s.sessions.ForceTerminate(id)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultJSON(res)
}

func (s *Server) handleListSessions(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(map[string]any{
		"sessions": s.sessions.ListSessions(),
	})
}
