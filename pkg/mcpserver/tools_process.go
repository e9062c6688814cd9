package mcpserver

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerProcessTools() {
	s.tool(mcp.NewTool("list_processes",
		mcp.WithDescription("List OS processes with pid, name, CPU percent, memory, command line, and status."),
	), s.handleListProcesses)

	s.tool(mcp.NewTool("kill_process",
		mcp.WithDescription("Terminate an OS process by pid (SIGTERM, escalating to SIGKILL)."),
		mcp.WithNumber("pid", mcp.Required(), mcp.Description("Process id to terminate")),
	), s.handleKillProcess)
}

func (s *Server) handleListProcesses(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error) {
	infos, err := s.procs.List(ctx)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultJSON(map[string]any{"processes": infos})
}

func (s *Server) handleKillProcess(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error) {
	pid, err := optInt(args, "pid", -1)
	if err != nil {
		return nil, err
	}
	if pid <= 0 {
		return nil, invalidArgs("field %q must be a positive number", "pid")
	}
	res, err := s.procs.Kill(ctx, int32(pid))
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultJSON(res)
}
