package mcpserver

import (
	"context"
	"errors"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/babybirdprd/mcp-rg-editor/pkg/ripgrep"
)

func (s *Server) registerSearchTools() {
	s.tool(mcp.NewTool("search_code",
		mcp.WithDescription("Search file contents with ripgrep. Matches are returned as file:line:text with the file relative to the search root."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Directory to search")),
		mcp.WithString("pattern", mcp.Required(), mcp.Description("Regular expression to search for")),
		mcp.WithBoolean("case_sensitive", mcp.Description("Match case exactly; default false")),
		mcp.WithString("file_pattern", mcp.Description("Glob limiting which files are searched, e.g. *.go")),
		mcp.WithNumber("context_lines", mcp.Description("Lines of context around each match")),
		mcp.WithBoolean("include_hidden", mcp.Description("Search hidden files and directories")),
		mcp.WithNumber("timeout_ms", mcp.Description("Search deadline in milliseconds")),
		mcp.WithNumber("max_results", mcp.Description("Per-file match cap; default 1000")),
	), s.handleSearchCode)
}

func (s *Server) handleSearchCode(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error) {
	path, err := requireString(args, "path")
	if err != nil {
		return nil, err
	}
	pattern, err := requireString(args, "pattern")
	if err != nil {
		return nil, err
	}
	caseSensitive, err := optBool(args, "case_sensitive", false)
	if err != nil {
		return nil, err
	}
	filePattern, err := optString(args, "file_pattern", "")
	if err != nil {
		return nil, err
	}
	contextLines, err := optInt(args, "context_lines", 0)
	if err != nil {
		return nil, err
	}
	includeHidden, err := optBool(args, "include_hidden", false)
	if err != nil {
		return nil, err
	}
	timeoutMs, err := optInt(args, "timeout_ms", 0)
	if err != nil {
		return nil, err
	}
	maxResults, err := optInt(args, "max_results", 0)
	if err != nil {
		return nil, err
	}

	res, err := s.searcher.Search(ctx, ripgrep.Args{
		Path:          path,
		Pattern:       pattern,
		CaseSensitive: caseSensitive,
		FilePattern:   filePattern,
		ContextLines:  contextLines,
		IncludeHidden: includeHidden,
		Timeout:       time.Duration(timeoutMs) * time.Millisecond,
		MaxResults:    maxResults,
	})
	if err != nil {
		// A timeout still carries the partial matches collected so far.
		if errors.Is(err, ripgrep.ErrTimeout) && res != nil {
			return mcp.NewToolResultJSON(res)
		}
		return nil, err
	}
	return mcp.NewToolResultJSON(res)
}
