package mcpserver

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/babybirdprd/mcp-rg-editor/pkg/fsops"
)

func (s *Server) registerFilesystemTools() {
	s.tool(mcp.NewTool("read_file",
		mcp.WithDescription("Read a file from disk or an http(s) URL. Text is sliced by line offset/length; images come back base64-encoded with their MIME type."),
		mcp.WithString("path", mcp.Required(), mcp.Description("File path or URL")),
		mcp.WithBoolean("is_url", mcp.Description("Treat path as an http(s) URL")),
		mcp.WithNumber("offset", mcp.Description("Line number to start reading from (0-indexed)")),
		mcp.WithNumber("length", mcp.Description("Maximum number of lines to read; defaults to file_read_line_limit")),
	), s.handleReadFile)

	s.tool(mcp.NewTool("read_multiple_files",
		mcp.WithDescription("Read several files in one call. Failures are reported per entry and do not abort the batch."),
		mcp.WithArray("paths", mcp.Required(), mcp.Description("File paths to read"),
			mcp.Items(map[string]any{"type": "string"})),
	), s.handleReadMultipleFiles)

	s.tool(mcp.NewTool("write_file",
		mcp.WithDescription("Write or append to a file. Content above file_write_line_limit lines is rejected; send large content in chunks with append mode."),
		mcp.WithString("path", mcp.Required(), mcp.Description("File path")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Content to write")),
		mcp.WithString("mode", mcp.Description("rewrite or append"), mcp.Enum("rewrite", "append"), mcp.DefaultString("rewrite")),
	), s.handleWriteFile)

	s.tool(mcp.NewTool("create_directory",
		mcp.WithDescription("Create a directory, including missing parents. Succeeds if it already exists."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Directory path")),
	), s.handleCreateDirectory)

	s.tool(mcp.NewTool("list_directory",
		mcp.WithDescription("List a directory. Entries are returned as \"[DIR] name\" or \"[FILE] name\" lines sorted by name."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Directory path")),
	), s.handleListDirectory)

	s.tool(mcp.NewTool("move_file",
		mcp.WithDescription("Move or rename a file or directory, copying across devices when needed."),
		mcp.WithString("source", mcp.Required(), mcp.Description("Source path")),
		mcp.WithString("destination", mcp.Required(), mcp.Description("Destination path")),
	), s.handleMoveFile)

	s.tool(mcp.NewTool("search_files",
		mcp.WithDescription("Find files and directories whose names contain a substring (case-insensitive), walking recursively from a root."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Root directory for the walk")),
		mcp.WithString("pattern", mcp.Required(), mcp.Description("Substring to look for in names")),
		mcp.WithNumber("timeout_ms", mcp.Description("Walk deadline in milliseconds")),
	), s.handleSearchFiles)

	s.tool(mcp.NewTool("get_file_info",
		mcp.WithDescription("Return size, kind, timestamps, permissions, and symlink target for a path."),
		mcp.WithString("path", mcp.Required(), mcp.Description("File or directory path")),
	), s.handleGetFileInfo)
}

func (s *Server) handleReadFile(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error) {
	path, err := requireString(args, "path")
	if err != nil {
		return nil, err
	}
	isURL, err := optBool(args, "is_url", false)
	if err != nil {
		return nil, err
	}
	offset, err := optInt(args, "offset", 0)
	if err != nil {
		return nil, err
	}
	length, err := optInt(args, "length", 0)
	if err != nil {
		return nil, err
	}

	content, err := s.files.ReadFile(fsops.ReadFileArgs{
		Path:        path,
		IsURL:       isURL,
		OffsetLines: offset,
		LengthLines: length,
	})
	if err != nil {
		return nil, err
	}
	if content.ImageBase64 != "" && !content.IsBinary {
		return mcp.NewToolResultImage(content.Path, content.ImageBase64, content.MimeType), nil
	}
	return mcp.NewToolResultJSON(content)
}

func (s *Server) handleReadMultipleFiles(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error) {
	paths, err := requireStringSlice(args, "paths")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultJSON(s.files.ReadMultiple(paths))
}

func (s *Server) handleWriteFile(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error) {
	path, err := requireString(args, "path")
	if err != nil {
		return nil, err
	}
	content, err := requireString(args, "content")
	if err != nil {
		return nil, err
	}
	mode, err := optString(args, "mode", string(fsops.ModeRewrite))
	if err != nil {
		return nil, err
	}
	res, err := s.files.WriteFile(path, content, fsops.WriteMode(mode))
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultJSON(res)
}

func (s *Server) handleCreateDirectory(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error) {
	path, err := requireString(args, "path")
	if err != nil {
		return nil, err
	}
	res, err := s.files.CreateDirectory(path)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultJSON(res)
}

func (s *Server) handleListDirectory(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error) {
	path, err := requireString(args, "path")
	if err != nil {
		return nil, err
	}
	res, err := s.files.ListDirectory(path)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultJSON(res)
}

func (s *Server) handleMoveFile(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error) {
	source, err := requireString(args, "source")
	if err != nil {
		return nil, err
	}
	dest, err := requireString(args, "destination")
	if err != nil {
		return nil, err
	}
	res, err := s.files.MoveFile(source, dest)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultJSON(res)
}

func (s *Server) handleSearchFiles(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error) {
	path, err := requireString(args, "path")
	if err != nil {
		return nil, err
	}
	pattern, err := requireString(args, "pattern")
	if err != nil {
		return nil, err
	}
	timeoutMs, err := optInt(args, "timeout_ms", 0)
	if err != nil {
		return nil, err
	}
	res, err := s.files.SearchFiles(ctx, path, pattern, time.Duration(timeoutMs)*time.Millisecond)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultJSON(res)
}

func (s *Server) handleGetFileInfo(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error) {
	path, err := requireString(args, "path")
	if err != nil {
		return nil, err
	}
	res, err := s.files.GetFileInfo(path)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultJSON(res)
}
