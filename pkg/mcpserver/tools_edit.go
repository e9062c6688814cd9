package mcpserver

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/babybirdprd/mcp-rg-editor/pkg/edit"
)

func (s *Server) registerEditTools() {
	s.tool(mcp.NewTool("edit_block",
		mcp.WithDescription(`Replace exact text in a file. The number of occurrences must equal expected_replacements (default 1); 0 means replace every occurrence. When the text is not found, the closest match is reported with a character diff but nothing is changed.`),
		mcp.WithString("file_path", mcp.Required(), mcp.Description("File to edit")),
		mcp.WithString("old_string", mcp.Required(), mcp.Description("Exact text to replace")),
		mcp.WithString("new_string", mcp.Required(), mcp.Description("Replacement text")),
		mcp.WithNumber("expected_replacements",
			mcp.Description("Exact occurrence count expected; 0 replaces all"),
			mcp.DefaultNumber(1),
		),
	), s.handleEditBlock)
}

func (s *Server) handleEditBlock(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error) {
	filePath, err := requireString(args, "file_path")
	if err != nil {
		return nil, err
	}
	oldString, err := requireString(args, "old_string")
	if err != nil {
		return nil, err
	}
	newString, err := requireString(args, "new_string")
	if err != nil {
		return nil, err
	}
	expected, err := optInt(args, "expected_replacements", 1)
	if err != nil {
		return nil, err
	}

	res, err := s.editor.EditBlock(ctx, edit.BlockParams{
		FilePath:             filePath,
		OldString:            oldString,
		NewString:            newString,
		ExpectedReplacements: expected,
	})
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultJSON(res)
}
