package mcpserver

import (
	"context"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/babybirdprd/mcp-rg-editor/pkg/edit"
	"github.com/babybirdprd/mcp-rg-editor/pkg/fsops"
	"github.com/babybirdprd/mcp-rg-editor/pkg/pathguard"
	"github.com/babybirdprd/mcp-rg-editor/pkg/proc"
	"github.com/babybirdprd/mcp-rg-editor/pkg/ripgrep"
	"github.com/babybirdprd/mcp-rg-editor/pkg/session"
)

// Error kinds surfaced to clients. Every tool failure carries exactly one
// kind as a stable "[Kind]" prefix on the message, and the same kind lands
// in the audit log outcome.
const (
	KindInvalidArguments         = "InvalidArguments"
	KindPathOutsideJail          = "PathOutsideJail"
	KindPathNotFound             = "PathNotFound"
	KindPathNotADirectory        = "PathNotADirectory"
	KindContentTooLong           = "ContentTooLong"
	KindReplacementCountMismatch = "ReplacementCountMismatch"
	KindCommandBlocked           = "CommandBlocked"
	KindToolUnavailable          = "ToolUnavailable"
	KindTimeout                  = "Timeout"
	KindSessionNotFound          = "SessionNotFound"
	KindProcessNotFound          = "ProcessNotFound"
	KindPermissionDenied         = "PermissionDenied"
	KindInternal                 = "Internal"
)

// kindCodes gives each kind a stable numeric protocol code.
var kindCodes = map[string]int{
	KindInvalidArguments:         -32602,
	KindPathOutsideJail:          -32010,
	KindPathNotFound:             -32011,
	KindPathNotADirectory:        -32012,
	KindContentTooLong:           -32013,
	KindReplacementCountMismatch: -32014,
	KindCommandBlocked:           -32001,
	KindToolUnavailable:          -32015,
	KindTimeout:                  -32016,
	KindSessionNotFound:          -32017,
	KindProcessNotFound:          -32019,
	KindPermissionDenied:         -32018,
	KindInternal:                 -32603,
}

// classify maps a handler error to its kind.
func classify(err error) string {
	var countErr *edit.CountMismatchError
	var fuzzyErr *edit.FuzzyMatchError
	var tooLong *fsops.ContentTooLongError
	var blocked *session.BlockedError

	switch {
	case errors.As(err, &countErr), errors.As(err, &fuzzyErr):
		return KindReplacementCountMismatch
	case errors.As(err, &tooLong):
		return KindContentTooLong
	case errors.As(err, &blocked):
		return KindCommandBlocked
	case errors.Is(err, pathguard.ErrOutsideJail):
		return KindPathOutsideJail
	case errors.Is(err, pathguard.ErrNotFound):
		return KindPathNotFound
	case errors.Is(err, pathguard.ErrNotADirectory):
		return KindPathNotADirectory
	case errors.Is(err, ripgrep.ErrUnavailable):
		return KindToolUnavailable
	case errors.Is(err, ripgrep.ErrTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, session.ErrNotFound):
		return KindSessionNotFound
	case errors.Is(err, proc.ErrNotFound):
		return KindProcessNotFound
	case errors.Is(err, proc.ErrPermission):
		return KindPermissionDenied
	case errors.Is(err, errInvalidArguments):
		return KindInvalidArguments
	case errors.Is(err, edit.ErrEmptySearch):
		return KindInvalidArguments
	default:
		return KindInternal
	}
}

var errInvalidArguments = errors.New("invalid arguments")

// invalidArgs builds an InvalidArguments error for a missing or mistyped field.
func invalidArgs(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errInvalidArguments, fmt.Sprintf(format, args...))
}

// toolError renders err as a tool-result error with its kind prefix. The
// result is an in-band error; the protocol call itself succeeds.
func toolError(err error) *mcp.CallToolResult {
	kind := classify(err)
	return mcp.NewToolResultError(fmt.Sprintf("[%s] %s", kind, err.Error()))
}
