// Package mcpserver registers the tool surface on an MCP server, wraps every
// handler with argument validation and audit recording, and serves the
// stdio or SSE transport.
package mcpserver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/babybirdprd/mcp-rg-editor/pkg/audit"
	"github.com/babybirdprd/mcp-rg-editor/pkg/config"
	"github.com/babybirdprd/mcp-rg-editor/pkg/edit"
	"github.com/babybirdprd/mcp-rg-editor/pkg/fsops"
	"github.com/babybirdprd/mcp-rg-editor/pkg/pathguard"
	"github.com/babybirdprd/mcp-rg-editor/pkg/proc"
	"github.com/babybirdprd/mcp-rg-editor/pkg/ripgrep"
	"github.com/babybirdprd/mcp-rg-editor/pkg/session"
)

// Name is the product identity published by initialize.
const Name = "mcp-rg-editor"

// Version is the server version string.
const Version = "0.4.0"

const shutdownTimeout = 5 * time.Second

const instructions = `Tool server exposing filesystem, ripgrep, editing, terminal,
and process operations. Paths may be absolute, tilde-prefixed, or relative to
the configured files root; everything is checked against the directory jail.
Use get_config to inspect limits and set_config_value to adjust them. For
write_file and edit_block respect file_write_line_limit and chunk large changes.`

// Server owns the tool managers and the MCP frontend.
type Server struct {
	store    *config.Store
	guard    *pathguard.Guard
	sink     *audit.Sink
	files    *fsops.Manager
	searcher *ripgrep.Searcher
	editor   *edit.Engine
	sessions *session.Manager
	procs    *proc.Service
	logger   zerolog.Logger

	mcp *server.MCPServer
	// handlers is the routing table after audit wrapping, keyed by tool name.
	handlers map[string]server.ToolHandlerFunc
}

// New assembles the server from already-constructed collaborators.
func New(store *config.Store, guard *pathguard.Guard, sink *audit.Sink,
	files *fsops.Manager, searcher *ripgrep.Searcher, editor *edit.Engine,
	sessions *session.Manager, procs *proc.Service, logger zerolog.Logger) *Server {

	s := &Server{
		store:    store,
		guard:    guard,
		sink:     sink,
		files:    files,
		searcher: searcher,
		editor:   editor,
		sessions: sessions,
		procs:    procs,
		logger:   logger.With().Str("component", "mcpserver").Logger(),
		handlers: make(map[string]server.ToolHandlerFunc),
	}

	s.mcp = server.NewMCPServer(
		Name,
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)
	s.registerTools()
	return s
}

// handlerFunc is a tool handler before audit wrapping.
type handlerFunc func(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error)

// tool registers one tool with the audit wrapper applied. Exactly one audit
// record is written per invocation, whatever the outcome.
func (s *Server) tool(t mcp.Tool, h handlerFunc) {
	name := t.Name
	wrapped := func(ctx context.Context, req mcp.CallToolRequest) (res *mcp.CallToolResult, err error) {
		args := req.GetArguments()

		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic in %s: %v", name, r)
				res = toolError(err)
				err = nil
			}
			s.sink.Record(name, audit.Sanitize(args, s.guard.Allowed), outcomeOf(res))
		}()

		res, err = h(ctx, args)
		if err != nil {
			// Handler errors become in-band tool errors with a kind prefix.
			res, err = toolError(err), nil
		}
		return res, err
	}
	s.handlers[name] = wrapped
	s.mcp.AddTool(t, wrapped)
}

// invoke routes one call through the audit-wrapped handler. Exposed inside
// the package for the dispatcher tests.
func (s *Server) invoke(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	h, ok := s.handlers[name]
	if !ok {
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return h(ctx, req)
}

// outcomeOf derives the audit outcome from a finished result.
func outcomeOf(res *mcp.CallToolResult) string {
	if res == nil || !res.IsError {
		return audit.OutcomeOK
	}
	if len(res.Content) > 0 {
		if tc, ok := mcp.AsTextContent(res.Content[0]); ok {
			if strings.HasPrefix(tc.Text, "[") {
				if end := strings.Index(tc.Text, "]"); end > 1 {
					return audit.OutcomeErr(tc.Text[1:end])
				}
			}
		}
	}
	return audit.OutcomeErr(KindInternal)
}

func (s *Server) registerTools() {
	s.registerConfigTools()
	s.registerFilesystemTools()
	s.registerSearchTools()
	s.registerEditTools()
	s.registerTerminalTools()
	s.registerProcessTools()
}

// Serve runs the configured transport until ctx is cancelled or the client
// disconnects.
func (s *Server) Serve(ctx context.Context) error {
	cfg := s.store.Snapshot()
	switch cfg.Transport {
	case config.TransportStdio:
		s.logger.Info().Msg("serving MCP over stdio")
		errCh := make(chan error, 1)
		go func() { errCh <- server.ServeStdio(s.mcp) }()
		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
			return nil
		}
	case config.TransportSSE:
		addr := fmt.Sprintf("%s:%d", cfg.SSEHost, cfg.SSEPort)
		sse := server.NewSSEServer(s.mcp,
			server.WithBaseURL(fmt.Sprintf("http://%s", addr)),
		)
		s.logger.Info().Str("addr", addr).Msg("serving MCP over SSE")
		errCh := make(chan error, 1)
		go func() { errCh <- sse.Start(addr) }()
		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return sse.Shutdown(shutdownCtx)
		}
	case config.TransportDisabled:
		s.logger.Info().Msg("MCP transport disabled; exiting")
		return nil
	default:
		return fmt.Errorf("unsupported transport: %s", cfg.Transport)
	}
}
