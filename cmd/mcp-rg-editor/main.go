package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/babybirdprd/mcp-rg-editor/pkg/audit"
	"github.com/babybirdprd/mcp-rg-editor/pkg/config"
	"github.com/babybirdprd/mcp-rg-editor/pkg/edit"
	"github.com/babybirdprd/mcp-rg-editor/pkg/fsops"
	"github.com/babybirdprd/mcp-rg-editor/pkg/mcpserver"
	"github.com/babybirdprd/mcp-rg-editor/pkg/pathguard"
	"github.com/babybirdprd/mcp-rg-editor/pkg/proc"
	"github.com/babybirdprd/mcp-rg-editor/pkg/ripgrep"
	"github.com/babybirdprd/mcp-rg-editor/pkg/session"
)

func main() {
	envPath := flag.String("env", "", "Path to a .env file (default: ./.env if present)")
	watch := flag.Bool("watch-env", false, "Reload mutable config keys when the .env file changes")
	version := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *version {
		fmt.Printf("%s %s\n", mcpserver.Name, mcpserver.Version)
		return
	}

	cfg, err := config.Load(*envPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info().Str("version", mcpserver.Version).Str("files_root", cfg.FilesRoot).Msg("starting mcp-rg-editor")

	store := config.NewStore(cfg)
	guard := pathguard.New(store)

	sink, err := audit.NewSink(cfg.AuditLogFile, cfg.AuditLogMaxBytes)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}

	files := fsops.NewManager(store, guard, logger)
	searcher := ripgrep.NewSearcher(guard, logger)
	editor := edit.NewEngine(guard, edit.NewFuzzyLogger(cfg.FuzzyLogFile), logger)
	sessions := session.NewManager(store, logger)
	procs := proc.NewService(logger)

	srv := mcpserver.New(store, guard, sink, files, searcher, editor, sessions, procs, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *watch && *envPath != "" {
		go func() {
			if err := config.Watch(ctx, *envPath, store, logger); err != nil {
				logger.Warn().Err(err).Msg("config watcher stopped")
			}
		}()
	}

	serveErr := srv.Serve(ctx)

	// Shut down in reverse construction order: children first, audit last.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sessions.Shutdown(shutdownCtx)
	if err := sink.Close(); err != nil {
		logger.Warn().Err(err).Msg("audit sink close failed")
	}

	if serveErr != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", serveErr)
		os.Exit(1)
	}
	logger.Info().Msg("server shutdown")
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	// stdout carries the protocol stream; all logging goes to stderr.
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}
