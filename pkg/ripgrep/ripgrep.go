// Package ripgrep drives the external rg binary for the search_code tool:
// structured flag construction, match-line parsing, and deadline handling
// that kills the whole child process group.
package ripgrep

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/babybirdprd/mcp-rg-editor/internal/procgroup"
	"github.com/babybirdprd/mcp-rg-editor/pkg/pathguard"
)

// ErrUnavailable means the rg binary is not installed.
var ErrUnavailable = errors.New("rg not found in PATH")

// ErrTimeout means the search exceeded its deadline; partial matches are
// still returned alongside it by Search.
var ErrTimeout = errors.New("search timed out")

// Args are the search_code parameters.
type Args struct {
	Path          string
	Pattern       string
	CaseSensitive bool
	FilePattern   string
	ContextLines  int
	IncludeHidden bool
	Timeout       time.Duration
	MaxResults    int
}

// Match is one parsed result line.
type Match struct {
	File   string `json:"file"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
	Text   string `json:"text"`
}

// Result is the search_code response.
type Result struct {
	Matches  []string `json:"matches"`
	Total    int      `json:"total"`
	TimedOut bool     `json:"timed_out"`
}

const (
	defaultTimeout    = 30 * time.Second
	defaultMaxResults = 1000
	killGrace         = 200 * time.Millisecond
)

// matchLine is file:line:column:text; context lines use '-' separators and
// are skipped by the parser.
var matchLine = regexp.MustCompile(`^(.*?):(\d+):(\d+):(.*)$`)

// Searcher runs rg under the path guard.
type Searcher struct {
	guard  *pathguard.Guard
	logger zerolog.Logger
}

// NewSearcher wires the searcher to the guard.
func NewSearcher(guard *pathguard.Guard, logger zerolog.Logger) *Searcher {
	return &Searcher{guard: guard, logger: logger.With().Str("component", "ripgrep").Logger()}
}

// Search invokes rg and parses its output. Matches are surfaced as
// "file:line:text" with the file relative to the search root.
func (s *Searcher) Search(ctx context.Context, args Args) (*Result, error) {
	if _, err := exec.LookPath("rg"); err != nil {
		return nil, ErrUnavailable
	}

	root, err := s.guard.ResolveDir(args.Path)
	if err != nil {
		return nil, err
	}

	timeout := args.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxResults := args.MaxResults
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}

	flags := []string{"--line-number", "--no-heading", "--color", "never", "--column"}
	if !args.CaseSensitive {
		flags = append(flags, "-i")
	}
	if args.FilePattern != "" {
		flags = append(flags, "-g", args.FilePattern)
	}
	if args.ContextLines > 0 {
		flags = append(flags, "-C", strconv.Itoa(args.ContextLines))
	}
	if args.IncludeHidden {
		flags = append(flags, "--hidden")
	}
	flags = append(flags, "--max-count", strconv.Itoa(maxResults))
	flags = append(flags, "--", args.Pattern, ".")

	cmd := exec.Command("rg", flags...)
	cmd.Dir = root
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	procgroup.Isolate(cmd)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start rg: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	timedOut := false
	select {
	case err = <-done:
	case <-timer.C:
		timedOut = true
		s.killChild(cmd)
		<-done
	case <-ctx.Done():
		s.killChild(cmd)
		<-done
		return nil, ctx.Err()
	}

	if err != nil && !timedOut {
		var exitErr *exec.ExitError
		// rg exits 1 when nothing matched; that is an empty result, not a failure.
		if !errors.As(err, &exitErr) || exitErr.ExitCode() != 1 {
			return nil, fmt.Errorf("ripgrep failed: %s", strings.TrimSpace(stderr.String()))
		}
	}

	matches := parseMatches(stdout.String())
	lines := make([]string, 0, len(matches))
	for _, m := range matches {
		lines = append(lines, fmt.Sprintf("%s:%d:%s", m.File, m.Line, m.Text))
	}
	res := &Result{Matches: lines, Total: len(lines), TimedOut: timedOut}
	if timedOut {
		return res, ErrTimeout
	}
	return res, nil
}

func (s *Searcher) killChild(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	if err := procgroup.Terminate(cmd.Process.Pid, killGrace); err != nil {
		s.logger.Warn().Err(err).Int("pid", cmd.Process.Pid).Msg("failed to kill rg process group")
	}
}

// parseMatches extracts match records, ignoring context and separator lines.
func parseMatches(out string) []Match {
	var matches []Match
	for _, line := range strings.Split(out, "\n") {
		groups := matchLine.FindStringSubmatch(line)
		if groups == nil {
			continue
		}
		lineNum, err := strconv.Atoi(groups[2])
		if err != nil {
			continue
		}
		col, err := strconv.Atoi(groups[3])
		if err != nil {
			continue
		}
		matches = append(matches, Match{
			File:   strings.TrimPrefix(filepath.ToSlash(groups[1]), "./"),
			Line:   lineNum,
			Column: col,
			Text:   strings.TrimRight(groups[4], "\r"),
		})
	}
	return matches
}
