// Package session spawns shell commands for execute_command, streams their
// merged output into per-session ring buffers, and lets callers read, list,
// and terminate the children across later requests.
package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	shellwords "github.com/mattn/go-shellwords"
	"github.com/rs/zerolog"

	"github.com/babybirdprd/mcp-rg-editor/internal/procgroup"
	"github.com/babybirdprd/mcp-rg-editor/pkg/config"
)

var (
	// ErrNotFound means the session id is unknown or already reaped.
	ErrNotFound = errors.New("session not found")
	// ErrSpawnFailed wraps an OS-level spawn failure; no session exists.
	ErrSpawnFailed = errors.New("failed to spawn command")
)

// BlockedError reports a command whose head token is administrator-blocked.
type BlockedError struct {
	Command string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("command blocked by configuration: %s", e.Command)
}

// ExecArgs are the execute_command parameters.
type ExecArgs struct {
	Command string
	Timeout time.Duration // soft timeout before backgrounding; default 1s
	Shell   string
}

// ExecResult is the execute_command response.
type ExecResult struct {
	SessionID string `json:"session_id"`
	PID       int    `json:"pid,omitempty"`
	Completed bool   `json:"completed"`
	TimedOut  bool   `json:"timed_out"`
	Output    string `json:"output"`
	ExitCode  *int   `json:"exit_code,omitempty"`
	Message   string `json:"message"`
}

// ReadResult is the read_output response.
type ReadResult struct {
	SessionID string `json:"session_id"`
	Output    string `json:"output"`
	Running   bool   `json:"running"`
	State     string `json:"state"`
	ExitCode  *int   `json:"exit_code,omitempty"`
}

// TerminateResult is the force_terminate response.
type TerminateResult struct {
	SessionID string `json:"session_id"`
	Success   bool   `json:"success"`
	Message   string `json:"message"`
}

const (
	defaultTimeout = time.Second
	bufferCapBytes = 8 << 20
	reapGrace      = 30 * time.Second
	terminateGrace = 500 * time.Millisecond
	maxScannedLine = 1 << 20
)

// Manager owns the session registry.
type Manager struct {
	store  *config.Store
	logger zerolog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session

	wg sync.WaitGroup
}

// NewManager creates an empty registry bound to the config store.
func NewManager(store *config.Store, logger zerolog.Logger) *Manager {
	return &Manager{
		store:    store,
		logger:   logger.With().Str("component", "session").Logger(),
		sessions: make(map[string]*Session),
	}
}

// ExecuteCommand spawns the command and waits up to the soft timeout. On
// timeout the child keeps running in the background and remains reachable
// through the returned session id.
func (m *Manager) ExecuteCommand(ctx context.Context, args ExecArgs) (*ExecResult, error) {
	cfg := m.store.Snapshot()

	if blocked, head := isBlocked(args.Command, cfg.BlockedCommands); blocked {
		m.logger.Warn().Str("command", args.Command).Str("head", head).Msg("command execution blocked")
		return nil, &BlockedError{Command: args.Command}
	}

	shell := args.Shell
	if shell == "" {
		shell = cfg.DefaultShell
	}
	if shell == "" {
		shell = defaultShell()
	}

	cmd := exec.Command(shell, shellFlag(shell), args.Command)
	cmd.Dir = cfg.FilesRoot
	cmd.Stdin = nil
	procgroup.Isolate(cmd)

	// stdout and stderr share one pipe so lines land in arrival order.
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		return nil, fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}
	pw.Close()

	s := &Session{
		ID:        uuid.NewString(),
		Command:   args.Command,
		PID:       cmd.Process.Pid,
		StartedAt: time.Now(),
		buffer:    newOutputBuffer(bufferCapBytes),
		done:      make(chan struct{}),
		cmd:       cmd,
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	collectorDone := make(chan struct{})
	m.wg.Add(2)
	go m.collectOutput(s, pr, collectorDone)
	go m.awaitExit(s, collectorDone)

	timeout := args.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	timedOut := false
	select {
	case <-s.done:
	case <-timer.C:
		timedOut = true
	case <-ctx.Done():
		timedOut = true
	}

	output, cursor := s.buffer.readFrom(0)
	s.mu.Lock()
	s.cursor = cursor
	s.mu.Unlock()

	state, exitCode := s.snapshot()
	res := &ExecResult{
		SessionID: s.ID,
		PID:       s.PID,
		Completed: state != StateRunning,
		TimedOut:  timedOut && state == StateRunning,
		Output:    output,
		ExitCode:  exitCode,
	}
	if res.Completed {
		res.Message = fmt.Sprintf("Command finished (state: %s).", state)
	} else {
		res.Message = fmt.Sprintf("Command still running with PID %d; use read_output with session id %s.", s.PID, s.ID)
	}
	return res, nil
}

// ReadOutput returns everything appended since the previous read and
// advances the cursor.
func (m *Manager) ReadOutput(sessionID string) (*ReadResult, error) {
	s, err := m.get(sessionID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	cursor := s.cursor
	s.mu.Unlock()

	output, next := s.buffer.readFrom(cursor)

	s.mu.Lock()
	if next > s.cursor {
		s.cursor = next
	}
	s.mu.Unlock()

	state, exitCode := s.snapshot()
	return &ReadResult{
		SessionID: sessionID,
		Output:    output,
		Running:   state == StateRunning,
		State:     state.String(),
		ExitCode:  exitCode,
	}, nil
}

// ForceTerminate signals the whole process group, escalating to SIGKILL
// after a grace window, and reaps the session.
func (m *Manager) ForceTerminate(sessionID string) (*TerminateResult, error) {
	s, err := m.get(sessionID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.forced = true
	running := s.state == StateRunning
	pid := s.PID
	s.mu.Unlock()

	if running {
		if err := procgroup.Terminate(pid, terminateGrace); err != nil {
			return &TerminateResult{
				SessionID: sessionID,
				Success:   false,
				Message:   fmt.Sprintf("Failed to signal process group: %v", err),
			}, nil
		}
		select {
		case <-s.done:
		case <-time.After(2 * time.Second):
			_ = procgroup.Kill(pid)
			<-s.done
		}
	}

	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()

	return &TerminateResult{
		SessionID: sessionID,
		Success:   true,
		Message:   "Termination signal sent; session reaped.",
	}, nil
}

// ListSessions enumerates sessions that have not been reaped yet.
func (m *Manager) ListSessions() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()

	infos := make([]Info, 0, len(m.sessions))
	now := time.Now()
	for _, s := range m.sessions {
		state, _ := s.snapshot()
		infos = append(infos, Info{
			ID:        s.ID,
			Command:   s.Command,
			PID:       s.PID,
			RuntimeMS: now.Sub(s.StartedAt).Milliseconds(),
			State:     state.String(),
		})
	}
	return infos
}

// Shutdown kills every running child and waits for collectors to drain.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.RLock()
	var running []*Session
	for _, s := range m.sessions {
		if !s.terminal() {
			running = append(running, s)
		}
	}
	m.mu.RUnlock()

	for _, s := range running {
		s.mu.Lock()
		s.forced = true
		pid := s.PID
		s.mu.Unlock()
		_ = procgroup.Terminate(pid, terminateGrace)
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (m *Manager) get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s, nil
}

func (m *Manager) collectOutput(s *Session, pr *os.File, done chan<- struct{}) {
	defer m.wg.Done()
	defer close(done)
	defer pr.Close()

	scanner := bufio.NewScanner(pr)
	scanner.Buffer(make([]byte, 64<<10), maxScannedLine)
	for scanner.Scan() {
		s.buffer.append(scanner.Text())
	}
	if dropped := s.buffer.droppedLines(); dropped > 0 {
		m.logger.Debug().Str("session", s.ID).Int64("dropped", dropped).Msg("session output buffer overflowed")
	}
}

func (m *Manager) awaitExit(s *Session, collectorDone <-chan struct{}) {
	defer m.wg.Done()

	err := s.cmd.Wait()

	// Let the collector drain the pipe before the state turns terminal, so a
	// final read_output sees the whole tail. Backgrounded grandchildren can
	// hold the pipe open, hence the bound.
	select {
	case <-collectorDone:
	case <-time.After(time.Second):
	}

	s.mu.Lock()
	forced := s.forced
	s.mu.Unlock()

	switch {
	case err == nil:
		code := 0
		s.finish(StateExited, &code, "")
	case forced:
		s.finish(StateForceKilled, nil, "")
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			if code := exitErr.ExitCode(); code >= 0 {
				s.finish(StateExited, &code, "")
			} else {
				s.finish(StateSignaled, nil, "")
			}
		} else {
			s.finish(StateFailed, nil, err.Error())
		}
	}

	state, _ := s.snapshot()
	m.logger.Info().Str("session", s.ID).Int("pid", s.PID).Str("state", state.String()).Msg("command finished")

	// Retain the session briefly so a final read_output can drain the tail.
	time.AfterFunc(reapGrace, func() {
		m.mu.Lock()
		delete(m.sessions, s.ID)
		m.mu.Unlock()
	})
}

// isBlocked parses the command with shell rules, skips leading VAR=value
// assignments, and compares the lowercased head token to the blocklist.
func isBlocked(command string, blocklist []string) (bool, string) {
	tokens, err := shellwords.Parse(command)
	if err != nil {
		tokens = strings.Fields(command)
	}
	head := ""
	for _, tok := range tokens {
		if strings.Contains(tok, "=") && !strings.HasPrefix(tok, "=") {
			if i := strings.Index(tok, "="); i > 0 && !strings.ContainsAny(tok[:i], "/\\ ") {
				continue
			}
		}
		head = tok
		break
	}
	if head == "" {
		return false, ""
	}
	head = strings.ToLower(head)
	// A blocked binary stays blocked when invoked by path.
	base := head
	if i := strings.LastIndexAny(base, "/\\"); i >= 0 {
		base = base[i+1:]
	}
	for _, blocked := range blocklist {
		if head == blocked || base == blocked {
			return true, head
		}
	}
	return false, head
}

func defaultShell() string {
	if runtime.GOOS == "windows" {
		return "cmd.exe"
	}
	return "/bin/sh"
}

// shellFlag picks the command-string flag for the shell program:
// -Command for PowerShell and cmd.exe's /C, -c for POSIX shells.
func shellFlag(shell string) string {
	lower := strings.ToLower(shell)
	switch {
	case strings.Contains(lower, "powershell") || strings.Contains(lower, "pwsh"):
		return "-Command"
	case strings.Contains(lower, "cmd.exe") || lower == "cmd":
		return "/C"
	default:
		return "-c"
	}
}
