// Package proc implements list_processes and kill_process on top of
// gopsutil. CPU percentages are deltas against the previous enumeration by
// the same service instance, so the first listing reports lifetime averages.
package proc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v4/process"
)

var (
	// ErrNotFound means no process with the given pid exists.
	ErrNotFound = errors.New("process not found")
	// ErrPermission means the OS refused to signal the process.
	ErrPermission = errors.New("permission denied")
)

// Info is one list_processes entry.
type Info struct {
	PID      int32   `json:"pid"`
	Name     string  `json:"name"`
	CPUPct   float64 `json:"cpu_pct"`
	MemBytes uint64  `json:"mem_bytes"`
	Command  string  `json:"command"`
	Status   string  `json:"status"`
}

// KillResult is the kill_process response.
type KillResult struct {
	PID     int32  `json:"pid"`
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Service caches process handles between listings for interval CPU math.
type Service struct {
	mu     sync.Mutex
	cache  map[int32]*process.Process
	logger zerolog.Logger
}

// NewService returns an empty service.
func NewService(logger zerolog.Logger) *Service {
	return &Service{
		cache:  make(map[int32]*process.Process),
		logger: logger.With().Str("component", "proc").Logger(),
	}
}

// List enumerates all visible processes.
func (s *Service) List(ctx context.Context) ([]Info, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate processes: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[int32]bool, len(procs))
	infos := make([]Info, 0, len(procs))
	for _, p := range procs {
		seen[p.Pid] = true
		// Reuse the cached handle so CPUPercent measures the interval since
		// the previous List call.
		cached, ok := s.cache[p.Pid]
		if !ok {
			cached = p
			s.cache[p.Pid] = p
		}

		info := Info{PID: p.Pid}
		if name, err := cached.NameWithContext(ctx); err == nil {
			info.Name = name
		}
		if ok {
			if pct, err := cached.PercentWithContext(ctx, 0); err == nil {
				info.CPUPct = pct
			}
		} else {
			// Prime the interval baseline; the first listing reports the
			// lifetime average.
			_, _ = cached.PercentWithContext(ctx, 0)
			if pct, err := cached.CPUPercentWithContext(ctx); err == nil {
				info.CPUPct = pct
			}
		}
		if mem, err := cached.MemoryInfoWithContext(ctx); err == nil && mem != nil {
			info.MemBytes = mem.RSS
		}
		if cmdline, err := cached.CmdlineWithContext(ctx); err == nil {
			info.Command = cmdline
		}
		if status, err := cached.StatusWithContext(ctx); err == nil {
			info.Status = strings.Join(status, ",")
		}
		infos = append(infos, info)
	}

	for pid := range s.cache {
		if !seen[pid] {
			delete(s.cache, pid)
		}
	}
	return infos, nil
}

// Kill terminates pid, escalating from SIGTERM to SIGKILL. Permission
// failures and unknown pids are distinct errors.
func (s *Service) Kill(ctx context.Context, pid int32) (*KillResult, error) {
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, pid)
	}
	name, _ := p.NameWithContext(ctx)

	if err := p.TerminateWithContext(ctx); err != nil {
		if isPermission(err) {
			return nil, fmt.Errorf("%w: cannot signal pid %d", ErrPermission, pid)
		}
		return nil, fmt.Errorf("failed to terminate pid %d: %v", pid, err)
	}

	time.Sleep(100 * time.Millisecond)
	if running, _ := p.IsRunningWithContext(ctx); running {
		if err := p.KillWithContext(ctx); err != nil {
			if isPermission(err) {
				return nil, fmt.Errorf("%w: cannot kill pid %d", ErrPermission, pid)
			}
			return &KillResult{
				PID:     pid,
				Success: false,
				Message: fmt.Sprintf("Sent SIGKILL to process %d (%s) but it may still be running.", pid, name),
			}, nil
		}
	}

	s.logger.Info().Int32("pid", pid).Str("name", name).Msg("process terminated")
	return &KillResult{
		PID:     pid,
		Success: true,
		Message: fmt.Sprintf("Process %d (%s) terminated.", pid, name),
	}, nil
}

func isPermission(err error) bool {
	if errors.Is(err, os.ErrPermission) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "permission denied") || strings.Contains(msg, "access is denied") || strings.Contains(msg, "operation not permitted")
}
