package config

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Store guards a Config for concurrent readers and per-key mutation.
// Snapshot returns a deep copy so callers never observe a torn update.
type Store struct {
	mu  sync.RWMutex
	cfg Config
}

// NewStore wraps an already-loaded Config.
func NewStore(cfg *Config) *Store {
	s := &Store{cfg: *cfg}
	s.cfg.AllowedDirectories = append([]string(nil), cfg.AllowedDirectories...)
	s.cfg.BlockedCommands = append([]string(nil), cfg.BlockedCommands...)
	return s
}

// Snapshot returns a consistent copy of the current configuration.
func (s *Store) Snapshot() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg := s.cfg
	cfg.AllowedDirectories = append([]string(nil), s.cfg.AllowedDirectories...)
	cfg.BlockedCommands = append([]string(nil), s.cfg.BlockedCommands...)
	return cfg
}

// MutableKeys lists the keys set_config_value accepts.
func MutableKeys() []string {
	keys := []string{
		"allowed_directories",
		"blocked_commands",
		"default_shell",
		"file_read_line_limit",
		"file_write_line_limit",
		"log_level",
	}
	sort.Strings(keys)
	return keys
}

// Set applies one validated in-memory mutation. Path-typed values are
// absolutized; unknown keys and malformed values are rejected without
// touching the stored config.
func (s *Store) Set(key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch key {
	case "blocked_commands":
		list, err := stringList(value)
		if err != nil {
			return fmt.Errorf("blocked_commands: %w", err)
		}
		var cmds []string
		for _, item := range list {
			cmds = append(cmds, ParseCommandList(item)...)
		}
		s.cfg.BlockedCommands = cmds
	case "allowed_directories":
		list, err := stringList(value)
		if err != nil {
			return fmt.Errorf("allowed_directories: %w", err)
		}
		var dirs []string
		for _, item := range list {
			abs, err := absolutize(item)
			if err != nil {
				return fmt.Errorf("allowed_directories entry %q: %w", item, err)
			}
			if resolved, err := filepath.EvalSymlinks(abs); err == nil {
				abs = resolved
			}
			dirs = append(dirs, abs)
		}
		if len(dirs) == 0 {
			dirs = []string{s.cfg.FilesRoot}
		}
		s.cfg.AllowedDirectories = dirs
	case "default_shell":
		sh, ok := value.(string)
		if !ok {
			return fmt.Errorf("default_shell must be a string")
		}
		s.cfg.DefaultShell = sh
	case "log_level":
		lv, ok := value.(string)
		if !ok {
			return fmt.Errorf("log_level must be a string")
		}
		// Advisory: the running log sink is not reconfigured.
		s.cfg.LogLevel = lv
	case "file_read_line_limit":
		n, err := positiveInt(value)
		if err != nil {
			return fmt.Errorf("file_read_line_limit: %w", err)
		}
		s.cfg.FileReadLineLimit = n
	case "file_write_line_limit":
		n, err := positiveInt(value)
		if err != nil {
			return fmt.Errorf("file_write_line_limit: %w", err)
		}
		s.cfg.FileWriteLineLimit = n
	default:
		return fmt.Errorf("unknown or immutable config key: %s", key)
	}
	return nil
}

func stringList(value any) ([]string, error) {
	switch v := value.(type) {
	case string:
		return []string{v}, nil
	case []string:
		return v, nil
	case []any:
		var out []string
		for _, item := range v {
			str, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expected string elements, got %T", item)
			}
			out = append(out, str)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected string or string list, got %T", value)
	}
}

func positiveInt(value any) (int, error) {
	var n int
	switch v := value.(type) {
	case int:
		n = v
	case float64:
		n = int(v)
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, fmt.Errorf("expected number, got %q", v)
		}
		n = parsed
	default:
		return 0, fmt.Errorf("expected number, got %T", value)
	}
	if n <= 0 {
		return 0, fmt.Errorf("must be positive, got %d", n)
	}
	return n, nil
}
