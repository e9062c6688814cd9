package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Transport selects how the server talks to its client.
type Transport string

const (
	TransportStdio    Transport = "stdio"
	TransportSSE      Transport = "sse"
	TransportDisabled Transport = "disabled"
)

// DefaultBlockedCommands is applied when BLOCKED_COMMANDS is unset.
const DefaultBlockedCommands = "sudo,su,rm,mkfs,fdisk,dd,reboot,shutdown,poweroff,halt,format,mount,umount,passwd,adduser,useradd,usermod,groupadd"

const (
	defaultReadLineLimit  = 1000
	defaultWriteLineLimit = 50
	defaultAuditMaxSizeMB = 10
	defaultSSEHost        = "127.0.0.1"
	defaultSSEPort        = 3000
	defaultLogDir         = "~/.mcp-logs"
)

var driveRootRe = regexp.MustCompile(`^[a-zA-Z]:[\\/]?$`)

// Config is the effective server configuration. All path fields are absolute
// after Load. Access it through a Store; plain Config values are snapshots.
type Config struct {
	FilesRoot          string    `json:"files_root"`
	AllowedDirectories []string  `json:"allowed_directories"`
	BlockedCommands    []string  `json:"blocked_commands"`
	DefaultShell       string    `json:"default_shell,omitempty"`
	LogLevel           string    `json:"log_level"`
	Transport          Transport `json:"transport"`
	SSEHost            string    `json:"sse_host"`
	SSEPort            int       `json:"sse_port"`
	FileReadLineLimit  int       `json:"file_read_line_limit"`
	FileWriteLineLimit int       `json:"file_write_line_limit"`
	LogDir             string    `json:"mcp_log_dir"`
	AuditLogFile       string    `json:"audit_log_file"`
	AuditLogMaxBytes   int64     `json:"audit_log_max_size_bytes"`
	FuzzyLogFile       string    `json:"fuzzy_search_log_file"`
}

// Load reads configuration from the environment. A .env file at envPath (or
// the working directory when empty) is merged in first without overriding
// variables already present.
func Load(envPath string) (*Config, error) {
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	rootRaw := os.Getenv("FILES_ROOT")
	if rootRaw == "" {
		return nil, fmt.Errorf("FILES_ROOT environment variable must be set")
	}
	root, err := absolutize(rootRaw)
	if err != nil {
		return nil, fmt.Errorf("FILES_ROOT %q: %w", rootRaw, err)
	}
	if fi, err := os.Stat(root); err != nil || !fi.IsDir() {
		return nil, fmt.Errorf("FILES_ROOT is not a valid directory: %s", root)
	}
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}

	allowed, err := parseAllowedDirectories(os.Getenv("ALLOWED_DIRECTORIES"), root)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		FilesRoot:          root,
		AllowedDirectories: allowed,
		BlockedCommands:    ParseCommandList(getEnv("BLOCKED_COMMANDS", DefaultBlockedCommands)),
		DefaultShell:       os.Getenv("DEFAULT_SHELL"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		SSEHost:            getEnv("MCP_SSE_HOST", defaultSSEHost),
	}

	switch mode := strings.ToLower(getEnv("MCP_TRANSPORT", string(TransportStdio))); Transport(mode) {
	case TransportStdio, TransportSSE, TransportDisabled:
		cfg.Transport = Transport(mode)
	default:
		return nil, fmt.Errorf("invalid MCP_TRANSPORT: %s", mode)
	}

	if cfg.SSEPort, err = intEnv("MCP_SSE_PORT", defaultSSEPort); err != nil {
		return nil, err
	}
	if cfg.FileReadLineLimit, err = intEnv("FILE_READ_LINE_LIMIT", defaultReadLineLimit); err != nil {
		return nil, err
	}
	if cfg.FileWriteLineLimit, err = intEnv("FILE_WRITE_LINE_LIMIT", defaultWriteLineLimit); err != nil {
		return nil, err
	}
	if cfg.FileReadLineLimit <= 0 || cfg.FileWriteLineLimit <= 0 {
		return nil, fmt.Errorf("line limits must be positive")
	}

	maxMB, err := intEnv("AUDIT_LOG_MAX_SIZE_MB", defaultAuditMaxSizeMB)
	if err != nil {
		return nil, err
	}
	cfg.AuditLogMaxBytes = int64(maxMB) * 1024 * 1024

	logDir, err := absolutize(getEnv("MCP_LOG_DIR", defaultLogDir))
	if err != nil {
		logDir = filepath.Join(root, ".mcp-logs")
	}
	cfg.LogDir = logDir
	cfg.AuditLogFile = filepath.Join(logDir, "tool_calls.log")
	cfg.FuzzyLogFile = filepath.Join(logDir, "fuzzy-search.log")

	return cfg, nil
}

// IsRootSentinel reports whether dir names the whole filesystem ("/" on
// POSIX, a bare drive root on Windows), which disables the jail prefix check.
func IsRootSentinel(dir string) bool {
	if dir == "/" {
		return true
	}
	return runtime.GOOS == "windows" && driveRootRe.MatchString(dir)
}

// ParseCommandList splits a comma-separated blocklist, trimming and
// lowercasing each entry.
func ParseCommandList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ExpandTilde rewrites a leading "~" to the current user's home directory.
func ExpandTilde(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") || strings.HasPrefix(path, `~\`) {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot expand ~: %w", err)
		}
		if path == "~" {
			return home, nil
		}
		return filepath.Join(home, path[2:]), nil
	}
	return path, nil
}

func absolutize(path string) (string, error) {
	expanded, err := ExpandTilde(path)
	if err != nil {
		return "", err
	}
	if !filepath.IsAbs(expanded) {
		return filepath.Abs(expanded)
	}
	return filepath.Clean(expanded), nil
}

func parseAllowedDirectories(raw, filesRoot string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return []string{filesRoot}, nil
	}
	if IsRootSentinel(raw) {
		return []string{raw}, nil
	}

	var dirs []string
	seen := map[string]bool{}
	add := func(d string) {
		if !seen[d] {
			seen[d] = true
			dirs = append(dirs, d)
		}
	}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		abs, err := absolutize(part)
		if err != nil {
			return nil, fmt.Errorf("ALLOWED_DIRECTORIES entry %q: %w", part, err)
		}
		if resolved, err := filepath.EvalSymlinks(abs); err == nil {
			abs = resolved
		}
		add(abs)
	}
	// files_root always remains reachable; ordering keeps the configured
	// entries ahead of it for first-match tie-breaks.
	add(filesRoot)
	return dirs, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return n, nil
}
