package fsops

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/babybirdprd/mcp-rg-editor/pkg/pathguard"
)

// CreateDirectory creates path and any missing parents. Creating an
// existing directory succeeds; an existing file at path is an error.
func (m *Manager) CreateDirectory(pathArg string) (*WriteResult, error) {
	path, err := m.guard.Resolve(pathArg, false)
	if err != nil {
		return nil, err
	}
	if fi, err := os.Stat(path); err == nil && !fi.IsDir() {
		return nil, fmt.Errorf("%w: a file exists at %s", pathguard.ErrNotADirectory, pathArg)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, err
	}
	return &WriteResult{Success: true, Path: pathArg, Message: "Directory created successfully."}, nil
}

// ListDirectoryResult is the list_directory response.
type ListDirectoryResult struct {
	Path    string   `json:"path"`
	Entries []string `json:"entries"`
}

// ListDirectory returns one "[DIR] name" or "[FILE] name" line per entry,
// sorted case-insensitively. The prefix format is part of the contract.
func (m *Manager) ListDirectory(pathArg string) (*ListDirectoryResult, error) {
	path, err := m.guard.ResolveDir(pathArg)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	lines := make([]string, 0, len(entries))
	for _, entry := range entries {
		prefix := "[FILE]"
		if entry.IsDir() {
			prefix = "[DIR]"
		}
		lines = append(lines, prefix+" "+entry.Name())
	}
	sort.Slice(lines, func(i, j int) bool {
		return strings.ToLower(nameOf(lines[i])) < strings.ToLower(nameOf(lines[j]))
	})
	return &ListDirectoryResult{Path: pathArg, Entries: lines}, nil
}

func nameOf(line string) string {
	if idx := strings.Index(line, "] "); idx >= 0 {
		return line[idx+2:]
	}
	return line
}

// MoveFile renames source to destination, falling back to copy+remove when
// the rename crosses devices. File mtimes survive where the OS allows.
func (m *Manager) MoveFile(sourceArg, destArg string) (*WriteResult, error) {
	source, err := m.guard.Resolve(sourceArg, true)
	if err != nil {
		return nil, err
	}
	dest, err := m.guard.Resolve(destArg, false)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return nil, err
	}

	if err := os.Rename(source, dest); err != nil {
		if !isCrossDevice(err) {
			return nil, err
		}
		if err := copyRecursive(source, dest); err != nil {
			return nil, err
		}
		if err := os.RemoveAll(source); err != nil {
			return nil, err
		}
	}
	return &WriteResult{
		Success: true,
		Path:    destArg,
		Message: fmt.Sprintf("Successfully moved %s to %s.", sourceArg, destArg),
	}, nil
}

func copyRecursive(source, dest string) error {
	fi, err := os.Lstat(source)
	if err != nil {
		return err
	}
	switch {
	case fi.IsDir():
		if err := os.MkdirAll(dest, fi.Mode().Perm()); err != nil {
			return err
		}
		entries, err := os.ReadDir(source)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			if err := copyRecursive(filepath.Join(source, entry.Name()), filepath.Join(dest, entry.Name())); err != nil {
				return err
			}
		}
		return os.Chtimes(dest, time.Now(), fi.ModTime())
	case fi.Mode()&os.ModeSymlink != 0:
		target, err := os.Readlink(source)
		if err != nil {
			return err
		}
		return os.Symlink(target, dest)
	default:
		in, err := os.Open(source)
		if err != nil {
			return err
		}
		defer in.Close()
		out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, fi.Mode().Perm())
		if err != nil {
			return err
		}
		if _, err := io.Copy(out, in); err != nil {
			out.Close()
			return err
		}
		if err := out.Close(); err != nil {
			return err
		}
		return os.Chtimes(dest, time.Now(), fi.ModTime())
	}
}

// SearchFilesResult is the search_files response.
type SearchFilesResult struct {
	Path     string   `json:"path"`
	Pattern  string   `json:"pattern"`
	Matches  []string `json:"matches"`
	TimedOut bool     `json:"timed_out"`
}

const defaultSearchTimeout = 30 * time.Second

// SearchFiles walks root breadth-first matching names by case-insensitive
// substring. The walk stops at the deadline and reports what it found.
func (m *Manager) SearchFiles(ctx context.Context, rootArg, pattern string, timeout time.Duration) (*SearchFilesResult, error) {
	root, err := m.guard.ResolveDir(rootArg)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = defaultSearchTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	filesRoot := m.store.Snapshot().FilesRoot
	needle := strings.ToLower(pattern)
	matches := []string{}
	timedOut := false

	queue := []string{root}
	for len(queue) > 0 {
		if ctx.Err() != nil {
			timedOut = true
			break
		}
		dir := queue[0]
		queue = queue[1:]

		entries, err := os.ReadDir(dir)
		if err != nil {
			m.logger.Warn().Err(err).Str("dir", dir).Msg("could not read directory during search_files")
			continue
		}
		for _, entry := range entries {
			full := filepath.Join(dir, entry.Name())
			if strings.Contains(strings.ToLower(entry.Name()), needle) {
				if rel, err := filepath.Rel(filesRoot, full); err == nil && !strings.HasPrefix(rel, "..") {
					matches = append(matches, rel)
				} else {
					matches = append(matches, full)
				}
			}
			if entry.IsDir() {
				queue = append(queue, full)
			}
		}
	}
	sort.Strings(matches)
	return &SearchFilesResult{Path: rootArg, Pattern: pattern, Matches: matches, TimedOut: timedOut}, nil
}
