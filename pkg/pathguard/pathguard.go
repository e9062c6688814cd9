// Package pathguard canonicalizes every externally supplied path and checks
// it against the configured directory jail. All filesystem tools go through
// Resolve before touching the disk.
package pathguard

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/babybirdprd/mcp-rg-editor/pkg/config"
)

var (
	// ErrOutsideJail means the canonical path is under no allowed directory.
	ErrOutsideJail = errors.New("path outside allowed directories")
	// ErrNotFound means the caller required an existing path and it is absent.
	ErrNotFound = errors.New("path does not exist")
	// ErrNotADirectory means a directory was required but a file was found.
	ErrNotADirectory = errors.New("path is not a directory")
)

// Guard resolves and authorizes paths against the live configuration.
type Guard struct {
	store *config.Store
}

// New returns a Guard reading allowed directories from store.
func New(store *config.Store) *Guard {
	return &Guard{store: store}
}

// Resolve expands, canonicalizes, and authorizes input. Relative inputs are
// joined to files_root; "~" expands to the home directory. When mustExist is
// false the deepest existing ancestor is canonicalized and the remaining
// components are re-appended, so a yet-to-be-created file still gets a
// symlink-safe jail check.
func (g *Guard) Resolve(input string, mustExist bool) (string, error) {
	if strings.TrimSpace(input) == "" {
		return "", fmt.Errorf("%w: empty path", ErrNotFound)
	}
	cfg := g.store.Snapshot()

	expanded, err := config.ExpandTilde(input)
	if err != nil {
		return "", err
	}
	if !filepath.IsAbs(expanded) {
		expanded = filepath.Join(cfg.FilesRoot, expanded)
	}
	cleaned := filepath.Clean(expanded)

	canonical, exists, err := canonicalize(cleaned)
	if err != nil {
		return "", err
	}
	if mustExist && !exists {
		return "", fmt.Errorf("%w: %s", ErrNotFound, cleaned)
	}

	if err := g.authorize(canonical, cfg); err != nil {
		return "", err
	}
	return canonical, nil
}

// ResolveDir is Resolve plus a directory check on the result.
func (g *Guard) ResolveDir(input string) (string, error) {
	path, err := g.Resolve(input, true)
	if err != nil {
		return "", err
	}
	fi, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if !fi.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrNotADirectory, path)
	}
	return path, nil
}

// Allowed reports whether an already-canonical path passes the jail check.
// Used by the audit sanitizer, which must never error.
func (g *Guard) Allowed(canonical string) bool {
	return g.authorize(canonical, g.store.Snapshot()) == nil
}

func (g *Guard) authorize(canonical string, cfg config.Config) error {
	for _, dir := range cfg.AllowedDirectories {
		if config.IsRootSentinel(dir) {
			return nil
		}
		if isPathPrefix(dir, canonical) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrOutsideJail, canonical)
}

// canonicalize resolves symlinks segment by segment. For paths whose tail
// does not exist yet it resolves the deepest existing ancestor and rejoins
// the untouched remainder.
func canonicalize(path string) (string, bool, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err == nil {
		return resolved, true, nil
	}
	if !os.IsNotExist(err) {
		return "", false, err
	}

	var tail []string
	current := path
	for {
		parent := filepath.Dir(current)
		if parent == current {
			// Hit the filesystem root without finding anything.
			return filepath.Join(append([]string{current}, tail...)...), false, nil
		}
		tail = append([]string{filepath.Base(current)}, tail...)
		if resolved, err := filepath.EvalSymlinks(parent); err == nil {
			return filepath.Join(append([]string{resolved}, tail...)...), false, nil
		} else if !os.IsNotExist(err) {
			return "", false, err
		}
		current = parent
	}
}

// isPathPrefix compares by path segments, not string prefix, so /tmp/foo
// does not admit /tmp/foobar.
func isPathPrefix(parent, child string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
