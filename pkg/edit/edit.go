// Package edit implements the edit_block tool: exact multi-occurrence
// replacement with a strict count expectation, a diagnostic fuzzy fallback
// that never modifies the file, and line-ending preservation.
package edit

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/babybirdprd/mcp-rg-editor/pkg/pathguard"
)

// ErrEmptySearch rejects an empty old_string.
var ErrEmptySearch = errors.New("search string (old_string) cannot be empty")

// CountMismatchError reports an exact-match count different from the
// caller's expectation.
type CountMismatchError struct {
	Expected int
	Actual   int
}

func (e *CountMismatchError) Error() string {
	return fmt.Sprintf(
		"expected %d occurrences but found %d; verify old_string for uniqueness or set expected_replacements to %d to replace all",
		e.Expected, e.Actual, e.Actual)
}

// FuzzyMatchError carries the diagnostic near-match. The file is untouched.
type FuzzyMatchError struct {
	Similarity float64
	Diff       string
}

func (e *FuzzyMatchError) Error() string {
	if e.Similarity >= FuzzyThreshold {
		return fmt.Sprintf("Found a similar text with %.2f%% similarity: %s", e.Similarity*100, e.Diff)
	}
	return fmt.Sprintf(
		"Search string not found. Closest fuzzy match had %.2f%% similarity (below threshold of %.0f%%). Diff: %s",
		e.Similarity*100, FuzzyThreshold*100, e.Diff)
}

// BlockParams are the arguments of one edit_block call.
type BlockParams struct {
	FilePath             string
	OldString            string
	NewString            string
	ExpectedReplacements int // 0 means replace all occurrences
}

// BlockResult reports a successful edit.
type BlockResult struct {
	FilePath         string `json:"file_path"`
	ReplacementsMade int    `json:"replacements_made"`
	Message          string `json:"message"`
}

const lockTimeout = 10 * time.Second

// Engine applies surgical edits under the path guard.
type Engine struct {
	guard    *pathguard.Guard
	fuzzyLog *FuzzyLogger
	locks    *pathLocks
	logger   zerolog.Logger
}

// NewEngine wires the engine to its guard and fuzzy log.
func NewEngine(guard *pathguard.Guard, fuzzyLog *FuzzyLogger, logger zerolog.Logger) *Engine {
	return &Engine{
		guard:    guard,
		fuzzyLog: fuzzyLog,
		locks:    newPathLocks(),
		logger:   logger.With().Str("component", "edit").Logger(),
	}
}

// EditBlock performs the replacement. On any returned error the file is
// byte-identical to its prior state.
func (e *Engine) EditBlock(ctx context.Context, params BlockParams) (*BlockResult, error) {
	if params.OldString == "" {
		return nil, ErrEmptySearch
	}
	if params.ExpectedReplacements < 0 {
		return nil, fmt.Errorf("expected_replacements must be >= 0")
	}

	path, err := e.guard.Resolve(params.FilePath, true)
	if err != nil {
		return nil, err
	}

	release, err := e.locks.acquire(path, lockTimeout)
	if err != nil {
		return nil, err
	}
	defer release()

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(raw) {
		return nil, fmt.Errorf("file is not valid UTF-8 text: %s", params.FilePath)
	}
	content := string(raw)

	eol := DetectEOL(content)
	oldStr := NormalizeEOL(params.OldString, eol)
	newStr := NormalizeEOL(params.NewString, eol)

	count := strings.Count(content, oldStr)

	switch {
	case params.ExpectedReplacements == 0 && count > 0:
		// Replace-all semantics.
	case params.ExpectedReplacements > 0 && count == params.ExpectedReplacements:
		// Exact expectation met.
	case count > 0:
		return nil, &CountMismatchError{Expected: params.ExpectedReplacements, Actual: count}
	default:
		return nil, e.fuzzyFallback(ctx, params, path, content, oldStr)
	}

	updated := strings.ReplaceAll(content, oldStr, newStr)
	if err := writeAtomic(path, []byte(updated)); err != nil {
		return nil, err
	}

	e.logger.Debug().Str("path", path).Int("replacements", count).Msg("applied edit")
	return &BlockResult{
		FilePath:         params.FilePath,
		ReplacementsMade: count,
		Message:          fmt.Sprintf("Successfully applied %d exact replacement(s).", count),
	}, nil
}

// fuzzyFallback locates the closest window, logs the attempt, and returns
// the diagnostic error. It never writes.
func (e *Engine) fuzzyFallback(ctx context.Context, params BlockParams, path, content, oldStr string) error {
	start := time.Now()
	match := bestFuzzyMatch(ctx, content, oldStr)
	elapsed := time.Since(start)

	diff := highlightDiff(oldStr, match.Window)
	ferr := &FuzzyMatchError{Similarity: match.Similarity, Diff: diff}

	if e.fuzzyLog != nil {
		entry := FuzzyLogEntry{
			Timestamp:            time.Now(),
			SearchText:           params.OldString,
			FoundText:            match.Window,
			Similarity:           match.Similarity,
			ExecutionTime:        elapsed,
			ExactMatchCount:      0,
			ExpectedReplacements: params.ExpectedReplacements,
			BelowThreshold:       match.Similarity < FuzzyThreshold,
			Diff:                 diff,
			FileExtension:        strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")),
		}
		if err := e.fuzzyLog.Log(entry); err != nil {
			e.logger.Warn().Err(err).Msg("failed to write fuzzy search log")
		}
	}
	return ferr
}

// writeAtomic replaces path via a temp file in the same directory so readers
// never observe a partial edit. The original mode is preserved.
func writeAtomic(path string, data []byte) error {
	fi, err := os.Stat(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(fi.Mode().Perm()); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
