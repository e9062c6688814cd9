package edit

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/babybirdprd/mcp-rg-editor/pkg/config"
	"github.com/babybirdprd/mcp-rg-editor/pkg/pathguard"
)

func testEngine(t *testing.T) (*Engine, string) {
	t.Helper()
	root, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	store := config.NewStore(&config.Config{
		FilesRoot:          root,
		AllowedDirectories: []string{root},
	})
	guard := pathguard.New(store)
	fuzzyLog := NewFuzzyLogger(filepath.Join(root, ".logs", "fuzzy-search.log"))
	return NewEngine(guard, fuzzyLog, zerolog.Nop()), root
}

func writeFixture(t *testing.T, root, name, content string) string {
	t.Helper()
	path := filepath.Join(root, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestEditBlockSingleReplacement(t *testing.T) {
	engine, root := testEngine(t)
	path := writeFixture(t, root, "test_edit.txt", "Initial content for edit.")

	res, err := engine.EditBlock(context.Background(), BlockParams{
		FilePath:             "test_edit.txt",
		OldString:            "Initial content for edit.",
		NewString:            "Edited exact content.",
		ExpectedReplacements: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.ReplacementsMade)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Edited exact content.", string(data))
}

func TestEditBlockReplaceAll(t *testing.T) {
	engine, root := testEngine(t)
	path := writeFixture(t, root, "multi.txt", "foo bar foo baz foo")

	res, err := engine.EditBlock(context.Background(), BlockParams{
		FilePath:             "multi.txt",
		OldString:            "foo",
		NewString:            "qux",
		ExpectedReplacements: 0,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.ReplacementsMade)

	data, _ := os.ReadFile(path)
	assert.Equal(t, "qux bar qux baz qux", string(data))
}

func TestEditBlockCountMismatchLeavesFileUntouched(t *testing.T) {
	engine, root := testEngine(t)
	original := "dup dup dup"
	path := writeFixture(t, root, "dup.txt", original)

	_, err := engine.EditBlock(context.Background(), BlockParams{
		FilePath:             "dup.txt",
		OldString:            "dup",
		NewString:            "x",
		ExpectedReplacements: 2,
	})
	var mismatch *CountMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, 2, mismatch.Expected)
	assert.Equal(t, 3, mismatch.Actual)

	data, _ := os.ReadFile(path)
	assert.Equal(t, original, string(data))
}

func TestEditBlockFuzzyFallback(t *testing.T) {
	engine, root := testEngine(t)
	original := "Edited exact content."
	path := writeFixture(t, root, "test_edit.txt", original)

	_, err := engine.EditBlock(context.Background(), BlockParams{
		FilePath:             "test_edit.txt",
		OldString:            "Edited exact content that is slightly different",
		NewString:            "X",
		ExpectedReplacements: 1,
	})
	require.Error(t, err)

	var fuzzy *FuzzyMatchError
	require.ErrorAs(t, err, &fuzzy)
	assert.GreaterOrEqual(t, fuzzy.Similarity, FuzzyThreshold)
	assert.Contains(t, err.Error(), "Found a similar text with")

	// Diagnostic only: the file is byte-identical.
	data, _ := os.ReadFile(path)
	assert.Equal(t, original, string(data))
}

func TestEditBlockFuzzyWritesLog(t *testing.T) {
	engine, root := testEngine(t)
	writeFixture(t, root, "f.txt", "the quick brown fox")

	_, err := engine.EditBlock(context.Background(), BlockParams{
		FilePath:             "f.txt",
		OldString:            "the quick brwon fox",
		NewString:            "x",
		ExpectedReplacements: 1,
	})
	require.Error(t, err)

	raw, err := os.ReadFile(filepath.Join(root, ".logs", "fuzzy-search.log"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "timestamp\tsearchText"))
	assert.Contains(t, lines[1], "the quick brwon fox")
}

func TestEditBlockZeroExpectedZeroFoundFallsToFuzzy(t *testing.T) {
	engine, root := testEngine(t)
	writeFixture(t, root, "z.txt", "alpha beta gamma")

	_, err := engine.EditBlock(context.Background(), BlockParams{
		FilePath:             "z.txt",
		OldString:            "delta epsilon",
		NewString:            "x",
		ExpectedReplacements: 0,
	})
	var fuzzy *FuzzyMatchError
	require.ErrorAs(t, err, &fuzzy)
}

func TestEditBlockPreservesCRLF(t *testing.T) {
	engine, root := testEngine(t)
	path := writeFixture(t, root, "crlf.txt", "one\r\ntwo\r\nthree\r\n")

	_, err := engine.EditBlock(context.Background(), BlockParams{
		FilePath:             "crlf.txt",
		OldString:            "two\nthree",
		NewString:            "TWO\nTHREE",
		ExpectedReplacements: 1,
	})
	require.NoError(t, err)

	data, _ := os.ReadFile(path)
	assert.Equal(t, "one\r\nTWO\r\nTHREE\r\n", string(data))
}

func TestEditBlockEmptyOldString(t *testing.T) {
	engine, root := testEngine(t)
	writeFixture(t, root, "e.txt", "content")

	_, err := engine.EditBlock(context.Background(), BlockParams{
		FilePath:  "e.txt",
		OldString: "",
		NewString: "x",
	})
	assert.ErrorIs(t, err, ErrEmptySearch)
}

func TestEditBlockOutsideJail(t *testing.T) {
	engine, _ := testEngine(t)
	_, err := engine.EditBlock(context.Background(), BlockParams{
		FilePath:             "/etc/hosts",
		OldString:            "localhost",
		NewString:            "x",
		ExpectedReplacements: 1,
	})
	assert.ErrorIs(t, err, pathguard.ErrOutsideJail)
}

func TestDetectEOL(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    EOLStyle
	}{
		{"lf", "a\nb\n", EOLLF},
		{"crlf", "a\r\nb\r\n", EOLCRLF},
		{"mixed crlf first", "a\r\nb\n", EOLCRLF},
		{"no endings", "abc", EOLUnknown},
		{"empty", "", EOLUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectEOL(tt.content))
		})
	}
}

func TestNormalizeEOL(t *testing.T) {
	assert.Equal(t, "a\r\nb", NormalizeEOL("a\nb", EOLCRLF))
	assert.Equal(t, "a\nb", NormalizeEOL("a\r\nb", EOLLF))
	assert.Equal(t, "a\nb", NormalizeEOL("a\rb", EOLLF))
}

func TestHighlightDiff(t *testing.T) {
	got := highlightDiff("hello cruel world", "hello kind world")
	assert.Equal(t, "hello {-cruel-}{+kind+} world", got)

	// Identical strings produce no brackets.
	assert.Equal(t, "same", highlightDiff("same", "same"))
}

func TestBestFuzzyMatchFindsTypo(t *testing.T) {
	m := bestFuzzyMatch(context.Background(), "the quick brown fox jumps", "quick brwon fox")
	assert.Greater(t, m.Similarity, 0.8)
	assert.Contains(t, m.Window, "quick")
}
