package fsops

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/babybirdprd/mcp-rg-editor/pkg/config"
	"github.com/babybirdprd/mcp-rg-editor/pkg/pathguard"
)

func testManager(t *testing.T) (*Manager, string) {
	t.Helper()
	root, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	store := config.NewStore(&config.Config{
		FilesRoot:          root,
		AllowedDirectories: []string{root},
		FileReadLineLimit:  1000,
		FileWriteLineLimit: 50,
	})
	guard := pathguard.New(store)
	return NewManager(store, guard, zerolog.Nop()), root
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	m, _ := testManager(t)

	_, err := m.WriteFile("test_read.txt", "Hello from test_read.txt\n", ModeRewrite)
	require.NoError(t, err)

	content, err := m.ReadFile(ReadFileArgs{Path: "test_read.txt"})
	require.NoError(t, err)
	assert.Contains(t, content.Text, "Hello from test_read.txt")
	assert.Equal(t, 1, content.TotalLines)
	assert.False(t, content.Truncated)
}

func TestReadFileSlicing(t *testing.T) {
	m, _ := testManager(t)
	var sb strings.Builder
	for i := 1; i <= 10; i++ {
		sb.WriteString(strings.Repeat("line", 1))
		sb.WriteString("\n")
	}
	_, err := m.WriteFile("ten.txt", sb.String(), ModeRewrite)
	require.NoError(t, err)

	content, err := m.ReadFile(ReadFileArgs{Path: "ten.txt", OffsetLines: 2, LengthLines: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, content.LinesRead)
	assert.Equal(t, 10, content.TotalLines)
	assert.True(t, content.Truncated)
}

func TestReadEmptyFile(t *testing.T) {
	m, root := testManager(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "empty.txt"), nil, 0o644))

	content, err := m.ReadFile(ReadFileArgs{Path: "empty.txt"})
	require.NoError(t, err)
	assert.Empty(t, content.Text)
	assert.Zero(t, content.TotalLines)
}

func TestWriteLineLimitBoundary(t *testing.T) {
	m, _ := testManager(t)

	atLimit := strings.Repeat("x\n", 50)
	_, err := m.WriteFile("ok.txt", atLimit, ModeRewrite)
	assert.NoError(t, err)

	overLimit := strings.Repeat("x\n", 51)
	_, err = m.WriteFile("over.txt", overLimit, ModeRewrite)
	var tooLong *ContentTooLongError
	require.ErrorAs(t, err, &tooLong)
	assert.Equal(t, 51, tooLong.Received)
	assert.Equal(t, 50, tooLong.Limit)
	assert.Contains(t, err.Error(), "smaller chunks")
}

func TestAppendStartsOnFreshLine(t *testing.T) {
	m, root := testManager(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("no trailing newline"), 0o644))

	_, err := m.WriteFile("a.txt", "appended", ModeAppend)
	require.NoError(t, err)

	data, _ := os.ReadFile(filepath.Join(root, "a.txt"))
	assert.Equal(t, "no trailing newline\nappended", string(data))
}

func TestAppendMatchesExistingCRLF(t *testing.T) {
	m, root := testManager(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "w.txt"), []byte("one\r\n"), 0o644))

	_, err := m.WriteFile("w.txt", "two\nthree", ModeAppend)
	require.NoError(t, err)

	data, _ := os.ReadFile(filepath.Join(root, "w.txt"))
	assert.Equal(t, "one\r\ntwo\r\nthree", string(data))
}

func TestWriteCreatesParentDirectories(t *testing.T) {
	m, root := testManager(t)
	_, err := m.WriteFile("deep/nested/file.txt", "x\n", ModeRewrite)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(root, "deep", "nested", "file.txt"))
}

func TestCreateDirectoryIdempotent(t *testing.T) {
	m, root := testManager(t)

	_, err := m.CreateDirectory("sub/dir")
	require.NoError(t, err)
	_, err = m.CreateDirectory("sub/dir")
	require.NoError(t, err)
	assert.DirExists(t, filepath.Join(root, "sub", "dir"))
}

func TestCreateDirectoryOverFile(t *testing.T) {
	m, root := testManager(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "f"), []byte("x"), 0o644))

	_, err := m.CreateDirectory("f")
	assert.ErrorIs(t, err, pathguard.ErrNotADirectory)
}

func TestListDirectoryFormat(t *testing.T) {
	m, root := testManager(t)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "Bravo"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "alpha.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "charlie.txt"), []byte("x"), 0o644))

	res, err := m.ListDirectory(".")
	require.NoError(t, err)
	assert.Equal(t, []string{"[FILE] alpha.txt", "[DIR] Bravo", "[FILE] charlie.txt"}, res.Entries)
}

func TestListDirectoryAfterCreate(t *testing.T) {
	m, _ := testManager(t)
	_, err := m.CreateDirectory("newdir")
	require.NoError(t, err)

	res, err := m.ListDirectory(".")
	require.NoError(t, err)
	assert.Contains(t, res.Entries, "[DIR] newdir")
}

func TestMoveFile(t *testing.T) {
	m, root := testManager(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "src.txt"), []byte("payload"), 0o644))

	_, err := m.MoveFile("src.txt", "dst/dst.txt")
	require.NoError(t, err)

	assert.NoFileExists(t, filepath.Join(root, "src.txt"))
	data, err := os.ReadFile(filepath.Join(root, "dst", "dst.txt"))
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestSearchFiles(t *testing.T) {
	m, root := testManager(t)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "Report_Final.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "other.txt"), []byte("x"), 0o644))

	res, err := m.SearchFiles(context.Background(), ".", "report", time.Second)
	require.NoError(t, err)
	require.Len(t, res.Matches, 1)
	assert.Equal(t, filepath.Join("sub", "Report_Final.txt"), res.Matches[0])
	assert.False(t, res.TimedOut)
}

func TestGetFileInfo(t *testing.T) {
	m, root := testManager(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "info.txt"), []byte("12345"), 0o644))

	info, err := m.GetFileInfo("info.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(5), info.Size)
	assert.True(t, info.IsFile)
	assert.False(t, info.IsDir)
	assert.NotEmpty(t, info.ModifiedISO)
}

func TestReadMultipleKeepsGoingOnFailure(t *testing.T) {
	m, root := testManager(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "good.txt"), []byte("ok"), 0o644))

	results := m.ReadMultiple([]string{"good.txt", "missing.txt"})
	require.Len(t, results, 2)
	assert.Equal(t, "ok", results[0].Text)
	assert.Empty(t, results[0].Error)
	assert.NotEmpty(t, results[1].Error)
}

func TestReadBinaryFileIsFlagged(t *testing.T) {
	m, root := testManager(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "blob.bin"), []byte{0x00, 0xff, 0xfe, 0x01}, 0o644))

	content, err := m.ReadFile(ReadFileArgs{Path: "blob.bin"})
	require.NoError(t, err)
	assert.True(t, content.IsBinary)
	assert.NotEmpty(t, content.ImageBase64)
	assert.Empty(t, content.Text)
}

func TestReadImageFileReturnsBase64(t *testing.T) {
	m, root := testManager(t)
	// Minimal PNG header is enough for the extension-based path.
	png := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}
	require.NoError(t, os.WriteFile(filepath.Join(root, "pic.png"), png, 0o644))

	content, err := m.ReadFile(ReadFileArgs{Path: "pic.png"})
	require.NoError(t, err)
	assert.Equal(t, "image/png", content.MimeType)
	assert.NotEmpty(t, content.ImageBase64)
}

func TestReadFileFromURL(t *testing.T) {
	m, _ := testManager(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("remote body"))
	}))
	defer srv.Close()

	content, err := m.ReadFile(ReadFileArgs{Path: srv.URL, IsURL: true})
	require.NoError(t, err)
	assert.Equal(t, "remote body", content.Text)
	assert.Equal(t, "text/plain", content.MimeType)
}

func TestReadFileFromURLRejectsOtherSchemes(t *testing.T) {
	m, _ := testManager(t)
	_, err := m.ReadFile(ReadFileArgs{Path: "file:///etc/passwd", IsURL: true})
	assert.Error(t, err)
}

func TestReadOutsideJail(t *testing.T) {
	m, _ := testManager(t)
	_, err := m.ReadFile(ReadFileArgs{Path: "/etc/hostname"})
	assert.ErrorIs(t, err, pathguard.ErrOutsideJail)
}
