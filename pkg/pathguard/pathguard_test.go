package pathguard

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/babybirdprd/mcp-rg-editor/pkg/config"
)

func testGuard(t *testing.T, allowed ...string) (*Guard, string) {
	t.Helper()
	root, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	dirs := append([]string{}, allowed...)
	if len(dirs) == 0 {
		dirs = []string{root}
	}
	store := config.NewStore(&config.Config{
		FilesRoot:          root,
		AllowedDirectories: dirs,
	})
	return New(store), root
}

func TestResolveRelativeJoinsFilesRoot(t *testing.T) {
	guard, root := testGuard(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("x"), 0o644))

	got, err := guard.Resolve("a.txt", true)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "a.txt"), got)
}

func TestResolveMissingWithMustExist(t *testing.T) {
	guard, _ := testGuard(t)
	_, err := guard.Resolve("nope.txt", true)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolveMissingWithoutMustExist(t *testing.T) {
	guard, root := testGuard(t)
	got, err := guard.Resolve("sub/dir/new.txt", false)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "sub", "dir", "new.txt"), got)
}

func TestResolveRejectsEscape(t *testing.T) {
	guard, _ := testGuard(t)
	_, err := guard.Resolve("../../etc/passwd", false)
	assert.ErrorIs(t, err, ErrOutsideJail)
}

func TestResolveRejectsAbsoluteOutsideJail(t *testing.T) {
	guard, _ := testGuard(t)
	_, err := guard.Resolve("/etc", true)
	assert.ErrorIs(t, err, ErrOutsideJail)
}

func TestResolveDotDotInsideJailIsFine(t *testing.T) {
	guard, root := testGuard(t)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "a", "b"), 0o755))

	got, err := guard.Resolve("a/b/../b", true)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "a", "b"), got)
}

func TestPrefixIsSegmentWise(t *testing.T) {
	guard, root := testGuard(t)
	sibling := root + "sibling"
	require.NoError(t, os.MkdirAll(sibling, 0o755))
	t.Cleanup(func() { os.RemoveAll(sibling) })

	// /root-sibling shares a string prefix with /root but is a different tree.
	_, err := guard.Resolve(sibling, true)
	assert.ErrorIs(t, err, ErrOutsideJail)
}

func TestSymlinkEscapeIsCaught(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks require privileges on windows")
	}
	guard, root := testGuard(t)

	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret"), []byte("s"), 0o644))
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "link")))

	_, err := guard.Resolve("link/secret", true)
	assert.ErrorIs(t, err, ErrOutsideJail)
}

func TestRootSentinelDisablesJail(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("posix root sentinel")
	}
	guard, _ := testGuard(t, "/")
	got, err := guard.Resolve("/etc", true)
	require.NoError(t, err)
	assert.Equal(t, "/etc", got)
}

func TestTildeExpansion(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	resolvedHome, err := filepath.EvalSymlinks(home)
	require.NoError(t, err)

	guard, _ := testGuard(t, resolvedHome)
	require.NoError(t, os.WriteFile(filepath.Join(home, "f.txt"), []byte("x"), 0o644))

	got, err := guard.Resolve("~/f.txt", true)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(resolvedHome, "f.txt"), got)
}

func TestResolveDirOnFile(t *testing.T) {
	guard, root := testGuard(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "f.txt"), []byte("x"), 0o644))

	_, err := guard.ResolveDir("f.txt")
	assert.ErrorIs(t, err, ErrNotADirectory)
}

func TestResolveDotIsFilesRoot(t *testing.T) {
	guard, root := testGuard(t)
	got, err := guard.Resolve(".", true)
	require.NoError(t, err)
	assert.Equal(t, root, got)
	assert.True(t, guard.Allowed(got))
}
