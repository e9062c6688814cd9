package proc

import (
	"context"
	"os"
	"os/exec"
	"runtime"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListIncludesSelf(t *testing.T) {
	s := NewService(zerolog.Nop())
	infos, err := s.List(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, infos)

	self := int32(os.Getpid())
	found := false
	for _, info := range infos {
		if info.PID == self {
			found = true
			assert.NotEmpty(t, info.Name)
			break
		}
	}
	assert.True(t, found, "own pid missing from process list")
}

func TestListTwiceReusesSnapshots(t *testing.T) {
	s := NewService(zerolog.Nop())
	_, err := s.List(context.Background())
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	infos, err := s.List(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, infos)
}

func TestKillProcess(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("test spawns sleep")
	}
	cmd := exec.Command("sleep", "60")
	require.NoError(t, cmd.Start())
	pid := int32(cmd.Process.Pid)

	s := NewService(zerolog.Nop())
	res, err := s.Kill(context.Background(), pid)
	require.NoError(t, err)
	assert.True(t, res.Success)

	_ = cmd.Wait()
}

func TestKillProcessNotFound(t *testing.T) {
	s := NewService(zerolog.Nop())
	// Pids near the max are effectively never live on test machines.
	_, err := s.Kill(context.Background(), 1<<30)
	assert.ErrorIs(t, err, ErrNotFound)
}
