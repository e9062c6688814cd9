//go:build !windows

package procgroup

import (
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Isolate places the child in its own process group so that signals sent to
// the group do not leak to the server and kills reach shell grandchildren.
func Isolate(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

// Signal sends sig to the whole group of pid.
func Signal(pid int, sig unix.Signal) error {
	return unix.Kill(-pid, sig)
}

// Terminate asks the group to exit with SIGTERM, then escalates to SIGKILL
// after the grace window. The first error from SIGKILL is returned; a dead
// group (ESRCH) counts as success.
func Terminate(pid int, grace time.Duration) error {
	if err := unix.Kill(-pid, unix.SIGTERM); err != nil {
		if err == unix.ESRCH {
			return nil
		}
		return err
	}
	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if err := unix.Kill(-pid, 0); err == unix.ESRCH {
			return nil
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err := unix.Kill(-pid, unix.SIGKILL); err != nil && err != unix.ESRCH {
		return err
	}
	return nil
}

// Kill sends SIGKILL to the whole group immediately.
func Kill(pid int) error {
	err := unix.Kill(-pid, unix.SIGKILL)
	if err == unix.ESRCH {
		return nil
	}
	return err
}
