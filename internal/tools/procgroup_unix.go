//go:build !windows

package tools

import (
	"os/exec"
	"syscall"
	"time"
)

// setProcGroup runs cmd in its own process group and wires Cancel to kill
// the whole group, so a timed-out command cannot leave grandchildren
// (sleep, curl, background jobs) running. The WaitDelay lets pipes drain
// briefly after the kill.
func setProcGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}

	cmd.WaitDelay = 3 * time.Second
}
