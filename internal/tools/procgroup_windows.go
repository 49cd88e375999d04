//go:build windows

package tools

import (
	"os/exec"
	"time"
)

// setProcGroup only sets a drain grace period on Windows. CommandContext
// already kills the direct child on cancellation, and Unix-style process
// groups do not exist there.
func setProcGroup(cmd *exec.Cmd) {
	cmd.WaitDelay = 3 * time.Second
}
