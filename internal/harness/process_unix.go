//go:build !windows

package harness

import (
	"fmt"
	"os/exec"
	"syscall"
)

// configureProcAttr puts the server in its own process group so that a
// later kill reaches the server and anything it forked.
func configureProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}

// killProcessGroup signals the whole process group. Negative PID addresses
// the group; if that fails the individual process is signalled instead.
func killProcessGroup(pid int, sig syscall.Signal) error {
	if err := syscall.Kill(-pid, sig); err != nil {
		if err2 := syscall.Kill(pid, sig); err2 != nil {
			return fmt.Errorf("failed to signal process group -%d: %v, also failed to signal process %d: %v", pid, err, pid, err2)
		}
	}
	return nil
}
