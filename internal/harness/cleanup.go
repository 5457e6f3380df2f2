package harness

import (
	"errors"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"forgetest/pkg/logging"
)

// CleanupStaleServers kills mockforge serve processes left behind by
// crashed or interrupted test runs. Call it once at suite startup before
// launching fresh servers.
//
// Best-effort: lookup and kill failures are logged, never returned, since a
// failed sweep should not block test execution.
func CleanupStaleServers(binary string) {
	if binary == "" {
		binary = DefaultBinary
	}
	currentPID := os.Getpid()

	cmd := exec.Command("pgrep", "-f", binary+" serve")
	output, err := cmd.Output()
	if err != nil {
		// pgrep exits 1 when nothing matched.
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			logging.Debug("Cleanup", "No stale %s processes found", binary)
			return
		}
		logging.Debug("Cleanup", "Could not check for stale processes: %v", err)
		return
	}

	killed := 0
	for _, line := range strings.Split(strings.TrimSpace(string(output)), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		pid, err := strconv.Atoi(line)
		if err != nil || pid == currentPID {
			continue
		}

		process, err := os.FindProcess(pid)
		if err != nil {
			continue
		}
		if err := process.Signal(syscall.SIGTERM); err != nil {
			// Already gone.
			continue
		}
		killed++
	}
	if killed == 0 {
		return
	}

	// Give the processes a moment to exit, then force anything still alive.
	time.Sleep(500 * time.Millisecond)
	output, err = exec.Command("pgrep", "-f", binary+" serve").Output()
	if err != nil {
		logging.Debug("Cleanup", "Terminated %d stale %s process(es)", killed, binary)
		return
	}
	for _, line := range strings.Split(strings.TrimSpace(string(output)), "\n") {
		pid, err := strconv.Atoi(strings.TrimSpace(line))
		if err != nil || pid == currentPID {
			continue
		}
		if process, err := os.FindProcess(pid); err == nil {
			process.Signal(syscall.SIGKILL) //nolint:errcheck
		}
	}
	logging.Debug("Cleanup", "Terminated %d stale %s process(es)", killed, binary)
}
