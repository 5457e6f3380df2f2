package harness

import (
	"os/exec"
	"sync"
	"syscall"
	"time"

	"forgetest/internal/mockerr"
	"forgetest/pkg/logging"
)

// gracePeriod is how long Stop waits for the server to exit after SIGTERM
// before escalating to SIGKILL.
const gracePeriod = 5 * time.Second

// ServerProcess wraps a running mockforge process together with the watcher
// draining its output. It is created by launch and owned by the MockServer
// facade; Stop is safe to call concurrently and more than once.
type ServerProcess struct {
	cmd     *exec.Cmd
	watcher *OutputWatcher

	done    chan struct{}
	waitErr error

	mu      sync.Mutex
	stopped bool
}

// launch resolves the binary, starts it with pipes attached, and hands both
// output streams to a watcher that publishes discovered ports into ports.
func launch(cfg Config, ports *PortState) (*ServerProcess, error) {
	path, err := exec.LookPath(cfg.Binary)
	if err != nil {
		return nil, mockerr.CliNotFound(cfg.Binary, err)
	}

	cmd := exec.Command(path, cfg.args()...)
	configureProcAttr(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, mockerr.SpawnFailed(err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, mockerr.SpawnFailed(err)
	}

	if err := cmd.Start(); err != nil {
		return nil, mockerr.SpawnFailed(err)
	}
	logging.Debug("Launcher", "Started %s (PID %d) with args %v", cfg.Binary, cmd.Process.Pid, cfg.args())

	p := &ServerProcess{
		cmd:     cmd,
		watcher: newOutputWatcher(ports),
		done:    make(chan struct{}),
	}
	p.watcher.Watch(stdout, stderr)

	// Reap in the background. The watcher drains both pipes to EOF before
	// Wait runs, so no output is lost to the pipe teardown.
	go func() {
		p.watcher.Wait() //nolint:errcheck
		p.waitErr = cmd.Wait()
		close(p.done)
	}()

	return p, nil
}

// Pid returns the process ID of the launched server.
func (p *ServerProcess) Pid() int {
	return p.cmd.Process.Pid
}

// Exited reports whether the process has terminated for any reason.
func (p *ServerProcess) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// ExitErr returns the process's wait result once it has exited: nil for a
// clean exit, the exec.ExitError otherwise. Returns nil while the process
// is still running.
func (p *ServerProcess) ExitErr() error {
	select {
	case <-p.done:
		return p.waitErr
	default:
		return nil
	}
}

// Stop terminates the process group, first gracefully and then by force if
// the grace period elapses. It is idempotent; only the first call acts.
func (p *ServerProcess) Stop() error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	p.mu.Unlock()

	if p.Exited() {
		return nil
	}

	pid := p.Pid()
	logging.Debug("Launcher", "Stopping process group for PID %d", pid)
	if err := killProcessGroup(pid, syscall.SIGTERM); err != nil {
		logging.Warn("Launcher", "Failed to send SIGTERM to PID %d: %v", pid, err)
	}

	select {
	case <-p.done:
		// Catch children that survived their parent.
		killProcessGroup(pid, syscall.SIGKILL) //nolint:errcheck
		return nil
	case <-time.After(gracePeriod):
		logging.Warn("Launcher", "Graceful shutdown timed out for PID %d, forcing kill", pid)
		if err := killProcessGroup(pid, syscall.SIGKILL); err != nil {
			return err
		}
		<-p.done
		return nil
	}
}

// Stderr exposes everything the server wrote to stderr, for diagnostics.
func (p *ServerProcess) Stderr() string {
	return p.watcher.Stderr()
}

// Stdout exposes everything the server wrote to stdout.
func (p *ServerProcess) Stdout() string {
	return p.watcher.Stdout()
}
