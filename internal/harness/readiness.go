package harness

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"forgetest/internal/mockerr"
	"forgetest/pkg/logging"
)

// probeInterval is the pause between readiness checks, for both port
// discovery and health polling.
const probeInterval = 200 * time.Millisecond

// stderrTailLines bounds how much captured stderr is attached to startup
// failure details.
const stderrTailLines = 20

// waitForReady blocks until the server has announced its HTTP port and the
// /health endpoint answers 200, or the startup timeout expires. Both phases
// share one deadline. An early process exit aborts the wait immediately.
func waitForReady(ctx context.Context, cfg Config, ports *PortState, proc *ServerProcess) error {
	timeoutMs := int64(cfg.StartupTimeout / time.Millisecond)
	ctx, cancel := context.WithTimeout(ctx, cfg.StartupTimeout)
	defer cancel()

	for ports.HTTP() == 0 {
		if proc.Exited() {
			return earlyExitError(proc, "server process exited before announcing a port")
		}
		select {
		case <-ctx.Done():
			return mockerr.PortDetectionFailed(timeoutMs).
				WithDetail("stdout", proc.Stdout()).
				WithDetail("stderr", proc.watcher.stderrTail(stderrTailLines))
		case <-time.After(probeInterval):
		}
	}

	port := ports.HTTP()
	logging.Debug("Readiness", "Port %d announced, polling health endpoint", port)

	healthURL := fmt.Sprintf("http://%s:%d/health", cfg.Host, port)
	client := &http.Client{Timeout: time.Second}

	check := func() error {
		if proc.Exited() {
			return backoff.Permanent(earlyExitError(proc, "server process exited during health check"))
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("health endpoint returned status %d", resp.StatusCode)
		}
		return nil
	}

	policy := backoff.WithContext(backoff.NewConstantBackOff(probeInterval), ctx)
	if err := backoff.Retry(check, policy); err != nil {
		if mockerr.HasCode(err, mockerr.CodeSpawnFailed) {
			return err
		}
		return mockerr.HealthCheckTimeout(timeoutMs, port).
			WithDetail("stderr", proc.watcher.stderrTail(stderrTailLines))
	}

	logging.Debug("Readiness", "Server healthy on port %d", port)
	return nil
}

// earlyExitError describes a process that died during startup, with its
// exit status and stderr tail attached for diagnostics.
func earlyExitError(proc *ServerProcess, message string) *mockerr.Error {
	e := mockerr.New(mockerr.CodeSpawnFailed, "%s", message).
		WithDetail("stderr", proc.watcher.stderrTail(stderrTailLines))
	if exitErr := proc.ExitErr(); exitErr != nil {
		e = e.WithDetail("exit", exitErr.Error())
	}
	return e
}
