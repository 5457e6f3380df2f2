// Package harness launches and supervises an external mockforge process
// for integration tests: process lifecycle, port discovery from startup
// output, readiness probing, and access to the stub and verification APIs.
package harness

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/google/uuid"

	"forgetest/internal/mockerr"
	"forgetest/internal/stub"
	"forgetest/internal/verify"
	"forgetest/pkg/logging"
)

// State is the lifecycle state of a MockServer.
type State string

const (
	StateNew      State = "new"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopped  State = "stopped"
	StateFailed   State = "failed"
)

// MockServer owns one external mockforge process and the clients bound to
// it. Start and Stop bracket the process lifetime; Stop is the sanctioned
// cleanup path and is safe to call any number of times. A runtime cleanup
// kills the process if the owner drops the server without stopping it, but
// relying on it leaks the process until the next GC cycle.
type MockServer struct {
	id    string
	cfg   Config
	ports *PortState

	stubs    *stub.Registry
	verifier *verify.Client

	mu      sync.Mutex
	state   State
	proc    *ServerProcess
	cleanup runtime.Cleanup
}

// New creates an unstarted server for the given configuration.
func New(cfg Config) *MockServer {
	cfg.applyDefaults()
	s := &MockServer{
		id:    uuid.NewString(),
		cfg:   cfg,
		ports: &PortState{},
		state: StateNew,
	}
	s.stubs = stub.NewRegistry(stub.NewAdminClient(s.adminBase, cfg.RequestTimeout))
	s.verifier = verify.NewClient(s.httpBase, cfg.RequestTimeout)
	return s
}

// portState returns the current run's port pair. Start swaps in a fresh
// pair per launch, so callers must not cache the result.
func (s *MockServer) portState() *PortState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ports
}

func (s *MockServer) httpBase() string {
	port := s.portState().HTTP()
	if port == 0 {
		return ""
	}
	return fmt.Sprintf("http://%s:%d", s.cfg.Host, port)
}

func (s *MockServer) adminBase() string {
	port := s.portState().Admin()
	if port == 0 {
		return ""
	}
	return fmt.Sprintf("http://%s:%d", s.cfg.Host, port)
}

// ID returns the unique identifier of this server instance.
func (s *MockServer) ID() string {
	return s.id
}

// Start validates the configuration, spawns the process, and blocks until
// the server is healthy or the startup timeout expires. A failed start
// tears the process down before returning.
func (s *MockServer) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateNew && s.state != StateStopped && s.state != StateFailed {
		s.mu.Unlock()
		return mockerr.InvalidConfig("server %s already started", s.id)
	}
	if err := s.cfg.Validate(); err != nil {
		s.mu.Unlock()
		return err
	}

	// Ports are write-once per run; a restart must not see the previous
	// run's announcements.
	s.ports = &PortState{}
	ports := s.ports

	proc, err := launch(s.cfg, ports)
	if err != nil {
		s.state = StateFailed
		s.mu.Unlock()
		return err
	}
	s.proc = proc
	s.state = StateStarting
	s.cleanup = runtime.AddCleanup(s, func(p *ServerProcess) {
		logging.Warn("MockServer", "Server dropped without Stop, killing PID %d", p.Pid())
		p.Stop() //nolint:errcheck
	}, proc)
	s.mu.Unlock()

	logging.Info("MockServer", "Starting server %s (PID %d)", s.id, proc.Pid())

	if err := waitForReady(ctx, s.cfg, ports, proc); err != nil {
		s.teardown(StateFailed)
		return err
	}

	s.mu.Lock()
	s.state = StateRunning
	s.mu.Unlock()
	logging.Info("MockServer", "Server %s ready on port %d (admin %d)", s.id, ports.HTTP(), ports.Admin())
	return nil
}

// Stop terminates the process. Safe to call concurrently, repeatedly, and
// on a server that never started.
func (s *MockServer) Stop() error {
	return s.teardown(StateStopped)
}

func (s *MockServer) teardown(final State) error {
	s.mu.Lock()
	proc := s.proc
	if proc == nil {
		// Nothing to kill; a stop always normalizes the state, including
		// after a spawn failure.
		s.state = StateStopped
		s.mu.Unlock()
		return nil
	}
	s.state = final
	s.cleanup.Stop()
	s.mu.Unlock()

	return proc.Stop()
}

// State returns the current lifecycle state.
func (s *MockServer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsRunning reports whether the server was started successfully and its
// process is still alive.
func (s *MockServer) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateRunning && s.proc != nil && !s.proc.Exited()
}

// Port returns the mock traffic port, or 0 before discovery.
func (s *MockServer) Port() int {
	return s.portState().HTTP()
}

// AdminPort returns the admin interface port, or 0 before discovery.
func (s *MockServer) AdminPort() int {
	return s.portState().Admin()
}

// URL returns the base URL for mock traffic, or "" before discovery.
func (s *MockServer) URL() string {
	return s.httpBase()
}

// AdminURL returns the admin interface base URL, or "" before discovery.
func (s *MockServer) AdminURL() string {
	return s.adminBase()
}

// Logs returns everything the process has written to stdout and stderr.
func (s *MockServer) Logs() (stdout, stderr string) {
	s.mu.Lock()
	proc := s.proc
	s.mu.Unlock()
	if proc == nil {
		return "", ""
	}
	return proc.Stdout(), proc.Stderr()
}

// AddStub registers a response stub. The returned stub carries the assigned
// ID. Sync to the admin interface is best-effort.
func (s *MockServer) AddStub(ctx context.Context, st stub.ResponseStub) stub.ResponseStub {
	return s.stubs.Add(ctx, st)
}

// GetStub returns a registered stub by id.
func (s *MockServer) GetStub(id string) (stub.ResponseStub, error) {
	return s.stubs.Get(id)
}

// RemoveStub deletes a registered stub by id.
func (s *MockServer) RemoveStub(ctx context.Context, id string) error {
	return s.stubs.Remove(ctx, id)
}

// Stubs returns a snapshot of the registered stubs.
func (s *MockServer) Stubs() []stub.ResponseStub {
	return s.stubs.All()
}

// ClearStubs removes all stubs, locally and from the admin interface.
func (s *MockServer) ClearStubs(ctx context.Context) {
	s.stubs.Clear(ctx)
}

// Verify checks the request log against a count assertion.
func (s *MockServer) Verify(ctx context.Context, pattern verify.Pattern, expected verify.Count) verify.Result {
	return s.verifier.Verify(ctx, pattern, expected)
}

// VerifyNever checks that no matching request was made.
func (s *MockServer) VerifyNever(ctx context.Context, pattern verify.Pattern) verify.Result {
	return s.verifier.VerifyNever(ctx, pattern)
}

// VerifyAtLeast checks that at least min matching requests were made.
func (s *MockServer) VerifyAtLeast(ctx context.Context, pattern verify.Pattern, min int) verify.Result {
	return s.verifier.VerifyAtLeast(ctx, pattern, min)
}

// VerifySequence checks that matching requests occurred in order.
func (s *MockServer) VerifySequence(ctx context.Context, patterns ...verify.Pattern) verify.Result {
	return s.verifier.VerifySequence(ctx, patterns...)
}

// CountRequests returns how many logged requests match the pattern.
func (s *MockServer) CountRequests(ctx context.Context, pattern verify.Pattern) int {
	return s.verifier.Count(ctx, pattern)
}
