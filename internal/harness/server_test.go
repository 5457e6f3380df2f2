package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forgetest/internal/mockerr"
	"forgetest/internal/stub"
	"forgetest/internal/verify"
)

// fakeBackend plays the mock server's HTTP surface: health, admin mocks,
// and verification endpoints.
type fakeBackend struct {
	server *httptest.Server

	mu    sync.Mutex
	mocks []map[string]interface{}
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	b := &fakeBackend{}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/__mockforge/api/mocks", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		switch r.Method {
		case http.MethodPost:
			var m map[string]interface{}
			if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			b.mocks = append(b.mocks, m)
			w.WriteHeader(http.StatusCreated)
		case http.MethodGet:
			json.NewEncoder(w).Encode(b.mocks)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/__mockforge/api/mocks/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		id := strings.TrimPrefix(r.URL.Path, "/__mockforge/api/mocks/")
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, m := range b.mocks {
			if m["id"] == id {
				b.mocks = append(b.mocks[:i], b.mocks[i+1:]...)
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		http.Error(w, "not found", http.StatusNotFound)
	})
	mux.HandleFunc("/api/verification/verify", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(verify.Result{
			Matched:  true,
			Count:    2,
			Expected: verify.Exactly(2),
		})
	})
	mux.HandleFunc("/api/verification/count", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]int{"count": 5})
	})

	b.server = httptest.NewServer(mux)
	t.Cleanup(b.server.Close)
	return b
}

func (b *fakeBackend) port(t *testing.T) int {
	t.Helper()
	u, err := url.Parse(b.server.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return port
}

func (b *fakeBackend) mockCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.mocks)
}

// startedServer launches the full facade against the fake backend.
func startedServer(t *testing.T) (*MockServer, *fakeBackend) {
	t.Helper()
	backend := newFakeBackend(t)
	port := backend.port(t)

	bin := writeFakeServer(t, fmt.Sprintf(`
echo "HTTP server listening on http://127.0.0.1:%d"
echo "Admin UI available at http://127.0.0.1:%d"
sleep 60
`, port, port))

	srv := New(Config{Binary: bin, StartupTimeout: 10 * time.Second})
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() { srv.Stop() }) //nolint:errcheck
	return srv, backend
}

func TestServerStartDiscoversPortsAndBecomesHealthy(t *testing.T) {
	srv, backend := startedServer(t)
	port := backend.port(t)

	assert.Equal(t, StateRunning, srv.State())
	assert.True(t, srv.IsRunning())
	assert.Equal(t, port, srv.Port())
	assert.Equal(t, port, srv.AdminPort())
	assert.Equal(t, fmt.Sprintf("http://127.0.0.1:%d", port), srv.URL())
	assert.Equal(t, fmt.Sprintf("http://127.0.0.1:%d", port), srv.AdminURL())

	stdout, _ := srv.Logs()
	assert.Contains(t, stdout, "HTTP server listening")
}

func TestServerStopIsIdempotent(t *testing.T) {
	srv, _ := startedServer(t)

	require.NoError(t, srv.Stop())
	assert.Equal(t, StateStopped, srv.State())
	assert.False(t, srv.IsRunning())

	require.NoError(t, srv.Stop())
	require.NoError(t, srv.Stop())
}

func TestServerStopWithoutStart(t *testing.T) {
	srv := New(Config{})
	require.NoError(t, srv.Stop())
	assert.Equal(t, StateStopped, srv.State())
}

func TestServerRestartDiscoversNewPorts(t *testing.T) {
	first := newFakeBackend(t)
	second := newFakeBackend(t)

	// The script announces whatever port the file holds, so each run can
	// point at a different backend.
	portFile := filepath.Join(t.TempDir(), "port")
	require.NoError(t, os.WriteFile(portFile, []byte(strconv.Itoa(first.port(t))), 0o644))
	bin := writeFakeServer(t, fmt.Sprintf(`
p=$(cat %s)
echo "HTTP server listening on http://127.0.0.1:$p"
echo "Admin UI available at http://127.0.0.1:$p"
sleep 60
`, portFile))

	srv := New(Config{Binary: bin, StartupTimeout: 10 * time.Second})
	require.NoError(t, srv.Start(context.Background()))
	assert.Equal(t, first.port(t), srv.Port())
	require.NoError(t, srv.Stop())

	require.NoError(t, os.WriteFile(portFile, []byte(strconv.Itoa(second.port(t))), 0o644))
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() { srv.Stop() }) //nolint:errcheck

	assert.Equal(t, second.port(t), srv.Port())
	assert.Equal(t, second.port(t), srv.AdminPort())
	assert.Equal(t, fmt.Sprintf("http://127.0.0.1:%d", second.port(t)), srv.URL())

	// Clients resolve the new admin port too.
	srv.AddStub(context.Background(), stub.ResponseStub{Method: "GET", Path: "/after-restart"})
	assert.Eventually(t, func() bool { return second.mockCount() == 1 }, 2*time.Second, 20*time.Millisecond)
	assert.Equal(t, 0, first.mockCount())
}

func TestServerStopAfterSpawnFailureEndsStopped(t *testing.T) {
	srv := New(Config{Binary: "definitely-not-a-real-binary-4c8a1"})

	require.Error(t, srv.Start(context.Background()))
	assert.Equal(t, StateFailed, srv.State())

	require.NoError(t, srv.Stop())
	assert.Equal(t, StateStopped, srv.State())
}

func TestServerDoubleStartRejected(t *testing.T) {
	srv, _ := startedServer(t)

	err := srv.Start(context.Background())
	require.Error(t, err)
	assert.True(t, mockerr.HasCode(err, mockerr.CodeInvalidConfig))
}

func TestServerStubsSyncToAdminInterface(t *testing.T) {
	srv, backend := startedServer(t)
	ctx := context.Background()

	st, err := stub.NewBuilder("GET", "/api/users").
		Name("list users").
		JSON(map[string]string{"status": "ok"}).
		Build()
	require.NoError(t, err)

	registered := srv.AddStub(ctx, st)
	assert.NotEmpty(t, registered.ID)
	assert.Eventually(t, func() bool { return backend.mockCount() == 1 }, 2*time.Second, 20*time.Millisecond)

	got, err := srv.GetStub(registered.ID)
	require.NoError(t, err)
	assert.Equal(t, "/api/users", got.Path)
	assert.Len(t, srv.Stubs(), 1)

	require.NoError(t, srv.RemoveStub(ctx, registered.ID))
	assert.Len(t, srv.Stubs(), 0)
	assert.Eventually(t, func() bool { return backend.mockCount() == 0 }, 2*time.Second, 20*time.Millisecond)
}

func TestServerClearStubs(t *testing.T) {
	srv, backend := startedServer(t)
	ctx := context.Background()

	srv.AddStub(ctx, stub.ResponseStub{Method: "GET", Path: "/a"})
	srv.AddStub(ctx, stub.ResponseStub{Method: "GET", Path: "/b"})
	assert.Eventually(t, func() bool { return backend.mockCount() == 2 }, 2*time.Second, 20*time.Millisecond)

	srv.ClearStubs(ctx)
	assert.Len(t, srv.Stubs(), 0)
	assert.Equal(t, 0, backend.mockCount())
}

func TestServerVerificationPassthrough(t *testing.T) {
	srv, _ := startedServer(t)
	ctx := context.Background()

	result := srv.Verify(ctx, verify.Pattern{Method: "GET", Path: "/api/users"}, verify.Exactly(2))
	assert.True(t, result.Matched)
	assert.Equal(t, 2, result.Count)

	assert.Equal(t, 5, srv.CountRequests(ctx, verify.Pattern{Path: "/api/users"}))
}

func TestServerStartFailsWhenNoAnnouncementAppears(t *testing.T) {
	bin := writeFakeServer(t, "sleep 60\n")
	srv := New(Config{Binary: bin, StartupTimeout: 700 * time.Millisecond})

	err := srv.Start(context.Background())
	require.Error(t, err)
	assert.True(t, mockerr.HasCode(err, mockerr.CodePortDetectionFailed))
	assert.Equal(t, StateFailed, srv.State())
}

func TestServerStartFailsWhenProcessExitsEarly(t *testing.T) {
	bin := writeFakeServer(t, `
echo "fatal: bad config" >&2
exit 1
`)
	srv := New(Config{Binary: bin, StartupTimeout: 5 * time.Second})

	err := srv.Start(context.Background())
	require.Error(t, err)
	assert.True(t, mockerr.HasCode(err, mockerr.CodeSpawnFailed))

	var me *mockerr.Error
	require.ErrorAs(t, err, &me)
	assert.Contains(t, me.Details["stderr"], "bad config")
	assert.Contains(t, me.Details["exit"], "exit status 1")
}

func TestServerStartFailsWhenHealthNeverPasses(t *testing.T) {
	// Grab a port with no listener behind it.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	bin := writeFakeServer(t, fmt.Sprintf(`
echo "HTTP server on port %d"
sleep 60
`, port))
	srv := New(Config{Binary: bin, StartupTimeout: time.Second})

	err = srv.Start(context.Background())
	require.Error(t, err)
	assert.True(t, mockerr.HasCode(err, mockerr.CodeHealthCheckTimeout))
	assert.Equal(t, StateFailed, srv.State())
}
