package harness

import (
	"bufio"
	"io"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"forgetest/pkg/logging"
)

// Announcement patterns scanned against the cumulative stdout buffer.
// mockforge prints either a full URL or a bare "on port N" phrase depending
// on the transport, so each pattern accepts both forms.
var (
	httpAnnouncement  = regexp.MustCompile(`HTTP server.*?(?:https?://[^\s:/]+:(\d+)|on port (\d+))`)
	adminAnnouncement = regexp.MustCompile(`Admin UI.*?(?:https?://[^\s:/]+:(\d+)|on port (\d+))`)
)

// OutputWatcher drains the server's stdout and stderr with two independent
// reader goroutines. Stdout is scanned line by line for port announcements,
// which are published through the shared PortState exactly once per field.
// Stderr is retained only for inclusion in error diagnostics.
//
// The readers run until their stream closes, which happens when the process
// exits; Watch never blocks the caller.
type OutputWatcher struct {
	ports *PortState

	mu     sync.RWMutex
	stdout strings.Builder
	stderr strings.Builder

	group errgroup.Group
}

func newOutputWatcher(ports *PortState) *OutputWatcher {
	return &OutputWatcher{ports: ports}
}

// Watch starts both reader loops. Stream ownership passes to the watcher;
// the caller must not read from stdout or stderr afterwards.
func (w *OutputWatcher) Watch(stdout, stderr io.Reader) {
	w.group.Go(func() error {
		return w.readStdout(stdout)
	})
	w.group.Go(func() error {
		return w.readStderr(stderr)
	})
}

// Wait blocks until both streams have closed. Intended for shutdown paths;
// readiness waiting goes through the port state instead.
func (w *OutputWatcher) Wait() error {
	return w.group.Wait()
}

func (w *OutputWatcher) readStdout(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()

		w.mu.Lock()
		w.stdout.WriteString(line)
		w.stdout.WriteString("\n")
		buffered := w.stdout.String()
		w.mu.Unlock()

		w.scanForPorts(buffered)
	}
	return scanner.Err()
}

func (w *OutputWatcher) readStderr(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		w.mu.Lock()
		w.stderr.WriteString(scanner.Text())
		w.stderr.WriteString("\n")
		w.mu.Unlock()
	}
	return scanner.Err()
}

// scanForPorts rescans the cumulative stdout buffer for announcements that
// have not been seen yet. First match per field wins; the buffer scan makes
// detection robust against announcements interleaved with other output.
func (w *OutputWatcher) scanForPorts(buffered string) {
	if w.ports.HTTP() == 0 {
		if port, ok := extractPort(httpAnnouncement, buffered); ok {
			if w.ports.SetHTTP(port) {
				logging.Debug("Watcher", "Discovered HTTP port %d from server output", port)
			}
		}
	}
	if w.ports.Admin() == 0 {
		if port, ok := extractPort(adminAnnouncement, buffered); ok {
			if w.ports.SetAdmin(port) {
				logging.Debug("Watcher", "Discovered admin port %d from server output", port)
			}
		}
	}
}

// extractPort returns the port captured by whichever alternation of the
// pattern matched.
func extractPort(re *regexp.Regexp, text string) (int, bool) {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	for _, group := range m[1:] {
		if group == "" {
			continue
		}
		port, err := strconv.Atoi(group)
		if err != nil {
			continue
		}
		return port, true
	}
	return 0, false
}

// Stdout returns everything read from the process's stdout so far.
func (w *OutputWatcher) Stdout() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stdout.String()
}

// Stderr returns everything read from the process's stderr so far.
func (w *OutputWatcher) Stderr() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stderr.String()
}

// stderrTail returns the last n lines of stderr for error details.
func (w *OutputWatcher) stderrTail(n int) string {
	lines := strings.Split(strings.TrimRight(w.Stderr(), "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
