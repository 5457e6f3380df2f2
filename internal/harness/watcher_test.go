package harness

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func watchStrings(t *testing.T, stdout, stderr string) (*OutputWatcher, *PortState) {
	t.Helper()
	ports := &PortState{}
	w := newOutputWatcher(ports)
	w.Watch(strings.NewReader(stdout), strings.NewReader(stderr))
	require.NoError(t, w.Wait())
	return w, ports
}

func TestWatcherParsesURLAnnouncements(t *testing.T) {
	_, ports := watchStrings(t,
		"Starting up\nHTTP server listening on http://127.0.0.1:3000\nAdmin UI available at http://127.0.0.1:9080\n",
		"")

	assert.Equal(t, 3000, ports.HTTP())
	assert.Equal(t, 9080, ports.Admin())
}

func TestWatcherParsesBarePortAnnouncements(t *testing.T) {
	_, ports := watchStrings(t,
		"HTTP server on port 3001\nAdmin UI on port 9081\n",
		"")

	assert.Equal(t, 3001, ports.HTTP())
	assert.Equal(t, 9081, ports.Admin())
}

func TestWatcherIgnoresUnrelatedOutput(t *testing.T) {
	_, ports := watchStrings(t,
		"loading 14 routes\nvalidation mode: enforce\n",
		"")

	assert.Equal(t, 0, ports.HTTP())
	assert.Equal(t, 0, ports.Admin())
}

func TestWatcherFirstAnnouncementWins(t *testing.T) {
	_, ports := watchStrings(t,
		"HTTP server on port 3000\nHTTP server on port 4000\n",
		"")

	assert.Equal(t, 3000, ports.HTTP())
}

func TestWatcherDoesNotConfuseStreams(t *testing.T) {
	// Announcements are only honored on stdout.
	_, ports := watchStrings(t,
		"hello\n",
		"HTTP server on port 3000\n")

	assert.Equal(t, 0, ports.HTTP())
}

func TestWatcherAnnouncementsInterleavedWithNoise(t *testing.T) {
	lines := []string{
		"2024-01-01T00:00:00Z INFO loading spec",
		"\U0001F4E1 HTTP server listening on http://0.0.0.0:18342",
		"routes registered: 12",
		"\U0001F39B Admin UI on port 18343",
	}
	_, ports := watchStrings(t, strings.Join(lines, "\n")+"\n", "")

	assert.Equal(t, 18342, ports.HTTP())
	assert.Equal(t, 18343, ports.Admin())
}

func TestWatcherRetainsOutput(t *testing.T) {
	w, _ := watchStrings(t,
		"line one\nline two\n",
		"warning: something\nerror: detail\n")

	assert.Equal(t, "line one\nline two\n", w.Stdout())
	assert.Equal(t, "warning: something\nerror: detail\n", w.Stderr())
}

func TestWatcherStderrTail(t *testing.T) {
	var lines []string
	for i := 0; i < 30; i++ {
		lines = append(lines, "err line")
	}
	w, _ := watchStrings(t, "", strings.Join(lines, "\n")+"\n")

	tail := w.stderrTail(5)
	assert.Equal(t, 5, len(strings.Split(tail, "\n")))
}

func TestWatcherStreamingDiscovery(t *testing.T) {
	stdoutR, stdoutW := io.Pipe()
	stderrR, stderrW := io.Pipe()

	ports := &PortState{}
	w := newOutputWatcher(ports)
	w.Watch(stdoutR, stderrR)

	_, err := io.WriteString(stdoutW, "booting\n")
	require.NoError(t, err)
	assert.Equal(t, 0, ports.HTTP())

	_, err = io.WriteString(stdoutW, "HTTP server listening on http://127.0.0.1:3000\n")
	require.NoError(t, err)

	// The reader goroutine picks the line up asynchronously.
	deadline := time.Now().Add(2 * time.Second)
	for ports.HTTP() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	assert.Equal(t, 3000, ports.HTTP())

	stdoutW.Close()
	stderrW.Close()
	require.NoError(t, w.Wait())
}
