package harness

import "sync/atomic"

// PortState holds the ports discovered from the server's startup output.
// The output watcher is the sole writer; the readiness probe and the API
// clients read concurrently. Each field is written at most once: the first
// discovered value wins and later announcements are ignored. Zero means
// "not yet discovered".
type PortState struct {
	httpPort  atomic.Uint32
	adminPort atomic.Uint32
}

// SetHTTP records the mock traffic port. Returns false if a port was
// already recorded, in which case the new value is discarded.
func (p *PortState) SetHTTP(port int) bool {
	if port <= 0 || port > 65535 {
		return false
	}
	return p.httpPort.CompareAndSwap(0, uint32(port))
}

// SetAdmin records the admin interface port with the same first-writer-wins
// semantics as SetHTTP.
func (p *PortState) SetAdmin(port int) bool {
	if port <= 0 || port > 65535 {
		return false
	}
	return p.adminPort.CompareAndSwap(0, uint32(port))
}

// HTTP returns the discovered mock traffic port, or 0 if not yet known.
func (p *PortState) HTTP() int {
	return int(p.httpPort.Load())
}

// Admin returns the discovered admin interface port, or 0 if not yet known.
func (p *PortState) Admin() int {
	return int(p.adminPort.Load())
}
