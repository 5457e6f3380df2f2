package stub

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"forgetest/internal/mockerr"
	"forgetest/pkg/logging"
)

// Registry is the authoritative list of stubs for one server instance.
// Mutations apply locally first and are then pushed to the admin interface
// on a best-effort basis: mock traffic keeps flowing against previously
// synced stubs even when an individual admin call fails.
type Registry struct {
	admin *AdminClient

	mu    sync.Mutex
	stubs []ResponseStub
}

// NewRegistry creates a registry syncing through the given admin client.
func NewRegistry(admin *AdminClient) *Registry {
	return &Registry{admin: admin}
}

// Add records the stub locally and pushes it to the admin interface. A
// missing ID is filled with a fresh UUID. The returned stub carries the
// final ID; sync failures are logged and do not fail the call.
func (r *Registry) Add(ctx context.Context, s ResponseStub) ResponseStub {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}

	r.mu.Lock()
	r.stubs = append(r.stubs, s)
	r.mu.Unlock()

	if err := r.admin.Create(ctx, s); err != nil {
		logging.Warn("StubRegistry", "Failed to sync stub %q to admin interface: %v", s.ID, err)
	}
	return s
}

// Get returns the stub with the given id.
func (r *Registry) Get(id string) (ResponseStub, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.stubs {
		if s.ID == id {
			return s, nil
		}
	}
	return ResponseStub{}, mockerr.StubNotFound(id)
}

// All returns a snapshot of the registered stubs in registration order.
func (r *Registry) All() []ResponseStub {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ResponseStub, len(r.stubs))
	copy(out, r.stubs)
	return out
}

// Len returns the number of registered stubs.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stubs)
}

// Remove deletes the stub with the given id, locally and from the admin
// interface. Only a missing local stub is an error.
func (r *Registry) Remove(ctx context.Context, id string) error {
	r.mu.Lock()
	idx := -1
	for i, s := range r.stubs {
		if s.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		r.mu.Unlock()
		return mockerr.StubNotFound(id)
	}
	r.stubs = append(r.stubs[:idx], r.stubs[idx+1:]...)
	r.mu.Unlock()

	if err := r.admin.Delete(ctx, id); err != nil && !mockerr.HasCode(err, mockerr.CodeStubNotFound) {
		logging.Warn("StubRegistry", "Failed to delete stub %q from admin interface: %v", id, err)
	}
	return nil
}

// Clear drops all local stubs and removes every stub the admin interface
// reports, including stubs registered outside this registry. Remote
// failures are logged per stub and never fail the call.
func (r *Registry) Clear(ctx context.Context) {
	r.mu.Lock()
	r.stubs = nil
	r.mu.Unlock()

	remote, err := r.admin.List(ctx)
	if err != nil {
		logging.Warn("StubRegistry", "Failed to list stubs for cleanup: %v", err)
		return
	}
	for _, s := range remote {
		if err := r.admin.Delete(ctx, s.ID); err != nil {
			logging.Warn("StubRegistry", "Failed to delete stub %q during cleanup: %v", s.ID, err)
		}
	}
}
