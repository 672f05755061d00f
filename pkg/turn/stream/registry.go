package stream

import (
	"sync"

	"github.com/google/uuid"
)

// Registry enforces the subsystem's central invariant: at most one open
// stream per session. Sessions are fully independent; there is no
// cross-session locking.
type Registry struct {
	mu     sync.Mutex
	active map[uuid.UUID]*Controller
}

func NewRegistry() *Registry {
	return &Registry{active: make(map[uuid.UUID]*Controller)}
}

// Swap installs ctrl as the session's active stream. Any previous stream is
// abandoned first, so its transport is cancelled before the new turn is
// issued; its late deltas are stranded by the sequence bump that follows.
func (r *Registry) Swap(sessionID uuid.UUID, ctrl *Controller) {
	r.mu.Lock()
	prev := r.active[sessionID]
	r.active[sessionID] = ctrl
	r.mu.Unlock()

	if prev != nil {
		prev.Abandon()
	}
}

// Release removes ctrl if it is still the session's active stream. A pump
// that was superseded must not evict its successor.
func (r *Registry) Release(sessionID uuid.UUID, ctrl *Controller) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active[sessionID] == ctrl {
		delete(r.active, sessionID)
	}
}

// Get returns the session's active stream, if any.
func (r *Registry) Get(sessionID uuid.UUID) (*Controller, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ctrl, ok := r.active[sessionID]
	return ctrl, ok
}
