package memory

import (
	"sync"
	"time"

	"github.com/Dembrane/echo-sub002/pkg/turn/mode"
	"github.com/Dembrane/echo-sub002/pkg/turn/progress"
	"github.com/Dembrane/echo-sub002/pkg/turn/reconcile"
	"github.com/Dembrane/echo-sub002/pkg/turn/stream"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// RuntimeState holds everything about a chat session that lives only for
// the lifetime of the process: the stream FSM, the in-flight view of the
// transcript, the mode machine, and the synthetic progress indicator.
// None of it is ever written to the database.
type RuntimeState struct {
	Stream     *stream.State
	Reconciler *reconcile.Reconciler
	Mode       *mode.Machine
	Progress   *progress.Simulator
}

type RuntimeStateRepository struct {
	mu    sync.Mutex
	cache *cache.Cache
}

func NewRuntimeStateRepository() *RuntimeStateRepository {
	// Sessions idle for 12 hours get evicted; a later request simply
	// rebuilds the state from the persisted session row.
	c := cache.New(12*time.Hour, 30*time.Minute)
	return &RuntimeStateRepository{
		cache: c,
	}
}

// GetOrCreate returns the session's runtime state, building it on first
// access. Safe under concurrent requests for the same session.
func (r *RuntimeStateRepository) GetOrCreate(sessionID uuid.UUID, current mode.Mode) *RuntimeState {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := sessionID.String()
	if x, found := r.cache.Get(key); found {
		state := x.(*RuntimeState)
		r.cache.Set(key, state, cache.DefaultExpiration)
		return state
	}

	state := &RuntimeState{
		Stream:     stream.NewState(),
		Reconciler: reconcile.New(reconcile.DefaultMatchWindow),
		Mode:       mode.NewMachine(current),
		Progress:   progress.New(progress.DefaultInterval, progress.DefaultStep, progress.DefaultCeiling),
	}
	r.cache.Set(key, state, cache.DefaultExpiration)
	return state
}

func (r *RuntimeStateRepository) Get(sessionID uuid.UUID) (*RuntimeState, bool) {
	if x, found := r.cache.Get(sessionID.String()); found {
		return x.(*RuntimeState), true
	}
	return nil, false
}

func (r *RuntimeStateRepository) Delete(sessionID uuid.UUID) {
	r.cache.Delete(sessionID.String())
}
