// Package lock is the context lock manager: before each turn it converts
// unlocked context items to locked in one atomic store call, so a user
// cannot mutate the context mid-generation.
package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Dembrane/echo-sub002/pkg/turn"
	"github.com/Dembrane/echo-sub002/pkg/turn/mode"
	"github.com/Dembrane/echo-sub002/pkg/turn/txn"
)

// Item is one context item as seen by the lock manager.
type Item struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	Locked         bool
	AutoSelected   bool
}

// Snapshot is the full context set as it stood at lock time. It is a copy:
// later additions must not leak into a turn already in flight.
type Snapshot struct {
	SessionID  uuid.UUID
	TakenAt    time.Time
	AutoSelect bool
	Items      []Item
}

// Store is the context store collaborator. LockAll must be a single atomic
// request; a partially locked set must never be observable.
type Store interface {
	List(ctx context.Context, sessionID uuid.UUID) (autoSelect bool, items []Item, err error)
	LockAll(ctx context.Context, sessionID uuid.UUID) ([]Item, error)
	UnlockAll(ctx context.Context, sessionID uuid.UUID) error
}

// Manager holds exclusive mutation rights over the locked flag for the
// duration of a turn. Outside a turn no lock is held at rest.
type Manager struct {
	store Store

	mu     sync.Mutex
	inTurn map[uuid.UUID]*Snapshot
	// cached is the last known context view per session, the state the
	// snapshot/restore transaction protects.
	cached map[uuid.UUID][]Item
}

func NewManager(store Store) *Manager {
	return &Manager{
		store:  store,
		inTurn: make(map[uuid.UUID]*Snapshot),
		cached: make(map[uuid.UUID][]Item),
	}
}

// LockForTurn locks the current context set and returns the snapshot to send
// with the turn. If the lock request fails or races with another lock for
// the same session, the turn must not start: the caller gets
// turn.ErrLockConflict and nothing was sent upstream.
func (m *Manager) LockForTurn(ctx context.Context, sessionID uuid.UUID, policy mode.Policy) (*Snapshot, error) {
	m.mu.Lock()
	if _, held := m.inTurn[sessionID]; held {
		m.mu.Unlock()
		return nil, fmt.Errorf("session %s: %w", sessionID, turn.ErrLockConflict)
	}
	// Reserve the slot before the network call so a concurrent lock attempt
	// fails fast instead of double-locking.
	m.inTurn[sessionID] = nil
	m.mu.Unlock()

	snap, err := m.lock(ctx, sessionID, policy)
	if err != nil {
		m.mu.Lock()
		delete(m.inTurn, sessionID)
		m.mu.Unlock()
		return nil, err
	}

	m.mu.Lock()
	m.inTurn[sessionID] = snap
	m.mu.Unlock()
	return snap, nil
}

func (m *Manager) lock(ctx context.Context, sessionID uuid.UUID, policy mode.Policy) (*Snapshot, error) {
	autoSelect, items, err := m.store.List(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list context: %w", turn.ErrLockConflict)
	}

	if !policy.UsesItemLocks {
		// Overview mode: no per-item lock concept, the snapshot is just the
		// live set (plus the summary computed upstream each turn).
		return &Snapshot{
			SessionID:  sessionID,
			TakenAt:    time.Now(),
			AutoSelect: autoSelect,
			Items:      cloneItems(items),
		}, nil
	}

	// Mark the cached view locked optimistically; restore it if the atomic
	// store request fails, so a retry starts from a consistent view.
	m.mu.Lock()
	tx := txn.Begin(cloneItems(m.cached[sessionID]), func(prev []Item) {
		m.mu.Lock()
		m.cached[sessionID] = prev
		m.mu.Unlock()
	})
	optimistic := cloneItems(items)
	for i := range optimistic {
		optimistic[i].Locked = true
	}
	m.cached[sessionID] = optimistic
	m.mu.Unlock()

	locked, err := m.store.LockAll(ctx, sessionID)
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("lock context: %w", turn.ErrLockConflict)
	}
	tx.Commit()

	m.mu.Lock()
	m.cached[sessionID] = cloneItems(locked)
	m.mu.Unlock()

	return &Snapshot{
		SessionID:  sessionID,
		TakenAt:    time.Now(),
		AutoSelect: autoSelect,
		Items:      cloneItems(locked),
	}, nil
}

// Release gives up the turn's exclusive hold. Locked flags are untouched;
// UnlockAfterTurn decides those separately, per mode.
func (m *Manager) Release(sessionID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inTurn, sessionID)
}

// UnlockAfterTurn unlocks items for modes that permit re-editing context
// between turns. In deep dive it is a no-op: items stay locked permanently
// once added.
func (m *Manager) UnlockAfterTurn(ctx context.Context, sessionID uuid.UUID, policy mode.Policy) error {
	if !policy.UnlockAfterTurn {
		return nil
	}
	if err := m.store.UnlockAll(ctx, sessionID); err != nil {
		return fmt.Errorf("unlock context: %w", err)
	}
	m.mu.Lock()
	items := cloneItems(m.cached[sessionID])
	for i := range items {
		items[i].Locked = false
	}
	m.cached[sessionID] = items
	m.mu.Unlock()
	return nil
}

// InTurn reports whether a turn currently holds the session's context. The
// surrounding application may only add or remove items when it does not.
func (m *Manager) InTurn(sessionID uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, held := m.inTurn[sessionID]
	return held
}

func cloneItems(items []Item) []Item {
	out := make([]Item, len(items))
	copy(out, items)
	return out
}
