// Package reconcile merges three independently-updating views of a chat
// into one ordered, de-duplicated message list: the persisted history, the
// message currently being streamed, and local optimistic inserts.
package reconcile

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultMatchWindow is how far apart two timestamps may be for an
// optimistic message and a server copy without ids to be considered the
// same logical message.
const DefaultMatchWindow = 5 * time.Second

// Message is one entry in the reconciled view.
type Message struct {
	ID        uuid.UUID
	Role      string
	Text      string
	CreatedAt time.Time
	Metadata  map[string]any

	// Streaming marks the single message whose text is still accumulating.
	Streaming bool
	// StreamSeq ties a streaming message to its stream, so a snapshot merge
	// can recognize it and never truncate an answer mid-generation.
	StreamSeq uint64
	// Optimistic marks a local insert not yet confirmed by a fetch.
	Optimistic bool
}

// Reconciler holds the merged view for one session.
type Reconciler struct {
	mu      sync.Mutex
	window  time.Duration
	entries []Message
}

func New(window time.Duration) *Reconciler {
	if window <= 0 {
		window = DefaultMatchWindow
	}
	return &Reconciler{window: window}
}

// Upsert inserts or replaces a local optimistic message by id.
func (r *Reconciler) Upsert(msg Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg.Optimistic = true
	for i := range r.entries {
		if r.entries[i].ID == msg.ID {
			r.entries[i] = msg
			r.sortLocked()
			return
		}
	}
	r.entries = append(r.entries, msg)
	r.sortLocked()
}

// BeginStreaming registers the assistant message a new stream accumulates
// into. Any leftover streaming entry from a superseded stream is dropped.
func (r *Reconciler) BeginStreaming(id uuid.UUID, role string, seq uint64, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropStreamingLocked()
	r.entries = append(r.entries, Message{
		ID:        id,
		Role:      role,
		CreatedAt: at,
		Streaming: true,
		StreamSeq: seq,
	})
	r.sortLocked()
}

// AppendDelta grows the streaming message. Deltas from any other sequence
// are dropped; the stream state's guard already rejected them, this is the
// view-side mirror of the same rule.
func (r *Reconciler) AppendDelta(seq uint64, delta string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.entries {
		if r.entries[i].Streaming && r.entries[i].StreamSeq == seq {
			r.entries[i].Text += delta
			return true
		}
	}
	return false
}

// FinalizeStreaming freezes the streaming message with its final text. The
// message stays optimistic until a history fetch confirms it.
func (r *Reconciler) FinalizeStreaming(seq uint64, text string, metadata map[string]any) (Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.entries {
		if r.entries[i].Streaming && r.entries[i].StreamSeq == seq {
			r.entries[i].Streaming = false
			r.entries[i].Optimistic = true
			r.entries[i].Text = text
			r.entries[i].Metadata = metadata
			return r.entries[i], true
		}
	}
	return Message{}, false
}

// DiscardStreaming removes the streaming message, for failed or abandoned
// streams where nothing is persisted.
func (r *Reconciler) DiscardStreaming(seq uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.entries[:0]
	for _, e := range r.entries {
		if e.Streaming && e.StreamSeq == seq {
			continue
		}
		kept = append(kept, e)
	}
	r.entries = kept
}

// MergeSnapshot folds a fresh persisted-history fetch into the view.
// The server copy always wins on a match (by id, else by role and a
// timestamp within the window). When the snapshot holds more messages than
// the finalized entries here, the in-memory list is replaced wholesale,
// except a message that is still actively streaming, which is never
// replaced. Merging the same snapshot twice is idempotent.
func (r *Reconciler) MergeSnapshot(snapshot []Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	finalized := 0
	for _, e := range r.entries {
		if !e.Streaming && !e.Optimistic {
			finalized++
		}
	}
	wholesale := len(snapshot) > finalized

	merged := make([]Message, 0, len(snapshot)+4)
	for _, s := range snapshot {
		s.Streaming = false
		s.Optimistic = false
		merged = append(merged, s)
	}

	for _, e := range r.entries {
		switch {
		case e.Streaming:
			merged = append(merged, e)
		case matchedBy(snapshot, e, r.window):
			// Server copy already in merged; drop the local one.
		case e.Optimistic:
			merged = append(merged, e)
		case !wholesale:
			// Stale fetch: keep confirmed entries the snapshot has not
			// caught up to yet.
			merged = append(merged, e)
		}
	}

	r.entries = merged
	r.sortLocked()
}

// Messages returns the reconciled list, chronological by creation.
func (r *Reconciler) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.entries))
	copy(out, r.entries)
	return out
}

func (r *Reconciler) dropStreamingLocked() {
	kept := r.entries[:0]
	for _, e := range r.entries {
		if e.Streaming {
			continue
		}
		kept = append(kept, e)
	}
	r.entries = kept
}

// sortLocked keeps chronological order. The sort is stable so equal
// timestamps never reorder finalized messages.
func (r *Reconciler) sortLocked() {
	sort.SliceStable(r.entries, func(i, j int) bool {
		return r.entries[i].CreatedAt.Before(r.entries[j].CreatedAt)
	})
}

func matchedBy(snapshot []Message, e Message, window time.Duration) bool {
	for _, s := range snapshot {
		if s.ID != uuid.Nil && e.ID != uuid.Nil {
			if s.ID == e.ID {
				return true
			}
			// Both sides carry ids, so a mismatch means two different
			// messages: the role+time fallback must not claim them.
			continue
		}
		if s.Role == e.Role && absDuration(s.CreatedAt.Sub(e.CreatedAt)) <= window {
			return true
		}
	}
	return false
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
