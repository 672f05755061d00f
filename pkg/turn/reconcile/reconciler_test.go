package reconcile

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func baseTime() time.Time {
	return time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
}

func persisted(id uuid.UUID, role, text string, at time.Time) Message {
	return Message{ID: id, Role: role, Text: text, CreatedAt: at}
}

func TestMergeSnapshotIsIdempotent(t *testing.T) {
	r := New(DefaultMatchWindow)
	at := baseTime()
	snapshot := []Message{
		persisted(uuid.New(), "assistant", "Hi! Ask me about your conversations.", at),
		persisted(uuid.New(), "user", "What came up yesterday?", at.Add(time.Minute)),
	}

	r.MergeSnapshot(snapshot)
	first := r.Messages()
	r.MergeSnapshot(snapshot)
	second := r.Messages()

	if len(first) != 2 || len(second) != 2 {
		t.Fatalf("merged lengths = %d, %d; want 2, 2", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID || first[i].Text != second[i].Text {
			t.Errorf("entry %d changed across identical merges", i)
		}
	}
}

func TestMergeSnapshotServerWinsOnMatch(t *testing.T) {
	r := New(DefaultMatchWindow)
	at := baseTime()
	id := uuid.New()

	// Local optimistic copy with provisional text.
	r.Upsert(Message{ID: id, Role: "user", Text: "draft text", CreatedAt: at})

	// Server copy of the same message.
	r.MergeSnapshot([]Message{persisted(id, "user", "final text", at)})

	msgs := r.Messages()
	if len(msgs) != 1 {
		t.Fatalf("len = %d, want 1 (no duplicate)", len(msgs))
	}
	if msgs[0].Text != "final text" {
		t.Errorf("text = %q, want the server copy", msgs[0].Text)
	}
	if msgs[0].Optimistic {
		t.Error("confirmed message should no longer be optimistic")
	}
}

func TestMergeSnapshotMatchesOptimisticWithoutID(t *testing.T) {
	r := New(DefaultMatchWindow)
	at := baseTime()

	// The optimistic insert carries no id yet; the server row has one. Same
	// role and a close timestamp: same logical message.
	r.Upsert(Message{Role: "user", Text: "hello", CreatedAt: at})
	r.MergeSnapshot([]Message{persisted(uuid.New(), "user", "hello", at.Add(2 * time.Second))})

	if got := len(r.Messages()); got != 1 {
		t.Errorf("len = %d, want 1", got)
	}
}

func TestMergeSnapshotKeepsDistinctIDsApart(t *testing.T) {
	r := New(DefaultMatchWindow)
	at := baseTime()

	first := Message{ID: uuid.New(), Role: "user", Text: "first question", CreatedAt: at}
	second := Message{ID: uuid.New(), Role: "user", Text: "second question", CreatedAt: at.Add(3 * time.Second)}
	r.Upsert(first)
	r.Upsert(second)

	// A history fetch races the second message's persist: the snapshot holds
	// only the first. Both sides carry ids, so the role+time fallback must
	// not let the first row claim the second message.
	r.MergeSnapshot([]Message{persisted(first.ID, "user", "first question", at)})

	msgs := r.Messages()
	if len(msgs) != 2 {
		t.Fatalf("len = %d, want both user messages", len(msgs))
	}
	if msgs[1].ID != second.ID {
		t.Errorf("second entry id = %s, want the unconfirmed message %s", msgs[1].ID, second.ID)
	}
	if !msgs[1].Optimistic {
		t.Error("unconfirmed message should stay optimistic after the merge")
	}
}

func TestMergeSnapshotNeverTruncatesStreamingMessage(t *testing.T) {
	r := New(DefaultMatchWindow)
	at := baseTime()
	userID := uuid.New()
	streamID := uuid.New()

	r.MergeSnapshot([]Message{persisted(userID, "user", "question", at)})
	r.BeginStreaming(streamID, "assistant", 1, at.Add(time.Second))
	r.AppendDelta(1, "partial answer so ")
	r.AppendDelta(1, "far")

	// A concurrent fetch lands while the stream is mid-generation. The
	// snapshot has no trace of the streaming message yet.
	r.MergeSnapshot([]Message{persisted(userID, "user", "question", at)})

	msgs := r.Messages()
	if len(msgs) != 2 {
		t.Fatalf("len = %d, want user message plus streaming message", len(msgs))
	}
	last := msgs[len(msgs)-1]
	if !last.Streaming {
		t.Fatal("streaming message was dropped by the merge")
	}
	if last.Text != "partial answer so far" {
		t.Errorf("streaming text = %q, want accumulated deltas untouched", last.Text)
	}
}

func TestMergeSnapshotWholesaleReplace(t *testing.T) {
	r := New(DefaultMatchWindow)
	at := baseTime()

	stale := persisted(uuid.New(), "user", "old local view", at)
	r.MergeSnapshot([]Message{stale})

	// The server moved on: more messages than we hold. Replace wholesale.
	fresh := []Message{
		persisted(uuid.New(), "user", "first", at.Add(time.Hour)),
		persisted(uuid.New(), "assistant", "second", at.Add(time.Hour+time.Minute)),
	}
	r.MergeSnapshot(fresh)

	msgs := r.Messages()
	if len(msgs) != 2 {
		t.Fatalf("len = %d, want snapshot contents only", len(msgs))
	}
	for _, m := range msgs {
		if m.Text == "old local view" {
			t.Error("wholesale replace kept a stale local entry")
		}
	}
}

func TestMergeSnapshotKeepsConfirmedOnStaleFetch(t *testing.T) {
	r := New(DefaultMatchWindow)
	at := baseTime()

	a := persisted(uuid.New(), "user", "a", at)
	b := persisted(uuid.New(), "assistant", "b", at.Add(time.Hour))
	r.MergeSnapshot([]Message{a, b})

	// A delayed fetch delivers an older, smaller snapshot. Confirmed entries
	// it has not caught up to must survive.
	r.MergeSnapshot([]Message{a})

	if got := len(r.Messages()); got != 2 {
		t.Errorf("len = %d, want 2 (stale fetch must not shrink the view)", got)
	}
}

func TestFinalizeStreaming(t *testing.T) {
	r := New(DefaultMatchWindow)
	id := uuid.New()
	r.BeginStreaming(id, "assistant", 3, baseTime())
	r.AppendDelta(3, "some ")
	r.AppendDelta(3, "text")

	msg, ok := r.FinalizeStreaming(3, "some text", map[string]any{"citations": "x"})
	if !ok {
		t.Fatal("FinalizeStreaming should find the streaming entry")
	}
	if msg.Streaming {
		t.Error("finalized message still marked streaming")
	}
	if !msg.Optimistic {
		t.Error("finalized message should stay optimistic until a fetch confirms it")
	}
	if msg.Text != "some text" {
		t.Errorf("text = %q", msg.Text)
	}
}

func TestAppendDeltaIgnoresOtherSequences(t *testing.T) {
	r := New(DefaultMatchWindow)
	r.BeginStreaming(uuid.New(), "assistant", 2, baseTime())

	if r.AppendDelta(1, "stale") {
		t.Error("delta from a superseded sequence should be dropped")
	}
	if !r.AppendDelta(2, "current") {
		t.Error("delta from the current sequence should apply")
	}
}

func TestBeginStreamingDropsLeftoverStream(t *testing.T) {
	r := New(DefaultMatchWindow)
	r.BeginStreaming(uuid.New(), "assistant", 1, baseTime())
	r.AppendDelta(1, "superseded partial")

	r.BeginStreaming(uuid.New(), "assistant", 2, baseTime().Add(time.Second))

	streaming := 0
	for _, m := range r.Messages() {
		if m.Streaming {
			streaming++
			if m.StreamSeq != 2 {
				t.Errorf("streaming entry has seq %d, want 2", m.StreamSeq)
			}
		}
	}
	if streaming != 1 {
		t.Errorf("streaming entries = %d, want exactly one", streaming)
	}
}

func TestDiscardStreaming(t *testing.T) {
	r := New(DefaultMatchWindow)
	keep := persisted(uuid.New(), "user", "question", baseTime())
	r.MergeSnapshot([]Message{keep})
	r.BeginStreaming(uuid.New(), "assistant", 1, baseTime().Add(time.Second))
	r.AppendDelta(1, "failed partial")

	r.DiscardStreaming(1)

	msgs := r.Messages()
	if len(msgs) != 1 || msgs[0].ID != keep.ID {
		t.Errorf("discard should remove only the streaming entry, got %d entries", len(msgs))
	}
}
