package stream

import (
	"testing"
)

func TestNext(t *testing.T) {
	tests := []struct {
		name    string
		from    Status
		ev      Event
		want    Status
		wantErr bool
	}{
		{name: "turn starts from idle", from: StatusIdle, ev: EventTurnStarted, want: StatusStreaming},
		{name: "turn starts over a running stream", from: StatusStreaming, ev: EventTurnStarted, want: StatusStreaming},
		{name: "turn starts from error", from: StatusError, ev: EventTurnStarted, want: StatusStreaming},
		{name: "delta while streaming", from: StatusStreaming, ev: EventDeltaReceived, want: StatusStreaming},
		{name: "delta while idle rejected", from: StatusIdle, ev: EventDeltaReceived, want: StatusIdle, wantErr: true},
		{name: "delta while stopping rejected", from: StatusStopping, ev: EventDeltaReceived, want: StatusStopping, wantErr: true},
		{name: "stop while streaming", from: StatusStreaming, ev: EventStopRequested, want: StatusStopping},
		{name: "stop while idle rejected", from: StatusIdle, ev: EventStopRequested, want: StatusIdle, wantErr: true},
		{name: "close while streaming", from: StatusStreaming, ev: EventStreamClosed, want: StatusIdle},
		{name: "close while stopping", from: StatusStopping, ev: EventStreamClosed, want: StatusIdle},
		{name: "failure while streaming", from: StatusStreaming, ev: EventStreamFailed, want: StatusError},
		{name: "failure while stopping keeps the stop", from: StatusStopping, ev: EventStreamFailed, want: StatusIdle},
		{name: "failure while idle rejected", from: StatusIdle, ev: EventStreamFailed, want: StatusIdle, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Next(tt.from, tt.ev)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Next(%s, %s) error = %v, wantErr %v", tt.from, tt.ev, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Next(%s, %s) = %s, want %s", tt.from, tt.ev, got, tt.want)
			}
		})
	}
}

func TestStateBeginResetsBuffer(t *testing.T) {
	st := NewState()

	seq1 := st.Begin()
	if !st.Append(seq1, "first turn") {
		t.Fatal("Append with current sequence should be accepted")
	}

	seq2 := st.Begin()
	if seq2 <= seq1 {
		t.Fatalf("Begin should bump the sequence: got %d after %d", seq2, seq1)
	}
	if st.Text() != "" {
		t.Errorf("Begin should clear the buffer, got %q", st.Text())
	}
}

func TestStateDropsStaleDeltas(t *testing.T) {
	st := NewState()
	seq1 := st.Begin()
	seq2 := st.Begin()

	if st.Append(seq1, "late delta from superseded stream") {
		t.Error("Append with stale sequence should be dropped")
	}
	if !st.Append(seq2, "current") {
		t.Error("Append with current sequence should be accepted")
	}
	if st.Text() != "current" {
		t.Errorf("buffer = %q, want %q", st.Text(), "current")
	}
}

func TestStateStopFreezesBuffer(t *testing.T) {
	st := NewState()
	seq := st.Begin()
	st.Append(seq, "partial ")
	st.Append(seq, "answer")

	if err := st.RequestStop(seq); err != nil {
		t.Fatalf("RequestStop: %v", err)
	}
	if st.Status() != StatusStopping {
		t.Fatalf("status = %s, want stopping", st.Status())
	}

	// Deltas still in flight after the stop must not grow the buffer.
	if st.Append(seq, " extra") {
		t.Error("Append after stop should be dropped")
	}

	text, ok := st.Finish(seq, EventStreamClosed)
	if !ok {
		t.Fatal("Finish with current sequence should apply")
	}
	if text != "partial answer" {
		t.Errorf("text = %q, want %q", text, "partial answer")
	}
	if st.Status() != StatusIdle {
		t.Errorf("status after finish = %s, want idle", st.Status())
	}
}

func TestStateFinishStaleSequenceIsNoop(t *testing.T) {
	st := NewState()
	seq1 := st.Begin()
	seq2 := st.Begin()
	st.Append(seq2, "successor text")

	if _, ok := st.Finish(seq1, EventStreamFailed); ok {
		t.Error("Finish from a superseded pump should be a no-op")
	}
	if st.Status() != StatusStreaming {
		t.Errorf("status = %s, want streaming", st.Status())
	}
	if st.Text() != "successor text" {
		t.Errorf("buffer = %q, want untouched successor text", st.Text())
	}
}

func TestStateStopStaleSequenceIsNoop(t *testing.T) {
	st := NewState()
	_ = st.Begin()
	seq2 := st.Begin()

	if err := st.RequestStop(seq2 - 1); err != nil {
		t.Fatalf("stale RequestStop should be a silent no-op, got %v", err)
	}
	if st.Status() != StatusStreaming {
		t.Errorf("status = %s, want streaming", st.Status())
	}
}
