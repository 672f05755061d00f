package stream

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

// fakeHandle is a scripted transport handle. Cancel closes the delta channel,
// mirroring how the HTTP transport ends its read loop on cancellation.
type fakeHandle struct {
	deltas chan string

	mu        sync.Mutex
	err       error
	cancelled bool
}

func newFakeHandle() *fakeHandle {
	return &fakeHandle{deltas: make(chan string, 16)}
}

func (h *fakeHandle) Deltas() <-chan string { return h.deltas }

func (h *fakeHandle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

func (h *fakeHandle) Cancel() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancelled {
		return
	}
	h.cancelled = true
	close(h.deltas)
}

func (h *fakeHandle) send(deltas ...string) {
	for _, d := range deltas {
		h.deltas <- d
	}
}

func (h *fakeHandle) finish() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.cancelled {
		h.cancelled = true
		close(h.deltas)
	}
}

func (h *fakeHandle) failWith(err error) {
	h.mu.Lock()
	h.err = err
	h.mu.Unlock()
	h.finish()
}

// collectSink records every delta it receives.
type collectSink struct {
	mu     sync.Mutex
	deltas []string
	fail   bool
}

func (s *collectSink) Delta(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("client gone")
	}
	s.deltas = append(s.deltas, text)
	return nil
}

func (s *collectSink) text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.Join(s.deltas, "")
}

func waitForText(t *testing.T, st *State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for st.Text() == "" {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for the pump to consume a delta")
		}
		time.Sleep(time.Millisecond)
	}
}

func runController(st *State, handle *fakeHandle, sink Sink) (*Controller, chan Outcome) {
	ctrl := NewController(uuid.New(), st)
	seq := st.Begin()
	ctrl.Bind(handle, seq)

	done := make(chan Outcome, 1)
	go func() {
		done <- ctrl.Run(sink, Hooks{})
	}()
	return ctrl, done
}

func TestControllerCompletedStream(t *testing.T) {
	st := NewState()
	handle := newFakeHandle()
	sink := &collectSink{}

	_, done := runController(st, handle, sink)
	handle.send("Hello", ", ", "world")
	handle.finish()

	out := <-done
	if out.Reason != EndCompleted {
		t.Fatalf("reason = %s, want completed", out.Reason)
	}
	if out.Text != "Hello, world" {
		t.Errorf("text = %q, want %q", out.Text, "Hello, world")
	}
	if sink.text() != "Hello, world" {
		t.Errorf("sink saw %q, want every delta", sink.text())
	}
	if st.Status() != StatusIdle {
		t.Errorf("status = %s, want idle", st.Status())
	}
}

func TestControllerStopPersistsExactPartialText(t *testing.T) {
	st := NewState()
	handle := newFakeHandle()
	sink := &collectSink{}

	ctrl, done := runController(st, handle, sink)
	handle.send("The answer so far")

	// Wait until the pump consumed the delta, then stop.
	waitForText(t, st)
	ctrl.Stop()

	out := <-done
	if out.Reason != EndStopped {
		t.Fatalf("reason = %s, want stopped", out.Reason)
	}
	if out.Text != "The answer so far" {
		t.Errorf("text = %q, want the buffer exactly as it stood at stop", out.Text)
	}
	if st.Status() != StatusIdle {
		t.Errorf("status = %s, want idle", st.Status())
	}
}

func TestControllerTransportFailure(t *testing.T) {
	st := NewState()
	handle := newFakeHandle()

	_, done := runController(st, handle, &collectSink{})
	handle.send("partial")
	handle.failWith(errors.New("connection reset"))

	out := <-done
	if out.Reason != EndFailed {
		t.Fatalf("reason = %s, want failed", out.Reason)
	}
	if out.Err == nil {
		t.Error("failed outcome should carry the transport error")
	}
	if st.Status() != StatusError {
		t.Errorf("status = %s, want error", st.Status())
	}
}

func TestControllerStopWinsOverLateFailure(t *testing.T) {
	st := NewState()
	handle := newFakeHandle()

	ctrl, done := runController(st, handle, &collectSink{})
	handle.send("partial text")
	waitForText(t, st)
	ctrl.Stop()
	// The cancelled transport surfaces an error after the stop; the outcome
	// must still be a stop with the partial text.
	handle.mu.Lock()
	handle.err = errors.New("context canceled")
	handle.mu.Unlock()

	out := <-done
	if out.Reason != EndStopped {
		t.Fatalf("reason = %s, want stopped", out.Reason)
	}
	if out.Text != "partial text" {
		t.Errorf("text = %q, want %q", out.Text, "partial text")
	}
}

func TestControllerAbandonPersistsNothing(t *testing.T) {
	st := NewState()
	handle := newFakeHandle()

	ctrl, done := runController(st, handle, &collectSink{})
	handle.send("half an answer")
	waitForText(t, st)
	ctrl.Abandon()

	out := <-done
	if out.Reason != EndAbandoned {
		t.Fatalf("reason = %s, want abandoned", out.Reason)
	}
	if out.Text != "" {
		t.Errorf("abandoned outcome carries no text, got %q", out.Text)
	}
}

func TestControllerSinkErrorAbandons(t *testing.T) {
	st := NewState()
	handle := newFakeHandle()
	sink := &collectSink{fail: true}

	_, done := runController(st, handle, sink)
	handle.send("delta")

	out := <-done
	if out.Reason != EndAbandoned {
		t.Fatalf("reason = %s, want abandoned when the sink fails", out.Reason)
	}
}

func TestControllerSupersededPumpDoesNotDisturbSuccessor(t *testing.T) {
	st := NewState()
	oldHandle := newFakeHandle()
	oldCtrl, oldDone := runController(st, oldHandle, &collectSink{})

	// A new turn takes over: abandon the old stream and bump the sequence.
	oldCtrl.Abandon()
	<-oldDone

	newHandle := newFakeHandle()
	_, newDone := runController(st, newHandle, &collectSink{})
	newHandle.send("fresh answer")
	newHandle.finish()

	out := <-newDone
	if out.Reason != EndCompleted {
		t.Fatalf("reason = %s, want completed", out.Reason)
	}
	if out.Text != "fresh answer" {
		t.Errorf("text = %q, want the successor's text only", out.Text)
	}
}

func TestControllerStopBeforeBindCancelsOnBind(t *testing.T) {
	st := NewState()
	ctrl := NewController(uuid.New(), st)
	ctrl.Stop()

	handle := newFakeHandle()
	seq := st.Begin()
	ctrl.Bind(handle, seq)

	handle.mu.Lock()
	cancelled := handle.cancelled
	handle.mu.Unlock()
	if !cancelled {
		t.Error("Bind after Stop should cancel the transport immediately")
	}
}

func TestRegistrySwapAbandonsPrevious(t *testing.T) {
	st := NewState()
	reg := NewRegistry()
	sessionID := uuid.New()

	oldHandle := newFakeHandle()
	oldCtrl := NewController(sessionID, st)
	oldCtrl.Bind(oldHandle, st.Begin())
	reg.Swap(sessionID, oldCtrl)

	newCtrl := NewController(sessionID, st)
	reg.Swap(sessionID, newCtrl)

	oldHandle.mu.Lock()
	cancelled := oldHandle.cancelled
	oldHandle.mu.Unlock()
	if !cancelled {
		t.Error("Swap should abandon the previous stream")
	}

	got, ok := reg.Get(sessionID)
	if !ok || got != newCtrl {
		t.Error("Get should return the new controller")
	}
}

func TestRegistryReleaseDoesNotEvictSuccessor(t *testing.T) {
	st := NewState()
	reg := NewRegistry()
	sessionID := uuid.New()

	oldCtrl := NewController(sessionID, st)
	reg.Swap(sessionID, oldCtrl)
	newCtrl := NewController(sessionID, st)
	reg.Swap(sessionID, newCtrl)

	// The superseded pump releasing late must not remove its successor.
	reg.Release(sessionID, oldCtrl)
	if got, ok := reg.Get(sessionID); !ok || got != newCtrl {
		t.Error("Release by a superseded controller evicted the active one")
	}

	reg.Release(sessionID, newCtrl)
	if _, ok := reg.Get(sessionID); ok {
		t.Error("Release by the active controller should remove it")
	}
}
