// Package stream owns the per-session streaming state: an explicit finite
// state machine driven by events, an accumulating buffer, and a monotonic
// sequence counter that discards deltas from superseded streams.
package stream

import (
	"fmt"
	"strings"
	"sync"
)

type Status int

const (
	StatusIdle Status = iota
	StatusStreaming
	StatusStopping
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusStreaming:
		return "streaming"
	case StatusStopping:
		return "stopping"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

type Event int

const (
	EventTurnStarted Event = iota
	EventDeltaReceived
	EventStopRequested
	EventStreamClosed
	EventStreamFailed
)

func (e Event) String() string {
	switch e {
	case EventTurnStarted:
		return "turn_started"
	case EventDeltaReceived:
		return "delta_received"
	case EventStopRequested:
		return "stop_requested"
	case EventStreamClosed:
		return "stream_closed"
	case EventStreamFailed:
		return "stream_failed"
	default:
		return "unknown"
	}
}

// Next is the pure transition function. A turn may start from any status:
// starting while streaming is the supersede case, where the registry has
// already cancelled the previous transport and the sequence bump strands its
// remaining deltas.
func Next(s Status, ev Event) (Status, error) {
	switch ev {
	case EventTurnStarted:
		return StatusStreaming, nil
	case EventDeltaReceived:
		if s == StatusStreaming {
			return StatusStreaming, nil
		}
	case EventStopRequested:
		if s == StatusStreaming {
			return StatusStopping, nil
		}
	case EventStreamClosed:
		if s == StatusStreaming || s == StatusStopping {
			return StatusIdle, nil
		}
	case EventStreamFailed:
		switch s {
		case StatusStreaming:
			return StatusError, nil
		case StatusStopping:
			// Stop already claimed the partial text; a late transport
			// failure must not turn a deliberate stop into an error.
			return StatusIdle, nil
		}
	}
	return s, fmt.Errorf("invalid stream transition: %s on %s", ev, s)
}

// State is the mutable per-session stream state. All methods are safe for
// concurrent use; the sequence counter is the only thing shared between an
// old pump and a superseding turn.
type State struct {
	mu     sync.Mutex
	status Status
	seq    uint64
	buf    strings.Builder
}

func NewState() *State {
	return &State{status: StatusIdle}
}

// Begin starts a new turn: bumps the sequence counter, clears the buffer and
// moves to streaming. The returned sequence tags every delta of this turn.
func (st *State) Begin() uint64 {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.status, _ = Next(st.status, EventTurnStarted)
	st.seq++
	st.buf.Reset()
	return st.seq
}

// Append applies a delta to the buffer. Deltas tagged with a stale sequence,
// or arriving outside the streaming status, are unconditionally dropped and
// Append reports false.
func (st *State) Append(seq uint64, delta string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if seq != st.seq || st.status != StatusStreaming {
		return false
	}
	st.buf.WriteString(delta)
	return true
}

// RequestStop moves streaming to stopping. Once stopping, no further deltas
// accumulate: the buffer at this moment is exactly what gets persisted.
func (st *State) RequestStop(seq uint64) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if seq != st.seq {
		return nil
	}
	next, err := Next(st.status, EventStopRequested)
	if err != nil {
		return err
	}
	st.status = next
	return nil
}

// Finish applies the terminal event of a stream and returns the accumulated
// text. Calls tagged with a stale sequence are no-ops: a superseded pump
// must not disturb the state of the turn that replaced it.
func (st *State) Finish(seq uint64, ev Event) (string, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if seq != st.seq {
		return "", false
	}
	next, err := Next(st.status, ev)
	if err != nil {
		return "", false
	}
	st.status = next
	return st.buf.String(), true
}

func (st *State) Status() Status {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.status
}

func (st *State) Sequence() uint64 {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.seq
}

// Text returns the buffer as accumulated so far.
func (st *State) Text() string {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.buf.String()
}
