package stream

import (
	"sync"

	"github.com/google/uuid"

	"github.com/Dembrane/echo-sub002/pkg/assistant"
)

type EndReason int

const (
	// EndCompleted: the transport closed normally; full text is finalized.
	EndCompleted EndReason = iota
	// EndStopped: user-initiated stop; the partial text is finalized and
	// persisted as a normal assistant turn.
	EndStopped
	// EndFailed: transport failure; nothing is persisted.
	EndFailed
	// EndAbandoned: session teardown; cancelled without persistence since
	// there is no user present to have asked for a stop.
	EndAbandoned
)

func (r EndReason) String() string {
	switch r {
	case EndCompleted:
		return "completed"
	case EndStopped:
		return "stopped"
	case EndFailed:
		return "failed"
	case EndAbandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

// Outcome is what a finished pump hands back to its owner.
type Outcome struct {
	Seq    uint64
	Text   string
	Reason EndReason
	Err    error
}

// Sink receives deltas as they are accepted by the sequence guard. A sink
// error means the consumer went away, which abandons the turn.
type Sink interface {
	Delta(text string) error
}

// Hooks let the owner observe the pump without owning its loop.
type Hooks struct {
	// OnFirstDelta fires once, when the first real byte arrives. The
	// progress simulator is cleared here: real signal preempts simulated.
	OnFirstDelta func()
	// OnDelta fires for every accepted delta, after the buffer applied it.
	OnDelta func(seq uint64, delta string)
}

// Controller drives one turn's stream: it owns the transport handle, applies
// the sequence guard through the shared session State, and reduces the many
// ways a stream can end to a single Outcome.
type Controller struct {
	sessionID uuid.UUID
	state     *State

	mu        sync.Mutex
	handle    assistant.Handle
	seq       uint64
	stopped   bool
	abandoned bool

	done    chan struct{}
	outcome Outcome
}

func NewController(sessionID uuid.UUID, state *State) *Controller {
	return &Controller{
		sessionID: sessionID,
		state:     state,
		done:      make(chan struct{}),
	}
}

func (c *Controller) SessionID() uuid.UUID { return c.sessionID }

// Bind attaches the transport handle once the turn request is dispatched.
// If a stop or abandon raced in before the handle existed, the transport is
// cancelled right away.
func (c *Controller) Bind(handle assistant.Handle, seq uint64) {
	c.mu.Lock()
	c.handle = handle
	c.seq = seq
	ended := c.stopped || c.abandoned
	c.mu.Unlock()
	if ended {
		handle.Cancel()
	}
}

func (c *Controller) Seq() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Stop is the user-initiated stop: freeze the buffer, cancel the transport.
// The pump finalizes with EndStopped and the accumulated text.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.stopped || c.abandoned {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	handle, seq := c.handle, c.seq
	c.mu.Unlock()

	_ = c.state.RequestStop(seq)
	if handle != nil {
		handle.Cancel()
	}
}

// Abandon cancels without finalizing: session teardown, client disconnect,
// or a superseding turn.
func (c *Controller) Abandon() {
	c.mu.Lock()
	if c.stopped || c.abandoned {
		c.mu.Unlock()
		return
	}
	c.abandoned = true
	handle := c.handle
	c.mu.Unlock()

	if handle != nil {
		handle.Cancel()
	}
}

// Run pumps deltas from the transport into the session buffer and the sink
// until the stream ends, then settles the Outcome. It must be called exactly
// once, after Bind.
func (c *Controller) Run(sink Sink, hooks Hooks) Outcome {
	c.mu.Lock()
	handle, seq := c.handle, c.seq
	c.mu.Unlock()

	first := true
	for delta := range handle.Deltas() {
		if !c.state.Append(seq, delta) {
			// Stale or post-stop delta: dropped, never an error.
			continue
		}
		if first {
			first = false
			if hooks.OnFirstDelta != nil {
				hooks.OnFirstDelta()
			}
		}
		if hooks.OnDelta != nil {
			hooks.OnDelta(seq, delta)
		}
		if sink != nil {
			if err := sink.Delta(delta); err != nil {
				c.Abandon()
			}
		}
	}
	transportErr := handle.Err()

	c.mu.Lock()
	stopped, abandoned := c.stopped, c.abandoned
	c.mu.Unlock()

	var out Outcome
	out.Seq = seq
	switch {
	case stopped:
		text, _ := c.state.Finish(seq, EventStreamClosed)
		out.Text = text
		out.Reason = EndStopped
	case abandoned:
		_, _ = c.state.Finish(seq, EventStreamClosed)
		out.Reason = EndAbandoned
	case transportErr != nil:
		_, _ = c.state.Finish(seq, EventStreamFailed)
		out.Reason = EndFailed
		out.Err = transportErr
	default:
		text, _ := c.state.Finish(seq, EventStreamClosed)
		out.Text = text
		out.Reason = EndCompleted
	}

	c.outcome = out
	close(c.done)
	return out
}

// Done is closed once Run settled the outcome.
func (c *Controller) Done() <-chan struct{} { return c.done }

// Outcome is valid after Done is closed.
func (c *Controller) Outcome() Outcome {
	<-c.done
	return c.outcome
}
