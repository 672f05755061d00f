// Package assistant is the stream transport: one chunked HTTP request per
// user turn against the assistant backend, yielding incremental UTF-8 text
// deltas until end-of-stream or cancellation.
package assistant

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Message is a chat message in the wire format the assistant expects.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TurnRequest carries everything one turn sends upstream: the user text is
// already folded into Messages together with the locked context snapshot.
type TurnRequest struct {
	SessionID   uuid.UUID
	Lang        string
	TemplateKey string
	Messages    []Message
}

// Handle is one open stream. Deltas is closed when the stream ends for any
// reason; Err is valid after that. Cancel aborts the underlying transport;
// deltas already in flight over the wire may still arrive and are discarded
// by the caller's sequence-number check.
type Handle interface {
	Deltas() <-chan string
	Err() error
	Cancel()
}

// Transport opens one stream per turn.
type Transport interface {
	StartTurn(ctx context.Context, req TurnRequest) (Handle, error)
}

// TransportError is a transport-level failure: connection reset, non-2xx
// status, or a read error mid-stream. It is never a partial success.
type TransportError struct {
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("assistant transport: unexpected status %d", e.Status)
	}
	return fmt.Sprintf("assistant transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
