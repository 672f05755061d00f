package turn

import "errors"

// Domain errors surfaced to the HTTP layer. None of these are retried
// automatically: re-issuing a generative request has cost and duplicate
// side effects the core must not decide silently.
var (
	// ErrModeUnset blocks turn submission until a mode is chosen.
	ErrModeUnset = errors.New("chat mode not set")

	// ErrModeAlreadySet rejects a second attempt to set a different mode.
	ErrModeAlreadySet = errors.New("chat mode already set")

	// ErrLockConflict means the context lock request failed or raced with
	// another lock attempt for the same session. The turn never started.
	ErrLockConflict = errors.New("context lock conflict")

	// ErrContextLocked rejects context mutations while a turn holds the lock.
	ErrContextLocked = errors.New("context is locked by an active turn")

	// ErrNoActiveStream is returned by stop when nothing is streaming.
	ErrNoActiveStream = errors.New("no active stream for session")

	// ErrSessionNotFound covers both missing sessions and sessions owned by
	// another user; callers must not be able to tell the two apart.
	ErrSessionNotFound = errors.New("session not found or access denied")
)
