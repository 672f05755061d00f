// Package mode implements the chat mode state machine. A session starts
// unset, transitions exactly once to a concrete mode, and stays there.
package mode

import (
	"fmt"

	"github.com/Dembrane/echo-sub002/pkg/turn"
)

type Mode string

const (
	Unset    Mode = ""
	DeepDive Mode = "deep_dive"
	Overview Mode = "overview"
	Agentic  Mode = "agentic"
)

// Parse validates a client-supplied mode string. Unset is not a valid
// target: the machine only transitions towards concrete modes.
func Parse(s string) (Mode, error) {
	switch Mode(s) {
	case DeepDive, Overview, Agentic:
		return Mode(s), nil
	default:
		return Unset, fmt.Errorf("unknown chat mode %q", s)
	}
}

// Policy describes how a mode changes the behaviour of the lock manager and
// which template/suggestion source the surrounding UI queries. Transport and
// reconciler contracts are the same in every mode.
type Policy struct {
	// UsesItemLocks is false for overview mode, which has no per-item lock
	// concept and auto-includes a live-computed summary each turn.
	UsesItemLocks bool

	// PermanentLock keeps items locked after the turn: in deep dive they
	// represent evidence already used in a past answer.
	PermanentLock bool

	// UnlockAfterTurn releases item locks once the turn is finalized.
	UnlockAfterTurn bool

	// TemplateKey is sent with the turn request.
	TemplateKey string

	// SuggestionSource names the suggestion/template data source the UI
	// queries for this mode.
	SuggestionSource string
}

func PolicyFor(m Mode) Policy {
	switch m {
	case DeepDive:
		return Policy{
			UsesItemLocks:    true,
			PermanentLock:    true,
			TemplateKey:      "deep_dive_v1",
			SuggestionSource: "deep_dive_suggestions",
		}
	case Overview:
		return Policy{
			TemplateKey:      "overview_v1",
			SuggestionSource: "overview_suggestions",
		}
	case Agentic:
		return Policy{
			UsesItemLocks:    true,
			UnlockAfterTurn:  true,
			TemplateKey:      "agentic_v1",
			SuggestionSource: "agentic_suggestions",
		}
	default:
		return Policy{}
	}
}

// Transition is the pure transition function of the mode machine.
// unset -> concrete is the only real transition; setting the same mode again
// is a no-op, setting a different one is rejected.
func Transition(current, next Mode) (Mode, error) {
	if next == Unset {
		return current, fmt.Errorf("cannot clear chat mode")
	}
	switch {
	case current == Unset:
		return next, nil
	case current == next:
		return current, nil
	default:
		return current, turn.ErrModeAlreadySet
	}
}
