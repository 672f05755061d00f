package mode

import (
	"errors"
	"testing"

	"github.com/Dembrane/echo-sub002/pkg/turn"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Mode
		wantErr bool
	}{
		{name: "deep dive", input: "deep_dive", want: DeepDive},
		{name: "overview", input: "overview", want: Overview},
		{name: "agentic", input: "agentic", want: Agentic},
		{name: "empty rejected", input: "", wantErr: true},
		{name: "unknown rejected", input: "casual", wantErr: true},
		{name: "case sensitive", input: "Deep_Dive", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("Parse(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestTransition(t *testing.T) {
	tests := []struct {
		name    string
		current Mode
		next    Mode
		want    Mode
		wantErr bool
	}{
		{name: "unset to deep dive", current: Unset, next: DeepDive, want: DeepDive},
		{name: "unset to overview", current: Unset, next: Overview, want: Overview},
		{name: "same mode is a no-op", current: Agentic, next: Agentic, want: Agentic},
		{name: "changing a set mode rejected", current: DeepDive, next: Overview, wantErr: true},
		{name: "clearing rejected", current: DeepDive, next: Unset, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Transition(tt.current, tt.next)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Transition(%q, %q) error = %v, wantErr %v", tt.current, tt.next, err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("Transition(%q, %q) = %q, want %q", tt.current, tt.next, got, tt.want)
			}
		})
	}
}

func TestMachineSetOnce(t *testing.T) {
	m := NewMachine(Unset)

	if _, err := m.Require(); !errors.Is(err, turn.ErrModeUnset) {
		t.Fatalf("Require on unset machine = %v, want ErrModeUnset", err)
	}

	if err := m.Set(DeepDive); err != nil {
		t.Fatalf("first Set: %v", err)
	}
	if err := m.Set(DeepDive); err != nil {
		t.Errorf("idempotent Set of the same mode: %v", err)
	}
	if err := m.Set(Overview); !errors.Is(err, turn.ErrModeAlreadySet) {
		t.Errorf("Set to a different mode = %v, want ErrModeAlreadySet", err)
	}

	got, err := m.Require()
	if err != nil || got != DeepDive {
		t.Errorf("Require = (%q, %v), want (deep_dive, nil)", got, err)
	}
}

func TestPolicyFor(t *testing.T) {
	deep := PolicyFor(DeepDive)
	if !deep.UsesItemLocks || !deep.PermanentLock || deep.UnlockAfterTurn {
		t.Error("deep dive locks items permanently")
	}

	over := PolicyFor(Overview)
	if over.UsesItemLocks {
		t.Error("overview has no per-item lock concept")
	}

	agentic := PolicyFor(Agentic)
	if !agentic.UsesItemLocks || !agentic.UnlockAfterTurn || agentic.PermanentLock {
		t.Error("agentic locks for the turn and unlocks after")
	}
}
