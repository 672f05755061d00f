package service

import (
	"strings"
	"testing"

	"github.com/Dembrane/echo-sub002/internal/constant"
	"github.com/google/uuid"
)

func TestDeriveTitle(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{name: "plain question", text: "What came up about parking?", want: "What came up about parking?"},
		{name: "whitespace trimmed", text: "  spaced out \n", want: "spaced out"},
		{name: "newlines flattened", text: "line one\nline two", want: "line one line two"},
		{name: "empty falls back to default", text: "   ", want: constant.SessionDefaultTitle},
		{name: "long text clipped", text: strings.Repeat("a", 200), want: strings.Repeat("a", constant.SessionTitleMaxLen)},
		// 30 three-byte runes is 90 bytes; a byte clip at 80 would land
		// mid-rune, so the cut backs up to the 78-byte boundary.
		{name: "multibyte clip stays on rune boundary", text: strings.Repeat("日", 30), want: strings.Repeat("日", 26)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := deriveTitle(tt.text); got != tt.want {
				t.Errorf("deriveTitle(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestCitationsFromMetadata(t *testing.T) {
	convID := uuid.New()

	tests := []struct {
		name     string
		metadata map[string]interface{}
		wantLen  int
	}{
		{name: "nil metadata", metadata: nil, wantLen: 0},
		{name: "no citations key", metadata: map[string]interface{}{"other": 1}, wantLen: 0},
		{
			// JSONB round trips citations as generic maps, not structs.
			name: "citations as generic maps",
			metadata: map[string]interface{}{
				"citations": []interface{}{
					map[string]interface{}{"index": float64(1), "conversation_id": convID.String()},
				},
			},
			wantLen: 1,
		},
		{name: "empty citations list", metadata: map[string]interface{}{"citations": []interface{}{}}, wantLen: 0},
		{name: "malformed citations ignored", metadata: map[string]interface{}{"citations": "garbage"}, wantLen: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := citationsFromMetadata(tt.metadata)
			if len(got) != tt.wantLen {
				t.Fatalf("got %d citations, want %d", len(got), tt.wantLen)
			}
			if tt.wantLen > 0 {
				if got[0].Index != 1 || got[0].ConversationId != convID {
					t.Errorf("citation = %+v, want index 1 resolving to %s", got[0], convID)
				}
			}
		})
	}
}
