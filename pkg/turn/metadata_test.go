package turn

import (
	"testing"

	"github.com/google/uuid"
)

func TestExtractCitations(t *testing.T) {
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}

	tests := []struct {
		name        string
		text        string
		wantIndexes []int
	}{
		{
			name:        "no markers",
			text:        "A plain answer without references.",
			wantIndexes: nil,
		},
		{
			name:        "single marker",
			text:        "Participants worried about parking (Reference [2]).",
			wantIndexes: []int{2},
		},
		{
			name:        "multiple markers in order of appearance",
			text:        "Costs came up (Reference [3]) and again later (Reference [1]).",
			wantIndexes: []int{3, 1},
		},
		{
			name:        "duplicate marker counted once",
			text:        "(Reference [1]) and once more (Reference [1]).",
			wantIndexes: []int{1},
		},
		{
			name:        "marker outside the snapshot dropped",
			text:        "Hallucinated source (Reference [7]) and a real one (Reference [2]).",
			wantIndexes: []int{2},
		},
		{
			name:        "zero index dropped",
			text:        "Bad numbering (Reference [0]).",
			wantIndexes: nil,
		},
		{
			name:        "bare bracket without the wrapper ignored",
			text:        "Item [2] is not a citation marker.",
			wantIndexes: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractCitations(tt.text, ids)
			if len(got) != len(tt.wantIndexes) {
				t.Fatalf("got %d citations, want %d", len(got), len(tt.wantIndexes))
			}
			for i, c := range got {
				wantIdx := tt.wantIndexes[i]
				if c.Index != wantIdx {
					t.Errorf("citation %d index = %d, want %d", i, c.Index, wantIdx)
				}
				if c.ConversationID != ids[wantIdx-1] {
					t.Errorf("citation %d resolved to the wrong conversation", i)
				}
			}
		})
	}
}

func TestMetadataFrom(t *testing.T) {
	if MetadataFrom(nil) != nil {
		t.Error("no citations should produce nil metadata")
	}

	citations := []Citation{{Index: 1, ConversationID: uuid.New()}}
	meta := MetadataFrom(citations)
	got, ok := meta["citations"].([]Citation)
	if !ok || len(got) != 1 {
		t.Errorf("metadata = %v, want the citations under the citations key", meta)
	}
}
