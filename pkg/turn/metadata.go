package turn

import (
	"regexp"
	"strconv"

	"github.com/google/uuid"
)

// Citation is one structured citation record extracted from finished
// assistant text. Index is 1-based, matching the reference numbering the
// assistant was prompted with.
type Citation struct {
	Index          int       `json:"index"`
	ConversationID uuid.UUID `json:"conversation_id"`
}

var referencePattern = regexp.MustCompile(`\(Reference \[(\d+)\]\)`)

// ExtractCitations parses "(Reference [N])" markers out of the finalized
// text and resolves them against the locked context snapshot order. Markers
// pointing outside the snapshot are dropped. Returns nil when the text
// carries no usable citations, so the message metadata stays empty.
func ExtractCitations(text string, conversationIDs []uuid.UUID) []Citation {
	matches := referencePattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[int]bool)
	var citations []Citation
	for _, m := range matches {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || n > len(conversationIDs) || seen[n] {
			continue
		}
		seen[n] = true
		citations = append(citations, Citation{
			Index:          n,
			ConversationID: conversationIDs[n-1],
		})
	}
	return citations
}

// MetadataFrom wraps extracted citations into the message metadata shape.
func MetadataFrom(citations []Citation) map[string]any {
	if len(citations) == 0 {
		return nil
	}
	return map[string]any{"citations": citations}
}
