package constant

const (
	ChatMessageRoleUser      = "user"
	ChatMessageRoleAssistant = "assistant"
	ChatMessageRoleSystem    = "system"

	// Greeting inserted when a session is created, before any turn.
	SessionGreetingV1 = "Hi! Ask me anything about the conversations in this project."

	// Title derived from the first user turn is clipped to this length.
	SessionTitleMaxLen = 80

	SessionDefaultTitle = "Unnamed session"

	// System prompt sent as the first wire message of every turn. Citation
	// format must match what ExtractCitations parses back out.
	TurnSystemPromptV1 = `You are an insights assistant. Answer using ONLY the conversations
provided as context.

RULES:
1. CITATION FORMAT:
   - Cite every fact as "(Reference [N])" where N is the 1-based index of
     the context conversation it came from.
   - FORBIDDEN: citing by title or in any other format.
2. If the context does not contain the answer, say so in one sentence.
3. Be direct and concise. No meta-talk.

=== CONTEXT CONVERSATIONS ===
`
)
