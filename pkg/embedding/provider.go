package embedding

// EmbeddingProvider defines the interface for generating text embeddings,
// used by context auto-selection to find conversations relevant to a turn.
type EmbeddingProvider interface {
	Generate(text string, taskType string) (*EmbeddingResponse, error)
}

// EmbeddingResponse carries the generated vector.
type EmbeddingResponse struct {
	Values []float32
}

// Task types hint the provider at the embedding's purpose.
const (
	TaskRetrievalQuery    = "RETRIEVAL_QUERY"
	TaskRetrievalDocument = "RETRIEVAL_DOCUMENT"
)
