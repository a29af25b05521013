package embed

import "context"

// Mode specifies the type of embedding to generate.
type Mode string

const (
	// ModeQuery generates embeddings optimized for search queries.
	// Use this when embedding user questions or search terms.
	ModeQuery Mode = "query"

	// ModePassage generates embeddings optimized for document passages.
	// Use this when embedding chunks of indexed content.
	ModePassage Mode = "passage"
)

// Backend defines the interface for embedding text into vectors.
// Implementations may use a local embedding server, remote APIs, or a
// deterministic mock.
type Backend interface {
	// Embed converts a slice of text strings into their vector
	// representations. The mode parameter specifies whether embeddings are
	// for queries or passages. Returned vectors are in input order.
	Embed(ctx context.Context, texts []string, mode Mode) ([][]float32, error)

	// Model returns the model identifier used by this backend. Queries must
	// be embedded with the same model used at ingestion; the model name is
	// recorded in the vector store for that check.
	Model() string

	// Dimensions returns the dimensionality of produced vectors.
	Dimensions() int

	// Close releases any resources held by the backend.
	Close() error
}

// New constructs a Backend for the given provider name.
func New(provider, endpoint, model string, dimensions int) Backend {
	switch provider {
	case "mock":
		return NewMockBackend(model, dimensions)
	default:
		return NewHTTPBackend(endpoint, model, dimensions)
	}
}
