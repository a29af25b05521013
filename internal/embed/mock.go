package embed

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
)

// MockBackend is a test implementation that generates deterministic
// embeddings by hashing the input text. This ensures reproducible vectors
// without a running embedding server.
type MockBackend struct {
	model      string
	dimensions int

	// Fail, when set, is consulted before embedding each batch. Tests use it
	// to inject transient failures.
	Fail func(texts []string) error
}

// NewMockBackend creates a mock embedding backend.
func NewMockBackend(model string, dimensions int) *MockBackend {
	if dimensions <= 0 {
		dimensions = 384 // Standard dimension for sentence transformers
	}
	return &MockBackend{
		model:      model,
		dimensions: dimensions,
	}
}

// Embed generates mock embeddings from a hash of each text.
func (b *MockBackend) Embed(ctx context.Context, texts []string, mode Mode) ([][]float32, error) {
	if b.Fail != nil {
		if err := b.Fail(texts); err != nil {
			return nil, err
		}
	}

	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		hash := sha256.Sum256([]byte(text))

		embedding := make([]float32, b.dimensions)
		for j := 0; j < b.dimensions; j++ {
			offset := (j * 4) % (len(hash) - 4)
			val := binary.BigEndian.Uint32(hash[offset : offset+4])
			// Normalize to [-1, 1] range
			embedding[j] = (float32(val)/float32(1<<32))*2.0 - 1.0
		}

		embeddings[i] = embedding
	}

	return embeddings, nil
}

// Model returns the configured model identifier.
func (b *MockBackend) Model() string {
	return b.model
}

// Dimensions returns the dimensionality of mock embeddings.
func (b *MockBackend) Dimensions() int {
	return b.dimensions
}

// Close is a no-op for the mock backend.
func (b *MockBackend) Close() error {
	return nil
}
