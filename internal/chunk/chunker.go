// Package chunk splits document text into overlapping, token-bounded chunks
// suitable for embedding.
package chunk

import (
	"fmt"
	"strings"

	"github.com/runeset/semidx/internal/document"
)

// Chunk is a bounded slice of a document's text submitted to the embedding
// backend as one unit. Chunks of a document are ordered by Index.
type Chunk struct {
	ID          string            // documentID#index
	DocumentID  string            // owning document
	Index       int               // position within the document's chunk set
	Text        string            // chunk text
	Tokens      int               // estimated token count
	StartOffset int               // byte offset of Text within the document
	EndOffset   int               // byte offset one past the end of Text
	Metadata    map[string]string // language, path, parent dir
}

// ID computes the chunk identifier for a document and index.
func ID(documentID string, index int) string {
	return fmt.Sprintf("%s#%d", documentID, index)
}

// Chunker splits text into chunks of at most maxTokens with a configurable
// overlap between consecutive chunks.
type Chunker struct {
	maxTokens    int
	minTokens    int
	overlapRatio float64
}

// NewChunker creates a chunker. Chunks shorter than minTokens are merged into
// their preceding neighbor; overlapRatio is the fraction of maxTokens
// repeated between consecutive chunks.
func NewChunker(maxTokens, minTokens int, overlapRatio float64) *Chunker {
	return &Chunker{
		maxTokens:    maxTokens,
		minTokens:    minTokens,
		overlapRatio: overlapRatio,
	}
}

// Split chunks a document. Boundaries prefer, in order, a paragraph break, a
// sentence end, a line break, then a space, searched within the trailing
// overlap window so chunks end on natural seams when possible.
func (c *Chunker) Split(doc *document.Document) []Chunk {
	content := doc.Content
	if strings.TrimSpace(content) == "" {
		return nil
	}

	maxBytes := c.maxTokens * bytesPerToken
	overlapBytes := int(float64(maxBytes) * c.overlapRatio)

	var spans []span
	start := 0
	for start < len(content) {
		end := start + maxBytes
		if end >= len(content) {
			spans = append(spans, span{start: start, end: len(content)})
			break
		}

		// Prefer a natural boundary inside the trailing overlap window.
		if cut := findBoundary(content, end-overlapBytes, end); cut > start {
			end = cut
		}
		spans = append(spans, span{start: start, end: end})

		next := end - overlapBytes
		if next <= start {
			next = start + 1
		}
		start = next
	}

	spans = c.mergeShort(content, spans)

	chunks := make([]Chunk, 0, len(spans))
	for i, s := range spans {
		text := content[s.start:s.end]
		chunks = append(chunks, Chunk{
			ID:          ID(doc.ID, i),
			DocumentID:  doc.ID,
			Index:       i,
			Text:        text,
			Tokens:      EstimateTokens(text),
			StartOffset: s.start,
			EndOffset:   s.end,
			Metadata: map[string]string{
				"path":       doc.AbsPath,
				"language":   doc.Language,
				"parent_dir": doc.Metadata["parent_dir"],
			},
		})
	}
	return chunks
}

type span struct {
	start, end int
}

// mergeShort folds spans under minTokens into their preceding neighbor so no
// fragment too small to embed usefully survives on its own.
func (c *Chunker) mergeShort(content string, spans []span) []span {
	if len(spans) < 2 {
		return spans
	}

	merged := spans[:0]
	for _, s := range spans {
		if len(merged) > 0 && EstimateTokens(content[s.start:s.end]) < c.minTokens {
			merged[len(merged)-1].end = s.end
			continue
		}
		merged = append(merged, s)
	}
	return merged
}

// findBoundary returns the best cut position in content within (lo, hi], or
// -1 when the window holds no seam. Paragraph breaks beat sentence ends beat
// line breaks beat spaces.
func findBoundary(content string, lo, hi int) int {
	if lo < 0 {
		lo = 0
	}
	window := content[lo:hi]

	if idx := strings.LastIndex(window, "\n\n"); idx >= 0 {
		return lo + idx + 2
	}
	for _, seam := range []string{". ", ".\n", "! ", "? "} {
		if idx := strings.LastIndex(window, seam); idx >= 0 {
			return lo + idx + len(seam)
		}
	}
	if idx := strings.LastIndex(window, "\n"); idx >= 0 {
		return lo + idx + 1
	}
	if idx := strings.LastIndex(window, " "); idx >= 0 {
		return lo + idx + 1
	}
	return -1
}

// bytesPerToken is the rough approximation used throughout: 1 token ≈ 4 chars.
const bytesPerToken = 4

// EstimateTokens estimates token count for text.
func EstimateTokens(text string) int {
	return len(text) / bytesPerToken
}
