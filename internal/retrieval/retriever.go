package retrieval

import (
	"context"
	"time"
)

// defaultTopK is used when a caller passes k <= 0.
const defaultTopK = 5

// Document is a read-only view of an indexed context chunk.
type Document struct {
	ID        string
	Text      string
	Source    string
	CreatedAt time.Time
}

// Match pairs a Document with its similarity score for one query.
// Produced transiently per search; never persisted.
type Match struct {
	Document Document
	Score    float32
}

// Retriever combines embedding and vector search to find relevant context.
type Retriever struct {
	embedder *Embedder
	store    VectorStore
}

// NewRetriever creates a Retriever backed by the given Embedder and VectorStore.
func NewRetriever(embedder *Embedder, store VectorStore) *Retriever {
	return &Retriever{embedder: embedder, store: store}
}

// Search embeds the query and returns up to k matches ordered by score
// descending, most recently ingested first on ties. k <= 0 falls back to
// the default of 5; k larger than the index returns everything available.
func (r *Retriever) Search(ctx context.Context, query string, k int) ([]Match, error) {
	if k <= 0 {
		k = defaultTopK
	}

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	scored, err := r.store.Search(vec, k)
	if err != nil {
		return nil, err
	}

	matches := make([]Match, len(scored))
	for i, s := range scored {
		matches[i] = Match{
			Document: Document{
				ID:        s.ID,
				Text:      s.TextChunk,
				Source:    s.Source,
				CreatedAt: s.CreatedAt,
			},
			Score: s.Score,
		}
	}
	return matches, nil
}
