package retrieval

import "time"

// VectorStore is the interface for vector storage and similarity search
// backends. The default implementation uses SQLite with brute-force cosine
// similarity; ANN-capable backends (Qdrant, Chroma) can replace it behind
// the same contract.
type VectorStore interface {
	// Insert adds records to the index.
	Insert(records []Record) error

	// Search returns the top-K records most similar to vector, highest
	// score first. Equal scores order by most recently ingested first.
	Search(vector []float32, topK int) ([]ScoredRecord, error)

	// DeleteByDoc removes all records belonging to a source document.
	DeleteByDoc(docID string) error

	// Count returns the number of records in the index.
	Count() (int, error)
}

// Record is an embedded text chunk in the vector index.
type Record struct {
	ID        string
	DocID     string
	Source    string
	TextChunk string
	Embedding []float32
	CreatedAt time.Time
}

// ScoredRecord is a Record with a similarity score attached.
type ScoredRecord struct {
	Record
	Score float32
}
