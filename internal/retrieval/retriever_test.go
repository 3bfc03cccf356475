package retrieval

import (
	"context"
	"fmt"
	"testing"
	"time"
)

// fakeEmbedClient returns canned vectors keyed by text.
type fakeEmbedClient struct {
	vectors map[string][]float32
	err     error
}

func (f *fakeEmbedClient) Embed(ctx context.Context, model, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	vec, ok := f.vectors[text]
	if !ok {
		return nil, fmt.Errorf("no vector for %q", text)
	}
	return vec, nil
}

func TestRetrieverSearch(t *testing.T) {
	vs := newTestVectorStore(t)

	now := time.Now().UTC()
	if err := vs.Insert([]Record{
		{ID: "a", DocID: "d1", Source: "inline", TextChunk: "about go", Embedding: []float32{1, 0}, CreatedAt: now},
		{ID: "b", DocID: "d1", Source: "inline", TextChunk: "about rust", Embedding: []float32{0, 1}, CreatedAt: now},
	}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	client := &fakeEmbedClient{vectors: map[string][]float32{
		"tell me about go": {1, 0},
	}}
	r := NewRetriever(NewEmbedder(client, "test-embed"), vs)

	matches, err := r.Search(context.Background(), "tell me about go", 1)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	if matches[0].Document.ID != "a" {
		t.Fatalf("expected match a, got %s", matches[0].Document.ID)
	}
	if matches[0].Document.Text != "about go" {
		t.Fatalf("unexpected text %q", matches[0].Document.Text)
	}
}

func TestRetrieverDefaultTopK(t *testing.T) {
	vs := newTestVectorStore(t)

	now := time.Now().UTC()
	var records []Record
	for i := 0; i < 8; i++ {
		records = append(records, Record{
			ID:        fmt.Sprintf("r%d", i),
			DocID:     "d1",
			TextChunk: "x",
			Embedding: []float32{1, float32(i) * 0.01},
			CreatedAt: now,
		})
	}
	if err := vs.Insert(records); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	client := &fakeEmbedClient{vectors: map[string][]float32{"q": {1, 0}}}
	r := NewRetriever(NewEmbedder(client, "test-embed"), vs)

	matches, err := r.Search(context.Background(), "q", 0)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(matches) != defaultTopK {
		t.Fatalf("expected default of %d matches, got %d", defaultTopK, len(matches))
	}
}

func TestRetrieverEmbedError(t *testing.T) {
	vs := newTestVectorStore(t)
	client := &fakeEmbedClient{err: fmt.Errorf("backend down")}
	r := NewRetriever(NewEmbedder(client, "test-embed"), vs)

	if _, err := r.Search(context.Background(), "q", 3); err == nil {
		t.Fatal("expected error when embedding fails")
	}
}

func TestEmbedBatch(t *testing.T) {
	client := &fakeEmbedClient{vectors: map[string][]float32{
		"one": {1, 0},
		"two": {0, 1},
	}}
	e := NewEmbedder(client, "test-embed")

	vecs, err := e.EmbedBatch(context.Background(), []string{"one", "two"})
	if err != nil {
		t.Fatalf("EmbedBatch failed: %v", err)
	}
	if len(vecs) != 2 {
		t.Fatalf("expected 2 vectors, got %d", len(vecs))
	}
	if vecs[0][0] != 1 || vecs[1][1] != 1 {
		t.Fatalf("vectors out of order: %v", vecs)
	}

	empty, err := e.EmbedBatch(context.Background(), nil)
	if err != nil || empty != nil {
		t.Fatalf("expected nil, nil for empty input, got %v, %v", empty, err)
	}
}
