package retrieval

import (
	"testing"
	"time"

	"github.com/kalambet/promptfabric/internal/storage"
)

func newTestVectorStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening storage: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return NewSQLiteStore(s.DB())
}

func TestSearchRanksbyScore(t *testing.T) {
	vs := newTestVectorStore(t)

	now := time.Now().UTC()
	records := []Record{
		{ID: "a", DocID: "d1", TextChunk: "exact", Embedding: []float32{1, 0, 0}, CreatedAt: now},
		{ID: "b", DocID: "d1", TextChunk: "close", Embedding: []float32{0.9, 0.1, 0}, CreatedAt: now},
		{ID: "c", DocID: "d2", TextChunk: "far", Embedding: []float32{0, 1, 0}, CreatedAt: now},
	}
	if err := vs.Insert(records); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	results, err := vs.Search([]float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ID != "a" || results[1].ID != "b" {
		t.Fatalf("unexpected order: %s, %s", results[0].ID, results[1].ID)
	}
	if results[0].Score < results[1].Score {
		t.Fatal("scores must be non-increasing")
	}
}

func TestSearchTieBreakMostRecentFirst(t *testing.T) {
	vs := newTestVectorStore(t)

	older := time.Now().UTC().Add(-time.Hour)
	newer := time.Now().UTC()
	records := []Record{
		{ID: "old", DocID: "d1", TextChunk: "same", Embedding: []float32{1, 0}, CreatedAt: older},
		{ID: "new", DocID: "d1", TextChunk: "same", Embedding: []float32{1, 0}, CreatedAt: newer},
	}
	if err := vs.Insert(records); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	results, err := vs.Search([]float32{1, 0}, 2)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ID != "new" {
		t.Fatalf("expected most recent first on tie, got %s", results[0].ID)
	}

	// Tie-break also applies when only one of the equal pair fits in K.
	top, err := vs.Search([]float32{1, 0}, 1)
	if err != nil {
		t.Fatalf("Search k=1 failed: %v", err)
	}
	if len(top) != 1 || top[0].ID != "new" {
		t.Fatalf("expected new to win the single slot, got %+v", top)
	}
}

func TestSearchTieBreakSubsecondTimestamps(t *testing.T) {
	vs := newTestVectorStore(t)

	// RFC3339Nano renders these as ".5Z" and ".52Z"; the shorter string
	// sorts after the longer one even though it is the earlier instant.
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	records := []Record{
		{ID: "early", DocID: "d1", TextChunk: "same", Embedding: []float32{1, 0}, CreatedAt: base.Add(500 * time.Millisecond)},
		{ID: "late", DocID: "d1", TextChunk: "same", Embedding: []float32{1, 0}, CreatedAt: base.Add(520 * time.Millisecond)},
	}
	if err := vs.Insert(records); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	top, err := vs.Search([]float32{1, 0}, 1)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(top) != 1 || top[0].ID != "late" {
		t.Fatalf("expected late to win the single slot, got %+v", top)
	}
}

func TestSearchTieBreakEqualTimestampsByID(t *testing.T) {
	vs := newTestVectorStore(t)

	// One batch insert stamps every record with the same time.
	now := time.Now().UTC()
	records := []Record{
		{ID: "b", DocID: "d1", TextChunk: "same", Embedding: []float32{1, 0}, CreatedAt: now},
		{ID: "a", DocID: "d1", TextChunk: "same", Embedding: []float32{1, 0}, CreatedAt: now},
	}
	if err := vs.Insert(records); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	results, err := vs.Search([]float32{1, 0}, 2)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 2 || results[0].ID != "a" || results[1].ID != "b" {
		t.Fatalf("expected deterministic ID order a, b; got %+v", results)
	}

	top, err := vs.Search([]float32{1, 0}, 1)
	if err != nil {
		t.Fatalf("Search k=1 failed: %v", err)
	}
	if len(top) != 1 || top[0].ID != "a" {
		t.Fatalf("expected a to win the single slot, got %+v", top)
	}
}

func TestSearchKLargerThanIndex(t *testing.T) {
	vs := newTestVectorStore(t)

	if err := vs.Insert([]Record{
		{ID: "only", DocID: "d1", TextChunk: "x", Embedding: []float32{1, 0}, CreatedAt: time.Now().UTC()},
	}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	results, err := vs.Search([]float32{1, 0}, 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected all available records, got %d", len(results))
	}
}

func TestSearchEmptyIndex(t *testing.T) {
	vs := newTestVectorStore(t)

	results, err := vs.Search([]float32{1, 0}, 5)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if results != nil {
		t.Fatalf("expected nil results, got %v", results)
	}
}

func TestSearchZeroQueryVector(t *testing.T) {
	vs := newTestVectorStore(t)

	if err := vs.Insert([]Record{
		{ID: "a", DocID: "d1", TextChunk: "x", Embedding: []float32{1, 0}, CreatedAt: time.Now().UTC()},
	}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	results, err := vs.Search([]float32{0, 0}, 5)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if results != nil {
		t.Fatalf("expected no results for zero vector, got %v", results)
	}
}

func TestDeleteByDoc(t *testing.T) {
	vs := newTestVectorStore(t)

	now := time.Now().UTC()
	if err := vs.Insert([]Record{
		{ID: "a", DocID: "d1", TextChunk: "x", Embedding: []float32{1, 0}, CreatedAt: now},
		{ID: "b", DocID: "d2", TextChunk: "y", Embedding: []float32{0, 1}, CreatedAt: now},
	}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	if err := vs.DeleteByDoc("d1"); err != nil {
		t.Fatalf("DeleteByDoc failed: %v", err)
	}

	count, err := vs.Count()
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 record after delete, got %d", count)
	}
}

func TestEncodeDecodeFloat32s(t *testing.T) {
	in := []float32{0.1, -2.5, 42, 0}
	out, err := decodeFloat32s(encodeFloat32s(in))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("length mismatch: %d vs %d", len(out), len(in))
	}
	for i := range in {
		if in[i] != out[i] {
			t.Errorf("element %d: %f != %f", i, in[i], out[i])
		}
	}

	if _, err := decodeFloat32s([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for truncated blob")
	}
}
