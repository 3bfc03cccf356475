package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/kalambet/promptfabric/internal/retrieval"
	"github.com/kalambet/promptfabric/internal/storage"
)

type fakeJobStore struct {
	job *storage.Job
	doc storage.ContextDoc

	claimErr error
	docErr   error

	completed []string
	failed    map[string]string
	vectorIDs map[string]string
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{
		failed:    make(map[string]string),
		vectorIDs: make(map[string]string),
	}
}

func (f *fakeJobStore) ClaimNextJob(types []string) (*storage.Job, error) {
	if f.claimErr != nil {
		return nil, f.claimErr
	}
	job := f.job
	f.job = nil
	return job, nil
}

func (f *fakeJobStore) CompleteJob(id string) error {
	f.completed = append(f.completed, id)
	return nil
}

func (f *fakeJobStore) FailJob(id, errMsg string) error {
	f.failed[id] = errMsg
	return nil
}

func (f *fakeJobStore) GetContextDoc(id string) (storage.ContextDoc, error) {
	if f.docErr != nil {
		return storage.ContextDoc{}, f.docErr
	}
	return f.doc, nil
}

func (f *fakeJobStore) UpdateContextDocVectorIDs(id, vectorIDsJSON string) error {
	f.vectorIDs[id] = vectorIDsJSON
	return nil
}

type fakeEmbedder struct {
	err   error
	texts []string
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.texts = texts
	vecs := make([][]float32, len(texts))
	for i := range texts {
		vecs[i] = []float32{float32(i), 1}
	}
	return vecs, nil
}

type fakeInserter struct {
	records []retrieval.Record
	err     error
}

func (f *fakeInserter) Insert(records []retrieval.Record) error {
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, records...)
	return nil
}

func embedJob(docID string) *storage.Job {
	payload, _ := json.Marshal(embedPayload{ContextDocID: docID})
	return &storage.Job{ID: "job-1", Type: JobTypeEmbedDoc, PayloadJSON: string(payload)}
}

func TestRunOnceNoJob(t *testing.T) {
	w := NewWorker(newFakeJobStore(), &fakeEmbedder{}, &fakeInserter{}, time.Millisecond)
	done, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if done {
		t.Fatal("empty queue must report no work")
	}
}

func TestRunOnceEmbedsDocument(t *testing.T) {
	store := newFakeJobStore()
	store.job = embedJob("doc-1")
	store.doc = storage.ContextDoc{ID: "doc-1", Source: "inline", Content: "Some text to embed."}
	emb := &fakeEmbedder{}
	ins := &fakeInserter{}

	w := NewWorker(store, emb, ins, time.Millisecond)
	done, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if !done {
		t.Fatal("expected a job to be processed")
	}

	if len(ins.records) != 1 {
		t.Fatalf("expected 1 record inserted, got %d", len(ins.records))
	}
	rec := ins.records[0]
	if rec.DocID != "doc-1" || rec.Source != "inline" || rec.TextChunk != "Some text to embed." {
		t.Errorf("unexpected record %+v", rec)
	}
	if rec.ID == "" {
		t.Error("record must carry a generated id")
	}

	var ids []string
	if err := json.Unmarshal([]byte(store.vectorIDs["doc-1"]), &ids); err != nil {
		t.Fatalf("vector_ids not valid JSON: %v", err)
	}
	if len(ids) != 1 || ids[0] != rec.ID {
		t.Errorf("vector_ids should list the inserted record ids, got %v", ids)
	}

	if len(store.completed) != 1 || store.completed[0] != "job-1" {
		t.Errorf("job should be completed, got %v", store.completed)
	}
	if len(store.failed) != 0 {
		t.Errorf("no failures expected, got %v", store.failed)
	}
}

func TestRunOnceBadPayloadFailsJob(t *testing.T) {
	store := newFakeJobStore()
	store.job = &storage.Job{ID: "job-1", Type: JobTypeEmbedDoc, PayloadJSON: "{not json"}

	w := NewWorker(store, &fakeEmbedder{}, &fakeInserter{}, time.Millisecond)
	done, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if !done {
		t.Fatal("a claimed job counts as processed even when it fails")
	}
	if _, ok := store.failed["job-1"]; !ok {
		t.Fatal("expected job marked failed")
	}
	if len(store.completed) != 0 {
		t.Fatal("failed job must not be completed")
	}
}

func TestRunOnceEmbedFailureFailsJob(t *testing.T) {
	store := newFakeJobStore()
	store.job = embedJob("doc-1")
	store.doc = storage.ContextDoc{ID: "doc-1", Content: "text"}

	w := NewWorker(store, &fakeEmbedder{err: fmt.Errorf("backend down")}, &fakeInserter{}, time.Millisecond)
	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if msg := store.failed["job-1"]; msg == "" {
		t.Fatal("expected job failed with an error message")
	}
}

func TestRunOnceClaimErrorSurfaces(t *testing.T) {
	store := newFakeJobStore()
	store.claimErr = fmt.Errorf("db locked")

	w := NewWorker(store, &fakeEmbedder{}, &fakeInserter{}, time.Millisecond)
	if _, err := w.RunOnce(context.Background()); err == nil {
		t.Fatal("expected claim error to surface")
	}
}
