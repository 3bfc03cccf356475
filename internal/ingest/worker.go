package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kalambet/promptfabric/internal/retrieval"
	"github.com/kalambet/promptfabric/internal/storage"
)

// JobTypeEmbedDoc labels the queue entries the worker processes.
const JobTypeEmbedDoc = "embed_doc"

// JobStore abstracts the job queue and document operations the worker uses.
type JobStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
	GetContextDoc(id string) (storage.ContextDoc, error)
	UpdateContextDocVectorIDs(id, vectorIDsJSON string) error
}

// ContentEmbedder generates embedding vectors for text chunks.
type ContentEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorInserter inserts records into the vector index.
type VectorInserter interface {
	Insert(records []retrieval.Record) error
}

// Worker processes embed_doc jobs from the SQLite job queue: it chunks the
// document, embeds every chunk, and indexes the vectors. Embedding runs out
// of band so document submission stays fast even when the backend is slow.
type Worker struct {
	store    JobStore
	embedder ContentEmbedder
	vectors  VectorInserter
	poll     time.Duration
	logger   *slog.Logger
}

// NewWorker creates a Worker with the given dependencies.
// If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, embedder ContentEmbedder, vectors VectorInserter, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:    store,
		embedder: embedder,
		vectors:  vectors,
		poll:     pollInterval,
		logger:   slog.Default(),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single embed_doc job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{JobTypeEmbedDoc})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("job failed", "job_id", job.ID, "error", err)
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

type embedPayload struct {
	ContextDocID string `json:"context_doc_id"`
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var payload embedPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}

	doc, err := w.store.GetContextDoc(payload.ContextDocID)
	if err != nil {
		return fmt.Errorf("loading context doc %s: %w", payload.ContextDocID, err)
	}

	chunks := Chunk(doc.Content, 0, 0)
	if len(chunks) == 0 {
		return fmt.Errorf("document %s has no content to embed", doc.ID)
	}

	vectors, err := w.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return fmt.Errorf("embedding %d chunks: %w", len(chunks), err)
	}

	now := time.Now().UTC()
	records := make([]retrieval.Record, len(chunks))
	ids := make([]string, len(chunks))
	for i, chunk := range chunks {
		id := uuid.New().String()
		ids[i] = id
		records[i] = retrieval.Record{
			ID:        id,
			DocID:     doc.ID,
			Source:    doc.Source,
			TextChunk: chunk,
			Embedding: vectors[i],
			CreatedAt: now,
		}
	}

	if err := w.vectors.Insert(records); err != nil {
		return fmt.Errorf("inserting %d vectors: %w", len(records), err)
	}

	idsJSON, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("encoding vector ids: %w", err)
	}
	if err := w.store.UpdateContextDocVectorIDs(doc.ID, string(idsJSON)); err != nil {
		return fmt.Errorf("updating vector_ids: %w", err)
	}

	w.logger.Info("document embedded", "doc_id", doc.ID, "chunks", len(chunks))
	return nil
}
