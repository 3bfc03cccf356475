package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kalambet/promptfabric/internal/storage"
)

// maxFetchBytes bounds how much of a remote document is read.
const maxFetchBytes = 10 << 20

// Submission describes one document to ingest. Exactly one of Content,
// Data, or URL supplies the body; Kind tells the service how to extract
// text from Data ("text", "pdf", "html").
type Submission struct {
	Title   string
	Kind    string
	Content string
	Data    []byte
	URL     string
	Tags    []string
}

// DocStore is the persistence contract for submitted documents.
type DocStore interface {
	SaveContextDoc(doc storage.ContextDoc) error
	EnqueueJob(job storage.Job) error
}

// Service accepts documents, extracts their text, and queues them for
// asynchronous embedding by the Worker.
type Service struct {
	store  DocStore
	client *http.Client
}

// NewService creates a Service. A nil client gets a default with a 30s
// timeout for URL fetches.
func NewService(store DocStore, client *http.Client) *Service {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Service{store: store, client: client}
}

// Submit extracts text from the submission, persists the document, and
// enqueues an embed_doc job. The document is searchable once the worker
// finishes embedding it.
func (s *Service) Submit(ctx context.Context, sub Submission) (storage.ContextDoc, error) {
	text, source, err := s.extract(ctx, sub)
	if err != nil {
		return storage.ContextDoc{}, err
	}
	if strings.TrimSpace(text) == "" {
		return storage.ContextDoc{}, fmt.Errorf("submission has no text content")
	}

	tags := "[]"
	if len(sub.Tags) > 0 {
		encoded, err := json.Marshal(sub.Tags)
		if err != nil {
			return storage.ContextDoc{}, fmt.Errorf("encoding tags: %w", err)
		}
		tags = string(encoded)
	}

	doc := storage.ContextDoc{
		ID:        uuid.New().String(),
		Title:     sub.Title,
		Content:   text,
		Source:    source,
		Tags:      tags,
		CreatedAt: time.Now().UTC(),
	}
	if doc.Title == "" {
		doc.Title = source
	}

	if err := s.store.SaveContextDoc(doc); err != nil {
		return storage.ContextDoc{}, fmt.Errorf("saving document: %w", err)
	}

	payload, _ := json.Marshal(embedPayload{ContextDocID: doc.ID})
	job := storage.Job{
		ID:          uuid.New().String(),
		Type:        JobTypeEmbedDoc,
		PayloadJSON: string(payload),
	}
	if err := s.store.EnqueueJob(job); err != nil {
		return storage.ContextDoc{}, fmt.Errorf("enqueueing embed job: %w", err)
	}
	return doc, nil
}

func (s *Service) extract(ctx context.Context, sub Submission) (text, source string, err error) {
	switch {
	case sub.URL != "":
		text, err = s.fetchURL(ctx, sub.URL)
		return text, sub.URL, err
	case len(sub.Data) > 0:
		switch sub.Kind {
		case "pdf":
			text, err = ExtractPDF(sub.Data)
		case "html":
			text, err = ExtractHTML(sub.Data)
		case "", "text":
			text = string(sub.Data)
		default:
			err = fmt.Errorf("unsupported document kind %q", sub.Kind)
		}
		return text, "upload", err
	case sub.Content != "":
		return sub.Content, "inline", nil
	}
	return "", "", fmt.Errorf("submission is empty")
}

func (s *Service) fetchURL(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetching %s: status %d", url, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", url, err)
	}

	ct := resp.Header.Get("Content-Type")
	switch {
	case strings.Contains(ct, "application/pdf"):
		return ExtractPDF(data)
	case strings.Contains(ct, "text/html"):
		return ExtractHTML(data)
	default:
		return string(data), nil
	}
}
