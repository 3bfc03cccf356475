package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/promptfabric/internal/hardware"
	"github.com/kalambet/promptfabric/internal/ingest"
	"github.com/kalambet/promptfabric/internal/orchestrator"
	"github.com/kalambet/promptfabric/internal/provider"
	"github.com/kalambet/promptfabric/internal/retrieval"
	"github.com/kalambet/promptfabric/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// ChatPipeline is the orchestrator surface the HTTP layer depends on.
type ChatPipeline interface {
	HandleChat(ctx context.Context, req orchestrator.Request) (orchestrator.Result, error)
}

// PromptRefiner rewrites a raw prompt into a structured one.
type PromptRefiner interface {
	Refine(ctx context.Context, raw string, history []storage.Message, matches []retrieval.Match) (string, error)
}

// ContextSearcher runs similarity search over the context index.
type ContextSearcher interface {
	Search(ctx context.Context, query string, k int) ([]retrieval.Match, error)
}

// DocumentIngestor accepts documents for asynchronous indexing.
type DocumentIngestor interface {
	Submit(ctx context.Context, sub ingest.Submission) (storage.ContextDoc, error)
}

// VectorPurger removes a document's vectors from the index.
type VectorPurger interface {
	DeleteByDoc(docID string) error
}

// Deps holds everything the HTTP API needs. Providers lists every configured
// backend for status probing; Active names the one serving completions.
type Deps struct {
	Pipeline       ChatPipeline
	Refiner        PromptRefiner
	Searcher       ContextSearcher
	Ingestor       DocumentIngestor
	Vectors        VectorPurger
	Store          *storage.Store
	Providers      map[provider.Kind]provider.Provider
	Active         provider.Kind
	GeneratorModel string
}

// NewHandler returns the REST API handler.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)
	r.Post("/chat", handleChat(deps))
	r.Post("/prompt/refine", handleRefine(deps))
	r.Post("/context/search", handleContextSearch(deps))
	r.Post("/context/documents", handleContextSubmit(deps))
	r.Get("/context/documents", handleContextList(deps))
	r.Delete("/context/documents/{docID}", handleContextDelete(deps))
	r.Post("/memory", handleMemoryCreate(deps))
	r.Get("/memory/{sessionID}", handleMemoryGet(deps))
	r.Post("/memory/{sessionID}", handleMemoryCreateAt(deps))
	r.Post("/memory/{sessionID}/messages", handleMemoryAppend(deps))
	r.Delete("/memory/{sessionID}", handleMemoryDelete(deps))
	r.Get("/hardware/detect", handleHardwareDetect)
	r.Get("/llm/status", handleLLMStatus(deps))

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

type chatRequest struct {
	Message     string  `json:"message"`
	SessionID   string  `json:"session_id"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}

type chatResponse struct {
	Response      string   `json:"response"`
	SessionID     string   `json:"session_id"`
	Model         string   `json:"model"`
	Flags         []string `json:"flags"`
	RefinedPrompt string   `json:"refined_prompt"`
	Persisted     bool     `json:"persisted"`
	DurationMs    int64    `json:"duration_ms"`
}

func handleChat(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Message == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "message is required")
			return
		}

		result, err := deps.Pipeline.HandleChat(r.Context(), orchestrator.Request{
			SessionID:   req.SessionID,
			Message:     req.Message,
			Temperature: req.Temperature,
			MaxTokens:   req.MaxTokens,
		})
		if err != nil {
			switch {
			case errors.Is(err, orchestrator.ErrEmptyOutput):
				httpError(w, http.StatusUnprocessableEntity, "empty_output", "%v", err)
			case errors.Is(err, orchestrator.ErrGenerationUnavailable):
				httpError(w, http.StatusBadGateway, "generation_unavailable", "%v", err)
			default:
				httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
			}
			return
		}

		flags := result.Flags
		if flags == nil {
			flags = []string{}
		}
		writeJSON(w, http.StatusOK, chatResponse{
			Response:      result.Response,
			SessionID:     result.SessionID,
			Model:         deps.GeneratorModel,
			Flags:         flags,
			RefinedPrompt: result.Prompt,
			Persisted:     result.Persisted,
			DurationMs:    result.DurationMs,
		})
	}
}

type refineRequest struct {
	Prompt    string `json:"prompt"`
	SessionID string `json:"session_id"`
	TopK      int    `json:"top_k"`
}

func handleRefine(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req refineRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Prompt == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "prompt is required")
			return
		}

		var history []storage.Message
		if req.SessionID != "" {
			var err error
			history, err = deps.Store.LoadMessages(req.SessionID)
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "loading session history: %v", err)
				return
			}
		}

		// Context search is best-effort here, same as in the chat pipeline.
		matches, err := deps.Searcher.Search(r.Context(), req.Prompt, req.TopK)
		if err != nil {
			matches = nil
		}

		refined, err := deps.Refiner.Refine(r.Context(), req.Prompt, history, matches)
		if err != nil {
			httpError(w, http.StatusBadGateway, "refiner_unavailable", "refining prompt: %v", err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{
			"original_prompt": req.Prompt,
			"refined_prompt":  refined,
		})
	}
}

type searchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

type searchResult struct {
	ID        string  `json:"id"`
	Text      string  `json:"text"`
	Source    string  `json:"source"`
	Score     float32 `json:"score"`
	CreatedAt string  `json:"created_at"`
}

func handleContextSearch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req searchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Query == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "query is required")
			return
		}

		matches, err := deps.Searcher.Search(r.Context(), req.Query, req.TopK)
		if err != nil {
			httpError(w, http.StatusBadGateway, "retrieval_unavailable", "searching context: %v", err)
			return
		}

		results := make([]searchResult, len(matches))
		for i, m := range matches {
			results[i] = searchResult{
				ID:        m.Document.ID,
				Text:      m.Document.Text,
				Source:    m.Document.Source,
				Score:     m.Score,
				CreatedAt: m.Document.CreatedAt.Format(time.RFC3339),
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"results": results})
	}
}

type submitRequest struct {
	Title   string   `json:"title"`
	Content string   `json:"content"`
	URL     string   `json:"url"`
	Kind    string   `json:"kind"`
	Data    []byte   `json:"data"` // base64 in JSON
	Tags    []string `json:"tags"`
}

func handleContextSubmit(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, 16<<20)
		defer r.Body.Close()

		var req submitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		doc, err := deps.Ingestor.Submit(r.Context(), ingest.Submission{
			Title:   req.Title,
			Content: req.Content,
			URL:     req.URL,
			Kind:    req.Kind,
			Data:    req.Data,
			Tags:    req.Tags,
		})
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "submitting document: %v", err)
			return
		}

		writeJSON(w, http.StatusAccepted, map[string]string{
			"id":     doc.ID,
			"title":  doc.Title,
			"source": doc.Source,
		})
	}
}

type docView struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Source    string `json:"source"`
	Tags      string `json:"tags"`
	CreatedAt string `json:"created_at"`
}

func handleContextList(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if raw := r.URL.Query().Get("limit"); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil && n > 0 {
				limit = n
			}
		}

		docs, err := deps.Store.ListContextDocs(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing documents: %v", err)
			return
		}

		views := make([]docView, len(docs))
		for i, d := range docs {
			views[i] = docView{
				ID:        d.ID,
				Title:     d.Title,
				Source:    d.Source,
				Tags:      d.Tags,
				CreatedAt: d.CreatedAt.Format(time.RFC3339),
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"documents": views})
	}
}

func handleContextDelete(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		docID := chi.URLParam(r, "docID")

		// Vectors first so a failed doc delete never strands a searchable
		// chunk pointing at a missing document.
		if err := deps.Vectors.DeleteByDoc(docID); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "deleting vectors: %v", err)
			return
		}
		if err := deps.Store.DeleteContextDoc(docID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				httpError(w, http.StatusNotFound, "not_found", "document %q not found", docID)
				return
			}
			httpError(w, http.StatusInternalServerError, "api_error", "deleting document: %v", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleMemoryCreate(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req struct {
			SessionID string `json:"session_id"`
		}
		// An empty body is fine; the store generates an ID.
		_ = json.NewDecoder(r.Body).Decode(&req)

		id, err := deps.Store.CreateSession(req.SessionID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "creating session: %v", err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"session_id": id})
	}
}

// handleMemoryCreateAt creates a session under a caller-chosen ID. The body
// is ignored; creating an existing session succeeds and keeps its messages.
func handleMemoryCreateAt(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "sessionID")

		id, err := deps.Store.CreateSession(sessionID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "creating session: %v", err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"session_id": id})
	}
}

type messageView struct {
	ID         string `json:"id"`
	Role       string `json:"role"`
	Content    string `json:"content"`
	Provenance string `json:"provenance"`
	CreatedAt  string `json:"created_at"`
}

func handleMemoryGet(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "sessionID")

		if _, err := deps.Store.GetSession(sessionID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				httpError(w, http.StatusNotFound, "not_found", "session %q not found", sessionID)
				return
			}
			httpError(w, http.StatusInternalServerError, "api_error", "loading session: %v", err)
			return
		}

		msgs, err := deps.Store.LoadMessages(sessionID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "loading messages: %v", err)
			return
		}

		views := make([]messageView, len(msgs))
		for i, m := range msgs {
			views[i] = messageView{
				ID:         m.ID,
				Role:       m.Role,
				Content:    m.Content,
				Provenance: m.Provenance,
				CreatedAt:  m.CreatedAt.Format(time.RFC3339),
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"session_id":  sessionID,
			"messages":    views,
			"total_count": len(views),
		})
	}
}

type appendRequest struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func handleMemoryAppend(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "sessionID")

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req appendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Content == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "content is required")
			return
		}
		switch req.Role {
		case storage.RoleUser, storage.RoleAssistant, storage.RoleSystem:
		default:
			httpError(w, http.StatusBadRequest, "invalid_request_error", "role must be user, assistant, or system")
			return
		}

		if err := deps.Store.AppendMessage(sessionID, storage.Message{
			Role:       req.Role,
			Content:    req.Content,
			Provenance: storage.ProvenanceRaw,
		}); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "appending message: %v", err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"session_id": sessionID})
	}
}

func handleMemoryDelete(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "sessionID")

		if err := deps.Store.DeleteSession(sessionID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				httpError(w, http.StatusNotFound, "not_found", "session %q not found", sessionID)
				return
			}
			httpError(w, http.StatusInternalServerError, "api_error", "deleting session: %v", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleHardwareDetect(w http.ResponseWriter, r *http.Request) {
	profile := hardware.Detect()
	writeJSON(w, http.StatusOK, map[string]any{
		"profile":        profile,
		"recommendation": hardware.Recommend(profile),
	})
}

type backendStatus struct {
	Reachable bool `json:"reachable"`
}

func handleLLMStatus(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		statuses := make(map[string]backendStatus, len(deps.Providers))
		var mu sync.Mutex

		g, ctx := errgroup.WithContext(r.Context())
		for kind, p := range deps.Providers {
			g.Go(func() error {
				ok := p.HealthCheck(ctx)
				mu.Lock()
				statuses[string(kind)] = backendStatus{Reachable: ok}
				mu.Unlock()
				return nil
			})
		}
		// Probes never return errors; unreachable backends report false.
		_ = g.Wait()

		writeJSON(w, http.StatusOK, map[string]any{
			"active":   string(deps.Active),
			"backends": statuses,
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
