package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

var testModels = Models{
	Refiner:   "refiner-model",
	Generator: "generator-model",
	Validator: "validator-model",
}

func testConfig(kind Kind, baseURL string) Config {
	return Config{
		Kind:           kind,
		BaseURL:        baseURL,
		Models:         testModels,
		Timeout:        5 * time.Second,
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
	}
}

func TestNewValidatesModels(t *testing.T) {
	_, err := New(Config{
		Kind:    KindOllama,
		BaseURL: "http://localhost:11434",
		Models:  Models{Generator: "only-generator"},
	})
	if err == nil {
		t.Fatal("expected error for missing role models")
	}
}

func TestNewRequiresBaseURL(t *testing.T) {
	_, err := New(Config{Kind: KindOllama, Models: testModels})
	if err == nil {
		t.Fatal("expected error for missing base URL")
	}
}

func TestNewUnsupportedKind(t *testing.T) {
	_, err := New(Config{Kind: "vllm", BaseURL: "http://x", Models: testModels})
	if err == nil {
		t.Fatal("expected error for unsupported kind")
	}
}

func TestModelsFor(t *testing.T) {
	cases := []struct {
		role Role
		want string
	}{
		{RoleRefiner, "refiner-model"},
		{RoleGenerator, "generator-model"},
		{RoleValidator, "validator-model"},
	}
	for _, tc := range cases {
		got, err := testModels.For(tc.role)
		if err != nil {
			t.Fatalf("For(%s) failed: %v", tc.role, err)
		}
		if got != tc.want {
			t.Errorf("For(%s) = %q, want %q", tc.role, got, tc.want)
		}
	}
	if _, err := testModels.For("unknown"); err == nil {
		t.Fatal("expected error for unknown role")
	}
}

func TestOllamaComplete(t *testing.T) {
	var gotReq ollamaChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		json.NewEncoder(w).Encode(ollamaChatResponse{
			Message: Message{Role: "assistant", Content: "hello back"},
		})
	}))
	defer srv.Close()

	p := NewOllama(testConfig(KindOllama, srv.URL))
	out, err := p.Complete(context.Background(), RoleGenerator,
		[]Message{{Role: "user", Content: "hello"}},
		Options{Temperature: 0.3, MaxTokens: 100, SystemPrompt: "be nice"},
	)
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if out != "hello back" {
		t.Fatalf("unexpected output %q", out)
	}

	if gotReq.Model != "generator-model" {
		t.Errorf("expected generator model, got %q", gotReq.Model)
	}
	if len(gotReq.Messages) != 2 || gotReq.Messages[0].Role != "system" {
		t.Errorf("expected system prompt prepended, got %+v", gotReq.Messages)
	}
	if gotReq.Options["temperature"] != 0.3 || gotReq.Options["num_predict"] != float64(100) {
		t.Errorf("unexpected options %v", gotReq.Options)
	}
	if gotReq.Stream {
		t.Error("streaming must be disabled")
	}
}

func TestOllamaCompleteRetriesTransient(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(ollamaChatResponse{Message: Message{Content: "finally"}})
	}))
	defer srv.Close()

	p := NewOllama(testConfig(KindOllama, srv.URL))
	out, err := p.Complete(context.Background(), RoleGenerator, []Message{{Role: "user", Content: "x"}}, Options{})
	if err != nil {
		t.Fatalf("Complete failed after retries: %v", err)
	}
	if out != "finally" {
		t.Fatalf("unexpected output %q", out)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestOllamaCompleteTerminalNoRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	p := NewOllama(testConfig(KindOllama, srv.URL))
	_, err := p.Complete(context.Background(), RoleGenerator, []Message{{Role: "user", Content: "x"}}, Options{})
	if err == nil {
		t.Fatal("expected error for 400 response")
	}
	if IsTransient(err) {
		t.Fatal("4xx must be terminal")
	}
	if calls.Load() != 1 {
		t.Fatalf("terminal error must not retry, got %d attempts", calls.Load())
	}
}

func TestOllamaCompleteExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewOllama(testConfig(KindOllama, srv.URL))
	_, err := p.Complete(context.Background(), RoleGenerator, []Message{{Role: "user", Content: "x"}}, Options{})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if !IsTransient(err) {
		t.Fatal("exhaustion error must stay transient through wrapping")
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestOllamaHealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewOllama(testConfig(KindOllama, srv.URL))
	if !p.HealthCheck(context.Background()) {
		t.Fatal("expected healthy")
	}

	srv.Close()
	if p.HealthCheck(context.Background()) {
		t.Fatal("expected unhealthy after server close")
	}
}

func TestOllamaEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req ollamaEmbedRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Model != "embed-model" || req.Input != "some text" {
			t.Errorf("unexpected request %+v", req)
		}
		json.NewEncoder(w).Encode(ollamaEmbedResponse{Embeddings: [][]float32{{0.1, 0.2}}})
	}))
	defer srv.Close()

	p := NewOllama(testConfig(KindOllama, srv.URL))
	vec, err := p.Embed(context.Background(), "embed-model", "some text")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vec) != 2 || vec[0] != 0.1 {
		t.Fatalf("unexpected vector %v", vec)
	}
}

func TestLMStudioComplete(t *testing.T) {
	var gotReq chatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "lm studio reply"}},
			},
		})
	}))
	defer srv.Close()

	p := NewLMStudio(testConfig(KindLMStudio, srv.URL))
	out, err := p.Complete(context.Background(), RoleRefiner,
		[]Message{{Role: "user", Content: "refine this"}},
		Options{Temperature: 0.5, MaxTokens: 1024, SystemPrompt: "sys"},
	)
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if out != "lm studio reply" {
		t.Fatalf("unexpected output %q", out)
	}
	if gotReq.Model != "refiner-model" {
		t.Errorf("expected refiner model, got %q", gotReq.Model)
	}
	if gotReq.MaxTokens != 1024 || gotReq.Temperature != 0.5 {
		t.Errorf("unexpected options %+v", gotReq)
	}
}

func TestLMStudioCompleteNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer srv.Close()

	p := NewLMStudio(testConfig(KindLMStudio, srv.URL))
	if _, err := p.Complete(context.Background(), RoleGenerator, []Message{{Role: "user", Content: "x"}}, Options{}); err == nil {
		t.Fatal("expected error for empty choices")
	}
}

func TestLMStudioEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": []float32{1, 2, 3}}},
		})
	}))
	defer srv.Close()

	p := NewLMStudio(testConfig(KindLMStudio, srv.URL))
	vec, err := p.Embed(context.Background(), "embed-model", "text")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vec) != 3 {
		t.Fatalf("unexpected vector %v", vec)
	}
}

func TestWithRetryContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := Config{MaxRetries: 3, InitialBackoff: time.Second}.withDefaults()
	_, err := withRetry(ctx, cfg, func(ctx context.Context) (string, error) {
		return "", markTransient(context.Canceled)
	})
	if err == nil {
		t.Fatal("expected error on cancelled context")
	}
}

func TestClassifyStatus(t *testing.T) {
	if !IsTransient(classifyStatus(429, "")) {
		t.Error("429 must be transient")
	}
	if !IsTransient(classifyStatus(503, "")) {
		t.Error("503 must be transient")
	}
	if IsTransient(classifyStatus(404, "")) {
		t.Error("404 must be terminal")
	}
}
