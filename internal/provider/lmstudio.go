package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// LMStudio communicates with an LM Studio server through its
// OpenAI-compatible REST API.
type LMStudio struct {
	cfg        Config
	baseURL    string
	httpClient *http.Client
}

// NewLMStudio creates an LM Studio provider from cfg.
func NewLMStudio(cfg Config) *LMStudio {
	cfg = cfg.withDefaults()
	return &LMStudio{
		cfg:        cfg,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: 0},
	}
}

func (p *LMStudio) Name() string { return string(KindLMStudio) }

// chatCompletionRequest is the JSON body for POST /v1/chat/completions.
type chatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Stream      bool      `json:"stream"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
}

func (p *LMStudio) Complete(ctx context.Context, role Role, messages []Message, opts Options) (string, error) {
	model, err := p.cfg.Models.For(role)
	if err != nil {
		return "", err
	}

	full := messages
	if opts.SystemPrompt != "" {
		full = append([]Message{{Role: "system", Content: opts.SystemPrompt}}, messages...)
	}

	body, err := json.Marshal(chatCompletionRequest{
		Model:       model,
		Messages:    full,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		Stream:      false,
	})
	if err != nil {
		return "", err
	}

	return withRetry(ctx, p.cfg, func(ctx context.Context) (string, error) {
		return p.doChat(ctx, body)
	})
}

func (p *LMStudio) doChat(ctx context.Context, body []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", markTransient(fmt.Errorf("chat request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", classifyStatus(resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var result chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding chat response: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("chat: response contains no choices")
	}
	return result.Choices[0].Message.Content, nil
}

// HealthCheck returns true if the server responds to GET /v1/models with 200.
func (p *LMStudio) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/v1/models", nil)
	if err != nil {
		return false
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// embeddingRequest is the JSON body for POST /v1/embeddings.
type embeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed returns the embedding vector for the given text using the specified model.
func (p *LMStudio) Embed(ctx context.Context, model string, text string) ([]float32, error) {
	body, err := json.Marshal(embeddingRequest{Model: model, Input: text})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating embeddings request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embeddings request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embeddings: unexpected status %d", resp.StatusCode)
	}

	var result embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding embeddings response: %w", err)
	}
	if len(result.Data) == 0 {
		return nil, fmt.Errorf("embeddings: empty data array")
	}
	return result.Data[0].Embedding, nil
}
