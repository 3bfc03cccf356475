package provider

import (
	"context"
	"fmt"
	"time"
)

// Role identifies which configured model a completion request targets.
type Role string

const (
	RoleRefiner   Role = "refiner"
	RoleGenerator Role = "generator"
	RoleValidator Role = "validator"
)

// Kind identifies a supported local inference backend.
type Kind string

const (
	KindOllama   Kind = "ollama"
	KindLMStudio Kind = "lm_studio"
)

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options tune a single completion request.
type Options struct {
	Temperature  float64
	MaxTokens    int
	SystemPrompt string
}

// Provider abstracts an interchangeable local inference backend (Ollama,
// LM Studio, or any future OpenAI-compatible server). Consumers such as the
// refiner stage and the orchestrator use this interface instead of depending
// on a concrete client.
type Provider interface {
	// Complete sends messages to the model configured for role and returns
	// the assistant's response. Transient backend failures are retried with
	// exponential backoff up to the configured attempt ceiling.
	Complete(ctx context.Context, role Role, messages []Message, opts Options) (string, error)

	// HealthCheck reports whether the inference backend is reachable.
	// It never consumes a generation slot.
	HealthCheck(ctx context.Context) bool

	// Name returns the backend kind as a string, for logs and status output.
	Name() string
}

// Embedder is implemented by providers that can produce embedding vectors.
// The retrieval layer depends on this capability, not on Provider itself.
type Embedder interface {
	Embed(ctx context.Context, model string, text string) ([]float32, error)
}

// Models maps each pipeline role to a backend model name. All three roles
// must be set; a partially configured gateway fails at construction rather
// than silently substituting models at request time.
type Models struct {
	Refiner   string
	Generator string
	Validator string
}

// For returns the model name configured for role.
func (m Models) For(role Role) (string, error) {
	switch role {
	case RoleRefiner:
		return m.Refiner, nil
	case RoleGenerator:
		return m.Generator, nil
	case RoleValidator:
		return m.Validator, nil
	}
	return "", fmt.Errorf("unknown model role %q", role)
}

func (m Models) validate() error {
	for role, name := range map[Role]string{
		RoleRefiner:   m.Refiner,
		RoleGenerator: m.Generator,
		RoleValidator: m.Validator,
	} {
		if name == "" {
			return fmt.Errorf("no model configured for role %q", role)
		}
	}
	return nil
}

// Config drives every Provider variant: one endpoint, one model per role,
// and the shared timeout/retry policy. Immutable after construction.
type Config struct {
	Kind           Kind
	BaseURL        string
	Models         Models
	Timeout        time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
}

const (
	defaultTimeout        = 120 * time.Second
	defaultMaxRetries     = 3
	defaultInitialBackoff = 500 * time.Millisecond
)

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = defaultInitialBackoff
	}
	return c
}

// New constructs the Provider variant selected by cfg.Kind.
func New(cfg Config) (Provider, error) {
	if err := cfg.Models.validate(); err != nil {
		return nil, err
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("provider %q: base URL is required", cfg.Kind)
	}

	switch cfg.Kind {
	case KindOllama:
		return NewOllama(cfg), nil
	case KindLMStudio:
		return NewLMStudio(cfg), nil
	}
	return nil, fmt.Errorf("unsupported provider kind %q", cfg.Kind)
}
