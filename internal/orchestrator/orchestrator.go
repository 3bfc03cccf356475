package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/promptfabric/internal/postprocess"
	"github.com/kalambet/promptfabric/internal/provider"
	"github.com/kalambet/promptfabric/internal/retrieval"
	"github.com/kalambet/promptfabric/internal/storage"
)

// Fatal pipeline errors. Everything else degrades the response instead of
// aborting it.
var (
	// ErrGenerationUnavailable is returned when the generator backend stays
	// unreachable after the gateway exhausts its retries.
	ErrGenerationUnavailable = errors.New("generation unavailable")

	// ErrEmptyOutput is returned when the generator produced no usable text.
	ErrEmptyOutput = errors.New("generator returned empty output")
)

// Degrade flags attached to responses that succeeded with a non-fatal
// stage failure. Post-processor flags are appended alongside these.
const (
	FlagContextUnavailable = "context_unavailable"
	FlagMemoryUnavailable  = "memory_unavailable"
	FlagRefinerFallback    = "refiner_fallback"
	FlagNotPersisted       = "memory_not_persisted"
)

// generatorSystemPrompt steers the generator model.
const generatorSystemPrompt = `You are a helpful AI assistant.
Provide accurate, well-structured responses based on the given context.`

// MemoryStore is the session log contract the pipeline needs.
type MemoryStore interface {
	CreateSession(id string) (string, error)
	AppendMessage(sessionID string, msg storage.Message) error
	LoadMessages(sessionID string) ([]storage.Message, error)
}

// ContextSearcher performs top-K similarity search over the context index.
type ContextSearcher interface {
	Search(ctx context.Context, query string, k int) ([]retrieval.Match, error)
}

// PromptRefiner rewrites raw input into a structured prompt.
type PromptRefiner interface {
	Refine(ctx context.Context, raw string, history []storage.Message, matches []retrieval.Match) (string, error)
}

// Completer is the generation capability of the provider gateway.
type Completer interface {
	Complete(ctx context.Context, role provider.Role, messages []provider.Message, opts provider.Options) (string, error)
}

// PostProcessor validates and formats generator output.
type PostProcessor interface {
	Process(raw string) (string, []postprocess.Flag)
}

// Request is the input of one chat pipeline run.
type Request struct {
	SessionID   string
	Message     string
	Temperature float64
	MaxTokens   int
}

// Result is the outcome of a successful (possibly degraded) pipeline run.
type Result struct {
	Response   string
	SessionID  string
	Prompt     string // structured prompt sent to the generator
	Flags      []string
	Persisted  bool
	DurationMs int64
}

// Orchestrator sequences the chat pipeline: load memory, retrieve context,
// refine the prompt, generate, post-process, persist. It holds no request
// state and is safe for concurrent use; each call runs independently.
//
// Degrade policy: context retrieval and prompt refinement are best-effort
// (the pipeline continues with empty context or the raw prompt), generation
// is mandatory, and persistence failures never invalidate a computed
// response.
type Orchestrator struct {
	memory    MemoryStore
	retriever ContextSearcher
	refiner   PromptRefiner
	gateway   Completer
	post      PostProcessor
	params    Params
	logger    *slog.Logger
}

// Params are pipeline-wide defaults; per-request values in Request take
// precedence when set.
type Params struct {
	TopK        int
	Temperature float64
	MaxTokens   int
}

func (p Params) withDefaults() Params {
	if p.TopK <= 0 {
		p.TopK = 5
	}
	if p.Temperature <= 0 {
		p.Temperature = 0.7
	}
	if p.MaxTokens <= 0 {
		p.MaxTokens = 2048
	}
	return p
}

// New creates an Orchestrator wired to all pipeline components.
func New(memory MemoryStore, retriever ContextSearcher, ref PromptRefiner, gateway Completer, post PostProcessor, params Params) *Orchestrator {
	return &Orchestrator{
		memory:    memory,
		retriever: retriever,
		refiner:   ref,
		gateway:   gateway,
		post:      post,
		params:    params.withDefaults(),
		logger:    slog.Default(),
	}
}

// HandleChat runs the full pipeline for one user message. The returned
// error is non-nil only for fatal failures (ErrGenerationUnavailable,
// ErrEmptyOutput); every non-fatal stage failure is reported through
// Result.Flags instead. Nothing is persisted for a fatal turn.
func (o *Orchestrator) HandleChat(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	var flags []string

	// Load memory. An unknown session implicitly starts empty; a store
	// failure degrades to an empty history.
	sessionID, err := o.memory.CreateSession(req.SessionID)
	if err != nil {
		o.logger.Warn("memory store unavailable, continuing without history", "error", err)
		sessionID = req.SessionID
		flags = append(flags, FlagMemoryUnavailable)
	}

	var history []storage.Message
	if !contains(flags, FlagMemoryUnavailable) {
		history, err = o.memory.LoadMessages(sessionID)
		if err != nil {
			o.logger.Warn("loading session history failed", "session_id", sessionID, "error", err)
			history = nil
			flags = append(flags, FlagMemoryUnavailable)
		}
	}

	// Retrieve context. Best-effort: an unreachable index must not block
	// the chat.
	matches, err := o.retriever.Search(ctx, req.Message, o.params.TopK)
	if err != nil {
		o.logger.Warn("context retrieval failed, continuing without context", "error", err)
		matches = nil
		flags = append(flags, FlagContextUnavailable)
	}

	// Refine the prompt. On refiner unavailability the raw user text goes
	// to the generator unchanged.
	prompt, err := o.refiner.Refine(ctx, req.Message, history, matches)
	if err != nil {
		o.logger.Warn("prompt refinement failed, using raw prompt", "error", err)
		prompt = req.Message
		flags = append(flags, FlagRefinerFallback)
	}

	// Generate. This is the only stage whose failure aborts the pipeline.
	messages := make([]provider.Message, 0, len(history)+1)
	for _, m := range history {
		messages = append(messages, provider.Message{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, provider.Message{Role: storage.RoleUser, Content: prompt})

	temperature := req.Temperature
	if temperature <= 0 {
		temperature = o.params.Temperature
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = o.params.MaxTokens
	}

	raw, err := o.gateway.Complete(ctx, provider.RoleGenerator, messages, provider.Options{
		Temperature:  temperature,
		MaxTokens:    maxTokens,
		SystemPrompt: generatorSystemPrompt,
	})
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrGenerationUnavailable, err)
	}

	// Post-process. Empty output is fatal; other findings are returned as
	// degrade flags.
	text, pflags := o.post.Process(raw)
	for _, f := range pflags {
		if f == postprocess.FlagEmptyOutput {
			return Result{}, ErrEmptyOutput
		}
		flags = append(flags, string(f))
	}

	// Persist the exchange. Best-effort relative to response delivery: a
	// storage hiccup must not lose a usable answer.
	persisted := o.persistTurn(sessionID, req.Message, text)
	if !persisted {
		flags = append(flags, FlagNotPersisted)
	}

	o.logger.Debug("chat pipeline complete",
		"session_id", sessionID,
		"context_matches", len(matches),
		"flags", flags,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return Result{
		Response:   text,
		SessionID:  sessionID,
		Prompt:     prompt,
		Flags:      flags,
		Persisted:  persisted,
		DurationMs: time.Since(start).Milliseconds(),
	}, nil
}

// persistTurn appends the user and assistant messages, reporting success.
// The user message is stored as typed (raw), the assistant message as the
// post-processed text actually returned.
func (o *Orchestrator) persistTurn(sessionID, userText, assistantText string) bool {
	if err := o.memory.AppendMessage(sessionID, storage.Message{
		Role:       storage.RoleUser,
		Content:    userText,
		Provenance: storage.ProvenanceRaw,
	}); err != nil {
		o.logger.Warn("persisting user message failed", "session_id", sessionID, "error", err)
		return false
	}
	if err := o.memory.AppendMessage(sessionID, storage.Message{
		Role:       storage.RoleAssistant,
		Content:    assistantText,
		Provenance: storage.ProvenancePostProcessed,
	}); err != nil {
		o.logger.Warn("persisting assistant message failed", "session_id", sessionID, "error", err)
		return false
	}
	return true
}

func contains(flags []string, flag string) bool {
	for _, f := range flags {
		if f == flag {
			return true
		}
	}
	return false
}
