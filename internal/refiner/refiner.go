package refiner

import (
	"context"
	"fmt"
	"strings"

	"github.com/kalambet/promptfabric/internal/provider"
	"github.com/kalambet/promptfabric/internal/retrieval"
	"github.com/kalambet/promptfabric/internal/storage"
)

// systemPrompt steers the refiner model.
const systemPrompt = `You are a prompt refinement expert.
Your task is to convert user prompts into optimized, structured prompts
that will produce better results from an LLM.
Include relevant context, formatting, and structure.`

// Completer is the completion capability the refiner needs from the
// provider gateway.
type Completer interface {
	Complete(ctx context.Context, role provider.Role, messages []provider.Message, opts provider.Options) (string, error)
}

// Refiner rewrites raw user input into a structured instruction prompt
// using the fast refiner model. It is stateless and safe for concurrent use.
type Refiner struct {
	client   Completer
	maxChars int
}

// New creates a Refiner. maxChars bounds the serialized refinement prompt;
// values <= 0 use the default budget.
func New(client Completer, maxChars int) *Refiner {
	if maxChars <= 0 {
		maxChars = defaultMaxPromptChars
	}
	return &Refiner{client: client, maxChars: maxChars}
}

// Refine asks the refiner model to rewrite raw into a structured prompt,
// embedding conversation history and retrieved context into a bounded
// deterministic template. The error is returned as-is; falling back to the
// raw text on refiner unavailability is the caller's policy.
func (r *Refiner) Refine(ctx context.Context, raw string, history []storage.Message, matches []retrieval.Match) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", fmt.Errorf("empty prompt")
	}

	prompt := BuildPrompt(raw, history, matches, r.maxChars)

	out, err := r.client.Complete(ctx, provider.RoleRefiner,
		[]provider.Message{{Role: "user", Content: prompt}},
		provider.Options{
			Temperature:  0.5,
			MaxTokens:    1024,
			SystemPrompt: systemPrompt,
		},
	)
	if err != nil {
		return "", fmt.Errorf("refining prompt: %w", err)
	}

	refined := strings.TrimSpace(out)
	if refined == "" {
		return "", fmt.Errorf("refiner returned empty output")
	}
	return refined, nil
}
