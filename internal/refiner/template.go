package refiner

import (
	"fmt"
	"strings"

	"github.com/kalambet/promptfabric/internal/retrieval"
	"github.com/kalambet/promptfabric/internal/storage"
)

// defaultMaxPromptChars bounds the serialized refinement prompt. Roughly
// 2000 tokens at the 4 chars/token heuristic.
const defaultMaxPromptChars = 8000

const instructionHeader = "Refine the following user prompt to produce better LLM responses."

const refinementDirectives = `Provide a refined, well-structured prompt that:
1. Clearly defines the task
2. Specifies desired format/style
3. Includes relevant constraints
4. Adds helpful context if needed

Refined prompt:`

// BuildPrompt deterministically renders the refinement instruction from the
// raw user text, prior conversation, and retrieved context. When the result
// exceeds maxChars, oldest history entries are dropped first, then the
// lowest-ranked context matches; the raw prompt itself is never dropped.
// Identical inputs always produce identical output.
func BuildPrompt(raw string, history []storage.Message, matches []retrieval.Match, maxChars int) string {
	if maxChars <= 0 {
		maxChars = defaultMaxPromptChars
	}

	for {
		prompt := render(raw, history, matches)
		if len(prompt) <= maxChars {
			return prompt
		}
		if len(history) > 0 {
			// Oldest first; the most recent user turn is the raw prompt
			// and is not part of history.
			history = history[1:]
			continue
		}
		if len(matches) > 0 {
			// Matches arrive ordered best-first; drop from the tail.
			matches = matches[:len(matches)-1]
			continue
		}
		return prompt
	}
}

func render(raw string, history []storage.Message, matches []retrieval.Match) string {
	var sb strings.Builder
	sb.WriteString(instructionHeader)
	sb.WriteString("\n\nOriginal prompt: ")
	sb.WriteString(raw)
	sb.WriteString("\n")

	if len(history) > 0 {
		sb.WriteString("\n[Conversation so far]\n")
		for _, m := range history {
			sb.WriteString(m.Role)
			sb.WriteString(": ")
			sb.WriteString(m.Content)
			sb.WriteString("\n")
		}
	}

	if len(matches) > 0 {
		sb.WriteString("\n[Retrieved context]\n")
		for _, match := range matches {
			fmt.Fprintf(&sb, "(score %.2f, source %s)\n%s\n", match.Score, match.Document.Source, match.Document.Text)
		}
	}

	sb.WriteString("\n")
	sb.WriteString(refinementDirectives)
	return sb.String()
}
