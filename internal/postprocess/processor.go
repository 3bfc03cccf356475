package postprocess

import (
	"regexp"
	"strings"
)

// Flag marks a structural finding about a generated response. The
// orchestrator decides which flags are fatal and which are returned as
// degraded-quality markers.
type Flag string

const (
	FlagEmptyOutput     Flag = "empty_output"
	FlagOverLength      Flag = "over_length"
	FlagPatternRejected Flag = "pattern_rejected"
	FlagTruncatedTail   Flag = "truncated_tail"
)

// defaultMaxLength caps accepted response size in characters.
const defaultMaxLength = 32768

// defaultPatterns are hallucination markers stripped from responses:
// stock disclaimers the generator fabricates and unfilled citation stubs.
var defaultPatterns = []string{
	`(?im)^as of my knowledge cutoff[^\n]*\n?`,
	`(?im)^i don't know because[^\n]*\n?`,
	`(?im)^this information might be outdated[^\n]*\n?`,
	`(?i)\[(?:citation|source) needed\]`,
}

var collapseNewlines = regexp.MustCompile(`\n{3,}`)

// Processor formats and validates raw generator output. Stateless and safe
// for concurrent use.
type Processor struct {
	maxLength int
	patterns  []*regexp.Regexp
}

// New creates a Processor. maxLength <= 0 uses the default ceiling; a nil
// patterns slice uses the default hallucination marker set, and compiling
// errors surface immediately rather than at request time.
func New(maxLength int, patterns []string) (*Processor, error) {
	if maxLength <= 0 {
		maxLength = defaultMaxLength
	}
	if patterns == nil {
		patterns = defaultPatterns
	}

	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, re)
	}
	return &Processor{maxLength: maxLength, patterns: compiled}, nil
}

// Process formats raw output and reports structural findings. It never
// fails: an empty result is reported via FlagEmptyOutput and the caller
// applies policy.
func (p *Processor) Process(raw string) (string, []Flag) {
	var flags []Flag

	text := collapseNewlines.ReplaceAllString(raw, "\n\n")
	text = strings.TrimSpace(text)

	// Strip recognized hallucination markers.
	for _, re := range p.patterns {
		if re.MatchString(text) {
			text = strings.TrimSpace(re.ReplaceAllString(text, ""))
			flags = append(flags, FlagPatternRejected)
		}
	}

	// Trim a dangling sentence fragment left by a truncated generation.
	if trimmed, ok := trimIncompleteTail(text); ok {
		text = trimmed
		flags = append(flags, FlagTruncatedTail)
	}

	if text == "" {
		return "", append(flags, FlagEmptyOutput)
	}

	if len(text) > p.maxLength {
		flags = append(flags, FlagOverLength)
	}

	return text, flags
}

// sentence terminators that mark a complete trailing sentence.
const terminators = ".!?"

// trimIncompleteTail removes an unterminated trailing sentence fragment.
// Code blocks and short outputs are left alone: trimming only happens when
// a terminator exists earlier in the text and the dangling tail is a small
// fraction of the whole.
func trimIncompleteTail(text string) (string, bool) {
	if text == "" {
		return text, false
	}
	if strings.HasSuffix(text, "```") {
		return text, false
	}
	last := text[len(text)-1]
	if strings.IndexByte(terminators, last) >= 0 || last == ':' || last == '"' || last == ')' {
		return text, false
	}

	cut := strings.LastIndexAny(text, terminators)
	if cut < 0 {
		return text, false
	}

	tail := text[cut+1:]
	// A long tail is more likely a deliberate unpunctuated ending (list
	// item, heading) than a truncation artifact.
	if len(tail) > len(text)/4 {
		return text, false
	}

	return strings.TrimSpace(text[:cut+1]), true
}
