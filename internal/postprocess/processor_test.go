package postprocess

import (
	"strings"
	"testing"
)

func newProcessor(t *testing.T) *Processor {
	t.Helper()
	p, err := New(0, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return p
}

func hasFlag(flags []Flag, want Flag) bool {
	for _, f := range flags {
		if f == want {
			return true
		}
	}
	return false
}

func TestProcessPassesCleanText(t *testing.T) {
	p := newProcessor(t)

	text, flags := p.Process("A complete, clean answer.")
	if text != "A complete, clean answer." {
		t.Fatalf("unexpected text %q", text)
	}
	if len(flags) != 0 {
		t.Fatalf("expected no flags, got %v", flags)
	}
}

func TestProcessCollapsesNewlines(t *testing.T) {
	p := newProcessor(t)

	text, _ := p.Process("First paragraph.\n\n\n\n\nSecond paragraph.")
	if strings.Contains(text, "\n\n\n") {
		t.Fatalf("runs of newlines should collapse, got %q", text)
	}
}

func TestProcessStripsHallucinationMarkers(t *testing.T) {
	p := newProcessor(t)

	in := "As of my knowledge cutoff in 2023, things changed.\nThe real answer is 42. [citation needed]"
	text, flags := p.Process(in)
	if strings.Contains(strings.ToLower(text), "knowledge cutoff") {
		t.Errorf("cutoff disclaimer should be stripped, got %q", text)
	}
	if strings.Contains(text, "[citation needed]") {
		t.Errorf("citation stub should be stripped, got %q", text)
	}
	if !hasFlag(flags, FlagPatternRejected) {
		t.Errorf("expected pattern_rejected flag, got %v", flags)
	}
	if !strings.Contains(text, "The real answer is 42.") {
		t.Errorf("surviving content lost: %q", text)
	}
}

func TestProcessEmptyOutputFlagged(t *testing.T) {
	p := newProcessor(t)

	for _, in := range []string{"", "   ", "\n\n\n"} {
		text, flags := p.Process(in)
		if text != "" {
			t.Errorf("Process(%q): expected empty text, got %q", in, text)
		}
		if !hasFlag(flags, FlagEmptyOutput) {
			t.Errorf("Process(%q): expected empty_output flag, got %v", in, flags)
		}
	}
}

func TestProcessTrimsTruncatedTail(t *testing.T) {
	p := newProcessor(t)

	in := "The first sentence explains the concept fully. The second sentence adds more detail and finishes cleanly. And then the model got cut o"
	text, flags := p.Process(in)
	if text != "The first sentence explains the concept fully. The second sentence adds more detail and finishes cleanly." {
		t.Fatalf("expected truncated tail removed, got %q", text)
	}
	if !hasFlag(flags, FlagTruncatedTail) {
		t.Fatalf("expected truncated_tail flag, got %v", flags)
	}
}

func TestProcessKeepsCodeBlockEnding(t *testing.T) {
	p := newProcessor(t)

	in := "Here is code.\n\n```go\nfunc main() {}\n```"
	text, flags := p.Process(in)
	if text != in {
		t.Fatalf("code block ending should be preserved, got %q", text)
	}
	if hasFlag(flags, FlagTruncatedTail) {
		t.Fatal("code block ending must not count as truncation")
	}
}

func TestProcessKeepsLongUnterminatedTail(t *testing.T) {
	p := newProcessor(t)

	// The tail is most of the text, so it reads as a deliberate ending.
	in := "Short lead. " + strings.Repeat("heading words without punctuation ", 10)
	text, _ := p.Process(in)
	if text == "Short lead." {
		t.Fatal("long tail should not be trimmed")
	}
}

func TestProcessOverLengthFlagged(t *testing.T) {
	p, err := New(20, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	long := strings.Repeat("word word word. ", 10)
	text, flags := p.Process(long)
	if !hasFlag(flags, FlagOverLength) {
		t.Fatalf("expected over_length flag, got %v", flags)
	}
	if text == "" {
		t.Fatal("over-length text should still be returned")
	}
}

func TestNewRejectsBadPattern(t *testing.T) {
	if _, err := New(0, []string{"("}); err == nil {
		t.Fatal("expected compile error for invalid pattern")
	}
}
