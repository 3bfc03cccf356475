package ingest

import "strings"

const (
	defaultChunkSize    = 1200
	defaultChunkOverlap = 200
)

// Chunk splits text into pieces of roughly size characters with the given
// overlap between consecutive pieces. Splits prefer paragraph boundaries,
// then sentence boundaries, so chunks stay coherent for embedding. size <= 0
// and overlap < 0 fall back to the defaults.
func Chunk(text string, size, overlap int) []string {
	if size <= 0 {
		size = defaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = defaultChunkOverlap
		if overlap >= size {
			overlap = size / 4
		}
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= size {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(text) {
		end := start + size
		if end >= len(text) {
			chunk := strings.TrimSpace(text[start:])
			if chunk != "" {
				chunks = append(chunks, chunk)
			}
			break
		}

		cut := splitPoint(text[start:end])
		chunk := strings.TrimSpace(text[start : start+cut])
		if chunk != "" {
			chunks = append(chunks, chunk)
		}

		next := start + cut - overlap
		if next <= start {
			next = start + cut
		}
		start = next
	}
	return chunks
}

// splitPoint finds where to cut a window: the last paragraph break in the
// second half if one exists, else the last sentence end, else the window end.
func splitPoint(window string) int {
	half := len(window) / 2

	if i := strings.LastIndex(window, "\n\n"); i > half {
		return i
	}
	for _, sep := range []string{". ", ".\n", "! ", "? ", "\n"} {
		if i := strings.LastIndex(window, sep); i > half {
			return i + len(sep)
		}
	}
	return len(window)
}
