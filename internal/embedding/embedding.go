// Package embedding wraps the external embedding capability behind a small
// interface so the pipeline can be tested with scripted vectors.
package embedding

import (
	"context"
	"errors"
	"strings"
)

// ErrEmptyText is returned when there is nothing to embed.
var ErrEmptyText = errors.New("empty text for embedding")

// maxTextLength bounds the characters sent to the embedding model.
const maxTextLength = 8192

// Embedder produces a fixed-dimension vector for a text. Implementations
// may fail transiently; callers retry with backoff. Determinism for
// identical text is not guaranteed and never relied upon.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// CleanText normalizes whitespace and truncates text before embedding.
func CleanText(text string) string {
	cleaned := strings.Join(strings.Fields(text), " ")
	if len(cleaned) > maxTextLength {
		cleaned = cleaned[:maxTextLength]
	}
	return cleaned
}
