package pgvector

import (
	"context"
	"hash/fnv"
)

// HashEmbedder is the "local" embedding service (spec's
// EmbeddingConfig{Service: "local"}): a deterministic, dependency-free
// stand-in used when no hosted embedding endpoint is configured. It
// gives every distinct token a fixed pseudo-random direction so
// near-duplicate content still ranks above unrelated content, without
// claiming any semantic quality a real model would provide.
type HashEmbedder struct {
	Dimension int
}

func (h HashEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	dim := h.Dimension
	if dim <= 0 {
		dim = 384
	}
	vec := make([]float64, dim)
	for _, tok := range tokenize(text) {
		hsh := fnv.New32a()
		_, _ = hsh.Write([]byte(tok))
		idx := int(hsh.Sum32()) % dim
		if idx < 0 {
			idx += dim
		}
		vec[idx]++
	}
	return vec, nil
}

func tokenize(text string) []string {
	var tokens []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			tokens = append(tokens, string(cur))
			cur = cur[:0]
		}
	}
	for _, r := range text {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			flush()
			continue
		}
		cur = append(cur, r)
	}
	flush()
	return tokens
}
