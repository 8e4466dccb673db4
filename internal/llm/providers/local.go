// File path: internal/llm/providers/local.go
package providers

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
)

// Message is one chat turn sent to a provider.
type Message struct {
	Role    string
	Content string
}

// Provider is the black-box contract for the embedding and reasoning
// services. Both backends are reachable through one provider so a single
// credential configures the whole pipeline.
type Provider interface {
	Chat(ctx context.Context, messages []Message) (string, error)
	Embed(ctx context.Context, input []string) ([][]float32, error)
	Name() string
}

const localEmbedDim = 64

// LocalProvider is the offline fallback used when no API key is configured.
// Embeddings are deterministic token-hash vectors, good enough to exercise
// the full pipeline without network access; chat verdicts always report
// NotApplicable so nothing is silently judged without a real model.
type LocalProvider struct{}

func NewLocalProvider() *LocalProvider {
	return &LocalProvider{}
}

func (l *LocalProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	if len(messages) == 0 {
		return "", fmt.Errorf("no messages provided")
	}
	return `{"status":"NotApplicable","rationale":"local provider cannot judge compliance; configure a reasoning model"}`, nil
}

func (l *LocalProvider) Embed(ctx context.Context, input []string) ([][]float32, error) {
	vectors := make([][]float32, len(input))
	for i, text := range input {
		vectors[i] = hashEmbed(text)
	}
	return vectors, nil
}

func (l *LocalProvider) Name() string {
	return "local"
}

func hashEmbed(text string) []float32 {
	vec := make([]float32, localEmbedDim)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(token))
		vec[h.Sum32()%localEmbedDim]++
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec
}
