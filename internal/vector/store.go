// File path: internal/vector/store.go

// Package vector defines the persisted vector index boundary. The Embedding
// Indexer is the only writer; the Relevance Retriever uses the read path
// only. Stores must be durable between invocations so re-runs can skip
// already-indexed clauses.
package vector

import (
	"context"
	"math"
)

// Record is one indexed clause: content-addressed id, original text, source
// metadata, and the embedding vector.
type Record struct {
	ID       string
	Text     string
	Metadata map[string]string
	Vector   []float32
}

// Match is one ranked query result.
type Match struct {
	ID       string
	Score    float64
	Text     string
	Metadata map[string]string
}

// Store is the persisted vector index. Upsert of an already-present id is a
// no-op, which makes concurrent duplicate upserts safe.
type Store interface {
	Exists(ctx context.Context, id string) (bool, error)
	Upsert(ctx context.Context, records []Record) error
	Search(ctx context.Context, vec []float32, limit int) ([]Match, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// StateStore is implemented by stores that persist the per-clause indexing
// state machine (pending → indexed, or failed after exhausted retries).
type StateStore interface {
	MarkFailed(ctx context.Context, id, reason string) error
}

// Cosine returns the cosine similarity of two vectors, 0 when either has no
// magnitude or the dimensions disagree.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
