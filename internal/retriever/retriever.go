// File path: internal/retriever/retriever.go

// Package retriever is the read path over the vector index: given one SOP
// section it returns the top-K most similar clauses above the configured
// similarity floor. It performs no mutation, and for a fixed index and fixed
// (floor, K) its output ordering is deterministic.
package retriever

import (
	"context"
	"sort"
	"time"

	"github.com/auditkit/sopcheck/internal/common"
	"github.com/auditkit/sopcheck/internal/common/retry"
	"github.com/auditkit/sopcheck/internal/common/telemetry"
	"github.com/auditkit/sopcheck/internal/compliance"
	"github.com/auditkit/sopcheck/internal/vector"
)

// Embedder is the embedding-service boundary for query vectors.
type Embedder interface {
	Embed(ctx context.Context, input []string) ([][]float32, error)
}

// Evidence is one retrieved clause with its similarity to the section.
type Evidence struct {
	ClauseID         string
	Text             string
	SourceDocumentID string
	SectionReference string
	Score            float64
}

// Retriever queries the index for clause evidence per SOP section.
type Retriever struct {
	store    vector.Store
	embedder Embedder
	floor    float64
	limit    int
	policy   retry.Policy
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithRetryPolicy overrides the query-embedding retry policy.
func WithRetryPolicy(p retry.Policy) Option {
	return func(r *Retriever) { r.policy = p }
}

// New constructs a Retriever with the given similarity floor and result cap.
// Both are policy parameters: floor 0 admits every clause, floor 1 none.
func New(store vector.Store, embedder Embedder, floor float64, limit int, opts ...Option) *Retriever {
	r := &Retriever{
		store:    store,
		embedder: embedder,
		floor:    floor,
		limit:    limit,
		policy:   retry.DefaultPolicy(),
	}
	if r.limit <= 0 {
		r.limit = 5
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Retrieve returns at most K clauses with similarity ≥ floor, descending by
// score, ties broken by clause id ascending. An empty slice with nil error
// means no governing regulation was found, which is a valid outcome distinct
// from a retrieval failure.
func (r *Retriever) Retrieve(ctx context.Context, section compliance.SOPSection) ([]Evidence, error) {
	var vectors [][]float32
	start := time.Now()
	err := retry.Do(ctx, r.policy, func(ctx context.Context) error {
		var embedErr error
		vectors, embedErr = r.embedder.Embed(ctx, []string{section.Text})
		return embedErr
	})
	telemetry.RecordEmbedding(err == nil, time.Since(start))
	if err != nil {
		return nil, compliance.ServiceErrorf("embed section %s: %v", section.ID, err)
	}
	if len(vectors) != 1 || len(vectors[0]) == 0 {
		return nil, compliance.ServiceErrorf("embed section %s: empty vector", section.ID)
	}

	// Over-fetch so the floor filter cannot starve the result of clauses the
	// cap would otherwise admit.
	matches, err := r.store.Search(ctx, vectors[0], r.limit*4)
	if err != nil {
		return nil, err
	}
	evidence := make([]Evidence, 0, len(matches))
	for _, m := range matches {
		if m.Score < r.floor {
			continue
		}
		evidence = append(evidence, Evidence{
			ClauseID:         m.ID,
			Text:             m.Text,
			SourceDocumentID: m.Metadata["source"],
			SectionReference: m.Metadata["section"],
			Score:            m.Score,
		})
	}
	sort.Slice(evidence, func(i, j int) bool {
		if evidence[i].Score != evidence[j].Score {
			return evidence[i].Score > evidence[j].Score
		}
		return evidence[i].ClauseID < evidence[j].ClauseID
	})
	if len(evidence) > r.limit {
		evidence = evidence[:r.limit]
	}
	common.Logger().Debug("retriever: section evidence",
		"section", section.ID, "candidates", len(matches), "admitted", len(evidence))
	return evidence, nil
}
