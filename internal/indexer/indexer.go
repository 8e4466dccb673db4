// File path: internal/indexer/indexer.go

// Package indexer owns writes to the persisted vector index. Upserts are
// idempotent through content-addressed clause ids: anything already indexed
// is skipped without touching the embedding service, which makes re-runs
// cheap. Embedding failures are isolated per clause and never abort the
// indexing pass.
package indexer

import (
	"context"
	"fmt"
	"time"

	"github.com/auditkit/sopcheck/internal/common"
	"github.com/auditkit/sopcheck/internal/common/retry"
	"github.com/auditkit/sopcheck/internal/common/telemetry"
	"github.com/auditkit/sopcheck/internal/compliance"
	"github.com/auditkit/sopcheck/internal/vector"
)

// Embedder is the embedding-service boundary.
type Embedder interface {
	Embed(ctx context.Context, input []string) ([][]float32, error)
}

// Stager is implemented by stores that record pending clauses before their
// embeddings exist (the SQLite catalog does; Chroma has no pending notion).
type Stager interface {
	Stage(ctx context.Context, records []vector.Record) error
}

const defaultBatchSize = 16

// Indexer computes embeddings for new clauses and persists them.
type Indexer struct {
	store    vector.Store
	embedder Embedder
	policy   retry.Policy
	batch    int
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithRetryPolicy overrides the embedding retry policy.
func WithRetryPolicy(p retry.Policy) Option {
	return func(ix *Indexer) { ix.policy = p }
}

// WithBatchSize bounds how many clauses are embedded per service call.
func WithBatchSize(n int) Option {
	return func(ix *Indexer) {
		if n > 0 {
			ix.batch = n
		}
	}
}

func New(store vector.Store, embedder Embedder, opts ...Option) *Indexer {
	ix := &Indexer{
		store:    store,
		embedder: embedder,
		policy:   retry.DefaultPolicy(),
		batch:    defaultBatchSize,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(ix)
		}
	}
	return ix
}

// Failure records one clause whose embedding could not be obtained after
// exhausted retries.
type Failure struct {
	ClauseID string
	Reason   string
}

// Result summarizes one upsert pass.
type Result struct {
	Indexed  int
	Skipped  int
	Failures []Failure
}

// Warnings converts failures into report warnings.
func (r Result) Warnings() []compliance.Warning {
	if len(r.Failures) == 0 {
		return nil
	}
	out := make([]compliance.Warning, 0, len(r.Failures))
	for _, f := range r.Failures {
		out = append(out, compliance.Warning{
			Scope:   compliance.WarnClause,
			RefID:   f.ClauseID,
			Message: fmt.Sprintf("embedding failed, excluded from index: %s", f.Reason),
		})
	}
	return out
}

// Upsert indexes the given clauses. Already-indexed ids are skipped before
// any embedding call. A non-nil error is returned only when the store itself
// is unusable; per-clause embedding failures land in the result instead.
func (ix *Indexer) Upsert(ctx context.Context, clauses []compliance.Clause) (Result, error) {
	logger := common.Logger()
	var result Result

	pending := make([]vector.Record, 0, len(clauses))
	for _, clause := range clauses {
		indexed, err := ix.store.Exists(ctx, clause.ID)
		if err != nil {
			return result, err
		}
		if indexed {
			result.Skipped++
			continue
		}
		pending = append(pending, recordFromClause(clause))
	}
	if len(pending) == 0 {
		logger.Debug("indexer: nothing new to index", "skipped", result.Skipped)
		return result, nil
	}
	if stager, ok := ix.store.(Stager); ok {
		if err := stager.Stage(ctx, pending); err != nil {
			return result, err
		}
	}

	for start := 0; start < len(pending); start += ix.batch {
		end := start + ix.batch
		if end > len(pending) {
			end = len(pending)
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}
		ix.indexBatch(ctx, pending[start:end], &result)
	}
	logger.Info("indexer: upsert complete",
		"indexed", result.Indexed, "skipped", result.Skipped, "failed", len(result.Failures))
	return result, nil
}

// indexBatch embeds one batch with bounded retries. If the whole batch keeps
// failing, each clause is embedded individually so one poisoned input cannot
// take its neighbors down with it.
func (ix *Indexer) indexBatch(ctx context.Context, batch []vector.Record, result *Result) {
	vectors, err := ix.embed(ctx, textsOf(batch))
	if err == nil && len(vectors) == len(batch) {
		ix.persist(ctx, batch, vectors, result)
		return
	}
	for i := range batch {
		single := batch[i : i+1]
		vectors, err := ix.embed(ctx, textsOf(single))
		if err != nil || len(vectors) != 1 {
			if err == nil {
				err = compliance.ServiceErrorf("embedding service returned %d vectors for 1 input", len(vectors))
			}
			ix.fail(ctx, single[0].ID, err, result)
			continue
		}
		ix.persist(ctx, single, vectors, result)
	}
}

func (ix *Indexer) embed(ctx context.Context, texts []string) ([][]float32, error) {
	var vectors [][]float32
	start := time.Now()
	err := retry.Do(ctx, ix.policy, func(ctx context.Context) error {
		var embedErr error
		vectors, embedErr = ix.embedder.Embed(ctx, texts)
		return embedErr
	})
	telemetry.RecordEmbedding(err == nil, time.Since(start))
	return vectors, err
}

func (ix *Indexer) persist(ctx context.Context, records []vector.Record, vectors [][]float32, result *Result) {
	for i := range records {
		records[i].Vector = vectors[i]
	}
	if err := ix.store.Upsert(ctx, records); err != nil {
		for _, rec := range records {
			ix.fail(ctx, rec.ID, err, result)
		}
		return
	}
	result.Indexed += len(records)
}

func (ix *Indexer) fail(ctx context.Context, id string, cause error, result *Result) {
	common.Logger().Warn("indexer: clause failed", "clause", id, "error", cause)
	result.Failures = append(result.Failures, Failure{ClauseID: id, Reason: cause.Error()})
	if marker, ok := ix.store.(vector.StateStore); ok {
		if err := marker.MarkFailed(ctx, id, cause.Error()); err != nil {
			common.Logger().Warn("indexer: mark failed state", "clause", id, "error", err)
		}
	}
}

// IsIndexed reports whether the clause id is present in the index.
func (ix *Indexer) IsIndexed(ctx context.Context, id string) (bool, error) {
	return ix.store.Exists(ctx, id)
}

func recordFromClause(clause compliance.Clause) vector.Record {
	return vector.Record{
		ID:   clause.ID,
		Text: clause.Text,
		Metadata: map[string]string{
			"source":  clause.SourceDocumentID,
			"section": clause.SectionReference,
		},
	}
}

func textsOf(records []vector.Record) []string {
	texts := make([]string, len(records))
	for i, rec := range records {
		texts[i] = rec.Text
	}
	return texts
}
