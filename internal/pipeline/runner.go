// File path: internal/pipeline/runner.go

// Package pipeline orchestrates one end-to-end compliance run: SOP
// segmentation, regulatory clause extraction and indexing, then concurrent
// per-section retrieval and judgment, aggregated into an ordered report.
// Failures scoped to one document, clause, or section become report warnings;
// only an unusable index at startup aborts the run.
package pipeline

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/auditkit/sopcheck/internal/common"
	"github.com/auditkit/sopcheck/internal/compliance"
	"github.com/auditkit/sopcheck/internal/extractor"
	"github.com/auditkit/sopcheck/internal/indexer"
	"github.com/auditkit/sopcheck/internal/reasoner"
	"github.com/auditkit/sopcheck/internal/report"
	"github.com/auditkit/sopcheck/internal/retriever"
	"github.com/auditkit/sopcheck/internal/sop"
	"github.com/auditkit/sopcheck/internal/vector"
)

// Run modes.
const (
	ModeFull        = "full"
	ModeIncremental = "incremental"
)

// Input is everything one run consumes. Documents carry pre-extracted plain
// text; file-format handling happens upstream of the pipeline.
type Input struct {
	SOPText   string
	Documents []extractor.Document
	Mode      string

	// RunID, when set, names the run; callers that track runs externally
	// (the HTTP surface) assign it up front. Empty means generate one.
	RunID string
}

// Runner wires the pipeline stages together for repeated runs.
type Runner struct {
	segmenter *sop.Segmenter
	extractor *extractor.Extractor
	indexer   *indexer.Indexer
	retriever *retriever.Retriever
	reasoner  *reasoner.Reasoner
	store     vector.Store
	workers   int
}

func NewRunner(
	segmenter *sop.Segmenter,
	ex *extractor.Extractor,
	ix *indexer.Indexer,
	rt *retriever.Retriever,
	rs *reasoner.Reasoner,
	store vector.Store,
	workers int,
) *Runner {
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Runner{
		segmenter: segmenter,
		extractor: ex,
		indexer:   ix,
		retriever: rt,
		reasoner:  rs,
		store:     store,
		workers:   workers,
	}
}

// Run executes one compliance evaluation and returns the completed report.
// The report is all-or-none: a fatal error yields no report at all, while
// recoverable per-entity failures appear inside the report as warnings.
func (r *Runner) Run(ctx context.Context, input Input) (compliance.Report, error) {
	logger := common.Logger()
	mode, err := normalizeMode(input.Mode)
	if err != nil {
		return compliance.Report{}, err
	}
	runID := strings.TrimSpace(input.RunID)
	if runID == "" {
		runID = uuid.NewString()
	}
	logger.Info("pipeline: run started", "run", runID, "mode", mode, "documents", len(input.Documents))

	// Startup probe. Storage unreachable here means nothing can persist, the
	// one condition that aborts before any work.
	indexed, err := r.store.Count(ctx)
	if err != nil {
		return compliance.Report{}, compliance.IndexErrorf("index unavailable at startup: %v", err)
	}

	sections, err := r.segmenter.Segment(input.SOPText)
	if err != nil {
		return compliance.Report{}, err
	}

	agg := report.NewAggregator()
	if mode == ModeFull {
		if err := r.ingest(ctx, input.Documents, agg); err != nil {
			return compliance.Report{}, err
		}
	} else {
		if indexed == 0 {
			logger.Warn("pipeline: incremental run against an empty index", "run", runID)
			agg.AddWarnings(compliance.Warning{
				Scope:   compliance.WarnDocument,
				RefID:   "index",
				Message: "incremental mode with an empty index: every section will be NotApplicable",
			})
		}
		r.surfaceIndexFailures(ctx, agg)
	}

	if err := r.evaluate(ctx, sections, agg); err != nil {
		return compliance.Report{}, err
	}

	built := agg.Build(runID, mode)
	logger.Info("pipeline: run complete",
		"run", runID,
		"sections", len(built.Sections),
		"compliant", built.Summary.Compliant,
		"partially_compliant", built.Summary.PartiallyCompliant,
		"non_compliant", built.Summary.NonCompliant,
		"not_applicable", built.Summary.NotApplicable,
		"warnings", len(built.Warnings))
	return built, nil
}

// ingest extracts and indexes the regulatory documents on the bounded worker
// pool. One bad document is a warning, not a run failure; index-level errors
// are fatal. Duplicate upserts across documents are safe because clause ids
// are content-addressed.
func (r *Runner) ingest(ctx context.Context, docs []extractor.Document, agg *report.Aggregator) error {
	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(r.workers)
	for _, doc := range docs {
		doc := doc
		group.Go(func() error {
			clauses, warnings, err := r.extractor.Extract(ctx, doc)
			agg.AddWarnings(warnings...)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				common.Logger().Warn("pipeline: document skipped", "document", doc.ID, "error", err)
				agg.AddWarnings(compliance.Warning{
					Scope:   compliance.WarnDocument,
					RefID:   doc.ID,
					Message: "document skipped: " + err.Error(),
				})
				return nil
			}
			result, err := r.indexer.Upsert(ctx, clauses)
			agg.AddWarnings(result.Warnings()...)
			return err
		})
	}
	return group.Wait()
}

// failureLister is implemented by stores that persist terminal embedding
// failures across runs (the SQLite catalog does; Chroma keeps no failure
// state).
type failureLister interface {
	FailedClauses(ctx context.Context) (map[string]string, error)
}

// surfaceIndexFailures warns about clauses whose embedding failed in an
// earlier run. Incremental mode never re-attempts them, so without these
// warnings the report would silently evaluate against a smaller index.
func (r *Runner) surfaceIndexFailures(ctx context.Context, agg *report.Aggregator) {
	lister, ok := r.store.(failureLister)
	if !ok {
		return
	}
	failed, err := lister.FailedClauses(ctx)
	if err != nil {
		common.Logger().Warn("pipeline: failed-clause lookup", "error", err)
		return
	}
	ids := make([]string, 0, len(failed))
	for id := range failed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		agg.AddWarnings(compliance.Warning{
			Scope:   compliance.WarnClause,
			RefID:   id,
			Message: "embedding failed in a previous run, excluded from retrieval: " + failed[id],
		})
	}
}

// evaluate judges every SOP section against retrieved evidence with a bounded
// worker pool. Section ordering in the report is independent of completion
// order because the aggregator keys by document position.
func (r *Runner) evaluate(ctx context.Context, sections []compliance.SOPSection, agg *report.Aggregator) error {
	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(r.workers)
	for _, section := range sections {
		section := section
		group.Go(func() error {
			evidence, err := r.retriever.Retrieve(ctx, section)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				common.Logger().Warn("pipeline: retrieval failed for section",
					"section", section.ID, "error", err)
				agg.AddWarnings(compliance.Warning{
					Scope:   compliance.WarnSection,
					RefID:   section.ID,
					Message: "retrieval failed: " + err.Error(),
				})
				agg.AddSection(section, []compliance.Finding{{
					SOPSectionID: section.ID,
					Status:       compliance.StatusNotApplicable,
					Rationale:    "retrieval failed: no evidence could be gathered for this section",
				}})
				return nil
			}
			findings, warnings, err := r.reasoner.Judge(ctx, section, evidence)
			if err != nil {
				return err
			}
			agg.AddWarnings(warnings...)
			agg.AddSection(section, findings)
			return nil
		})
	}
	return group.Wait()
}

func normalizeMode(mode string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", ModeFull:
		return ModeFull, nil
	case ModeIncremental:
		return ModeIncremental, nil
	default:
		return "", compliance.ParseErrorf("unknown run mode %q", mode)
	}
}
