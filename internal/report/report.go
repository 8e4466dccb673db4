// File path: internal/report/report.go

// Package report assembles the terminal run artifact. Sections may be judged
// concurrently and complete out of order; the aggregator keys every
// contribution by the section's document position so the built report always
// follows SOP order regardless of completion order.
package report

import (
	"sort"
	"sync"
	"time"

	"github.com/auditkit/sopcheck/internal/compliance"
)

// Aggregator collects per-section findings and run-level warnings. It is safe
// for concurrent use by the pipeline workers.
type Aggregator struct {
	mu       sync.Mutex
	sections map[int]compliance.SectionReport
	warnings []compliance.Warning
}

func NewAggregator() *Aggregator {
	return &Aggregator{sections: make(map[int]compliance.SectionReport)}
}

// AddSection records the findings for one SOP section. A section is recorded
// at most once; the pipeline guarantees one judgment pass per section.
func (a *Aggregator) AddSection(section compliance.SOPSection, findings []compliance.Finding) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sections[section.Order] = compliance.SectionReport{
		Section:  section,
		Findings: append([]compliance.Finding(nil), findings...),
	}
}

// AddWarnings appends non-fatal, entity-scoped warnings to the report.
func (a *Aggregator) AddWarnings(warnings ...compliance.Warning) {
	if len(warnings) == 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.warnings = append(a.warnings, warnings...)
}

// SectionCount reports how many sections have been recorded so far.
func (a *Aggregator) SectionCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.sections)
}

// Build produces the immutable report: sections sorted by document order,
// status counts summed across all findings, warnings in arrival order. The
// aggregator can keep accumulating afterwards; the returned report does not
// alias its internal state.
func (a *Aggregator) Build(runID, mode string) compliance.Report {
	a.mu.Lock()
	defer a.mu.Unlock()

	orders := make([]int, 0, len(a.sections))
	for order := range a.sections {
		orders = append(orders, order)
	}
	sort.Ints(orders)

	sections := make([]compliance.SectionReport, 0, len(orders))
	var summary compliance.Summary
	for _, order := range orders {
		sr := a.sections[order]
		sections = append(sections, sr)
		for _, f := range sr.Findings {
			switch f.Status {
			case compliance.StatusCompliant:
				summary.Compliant++
			case compliance.StatusPartiallyCompliant:
				summary.PartiallyCompliant++
			case compliance.StatusNonCompliant:
				summary.NonCompliant++
			case compliance.StatusNotApplicable:
				summary.NotApplicable++
			}
		}
	}
	return compliance.Report{
		RunID:       runID,
		Mode:        mode,
		GeneratedAt: time.Now().UTC(),
		Sections:    sections,
		Summary:     summary,
		Warnings:    append([]compliance.Warning(nil), a.warnings...),
	}
}
