// File path: internal/compliance/types.go
package compliance

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Status is the fixed verdict vocabulary for a compliance finding.
type Status string

const (
	StatusCompliant          Status = "Compliant"
	StatusPartiallyCompliant Status = "PartiallyCompliant"
	StatusNonCompliant       Status = "NonCompliant"
	StatusNotApplicable      Status = "NotApplicable"
)

// Valid reports whether s is one of the four recognized statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusCompliant, StatusPartiallyCompliant, StatusNonCompliant, StatusNotApplicable:
		return true
	}
	return false
}

// Statuses lists the recognized statuses in summary order.
func Statuses() []Status {
	return []Status{StatusCompliant, StatusPartiallyCompliant, StatusNonCompliant, StatusNotApplicable}
}

// Clause is an atomic regulatory requirement extracted from one source
// document. Embedding vectors live in the index, never on the clause record.
type Clause struct {
	ID               string `json:"id"`
	Text             string `json:"text"`
	SourceDocumentID string `json:"source_document_id"`
	SectionReference string `json:"section_reference,omitempty"`
}

// ClauseID derives the content-addressed identifier for a clause. Identical
// clause text from the same source always maps to the same id, which makes
// re-ingestion idempotent.
func ClauseID(text, sourceDocumentID string) string {
	h := sha256.New()
	h.Write([]byte(NormalizeClauseText(text)))
	h.Write([]byte{0})
	h.Write([]byte(strings.TrimSpace(sourceDocumentID)))
	return hex.EncodeToString(h.Sum(nil))
}

// NormalizeClauseText lowercases and collapses whitespace so formatting
// differences do not defeat content addressing.
func NormalizeClauseText(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// SOPSection is one segment of the SOP under evaluation. Sections are
// immutable once segmented; Order defines report ordering.
type SOPSection struct {
	ID      string `json:"id"`
	Heading string `json:"heading,omitempty"`
	Text    string `json:"text"`
	Order   int    `json:"order"`
}

// Finding relates one SOP section to one retrieved clause. ClauseID is empty
// for the synthetic NotApplicable finding emitted when retrieval found no
// governing clause.
type Finding struct {
	SOPSectionID        string  `json:"sop_section_id"`
	ClauseID            string  `json:"clause_id,omitempty"`
	Status              Status  `json:"status"`
	SimilarityScore     float64 `json:"similarity_score"`
	Rationale           string  `json:"rationale"`
	SuggestedAdjustment string  `json:"suggested_adjustment,omitempty"`
}

// WarningScope identifies the entity class a warning is attached to.
type WarningScope string

const (
	WarnDocument WarningScope = "document"
	WarnClause   WarningScope = "clause"
	WarnSection  WarningScope = "section"
)

// Warning records a non-fatal, entity-scoped failure surfaced in the report.
type Warning struct {
	Scope   WarningScope `json:"scope"`
	RefID   string       `json:"ref_id"`
	Message string       `json:"message"`
}

// SectionReport pairs one SOP section with its findings.
type SectionReport struct {
	Section  SOPSection `json:"section"`
	Findings []Finding  `json:"findings"`
}

// Summary aggregates finding counts per status across the whole report.
type Summary struct {
	Compliant          int `json:"compliant"`
	PartiallyCompliant int `json:"partially_compliant"`
	NonCompliant       int `json:"non_compliant"`
	NotApplicable      int `json:"not_applicable"`
}

// Count returns the summary counter for the given status.
func (s Summary) Count(status Status) int {
	switch status {
	case StatusCompliant:
		return s.Compliant
	case StatusPartiallyCompliant:
		return s.PartiallyCompliant
	case StatusNonCompliant:
		return s.NonCompliant
	case StatusNotApplicable:
		return s.NotApplicable
	}
	return 0
}

// Report is the terminal artifact of a run: sections in SOP order, each with
// its findings, plus the status summary and accumulated warnings. A report is
// built once and never mutated.
type Report struct {
	RunID       string          `json:"run_id"`
	Mode        string          `json:"mode"`
	GeneratedAt time.Time       `json:"generated_at"`
	Sections    []SectionReport `json:"sections"`
	Summary     Summary         `json:"summary"`
	Warnings    []Warning       `json:"warnings,omitempty"`
}
