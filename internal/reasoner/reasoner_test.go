// File path: internal/reasoner/reasoner_test.go
package reasoner

import (
	"context"
	"testing"
	"time"

	"github.com/auditkit/sopcheck/internal/common/retry"
	"github.com/auditkit/sopcheck/internal/compliance"
	"github.com/auditkit/sopcheck/internal/llm"
	"github.com/auditkit/sopcheck/internal/retriever"
)

// scriptedProvider replays canned chat responses in order.
type scriptedProvider struct {
	responses []string
	errs      []error
	calls     int
	lastMsgs  []llm.Message
}

func (s *scriptedProvider) Chat(_ context.Context, messages []llm.Message) (string, error) {
	s.lastMsgs = messages
	i := s.calls
	s.calls++
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	if err != nil {
		return "", err
	}
	if i < len(s.responses) {
		return s.responses[i], nil
	}
	return s.responses[len(s.responses)-1], nil
}

func (s *scriptedProvider) Embed(_ context.Context, input []string) ([][]float32, error) {
	out := make([][]float32, len(input))
	for i := range input {
		out[i] = []float32{1}
	}
	return out, nil
}

func (s *scriptedProvider) Name() string { return "scripted" }

func section() compliance.SOPSection {
	return compliance.SOPSection{ID: "002-inspection", Heading: "Inspection", Text: "Each shipment is inspected."}
}

func evidence() []retriever.Evidence {
	return []retriever.Evidence{{
		ClauseID:         "clause-1",
		Text:             "Shipments must be inspected before storage.",
		SourceDocumentID: "reg",
		SectionReference: "1.",
		Score:            0.81,
	}}
}

func fastPolicy() retry.Policy {
	return retry.Policy{Attempts: 2, Backoff: time.Millisecond}
}

func TestJudgeValidVerdict(t *testing.T) {
	provider := &scriptedProvider{responses: []string{
		`{"status":"Compliant","rationale":"inspection occurs before storage","suggested_adjustment":""}`,
	}}
	r := New(provider, WithRetryPolicy(fastPolicy()))
	findings, warnings, err := r.Judge(context.Background(), section(), evidence())
	if err != nil {
		t.Fatalf("judge: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %+v", warnings)
	}
	if len(findings) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(findings))
	}
	f := findings[0]
	if f.Status != compliance.StatusCompliant || f.ClauseID != "clause-1" || f.SimilarityScore != 0.81 {
		t.Fatalf("finding = %+v", f)
	}
}

func TestJudgeFencedVerdict(t *testing.T) {
	provider := &scriptedProvider{responses: []string{
		"```json\n{\"status\":\"NonCompliant\",\"rationale\":\"no inspection step\",\"suggested_adjustment\":\"Add an inspection step.\"}\n```",
	}}
	r := New(provider, WithRetryPolicy(fastPolicy()))
	findings, _, err := r.Judge(context.Background(), section(), evidence())
	if err != nil {
		t.Fatalf("judge: %v", err)
	}
	if findings[0].Status != compliance.StatusNonCompliant {
		t.Fatalf("fenced verdict not parsed: %+v", findings[0])
	}
	if findings[0].SuggestedAdjustment != "Add an inspection step." {
		t.Fatalf("adjustment = %q", findings[0].SuggestedAdjustment)
	}
}

func TestJudgeRepairsMalformedVerdict(t *testing.T) {
	provider := &scriptedProvider{responses: []string{
		"The procedure looks fine to me overall.",
		`{"status":"PartiallyCompliant","rationale":"inspection exists but is undocumented","suggested_adjustment":"Document the inspection record."}`,
	}}
	r := New(provider, WithRetryPolicy(fastPolicy()))
	findings, warnings, err := r.Judge(context.Background(), section(), evidence())
	if err != nil {
		t.Fatalf("judge: %v", err)
	}
	if provider.calls != 2 {
		t.Fatalf("expected exactly one repair call, got %d", provider.calls)
	}
	if len(warnings) != 0 {
		t.Fatalf("repaired verdict should not warn: %+v", warnings)
	}
	if findings[0].Status != compliance.StatusPartiallyCompliant {
		t.Fatalf("finding = %+v", findings[0])
	}
	// The repair exchange feeds the bad response back to the model.
	if len(provider.lastMsgs) != 4 {
		t.Fatalf("repair conversation has %d messages", len(provider.lastMsgs))
	}
}

func TestJudgeDegradesAfterRepairFails(t *testing.T) {
	provider := &scriptedProvider{responses: []string{
		"not json",
		`{"status":"SortOfCompliant","rationale":"made-up status"}`,
	}}
	r := New(provider, WithRetryPolicy(fastPolicy()))
	findings, warnings, err := r.Judge(context.Background(), section(), evidence())
	if err != nil {
		t.Fatalf("degradation must not abort the run: %v", err)
	}
	if len(findings) != 1 || findings[0].Status != compliance.StatusNotApplicable {
		t.Fatalf("expected degraded NotApplicable finding, got %+v", findings)
	}
	if findings[0].ClauseID != "clause-1" {
		t.Fatalf("degraded finding must keep the clause reference: %+v", findings[0])
	}
	if len(warnings) != 1 || warnings[0].Scope != compliance.WarnSection {
		t.Fatalf("expected section warning, got %+v", warnings)
	}
}

func TestJudgeEmptyEvidence(t *testing.T) {
	provider := &scriptedProvider{responses: []string{"unused"}}
	r := New(provider, WithRetryPolicy(fastPolicy()))
	findings, warnings, err := r.Judge(context.Background(), section(), nil)
	if err != nil {
		t.Fatalf("judge: %v", err)
	}
	if provider.calls != 0 {
		t.Fatalf("no evidence means no model call, got %d", provider.calls)
	}
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %+v", warnings)
	}
	if len(findings) != 1 {
		t.Fatalf("expected the single synthetic finding, got %d", len(findings))
	}
	f := findings[0]
	if f.Status != compliance.StatusNotApplicable || f.ClauseID != "" {
		t.Fatalf("synthetic finding = %+v", f)
	}
}

func TestJudgeClearsAdjustmentForCompliant(t *testing.T) {
	provider := &scriptedProvider{responses: []string{
		`{"status":"Compliant","rationale":"fully covered","suggested_adjustment":"no change needed"}`,
	}}
	r := New(provider, WithRetryPolicy(fastPolicy()))
	findings, _, err := r.Judge(context.Background(), section(), evidence())
	if err != nil {
		t.Fatalf("judge: %v", err)
	}
	if findings[0].SuggestedAdjustment != "" {
		t.Fatalf("compliant finding should carry no adjustment: %+v", findings[0])
	}
}
