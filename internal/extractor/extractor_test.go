// File path: internal/extractor/extractor_test.go
package extractor

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/auditkit/sopcheck/internal/compliance"
)

func TestDetectStyle(t *testing.T) {
	cases := []struct {
		name string
		text string
		want enumStyle
	}{
		{
			name: "section symbol",
			text: "§ 101.3 Employers shall provide training.\n§ 101.4 Records must be kept.",
			want: styleSection,
		},
		{
			name: "decimal outline",
			text: "3.1 All samples must be labeled.\n3.2 Labels shall include the lot number.",
			want: styleDecimal,
		},
		{
			name: "plain numeric",
			text: "1. Operators must wash hands.\n2. Gloves are required in zone A.",
			want: styleNumeric,
		},
		{
			name: "roman with multi-char marker",
			text: "i) First obligation applies.\nii) Second obligation applies.\niv) Fourth obligation applies.",
			want: styleRoman,
		},
		{
			name: "parenthesized letters",
			text: "(a) Containers must be sealed.\n(b) Seals shall be dated.\n(ab) Extended marker.",
			want: styleLetter,
		},
		{
			name: "section beats decimal",
			text: "§ 5 General duties.\n5.1 A decimal line.\n5.2 Another decimal line.",
			want: styleSection,
		},
		{
			name: "no markers",
			text: "Employees should be careful around machinery at all times.",
			want: styleNone,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := detectStyle(strings.Split(tc.text, "\n"))
			if got != tc.want {
				t.Fatalf("detectStyle = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestExtractNumericEnumeration(t *testing.T) {
	doc := Document{
		ID: "reg-1",
		Text: `Introduction text that precedes the requirements.
1. Operators must complete hazard training before first shift.
2. Protective equipment shall be inspected week-
ly by the site supervisor.
3. Incident reports must be filed within 24 hours.`,
	}
	clauses, warnings, err := New().Extract(context.Background(), doc)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	if len(clauses) != 3 {
		t.Fatalf("expected 3 clauses, got %d: %+v", len(clauses), clauses)
	}
	// Hyphenated line break merges without a space.
	if !strings.Contains(clauses[1].Text, "weekly") {
		t.Fatalf("hyphen merge failed: %q", clauses[1].Text)
	}
	if clauses[0].SectionReference != "1." {
		t.Fatalf("section reference = %q", clauses[0].SectionReference)
	}
	for _, c := range clauses {
		if c.ID != compliance.ClauseID(c.Text, doc.ID) {
			t.Fatalf("clause id not content-addressed: %s", c.ID)
		}
	}
}

func TestExtractIdempotentIDs(t *testing.T) {
	doc := Document{ID: "reg-2", Text: "1. Records shall be retained.\n2. Audits must be annual."}
	first, _, err := New().Extract(context.Background(), doc)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	second, _, err := New().Extract(context.Background(), doc)
	if err != nil {
		t.Fatalf("re-extract: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("clause counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Fatalf("clause %d id changed across runs", i)
		}
	}
}

func TestExtractDeduplicatesIdenticalClauses(t *testing.T) {
	doc := Document{ID: "reg-3", Text: "1. Doors must remain closed.\n2. Doors must remain closed."}
	clauses, _, err := New().Extract(context.Background(), doc)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(clauses) != 1 {
		t.Fatalf("expected duplicate clause collapsed, got %d", len(clauses))
	}
}

func TestDecimalStemDistribution(t *testing.T) {
	doc := Document{
		ID: "reg-stem",
		Text: `4.1 The employer shall:
4.1.1 provide protective gloves to every operator
4.1.2 replace damaged gloves within one shift
4.2 Visitors must remain in marked walkways.`,
	}
	clauses, _, err := New().Extract(context.Background(), doc)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(clauses) != 3 {
		t.Fatalf("expected stem distributed over 2 children plus 1 sibling, got %d: %+v", len(clauses), clauses)
	}
	if clauses[0].Text != "The employer shall provide protective gloves to every operator" {
		t.Fatalf("stem not inherited: %q", clauses[0].Text)
	}
	if clauses[1].SectionReference != "4.1.2" {
		t.Fatalf("reference = %q", clauses[1].SectionReference)
	}
	if strings.Contains(clauses[2].Text, "employer shall") {
		t.Fatalf("stem leaked past its subtree: %q", clauses[2].Text)
	}
}

func TestExtractEmptyDocument(t *testing.T) {
	_, _, err := New().Extract(context.Background(), Document{ID: "reg-4", Text: "   \n  "})
	if !errors.Is(err, compliance.ErrParse) {
		t.Fatalf("expected ParseError for empty document, got %v", err)
	}
}

func TestExtractNoRequirementsWarns(t *testing.T) {
	doc := Document{ID: "reg-5", Text: "This document is purely informational background reading."}
	clauses, warnings, err := New().Extract(context.Background(), doc)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(clauses) != 0 {
		t.Fatalf("expected no clauses, got %d", len(clauses))
	}
	if len(warnings) != 1 || warnings[0].Scope != compliance.WarnDocument {
		t.Fatalf("expected one document warning, got %+v", warnings)
	}
}

func TestExtractModalFallback(t *testing.T) {
	doc := Document{
		ID: "reg-6",
		Text: "Visitors are welcome during business hours. All visitors must sign the register. " +
			"Badges shall be worn visibly. The cafeteria serves lunch at noon.",
	}
	clauses, _, err := New().Extract(context.Background(), doc)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(clauses) != 2 {
		t.Fatalf("expected 2 modal-marked clauses, got %d: %+v", len(clauses), clauses)
	}
	if !strings.Contains(clauses[0].Text, "sign the register") {
		t.Fatalf("unexpected first clause: %q", clauses[0].Text)
	}
}

func TestCrossReferenceResolution(t *testing.T) {
	doc := Document{
		ID: "reg-7",
		Text: `1. Containers must be sealed before transport.
2. See section 1.
3. Refer to section 9.`,
	}
	clauses, warnings, err := New().Extract(context.Background(), doc)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	// Clause 2 resolves to clause 1's text and then deduplicates against it;
	// clause 3 points nowhere and is dropped with a warning.
	if len(clauses) != 1 {
		t.Fatalf("expected 1 clause after resolution+dedupe, got %d: %+v", len(clauses), clauses)
	}
	if len(warnings) != 1 || warnings[0].Scope != compliance.WarnClause {
		t.Fatalf("expected one clause warning for the dangling reference, got %+v", warnings)
	}
	if !strings.Contains(warnings[0].Message, "cross-reference") {
		t.Fatalf("warning message = %q", warnings[0].Message)
	}
}

type scriptedClassifier struct {
	keep       bool
	normalized string
	failures   int
	calls      int
}

func (s *scriptedClassifier) Classify(_ context.Context, _ string) (bool, string, error) {
	s.calls++
	if s.failures > 0 {
		s.failures--
		return false, "", errors.New("model unavailable")
	}
	return s.keep, s.normalized, nil
}

func TestClassifierNormalizesClauses(t *testing.T) {
	c := &scriptedClassifier{keep: true, normalized: "Operators must complete training."}
	doc := Document{ID: "reg-8", Text: "1. training must be done by ops"}
	clauses, _, err := New(WithClassifier(c)).Extract(context.Background(), doc)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(clauses) != 1 || clauses[0].Text != "Operators must complete training." {
		t.Fatalf("normalized text not applied: %+v", clauses)
	}
}

func TestClassifierDropsNonRequirements(t *testing.T) {
	c := &scriptedClassifier{keep: false}
	doc := Document{ID: "reg-9", Text: "1. This chapter provides background only."}
	clauses, _, err := New(WithClassifier(c)).Extract(context.Background(), doc)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(clauses) != 0 {
		t.Fatalf("expected non-requirement dropped, got %+v", clauses)
	}
}

func TestClassifierFailureKeepsVerbatim(t *testing.T) {
	c := &scriptedClassifier{failures: 2}
	doc := Document{ID: "reg-10", Text: "1. Valves shall be tagged."}
	clauses, warnings, err := New(WithClassifier(c)).Extract(context.Background(), doc)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if c.calls != 2 {
		t.Fatalf("expected one retry (2 calls), got %d", c.calls)
	}
	if len(clauses) != 1 || clauses[0].Text != "Valves shall be tagged." {
		t.Fatalf("verbatim clause not kept: %+v", clauses)
	}
	if len(warnings) != 1 || warnings[0].Scope != compliance.WarnClause {
		t.Fatalf("expected classification warning, got %+v", warnings)
	}
}

func TestClassifierRecoversOnRetry(t *testing.T) {
	c := &scriptedClassifier{keep: true, failures: 1}
	doc := Document{ID: "reg-11", Text: "1. Exits must stay unobstructed."}
	clauses, warnings, err := New(WithClassifier(c)).Extract(context.Background(), doc)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("retry succeeded, no warning expected: %+v", warnings)
	}
	if len(clauses) != 1 {
		t.Fatalf("expected clause kept, got %d", len(clauses))
	}
}
