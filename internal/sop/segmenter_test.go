// File path: internal/sop/segmenter_test.go
package sop

import (
	"errors"
	"strings"
	"testing"

	"github.com/auditkit/sopcheck/internal/compliance"
)

func TestSegmentMarkdownHeadings(t *testing.T) {
	text := `# Receiving
Incoming materials are logged in the receiving register.

## Inspection
Each shipment is inspected for damage before storage.

## Storage
Materials are stored by hazard class.`
	sections, err := NewSegmenter().Segment(text)
	if err != nil {
		t.Fatalf("segment: %v", err)
	}
	if len(sections) != 3 {
		t.Fatalf("expected 3 sections, got %d: %+v", len(sections), sections)
	}
	if sections[0].Heading != "Receiving" || sections[1].Heading != "Inspection" {
		t.Fatalf("headings = %q, %q", sections[0].Heading, sections[1].Heading)
	}
	for i, s := range sections {
		if s.Order != i {
			t.Fatalf("section %d has order %d", i, s.Order)
		}
		if s.ID == "" {
			t.Fatalf("section %d missing id", i)
		}
	}
	if sections[1].ID != "002-inspection" {
		t.Fatalf("section id = %q", sections[1].ID)
	}
}

func TestSegmentPreambleBeforeFirstHeading(t *testing.T) {
	text := `This procedure governs sample handling in the lab.

# Collection
Samples are collected in sterile containers.`
	sections, err := NewSegmenter().Segment(text)
	if err != nil {
		t.Fatalf("segment: %v", err)
	}
	if len(sections) != 2 {
		t.Fatalf("expected preamble + 1 section, got %d", len(sections))
	}
	if sections[0].Heading != "Preamble" {
		t.Fatalf("first heading = %q", sections[0].Heading)
	}
	if !strings.Contains(sections[0].Text, "governs sample handling") {
		t.Fatalf("preamble text = %q", sections[0].Text)
	}
}

func TestSegmentAllCapsHeadings(t *testing.T) {
	text := `SCOPE
Applies to all production lines.

RESPONSIBILITIES
The shift lead owns execution.`
	sections, err := NewSegmenter().Segment(text)
	if err != nil {
		t.Fatalf("segment: %v", err)
	}
	if len(sections) != 2 {
		t.Fatalf("expected 2 sections, got %d", len(sections))
	}
	if sections[0].Heading != "SCOPE" {
		t.Fatalf("heading = %q", sections[0].Heading)
	}
}

func TestSegmentHeadingWithoutBody(t *testing.T) {
	text := `# Training Requirements

# Recordkeeping
All training records are retained for three years.`
	sections, err := NewSegmenter().Segment(text)
	if err != nil {
		t.Fatalf("segment: %v", err)
	}
	if len(sections) != 2 {
		t.Fatalf("expected 2 sections, got %d", len(sections))
	}
	// A bodyless heading still names a section; its text is the heading.
	if sections[0].Text != "Training Requirements" {
		t.Fatalf("bodyless section text = %q", sections[0].Text)
	}
}

func TestSegmentFallbackChunking(t *testing.T) {
	// No recognizable headings anywhere; long prose must still segment.
	sentence := "the operator records the batch number and verifies the seal before moving on. "
	text := strings.Repeat(sentence, 60)
	sections, err := NewSegmenter(WithChunking(400, 40)).Segment(text)
	if err != nil {
		t.Fatalf("segment: %v", err)
	}
	if len(sections) < 2 {
		t.Fatalf("expected multiple chunked sections, got %d", len(sections))
	}
	for i, s := range sections {
		if s.Order != i {
			t.Fatalf("chunk %d has order %d", i, s.Order)
		}
		if !strings.HasPrefix(s.Heading, "Part ") {
			t.Fatalf("chunk heading = %q", s.Heading)
		}
	}
}

func TestSegmentEmptyDocument(t *testing.T) {
	_, err := NewSegmenter().Segment("  \n\t ")
	if !errors.Is(err, compliance.ErrParse) {
		t.Fatalf("expected ParseError, got %v", err)
	}
}
