// File path: internal/sop/segmenter.go

// Package sop segments a Standard Operating Procedure's pre-extracted plain
// text into the ordered, immutable sections the pipeline evaluates. Heading
// cues drive segmentation; documents without recognizable headings fall back
// to recursive character chunking so every SOP still yields sections.
package sop

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/auditkit/sopcheck/internal/common"
	"github.com/auditkit/sopcheck/internal/compliance"
)

const (
	defaultChunkSize    = 1200
	defaultChunkOverlap = 100
)

// Segmenter splits SOP text into sections.
type Segmenter struct {
	chunkSize    int
	chunkOverlap int
}

// Option configures a Segmenter.
type Option func(*Segmenter)

// WithChunking overrides the fallback chunk size and overlap.
func WithChunking(size, overlap int) Option {
	return func(s *Segmenter) {
		if size > 0 {
			s.chunkSize = size
		}
		if overlap >= 0 {
			s.chunkOverlap = overlap
		}
	}
}

func NewSegmenter(opts ...Option) *Segmenter {
	s := &Segmenter{chunkSize: defaultChunkSize, chunkOverlap: defaultChunkOverlap}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

var (
	markdownHeadingRe = regexp.MustCompile(`^#{1,6}\s+(.+)$`)
	numberedHeadingRe = regexp.MustCompile(`^\d+(?:\.\d+)*[.)]?\s+\S.*$`)
	slugRe            = regexp.MustCompile(`[^a-z0-9]+`)
)

// Segment returns the ordered sections of the SOP. Sections are immutable
// after this call; Order is the position in the document.
func (s *Segmenter) Segment(text string) ([]compliance.SOPSection, error) {
	if strings.TrimSpace(text) == "" {
		return nil, compliance.ParseErrorf("sop document has no text")
	}
	sections := segmentByHeadings(text)
	if len(sections) == 0 {
		var err error
		sections, err = s.segmentByChunks(text)
		if err != nil {
			return nil, err
		}
	}
	common.Logger().Info("sop: document segmented", "sections", len(sections))
	return sections, nil
}

func segmentByHeadings(text string) []compliance.SOPSection {
	lines := strings.Split(text, "\n")
	var sections []compliance.SOPSection
	var heading string
	var body []string
	flush := func() {
		content := strings.TrimSpace(strings.Join(body, "\n"))
		if heading == "" && content == "" {
			return
		}
		if content == "" {
			// A heading with no body still names a section; evaluate the
			// heading text itself.
			content = heading
		}
		order := len(sections)
		sections = append(sections, compliance.SOPSection{
			ID:      sectionID(order, heading),
			Heading: heading,
			Text:    content,
			Order:   order,
		})
		body = nil
	}
	sawHeading := false
	for _, line := range lines {
		if h, ok := headingText(line); ok {
			if sawHeading {
				flush()
			} else {
				// Preamble before the first heading becomes its own section
				// when it has content.
				if strings.TrimSpace(strings.Join(body, "\n")) != "" {
					heading = "Preamble"
					flush()
				}
				body = nil
				sawHeading = true
			}
			heading = h
			continue
		}
		body = append(body, line)
	}
	if !sawHeading {
		return nil
	}
	flush()
	return sections
}

func headingText(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return "", false
	}
	if m := markdownHeadingRe.FindStringSubmatch(trimmed); m != nil {
		return strings.TrimSpace(m[1]), true
	}
	words := strings.Fields(trimmed)
	if numberedHeadingRe.MatchString(trimmed) && len(words) <= 12 && !strings.HasSuffix(trimmed, ".") {
		return trimmed, true
	}
	if len(words) <= 8 && isAllCaps(trimmed) {
		return trimmed, true
	}
	return "", false
}

func isAllCaps(s string) bool {
	hasLetter := false
	for _, r := range s {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsUpper(r) {
			hasLetter = true
		}
	}
	return hasLetter
}

func (s *Segmenter) segmentByChunks(text string) ([]compliance.SOPSection, error) {
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(s.chunkSize),
		textsplitter.WithChunkOverlap(s.chunkOverlap),
	)
	chunks, err := splitter.SplitText(text)
	if err != nil {
		return nil, compliance.ParseErrorf("chunk sop text: %v", err)
	}
	sections := make([]compliance.SOPSection, 0, len(chunks))
	for _, chunk := range chunks {
		trimmed := strings.TrimSpace(chunk)
		if trimmed == "" {
			continue
		}
		order := len(sections)
		heading := fmt.Sprintf("Part %d", order+1)
		sections = append(sections, compliance.SOPSection{
			ID:      sectionID(order, heading),
			Heading: heading,
			Text:    trimmed,
			Order:   order,
		})
	}
	if len(sections) == 0 {
		return nil, compliance.ParseErrorf("sop text produced no sections")
	}
	return sections, nil
}

func sectionID(order int, heading string) string {
	slug := strings.ToLower(strings.TrimSpace(heading))
	slug = slugRe.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = "section"
	}
	if len(slug) > 48 {
		slug = slug[:48]
	}
	return fmt.Sprintf("%03d-%s", order+1, slug)
}
