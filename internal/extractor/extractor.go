// File path: internal/extractor/extractor.go

// Package extractor turns raw regulatory document text into discrete, atomic
// clause records. Segmentation is structural (enumeration markers, modal
// verbs); an optional reasoning-model classifier then filters and normalizes
// segments. Clause ids are content-addressed, so re-extracting the same
// document never duplicates records.
package extractor

import (
	"context"
	"fmt"
	"strings"

	"github.com/auditkit/sopcheck/internal/common"
	"github.com/auditkit/sopcheck/internal/compliance"
)

// Document is one regulatory document: an identifier plus pre-extracted
// plain text. File-format handling happens upstream.
type Document struct {
	ID   string
	Text string
}

// Classifier judges whether a segment states an enforceable requirement and
// rewrites it into a single self-contained sentence. Implementations wrap a
// reasoning model; classification failure degrades to the verbatim segment.
type Classifier interface {
	Classify(ctx context.Context, text string) (requirement bool, normalized string, err error)
}

// Extractor segments regulatory text into clause candidates.
type Extractor struct {
	classifier Classifier
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithClassifier attaches a reasoning-model classifier to the second pass.
func WithClassifier(c Classifier) Option {
	return func(e *Extractor) { e.classifier = c }
}

func New(opts ...Option) *Extractor {
	e := &Extractor{}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

type segment struct {
	ref  string
	text string
}

// Extract produces the ordered clause candidates for one document. An empty
// result with no error means the document genuinely contains no enumerable
// requirements; that is logged and surfaced as a warning, never swallowed.
func (e *Extractor) Extract(ctx context.Context, doc Document) ([]compliance.Clause, []compliance.Warning, error) {
	logger := common.Logger()
	if strings.TrimSpace(doc.ID) == "" {
		return nil, nil, compliance.ParseErrorf("document id required")
	}
	if strings.TrimSpace(doc.Text) == "" {
		return nil, nil, compliance.ParseErrorf("document %s has no text", doc.ID)
	}

	lines := strings.Split(doc.Text, "\n")
	style := detectStyle(lines)
	var segments []segment
	if style == styleNone {
		segments = segmentByModalMarkers(doc.Text)
		logger.Debug("extractor: no enumeration format detected, using modal fallback",
			"document", doc.ID, "segments", len(segments))
	} else {
		segments = segmentByStyle(lines, style)
		logger.Debug("extractor: enumeration format detected",
			"document", doc.ID, "style", string(style), "segments", len(segments))
	}

	if style == styleDecimal {
		segments = resolveDecimalStems(segments)
	}

	var warnings []compliance.Warning
	if len(segments) == 0 {
		logger.Warn("extractor: document has no enumerable requirements", "document", doc.ID)
		warnings = append(warnings, compliance.Warning{
			Scope:   compliance.WarnDocument,
			RefID:   doc.ID,
			Message: "no enumerable requirements found",
		})
		return nil, warnings, nil
	}

	segments, refWarnings := resolveCrossReferences(doc.ID, segments)
	warnings = append(warnings, refWarnings...)

	clauses := make([]compliance.Clause, 0, len(segments))
	seen := make(map[string]struct{}, len(segments))
	for _, seg := range segments {
		text := seg.text
		if e.classifier != nil {
			keep, normalized, err := e.classify(ctx, text)
			if err != nil {
				warnings = append(warnings, compliance.Warning{
					Scope:   compliance.WarnClause,
					RefID:   fmt.Sprintf("%s %s", doc.ID, seg.ref),
					Message: fmt.Sprintf("classification failed, kept verbatim: %v", err),
				})
			} else if !keep {
				continue
			} else if strings.TrimSpace(normalized) != "" {
				text = strings.TrimSpace(normalized)
			}
		}
		id := compliance.ClauseID(text, doc.ID)
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		clauses = append(clauses, compliance.Clause{
			ID:               id,
			Text:             text,
			SourceDocumentID: doc.ID,
			SectionReference: seg.ref,
		})
	}
	logger.Info("extractor: document extracted",
		"document", doc.ID, "clauses", len(clauses), "warnings", len(warnings))
	return clauses, warnings, nil
}

// classify runs the classifier with a single structural retry.
func (e *Extractor) classify(ctx context.Context, text string) (bool, string, error) {
	keep, normalized, err := e.classifier.Classify(ctx, text)
	if err == nil {
		return keep, normalized, nil
	}
	keep, normalized, retryErr := e.classifier.Classify(ctx, text)
	if retryErr == nil {
		return keep, normalized, nil
	}
	return false, "", compliance.ExtractionErrorf("classify: %v", retryErr)
}

// segmentByStyle walks the document accumulating clause text under each
// enumeration header. Hyphenated line breaks are merged; text before the
// first header is noise.
func segmentByStyle(lines []string, style enumStyle) []segment {
	header := headerPatterns[style]
	var segments []segment
	var current *segment
	flush := func() {
		if current == nil {
			return
		}
		current.text = strings.TrimSpace(current.text)
		if current.text != "" {
			segments = append(segments, *current)
		}
		current = nil
	}
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if match := header.FindStringSubmatchIndex(line); match != nil {
			flush()
			ref := strings.TrimSpace(line[match[2]:match[3]])
			current = &segment{ref: ref, text: strings.TrimSpace(line[match[3]:])}
			continue
		}
		if current == nil {
			continue
		}
		appendLine(current, strings.TrimSpace(line))
	}
	flush()
	return segments
}

func appendLine(seg *segment, text string) {
	if strings.HasSuffix(seg.text, "-") {
		seg.text = strings.TrimSuffix(seg.text, "-") + text
		return
	}
	if seg.text == "" {
		seg.text = text
		return
	}
	seg.text += " " + text
}

// resolveDecimalStems distributes introductory stem text ("3. The employer
// shall:") over its deeper decimal children so each clause stands alone. The
// stem itself is not a clause once distributed.
func resolveDecimalStems(segments []segment) []segment {
	type stem struct {
		depth int
		text  string
	}
	var stack []stem
	out := make([]segment, 0, len(segments))
	for _, seg := range segments {
		depth := strings.Count(strings.TrimRight(seg.ref, "."), ".") + 1
		for len(stack) > 0 && stack[len(stack)-1].depth >= depth {
			stack = stack[:len(stack)-1]
		}
		if strings.HasSuffix(seg.text, ":") {
			stack = append(stack, stem{depth: depth, text: strings.TrimSuffix(seg.text, ":")})
			continue
		}
		if len(stack) > 0 {
			out = append(out, segment{ref: seg.ref, text: stack[len(stack)-1].text + " " + seg.text})
			continue
		}
		out = append(out, seg)
	}
	return out
}

// segmentByModalMarkers is the fallback for documents without enumeration:
// sentences carrying an obligation marker each become a candidate.
func segmentByModalMarkers(text string) []segment {
	var segments []segment
	for _, sentence := range splitSentences(text) {
		if modalRe.MatchString(sentence) {
			segments = append(segments, segment{
				ref:  fmt.Sprintf("stmt-%d", len(segments)+1),
				text: sentence,
			})
		}
	}
	return segments
}

func splitSentences(text string) []string {
	joined := strings.Join(strings.Fields(text), " ")
	var sentences []string
	start := 0
	for i := 0; i < len(joined); i++ {
		switch joined[i] {
		case '.', ';', '!', '?':
			// A period inside a numbered reference ("section 3.1") does not
			// end a sentence.
			if joined[i] == '.' && i+1 < len(joined) && joined[i+1] != ' ' {
				continue
			}
			if s := strings.TrimSpace(joined[start : i+1]); s != "" {
				sentences = append(sentences, s)
			}
			start = i + 1
		}
	}
	if s := strings.TrimSpace(joined[start:]); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// resolveCrossReferences replaces segments that only point at another section
// with the referenced text. Unresolvable references are dropped with a
// warning so they never enter retrieval.
func resolveCrossReferences(docID string, segments []segment) ([]segment, []compliance.Warning) {
	byRef := make(map[string]string, len(segments))
	for _, seg := range segments {
		byRef[normalizeRef(seg.ref)] = seg.text
	}
	var warnings []compliance.Warning
	out := make([]segment, 0, len(segments))
	for _, seg := range segments {
		match := crossRefRe.FindStringSubmatch(seg.text)
		if match == nil {
			out = append(out, seg)
			continue
		}
		target := normalizeRef(match[1])
		if referenced, ok := byRef[target]; ok && !crossRefRe.MatchString(referenced) {
			out = append(out, segment{ref: seg.ref, text: referenced})
			continue
		}
		warnings = append(warnings, compliance.Warning{
			Scope:   compliance.WarnClause,
			RefID:   fmt.Sprintf("%s %s", docID, seg.ref),
			Message: fmt.Sprintf("unresolvable cross-reference to %q", match[1]),
		})
	}
	return out, warnings
}

func normalizeRef(ref string) string {
	ref = strings.ToLower(strings.TrimSpace(ref))
	ref = strings.TrimLeft(ref, "§( ")
	return strings.TrimRight(ref, ".) ")
}
