// File path: internal/extractor/patterns.go
package extractor

import (
	"regexp"
	"strings"
)

// enumStyle is the enumeration format a regulatory document numbers its
// clauses with. Detection is counting-based: the style whose marker appears
// on document lines wins, with section > decimal > roman/letter > numeric
// priority.
type enumStyle string

const (
	styleNone    enumStyle = ""
	styleSection enumStyle = "section"
	styleDecimal enumStyle = "decimal"
	styleNumeric enumStyle = "numeric"
	styleRoman   enumStyle = "roman"
	styleLetter  enumStyle = "letter"
)

var (
	sectionRe = regexp.MustCompile(`^\s*§\s*\d`)
	decimalRe = regexp.MustCompile(`^\s*\d+\.\d`)
	numericRe = regexp.MustCompile(`^\s*\d+[.)]`)
	romanRe   = regexp.MustCompile(`^\s*[IVXLCDMivxlcdm]+[.)]`)
	letterRe  = regexp.MustCompile(`^\s*(?:\([A-Za-z]\)|[A-Za-z][.)])`)

	headerPatterns = map[enumStyle]*regexp.Regexp{
		styleSection: regexp.MustCompile(`^\s*(§\s*\d+(?:\.\d+)*)`),
		styleDecimal: regexp.MustCompile(`^\s*((?:\d+\.\d+(?:\.\d+)*|\d+\.))`),
		styleNumeric: regexp.MustCompile(`^\s*(\d+[.)])`),
		styleRoman:   regexp.MustCompile(`^\s*([IVXLCDMivxlcdm]+[.)])`),
		styleLetter:  regexp.MustCompile(`^\s*((?:\([A-Za-z]\)|[A-Za-z][.)]))`),
	}
)

func detectStyle(lines []string) enumStyle {
	var section, decimal, numeric, roman, letter int
	for _, line := range lines {
		if sectionRe.MatchString(line) {
			section++
		}
		isDecimal := decimalRe.MatchString(line)
		if isDecimal {
			decimal++
		}
		// Plain numeric markers exclude decimal ones: "3." counts, "3.1" is decimal.
		if !isDecimal && numericRe.MatchString(line) {
			numeric++
		}
		if romanRe.MatchString(line) {
			roman++
		}
		if letterRe.MatchString(line) {
			letter++
		}
	}
	switch {
	case section > 0:
		return styleSection
	case decimal > 0:
		return styleDecimal
	case roman > 0 && letter > 0:
		if resolved := resolveRomanLetterConflict(lines); resolved != styleNone {
			return resolved
		}
		if roman >= letter {
			return styleRoman
		}
		return styleLetter
	case roman > 0:
		return styleRoman
	case letter > 0:
		return styleLetter
	case numeric > 0:
		return styleNumeric
	}
	return styleNone
}

// resolveRomanLetterConflict distinguishes the two single-character-ambiguous
// styles by looking for multi-character markers, which only one style can
// legitimately produce ("ii)" vs "(ab)" never both).
func resolveRomanLetterConflict(lines []string) enumStyle {
	const romanChars = "IVXLCDMivxlcdm"
	var hasMultiRoman, hasMultiLetter bool
	for _, line := range lines {
		if !romanRe.MatchString(line) && !letterRe.MatchString(line) {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		token := strings.TrimLeft(strings.TrimRight(fields[0], ".)"), "(")
		if len(token) <= 1 {
			continue
		}
		allRoman := true
		for _, ch := range token {
			if !strings.ContainsRune(romanChars, ch) {
				allRoman = false
				break
			}
		}
		if allRoman {
			hasMultiRoman = true
		} else {
			hasMultiLetter = true
		}
	}
	if hasMultiRoman && !hasMultiLetter {
		return styleRoman
	}
	if hasMultiLetter && !hasMultiRoman {
		return styleLetter
	}
	return styleNone
}

// modalRe marks sentences that state an obligation even without enumeration
// markers; it drives the fallback segmentation pass.
var modalRe = regexp.MustCompile(`(?i)\b(shall|must|is required to|are required to|may not)\b`)

// crossRefRe matches segments that merely point at another section instead of
// stating a requirement themselves.
var crossRefRe = regexp.MustCompile(`(?i)^\s*(?:see|refer to)\s+(?:section\s+)?(§?\s*[\dIVXivx][\w.()]*)\s*\.?\s*$`)
