// File path: internal/compliance/errors.go
package compliance

import (
	"errors"
	"fmt"
)

// Error taxonomy for the pipeline. Errors scoped to one document, clause, or
// section are downgraded to warnings by the pipeline; only an index error
// raised before any persistence succeeded aborts a run.
var (
	// ErrParse marks document text or a model response that cannot be
	// mapped onto the expected structure.
	ErrParse = errors.New("parse error")
	// ErrExtraction marks clause segmentation or classification failure
	// for a single unit of text.
	ErrExtraction = errors.New("extraction error")
	// ErrService marks an unavailable or rate-limited embedding/reasoning
	// backend. Service errors are transient and eligible for retry.
	ErrService = errors.New("service error")
	// ErrIndex marks an unavailable persistence layer.
	ErrIndex = errors.New("index error")
)

// ParseErrorf wraps ErrParse with a formatted message.
func ParseErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrParse, fmt.Sprintf(format, args...))
}

// ExtractionErrorf wraps ErrExtraction with a formatted message.
func ExtractionErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrExtraction, fmt.Sprintf(format, args...))
}

// ServiceErrorf wraps ErrService with a formatted message.
func ServiceErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrService, fmt.Sprintf(format, args...))
}

// IndexErrorf wraps ErrIndex with a formatted message.
func IndexErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrIndex, fmt.Sprintf(format, args...))
}

// IsTransient reports whether err is worth retrying with backoff. Service
// errors (network, quota) are transient; parse and extraction failures are
// structural and handled with a single retry at the call site instead.
func IsTransient(err error) bool {
	return errors.Is(err, ErrService)
}
