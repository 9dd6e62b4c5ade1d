package policy

import "regexp"

// PIIDetector flags message text that appears to contain personally
// identifiable information. Detection quality is a collaborator concern; the
// pipeline only consumes the boolean.
type PIIDetector interface {
	Detect(text string) bool
}

// PatternDetector is a basic regex detector covering the identifiers most
// often pasted into advice queries.
type PatternDetector struct {
	patterns []*regexp.Regexp
}

// NewPatternDetector creates a detector for emails, UK NI numbers, phone
// numbers and postcodes.
func NewPatternDetector() *PatternDetector {
	return &PatternDetector{
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`),
			regexp.MustCompile(`\b[A-CEGHJ-PR-TW-Z]{2}\s?\d{2}\s?\d{2}\s?\d{2}\s?[A-D]\b`),
			regexp.MustCompile(`\b(?:\+44\s?|0)\d{4}\s?\d{6}\b`),
			regexp.MustCompile(`\b[A-Z]{1,2}\d[A-Z\d]?\s?\d[A-Z]{2}\b`),
		},
	}
}

// Detect reports whether any pattern matches
func (d *PatternDetector) Detect(text string) bool {
	for _, p := range d.patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// NoopDetector never flags anything; used when detection is disabled.
type NoopDetector struct{}

// Detect always returns false
func (NoopDetector) Detect(text string) bool { return false }
