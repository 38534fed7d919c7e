package validation

import (
	"regexp"
	"strings"
)

// RedactionChar replaces each character of a detected PII span.
const RedactionChar = "*"

// piiPattern pairs a label with its detection pattern. Order matters:
// longer, more specific patterns run before patterns that could match
// inside them.
type piiPattern struct {
	label   string
	pattern *regexp.Regexp
}

var piiPatterns = []piiPattern{
	{"email", regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)},
	{"ssn", regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{"credit_card", regexp.MustCompile(`\b(?:\d{4}[ -]?){3}\d{4}\b`)},
	{"phone", regexp.MustCompile(`\b\+?\d{0,2}[-. ]?\(?\d{3}\)?[-. ]?\d{3}[-. ]?\d{4}\b`)},
	{"ipv4", regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)},
}

// RedactPII replaces each detected PII span with a same-length run of
// the redaction character and returns the number of spans redacted.
func RedactPII(text string) (string, int) {
	redacted := text
	count := 0
	for _, p := range piiPatterns {
		redacted = p.pattern.ReplaceAllStringFunc(redacted, func(match string) string {
			count++
			return strings.Repeat(RedactionChar, len(match))
		})
	}
	return redacted, count
}

// DetectPII returns the labels of every PII category present in text.
func DetectPII(text string) []string {
	var found []string
	for _, p := range piiPatterns {
		if p.pattern.MatchString(text) {
			found = append(found, p.label)
		}
	}
	return found
}
