package policy

import "regexp"

type redaction struct {
	pattern     *regexp.Regexp
	replacement string
}

// Order matters: cards before Aadhaar numbers, and both before phones, since
// each later pattern also matches the earlier ones' digit runs.
var redactions = []redaction{
	{regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`), "[REDACTED_EMAIL]"},
	{regexp.MustCompile(`(?i)\b(?:dob|date of birth)\s*[:\-]?\s*\d{1,2}[/.\-]\d{1,2}[/.\-]\d{2,4}`), "[REDACTED_DOB]"},
	{regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`), "[REDACTED_CARD]"},
	{regexp.MustCompile(`\b\d{4}[ -]?\d{4}[ -]?\d{4}\b`), "[REDACTED_AADHAAR]"},
	{regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`), "[REDACTED_PHONE]"},
}

// RedactPII masks contact details and identifiers in free text before it
// leaves the device or reaches a log line.
func RedactPII(input string) (redacted string, changed bool) {
	out := input
	for _, r := range redactions {
		next := r.pattern.ReplaceAllString(out, r.replacement)
		changed = changed || next != out
		out = next
	}
	return out, changed
}
