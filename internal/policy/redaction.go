package policy

import "regexp"

type redactionRule struct {
	pattern *regexp.Regexp
	marker  string
}

// Order matters: IBANs and card numbers would otherwise be eaten by the phone rule.
var redactionRules = []redactionRule{
	{regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`), "[REDACTED_EMAIL]"},
	{regexp.MustCompile(`\b[A-Z]{2}\d{2}(?: ?[A-Z0-9]{4}){2,7}(?: ?[A-Z0-9]{1,3})?\b`), "[REDACTED_IBAN]"},
	{regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`), "[REDACTED_CARD]"},
	{regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`), "[REDACTED_PHONE]"},
}

// RedactPII masks e-mail addresses, IBANs, card and phone numbers.
func RedactPII(input string) (redacted string, changed bool) {
	out := input
	for _, r := range redactionRules {
		out = r.pattern.ReplaceAllString(out, r.marker)
	}
	return out, out != input
}

// Redact is RedactPII without the changed flag, for log fields.
func Redact(input string) string {
	out, _ := RedactPII(input)
	return out
}
