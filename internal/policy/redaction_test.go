package policy

import (
	"strings"
	"testing"
)

func TestRedactPII(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		markers []string
		keep    string
	}{
		{
			name:    "mixed",
			input:   "Email me at sam@example.com or +31 6 12345678 and use 4242 4242 4242 4242.",
			markers: []string{"[REDACTED_EMAIL]", "[REDACTED_PHONE]", "[REDACTED_CARD]"},
			keep:    "Email me at",
		},
		{
			name:    "dutch iban",
			input:   "Refund to NL91 ABNA 0417 1643 00 please",
			markers: []string{"[REDACTED_IBAN]"},
			keep:    "please",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out, changed := RedactPII(tc.input)
			if !changed {
				t.Fatalf("changed = false, want true")
			}
			for _, marker := range tc.markers {
				if !strings.Contains(out, marker) {
					t.Fatalf("output missing marker %q: %q", marker, out)
				}
			}
			if !strings.Contains(out, tc.keep) {
				t.Fatalf("output lost %q: %q", tc.keep, out)
			}
		})
	}
}

func TestRedactLeavesPlainText(t *testing.T) {
	in := "What cloud services does Bravur offer in 2024?"
	if out, changed := RedactPII(in); changed || out != in {
		t.Fatalf("RedactPII(%q) = %q, %v", in, out, changed)
	}
	if Redact(in) != in {
		t.Fatalf("Redact changed plain text")
	}
}
