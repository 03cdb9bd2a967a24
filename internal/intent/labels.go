// Package intent sorts user utterances into a small fixed set of labels.
package intent

import "strings"

// Label is one value of the closed intent enumeration.
type Label string

const (
	CompanyInfo         Label = "Company Info"
	ITTrends            Label = "IT Trends"
	HumanSupport        Label = "Human Support Service Request"
	PreviousQuery       Label = "Previous Conversation Query"
	Unknown             Label = "Unknown"
	Gratitude           Label = "Gratitude"
	Frustration         Label = "Frustration"
	PositiveAcknowledge Label = "Positive Acknowledgment"
)

// InitialLabels are the labels Stage 1 may return from the model.
var InitialLabels = []Label{HumanSupport, ITTrends, CompanyInfo, PreviousQuery, Unknown}

// RefinedLabels are the labels Stage 2 may return; the follow-up label resolves to one of these.
var RefinedLabels = []Label{CompanyInfo, ITTrends, HumanSupport, Unknown}

// AllLabels lists every label the pipeline can produce.
var AllLabels = []Label{CompanyInfo, ITTrends, HumanSupport, PreviousQuery, Unknown, Gratitude, Frustration, PositiveAcknowledge}

// IsAffect reports whether l is one of the mood labels answered from canned pools.
func (l Label) IsAffect() bool {
	switch l {
	case Gratitude, Frustration, PositiveAcknowledge:
		return true
	}
	return false
}

// Valid reports whether l belongs to the enumeration.
func (l Label) Valid() bool {
	for _, v := range AllLabels {
		if l == v {
			return true
		}
	}
	return false
}

// Slug is a lowercase identifier suitable for metric labels.
func (l Label) Slug() string {
	return strings.ReplaceAll(strings.ToLower(string(l)), " ", "_")
}

// Normalize validates raw model output against allowed. Quotes, surrounding
// whitespace, a "Classified Intent:" style prefix and trailing punctuation are
// ignored and matching is case-insensitive. Anything else yields Unknown and ok=false.
func Normalize(raw string, allowed []Label) (Label, bool) {
	s := strings.TrimSpace(raw)
	s = strings.NewReplacer(`"`, "", "'", "", "`", "", "*", "").Replace(s)
	if i := strings.LastIndex(s, ":"); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSpace(s)
	s = strings.TrimRight(s, ".!?;, ")
	for _, l := range allowed {
		if strings.EqualFold(s, string(l)) {
			return l, true
		}
	}
	return Unknown, false
}

// LanguageName maps a locale tag to the language used in prompts and replies.
func LanguageName(language string) string {
	l := strings.ToLower(strings.TrimSpace(language))
	if l == "nl" || strings.HasPrefix(l, "nl-") {
		return "Dutch"
	}
	return "English"
}
