package intent

import (
	"strings"
	"unicode/utf8"

	"github.com/ent0n29/bravurbot/internal/fuzzy"
)

const (
	// DefaultCueThreshold is the partial-ratio score at which a recall phrase marks text as contextual.
	DefaultCueThreshold = 85
	// DefaultMemoryThreshold is the partial-ratio score at which the resolver answers from history.
	DefaultMemoryThreshold = 80

	vagueMaxWords = 5
)

var (
	lastQuestionPhrases = []string{
		"what was my last question", "my previous question", "remind me my last question",
		"what did i ask before", "my earlier question", "show my previous question",
		"tell me my last question", "repeat my last question", "what did i say last",
	}
	lastAnswerPhrases = []string{"your last answer", "what you said before"}
	summaryPhrases    = []string{"summarize our talk", "recap this"}

	memoryPhrases = concat(lastQuestionPhrases, lastAnswerPhrases, summaryPhrases)

	strongContextPhrases = []string{
		"more about that", "about that point", "the first one", "the second one",
		"the third one", "what about it", "and that",
	}
	barePronouns    = []string{"that", "it", "this", "those", "them"}
	infoSeekingStem = []string{"what is", "what are", "what's"}
)

// MemoryKind identifies which recall family a memory phrase belongs to.
type MemoryKind int

const (
	MemoryNone MemoryKind = iota
	MemoryLastQuestion
	MemoryLastAnswer
	MemorySummary
)

// Detector flags utterances that probably refer to earlier turns.
type Detector struct {
	CueThreshold    int
	MemoryThreshold int
}

func NewDetector(cueThreshold, memoryThreshold int) Detector {
	if cueThreshold <= 0 {
		cueThreshold = DefaultCueThreshold
	}
	if memoryThreshold <= 0 {
		memoryThreshold = DefaultMemoryThreshold
	}
	return Detector{CueThreshold: cueThreshold, MemoryThreshold: memoryThreshold}
}

// IsContextual applies the cue rules in order; the first match wins.
func (d Detector) IsContextual(text string) bool {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return false
	}
	if matchesPhrase(lower, memoryPhrases, d.cueThreshold()) {
		return true
	}
	for _, p := range strongContextPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}

	words := strings.Fields(strings.Trim(lower, "?!.,"))
	if len(words) == 0 || len(words) > 3 {
		return false
	}
	for _, stem := range infoSeekingStem {
		if strings.HasPrefix(lower, stem) {
			return false
		}
	}
	for _, w := range words {
		w = strings.Trim(w, "?!.,")
		for _, p := range barePronouns {
			if w == p {
				return true
			}
		}
	}
	return false
}

// IsVague reports whether text is contextual and too short to carry a topic of
// its own, like "tell me more about that". Longer questions that merely contain
// a cue ("apps and that kind of software") are not vague.
func (d Detector) IsVague(text string) bool {
	return len(strings.Fields(text)) <= vagueMaxWords && d.IsContextual(text)
}

// IsMemoryPhrase reports whether text is an explicit recall request.
func (d Detector) IsMemoryPhrase(text string) bool {
	return d.MemoryKind(text) != MemoryNone
}

// MemoryKind classifies an explicit recall request.
func (d Detector) MemoryKind(text string) MemoryKind {
	threshold := d.memoryThreshold()
	switch {
	case matchesPhrase(text, lastQuestionPhrases, threshold):
		return MemoryLastQuestion
	case matchesPhrase(text, lastAnswerPhrases, threshold):
		return MemoryLastAnswer
	case matchesPhrase(text, summaryPhrases, threshold):
		return MemorySummary
	default:
		return MemoryNone
	}
}

func (d Detector) cueThreshold() int {
	if d.CueThreshold <= 0 {
		return DefaultCueThreshold
	}
	return d.CueThreshold
}

func (d Detector) memoryThreshold() int {
	if d.MemoryThreshold <= 0 {
		return DefaultMemoryThreshold
	}
	return d.MemoryThreshold
}

// matchesPhrase is fuzzy.PartialRatio against each phrase, ignoring phrases
// more than twice as long as text so that "hi" does not match "recap this".
func matchesPhrase(text string, phrases []string, threshold int) bool {
	text = strings.ToLower(strings.TrimSpace(text))
	n := utf8.RuneCountInString(text)
	for _, p := range phrases {
		if 2*n < utf8.RuneCountInString(p) {
			continue
		}
		if fuzzy.PartialRatio(text, p) >= threshold {
			return true
		}
	}
	return false
}

func concat(lists ...[]string) []string {
	var out []string
	for _, l := range lists {
		out = append(out, l...)
	}
	return out
}
