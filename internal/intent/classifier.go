package intent

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/ent0n29/bravurbot/internal/llm"
	"github.com/ent0n29/bravurbot/internal/policy"
)

// Source tells where a label came from.
type Source string

const (
	SourceRule     Source = "rule"
	SourceModel    Source = "model"
	SourceInvalid  Source = "invalid"
	SourceFallback Source = "fallback"
)

// Result is a classification outcome.
type Result struct {
	Label  Label
	Source Source
}

var (
	humanSupportPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(talk|speak|chat)\s+(to|with)\s+(someone|somebody|a\s+human|a\s+person|a\s+real\s+person|an?\s+(agent|employee|representative)|support|your\s+team)\b`),
		regexp.MustCompile(`(?i)\b(human|live|real)\s+(agent|support|person|being|help)\b`),
		regexp.MustCompile(`(?i)\b(contact|call|reach)\s+(support|your\s+support|a\s+person|someone)\b`),
		regexp.MustCompile(`(?i)\bcustomer\s+service\b`),
		regexp.MustCompile(`(?i)\b(spreken|praten)\s+met\s+(iemand|een\s+mens|een\s+medewerker)\b`),
		regexp.MustCompile(`(?i)\b(menselijke\s+hulp|echte\s+medewerker)\b`),
	}

	gratitudeTerms = []string{
		"thanks", "thank you", "thank u", "thx", "ty", "cheers", "much appreciated",
		"bedankt", "dankjewel", "dank je", "dank u", "merci",
	}
	frustrationTerms = []string{
		"useless", "not helpful", "unhelpful", "annoying", "frustrating", "frustrated",
		"stupid", "you don't understand", "you dont understand", "this is wrong", "waardeloos",
		"irritant", "nutteloos", "je begrijpt het niet",
	}
	acknowledgeTerms = []string{
		"great", "awesome", "perfect", "cool", "nice", "got it", "ok", "okay", "alright",
		"good to know", "prima", "helemaal goed", "duidelijk", "mooi",
	}
	// affectFiller may surround a mood term without making the utterance a question.
	affectFiller = map[string]bool{
		"a": true, "lot": true, "so": true, "very": true, "much": true, "really": true,
		"you": true, "for": true, "the": true, "help": true, "that": true, "that's": true,
		"thats": true, "is": true, "it": true, "this": true, "was": true, "are": true,
		"oh": true, "yes": true, "yeah": true, "just": true, "and": true,
		"ja": true, "wel": true, "heel": true, "erg": true, "hoor": true, "dat": true,
		"het": true, "dit": true, "veel": true,
	}
)

// affectMaxWords bounds the utterance length for the mood lexicon.
const affectMaxWords = 5

// Classifier is the fast first-pass intent triage.
type Classifier struct {
	model   llm.ChatModel
	modelID string
	timeout time.Duration
	logger  *slog.Logger
}

func NewClassifier(model llm.ChatModel, modelID string, timeout time.Duration, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{model: model, modelID: modelID, timeout: timeout, logger: logger}
}

// Classify returns exactly one label. Model failures and unexpected output
// are logged and reported as Unknown.
func (c *Classifier) Classify(ctx context.Context, text, language string) Result {
	if l, ok := PreFilter(text); ok {
		c.logger.Debug("intent matched rule", "label", l)
		return Result{Label: l, Source: SourceRule}
	}
	if c.model == nil {
		return Result{Label: Unknown, Source: SourceFallback}
	}

	callCtx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.model.Complete(callCtx, llm.Request{
		Model:       c.modelID,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: initialPrompt(text, LanguageName(language))}},
		Temperature: 0,
		MaxTokens:   30,
	}, nil)
	if err != nil {
		c.logger.Error("initial intent classification failed", "error", err)
		return Result{Label: Unknown, Source: SourceFallback}
	}

	label, ok := Normalize(resp.Text, InitialLabels)
	if !ok {
		c.logger.Warn("classifier returned unexpected category", "raw", truncate(resp.Text, 80), "input", policy.Redact(truncate(text, 120)))
		return Result{Label: Unknown, Source: SourceInvalid}
	}
	c.logger.Info("initial intent classified", "label", label)
	return Result{Label: label, Source: SourceModel}
}

// PreFilter short-circuits unambiguous utterances without a model call.
func PreFilter(text string) (Label, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", false
	}
	for _, re := range humanSupportPatterns {
		if re.MatchString(trimmed) {
			return HumanSupport, true
		}
	}

	lower := strings.ToLower(trimmed)
	if strings.Contains(lower, "?") || len(strings.Fields(lower)) > affectMaxWords {
		return "", false
	}
	padded := padWords(lower)
	var label Label
	switch {
	case containsTerm(padded, frustrationTerms):
		label = Frustration
	case containsTerm(padded, gratitudeTerms):
		label = Gratitude
	case containsTerm(padded, acknowledgeTerms):
		label = PositiveAcknowledge
	default:
		return "", false
	}
	if !onlyAffect(padded) {
		return "", false
	}
	return label, true
}

// padWords turns punctuation into spaces and pads the result so terms can
// be matched as " term ".
func padWords(lower string) string {
	return " " + strings.Map(func(r rune) rune {
		if strings.ContainsRune(".,!;:", r) {
			return ' '
		}
		return r
	}, lower) + " "
}

// containsTerm matches whole words or phrases only, so "ty" does not hit "city".
func containsTerm(padded string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(padded, " "+t+" ") {
			return true
		}
	}
	return false
}

// onlyAffect reports whether nothing but mood terms and filler remains, so
// "ok what about kubernetes" is left to the model.
func onlyAffect(padded string) bool {
	rest := padded
	for _, t := range affectTermsLongestFirst {
		for strings.Contains(rest, " "+t+" ") {
			rest = strings.ReplaceAll(rest, " "+t+" ", "  ")
		}
	}
	for _, w := range strings.Fields(rest) {
		if !affectFiller[w] {
			return false
		}
	}
	return true
}

var affectTermsLongestFirst = func() []string {
	all := slices.Concat(frustrationTerms, gratitudeTerms, acknowledgeTerms)
	slices.SortStableFunc(all, func(a, b string) int { return len(b) - len(a) })
	return all
}()

func initialPrompt(text, languageName string) string {
	return fmt.Sprintf(`You are a fast intent classifier for the support chatbot of "Bravur", an IT consultancy.
The chatbot answers in %[1]s about "Bravur", general "IT Trends", or routes "Human Support" requests.
It also recognises a "Previous Conversation Query" when the user refers to earlier parts of this chat.

Classify the user's query:
- Company Info: clearly and directly about Bravur or its offerings.
- IT Trends: general IT topics and technology concepts (cloud, AI, cybersecurity) relevant to an IT consultancy. Not general knowledge.
- Human Support Service Request: the user explicitly wants human help.
- Previous Conversation Query: strongly suggests a follow-up to this conversation (e.g. "that", "it", "what was your last answer?", "summarize this chat").
- Unknown: everything else, including general knowledge, off-topic questions and bare greetings. If in doubt, choose Unknown.

Examples:
User Query: "What services does Bravur offer?" -> Company Info
User Query: "Explain blockchain technology." -> IT Trends
User Query: "I need to talk to someone." -> Human Support Service Request
User Query: "Tell me more about that." -> Previous Conversation Query
User Query: "What was my last question?" -> Previous Conversation Query
User Query: "Hi there!" -> Unknown
User Query: "What is the capital of Australia?" -> Unknown
---
User Query (in %[1]s): %[2]q

Respond with ONLY one category name from the list above.
Classified Intent:`, languageName, text)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
