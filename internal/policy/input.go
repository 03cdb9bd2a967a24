package policy

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// DefaultMaxInputChars bounds a single chat turn.
const DefaultMaxInputChars = 1000

var (
	ErrEmptyInput    = errors.New("message cannot be empty")
	ErrInputTooLong  = errors.New("message too long")
	controlCharacter = strings.NewReplacer("\x00", "")
)

// InputDecision is the outcome of validating a user turn.
type InputDecision struct {
	Text   string
	Length int
	Err    error
}

// CheckInput trims text, strips NUL bytes and enforces maxChars (runes).
// A non-positive maxChars uses DefaultMaxInputChars.
func CheckInput(text string, maxChars int) InputDecision {
	if maxChars <= 0 {
		maxChars = DefaultMaxInputChars
	}
	cleaned := strings.TrimSpace(controlCharacter.Replace(text))
	n := utf8.RuneCountInString(cleaned)
	switch {
	case n == 0:
		return InputDecision{Text: cleaned, Err: ErrEmptyInput}
	case n > maxChars:
		return InputDecision{Text: cleaned, Length: n, Err: ErrInputTooLong}
	}
	return InputDecision{Text: cleaned, Length: n}
}
