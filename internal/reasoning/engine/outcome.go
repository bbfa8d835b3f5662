package engine

import (
	"strings"
	"unicode"
)

// Outcome classifies a finished diagnosis.
type Outcome string

const (
	OutcomeEscalated        Outcome = "escalated"
	OutcomeSolutionProposed Outcome = "solution_proposed"
	OutcomeFailed           Outcome = "failed"
	OutcomeInfo             Outcome = "info"
)

// negations cancel the keyword that follows them ("not critical",
// "non-critical", "no solution").
var negations = map[string]bool{
	"no": true, "not": true, "non": true, "never": true, "without": true,
	"isn't": true, "wasn't": true, "aren't": true,
}

// ClassifyOutcome derives the outcome from the result text. fellBack reports
// that the finalizer could not reach the backend.
func ClassifyOutcome(result string, fellBack bool) Outcome {
	words := strings.FieldsFunc(strings.ToLower(result), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	})
	switch {
	case fellBack:
		return OutcomeFailed
	case mentions(words, "critical"):
		return OutcomeEscalated
	case mentions(words, "solution"):
		return OutcomeSolutionProposed
	default:
		return OutcomeInfo
	}
}

// mentions reports whether keyword appears as a whole word not directly
// preceded by a negation.
func mentions(words []string, keyword string) bool {
	for i, w := range words {
		if w == keyword && (i == 0 || !negations[words[i-1]]) {
			return true
		}
	}
	return false
}
