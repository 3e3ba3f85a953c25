// Package suggest generates and de-duplicates "next question" suggestions.
package suggest

import (
	"strings"
	"unicode"
)

// stopWords are ignored when comparing questions for similarity. The set is
// small on purpose: it strips connective tissue, not meaning.
var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "is": {}, "are": {}, "was": {}, "were": {},
	"do": {}, "does": {}, "did": {}, "what": {}, "how": {}, "why": {},
	"when": {}, "who": {}, "which": {}, "your": {}, "you": {}, "their": {},
	"of": {}, "for": {}, "to": {}, "in": {}, "on": {}, "and": {}, "or": {},
	"about": {}, "with": {}, "have": {}, "has": {}, "can": {}, "could": {},
	"would": {}, "will": {}, "this": {}, "that": {}, "it": {}, "its": {},
}

// Normalize lowercases, maps punctuation to spaces, and collapses runs of
// whitespace. Two questions that normalize equal are the same question.
func Normalize(s string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			return unicode.ToLower(r)
		default:
			return ' '
		}
	}, s)
	return strings.Join(strings.Fields(mapped), " ")
}

func contentWords(normalized string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range strings.Fields(normalized) {
		if _, stop := stopWords[w]; stop {
			continue
		}
		out[w] = struct{}{}
	}
	return out
}

// Similarity computes word-set Jaccard similarity of two questions after
// normalization, ignoring stop words. Two empty word sets count as identical.
func Similarity(a, b string) float64 {
	wa := contentWords(Normalize(a))
	wb := contentWords(Normalize(b))
	if len(wa) == 0 && len(wb) == 0 {
		return 1
	}
	inter := 0
	for w := range wa {
		if _, ok := wb[w]; ok {
			inter++
		}
	}
	union := len(wa) + len(wb) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// duplicateThreshold marks a candidate as a duplicate of an existing
// question.
const duplicateThreshold = 0.7

// FilterNew returns the candidates that are not duplicates of any existing
// question and not exact-normalized duplicates of one another. Order is
// preserved; blank candidates are dropped.
func FilterNew(candidates, existing []string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, cand := range candidates {
		norm := Normalize(cand)
		if norm == "" {
			continue
		}
		if _, dup := seen[norm]; dup {
			continue
		}
		isDup := false
		for _, ex := range existing {
			if Similarity(cand, ex) >= duplicateThreshold {
				isDup = true
				break
			}
		}
		if isDup {
			continue
		}
		seen[norm] = struct{}{}
		out = append(out, cand)
	}
	return out
}
