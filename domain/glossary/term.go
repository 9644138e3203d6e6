// Package glossary provides domain terms used to enrich condition matching.
package glossary

import "strings"

// Term is a named domain concept with synonyms.
type Term struct {
	// ID is the unique identifier for this term.
	ID string `json:"id"`

	// Name is the canonical term name, unique within an agent.
	Name string `json:"name"`

	// Description explains the term to the condition evaluator.
	Description string `json:"description"`

	// Synonyms are alternative spellings that also denote this term.
	Synonyms []string `json:"synonyms,omitempty"`
}

// MentionedIn reports whether the term's name or any synonym appears in the
// given text, case-folded.
func (t Term) MentionedIn(text string) bool {
	folded := strings.ToLower(text)
	if t.Name != "" && strings.Contains(folded, strings.ToLower(t.Name)) {
		return true
	}
	for _, syn := range t.Synonyms {
		if syn != "" && strings.Contains(folded, strings.ToLower(syn)) {
			return true
		}
	}
	return false
}

// Relevant returns the subset of terms mentioned in any of the given texts.
// Definition order is preserved.
func Relevant(terms []Term, texts ...string) []Term {
	var out []Term
	for _, t := range terms {
		for _, text := range texts {
			if t.MentionedIn(text) {
				out = append(out, t)
				break
			}
		}
	}
	return out
}
