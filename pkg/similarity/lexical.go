// Package similarity provides lexical text similarity utilities.
package similarity

import (
	"math"
	"strings"
)

// Scoring constants for incident-to-case matching. The phrase bonus
// rewards exact substring containment of the whole query; the category
// bonus rewards a case whose category tag appears in the query.
const (
	PhraseBonus   = 0.2
	CategoryBonus = 0.1
)

// stopWords are excluded from term sets. Matching on these inflates
// similarity between unrelated incident descriptions.
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true,
	"was": true, "were": true, "be": true, "been": true, "being": true,
	"have": true, "has": true, "had": true, "do": true, "does": true,
	"did": true, "will": true, "would": true, "could": true, "should": true,
	"may": true, "might": true, "must": true, "shall": true,
	"this": true, "that": true, "these": true, "those": true,
	"and": true, "or": true, "but": true, "if": true, "then": true,
	"for": true, "from": true, "with": true, "about": true, "into": true,
	"to": true, "of": true, "in": true, "on": true, "at": true, "by": true,
	"it": true, "its": true, "which": true, "who": true, "what": true,
	"when": true, "where": true, "how": true, "why": true,
}

// Terms tokenizes text into a set of lowercase terms, splitting on
// non-alphanumeric runes and dropping stop words and short tokens.
func Terms(text string) map[string]bool {
	terms := make(map[string]bool)
	AddTerms(terms, text)
	return terms
}

// AddTerms tokenizes text and adds meaningful terms to an existing set.
func AddTerms(terms map[string]bool, text string) {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_')
	})

	for _, word := range words {
		if len(word) >= 3 && !stopWords[word] {
			terms[word] = true
		}
	}
}

// Jaccard calculates the Jaccard similarity between two term sets.
// Returns a value between 0 (no overlap) and 1 (identical).
func Jaccard(set1, set2 map[string]bool) float64 {
	if len(set1) == 0 && len(set2) == 0 {
		return 1.0
	}
	if len(set1) == 0 || len(set2) == 0 {
		return 0.0
	}

	intersection := 0
	for term := range set1 {
		if set2[term] {
			intersection++
		}
	}

	union := len(set1) + len(set2) - intersection
	if union == 0 {
		return 0.0
	}

	return float64(intersection) / float64(union)
}

// Score computes the lexical similarity between a query and a candidate
// description: Jaccard over term sets, plus a phrase bonus when the whole
// query appears verbatim in the candidate, plus a category bonus when the
// candidate's category tag occurs in the query. Capped at 1.0.
func Score(query, description, category string) float64 {
	queryLower := strings.ToLower(strings.TrimSpace(query))
	descLower := strings.ToLower(description)

	score := Jaccard(Terms(queryLower), Terms(descLower))

	if queryLower != "" && strings.Contains(descLower, queryLower) {
		score += PhraseBonus
	}

	category = strings.ToLower(strings.TrimSpace(category))
	if category != "" && strings.Contains(queryLower, category) {
		score += CategoryBonus
	}

	if score > 1.0 {
		return 1.0
	}
	return score
}

// WordOverlapRatio returns the fraction of query terms present in the
// candidate term set. Used by the knowledge relevance scorer where the
// denominator is the query, not the union.
func WordOverlapRatio(queryTerms, candidateTerms map[string]bool) float64 {
	if len(queryTerms) == 0 {
		return 0.0
	}
	matches := 0
	for term := range queryTerms {
		if candidateTerms[term] {
			matches++
		}
	}
	return float64(matches) / float64(len(queryTerms))
}

// Cosine computes cosine similarity between two embedding vectors.
// Returns 0 when dimensions mismatch or either vector is zero.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0.0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0.0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
