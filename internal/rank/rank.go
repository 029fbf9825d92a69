// Package rank assembles and orders root-cause hypotheses from
// correlation findings, historical precedents and knowledge entries.
package rank

import (
	"fmt"
	"sort"

	"github.com/harborops/causeway/internal/cases"
	gormdb "github.com/harborops/causeway/internal/db/gorm"
	"github.com/harborops/causeway/internal/knowledge"
	"github.com/harborops/causeway/pkg/models"
)

// FallbackDescription is the hypothesis text emitted when no source
// produced anything.
const FallbackDescription = "unable to determine root cause from available data"

// DefaultMaxHypotheses caps the ranked list when the caller does not.
const DefaultMaxHypotheses = 5

// Rank builds the ordered hypothesis list. Operational findings carry
// their rule confidences; the best historical match contributes one
// hypothesis; knowledge hits contribute theirs with priority-derived
// confidence. The final order is by confidence, descending and stable,
// so equal-confidence hypotheses keep source order: findings, then
// case, then knowledge. sourcesChecked names the sources consulted; it
// becomes the fallback hypothesis's evidence when every source comes
// back empty.
func Rank(findings []models.Finding, caseMatches []cases.Match, knowledgeHits []knowledge.Hit, sourcesChecked []string, max int) []models.Hypothesis {
	if max <= 0 {
		max = DefaultMaxHypotheses
	}

	hypotheses := make([]models.Hypothesis, 0, len(findings)+1+len(knowledgeHits))

	for _, f := range findings {
		hypotheses = append(hypotheses, models.Hypothesis{
			Description:         f.Description,
			Rule:                f.Rule,
			Evidence:            f.Evidence,
			ContributingFactors: f.Factors,
			RecommendedSolution: f.Remediation,
			Confidence:          f.Confidence,
		})
	}

	if h := bestCaseHypothesis(caseMatches); h != nil {
		hypotheses = append(hypotheses, *h)
	}

	for _, hit := range knowledgeHits {
		hypotheses = append(hypotheses, knowledgeHypothesis(hit))
	}

	if len(hypotheses) == 0 {
		return []models.Hypothesis{{
			Description: FallbackDescription,
			Rule:        models.RuleNoRootCause,
			Evidence:    fallbackEvidence(sourcesChecked),
			Confidence:  models.RuleConfidence[models.RuleNoRootCause],
		}}
	}

	sort.SliceStable(hypotheses, func(i, j int) bool {
		return hypotheses[i].Confidence > hypotheses[j].Confidence
	})

	if len(hypotheses) > max {
		hypotheses = hypotheses[:max]
	}
	return hypotheses
}

// bestCaseHypothesis turns the strongest historical match into a
// hypothesis. Only the best match contributes; weaker precedents add
// noise, not signal.
func bestCaseHypothesis(matches []cases.Match) *models.Hypothesis {
	if len(matches) == 0 {
		return nil
	}
	best := matches[0]
	for _, m := range matches[1:] {
		if m.Similarity > best.Similarity {
			best = m
		}
	}

	description := best.Case.RootCause
	if description == "" {
		description = fmt.Sprintf("similar past incident: %s", best.Case.Description)
	}

	return &models.Hypothesis{
		Description: description,
		Rule:        models.RuleBestHistoricalMatch,
		Evidence: []string{
			fmt.Sprintf("historical case #%d matched with similarity %.2f out of %d candidates considered: %s",
				best.Case.ID, best.Similarity, len(matches), best.Case.Description),
		},
		RecommendedSolution: best.Case.Notes,
		Confidence:          models.RuleConfidence[models.RuleBestHistoricalMatch],
	}
}

// fallbackEvidence records, per source consulted, that it produced
// nothing. A hypothesis always carries at least one evidence string.
func fallbackEvidence(sourcesChecked []string) []string {
	if len(sourcesChecked) == 0 {
		return []string{"no data sources were available to check"}
	}
	evidence := make([]string, 0, len(sourcesChecked))
	for _, src := range sourcesChecked {
		evidence = append(evidence, fmt.Sprintf("checked %s: no findings", src))
	}
	return evidence
}

func knowledgeHypothesis(hit knowledge.Hit) models.Hypothesis {
	return models.Hypothesis{
		Description: hit.Entry.Title,
		Rule:        models.RuleKnowledgeMatch,
		Evidence: []string{
			fmt.Sprintf("knowledge entry #%d relevant at %.2f", hit.Entry.ID, hit.Relevance),
		},
		RecommendedSolution: hit.Entry.Content,
		Confidence:          gormdb.PriorityConfidence(hit.Entry.Priority),
	}
}
