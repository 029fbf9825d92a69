package rank

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborops/causeway/internal/cases"
	gormdb "github.com/harborops/causeway/internal/db/gorm"
	"github.com/harborops/causeway/internal/knowledge"
	"github.com/harborops/causeway/pkg/models"
)

func finding(rule models.DetectionRule, desc string) models.Finding {
	return models.Finding{
		Rule:        rule,
		Description: desc,
		Confidence:  models.RuleConfidence[rule],
	}
}

func TestRank_OrdersByConfidenceDesc(t *testing.T) {
	findings := []models.Finding{
		finding(models.RuleAPICascade, "cascading failures"),
		finding(models.RuleVesselAdviceConflict, "advice conflict"),
	}
	matches := []cases.Match{
		{Case: gormdb.HistoricalCase{ID: 3, RootCause: "double submit race"}, Similarity: 0.6},
	}
	hits := []knowledge.Hit{
		{Entry: gormdb.KnowledgeEntry{ID: 9, Title: "advice runbook", Priority: gormdb.PriorityHigh}, Relevance: 0.8},
	}

	ranked := Rank(findings, matches, hits, nil, 10)
	require.Len(t, ranked, 4)

	assert.Equal(t, models.RuleVesselAdviceConflict, ranked[0].Rule)
	assert.InDelta(t, 0.98, ranked[0].Confidence, 1e-9)
	for i := 1; i < len(ranked); i++ {
		assert.LessOrEqual(t, ranked[i].Confidence, ranked[i-1].Confidence)
	}
}

func TestRank_StableForEqualConfidence(t *testing.T) {
	// Historical match and API cascade share 0.85; the operational
	// finding must stay ahead of the precedent.
	findings := []models.Finding{finding(models.RuleAPICascade, "cascade")}
	matches := []cases.Match{
		{Case: gormdb.HistoricalCase{ID: 1, RootCause: "precedent"}, Similarity: 0.5},
	}

	ranked := Rank(findings, matches, nil, nil, 10)
	require.Len(t, ranked, 2)
	assert.Equal(t, models.RuleAPICascade, ranked[0].Rule)
	assert.Equal(t, models.RuleBestHistoricalMatch, ranked[1].Rule)
}

func TestRank_OnlyBestCaseContributes(t *testing.T) {
	matches := []cases.Match{
		{Case: gormdb.HistoricalCase{ID: 1, RootCause: "weaker"}, Similarity: 0.3},
		{Case: gormdb.HistoricalCase{ID: 2, RootCause: "stronger"}, Similarity: 0.7},
	}

	ranked := Rank(nil, matches, nil, nil, 10)
	require.Len(t, ranked, 1)
	assert.Equal(t, "stronger", ranked[0].Description)
	assert.InDelta(t, 0.85, ranked[0].Confidence, 1e-9)

	require.Len(t, ranked[0].Evidence, 1)
	assert.Contains(t, ranked[0].Evidence[0], "case #2")
	assert.Contains(t, ranked[0].Evidence[0], "2 candidates considered")
}

func TestRank_KnowledgePriorityConfidence(t *testing.T) {
	hits := []knowledge.Hit{
		{Entry: gormdb.KnowledgeEntry{ID: 1, Title: "low", Priority: gormdb.PriorityLow}, Relevance: 0.9},
		{Entry: gormdb.KnowledgeEntry{ID: 2, Title: "medium", Priority: gormdb.PriorityMedium}, Relevance: 0.9},
		{Entry: gormdb.KnowledgeEntry{ID: 3, Title: "high", Priority: gormdb.PriorityHigh}, Relevance: 0.9},
	}

	ranked := Rank(nil, nil, hits, nil, 10)
	require.Len(t, ranked, 3)
	assert.Equal(t, "high", ranked[0].Description)
	assert.InDelta(t, 0.7, ranked[0].Confidence, 1e-9)
	assert.Equal(t, "medium", ranked[1].Description)
	assert.InDelta(t, 0.5, ranked[1].Confidence, 1e-9)
	assert.Equal(t, "low", ranked[2].Description)
	assert.InDelta(t, 0.3, ranked[2].Confidence, 1e-9)
}

func TestRank_FallbackWhenEmpty(t *testing.T) {
	sources := []string{"operational_snapshot", "knowledge_base", "historical_cases"}
	ranked := Rank(nil, nil, nil, sources, 10)

	require.Len(t, ranked, 1)
	assert.Equal(t, FallbackDescription, ranked[0].Description)
	assert.Equal(t, models.RuleNoRootCause, ranked[0].Rule)
	assert.Zero(t, ranked[0].Confidence)

	require.Len(t, ranked[0].Evidence, 3)
	for i, src := range sources {
		assert.Contains(t, ranked[0].Evidence[i], src)
	}
}

func TestRank_FallbackEvidenceNeverEmpty(t *testing.T) {
	ranked := Rank(nil, nil, nil, nil, 10)

	require.Len(t, ranked, 1)
	assert.NotEmpty(t, ranked[0].Evidence)
}

func TestRank_MaxApplied(t *testing.T) {
	findings := []models.Finding{
		finding(models.RuleRapidDuplicateInsert, "a"),
		finding(models.RuleVesselAdviceConflict, "b"),
		finding(models.RuleAPICascade, "c"),
	}

	ranked := Rank(findings, nil, nil, nil, 2)
	assert.Len(t, ranked, 2)
}

func TestRank_CaseWithoutRootCauseUsesDescription(t *testing.T) {
	matches := []cases.Match{
		{Case: gormdb.HistoricalCase{ID: 4, Description: "gate lane sensor outage"}, Similarity: 0.4},
	}

	ranked := Rank(nil, matches, nil, nil, 10)
	require.Len(t, ranked, 1)
	assert.Contains(t, ranked[0].Description, "gate lane sensor outage")
}
