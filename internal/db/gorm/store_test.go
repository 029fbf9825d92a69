package gorm

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"

	"github.com/harborops/causeway/pkg/models"
)

// newTestStore creates a store backed by a temporary SQLite database.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "causeway-core-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(tmpDir) })

	store, err := NewStore(Config{
		Path:     tmpDir + "/core.db",
		LogLevel: logger.Silent,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func TestNewStore_RunsMigrations(t *testing.T) {
	store := newTestStore(t)

	for _, table := range []string{"knowledge_entries", "historical_cases", "analyses", "solution_feedback"} {
		assert.True(t, store.DB.Migrator().HasTable(table), "missing table %s", table)
	}
}

func TestKnowledgeStore_CreateAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	entry := &KnowledgeEntry{
		Title:    "VESSEL_ERR_4 advice conflict resolution",
		Content:  "Expire the existing advice before creating a new one.",
		Category: "vessel",
		Keywords: "vessel advice conflict VESSEL_ERR_4",
		Priority: PriorityHigh,
	}
	require.NoError(t, store.CreateKnowledge(ctx, entry))
	require.NotZero(t, entry.ID)

	got, err := store.GetKnowledge(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, entry.Title, got.Title)
	assert.Equal(t, "Active", got.Status)
}

func TestKnowledgeStore_RequiresTitle(t *testing.T) {
	store := newTestStore(t)

	err := store.CreateKnowledge(context.Background(), &KnowledgeEntry{Content: "body"})
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestKnowledgeStore_GetNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetKnowledge(context.Background(), 9999)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestKnowledgeStore_ActiveExcludesInactive(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateKnowledge(ctx, &KnowledgeEntry{Title: "active entry", Content: "a"}))
	inactive := &KnowledgeEntry{Title: "retired entry", Content: "b", Status: "Inactive"}
	require.NoError(t, store.CreateKnowledge(ctx, inactive))

	entries, err := store.ActiveKnowledge(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "active entry", entries[0].Title)
}

func TestKnowledgeStore_TouchUsage(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	entry := &KnowledgeEntry{Title: "touched", Content: "c"}
	require.NoError(t, store.CreateKnowledge(ctx, entry))

	require.NoError(t, store.TouchKnowledgeUsage(ctx, []int64{entry.ID}))

	got, err := store.GetKnowledge(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.ViewCount)
	assert.True(t, got.LastUsed.Valid)
}

func TestAdjustKnowledgeUsefulness_FloorsAtZero(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	entry := &KnowledgeEntry{Title: "counter", Content: "c"}
	require.NoError(t, store.CreateKnowledge(ctx, entry))

	require.NoError(t, AdjustKnowledgeUsefulness(store.DB, entry.ID, 2))
	require.NoError(t, AdjustKnowledgeUsefulness(store.DB, entry.ID, -5))

	got, err := store.GetKnowledge(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.UsefulnessCount)
}

func TestAdjustKnowledgeUsefulness_UnknownID(t *testing.T) {
	store := newTestStore(t)

	err := AdjustKnowledgeUsefulness(store.DB, 4242, 1)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestCaseStore_CreateAndQuery(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	c := &HistoricalCase{
		Description: "Duplicate container rows after double submit at gate",
		ErrorType:   "container_duplication",
		RootCause:   "Race between gate transactions",
		Category:    "container",
		Validated:   true,
	}
	require.NoError(t, store.CreateCase(ctx, c))

	byType, err := store.CasesByErrorType(ctx, "container_duplication", 10)
	require.NoError(t, err)
	require.Len(t, byType, 1)
	assert.Equal(t, c.Description, byType[0].Description)

	validated, err := store.ValidatedCases(ctx)
	require.NoError(t, err)
	assert.Len(t, validated, 1)
}

func TestCaseStore_ValidatedCasesExcludesUnvalidated(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateCase(ctx, &HistoricalCase{
		Description: "Crane spreader fault during discharge",
		ErrorType:   "crane_fault",
		Validated:   true,
	}))
	require.NoError(t, store.CreateCase(ctx, &HistoricalCase{
		Description: "Unconfirmed reefer alarm pattern",
		ErrorType:   "reefer_alarm",
	}))

	validated, err := store.ValidatedCases(ctx)
	require.NoError(t, err)
	require.Len(t, validated, 1)
	assert.Equal(t, "Crane spreader fault during discharge", validated[0].Description)
}

func TestCaseStore_RequiresDescription(t *testing.T) {
	store := newTestStore(t)

	err := store.CreateCase(context.Background(), &HistoricalCase{ErrorType: "timeout"})
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestAnalysisStore_UpsertByIncident(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := &Analysis{
		IncidentID:  "INC-100",
		Description: "EDI message stuck",
		RootCause:   "initial guess",
		Confidence:  0.5,
		Hypotheses: models.HypothesisList{
			{Description: "initial guess", Confidence: 0.5},
		},
	}
	require.NoError(t, store.SaveAnalysis(ctx, first))

	second := &Analysis{
		IncidentID:  "INC-100",
		Description: "EDI message stuck",
		RootCause:   "validation failure on EQD segment",
		Confidence:  0.9,
	}
	require.NoError(t, store.SaveAnalysis(ctx, second))

	got, err := store.GetAnalysisByIncident(ctx, "INC-100")
	require.NoError(t, err)
	assert.Equal(t, "validation failure on EQD segment", got.RootCause)
	assert.InDelta(t, 0.9, got.Confidence, 1e-9)

	var count int64
	require.NoError(t, store.DB.Model(&Analysis{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestAnalysisStore_RecentOrdering(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveAnalysis(ctx, &Analysis{IncidentID: "INC-1", Description: "a"}))
	require.NoError(t, store.SaveAnalysis(ctx, &Analysis{IncidentID: "INC-2", Description: "b"}))

	recent, err := store.RecentAnalyses(ctx, AnalysisFilter{}, 10, 0)
	require.NoError(t, err)
	require.Len(t, recent, 2)
}

func TestAnalysisStore_ConfidenceFilter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveAnalysis(ctx, &Analysis{IncidentID: "INC-HI", Description: "a", Confidence: 0.95}))
	require.NoError(t, store.SaveAnalysis(ctx, &Analysis{IncidentID: "INC-MID", Description: "b", Confidence: 0.7}))
	require.NoError(t, store.SaveAnalysis(ctx, &Analysis{IncidentID: "INC-LO", Description: "c", Confidence: 0.0}))

	high, err := store.RecentAnalyses(ctx, AnalysisFilter{MinConfidence: 0.8}, 10, 0)
	require.NoError(t, err)
	require.Len(t, high, 1)
	assert.Equal(t, "INC-HI", high[0].IncidentID)

	mid, err := store.RecentAnalyses(ctx, AnalysisFilter{MinConfidence: 0.5, MaxConfidence: 0.8}, 10, 0)
	require.NoError(t, err)
	require.Len(t, mid, 1)
	assert.Equal(t, "INC-MID", mid[0].IncidentID)

	low, err := store.RecentAnalyses(ctx, AnalysisFilter{MaxConfidence: 0.5}, 10, 0)
	require.NoError(t, err)
	require.Len(t, low, 1)
	assert.Equal(t, "INC-LO", low[0].IncidentID)
}

func TestFeedbackStore_FindCreateAdjust(t *testing.T) {
	store := newTestStore(t)

	key := FeedbackKey{
		IncidentDescription: "duplicate container MSKU1234567",
		SolutionDescription: "add idempotency key to gate submissions",
		SourceKind:          string(models.SourceKnowledge),
		KnowledgeID:         7,
	}

	_, err := FindFeedback(store.DB, key)
	assert.ErrorIs(t, err, models.ErrNotFound)

	row, err := CreateFeedback(store.DB, key, 0, "", "ops-team")
	require.NoError(t, err)
	assert.Equal(t, 1, row.UsefulnessCount)
	assert.Equal(t, 1, row.SolutionOrder)
	assert.Equal(t, "Resolution", row.SolutionType)

	found, err := FindFeedback(store.DB, key)
	require.NoError(t, err)
	assert.Equal(t, row.ID, found.ID)

	require.NoError(t, AdjustFeedbackCount(store.DB, row.ID, 1))
	require.NoError(t, AdjustFeedbackCount(store.DB, row.ID, -10))

	found, err = FindFeedback(store.DB, key)
	require.NoError(t, err)
	assert.Equal(t, 0, found.UsefulnessCount, "unmark floors the counter, row survives")
}

func TestStoreStats(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateKnowledge(ctx, &KnowledgeEntry{Title: "k", Content: "c"}))
	require.NoError(t, store.CreateCase(ctx, &HistoricalCase{Description: "d"}))

	stats, err := store.StoreStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.KnowledgeEntries)
	assert.Equal(t, int64(1), stats.HistoricalCases)
	assert.Equal(t, int64(0), stats.Analyses)
}

func TestHealthCheck(t *testing.T) {
	store := newTestStore(t)

	info := store.HealthCheck(context.Background())
	require.NotNil(t, info)
	assert.NotEqual(t, "unhealthy", info.Status)

	// Second call served from cache
	cached := store.HealthCheck(context.Background())
	assert.Equal(t, info, cached)
}
