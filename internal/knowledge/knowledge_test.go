package knowledge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gormdb "github.com/harborops/causeway/internal/db/gorm"
)

type fakeStore struct {
	entries []gormdb.KnowledgeEntry
	touched []int64
}

func (f *fakeStore) ActiveKnowledge(_ context.Context) ([]gormdb.KnowledgeEntry, error) {
	return f.entries, nil
}

func (f *fakeStore) TouchKnowledgeUsage(_ context.Context, ids []int64) error {
	f.touched = append(f.touched, ids...)
	return nil
}

func TestRelevance_TitleContainment(t *testing.T) {
	entry := &gormdb.KnowledgeEntry{
		Title:    "Resolving vessel advice conflicts",
		Content:  "Expire the active advice before creating a new one.",
		Priority: gormdb.PriorityLow,
	}

	withMatch := Relevance(entry, "vessel advice")
	withoutMatch := Relevance(entry, "reefer power failure")

	assert.Greater(t, withMatch, withoutMatch)
	assert.GreaterOrEqual(t, withMatch, 0.4)
}

func TestRelevance_PriorityBonus(t *testing.T) {
	low := &gormdb.KnowledgeEntry{Title: "EDI timeout handling", Content: "x", Priority: gormdb.PriorityLow}
	high := &gormdb.KnowledgeEntry{Title: "EDI timeout handling", Content: "x", Priority: gormdb.PriorityCritical}

	assert.InDelta(t, 0.15, Relevance(high, "edi timeout")-Relevance(low, "edi timeout"), 1e-9)
}

func TestRelevance_EmptyQuery(t *testing.T) {
	entry := &gormdb.KnowledgeEntry{Title: "anything", Content: "anything"}
	assert.Zero(t, Relevance(entry, "  "))
}

func TestRelevance_CappedAtOne(t *testing.T) {
	entry := &gormdb.KnowledgeEntry{
		Title:    "duplicate container rows",
		Content:  "duplicate container rows",
		Keywords: "duplicate container rows",
		Priority: gormdb.PriorityCritical,
	}
	assert.LessOrEqual(t, Relevance(entry, "duplicate container rows"), 1.0)
}

func TestSearch_FiltersAndSorts(t *testing.T) {
	store := &fakeStore{entries: []gormdb.KnowledgeEntry{
		{ID: 1, Title: "Vessel advice conflict resolution", Content: "expire advice", Priority: gormdb.PriorityHigh},
		{ID: 2, Title: "Reefer plug checklist", Content: "power and temperature", Priority: gormdb.PriorityLow},
		{ID: 3, Title: "Vessel advice history", Content: "vessel advice records retained", Priority: gormdb.PriorityLow},
	}}
	r := NewRetriever(store)

	hits, err := r.Search(context.Background(), "vessel advice conflict", 5)
	require.NoError(t, err)
	require.NotEmpty(t, hits)

	// Irrelevant entry filtered out
	for _, h := range hits {
		assert.NotEqual(t, int64(2), h.Entry.ID)
	}
	// Sorted by relevance descending
	for i := 1; i < len(hits); i++ {
		assert.GreaterOrEqual(t, hits[i-1].Relevance, hits[i].Relevance)
	}
	// Usage counters bumped for returned entries
	assert.NotEmpty(t, store.touched)
}

func TestSearch_UsefulnessBoostReorders(t *testing.T) {
	store := &fakeStore{entries: []gormdb.KnowledgeEntry{
		{ID: 1, Title: "Gate timeout playbook", Content: "a", Priority: gormdb.PriorityLow},
		{ID: 2, Title: "Gate timeout playbook", Content: "a", Priority: gormdb.PriorityLow, UsefulnessCount: 4},
	}}
	r := NewRetriever(store)

	hits, err := r.Search(context.Background(), "gate timeout", 5)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, int64(2), hits[0].Entry.ID)
}

func TestSearch_LimitApplied(t *testing.T) {
	store := &fakeStore{entries: []gormdb.KnowledgeEntry{
		{ID: 1, Title: "EDI segment errors", Content: "x"},
		{ID: 2, Title: "EDI segment ordering", Content: "x"},
		{ID: 3, Title: "EDI segment qualifiers", Content: "x"},
	}}
	r := NewRetriever(store)

	hits, err := r.Search(context.Background(), "edi segment", 2)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(hits), 2)
}
