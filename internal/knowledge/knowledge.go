// Package knowledge scores and retrieves knowledge base entries for an
// incident query.
package knowledge

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	gormdb "github.com/harborops/causeway/internal/db/gorm"
	"github.com/harborops/causeway/pkg/similarity"
)

// MinRelevance is the floor below which an entry is not returned.
const MinRelevance = 0.1

// UsefulnessBoost is added per recorded usefulness mark.
const UsefulnessBoost = 0.05

// Store is the slice of the core store the retriever needs.
type Store interface {
	ActiveKnowledge(ctx context.Context) ([]gormdb.KnowledgeEntry, error)
	TouchKnowledgeUsage(ctx context.Context, ids []int64) error
}

// Hit is a knowledge entry with its computed relevance.
type Hit struct {
	Entry     gormdb.KnowledgeEntry `json:"entry"`
	Relevance float64               `json:"relevance"`
}

// Retriever finds knowledge entries relevant to a query.
type Retriever struct {
	store Store
}

// NewRetriever creates a knowledge Retriever.
func NewRetriever(store Store) *Retriever {
	return &Retriever{store: store}
}

// Search scores every active entry against the query and returns the
// top hits above MinRelevance, most relevant first. Returned entries
// get their usage counters bumped.
func (r *Retriever) Search(ctx context.Context, query string, limit int) ([]Hit, error) {
	entries, err := r.store.ActiveKnowledge(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 5
	}

	hits := make([]Hit, 0, len(entries))
	for _, entry := range entries {
		relevance := Relevance(&entry, query)
		relevance += UsefulnessBoost * float64(entry.UsefulnessCount)
		if relevance > 1.0 {
			relevance = 1.0
		}
		if relevance < MinRelevance {
			continue
		}
		hits = append(hits, Hit{Entry: entry, Relevance: relevance})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Relevance > hits[j].Relevance
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}

	if len(hits) > 0 {
		ids := make([]int64, len(hits))
		for i, h := range hits {
			ids[i] = h.Entry.ID
		}
		if err := r.store.TouchKnowledgeUsage(ctx, ids); err != nil {
			log.Warn().Err(err).Msg("Failed to bump knowledge usage counters")
		}
	}

	return hits, nil
}

// Relevance scores one entry against a query. Weighted containment
// checks on title, content and keywords, plus word-overlap ratios and
// a priority bonus. Capped at 1.0.
func Relevance(entry *gormdb.KnowledgeEntry, query string) float64 {
	queryLower := strings.ToLower(strings.TrimSpace(query))
	if queryLower == "" {
		return 0.0
	}
	titleLower := strings.ToLower(entry.Title)
	contentLower := strings.ToLower(entry.Content)
	keywordsLower := strings.ToLower(entry.Keywords)

	var score float64

	// Whole-query containment, weighted by field
	if strings.Contains(titleLower, queryLower) {
		score += 0.4
	}
	if strings.Contains(contentLower, queryLower) {
		score += 0.3
	}
	if strings.Contains(keywordsLower, queryLower) {
		score += 0.2
	}

	queryTerms := similarity.Terms(queryLower)
	score += 0.2 * similarity.WordOverlapRatio(queryTerms, similarity.Terms(titleLower))
	score += 0.1 * similarity.WordOverlapRatio(queryTerms, similarity.Terms(contentLower))

	score += float64(entry.Priority) * 0.05

	// Recently used entries get a small nudge.
	if entry.LastUsed.Valid && entry.ViewCount > 0 {
		days := int(time.Since(entry.LastUsed.Time).Hours() / 24)
		if days < 1 {
			days = 1
		}
		usage := float64(entry.ViewCount) * 0.01 / float64(days)
		if usage > 0.1 {
			usage = 0.1
		}
		score += usage
	}

	if score > 1.0 {
		return 1.0
	}
	return score
}
