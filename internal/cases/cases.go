// Package cases retrieves historical incident cases similar to a new
// incident description.
package cases

import (
	"context"
	"sort"

	"github.com/rs/zerolog/log"

	gormdb "github.com/harborops/causeway/internal/db/gorm"
	"github.com/harborops/causeway/pkg/similarity"
)

// UsefulnessBoost is added per recorded usefulness mark on a case.
const UsefulnessBoost = 0.05

// Store is the slice of the core store the retriever needs.
type Store interface {
	ValidatedCases(ctx context.Context) ([]gormdb.HistoricalCase, error)
}

// Embedder is an optional semantic scorer. When present, the retriever
// takes the better of the lexical and semantic scores per case.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Match is a historical case with its similarity to the query.
type Match struct {
	Case       gormdb.HistoricalCase `json:"case"`
	Similarity float64               `json:"similarity"`
}

// Retriever finds similar historical cases.
type Retriever struct {
	store         Store
	embedder      Embedder
	minSimilarity float64
}

// NewRetriever creates a case Retriever. embedder may be nil; scoring
// then stays purely lexical.
func NewRetriever(store Store, embedder Embedder, minSimilarity float64) *Retriever {
	if minSimilarity <= 0 {
		minSimilarity = 0.1
	}
	return &Retriever{
		store:         store,
		embedder:      embedder,
		minSimilarity: minSimilarity,
	}
}

// FindSimilar returns the cases most similar to the query, best first.
// Cases below the similarity threshold are excluded entirely, as are
// unvalidated cases.
func (r *Retriever) FindSimilar(ctx context.Context, query string, limit int) ([]Match, error) {
	all, err := r.store.ValidatedCases(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 3
	}

	semantic := r.semanticScores(ctx, query, all)

	matches := make([]Match, 0, len(all))
	for i, c := range all {
		if !c.Validated {
			continue
		}
		score := similarity.Score(query, c.Description, c.Category)
		if semantic != nil && semantic[i] > score {
			score = semantic[i]
		}
		score += UsefulnessBoost * float64(c.UsefulnessCount)
		if score > 1.0 {
			score = 1.0
		}
		if score < r.minSimilarity {
			continue
		}
		matches = append(matches, Match{Case: c, Similarity: score})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].Case.UsefulnessCount > matches[j].Case.UsefulnessCount
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// semanticScores embeds the query and every case description and
// returns per-case cosine similarities. Any embedding failure degrades
// to nil (lexical-only scoring).
func (r *Retriever) semanticScores(ctx context.Context, query string, all []gormdb.HistoricalCase) []float64 {
	if r.embedder == nil || len(all) == 0 {
		return nil
	}

	texts := make([]string, 0, len(all)+1)
	texts = append(texts, query)
	for _, c := range all {
		texts = append(texts, c.Description)
	}

	vectors, err := r.embedder.Embed(ctx, texts)
	if err != nil || len(vectors) != len(texts) {
		log.Warn().Err(err).Msg("Embedding unavailable, falling back to lexical case matching")
		return nil
	}

	scores := make([]float64, len(all))
	for i := range all {
		scores[i] = similarity.Cosine(vectors[0], vectors[i+1])
	}
	return scores
}
