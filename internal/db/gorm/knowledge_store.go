package gorm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/harborops/causeway/pkg/models"
)

// CreateKnowledge inserts a new knowledge entry.
func (s *Store) CreateKnowledge(ctx context.Context, entry *KnowledgeEntry) error {
	timeoutCtx, cancel := s.WithTimeout(ctx, DefaultQueryTimeout, "create_knowledge")
	defer cancel()

	if entry.Title == "" {
		return fmt.Errorf("%w: knowledge entry requires a title", models.ErrValidation)
	}
	if entry.Status == "" {
		entry.Status = "Active"
	}
	return s.DB.WithContext(timeoutCtx).Create(entry).Error
}

// GetKnowledge fetches a knowledge entry by id.
func (s *Store) GetKnowledge(ctx context.Context, id int64) (*KnowledgeEntry, error) {
	timeoutCtx, cancel := s.WithTimeout(ctx, FastQueryTimeout, "get_knowledge")
	defer cancel()

	var entry KnowledgeEntry
	err := s.DB.WithContext(timeoutCtx).First(&entry, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// ActiveKnowledge returns all active entries for relevance scoring.
// The corpus is small enough to score in memory.
func (s *Store) ActiveKnowledge(ctx context.Context) ([]KnowledgeEntry, error) {
	timeoutCtx, cancel := s.WithTimeout(ctx, DefaultQueryTimeout, "active_knowledge")
	defer cancel()

	var entries []KnowledgeEntry
	err := s.DB.WithContext(timeoutCtx).
		Where("status = ?", "Active").
		Find(&entries).Error
	return entries, err
}

// TouchKnowledgeUsage bumps the view counter and last-used timestamp
// for entries returned to a caller.
func (s *Store) TouchKnowledgeUsage(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	timeoutCtx, cancel := s.WithTimeout(ctx, DefaultQueryTimeout, "touch_knowledge_usage")
	defer cancel()

	return s.DB.WithContext(timeoutCtx).
		Model(&KnowledgeEntry{}).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{
			"view_count": gorm.Expr("view_count + 1"),
			"last_used":  time.Now().UTC(),
		}).Error
}

// AdjustKnowledgeUsefulness shifts the usefulness counter by delta
// inside the given transaction, flooring at zero. Returns ErrNotFound
// when the entry does not exist.
func AdjustKnowledgeUsefulness(tx *gorm.DB, id int64, delta int) error {
	result := tx.Model(&KnowledgeEntry{}).
		Where("id = ?", id).
		Update("usefulness_count", flooredCounterExpr(delta))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrNotFound
	}
	return nil
}
