package gorm

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/harborops/causeway/pkg/models"
)

// CreateCase inserts a historical case.
func (s *Store) CreateCase(ctx context.Context, c *HistoricalCase) error {
	timeoutCtx, cancel := s.WithTimeout(ctx, DefaultQueryTimeout, "create_case")
	defer cancel()

	if c.Description == "" {
		return fmt.Errorf("%w: historical case requires a description", models.ErrValidation)
	}
	return s.DB.WithContext(timeoutCtx).Create(c).Error
}

// GetCase fetches a historical case by id.
func (s *Store) GetCase(ctx context.Context, id int64) (*HistoricalCase, error) {
	timeoutCtx, cancel := s.WithTimeout(ctx, FastQueryTimeout, "get_case")
	defer cancel()

	var c HistoricalCase
	err := s.DB.WithContext(timeoutCtx).First(&c, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ValidatedCases returns the case corpus for similarity scoring. Only
// validated cases are visible to retrieval; unvalidated rows exist but
// never match.
func (s *Store) ValidatedCases(ctx context.Context) ([]HistoricalCase, error) {
	timeoutCtx, cancel := s.WithTimeout(ctx, DefaultQueryTimeout, "validated_cases")
	defer cancel()

	var cases []HistoricalCase
	err := s.DB.WithContext(timeoutCtx).
		Where("validated = ?", true).
		Find(&cases).Error
	return cases, err
}

// CasesByErrorType returns cases bucketed under an error type.
func (s *Store) CasesByErrorType(ctx context.Context, errorType string, limit int) ([]HistoricalCase, error) {
	timeoutCtx, cancel := s.WithTimeout(ctx, DefaultQueryTimeout, "cases_by_error_type")
	defer cancel()

	if limit <= 0 {
		limit = 20
	}
	var cases []HistoricalCase
	err := s.DB.WithContext(timeoutCtx).
		Where("error_type = ?", errorType).
		Order("usefulness_count DESC, id DESC").
		Limit(limit).
		Find(&cases).Error
	return cases, err
}

// AdjustCaseUsefulness shifts the usefulness counter by delta inside
// the given transaction, flooring at zero.
func AdjustCaseUsefulness(tx *gorm.DB, id int64, delta int) error {
	result := tx.Model(&HistoricalCase{}).
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
