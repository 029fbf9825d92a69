package gorm

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/harborops/causeway/pkg/models"
)

// FeedbackKey identifies a feedback row: which solution, for which
// incident, from which source.
type FeedbackKey struct {
	IncidentDescription string
	SolutionDescription string
	SourceKind          string
	KnowledgeID         int64
	CaseID              int64
	AnalysisID          int64
}

// FindFeedback looks up the feedback row matching the key inside the
// given transaction. Returns ErrNotFound when no row exists yet.
func FindFeedback(tx *gorm.DB, key FeedbackKey) (*SolutionFeedback, error) {
	var row SolutionFeedback
	err := tx.
		Where("incident_description = ?", key.IncidentDescription).
		Where("solution_description = ?", key.SolutionDescription).
		Where("source_kind = ?", key.SourceKind).
		Where("COALESCE(knowledge_id, 0) = ?", key.KnowledgeID).
		Where("COALESCE(case_id, 0) = ?", key.CaseID).
		Where("COALESCE(analysis_id, 0) = ?", key.AnalysisID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// CreateFeedback inserts a fresh feedback row with a usefulness count
// of one.
func CreateFeedback(tx *gorm.DB, key FeedbackKey, solutionOrder int, solutionType, userID string) (*SolutionFeedback, error) {
	if solutionOrder <= 0 {
		solutionOrder = 1
	}
	if solutionType == "" {
		solutionType = "Resolution"
	}
	row := &SolutionFeedback{
		IncidentDescription: key.IncidentDescription,
		SolutionDescription: key.SolutionDescription,
		SourceKind:          key.SourceKind,
		KnowledgeID:         sqlNullInt64(key.KnowledgeID),
		CaseID:              sqlNullInt64(key.CaseID),
		AnalysisID:          sqlNullInt64(key.AnalysisID),
		SolutionOrder:       solutionOrder,
		SolutionType:        solutionType,
		UserIdentifier:      userID,
		UsefulnessCount:     1,
		MarkedAt:            time.Now().UTC(),
	}
	if err := tx.Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

// AdjustFeedbackCount shifts a feedback row's usefulness counter by
// delta, flooring at zero. The row is kept even at zero so history
// survives an unmark.
func AdjustFeedbackCount(tx *gorm.DB, id int64, delta int) error {
	result := tx.Model(&SolutionFeedback{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"usefulness_count": flooredCounterExpr(delta),
			"marked_at":        time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrNotFound
	}
	return nil
}

// FeedbackForIncident lists feedback rows recorded for an incident,
// most recently marked first.
func (s *Store) FeedbackForIncident(ctx context.Context, incidentDescription string, limit int) ([]SolutionFeedback, error) {
	timeoutCtx, cancel := s.WithTimeout(ctx, DefaultQueryTimeout, "feedback_for_incident")
	defer cancel()

	if limit <= 0 {
		limit = 20
	}
	var rows []SolutionFeedback
	err := s.DB.WithContext(timeoutCtx).
		Where("incident_description = ?", incidentDescription).
		Order("marked_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
