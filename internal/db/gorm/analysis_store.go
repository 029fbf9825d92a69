package gorm

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/harborops/causeway/pkg/models"
)

// SaveAnalysis persists an analysis result, replacing any previous
// result for the same incident id.
func (s *Store) SaveAnalysis(ctx context.Context, a *Analysis) error {
	timeoutCtx, cancel := s.WithTimeout(ctx, DefaultQueryTimeout, "save_analysis")
	defer cancel()

	return s.DB.WithContext(timeoutCtx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "incident_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"description", "incident_time", "root_cause", "hypotheses",
				"findings", "identifiers", "similar_cases", "narrative",
				"status", "confidence", "window_hours", "analyzed_at", "updated_at",
			}),
		}).
		Create(a).Error
}

// GetAnalysisByIncident fetches the stored analysis for an incident id.
func (s *Store) GetAnalysisByIncident(ctx context.Context, incidentID string) (*Analysis, error) {
	timeoutCtx, cancel := s.WithTimeout(ctx, FastQueryTimeout, "get_analysis")
	defer cancel()

	var a Analysis
	err := s.DB.WithContext(timeoutCtx).
		Where("incident_id = ?", incidentID).
		First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// GetAnalysisByID fetches a stored analysis by its row id.
func (s *Store) GetAnalysisByID(ctx context.Context, id int64) (*Analysis, error) {
	timeoutCtx, cancel := s.WithTimeout(ctx, FastQueryTimeout, "get_analysis_by_id")
	defer cancel()

	var a Analysis
	err := s.DB.WithContext(timeoutCtx).First(&a, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// AnalysisFilter narrows a listing to a confidence band. The zero value
// matches everything.
type AnalysisFilter struct {
	MinConfidence float64
	MaxConfidence float64 // 0 means no upper bound
}

// RecentAnalyses returns the most recent analyses, newest first.
func (s *Store) RecentAnalyses(ctx context.Context, filter AnalysisFilter, limit, offset int) ([]Analysis, error) {
	timeoutCtx, cancel := s.WithTimeout(ctx, DefaultQueryTimeout, "recent_analyses")
	defer cancel()

	if limit <= 0 {
		limit = 20
	}
	query := s.DB.WithContext(timeoutCtx)
	if filter.MinConfidence > 0 {
		query = query.Where("confidence >= ?", filter.MinConfidence)
	}
	if filter.MaxConfidence > 0 {
		query = query.Where("confidence < ?", filter.MaxConfidence)
	}

	var analyses []Analysis
	err := query.
		Order("analyzed_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&analyses).Error
	return analyses, err
}

// StoreStats summarizes core store contents for the stats endpoint.
type StoreStats struct {
	KnowledgeEntries int64 `json:"knowledge_entries"`
	HistoricalCases  int64 `json:"historical_cases"`
	Analyses         int64 `json:"analyses"`
	FeedbackRows     int64 `json:"feedback_rows"`
}

// Stats counts rows across the core tables.
func (s *Store) StoreStats(ctx context.Context) (*StoreStats, error) {
	timeoutCtx, cancel := s.WithTimeout(ctx, DefaultQueryTimeout, "store_stats")
	defer cancel()

	var stats StoreStats
	db := s.DB.WithContext(timeoutCtx)
	if err := db.Model(&KnowledgeEntry{}).Count(&stats.KnowledgeEntries).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&HistoricalCase{}).Count(&stats.HistoricalCases).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&Analysis{}).Count(&stats.Analyses).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&SolutionFeedback{}).Count(&stats.FeedbackRows).Error; err != nil {
		return nil, err
	}
	return &stats, nil
}
