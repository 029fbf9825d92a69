package gorm

import (
	"database/sql"
	"time"

	"gorm.io/gorm"

	"github.com/harborops/causeway/pkg/models"
)

// GORM Models
//
// JSON column types (JSONStringArray, JSONMap, HypothesisList) come
// from pkg/models and implement sql.Scanner and driver.Valuer.

// Knowledge priority levels.
const (
	PriorityLow      = 1
	PriorityMedium   = 2
	PriorityHigh     = 3
	PriorityCritical = 4
)

// KnowledgeEntry is a curated knowledge base article (procedure, FAQ,
// solution, reference).
type KnowledgeEntry struct {
	Title           string                 `gorm:"type:text;not null"`
	Content         string                 `gorm:"type:text;not null"`
	Category        string                 `gorm:"index"`
	Type            string                 `gorm:"default:'Solution'"`
	Keywords        string                 `gorm:"type:text"`
	Tags            models.JSONStringArray `gorm:"type:text"`
	Source          string
	Status          string `gorm:"default:'Active';index"`
	CreatedBy       string
	LastUsed        sql.NullTime
	ID              int64     `gorm:"primaryKey;autoIncrement"`
	Priority        int       `gorm:"default:1"`
	ViewCount       int       `gorm:"default:0"`
	UsefulnessCount int       `gorm:"default:0"`
	CreatedAt       time.Time `gorm:"not null"`
	UpdatedAt       time.Time `gorm:"not null"`
}

func (KnowledgeEntry) TableName() string { return "knowledge_entries" }

// PriorityConfidence maps a knowledge priority to the confidence
// assigned to hypotheses derived from it.
func PriorityConfidence(priority int) float64 {
	switch {
	case priority >= PriorityHigh:
		return 0.7
	case priority == PriorityMedium:
		return 0.5
	default:
		return 0.3
	}
}

// HistoricalCase is a resolved incident kept as a labeled precedent.
type HistoricalCase struct {
	Description     string                 `gorm:"type:text;not null"`
	ErrorType       string                 `gorm:"index"`
	RootCause       string                 `gorm:"type:text"`
	Impact          string                 `gorm:"type:text"`
	Urgency         string
	AffectedSystems models.JSONStringArray `gorm:"type:text"`
	Category        string                 `gorm:"index"`
	Tags            models.JSONStringArray `gorm:"type:text"`
	Notes           string                 `gorm:"type:text"`
	CreatedBy       string
	ID              int64     `gorm:"primaryKey;autoIncrement"`
	Validated       bool      `gorm:"default:false"`
	UsefulnessCount int       `gorm:"default:0"`
	CreatedAt       time.Time `gorm:"not null"`
	UpdatedAt       time.Time `gorm:"not null"`
}

func (HistoricalCase) TableName() string { return "historical_cases" }

// Analysis statuses.
const (
	AnalysisStatusCompleted = "Completed"
	AnalysisStatusFailed    = "Failed"
)

// Analysis is a persisted root-cause analysis result.
type Analysis struct {
	IncidentID   string                 `gorm:"uniqueIndex;not null"`
	Description  string                 `gorm:"type:text;not null"`
	IncidentTime time.Time              `gorm:"index;not null"`
	RootCause    string                 `gorm:"type:text"`
	Hypotheses   models.HypothesisList  `gorm:"type:text"`
	Findings     models.JSONMap         `gorm:"type:text"`
	Identifiers  models.JSONMap         `gorm:"type:text"`
	SimilarCases models.JSONStringArray `gorm:"type:text"`
	Narrative    string                 `gorm:"type:text"`
	Status       string                 `gorm:"default:'Completed'"`
	ID           int64                  `gorm:"primaryKey;autoIncrement"`
	Confidence   float64                `gorm:"type:real;default:0"`
	WindowHours  int                    `gorm:"default:2"`
	AnalyzedAt   time.Time              `gorm:"index;not null"`
	CreatedAt    time.Time              `gorm:"not null"`
	UpdatedAt    time.Time              `gorm:"not null"`
}

func (Analysis) TableName() string { return "analyses" }

// BeforeCreate hook to ensure timestamps are set.
func (a *Analysis) BeforeCreate(tx *gorm.DB) error {
	if a.AnalyzedAt.IsZero() {
		a.AnalyzedAt = time.Now().UTC()
	}
	if a.Status == "" {
		a.Status = AnalysisStatusCompleted
	}
	return nil
}

// SolutionFeedback records that a particular solution helped with a
// particular incident. Rows are keyed by (incident, solution, source)
// and carry a usefulness counter instead of being duplicated.
type SolutionFeedback struct {
	IncidentDescription string `gorm:"type:text;not null;index:idx_feedback_incident"`
	SolutionDescription string `gorm:"type:text;not null"`
	SolutionType        string `gorm:"default:'Resolution'"`
	SourceKind          string `gorm:"index"`
	UserIdentifier      string
	KnowledgeID         sql.NullInt64 `gorm:"index"`
	CaseID              sql.NullInt64 `gorm:"index"`
	AnalysisID          sql.NullInt64 `gorm:"index"`
	ID                  int64         `gorm:"primaryKey;autoIncrement"`
	SolutionOrder       int           `gorm:"default:1"`
	UsefulnessCount     int           `gorm:"default:1"`
	MarkedAt            time.Time     `gorm:"not null"`
	CreatedAt           time.Time     `gorm:"not null"`
	UpdatedAt           time.Time     `gorm:"not null"`
}

func (SolutionFeedback) TableName() string { return "solution_feedback" }

// BeforeCreate hook to ensure the marked timestamp is set.
func (f *SolutionFeedback) BeforeCreate(tx *gorm.DB) error {
	if f.MarkedAt.IsZero() {
		f.MarkedAt = time.Now().UTC()
	}
	return nil
}
