package gorm

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// runMigrations runs all database migrations using gormigrate.
func runMigrations(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		// Migration 001: knowledge base and historical cases
		{
			ID: "001_knowledge_and_cases",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&KnowledgeEntry{}); err != nil {
					return err
				}
				return tx.AutoMigrate(&HistoricalCase{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("knowledge_entries", "historical_cases")
			},
		},

		// Migration 002: persisted analyses
		{
			ID: "002_analyses",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&Analysis{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("analyses")
			},
		},

		// Migration 003: solution feedback
		{
			ID: "003_solution_feedback",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&SolutionFeedback{}); err != nil {
					return err
				}
				// One row per (incident, solution, source); feedback
				// increments the counter instead of inserting again.
				return tx.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_feedback_identity
					ON solution_feedback (incident_description, solution_description, source_kind,
					                      COALESCE(knowledge_id, 0), COALESCE(case_id, 0), COALESCE(analysis_id, 0))`).Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("solution_feedback")
			},
		},
	})

	return m.Migrate()
}
