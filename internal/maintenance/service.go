// Package maintenance provides scheduled retention and housekeeping
// tasks for the causeway stores.
package maintenance

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/harborops/causeway/internal/config"
	gormdb "github.com/harborops/causeway/internal/db/gorm"
)

// startupDelay gives the worker time to finish initialization before the
// first maintenance pass touches the database.
const startupDelay = 5 * time.Minute

// deleteBatchSize caps how many rows a single DELETE statement removes,
// keeping transactions short on busy deployments.
const deleteBatchSize = 100

// Service runs retention tasks on a fixed interval: pruning old analysis
// snapshots, dropping feedback rows whose usefulness has been fully
// retracted, and refreshing query planner statistics.
type Service struct {
	log             zerolog.Logger
	store           *gormdb.Store
	config          *config.Config
	stopCh          chan struct{}
	doneCh          chan struct{}
	lastRunTime     time.Time
	lastRunDuration time.Duration
	totalPruned     int64
	totalOptimizes  int64
	mu              sync.Mutex
	running         bool
}

// NewService creates a maintenance service over the core store.
func NewService(store *gormdb.Store, cfg *config.Config, log zerolog.Logger) *Service {
	return &Service{
		store:  store,
		config: cfg,
		log:    log.With().Str("component", "maintenance").Logger(),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start begins the maintenance loop. It blocks until the context is
// cancelled or Stop is called, so run it on its own goroutine.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		close(s.doneCh)
	}()

	if !s.config.MaintenanceEnabled {
		s.log.Info().Msg("Maintenance disabled, not starting scheduler")
		return
	}

	interval := max(time.Duration(s.config.MaintenanceIntervalHours)*time.Hour, time.Hour)

	s.log.Info().
		Dur("interval", interval).
		Int("analysis_retention_days", s.config.AnalysisRetentionDays).
		Int("feedback_retention_days", s.config.FeedbackRetentionDays).
		Msg("Starting maintenance scheduler")

	select {
	case <-ctx.Done():
		return
	case <-s.stopCh:
		return
	case <-time.After(startupDelay):
	}
	s.runMaintenance(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("Maintenance shutting down due to context cancellation")
			return
		case <-s.stopCh:
			s.log.Info().Msg("Maintenance shutting down due to stop signal")
			return
		case <-ticker.C:
			s.runMaintenance(ctx)
		}
	}
}

// Stop signals the maintenance service to stop.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	close(s.stopCh)
}

// Wait blocks until the maintenance loop has exited.
func (s *Service) Wait() {
	<-s.doneCh
}

// RunNow triggers an immediate maintenance run.
func (s *Service) RunNow(ctx context.Context) {
	go s.runMaintenance(ctx)
}

// runMaintenance executes all maintenance tasks. Task failures are
// logged and do not abort the remaining tasks.
func (s *Service) runMaintenance(ctx context.Context) {
	start := time.Now()
	s.log.Info().Msg("Starting maintenance run")

	var totalPruned int64

	if s.config.AnalysisRetentionDays > 0 {
		pruned, err := s.pruneOldAnalyses(ctx)
		if err != nil {
			s.log.Error().Err(err).Msg("Failed to prune old analyses")
		} else if pruned > 0 {
			totalPruned += pruned
			s.log.Info().Int64("pruned", pruned).Msg("Pruned old analyses")
		}
	}

	if s.config.FeedbackRetentionDays > 0 {
		pruned, err := s.pruneRetractedFeedback(ctx)
		if err != nil {
			s.log.Error().Err(err).Msg("Failed to prune retracted feedback")
		} else if pruned > 0 {
			totalPruned += pruned
			s.log.Info().Int64("pruned", pruned).Msg("Pruned retracted feedback")
		}
	}

	if err := s.store.Optimize(ctx); err != nil {
		s.log.Error().Err(err).Msg("Failed to optimize database")
	} else {
		s.mu.Lock()
		s.totalOptimizes++
		s.mu.Unlock()
	}

	s.mu.Lock()
	s.lastRunTime = time.Now()
	s.lastRunDuration = time.Since(start)
	s.totalPruned += totalPruned
	s.mu.Unlock()

	s.log.Info().
		Dur("duration", time.Since(start)).
		Int64("rows_pruned", totalPruned).
		Msg("Maintenance run completed")
}

// pruneOldAnalyses deletes analysis snapshots older than the retention
// period. Feedback referencing a pruned analysis keeps its row; the
// source link simply stops resolving.
func (s *Service) pruneOldAnalyses(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -s.config.AnalysisRetentionDays)

	var ids []int64
	err := s.store.GetDB().WithContext(ctx).
		Model(&gormdb.Analysis{}).
		Where("analyzed_at < ?", cutoff).
		Pluck("id", &ids).Error
	if err != nil {
		return 0, err
	}

	return s.deleteInBatches(ctx, ids, &gormdb.Analysis{})
}

// pruneRetractedFeedback deletes feedback rows whose usefulness count
// has dropped to zero and that have not been re-marked within the
// retention period. Rows with a positive count are kept indefinitely.
func (s *Service) pruneRetractedFeedback(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -s.config.FeedbackRetentionDays)

	var ids []int64
	err := s.store.GetDB().WithContext(ctx).
		Model(&gormdb.SolutionFeedback{}).
		Where("usefulness_count = 0 AND marked_at < ?", cutoff).
		Pluck("id", &ids).Error
	if err != nil {
		return 0, err
	}

	return s.deleteInBatches(ctx, ids, &gormdb.SolutionFeedback{})
}

// deleteInBatches removes the given rows in fixed-size batches to avoid
// long transactions.
func (s *Service) deleteInBatches(ctx context.Context, ids []int64, model any) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	for i := 0; i < len(ids); i += deleteBatchSize {
		end := min(i+deleteBatchSize, len(ids))

		if err := s.store.GetDB().WithContext(ctx).
			Where("id IN ?", ids[i:end]).
			Delete(model).Error; err != nil {
			return int64(i), err
		}
	}

	return int64(len(ids)), nil
}

// Stats returns maintenance statistics for the stats endpoint.
func (s *Service) Stats() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	return map[string]any{
		"enabled":                 s.config.MaintenanceEnabled,
		"interval_hours":          s.config.MaintenanceIntervalHours,
		"analysis_retention_days": s.config.AnalysisRetentionDays,
		"feedback_retention_days": s.config.FeedbackRetentionDays,
		"last_run":                s.lastRunTime,
		"last_duration_ms":        s.lastRunDuration.Milliseconds(),
		"total_rows_pruned":       s.totalPruned,
		"total_optimizes":         s.totalOptimizes,
		"running":                 s.running,
	}
}
