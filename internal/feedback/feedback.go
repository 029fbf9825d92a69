// Package feedback records which suggested solutions actually helped,
// feeding usefulness counters back into retrieval ranking.
package feedback

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	gormdb "github.com/harborops/causeway/internal/db/gorm"
	"github.com/harborops/causeway/internal/privacy"
	"github.com/harborops/causeway/pkg/models"
	"github.com/harborops/causeway/pkg/retry"
)

// UnknownIncident stands in when feedback arrives without an incident
// description. The mark still counts toward the source entity.
const UnknownIncident = "unknown incident"

// writeTimeout bounds one feedback transaction.
const writeTimeout = 10 * time.Second

// Request describes one feedback action.
type Request struct {
	IncidentDescription string           `json:"incident_description"`
	SolutionDescription string           `json:"solution_description"`
	SolutionOrder       int              `json:"solution_order,omitempty"`
	SolutionType        string           `json:"solution_type,omitempty"`
	Source              models.SourceRef `json:"source"`
	UserID              string           `json:"user_id,omitempty"`
}

// Outcome reports the feedback row after the action.
type Outcome struct {
	FeedbackID      int64     `json:"feedback_id"`
	UsefulnessCount int       `json:"usefulness_count"`
	Created         bool      `json:"created"`
	MarkedAt        time.Time `json:"marked_at"`
}

// Recorder applies feedback marks transactionally: the feedback row
// and the source entity's counter move together or not at all.
type Recorder struct {
	store    *gormdb.Store
	retryCfg retry.Config
}

// NewRecorder creates a Recorder.
func NewRecorder(store *gormdb.Store) *Recorder {
	cfg := retry.DefaultConfig()
	cfg.RetryableErrors = []error{gorm.ErrDuplicatedKey, models.ErrConflict}
	return &Recorder{store: store, retryCfg: cfg}
}

// Mark records that a solution helped. The first mark for a given
// (incident, solution, source) creates the row; repeat marks increment
// it. The source entity's usefulness counter moves in the same
// transaction, so a failed write never half-applies.
func (r *Recorder) Mark(ctx context.Context, req Request) (*Outcome, error) {
	return r.apply(ctx, req, +1)
}

// Unmark withdraws a previous mark. Counters floor at zero and the
// feedback row survives, so unmarking is always safe to repeat.
// Unmarking a solution never marked returns ErrNotFound.
func (r *Recorder) Unmark(ctx context.Context, req Request) (*Outcome, error) {
	return r.apply(ctx, req, -1)
}

func (r *Recorder) apply(ctx context.Context, req Request, delta int) (*Outcome, error) {
	key, err := r.validate(req)
	if err != nil {
		return nil, err
	}

	return retry.DoWithResult(ctx, r.retryCfg, func() (*Outcome, error) {
		var outcome *Outcome
		err := r.store.TransactionWithTimeout(ctx, writeTimeout, func(tx *gorm.DB) error {
			var txErr error
			outcome, txErr = r.applyInTx(tx, key, req, delta)
			return txErr
		})
		if err != nil {
			return nil, err
		}

		log.Info().
			Str("source", req.Source.String()).
			Int("delta", delta).
			Int("usefulness_count", outcome.UsefulnessCount).
			Bool("created", outcome.Created).
			Msg("Feedback recorded")
		return outcome, nil
	})
}

func (r *Recorder) applyInTx(tx *gorm.DB, key gormdb.FeedbackKey, req Request, delta int) (*Outcome, error) {
	// Move the source entity's counter first; an unknown reference
	// fails here and rolls the whole action back.
	if err := adjustSource(tx, req.Source, delta); err != nil {
		return nil, fmt.Errorf("adjust %s: %w", req.Source, err)
	}

	row, err := gormdb.FindFeedback(tx, key)
	switch {
	case err == nil:
		if err := gormdb.AdjustFeedbackCount(tx, row.ID, delta); err != nil {
			return nil, err
		}
		count := row.UsefulnessCount + delta
		if count < 0 {
			count = 0
		}
		return &Outcome{
			FeedbackID:      row.ID,
			UsefulnessCount: count,
			MarkedAt:        time.Now().UTC(),
		}, nil

	case errors.Is(err, models.ErrNotFound):
		if delta < 0 {
			return nil, fmt.Errorf("unmark without prior mark: %w", models.ErrNotFound)
		}
		created, err := gormdb.CreateFeedback(tx, key, req.SolutionOrder, req.SolutionType, req.UserID)
		if err != nil {
			return nil, err
		}
		return &Outcome{
			FeedbackID:      created.ID,
			UsefulnessCount: created.UsefulnessCount,
			Created:         true,
			MarkedAt:        created.MarkedAt,
		}, nil

	default:
		return nil, err
	}
}

// adjustSource moves the usefulness counter on the referenced entity.
// Analyses carry no counter; the reference is only checked to exist.
func adjustSource(tx *gorm.DB, ref models.SourceRef, delta int) error {
	switch ref.Kind {
	case models.SourceKnowledge:
		return gormdb.AdjustKnowledgeUsefulness(tx, ref.ID, delta)
	case models.SourceCase:
		return gormdb.AdjustCaseUsefulness(tx, ref.ID, delta)
	case models.SourceAnalysis:
		var count int64
		if err := tx.Model(&gormdb.Analysis{}).Where("id = ?", ref.ID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return models.ErrNotFound
		}
		return nil
	default:
		return fmt.Errorf("%w: source kind %q", models.ErrValidation, ref.Kind)
	}
}

func (r *Recorder) validate(req Request) (gormdb.FeedbackKey, error) {
	if err := req.Source.Validate(); err != nil {
		return gormdb.FeedbackKey{}, err
	}
	if strings.TrimSpace(req.SolutionDescription) == "" {
		return gormdb.FeedbackKey{}, fmt.Errorf("%w: solution description is required", models.ErrValidation)
	}

	incident := privacy.RedactSecrets(strings.TrimSpace(req.IncidentDescription))
	if incident == "" {
		log.Warn().
			Str("source", req.Source.String()).
			Msg("Feedback without incident description, recording against unknown incident")
		incident = UnknownIncident
	}

	key := gormdb.FeedbackKey{
		IncidentDescription: incident,
		SolutionDescription: strings.TrimSpace(req.SolutionDescription),
		SourceKind:          string(req.Source.Kind),
	}
	switch req.Source.Kind {
	case models.SourceKnowledge:
		key.KnowledgeID = req.Source.ID
	case models.SourceCase:
		key.CaseID = req.Source.ID
	case models.SourceAnalysis:
		key.AnalysisID = req.Source.ID
	}
	return key, nil
}
