// Package analyze orchestrates a full root-cause analysis: identifier
// extraction, operational correlation, knowledge and case retrieval,
// hypothesis ranking, and persistence of the result.
package analyze

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/harborops/causeway/internal/assist"
	"github.com/harborops/causeway/internal/cases"
	"github.com/harborops/causeway/internal/config"
	"github.com/harborops/causeway/internal/correlate"
	gormdb "github.com/harborops/causeway/internal/db/gorm"
	"github.com/harborops/causeway/internal/knowledge"
	"github.com/harborops/causeway/internal/privacy"
	"github.com/harborops/causeway/internal/rank"
	"github.com/harborops/causeway/pkg/models"
)

// Source names reported in SourcesChecked / SourcesUnavailable.
const (
	SourceOperationalSnapshot = "operational_snapshot"
	SourceKnowledgeBase       = "knowledge_base"
	SourceHistoricalCases     = "historical_cases"
)

// Engine runs analyses end to end and persists each result.
type Engine struct {
	store      *gormdb.Store
	correlator *correlate.Correlator
	knowledge  *knowledge.Retriever
	cases      *cases.Retriever
	assist     *assist.Client
	cfg        *config.Config
}

// New creates an Engine. assistClient may be nil; narratives are then
// skipped and the top hypothesis description stands alone.
func New(store *gormdb.Store, correlator *correlate.Correlator, kn *knowledge.Retriever, cs *cases.Retriever, assistClient *assist.Client, cfg *config.Config) *Engine {
	if cfg == nil {
		cfg = config.Get()
	}
	return &Engine{
		store:      store,
		correlator: correlator,
		knowledge:  kn,
		cases:      cs,
		assist:     assistClient,
		cfg:        cfg,
	}
}

// Analyze runs every retrieval stage for the incident, ranks the
// resulting hypotheses, and saves a snapshot of the outcome. Retrieval
// failures degrade to unavailable sources; only invalid input or a
// failed persist return an error.
func (e *Engine) Analyze(ctx context.Context, req models.AnalysisRequest) (*models.AnalysisResult, error) {
	// Empty text is accepted: no retriever will match anything, so the
	// ranker's fallback hypothesis is the answer.
	text := strings.TrimSpace(req.IncidentText)
	if text == "" {
		log.Warn().Msg("Empty incident text, analysis will yield the fallback hypothesis")
	}
	if privacy.ContainsSecrets(text) {
		log.Warn().Msg("Incident text contains credentials, redacting before analysis")
		text = privacy.RedactSecrets(text)
	}
	if req.WindowHours < 0 {
		return nil, fmt.Errorf("%w: window hours %d", models.ErrInvalidWindow, req.WindowHours)
	}

	occurredAt := req.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}
	windowHours := req.WindowHours
	if windowHours == 0 {
		windowHours = e.cfg.WindowHours
	}
	maxHypotheses := req.MaxHypotheses
	if maxHypotheses <= 0 {
		maxHypotheses = e.cfg.MaxHypotheses
	}

	started := time.Now()

	var (
		wg          sync.WaitGroup
		correlation *correlate.Correlation
		caseMatches []cases.Match
		caseErr     error
		hits        []knowledge.Hit
		knowErr     error
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		correlation = e.correlator.Correlate(ctx, text, occurredAt, windowHours)
	}()
	go func() {
		defer wg.Done()
		caseMatches, caseErr = e.cases.FindSimilar(ctx, text, e.cfg.CaseLimit)
	}()
	go func() {
		defer wg.Done()
		hits, knowErr = e.knowledge.Search(ctx, text, e.cfg.KnowledgeLimit)
	}()
	wg.Wait()

	unavailable := append([]string(nil), correlation.SourcesUnavailable...)
	if knowErr != nil {
		log.Warn().Err(knowErr).Msg("Knowledge retrieval failed, continuing without it")
		unavailable = append(unavailable, SourceKnowledgeBase)
	}
	if caseErr != nil {
		log.Warn().Err(caseErr).Msg("Case retrieval failed, continuing without it")
		unavailable = append(unavailable, SourceHistoricalCases)
	}

	sourcesChecked := []string{SourceOperationalSnapshot, SourceKnowledgeBase, SourceHistoricalCases}
	hypotheses := rank.Rank(correlation.Findings, caseMatches, hits, sourcesChecked, maxHypotheses)

	narrative := ""
	if e.assist != nil {
		var err error
		narrative, err = e.assist.Narrative(ctx, text, hypotheses)
		if err != nil {
			log.Warn().Err(err).Msg("Narrative generation failed, returning ranked hypotheses only")
			narrative = ""
		}
	}

	result := &models.AnalysisResult{
		IncidentID:         uuid.NewString(),
		IncidentText:       text,
		WindowStart:        correlation.WindowStart,
		WindowEnd:          correlation.WindowEnd,
		Hypotheses:         hypotheses,
		SourcesChecked:     sourcesChecked,
		SourcesUnavailable: unavailable,
		AnalyzedAt:         time.Now().UTC(),
	}

	record := buildRecord(result, correlation, caseMatches, narrative, occurredAt, windowHours)
	if err := e.store.SaveAnalysis(ctx, record); err != nil {
		record.Status = gormdb.AnalysisStatusFailed
		log.Error().Err(err).Str("incident_id", result.IncidentID).Msg("Failed to persist analysis")
		return nil, fmt.Errorf("save analysis: %w", err)
	}

	log.Info().
		Str("incident_id", result.IncidentID).
		Int("hypotheses", len(hypotheses)).
		Float64("top_confidence", result.TopConfidence()).
		Dur("elapsed", time.Since(started)).
		Msg("Analysis completed")

	return result, nil
}

// AnalysisByIncident loads a previously persisted analysis snapshot.
func (e *Engine) AnalysisByIncident(ctx context.Context, incidentID string) (*gormdb.Analysis, error) {
	return e.store.GetAnalysisByIncident(ctx, incidentID)
}

// buildRecord flattens the analysis outcome into its persisted form.
func buildRecord(result *models.AnalysisResult, correlation *correlate.Correlation, caseMatches []cases.Match, narrative string, occurredAt time.Time, windowHours int) *gormdb.Analysis {
	rootCause := rank.FallbackDescription
	if len(result.Hypotheses) > 0 {
		rootCause = result.Hypotheses[0].Description
	}

	identifiers := models.JSONMap{}
	for class, matches := range correlation.Identifiers {
		identifiers[string(class)] = matches
	}

	findings := models.JSONMap{
		"findings": correlation.Findings,
	}
	if len(correlation.Cascades) > 0 {
		findings["cascades"] = correlation.Cascades
	}
	if len(correlation.EDIErrorsInWindow) > 0 {
		findings["edi_errors"] = correlation.EDIErrorsInWindow
	}
	if len(result.SourcesUnavailable) > 0 {
		findings["sources_unavailable"] = result.SourcesUnavailable
	}

	similar := make(models.JSONStringArray, 0, len(caseMatches))
	for _, m := range caseMatches {
		similar = append(similar, m.Case.Description)
	}

	return &gormdb.Analysis{
		IncidentID:   result.IncidentID,
		Description:  result.IncidentText,
		IncidentTime: occurredAt,
		RootCause:    rootCause,
		Hypotheses:   result.Hypotheses,
		Findings:     findings,
		Identifiers:  identifiers,
		SimilarCases: similar,
		Narrative:    narrative,
		Status:       gormdb.AnalysisStatusCompleted,
		Confidence:   result.TopConfidence(),
		WindowHours:  windowHours,
		AnalyzedAt:   result.AnalyzedAt,
	}
}
